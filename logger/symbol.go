package logger

import "go.uber.org/zap"

// Segment symbols, attached to log lines as the "symbol" field and rendered
// ahead of the message by the console encoder.
const (
	SymPulse      = "꩜" // scheduling and job processing
	SymPulseOpen  = "✿" // startup
	SymPulseClose = "❀" // shutdown
	SymDB         = "⊔" // storage
)

func withSymbol(l *zap.SugaredLogger, sym string) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym)
}

// AddPulseSymbol tags l with the pulse symbol.
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return withSymbol(l, SymPulse) }

func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return withSymbol(l, SymPulseOpen) }

func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return withSymbol(l, SymPulseClose)
}

func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger { return withSymbol(l, SymDB) }

// PulseInfow logs at info on the global logger, tagged with the pulse symbol.
func PulseInfow(msg string, keysAndValues ...interface{}) {
	AddPulseSymbol(global()).Infow(msg, keysAndValues...)
}

// PulseWarnw logs at warn on the global logger, tagged with the pulse symbol.
func PulseWarnw(msg string, keysAndValues ...interface{}) {
	AddPulseSymbol(global()).Warnw(msg, keysAndValues...)
}
