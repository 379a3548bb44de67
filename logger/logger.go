// Package logger holds the process-wide zap logger and the field vocabulary
// shared by every BuzzSnip component.
//
// Components take a *zap.SugaredLogger and name it (server, pulse.worker,
// pulse.ticker, ...). The package functions below log through the global
// Logger for code paths that have no injected logger.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger. It discards everything until Initialize runs.
	Logger = zap.NewNop().Sugar()

	// JSONOutput reports whether the last Initialize chose structured JSON
	JSONOutput bool

	level = zap.NewAtomicLevelAt(zap.InfoLevel)

	// Log lines go to stderr so command output on stdout stays pipeable
	sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
)

// Initialize installs the global logger at info level.
func Initialize(jsonOutput bool) error {
	return InitializeWithVerbosity(jsonOutput, VerbosityInfo)
}

// InitializeWithVerbosity installs the global logger at the level selected by
// the CLI -v count. BUZZSNIP_LOG_THEME picks the console palette.
func InitializeWithVerbosity(jsonOutput bool, verbosity int) error {
	level.SetLevel(VerbosityToLevel(verbosity))
	if theme := os.Getenv("BUZZSNIP_LOG_THEME"); theme != "" {
		SetTheme(theme)
	}

	Logger = zap.New(newCore(jsonOutput, sink)).Sugar()
	JSONOutput = jsonOutput
	return nil
}

// newCore builds the JSON core for machines or the minimal console core for people.
func newCore(jsonOutput bool, ws zapcore.WriteSyncer) zapcore.Core {
	if !jsonOutput {
		return zapcore.NewCore(newMinimalEncoder(), ws, level)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.TimeKey = "ts"
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), ws, level)
}

// SetLevel changes the level of the global logger at runtime
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Cleanup flushes buffered entries. Safe to call at any time.
func Cleanup() {
	if l := Logger; l != nil {
		_ = l.Sync()
	}
}

// global returns Logger, or a nop logger if a caller cleared it
func global() *zap.SugaredLogger {
	if l := Logger; l != nil {
		return l
	}
	return zap.NewNop().Sugar()
}

func Infow(msg string, keysAndValues ...interface{}) { global().Infow(msg, keysAndValues...) }

func Infof(format string, args ...interface{}) { global().Infof(format, args...) }

func Warnw(msg string, keysAndValues ...interface{}) { global().Warnw(msg, keysAndValues...) }

func Errorw(msg string, keysAndValues ...interface{}) { global().Errorw(msg, keysAndValues...) }

func Debugw(msg string, keysAndValues ...interface{}) { global().Debugw(msg, keysAndValues...) }
