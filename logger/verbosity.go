package logger

import "go.uber.org/zap/zapcore"

// CLI -v counts. One-shot commands default to quiet; the server defaults to info.
const (
	VerbosityQuiet = 0
	VerbosityInfo  = 1
	VerbosityDebug = 2
)

type verbosityStep struct {
	level zapcore.Level
	name  string
}

var verbositySteps = [...]verbosityStep{
	VerbosityQuiet: {zapcore.WarnLevel, "Quiet"},
	VerbosityInfo:  {zapcore.InfoLevel, "Info (-v)"},
	VerbosityDebug: {zapcore.DebugLevel, "Debug (-vv)"},
}

func stepFor(verbosity int) verbosityStep {
	return verbositySteps[max(VerbosityQuiet, min(verbosity, VerbosityDebug))]
}

// VerbosityToLevel maps a -v count to a zap level. Counts past -vv stay at debug.
func VerbosityToLevel(verbosity int) zapcore.Level { return stepFor(verbosity).level }

// LevelName is the label shown for a -v count.
func LevelName(verbosity int) string { return stepFor(verbosity).name }
