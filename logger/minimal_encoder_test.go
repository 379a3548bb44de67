package logger

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// stripANSI removes ANSI color codes from a string for testing
func stripANSI(str string) string {
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	return ansiRegex.ReplaceAllString(str, "")
}

func encode(t *testing.T, enc *minimalEncoder, ent zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(ent, fields)
	require.NoError(t, err)
	return stripANSI(buf.String())
}

// The console encoder must never silently drop a field.
func TestMinimalEncoderNeverDiscardsFields(t *testing.T) {
	enc := newMinimalEncoder()
	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2024, 3, 4, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse.worker",
		Message:    "Job completed",
	}

	tests := []struct {
		field    zapcore.Field
		mustFind string
	}{
		{zap.String("kind", "audio"), "kind=audio"},
		{zap.String("persona_id", "tech_guru_hindi"), "persona_id=tech_guru_hindi"},
		{zap.Bool("auto_post", true), "auto_post=true"},
		{zap.Int("progress", 100), "progress=100"},
		{zap.Int64("count", 9999999), "count=9999999"},
		{zap.Float64("success_rate", 87.5), "success_rate=87.5"},
		{zap.Duration("timeout", 2*time.Minute), "timeout=2m0s"},
		{zap.Error(errors.New("connection refused")), "error=connection refused"},
		{zap.String("job_id", "3f2a9c"), "3f2a9c"},
		{zap.String("schedule_id", "schedule_001"), "schedule_001"},
		{zap.Int64("duration_ms", 1200), "1200ms"},
	}

	var fields []zapcore.Field
	for _, tt := range tests {
		fields = append(fields, tt.field)
	}
	out := encode(t, enc, entry, fields...)

	for _, tt := range tests {
		assert.Contains(t, out, tt.mustFind, "field %q missing from output", tt.field.Key)
	}
}

func TestMinimalEncoderLayout(t *testing.T) {
	enc := newMinimalEncoder()
	out := encode(t, enc, zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2024, 3, 4, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse.ticker",
		Message:    "Schedule fired",
	}, zap.String(FieldSymbol, SymPulse), zap.String(FieldScheduleID, "schedule_002"))

	assert.Equal(t, "13:04:35  ꩜  p.ticker  Schedule fired  schedule_002\n", out)
}

func TestMinimalEncoderLevels(t *testing.T) {
	enc := newMinimalEncoder()
	base := zapcore.Entry{Time: time.Now(), Message: "m"}

	base.Level = zapcore.InfoLevel
	assert.NotContains(t, encode(t, enc, base), "INFO")

	base.Level = zapcore.DebugLevel
	assert.NotContains(t, encode(t, enc, base), "DEBUG")

	base.Level = zapcore.WarnLevel
	assert.Contains(t, encode(t, enc, base), "WARN")

	base.Level = zapcore.ErrorLevel
	assert.Contains(t, encode(t, enc, base), "ERROR")
}

func TestMinimalEncoderWithFields(t *testing.T) {
	var sink testSink
	core := zapcore.NewCore(newMinimalEncoder(), &sink, zapcore.DebugLevel)
	log := zap.New(core).Sugar()

	AddPulseSymbol(log).Infow("Ticker started", "interval", "30s")

	out := stripANSI(sink.String())
	assert.Contains(t, out, "꩜  Ticker started")
	assert.Contains(t, out, "interval=30s")
	assert.NotContains(t, out, "symbol=")
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "server", abbreviateName("server"))
	assert.Equal(t, "p.worker", abbreviateName("pulse.worker"))
	assert.Equal(t, "p.async.store", abbreviateName("pulse.async.store"))
}

func TestColorizeMessage(t *testing.T) {
	msg := "꩜ [job:abc123] finished [dispatch]"
	out := colorizeMessage(msg)

	assert.Equal(t, msg, stripANSI(out))
	assert.NotEqual(t, msg, out, "message should carry color codes")
}

func TestSetTheme(t *testing.T) {
	t.Cleanup(func() { currentTheme = "everforest" })

	SetTheme("gruvbox")
	assert.Equal(t, gruvbox, colors())

	SetTheme("solarized")
	assert.Equal(t, gruvbox, colors(), "unknown theme is ignored")

	SetTheme("everforest")
	assert.Equal(t, everforest, colors())
}
