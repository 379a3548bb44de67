package logger

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

type palette struct {
	fg     string
	time   string
	id     string
	number string
	symbol string
	stage  string
	comp   []string
	warn   string
	warnBg string
	err    string
	errBg  string
}

// Gruvbox Dark (warm, muted)
var gruvbox = palette{
	fg:     "\x1b[38;5;223m",
	time:   "\x1b[38;5;108m",
	id:     "\x1b[38;5;109m",
	number: "\x1b[38;5;175m",
	symbol: "\x1b[38;5;142m",
	stage:  "\x1b[38;5;208m",
	comp:   []string{"\x1b[38;5;208m", "\x1b[38;5;214m"},
	warn:   "\x1b[38;5;214m",
	warnBg: "\x1b[48;5;58m",
	err:    "\x1b[38;5;167m",
	errBg:  "\x1b[48;5;88m",
}

// Everforest Dark (forest greens)
var everforest = palette{
	fg:     "\x1b[38;5;223m",
	time:   "\x1b[38;5;107m",
	id:     "\x1b[38;5;109m",
	number: "\x1b[38;5;108m",
	symbol: "\x1b[38;5;108m",
	stage:  "\x1b[38;5;208m",
	comp:   []string{"\x1b[38;5;108m", "\x1b[38;5;65m", "\x1b[38;5;208m"},
	warn:   "\x1b[38;5;179m",
	warnBg: "\x1b[48;5;58m",
	err:    "\x1b[38;5;167m",
	errBg:  "\x1b[48;5;52m",
}

var currentTheme = "everforest"

// SetTheme configures the color scheme for console log output.
// Unknown theme names are ignored.
func SetTheme(theme string) {
	if theme == "everforest" || theme == "gruvbox" {
		currentTheme = theme
	}
}

func colors() palette {
	if currentTheme == "gruvbox" {
		return gruvbox
	}
	return everforest
}

var bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// colorizeMessage colors bracketed contexts like [job:abc] or [dispatch]
// and the segment symbols inside a message.
func colorizeMessage(msg string) string {
	c := colors()
	var result strings.Builder
	last := 0

	plain := func(s string) {
		if s == "" {
			return
		}
		result.WriteString(c.fg)
		result.WriteString(colorizeSymbols(s, c.symbol))
		result.WriteString(colorReset)
	}

	for _, m := range bracketPattern.FindAllStringSubmatchIndex(msg, -1) {
		plain(msg[last:m[0]])

		color := c.stage
		if strings.HasPrefix(msg[m[2]:m[3]], "job:") {
			color = c.id
		}
		result.WriteString(color)
		result.WriteString(msg[m[0]:m[1]])
		result.WriteString(colorReset)
		last = m[1]
	}
	plain(msg[last:])

	return result.String()
}

func colorizeSymbols(text, symbolColor string) string {
	for _, s := range []string{SymPulse, SymPulseOpen, SymPulseClose, SymDB} {
		text = strings.ReplaceAll(text, s, symbolColor+s+colorReset)
	}
	return text
}

// minimalEncoder is a compact console encoder.
// Format: "13:04:35  ꩜  p.worker  Job completed  3f2a… 1200ms  kind=audio"
type minimalEncoder struct {
	zapcore.Encoder
	fields []zapcore.Field
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		fields:  append([]zapcore.Field(nil), enc.fields...),
	}
}

// AddString captures context fields added through With so they reach EncodeEntry.
func (enc *minimalEncoder) AddString(key, value string) {
	enc.fields = append(enc.fields, zap.String(key, value))
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := buffer.NewPool().Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	if lvl := levelColorString(ent.Level); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	all := make([]zapcore.Field, 0, len(enc.fields)+len(fields))
	all = append(all, enc.fields...)
	all = append(all, fields...)

	// The segment symbol leads the line rather than trailing as a field
	rest := all[:0:0]
	for _, f := range all {
		if f.Key == FieldSymbol && f.Type == zapcore.StringType {
			final.AppendString("  ")
			final.AppendString(c.symbol + f.String + colorReset)
			continue
		}
		rest = append(rest, f)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorizeMessage(ent.Message))

	if vals := extractFieldValues(rest); vals != "" {
		final.AppendString("  ")
		final.AppendString(vals)
	}

	final.AppendString("\n")
	return final, nil
}

func colorComponent(name string) string {
	hash := 0
	for _, r := range name {
		hash += int(r)
	}
	comp := colors().comp
	return comp[hash%len(comp)]
}

// levelColorString returns bold + colored + background for WARN and above.
// Info and debug lines carry no level marker.
func levelColorString(level zapcore.Level) string {
	c := colors()
	switch level {
	case zapcore.DebugLevel, zapcore.InfoLevel:
		return ""
	case zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	default:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	}
}

// abbreviateName shortens component names: server -> server, pulse.worker -> p.worker
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// getFieldValue renders a zap field's value as plain text
func getFieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", uint64(field.Integer))
	case zapcore.BoolType:
		return fmt.Sprintf("%t", field.Integer == 1)
	case zapcore.Float64Type:
		return fmt.Sprintf("%g", math.Float64frombits(uint64(field.Integer)))
	case zapcore.Float32Type:
		return fmt.Sprintf("%g", math.Float32frombits(uint32(field.Integer)))
	case zapcore.DurationType:
		return time.Duration(field.Integer).String()
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			return err.Error()
		}
		return ""
	case zapcore.SkipType:
		return ""
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

// extractFieldValues renders structured fields for the console.
// Job and schedule IDs print bare in the ID color, duration_ms prints with a
// unit, and every other field prints as key=value.
func extractFieldValues(fields []zapcore.Field) string {
	c := colors()
	var values []string

	for _, field := range fields {
		val := getFieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case FieldJobID, FieldScheduleID:
			values = append(values, c.id+val+colorReset)
		case FieldDurationMS:
			values = append(values, c.number+val+colorReset+"ms")
		default:
			values = append(values, c.fg+field.Key+"="+colorReset+val)
		}
	}

	return strings.Join(values, " ")
}
