package tlog

import (
	"fmt"
	"time"

	"github.com/ridge/must/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func init() {
	for _, color := range []bool{false, true} {
		color := color
		must.OK(zap.RegisterEncoder(consoleEncoding(color), func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
			return newConsoleEncoder(cfg, color), nil
		}))
	}
}

const consoleEncoderName = "smcmon-console"

func consoleEncoding(color bool) string {
	return fmt.Sprintf("%s;color=%t", consoleEncoderName, color)
}

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000000"))
}

// newConsoleEncoder prints one line per entry: time, level, logger name,
// message, then the fields as JSON. Frames logged with zap.Object stay
// readable on a terminal.
func newConsoleEncoder(cfg zapcore.EncoderConfig, color bool) zapcore.Encoder {
	cfg.EncodeTime = shortTimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncodeName = zapcore.FullNameEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}
