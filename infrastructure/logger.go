// infrastructure/logger.go
package infrastructure

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Unknown levels fall back to info and
// unknown encodings to json.
func NewLogger(level, encoding string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevel()
	lvl := strings.ToLower(level)
	if lvl == "" {
		lvl = "info"
	}
	if err := atomic.UnmarshalText([]byte(lvl)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info: %v\n", level, err)
		atomic.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	enc := strings.ToLower(encoding)
	if enc != "console" {
		enc = "json"
	}

	logger, err := zap.Config{
		Level:             atomic,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          enc,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
