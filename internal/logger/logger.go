// Package logger builds the service zap logger and carries request-scoped
// loggers through context.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options tune the environment defaults. Zero values keep them.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" or "console".
	Format string
	// OutputPaths replaces both the log and the error output (e.g. "stderr").
	OutputPaths []string
}

// New creates a zap logger for env.
// prod logs JSON at info, local/dev/docker/test log colored console output at debug.
// Every entry carries the service name and env.
func New(env string, opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker", "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	switch opts.Format {
	case "":
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "console":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
		cfg.ErrorOutputPaths = opts.OutputPaths
	}

	cfg.InitialFields = map[string]any{"service": "docqa", "env": env}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
