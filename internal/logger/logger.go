// Package logger owns the process-wide zap logger.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger. It is a no-op until Initialize is called so
// packages can log unconditionally.
var Logger = zap.NewNop().Sugar()

// Initialize builds the global logger. JSON output uses the production encoder;
// otherwise a console encoder writes to stderr so stdout stays reserved for
// seed progress and the final summary.
func Initialize(jsonOutput bool, level string) error {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil || level == "" {
		lvl = zapcore.InfoLevel
	}

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.OutputPaths = []string{"stderr"}
		zl, err := cfg.Build()
		if err != nil {
			return err
		}
		Logger = zl.Sugar()
		return nil
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), lvl)
	Logger = zap.New(core).Sugar()
	return nil
}

// Named returns a child of the global logger scoped to component.
func Named(component string) *zap.SugaredLogger {
	return Logger.Named(component)
}

// Sync flushes buffered entries; errors from syncing terminals are ignored.
func Sync() {
	_ = Logger.Sync()
}
