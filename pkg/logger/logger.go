// Package logger configures the process-wide zap logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

// Init builds the global logger. When file is non-empty, log output goes to
// the file and stdout; otherwise a development console logger is used.
// The debug flag lowers the level to Debug.
func Init(file string, debug bool) error {
	var config zap.Config

	if file != "" {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{file, "stdout"}
	} else {
		config = zap.NewDevelopmentConfig()
	}

	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	var err error
	Log, err = config.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(Log)

	return nil
}

func Sync() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}
