package env

import (
	"fmt"
	"strings"

	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var levels = map[string]zapcore.Level{
	"panic": zap.PanicLevel,
	"error": zap.ErrorLevel,
	"warn":  zap.WarnLevel,
	"info":  zap.InfoLevel,
	"debug": zap.DebugLevel,

	// zap has nothing below debug
	"trace": zap.DebugLevel,
}

// ParseLevel maps a log level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zap.InfoLevel, nil
	}

	level, ok := levels[strings.ToLower(name)]
	if !ok {
		return zap.InfoLevel, fmt.Errorf("Unknown log level %q", name)
	}

	return level, nil
}

func MakeLogger(levelName string) (*zap.Logger, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.Encoding = "json"

	return logConfig.Build()
}
