package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var zeroOnce sync.Once
var zeroSinLogger *zerolog.Logger

type zeroLogger struct {
	cfg    *LoggerConfig
	logger *zerolog.Logger
}

var zeroLogLevelMapping = map[string]zerolog.Level{
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
	"fatal": zerolog.FatalLevel,
}

func newZeroLogger(cfg *LoggerConfig) *zeroLogger {
	logger := &zeroLogger{cfg: cfg}
	logger.Init()
	return logger
}

func (l *zeroLogger) getLogLevel() zerolog.Level {
	level, exists := zeroLogLevelMapping[l.cfg.Level]
	if !exists {
		return zerolog.DebugLevel
	}
	return level
}

func (l *zeroLogger) Init() {
	zeroOnce.Do(func() {
		fileWriter := &lumberjack.Logger{
			Filename:   l.cfg.FilePath + "portal.log",
			MaxSize:    10, // megabytes
			MaxAge:     20, // days
			MaxBackups: 5,
			Compress:   true,
		}

		logger := zerolog.New(zerolog.MultiLevelWriter(fileWriter, os.Stdout)).
			Level(l.getLogLevel()).
			With().
			Timestamp().
			Str(string(AppName), "portal-core").
			Str(string(LoggerName), "zerolog").
			Logger()

		zeroSinLogger = &logger
	})

	l.logger = zeroSinLogger
}

func (l *zeroLogger) Debug(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Debug().
		Fields(logParamsToZeroParams(extra)).
		Str("Category", string(cat)).
		Str("SubCategory", string(sub)).
		Msg(msg)
}

func (l *zeroLogger) Debugf(template string, args ...any) {
	l.logger.Debug().Msgf(template, args...)
}

func (l *zeroLogger) Info(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Info().
		Fields(logParamsToZeroParams(extra)).
		Str("Category", string(cat)).
		Str("SubCategory", string(sub)).
		Msg(msg)
}

func (l *zeroLogger) Infof(template string, args ...any) {
	l.logger.Info().Msgf(template, args...)
}

func (l *zeroLogger) Warn(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Warn().
		Fields(logParamsToZeroParams(extra)).
		Str("Category", string(cat)).
		Str("SubCategory", string(sub)).
		Msg(msg)
}

func (l *zeroLogger) Warnf(template string, args ...any) {
	l.logger.Warn().Msgf(template, args...)
}

func (l *zeroLogger) Error(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Error().
		Fields(logParamsToZeroParams(extra)).
		Str("Category", string(cat)).
		Str("SubCategory", string(sub)).
		Msg(msg)
}

func (l *zeroLogger) Errorf(template string, args ...any) {
	l.logger.Error().Msgf(template, args...)
}

func (l *zeroLogger) Fatal(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Fatal().
		Fields(logParamsToZeroParams(extra)).
		Str("Category", string(cat)).
		Str("SubCategory", string(sub)).
		Msg(msg)
}

func (l *zeroLogger) Fatalf(template string, args ...any) {
	l.logger.Fatal().Msgf(template, args...)
}
