package logger

import (
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	level  zap.AtomicLevel
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

func newEncoder(supportColor bool) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	if supportColor {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func newFileCore(encoder zapcore.Encoder, logfile string, maxSize, maxBackups, maxAge int) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   false,
		LocalTime:  true,
	}
	return zapcore.NewCore(encoder, zapcore.AddSync(logFile), level)
}

func InitLogger(lvl LogLevel, logfile string, supportColor bool, maxSize, maxBackups, maxAge int) {
	level = zap.NewAtomicLevelAt(zapcore.Level(lvl))
	encoder := newEncoder(supportColor)
	consoleCore := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	core := consoleCore
	if logfile != "" {
		core = zapcore.NewTee(consoleCore, newFileCore(newEncoder(false), logfile, maxSize, maxBackups, maxAge))
	}
	Logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetLevelBits retunes the log level from the M111 S bitfield:
// bit 0 verbose, bit 1 debug, bit 2 info+errors.
func SetLevelBits(bitfield int) {
	if Logger == nil {
		return
	}
	switch {
	case bitfield&3 != 0:
		level.SetLevel(zapcore.DebugLevel)
	case bitfield&4 != 0:
		level.SetLevel(zapcore.InfoLevel)
	default:
		level.SetLevel(zapcore.WarnLevel)
	}
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Infof(format, args...)
	}
}

func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Info(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debugf(format, args...)
	}
}

func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debug(args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warnf(format, args...)
	}
}

func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warn(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Errorf(format, args...)
	}
}

func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Error(args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	if Logger != nil {
		message := fmt.Sprintf(format, args...)
		Logger.Error(message)
		_ = Logger.Sync()
	}
	os.Exit(1)
}

func Fatal(args ...interface{}) {
	if Logger != nil {
		message := fmt.Sprint(args...)
		Logger.Error(message)
		_ = Logger.Sync()
	}
	os.Exit(1)
}
