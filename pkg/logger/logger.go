package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
)

// Options 日志输出配置，File 为空时只输出到控制台
type Options struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// InitLogger 初始化 zap 日志记录器并替换全局 logger
func InitLogger(opts Options) error {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("日志级别无效: %w", err)
	}

	core := zapcore.NewCore(getEncoder(), getLogWriter(opts), level)
	Logger = zap.New(core, zap.AddCaller())
	Sugar = Logger.Sugar()

	zap.ReplaceGlobals(Logger)
	return nil
}

// getEncoder 控制台编码，ISO8601 时间和大写级别
func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// getLogWriter 同时写控制台和按大小切割的日志文件
func getLogWriter(opts Options) zapcore.WriteSyncer {
	if opts.File == "" {
		return zapcore.AddSync(os.Stdout)
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize, // MB
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge, // 天
		Compress:   opts.Compress,
	}
	return zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(lumberJackLogger))
}
