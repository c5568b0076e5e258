package logger

import (
	"time"

	"github.com/MrPunder/client-relay-bot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ZapLogger struct {
	logZap *zap.SugaredLogger
	logger *zap.Logger // Сохраняем ссылку на оригинальный логгер для вызова Sync()
}

// NewZapLogger создает логгер с ротацией файлов: обычный поток и отдельный
// файл для ошибок
func NewZapLogger(conf config.LogConfig) (*ZapLogger, error) {
	logLevel, err := zap.ParseAtomicLevel(conf.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	// Ротация обычных логов
	stdLogWriter := &lumberjack.Logger{
		Filename:   conf.Path,
		MaxSize:    conf.MaxSize,    // Максимальный размер в МБ
		MaxBackups: conf.MaxBackups, // Максимальное количество файлов бэкапа
		MaxAge:     conf.MaxAge,     // Максимальный возраст в днях
		Compress:   conf.Compress,
	}

	// Ротация логов ошибок
	errLogWriter := &lumberjack.Logger{
		Filename:   conf.ErrorPath,
		MaxSize:    conf.MaxSize,
		MaxBackups: conf.MaxBackups,
		MaxAge:     conf.MaxAge,
		Compress:   conf.Compress,
	}

	stdCore := zapcore.NewCore(
		encoder,
		zapcore.AddSync(stdLogWriter),
		logLevel,
	)

	errCore := zapcore.NewCore(
		encoder,
		zapcore.AddSync(errLogWriter),
		zap.ErrorLevel,
	)

	core := zapcore.NewTee(stdCore, errCore)

	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &ZapLogger{
		logZap: logger.Sugar(),
		logger: logger,
	}, nil
}

// RequestLog makes request log
func (logger *ZapLogger) RequestLog(method string, path string) {
	logger.logZap.Infow("incoming request",
		"method", method,
		"path", path,
	)
}

// ResponseLog makes response log
func (logger *ZapLogger) ResponseLog(status int, size int, duration time.Duration) {
	logger.logZap.Infow("send response with",
		"status", status,
		"size", size,
		"time", duration.String(),
	)
}

func (logger *ZapLogger) Info(mes string) {
	logger.logZap.Info(mes)
}

func (logger *ZapLogger) Infof(str string, arg ...any) {
	logger.logZap.Infof(str, arg...)
}

func (logger *ZapLogger) Error(mes string) {
	logger.logZap.Error(mes)
}

func (logger *ZapLogger) Errorf(str string, arg ...any) {
	logger.logZap.Errorf(str, arg...)
}

func (logger *ZapLogger) Debug(mes string) {
	logger.logZap.Debug(mes)
}

func (logger *ZapLogger) Debugf(str string, arg ...any) {
	logger.logZap.Debugf(str, arg...)
}

// Close закрывает логгер, сбрасывая все буферизованные логи
func (logger *ZapLogger) Close() error {
	return logger.logger.Sync()
}
