// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"ota-console/internal/config"
)

// NewLogger builds the process logger. The console writes its prompt and
// device replies to stdout, so logs default to stderr.
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	sink, err := logSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log output: %w", err)
	}

	core := zapcore.NewCore(logEncoder(cfg.Format), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func logEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return zapcore.NewJSONEncoder(encoderConfig)
}

// logSink maps the output setting to a writer. Anything other than stdout
// or stderr is a file path rotated by lumberjack.
func logSink(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr", "":
		return zapcore.Lock(os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}), nil
}

// DeviceLogger scopes log entries to one device link
type DeviceLogger struct {
	*zap.Logger
}

// NewDeviceLogger creates a device-specific logger
func NewDeviceLogger(baseLogger *zap.Logger, address, transport string) *DeviceLogger {
	return &DeviceLogger{
		Logger: baseLogger.With(
			zap.String("device", address),
			zap.String("transport", transport),
		),
	}
}

// LogConnection logs an open or close of the device link
func (dl *DeviceLogger) LogConnection(action string, success bool, err error) {
	if err != nil {
		dl.Error("Device link "+action+" failed", zap.Error(err))
		return
	}
	dl.Info("Device link "+action, zap.Bool("success", success))
}

// LogAuth logs the outcome of an AUTH exchange. A refusal is a warning only.
func (dl *DeviceLogger) LogAuth(reply string, accepted bool) {
	if accepted {
		dl.Debug("Device accepted token", zap.String("reply", reply))
		return
	}
	dl.Warn("Device did not accept token", zap.String("reply", reply))
}

// OperationLogger tags every entry of one firmware operation with its id
// and measures how long it took
type OperationLogger struct {
	logger    *zap.Logger
	startTime time.Time
}

// NewOperationLogger creates an operation-specific logger
func NewOperationLogger(baseLogger *zap.Logger, operationType, operationID string) *OperationLogger {
	return &OperationLogger{
		logger: baseLogger.With(
			zap.String("operation_type", operationType),
			zap.String("operation_id", operationID),
		),
		startTime: time.Now(),
	}
}

// Start logs operation start
func (ol *OperationLogger) Start(fields ...zap.Field) {
	ol.logger.Info("Operation started", fields...)
}

// Success logs successful operation completion
func (ol *OperationLogger) Success(fields ...zap.Field) {
	ol.logger.Info("Operation completed", append(fields, zap.Duration("duration", time.Since(ol.startTime)))...)
}

// Error logs operation failure
func (ol *OperationLogger) Error(err error, fields ...zap.Field) {
	ol.logger.Error("Operation failed", append(fields, zap.Duration("duration", time.Since(ol.startTime)), zap.Error(err))...)
}

// Warn logs a problem that does not fail the operation
func (ol *OperationLogger) Warn(message string, err error, fields ...zap.Field) {
	ol.logger.Warn(message, append(fields, zap.Duration("elapsed", time.Since(ol.startTime)), zap.Error(err))...)
}

// CloseLogger flushes buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
