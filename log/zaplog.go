package log

import (
	"go.uber.org/zap"
)

// ZapLogWriter forwards records to a zap logger as structured fields.
type ZapLogWriter struct {
	logger *zap.Logger
}

func NewZapLogWriter(logger *zap.Logger) *ZapLogWriter {
	z := new(ZapLogWriter)
	if logger == nil {
		logger = zap.NewNop()
	}
	z.logger = logger
	return z
}

func NewProductionZapLogWriter() (*ZapLogWriter, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogWriter(logger), nil
}

func (z *ZapLogWriter) Write(info *LogInfo) {
	if info == nil {
		return
	}
	fields := []zap.Field{
		zap.String("category", info.Category),
		zap.String("created", info.Created),
	}
	if info.Source != "" {
		fields = append(fields, zap.String("source", info.Source))
	}
	for _, f := range info.Fields {
		fields = append(fields, zap.String(f.Key, f.Value))
	}
	switch info.Level {
	case DEBUG:
		z.logger.Debug(info.Message, fields...)
	case INFO:
		z.logger.Info(info.Message, fields...)
	case WARN:
		z.logger.Warn(info.Message, fields...)
	default:
		// FATAL is recorded at error level; the scheduler decides itself whether to stop.
		z.logger.Error(info.Message, fields...)
	}
}

func (z *ZapLogWriter) Close() {
	z.logger.Sync()
}
