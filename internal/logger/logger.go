package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zeroep-backend/internal/config"
)

// Logger é o logger estruturado da aplicação
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger cria o logger a partir de LOG_LEVEL e LOG_DEVELOPMENT
func NewLogger(cfg *config.Config) (*Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: l.Sugar()}, nil
}

// Nop descarta tudo. Usado nos testes.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}
