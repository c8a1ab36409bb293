package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSlowQuery is the duration above which a query is logged as slow.
const DefaultSlowQuery = 200 * time.Millisecond

// GormZapLogger routes GORM's logging through zap.
type GormZapLogger struct {
	ZapLogger *zap.Logger
	LogLevel  logger.LogLevel
	SlowQuery time.Duration
}

// NewGormZapLogger creates a GormZapLogger that logs at level.
func NewGormZapLogger(zapLogger *zap.Logger, level logger.LogLevel) *GormZapLogger {
	return &GormZapLogger{
		ZapLogger: zapLogger.Named("gorm"),
		LogLevel:  level,
		SlowQuery: DefaultSlowQuery,
	}
}

// LogMode sets the log level.
func (l *GormZapLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.ZapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.ZapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.ZapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs every statement: failures at Error, slow queries at Warn and
// the rest at Debug so session writes do not flood the info log.
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}

	switch {
	case err != nil && l.LogLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.ZapLogger.Error("Query failed", append(fields, zap.Error(err))...)
	case l.SlowQuery > 0 && elapsed > l.SlowQuery && l.LogLevel >= logger.Warn:
		l.ZapLogger.Warn("Slow query", fields...)
	case l.LogLevel >= logger.Info:
		l.ZapLogger.Debug("Query", fields...)
	}
}
