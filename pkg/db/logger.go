package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payout-controlplane/pkg/config"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger routes gorm statements to zap, tagged with the trace of the
// request that issued them.
type GormLogger struct {
	zap           *zap.Logger
	level         gormlogger.LogLevel
	showSQL       bool
	slowThreshold time.Duration
}

// NewGormLogger derives level and slow threshold from DATABASE config.
// Production logs warnings only and never echoes SQL.
func NewGormLogger(z *zap.Logger, cfg *config.Config) *GormLogger {
	l := &GormLogger{
		zap:           z.Named("gorm"),
		level:         gormlogger.Info,
		showSQL:       true,
		slowThreshold: defaultSlowQuery,
	}
	if cfg == nil {
		return l
	}
	if cfg.AppEnv == "production" {
		l.level = gormlogger.Warn
		l.showSQL = false
	}
	if cfg.Database.SlowQuery > 0 {
		l.slowThreshold = cfg.Database.SlowQuery
	}
	return l
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.from(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.from(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.from(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("file", utils.FileWithLineNum()),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.from(ctx).Error("query failed", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.from(ctx).Warn("slow query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormlogger.Info && l.showSQL:
		l.from(ctx).Info("query", fields...)
	}
}

func (l *GormLogger) from(ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l.zap
	}
	return l.zap.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
