package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"

	"payout-controlplane/pkg/config"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLoggerDefaults(t *testing.T) {
	z, _ := observed()
	l := NewGormLogger(z, nil)
	require.Equal(t, gormlogger.Info, l.level)
	require.True(t, l.showSQL)
	require.Equal(t, defaultSlowQuery, l.slowThreshold)

	cfg := &config.Config{AppEnv: "production"}
	cfg.Database.SlowQuery = 50 * time.Millisecond
	l = NewGormLogger(z, cfg)
	require.Equal(t, gormlogger.Warn, l.level)
	require.False(t, l.showSQL)
	require.Equal(t, 50*time.Millisecond, l.slowThreshold)
}

func TestGormLoggerSlowQuery(t *testing.T) {
	z, logs := observed()
	cfg := &config.Config{AppEnv: "production"}
	cfg.Database.SlowQuery = 10 * time.Millisecond
	l := NewGormLogger(z, cfg)

	l.Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 1), nil)
	require.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn("UPDATE users SET balance = balance + 1", 1), nil)
	slow := logs.FilterMessage("slow query").All()
	require.Len(t, slow, 1)
	require.Equal(t, "gorm", slow[0].LoggerName)
	require.Equal(t, "UPDATE users SET balance = balance + 1", slow[0].ContextMap()["sql"])
}

func TestGormLoggerErrors(t *testing.T) {
	z, logs := observed()
	l := NewGormLogger(z, &config.Config{AppEnv: "production"})

	l.Trace(context.Background(), time.Now(), sqlFn("SELECT * FROM users", 0), gormlogger.ErrRecordNotFound)
	require.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), sqlFn("INSERT INTO journal_entries", 0), errors.New("constraint failed"))
	require.Len(t, logs.FilterMessage("query failed").All(), 1)

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sqlFn("INSERT INTO journal_entries", 0), errors.New("constraint failed"))
	require.Len(t, logs.FilterMessage("query failed").All(), 1)
}

func TestGormLoggerTagsTrace(t *testing.T) {
	z, logs := observed()
	l := NewGormLogger(z, nil)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4},
		SpanID:     trace.SpanID{5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)
	entries := logs.FilterMessage("query").All()
	require.Len(t, entries, 1)
	require.Equal(t, sc.TraceID().String(), entries[0].ContextMap()["trace_id"])
	require.Equal(t, sc.SpanID().String(), entries[0].ContextMap()["span_id"])
}
