package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type traceKey struct{}

type traceState struct {
	sql   string
	args  []any
	start time.Time
}

// SlowQueryLogger is a pgx tracer that logs statements whose execution
// exceeds the threshold, with their SQL and arguments.
type SlowQueryLogger struct {
	logger    *zap.Logger
	threshold time.Duration
}

func NewSlowQueryLogger(logger *zap.Logger, threshold time.Duration) *SlowQueryLogger {
	return &SlowQueryLogger{logger: logger, threshold: threshold}
}

func (s *SlowQueryLogger) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, &traceState{
		sql:   data.SQL,
		args:  data.Args,
		start: time.Now(),
	})
}

func (s *SlowQueryLogger) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	state, ok := ctx.Value(traceKey{}).(*traceState)
	if !ok {
		return
	}
	elapsed := time.Since(state.start)
	if elapsed <= s.threshold {
		return
	}
	s.logger.Warn("slow query",
		zap.Duration("duration", elapsed),
		zap.String("sql", state.sql),
		zap.Any("args", state.args),
	)
}
