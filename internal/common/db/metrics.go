package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	"github.com/AlibekovAA/worktime/backend/internal/observability/metrics"
)

type poolStater interface {
	Stat() *pgxpool.Stat
}

// StartPoolMetrics samples pool statistics in the background until ctx is done.
func StartPoolMetrics(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	if interval <= 0 {
		interval = constants.DBPoolMetricsInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		recordPoolStats(pool)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				recordPoolStats(pool)
			}
		}
	}()
}

func recordPoolStats(pool poolStater) {
	stats := pool.Stat()
	metrics.DBPoolConnections.WithLabelValues("acquired").Set(float64(stats.AcquiredConns()))
	metrics.DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	metrics.DBPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns()))
	metrics.DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}
