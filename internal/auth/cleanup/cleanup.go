package cleanup

import (
	"context"
	"time"

	"github.com/AlibekovAA/worktime/backend/internal/auth/service"
	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
)

type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (service.PurgeResult, error)
}

// StartTokenPurge blocks until ctx is done, purging the ledger every interval.
// A non-positive retention falls back to constants.DefaultTokenRetention.
func StartTokenPurge(ctx context.Context, purger Purger, interval, retention time.Duration, log *logger.Logger) {
	if interval <= 0 {
		log.Warn("token purge disabled: non-positive interval")
		return
	}
	if retention <= 0 {
		retention = constants.DefaultTokenRetention
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeOnce(ctx, purger, retention, log)
		}
	}
}

func purgeOnce(ctx context.Context, purger Purger, retention time.Duration, log *logger.Logger) {
	result, err := purger.PurgeExpired(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			log.Errorf("token purge failed: %v", err)
		}
		return
	}
	if result.RefreshTokens > 0 || result.BlacklistEntries > 0 {
		log.WithFields(ctx, logger.Fields{
			"refresh_tokens":    result.RefreshTokens,
			"blacklist_entries": result.BlacklistEntries,
			"action":            "token_purge",
		}).Info("token purge completed")
	}
}
