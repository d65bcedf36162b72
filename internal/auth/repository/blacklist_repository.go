package repository

import (
	"context"
	"time"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/common/db"
)

type BlacklistRepository interface {
	Add(ctx context.Context, entry authdomain.BlacklistEntry) (bool, error)
	UpsertUserMarker(ctx context.Context, entry authdomain.BlacklistEntry) error
	IsBlacklisted(ctx context.Context, jti string, now time.Time) (bool, error)
	IsRevokedForUser(ctx context.Context, jti, markerJTI string, issuedAt, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (authdomain.BlacklistStats, error)
}

type PgBlacklistRepository struct {
	db db.Querier
}

func NewPgBlacklistRepository(q db.Querier) *PgBlacklistRepository {
	return &PgBlacklistRepository{db: q}
}

// Add inserts a jti; a second insert of the same jti is a no-op and reports false.
func (r *PgBlacklistRepository) Add(ctx context.Context, entry authdomain.BlacklistEntry) (bool, error) {
	start := time.Now()
	tag, err := r.db.Exec(
		ctx,
		`INSERT INTO token_blacklist (jti, user_id, expires_at, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (jti) DO NOTHING`,
		entry.JTI,
		entry.UserID,
		entry.ExpiresAt,
		entry.Reason,
		entry.CreatedAt,
	)
	if err != nil {
		return false, db.HandleExecError(err, "insert blacklist entry", start)
	}
	db.MeasureQueryDuration("insert blacklist entry", start)
	return tag.RowsAffected() == 1, nil
}

// UpsertUserMarker moves the per-user cutoff forward on every call.
func (r *PgBlacklistRepository) UpsertUserMarker(ctx context.Context, entry authdomain.BlacklistEntry) error {
	start := time.Now()
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO token_blacklist (jti, user_id, expires_at, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (jti) DO UPDATE
		 SET expires_at = GREATEST(token_blacklist.expires_at, EXCLUDED.expires_at),
		     reason = EXCLUDED.reason,
		     created_at = EXCLUDED.created_at`,
		entry.JTI,
		entry.UserID,
		entry.ExpiresAt,
		entry.Reason,
		entry.CreatedAt,
	)
	return db.HandleExecError(err, "upsert blacklist user marker", start)
}

func (r *PgBlacklistRepository) IsBlacklisted(ctx context.Context, jti string, now time.Time) (bool, error) {
	start := time.Now()
	row := r.db.QueryRow(
		ctx,
		`SELECT EXISTS(
			SELECT 1 FROM token_blacklist
			WHERE jti = $1 AND expires_at > $2
		)`,
		jti,
		now,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, db.HandleQueryError(err, nil, "check blacklist entry", start)
	}
	db.MeasureQueryDuration("check blacklist entry", start)
	return exists, nil
}

// IsRevokedForUser matches either the exact jti or a live user marker whose
// cutoff is strictly after the token was issued.
func (r *PgBlacklistRepository) IsRevokedForUser(ctx context.Context, jti, markerJTI string, issuedAt, now time.Time) (bool, error) {
	start := time.Now()
	row := r.db.QueryRow(
		ctx,
		`SELECT EXISTS(
			SELECT 1 FROM token_blacklist
			WHERE expires_at > $3
			  AND (jti = $1 OR (jti = $2 AND created_at > $4))
		)`,
		jti,
		markerJTI,
		now,
		issuedAt,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, db.HandleQueryError(err, nil, "check blacklist for user", start)
	}
	db.MeasureQueryDuration("check blacklist for user", start)
	return exists, nil
}

func (r *PgBlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM token_blacklist WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, db.HandleExecError(err, "delete expired blacklist entries", start)
	}
	db.MeasureQueryDuration("delete expired blacklist entries", start)
	return tag.RowsAffected(), nil
}

func (r *PgBlacklistRepository) Stats(ctx context.Context, now time.Time) (authdomain.BlacklistStats, error) {
	start := time.Now()
	row := r.db.QueryRow(
		ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expires_at > $1),
			COUNT(*) FILTER (WHERE reason = 'logout'),
			COUNT(*) FILTER (WHERE reason = 'security_logout')
		 FROM token_blacklist`,
		now,
	)

	var stats authdomain.BlacklistStats
	if err := row.Scan(&stats.Total, &stats.Active, &stats.Logout, &stats.SecurityLogout); err != nil {
		return authdomain.BlacklistStats{}, db.HandleQueryError(err, nil, "blacklist stats", start)
	}
	db.MeasureQueryDuration("blacklist stats", start)
	return stats, nil
}
