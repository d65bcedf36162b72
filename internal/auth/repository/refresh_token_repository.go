package repository

import (
	"context"
	"time"

	pgx "github.com/jackc/pgx/v4"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/common/db"
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token authdomain.RefreshToken) error
	FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error)
	Revoke(ctx context.Context, id string, replacedBy *string, at time.Time) (bool, error)
	RevokeForUser(ctx context.Context, userID, id string, at time.Time) (bool, error)
	RevokeAllByUserID(ctx context.Context, userID string, at time.Time) (int64, error)
	ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]authdomain.RefreshToken, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type PgRefreshTokenRepository struct {
	db db.Querier
}

func NewPgRefreshTokenRepository(q db.Querier) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{db: q}
}

const refreshTokenColumns = `id, seq, user_id, token_hash, expires_at, device_info, ip_address,
	is_revoked, revoked_at, replaced_by_token_id, created_at`

func (r *PgRefreshTokenRepository) Create(ctx context.Context, token authdomain.RefreshToken) error {
	start := time.Now()
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, device_info, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.DeviceInfo,
		token.IPAddress,
		token.CreatedAt,
	)
	return db.HandleExecError(err, "create refresh token", start)
}

func (r *PgRefreshTokenRepository) FindByTokenHash(ctx context.Context, hash string) (authdomain.RefreshToken, error) {
	start := time.Now()
	row := r.db.QueryRow(
		ctx,
		`SELECT `+refreshTokenColumns+`
		 FROM refresh_tokens
		 WHERE token_hash = $1`,
		hash,
	)

	token, err := scanRefreshToken(row)
	if err := db.HandleQueryError(err, authdomain.ErrRefreshTokenNotFound, "find refresh token", start); err != nil {
		return authdomain.RefreshToken{}, err
	}
	return token, nil
}

// Revoke is a compare-and-set on is_revoked: it reports true only for the
// call that performed the transition.
func (r *PgRefreshTokenRepository) Revoke(ctx context.Context, id string, replacedBy *string, at time.Time) (bool, error) {
	start := time.Now()
	tag, err := r.db.Exec(
		ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = TRUE, revoked_at = $2, replaced_by_token_id = $3
		 WHERE id = $1 AND is_revoked = FALSE`,
		id,
		at,
		replacedBy,
	)
	if err != nil {
		return false, db.HandleExecError(err, "revoke refresh token", start)
	}
	db.MeasureQueryDuration("revoke refresh token", start)
	return tag.RowsAffected() == 1, nil
}

func (r *PgRefreshTokenRepository) RevokeForUser(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	start := time.Now()
	tag, err := r.db.Exec(
		ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = TRUE, revoked_at = $3
		 WHERE id = $1 AND user_id = $2 AND is_revoked = FALSE AND expires_at > $3`,
		id,
		userID,
		at,
	)
	if err != nil {
		return false, db.HandleExecError(err, "revoke session refresh token", start)
	}
	db.MeasureQueryDuration("revoke session refresh token", start)
	return tag.RowsAffected() == 1, nil
}

func (r *PgRefreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID string, at time.Time) (int64, error) {
	start := time.Now()
	tag, err := r.db.Exec(
		ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = TRUE, revoked_at = $2
		 WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2`,
		userID,
		at,
	)
	if err != nil {
		return 0, db.HandleExecError(err, "revoke all refresh tokens", start)
	}
	db.MeasureQueryDuration("revoke all refresh tokens", start)
	return tag.RowsAffected(), nil
}

// ListActiveByUserID returns active records newest first; seq breaks ties
// between records created in the same instant.
func (r *PgRefreshTokenRepository) ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]authdomain.RefreshToken, error) {
	start := time.Now()
	rows, err := r.db.Query(
		ctx,
		`SELECT `+refreshTokenColumns+`
		 FROM refresh_tokens
		 WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2
		 ORDER BY created_at DESC, seq DESC`,
		userID,
		now,
	)
	if err != nil {
		return nil, db.HandleQueryError(err, nil, "list active refresh tokens", start)
	}
	defer rows.Close()

	var tokens []authdomain.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, db.HandleQueryError(err, nil, "scan active refresh tokens", start)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, db.HandleQueryError(err, nil, "list active refresh tokens", start)
	}
	db.MeasureQueryDuration("list active refresh tokens", start)
	return tokens, nil
}

// DeleteExpired removes records that expired, or were revoked, before cutoff.
func (r *PgRefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM refresh_tokens
		 WHERE expires_at < $1 OR (is_revoked = TRUE AND revoked_at < $1)`,
		cutoff,
	)
	if err != nil {
		return 0, db.HandleExecError(err, "delete expired refresh tokens", start)
	}
	db.MeasureQueryDuration("delete expired refresh tokens", start)
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (authdomain.RefreshToken, error) {
	var token authdomain.RefreshToken
	err := row.Scan(
		&token.ID,
		&token.Seq,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.DeviceInfo,
		&token.IPAddress,
		&token.IsRevoked,
		&token.RevokedAt,
		&token.ReplacedByTokenID,
		&token.CreatedAt,
	)
	return token, err
}
