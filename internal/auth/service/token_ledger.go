package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	authrepo "github.com/AlibekovAA/worktime/backend/internal/auth/repository"
	"github.com/AlibekovAA/worktime/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/worktime/backend/internal/common/crypto"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/common/resilience"
)

const (
	revokeCauseRotation   = "rotation"
	revokeCauseLogout     = "logout"
	revokeCauseLogoutAll  = "logout_all"
	revokeCauseSessionCap = "session_cap"
	revokeCauseSession    = "session"
	revokeCauseReplay     = "replay"
)

type RecordInput struct {
	UserID     string
	RawToken   string
	ExpiresAt  time.Time
	DeviceInfo string
	IPAddress  string
}

type PurgeResult struct {
	RefreshTokens    int64
	BlacklistEntries int64
}

// TokenLedger keeps refresh-token records and the access-token blacklist.
// Every store call goes through the circuit breaker, which also bounds it
// with the store timeout. Nothing is cached between calls.
type TokenLedger struct {
	refreshTokens authrepo.RefreshTokenRepository
	blacklist     authrepo.BlacklistRepository
	breaker       resilience.CircuitBreakerInterface
	idGenerator   commoncrypto.IDGenerator
	clock         clock.Clock
	accessTTL     time.Duration
	log           *logger.Logger
}

func NewTokenLedger(
	refreshTokens authrepo.RefreshTokenRepository,
	blacklist authrepo.BlacklistRepository,
	breaker resilience.CircuitBreakerInterface,
	idGenerator commoncrypto.IDGenerator,
	accessTTL time.Duration,
	clk clock.Clock,
	log *logger.Logger,
) *TokenLedger {
	return &TokenLedger{
		refreshTokens: refreshTokens,
		blacklist:     blacklist,
		breaker:       breaker,
		idGenerator:   idGenerator,
		clock:         clk,
		accessTTL:     accessTTL,
		log:           log,
	}
}

func (l *TokenLedger) Record(ctx context.Context, input RecordInput) (authdomain.RefreshToken, error) {
	id, err := l.idGenerator.NewID()
	if err != nil {
		return authdomain.RefreshToken{}, err
	}

	token := authdomain.RefreshToken{
		ID:         id,
		UserID:     input.UserID,
		TokenHash:  commoncrypto.HashToken(input.RawToken),
		ExpiresAt:  input.ExpiresAt,
		DeviceInfo: input.DeviceInfo,
		IPAddress:  input.IPAddress,
		CreatedAt:  l.clock.Now(),
	}

	err = l.breaker.Call(ctx, func(ctx context.Context) error {
		return l.refreshTokens.Create(ctx, token)
	})
	if err != nil {
		return authdomain.RefreshToken{}, err
	}

	incrementRefreshTokensIssued()
	return token, nil
}

// LookupActive resolves a raw refresh token. For revoked and expired records
// the record is returned alongside the error so callers can log its owner.
func (l *TokenLedger) LookupActive(ctx context.Context, rawToken string) (authdomain.RefreshToken, error) {
	hash := commoncrypto.HashToken(rawToken)

	var (
		token authdomain.RefreshToken
		found bool
	)
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		t, err := l.refreshTokens.FindByTokenHash(ctx, hash)
		if errors.Is(err, authdomain.ErrRefreshTokenNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		token, found = t, true
		return nil
	})
	if err != nil {
		return authdomain.RefreshToken{}, err
	}

	switch {
	case !found:
		return authdomain.RefreshToken{}, authdomain.ErrRefreshTokenNotFound
	case token.IsRevoked:
		return token, authdomain.ErrRefreshTokenRevoked
	case token.IsExpired(l.clock.Now()):
		return token, authdomain.ErrRefreshTokenExpired
	}
	return token, nil
}

// Revoke reports whether this call moved the record to revoked. A missing or
// already revoked record is a no-op.
func (l *TokenLedger) Revoke(ctx context.Context, id string, replacedBy *string) (bool, error) {
	return l.revoke(ctx, id, replacedBy, revokeCauseLogout)
}

func (l *TokenLedger) revoke(ctx context.Context, id string, replacedBy *string, cause string) (bool, error) {
	var changed bool
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		changed, err = l.refreshTokens.Revoke(ctx, id, replacedBy, l.clock.Now())
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		addRefreshTokensRevoked(cause, 1)
	}
	return changed, nil
}

func (l *TokenLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		count, err = l.refreshTokens.RevokeAllByUserID(ctx, userID, l.clock.Now())
		return err
	})
	if err != nil {
		return 0, err
	}
	addRefreshTokensRevoked(revokeCauseLogoutAll, count)
	return count, nil
}

// EnforceSessionCap leaves at most maxActive-1 active records so the session
// about to be created fits under the cap. The newest records survive.
func (l *TokenLedger) EnforceSessionCap(ctx context.Context, userID string, maxActive int) (int, error) {
	if maxActive <= 0 {
		return 0, nil
	}

	active, err := l.listActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(active) < maxActive {
		return 0, nil
	}

	revoked := 0
	for _, token := range active[maxActive-1:] {
		changed, err := l.revoke(ctx, token.ID, nil, revokeCauseSessionCap)
		if err != nil {
			return revoked, err
		}
		if changed {
			revoked++
		}
	}

	if revoked > 0 {
		l.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"revoked": revoked,
			"action":  "session_cap_enforced",
		}).Info("oldest sessions revoked to respect session cap")
	}
	return revoked, nil
}

func (l *TokenLedger) listActive(ctx context.Context, userID string) ([]authdomain.RefreshToken, error) {
	var tokens []authdomain.RefreshToken
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		tokens, err = l.refreshTokens.ListActiveByUserID(ctx, userID, l.clock.Now())
		return err
	})
	return tokens, err
}

func (l *TokenLedger) ActiveSessions(ctx context.Context, userID string) ([]authdomain.Session, error) {
	tokens, err := l.listActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]authdomain.Session, 0, len(tokens))
	for _, token := range tokens {
		sessions = append(sessions, token.Session())
	}
	return sessions, nil
}

// RevokeSession only touches a record owned by userID. A malformed sessionID
// matches nothing and never reaches the store.
func (l *TokenLedger) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return false, nil
	}

	var changed bool
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		changed, err = l.refreshTokens.RevokeForUser(ctx, userID, sessionID, l.clock.Now())
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		addRefreshTokensRevoked(revokeCauseSession, 1)
	}
	return changed, nil
}

// BlacklistAccessToken is a no-op for an empty or already listed jti.
func (l *TokenLedger) BlacklistAccessToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	if jti == "" {
		return nil
	}

	entry := authdomain.BlacklistEntry{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		CreatedAt: l.clock.Now(),
	}

	var inserted bool
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = l.blacklist.Add(ctx, entry)
		return err
	})
	if err != nil {
		return err
	}
	if inserted {
		incrementAccessTokensBlacklisted(reason)
	}
	return nil
}

// BlacklistUser writes the per-user marker. Any access token of the user
// issued in an earlier second is treated as revoked until the marker expires,
// which is one access TTL from now. The cutoff is truncated to the second
// because iat carries no sub-second part.
func (l *TokenLedger) BlacklistUser(ctx context.Context, userID, reason string) error {
	now := l.clock.Now()
	entry := authdomain.BlacklistEntry{
		JTI:       authdomain.UserMarkerJTI(userID),
		UserID:    userID,
		ExpiresAt: now.Add(l.accessTTL),
		Reason:    reason,
		CreatedAt: now.Truncate(time.Second),
	}

	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		return l.blacklist.UpsertUserMarker(ctx, entry)
	})
	if err != nil {
		return err
	}
	incrementAccessTokensBlacklisted(reason)
	return nil
}

func (l *TokenLedger) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var listed bool
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		listed, err = l.blacklist.IsBlacklisted(ctx, jti, l.clock.Now())
		return err
	})
	return listed, err
}

// IsAccessTokenRevoked checks the exact jti and the owner's logout marker.
func (l *TokenLedger) IsAccessTokenRevoked(ctx context.Context, claims *Claims) (bool, error) {
	incrementJWTRevokedChecks()

	var revoked bool
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = l.blacklist.IsRevokedForUser(
			ctx,
			claims.ID,
			authdomain.UserMarkerJTI(claims.UserID),
			claims.IssuedAtTime(),
			l.clock.Now(),
		)
		return err
	})
	return revoked, err
}

// PurgeExpired is idempotent and safe to run from several instances.
func (l *TokenLedger) PurgeExpired(ctx context.Context, retention time.Duration) (PurgeResult, error) {
	now := l.clock.Now()
	var result PurgeResult

	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		result.RefreshTokens, err = l.refreshTokens.DeleteExpired(ctx, now.Add(-retention))
		return err
	})
	if err != nil {
		return result, err
	}

	err = l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		result.BlacklistEntries, err = l.blacklist.DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return result, err
	}

	recordPurge(result)
	return result, nil
}

func (l *TokenLedger) BlacklistStats(ctx context.Context) (authdomain.BlacklistStats, error) {
	var stats authdomain.BlacklistStats
	err := l.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		stats, err = l.blacklist.Stats(ctx, l.clock.Now())
		return err
	})
	return stats, err
}
