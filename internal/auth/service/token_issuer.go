package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/worktime/backend/internal/common/crypto"
)

var (
	ErrTokenKindMismatch     = errors.New("token kind mismatch")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("token malformed")
)

type TokenIssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenSubject is what gets embedded into both tokens of a pair.
type TokenSubject struct {
	UserID    string
	Email     string
	CompanyID string
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessJTI        string
	RefreshJTI       string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

type Claims struct {
	UserID     string               `json:"userId"`
	Email      string               `json:"email"`
	CompanyID  string               `json:"companyId"`
	DeviceInfo string               `json:"deviceInfo,omitempty"`
	Kind       authdomain.TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenIssuer signs access tokens and refresh tokens with separate keys. It
// has no side effects beyond signing.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	idGenerator   commoncrypto.IDGenerator
	clock         clock.Clock
}

func NewTokenIssuer(cfg TokenIssuerConfig, idGenerator commoncrypto.IDGenerator, clk clock.Clock) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		idGenerator:   idGenerator,
		clock:         clk,
	}
}

func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.accessTTL
}

func (ti *TokenIssuer) Issue(subject TokenSubject, deviceInfo string) (TokenPair, error) {
	now := ti.clock.Now()

	access, accessClaims, err := ti.sign(subject, deviceInfo, authdomain.KindAccess, now, ti.accessTTL, ti.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, refreshClaims, err := ti.sign(subject, deviceInfo, authdomain.KindRefresh, now, ti.refreshTTL, ti.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	incrementAccessTokensIssued()

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessJTI:        accessClaims.ID,
		RefreshJTI:       refreshClaims.ID,
		ExpiresAt:        accessClaims.ExpiresAtTime(),
		RefreshExpiresAt: refreshClaims.ExpiresAtTime(),
	}, nil
}

func (ti *TokenIssuer) sign(
	subject TokenSubject,
	deviceInfo string,
	kind authdomain.TokenKind,
	now time.Time,
	ttl time.Duration,
	secret []byte,
) (string, *Claims, error) {
	jti, err := ti.idGenerator.NewID()
	if err != nil {
		return "", nil, err
	}

	claims := &Claims{
		UserID:     subject.UserID,
		Email:      subject.Email,
		CompanyID:  subject.CompanyID,
		DeviceInfo: deviceInfo,
		Kind:       kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify checks the embedded kind first, so a token of the wrong kind is
// reported as such even though it would also fail the other key's signature.
func (ti *TokenIssuer) Verify(token string, expected authdomain.TokenKind) (*Claims, error) {
	var peek Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if peek.Kind != expected {
		return nil, ErrTokenKindMismatch
	}

	secret := ti.accessSecret
	if expected == authdomain.KindRefresh {
		secret = ti.refreshSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.clock.Now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrTokenSignatureInvalid
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or jti", ErrTokenMalformed)
	}
	return claims, nil
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenKindMismatch):
		return "kind_mismatch"
	case errors.Is(err, ErrTokenExpired):
		return RejectExpired
	case errors.Is(err, ErrTokenSignatureInvalid):
		return RejectSignature
	default:
		return RejectMalformed
	}
}
