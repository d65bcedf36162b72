package domain

import (
	"errors"
	"time"
)

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

// RefreshToken is one ledger record. Only the hash of the raw token is kept.
// ReplacedByTokenID points forward to the record created when this one was
// rotated; it is never followed backwards.
type RefreshToken struct {
	ID                string
	Seq               int64
	UserID            string
	TokenHash         string
	ExpiresAt         time.Time
	DeviceInfo        string
	IPAddress         string
	IsRevoked         bool
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	CreatedAt         time.Time
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(now)
}

func (t RefreshToken) Session() Session {
	device := t.DeviceInfo
	if device == "" {
		device = DefaultDeviceInfo
	}
	return Session{
		ID:         t.ID,
		DeviceInfo: device,
		IPAddress:  t.IPAddress,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
	}
}

const DefaultDeviceInfo = "unknown device"

type Session struct {
	ID         string
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	IsCurrent  bool
}

// RequestInfo is passed through from the transport as opaque descriptors.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}
