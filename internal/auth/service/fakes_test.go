package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/worktime/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/common/resilience"
	userdomain "github.com/AlibekovAA/worktime/backend/internal/user/domain"
)

const (
	testAccessSecret  = "access-secret-access-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
	testAccessTTL     = 15 * time.Minute
	testRefreshTTL    = 7 * 24 * time.Hour
	testMaxSessions   = 5
)

var (
	errFakeDuplicate   = errors.New("fake: unique violation")
	errFakeInvalidUUID = errors.New("fake: invalid input syntax for type uuid")
)

// memRefreshTokens mirrors the SQL semantics of PgRefreshTokenRepository.
type memRefreshTokens struct {
	mu           sync.Mutex
	seq          int64
	tokens       []authdomain.RefreshToken
	beforeRevoke func(id string)
}

func (m *memRefreshTokens) Create(_ context.Context, token authdomain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == token.TokenHash || t.ID == token.ID {
			return errors.New("fake: duplicate refresh token")
		}
	}
	m.seq++
	token.Seq = m.seq
	m.tokens = append(m.tokens, token)
	return nil
}

func (m *memRefreshTokens) FindByTokenHash(_ context.Context, hash string) (authdomain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return t, nil
		}
	}
	return authdomain.RefreshToken{}, authdomain.ErrRefreshTokenNotFound
}

func (m *memRefreshTokens) Revoke(_ context.Context, id string, replacedBy *string, at time.Time) (bool, error) {
	if m.beforeRevoke != nil {
		m.beforeRevoke(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tokens {
		t := &m.tokens[i]
		if t.ID == id && !t.IsRevoked {
			revokedAt := at
			t.IsRevoked = true
			t.RevokedAt = &revokedAt
			t.ReplacedByTokenID = replacedBy
			return true, nil
		}
	}
	return false, nil
}

func (m *memRefreshTokens) RevokeForUser(_ context.Context, userID, id string, at time.Time) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, errFakeInvalidUUID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tokens {
		t := &m.tokens[i]
		if t.ID == id && t.UserID == userID && t.IsActive(at) {
			revokedAt := at
			t.IsRevoked = true
			t.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memRefreshTokens) RevokeAllByUserID(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.tokens {
		t := &m.tokens[i]
		if t.UserID == userID && t.IsActive(at) {
			revokedAt := at
			t.IsRevoked = true
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (m *memRefreshTokens) ListActiveByUserID(_ context.Context, userID string, now time.Time) ([]authdomain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []authdomain.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(now) {
			active = append(active, t)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.After(active[j].CreatedAt)
		}
		return active[i].Seq > active[j].Seq
	})
	return active, nil
}

func (m *memRefreshTokens) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tokens[:0]
	var n int64
	for _, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) || (t.IsRevoked && t.RevokedAt != nil && t.RevokedAt.Before(cutoff)) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.tokens = kept
	return n, nil
}

func (m *memRefreshTokens) byID(id string) (authdomain.RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			return t, true
		}
	}
	return authdomain.RefreshToken{}, false
}

func (m *memRefreshTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type memBlacklist struct {
	mu      sync.Mutex
	entries map[string]authdomain.BlacklistEntry
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{entries: make(map[string]authdomain.BlacklistEntry)}
}

func (m *memBlacklist) Add(_ context.Context, entry authdomain.BlacklistEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.JTI]; ok {
		return false, nil
	}
	m.entries[entry.JTI] = entry
	return true, nil
}

func (m *memBlacklist) UpsertUserMarker(_ context.Context, entry authdomain.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[entry.JTI]; ok && existing.ExpiresAt.After(entry.ExpiresAt) {
		entry.ExpiresAt = existing.ExpiresAt
	}
	m.entries[entry.JTI] = entry
	return nil
}

func (m *memBlacklist) IsBlacklisted(_ context.Context, jti string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jti]
	return ok && e.ExpiresAt.After(now), nil
}

func (m *memBlacklist) IsRevokedForUser(_ context.Context, jti, markerJTI string, issuedAt, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[jti]; ok && e.ExpiresAt.After(now) {
		return true, nil
	}
	e, ok := m.entries[markerJTI]
	return ok && e.ExpiresAt.After(now) && e.CreatedAt.After(issuedAt), nil
}

func (m *memBlacklist) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, e := range m.entries {
		if e.ExpiresAt.Before(now) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}

func (m *memBlacklist) Stats(_ context.Context, now time.Time) (authdomain.BlacklistStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats authdomain.BlacklistStats
	for _, e := range m.entries {
		stats.Total++
		if e.ExpiresAt.After(now) {
			stats.Active++
		}
		switch e.Reason {
		case "logout":
			stats.Logout++
		case "security_logout":
			stats.SecurityLogout++
		}
	}
	return stats, nil
}

type memUsers struct {
	mu          sync.Mutex
	byID        map[userdomain.ID]userdomain.User
	companies   map[string]userdomain.Company
	findByEmail func(ctx context.Context, email string) (userdomain.User, error)
}

func newMemUsers() *memUsers {
	return &memUsers{
		byID:      make(map[userdomain.ID]userdomain.User),
		companies: make(map[string]userdomain.Company),
	}
}

func (m *memUsers) CreateWithCompany(_ context.Context, user userdomain.User, company userdomain.Company) (userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return userdomain.User{}, commonerrors.ErrEmailAlreadyExists.WithCause(errFakeDuplicate)
		}
	}
	m.companies[company.ID] = company
	user.CompanyID = company.ID
	user.CompanyName = company.Name
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (userdomain.User, error) {
	if m.findByEmail != nil {
		return m.findByEmail(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return userdomain.User{}, commonerrors.ErrUserNotFound
}

func (m *memUsers) FindByID(_ context.Context, id userdomain.ID) (userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return userdomain.User{}, commonerrors.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id userdomain.ID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return commonerrors.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id userdomain.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return commonerrors.ErrUserNotFound
	}
	u.LastLoginAt = &at
	m.byID[id] = u
	return nil
}

func (m *memUsers) delete(id userdomain.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *memUsers) counts() (users, companies int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), len(m.companies)
}

type testEnv struct {
	svc       *AuthService
	ledger    *TokenLedger
	issuer    *TokenIssuer
	users     *memUsers
	tokens    *memRefreshTokens
	blacklist *memBlacklist
	clock     *clock.MockClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewMockClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ids := commoncrypto.NewUUIDGenerator()
	log := logger.NewNop()
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Threshold:  100,
		Timeout:    50 * time.Millisecond,
		ResetAfter: time.Minute,
		Clock:      clk,
	})

	env := &testEnv{
		users:     newMemUsers(),
		tokens:    &memRefreshTokens{},
		blacklist: newMemBlacklist(),
		clock:     clk,
	}
	env.issuer = NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
	}, ids, clk)
	env.ledger = NewTokenLedger(env.tokens, env.blacklist, breaker, ids, testAccessTTL, clk, log)
	env.svc = NewAuthService(AuthServiceDeps{
		Users:              env.users,
		Ledger:             env.ledger,
		Issuer:             env.issuer,
		Hasher:             commoncrypto.NewBcryptHasher(bcrypt.MinCost),
		IDGenerator:        ids,
		Breaker:            breaker,
		Clock:              clk,
		MaxSessionsPerUser: testMaxSessions,
		Logger:             log,
	})
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	result, err := e.svc.Register(context.Background(), RegisterInput{
		Email:       email,
		Password:    password,
		CompanyName: "Acme",
	}, authdomain.RequestInfo{IPAddress: "10.0.0.1", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return result
}

func (e *testEnv) login(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	result, err := e.svc.Login(context.Background(), LoginInput{Email: email, Password: password},
		authdomain.RequestInfo{IPAddress: "10.0.0.1", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return result
}
