package service

import (
	"context"
	"errors"
	"strings"
	"time"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/common/clock"
	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/worktime/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	"github.com/AlibekovAA/worktime/backend/internal/common/resilience"
	userdomain "github.com/AlibekovAA/worktime/backend/internal/user/domain"
	userrepo "github.com/AlibekovAA/worktime/backend/internal/user/repository"
)

type AuthServiceDeps struct {
	Users              userrepo.Repository
	Ledger             *TokenLedger
	Issuer             *TokenIssuer
	Hasher             commoncrypto.PasswordHasher
	IDGenerator        commoncrypto.IDGenerator
	Breaker            resilience.CircuitBreakerInterface
	Clock              clock.Clock
	MaxSessionsPerUser int
	Logger             *logger.Logger
}

type AuthService struct {
	users       userrepo.Repository
	ledger      *TokenLedger
	issuer      *TokenIssuer
	hasher      commoncrypto.PasswordHasher
	idGenerator commoncrypto.IDGenerator
	breaker     resilience.CircuitBreakerInterface
	clock       clock.Clock
	maxSessions int
	log         *logger.Logger
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	return &AuthService{
		users:       deps.Users,
		ledger:      deps.Ledger,
		issuer:      deps.Issuer,
		hasher:      deps.Hasher,
		idGenerator: deps.IDGenerator,
		breaker:     deps.Breaker,
		clock:       deps.Clock,
		maxSessions: deps.MaxSessionsPerUser,
		log:         deps.Logger,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	CompanyName string
}

type LoginInput struct {
	Email    string
	Password string
}

type LogoutInput struct {
	RefreshToken string
	AccessToken  string
}

type Tokens struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

type AuthResult struct {
	User      userdomain.Summary
	Tokens    Tokens
	SessionID string
}

// LogoutResult reports what logout managed to revoke; it is for logging only.
type LogoutResult struct {
	RefreshTokenRevoked    bool
	AccessTokenBlacklisted bool
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput, info authdomain.RequestInfo) (result *AuthResult, err error) {
	defer func() { recordOperation("register", err) }()

	input.Email = normalizeEmail(input.Email)
	input.CompanyName = strings.TrimSpace(input.CompanyName)

	if err := validateRegistration(input); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"email":  input.Email,
			"action": "register_validation_failed",
		}).Warnf("register validation failed: %v", err)
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, commonerrors.ErrInternalError.WithCause(err)
	}

	userID, err := s.idGenerator.NewID()
	if err != nil {
		return nil, commonerrors.ErrInternalError.WithCause(err)
	}
	companyID, err := s.idGenerator.NewID()
	if err != nil {
		return nil, commonerrors.ErrInternalError.WithCause(err)
	}

	now := s.clock.Now()
	company := userdomain.Company{ID: companyID, Name: input.CompanyName, IsActive: true, CreatedAt: now}
	user := userdomain.User{
		ID:           userdomain.ID(userID),
		Email:        input.Email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.CreateWithCompany(ctx, user, company)
		return err
	})
	if err != nil {
		if errors.Is(err, commonerrors.ErrEmailAlreadyExists) {
			s.log.WithFields(ctx, logger.Fields{
				"email":  input.Email,
				"action": "register_email_exists",
			}).Warn("register failed: email already exists")
			return nil, ErrEmailAlreadyExists
		}
		return nil, s.storeFailure(ctx, "register_create_failed", err)
	}

	result, err = s.startSession(ctx, user, info)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id":    string(user.ID),
		"company_id": user.CompanyID,
		"action":     "register_success",
	}).Info("register success")
	return result, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput, info authdomain.RequestInfo) (result *AuthResult, err error) {
	defer func() { recordOperation("login", err) }()

	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var user userdomain.User
	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"email":     email,
				"client_ip": info.IPAddress,
				"action":    "login_user_not_found",
			}).Warn("login failed: unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, s.storeFailure(ctx, "login_fetch_failed", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id":   string(user.ID),
			"client_ip": info.IPAddress,
			"action":    "login_invalid_password",
		}).Warn("login failed: invalid password")
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.users.UpdateLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		return nil, s.storeFailure(ctx, "login_update_last_login_failed", err)
	}
	user.LastLoginAt = &now

	if _, err := s.ledger.EnforceSessionCap(ctx, string(user.ID), s.maxSessions); err != nil {
		return nil, s.storeFailure(ctx, "login_session_cap_failed", err)
	}

	result, err = s.startSession(ctx, user, info)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id":    string(user.ID),
		"session_id": result.SessionID,
		"action":     "login_success",
	}).Info("login success")
	return result, nil
}

// Refresh rotates a refresh token. The successor record is written before the
// old one is revoked, and the revoke is a compare-and-set: of two concurrent
// refreshes with the same token only one wins, the other gets its freshly
// written successor revoked and fails as a replay.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, info authdomain.RequestInfo) (result *AuthResult, err error) {
	defer func() { recordOperation("refresh", err) }()

	if rawToken == "" {
		return nil, s.rejectRefresh(ctx, RejectMissing, "", nil)
	}

	claims, err := s.issuer.Verify(rawToken, authdomain.KindRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenKindMismatch) {
			s.log.WithFields(ctx, logger.Fields{
				"client_ip": info.IPAddress,
				"action":    "refresh_wrong_token_kind",
			}).Warn("refresh failed: access token presented as refresh token")
			incrementRefreshTokensRejected("kind_mismatch")
			return nil, ErrInvalidTokenKind
		}
		return nil, s.rejectRefresh(ctx, verifyFailureReason(err), "", err)
	}

	old, err := s.ledger.LookupActive(ctx, rawToken)
	switch {
	case errors.Is(err, authdomain.ErrRefreshTokenNotFound):
		return nil, s.rejectRefresh(ctx, RejectNotFound, claims.UserID, err)
	case errors.Is(err, authdomain.ErrRefreshTokenRevoked):
		return nil, s.rejectRefresh(ctx, RejectRevoked, old.UserID, err)
	case errors.Is(err, authdomain.ErrRefreshTokenExpired):
		return nil, s.rejectRefresh(ctx, RejectExpired, old.UserID, err)
	case err != nil:
		return nil, s.storeFailure(ctx, "refresh_lookup_failed", err)
	}

	if old.UserID != claims.UserID {
		return nil, s.rejectRefresh(ctx, RejectSubjectMismatch, old.UserID, nil)
	}

	user, err := s.findUser(ctx, old.UserID)
	if err != nil {
		return nil, err
	}

	if info.UserAgent == "" {
		info.UserAgent = old.DeviceInfo
	}
	result, err = s.startSession(ctx, user, info)
	if err != nil {
		return nil, err
	}

	successor := result.SessionID
	changed, err := s.ledger.revoke(ctx, old.ID, &successor, revokeCauseRotation)
	if err != nil {
		return nil, s.storeFailure(ctx, "refresh_revoke_old_failed", err)
	}
	if !changed {
		if _, err := s.ledger.revoke(ctx, successor, nil, revokeCauseReplay); err != nil {
			s.log.WithFields(ctx, logger.Fields{
				"user_id":    old.UserID,
				"session_id": successor,
				"action":     "refresh_revoke_successor_failed",
			}).Errorf("failed to revoke successor of replayed token: %v", err)
		}
		return nil, s.rejectRefresh(ctx, RejectReplayed, old.UserID, nil)
	}

	incrementRefreshTokensRotated()
	s.log.WithFields(ctx, logger.Fields{
		"user_id":      old.UserID,
		"old_token_id": old.ID,
		"new_token_id": successor,
		"action":       "refresh_success",
	}).Info("refresh token rotated")
	return result, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (err error) {
	defer func() { recordOperation("change_password", err) }()

	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"action":  "change_password_invalid_current",
		}).Warn("change password failed: current password mismatch")
		return ErrInvalidCurrentPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return commonerrors.ErrInternalError.WithCause(err)
	}

	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.users.UpdatePassword(ctx, user.ID, hash)
	})
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return s.storeFailure(ctx, "change_password_update_failed", err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": userID,
		"action":  "change_password_success",
	}).Info("password changed")
	return nil
}

// Logout never fails: whatever can be revoked is revoked and the rest is
// logged.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput, info authdomain.RequestInfo) LogoutResult {
	var result LogoutResult

	if input.RefreshToken != "" {
		result.RefreshTokenRevoked = s.logoutRefreshToken(ctx, input.RefreshToken)
	}
	if input.AccessToken != "" {
		result.AccessTokenBlacklisted = s.logoutAccessToken(ctx, input.AccessToken)
	}

	s.log.WithFields(ctx, logger.Fields{
		"client_ip":                info.IPAddress,
		"refresh_token_revoked":    result.RefreshTokenRevoked,
		"access_token_blacklisted": result.AccessTokenBlacklisted,
		"action":                   "logout",
	}).Info("logout")
	recordOperation("logout", nil)
	return result
}

func (s *AuthService) logoutRefreshToken(ctx context.Context, rawToken string) bool {
	token, err := s.ledger.LookupActive(ctx, rawToken)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"action": "logout_refresh_lookup",
		}).Debugf("logout: refresh token not revocable: %v", err)
		return false
	}

	changed, err := s.ledger.Revoke(ctx, token.ID, nil)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": token.UserID,
			"action":  "logout_refresh_revoke_failed",
		}).Errorf("logout: failed to revoke refresh token: %v", err)
		return false
	}
	return changed
}

func (s *AuthService) logoutAccessToken(ctx context.Context, accessToken string) bool {
	claims, err := s.issuer.Verify(accessToken, authdomain.KindAccess)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"action": "logout_access_decode",
		}).Debugf("logout: access token not decodable: %v", err)
		return false
	}

	err = s.ledger.BlacklistAccessToken(ctx, claims.ID, claims.UserID, claims.ExpiresAtTime(), constants.BlacklistReasonLogout)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"user_id": claims.UserID,
			"jti":     claims.ID,
			"action":  "logout_blacklist_failed",
		}).Errorf("logout: failed to blacklist access token: %v", err)
		return false
	}
	return true
}

// LogoutAllDevices revokes every active session and writes the user marker
// that invalidates access tokens issued up to now.
func (s *AuthService) LogoutAllDevices(ctx context.Context, userID string) (count int64, err error) {
	defer func() { recordOperation("logout_all", err) }()

	count, err = s.ledger.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, s.storeFailure(ctx, "logout_all_revoke_failed", err)
	}

	if err := s.ledger.BlacklistUser(ctx, userID, constants.BlacklistReasonSecurityLogout); err != nil {
		return 0, s.storeFailure(ctx, "logout_all_blacklist_failed", err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id": userID,
		"revoked": count,
		"action":  "logout_all_success",
	}).Info("logged out from all devices")
	return count, nil
}

func (s *AuthService) GetUserActiveSessions(ctx context.Context, userID string) ([]authdomain.Session, error) {
	sessions, err := s.ledger.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, s.storeFailure(ctx, "sessions_list_failed", err)
	}
	return sessions, nil
}

func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) (err error) {
	defer func() { recordOperation("revoke_session", err) }()

	changed, err := s.ledger.RevokeSession(ctx, userID, sessionID)
	if err != nil {
		return s.storeFailure(ctx, "revoke_session_failed", err)
	}
	if !changed {
		return ErrSessionNotFound
	}

	s.log.WithFields(ctx, logger.Fields{
		"user_id":    userID,
		"session_id": sessionID,
		"action":     "session_revoked",
	}).Info("session revoked")
	return nil
}

// AuthenticateAccessToken verifies a bearer token and checks it against the
// blacklist.
func (s *AuthService) AuthenticateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	incrementJWTValidations()

	claims, err := s.issuer.Verify(accessToken, authdomain.KindAccess)
	if err != nil {
		incrementJWTValidationsFailed(verifyFailureReason(err))
		if errors.Is(err, ErrTokenKindMismatch) {
			return nil, ErrInvalidTokenKind
		}
		return nil, ErrInvalidAccessToken.WithCause(err)
	}

	revoked, err := s.ledger.IsAccessTokenRevoked(ctx, claims)
	if err != nil {
		return nil, s.storeFailure(ctx, "access_token_revocation_check_failed", err)
	}
	if revoked {
		incrementJWTValidationsFailed("revoked")
		return nil, ErrAccessTokenRevoked
	}
	return claims, nil
}

// Authenticate adapts AuthenticateAccessToken to the bearer middleware.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (jwtverify.Claims, error) {
	claims, err := s.AuthenticateAccessToken(ctx, accessToken)
	if err != nil {
		return jwtverify.Claims{}, err
	}
	return jwtverify.Claims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		CompanyID: claims.CompanyID,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID string) (userdomain.Summary, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return userdomain.Summary{}, err
	}
	return user.Summary(), nil
}

func (s *AuthService) BlacklistStats(ctx context.Context) (authdomain.BlacklistStats, error) {
	stats, err := s.ledger.BlacklistStats(ctx)
	if err != nil {
		return authdomain.BlacklistStats{}, s.storeFailure(ctx, "blacklist_stats_failed", err)
	}
	return stats, nil
}

func (s *AuthService) findUser(ctx context.Context, userID string) (userdomain.User, error) {
	var user userdomain.User
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindByID(ctx, userdomain.ID(userID))
		return err
	})
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"user_id": userID,
				"action":  "user_not_found",
			}).Warn("token outlived its user")
			return userdomain.User{}, ErrUserNotFound
		}
		return userdomain.User{}, s.storeFailure(ctx, "user_lookup_failed", err)
	}
	return user, nil
}

// startSession issues a token pair and records its refresh half.
func (s *AuthService) startSession(ctx context.Context, user userdomain.User, info authdomain.RequestInfo) (*AuthResult, error) {
	deviceInfo := info.UserAgent
	if deviceInfo == "" {
		deviceInfo = authdomain.DefaultDeviceInfo
	}

	pair, err := s.issuer.Issue(TokenSubject{
		UserID:    string(user.ID),
		Email:     user.Email,
		CompanyID: user.CompanyID,
	}, deviceInfo)
	if err != nil {
		return nil, commonerrors.ErrInternalError.WithCause(err)
	}

	record, err := s.ledger.Record(ctx, RecordInput{
		UserID:     string(user.ID),
		RawToken:   pair.RefreshToken,
		ExpiresAt:  pair.RefreshExpiresAt,
		DeviceInfo: deviceInfo,
		IPAddress:  info.IPAddress,
	})
	if err != nil {
		return nil, s.storeFailure(ctx, "session_record_failed", err)
	}

	return &AuthResult{
		User: user.Summary(),
		Tokens: Tokens{
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			TokenType:        constants.TokenTypeBearer,
			ExpiresAt:        pair.ExpiresAt,
			RefreshExpiresAt: pair.RefreshExpiresAt,
		},
		SessionID: record.ID,
	}, nil
}

func (s *AuthService) rejectRefresh(ctx context.Context, reason, userID string, cause error) error {
	fields := logger.Fields{
		"reason": reason,
		"action": "refresh_rejected",
	}
	if userID != "" {
		fields["user_id"] = userID
	}
	s.log.WithFields(ctx, fields).Warn("refresh token rejected")
	incrementRefreshTokensRejected(reason)
	return rejectRefresh(reason, cause)
}

func (s *AuthService) storeFailure(ctx context.Context, action string, err error) error {
	mapped := unavailable(err)
	if errors.Is(mapped, ErrServiceUnavailable) {
		s.log.WithFields(ctx, logger.Fields{
			"action": action,
		}).Criticalf("store unavailable: %v", err)
	}
	return mapped
}
