package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	authhttp "github.com/AlibekovAA/worktime/backend/internal/auth/http"
	"github.com/AlibekovAA/worktime/backend/internal/auth/service"
	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
	userdomain "github.com/AlibekovAA/worktime/backend/internal/user/domain"
)

const (
	testUserID    = "7d1c4a8e-2f0b-4f4e-9a52-0c4a7e1f3b21"
	testSessionID = "5b6c9d2e-1a3f-4b7c-8d9e-0f1a2b3c4d5e"
	goodAccess    = "good-access-token"
)

type mockAuthService struct {
	registerFn       func(ctx context.Context, input service.RegisterInput, info authdomain.RequestInfo) (*service.AuthResult, error)
	loginFn          func(ctx context.Context, input service.LoginInput, info authdomain.RequestInfo) (*service.AuthResult, error)
	refreshFn        func(ctx context.Context, rawToken string, info authdomain.RequestInfo) (*service.AuthResult, error)
	changePasswordFn func(ctx context.Context, userID, current, next string) error
	logoutFn         func(ctx context.Context, input service.LogoutInput, info authdomain.RequestInfo) service.LogoutResult
	logoutAllFn      func(ctx context.Context, userID string) (int64, error)
	sessionsFn       func(ctx context.Context, userID string) ([]authdomain.Session, error)
	revokeSessionFn  func(ctx context.Context, userID, sessionID string) error
	profileFn        func(ctx context.Context, userID string) (userdomain.Summary, error)
}

func (m *mockAuthService) Authenticate(_ context.Context, token string) (jwtverify.Claims, error) {
	if token != goodAccess {
		return jwtverify.Claims{}, service.ErrInvalidAccessToken
	}
	return jwtverify.Claims{UserID: testUserID, Email: "a@b.com", JTI: "jti-1"}, nil
}

func (m *mockAuthService) Register(ctx context.Context, input service.RegisterInput, info authdomain.RequestInfo) (*service.AuthResult, error) {
	return m.registerFn(ctx, input, info)
}

func (m *mockAuthService) Login(ctx context.Context, input service.LoginInput, info authdomain.RequestInfo) (*service.AuthResult, error) {
	return m.loginFn(ctx, input, info)
}

func (m *mockAuthService) Refresh(ctx context.Context, rawToken string, info authdomain.RequestInfo) (*service.AuthResult, error) {
	return m.refreshFn(ctx, rawToken, info)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	return m.changePasswordFn(ctx, userID, current, next)
}

func (m *mockAuthService) Logout(ctx context.Context, input service.LogoutInput, info authdomain.RequestInfo) service.LogoutResult {
	if m.logoutFn == nil {
		return service.LogoutResult{}
	}
	return m.logoutFn(ctx, input, info)
}

func (m *mockAuthService) LogoutAllDevices(ctx context.Context, userID string) (int64, error) {
	return m.logoutAllFn(ctx, userID)
}

func (m *mockAuthService) GetUserActiveSessions(ctx context.Context, userID string) ([]authdomain.Session, error) {
	return m.sessionsFn(ctx, userID)
}

func (m *mockAuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return m.revokeSessionFn(ctx, userID, sessionID)
}

func (m *mockAuthService) GetProfile(ctx context.Context, userID string) (userdomain.Summary, error) {
	return m.profileFn(ctx, userID)
}

type errorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type successEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(svc *mockAuthService) http.Handler {
	return authhttp.NewRouter(svc, authhttp.RouterConfig{RequestTimeout: 5 * time.Second}, logger.NewNop())
}

func authResult() *service.AuthResult {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &service.AuthResult{
		User: userdomain.Summary{
			ID:          userdomain.ID(testUserID),
			Email:       "a@b.com",
			CompanyID:   "c-1",
			CompanyName: "Acme",
			CreatedAt:   now,
		},
		Tokens: service.Tokens{
			AccessToken:      "access",
			RefreshToken:     "refresh",
			TokenType:        "Bearer",
			ExpiresAt:        now.Add(15 * time.Minute),
			RefreshExpiresAt: now.Add(7 * 24 * time.Hour),
		},
		SessionID: testSessionID,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return env
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == constants.RefreshCookieName {
			return c
		}
	}
	return nil
}

func withBearer(token string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestRegister_Success(t *testing.T) {
	var got service.RegisterInput
	var gotInfo authdomain.RequestInfo
	svc := &mockAuthService{
		registerFn: func(_ context.Context, input service.RegisterInput, info authdomain.RequestInfo) (*service.AuthResult, error) {
			got = input
			gotInfo = info
			return authResult(), nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/register",
		map[string]string{"email": "a@b.com", "password": "secret123", "companyName": "Acme"},
		func(r *http.Request) {
			r.Header.Set("User-Agent", "Firefox")
			r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Email != "a@b.com" || got.CompanyName != "Acme" {
		t.Fatalf("unexpected input passed to service: %+v", got)
	}
	if gotInfo.IPAddress != "203.0.113.7" || gotInfo.UserAgent != "Firefox" {
		t.Fatalf("unexpected request info: %+v", gotInfo)
	}
	cookie := refreshCookie(rec)
	if cookie == nil || cookie.Value != "refresh" || !cookie.HttpOnly || cookie.Path != constants.RefreshCookiePath {
		t.Fatalf("expected http-only refresh cookie, got %+v", cookie)
	}

	var env successEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !env.Success {
		t.Fatal("expected success envelope")
	}
	var data struct {
		User struct {
			ID          string `json:"id"`
			CompanyName string `json:"companyName"`
		} `json:"user"`
		Tokens struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User.ID != testUserID || data.User.CompanyName != "Acme" {
		t.Fatalf("unexpected user payload: %+v", data.User)
	}
	if data.Tokens.AccessToken != "access" || data.Tokens.TokenType != "Bearer" {
		t.Fatalf("unexpected tokens payload: %+v", data.Tokens)
	}
}

func TestRegister_ValidationFailed(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(context.Context, service.RegisterInput, authdomain.RequestInfo) (*service.AuthResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/register",
		map[string]string{"email": "not-an-email", "password": "123", "companyName": "A"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeError(t, rec)
	if env.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", env.Code)
	}
	for _, field := range []string{"email", "password", "companyName"} {
		if _, ok := env.Details[field]; !ok {
			t.Fatalf("expected details for %s, got %v", field, env.Details)
		}
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	rec := doJSON(t, newRouter(&mockAuthService{}), http.MethodPost, "/api/auth/register", "{", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env := decodeError(t, rec); env.Code != commonerrors.ErrInvalidPayload.Code() {
		t.Fatalf("expected %s, got %s", commonerrors.ErrInvalidPayload.Code(), env.Code)
	}
}

func TestRegister_EmailTaken(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(context.Context, service.RegisterInput, authdomain.RequestInfo) (*service.AuthResult, error) {
			return nil, service.ErrEmailAlreadyExists
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/register",
		map[string]string{"email": "a@b.com", "password": "secret123", "companyName": "Acme"}, nil)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, service.LoginInput, authdomain.RequestInfo) (*service.AuthResult, error) {
			return nil, service.ErrInvalidCredentials
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@b.com", "password": "wrong"}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env := decodeError(t, rec); env.Message != "invalid email or password" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	if refreshCookie(rec) != nil {
		t.Fatal("no cookie expected on failed login")
	}
}

func TestLogin_Unavailable(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, service.LoginInput, authdomain.RequestInfo) (*service.AuthResult, error) {
			return nil, service.ErrServiceUnavailable
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@b.com", "password": "secret123"}, nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRefresh_PrefersBodyOverCookie(t *testing.T) {
	var got string
	svc := &mockAuthService{
		refreshFn: func(_ context.Context, raw string, _ authdomain.RequestInfo) (*service.AuthResult, error) {
			got = raw
			return authResult(), nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/refresh",
		map[string]string{"refreshToken": "from-body"},
		func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: constants.RefreshCookieName, Value: "from-cookie"})
		})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != "from-body" {
		t.Fatalf("expected body token, got %q", got)
	}
}

func TestRefresh_FallsBackToCookie(t *testing.T) {
	var got string
	svc := &mockAuthService{
		refreshFn: func(_ context.Context, raw string, _ authdomain.RequestInfo) (*service.AuthResult, error) {
			got = raw
			return authResult(), nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: constants.RefreshCookieName, Value: "from-cookie"})
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != "from-cookie" {
		t.Fatalf("expected cookie token, got %q", got)
	}
	if c := refreshCookie(rec); c == nil || c.Value != "refresh" {
		t.Fatalf("expected rotated cookie, got %+v", c)
	}
}

func TestRefresh_Missing(t *testing.T) {
	rec := doJSON(t, newRouter(&mockAuthService{}), http.MethodPost, "/api/auth/refresh", nil, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env := decodeError(t, rec); env.Code != "MISSING_REFRESH_TOKEN" {
		t.Fatalf("expected MISSING_REFRESH_TOKEN, got %s", env.Code)
	}
}

func TestRefresh_RejectedClearsCookie(t *testing.T) {
	svc := &mockAuthService{
		refreshFn: func(context.Context, string, authdomain.RequestInfo) (*service.AuthResult, error) {
			return nil, service.ErrInvalidRefreshToken.WithCause(errors.New("replayed"))
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/refresh",
		map[string]string{"refreshToken": "stale"}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	env := decodeError(t, rec)
	if env.Code != service.ErrInvalidRefreshToken.Code() {
		t.Fatalf("expected %s, got %s", service.ErrInvalidRefreshToken.Code(), env.Code)
	}
	if strings.Contains(env.Message, "replayed") {
		t.Fatal("reject reason must not leak to the client")
	}
	if c := refreshCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie to be cleared, got %+v", c)
	}
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	var got service.LogoutInput
	svc := &mockAuthService{
		logoutFn: func(_ context.Context, input service.LogoutInput, _ authdomain.RequestInfo) service.LogoutResult {
			got = input
			return service.LogoutResult{}
		},
	}
	h := newRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/logout", "garbage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on malformed body, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: constants.RefreshCookieName, Value: "cookie-token"})
		r.Header.Set("Authorization", "Bearer some-access")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.RefreshToken != "cookie-token" || got.AccessToken != "some-access" {
		t.Fatalf("unexpected logout input: %+v", got)
	}
	if c := refreshCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie to be cleared, got %+v", c)
	}
}

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	h := newRouter(&mockAuthService{})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/auth/change-password"},
		{http.MethodPost, "/api/auth/logout-all"},
		{http.MethodGet, "/api/auth/sessions"},
		{http.MethodDelete, "/api/auth/sessions/" + testSessionID},
		{http.MethodGet, "/api/auth/me"},
	}
	for _, tc := range cases {
		rec := doJSON(t, h, tc.method, tc.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
		if env := decodeError(t, rec); env.Code != "MISSING_AUTHORIZATION" {
			t.Fatalf("%s %s: expected MISSING_AUTHORIZATION, got %s", tc.method, tc.path, env.Code)
		}

		rec = doJSON(t, h, tc.method, tc.path, nil, withBearer("forged"))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with bad token: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestChangePassword(t *testing.T) {
	var gotUser, gotCurrent, gotNext string
	svc := &mockAuthService{
		changePasswordFn: func(_ context.Context, userID, current, next string) error {
			gotUser, gotCurrent, gotNext = userID, current, next
			if current != "old-secret" {
				return service.ErrInvalidCurrentPassword
			}
			return nil
		},
	}
	h := newRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/change-password",
		map[string]string{"currentPassword": "old-secret", "newPassword": "new-secret"}, withBearer(goodAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotUser != testUserID || gotCurrent != "old-secret" || gotNext != "new-secret" {
		t.Fatalf("unexpected arguments: %s %s %s", gotUser, gotCurrent, gotNext)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/change-password",
		map[string]string{"currentPassword": "nope", "newPassword": "new-secret"}, withBearer(goodAccess))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	svc := &mockAuthService{
		logoutAllFn: func(_ context.Context, userID string) (int64, error) {
			if userID != testUserID {
				t.Fatalf("unexpected user %s", userID)
			}
			return 3, nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodPost, "/api/auth/logout-all", nil, withBearer(goodAccess))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env successEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	var data struct {
		RevokedTokensCount int64 `json:"revokedTokensCount"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.RevokedTokensCount != 3 {
		t.Fatalf("expected 3 revoked, got %d", data.RevokedTokensCount)
	}
}

func TestSessions(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &mockAuthService{
		sessionsFn: func(context.Context, string) ([]authdomain.Session, error) {
			return []authdomain.Session{
				{ID: "s2", DeviceInfo: "Chrome", IPAddress: "10.0.0.2", CreatedAt: now.Add(time.Minute), ExpiresAt: now.Add(time.Hour)},
				{ID: "s1", DeviceInfo: authdomain.DefaultDeviceInfo, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
			}, nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodGet, "/api/auth/sessions", nil, withBearer(goodAccess))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env successEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	var data struct {
		Sessions []struct {
			ID         string `json:"id"`
			DeviceInfo string `json:"deviceInfo"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Sessions) != 2 || data.Sessions[0].ID != "s2" || data.Sessions[1].DeviceInfo != authdomain.DefaultDeviceInfo {
		t.Fatalf("unexpected sessions: %+v", data.Sessions)
	}
}

func TestRevokeSession(t *testing.T) {
	svc := &mockAuthService{
		revokeSessionFn: func(_ context.Context, userID, sessionID string) error {
			if sessionID != testSessionID {
				return service.ErrSessionNotFound
			}
			return nil
		},
	}
	h := newRouter(svc)

	rec := doJSON(t, h, http.MethodDelete, "/api/auth/sessions/"+testSessionID, nil, withBearer(goodAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/auth/sessions/0b6c9d2e-1a3f-4b7c-8d9e-0f1a2b3c4d5e", nil, withBearer(goodAccess))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/auth/sessions/not-a-uuid", nil, withBearer(goodAccess))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	svc := &mockAuthService{
		profileFn: func(_ context.Context, userID string) (userdomain.Summary, error) {
			return authResult().User, nil
		},
	}

	rec := doJSON(t, newRouter(svc), http.MethodGet, "/api/auth/me", nil, withBearer(goodAccess))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"email":"a@b.com"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newRouter(&mockAuthService{})

	rec := doJSON(t, h, http.MethodGet, "/api/auth/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/auth/login", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if env := decodeError(t, rec); env.Code != "METHOD_NOT_ALLOWED" {
		t.Fatalf("expected METHOD_NOT_ALLOWED, got %s", env.Code)
	}
}
