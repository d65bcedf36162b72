package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/auth/service"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/worktime/backend/internal/common/http"
	"github.com/AlibekovAA/worktime/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
)

func requestInfo(r *http.Request) authdomain.RequestInfo {
	return authdomain.RequestInfo{
		IPAddress: commonhttp.GetClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		CompanyName: req.CompanyName,
	}, requestInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)
	commonhttp.WriteSuccess(w, http.StatusCreated, "registration successful", toAuthResponse(result))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, requestInfo(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)
	commonhttp.WriteSuccess(w, http.StatusOK, "login successful", toAuthResponse(result))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptional(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token := req.RefreshToken
	if token == "" {
		token = refreshTokenFromCookie(r)
	}
	if token == "" {
		commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingRefreshToken,
			"refresh token is required", nil, commonhttp.TraceIDFromContext(r.Context()))
		return
	}

	result, err := h.auth.Refresh(r.Context(), token, requestInfo(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) || errors.Is(err, service.ErrUserNotFound) {
			h.clearRefreshCookie(w, r)
		}
		h.writeError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)
	commonhttp.WriteSuccess(w, http.StatusOK, "token refreshed", toAuthResponse(result))
}

// logout always answers 200; a malformed body is treated as empty.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptional(r, &req); err != nil {
		h.log.WithFields(r.Context(), logger.Fields{
			"action": "logout_body_ignored",
		}).Debugf("logout: ignoring request body: %v", err)
	}

	input := service.LogoutInput{RefreshToken: req.RefreshToken}
	if input.RefreshToken == "" {
		input.RefreshToken = refreshTokenFromCookie(r)
	}
	if token, ok := jwtverify.BearerToken(r); ok {
		input.AccessToken = token
	}

	h.auth.Logout(r.Context(), input, requestInfo(r))

	h.clearRefreshCookie(w, r)
	commonhttp.WriteSuccess(w, http.StatusOK, "logout successful", nil)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, commonerrors.ErrInvalidToken)
		return
	}

	var req changePasswordRequest
	if err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusOK, "password changed successfully", nil)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, commonerrors.ErrInvalidToken)
		return
	}

	count, err := h.auth.LogoutAllDevices(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.clearRefreshCookie(w, r)
	commonhttp.WriteSuccess(w, http.StatusOK, "logged out from all devices", logoutAllResponse{RevokedTokensCount: count})
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, commonerrors.ErrInvalidToken)
		return
	}

	sessions, err := h.auth.GetUserActiveSessions(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusOK, "", toSessionsResponse(sessions))
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, commonerrors.ErrInvalidToken)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := commonhttp.ValidateUUID(sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.auth.RevokeSession(r.Context(), claims.UserID, sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusOK, "session revoked", nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, commonerrors.ErrInvalidToken)
		return
	}

	profile, err := h.auth.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	commonhttp.WriteSuccess(w, http.StatusOK, "", toUserResponse(profile))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	commonhttp.HandleError(w, r, err, h.log)
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := commonhttp.DecodeJSON(r, dst); err != nil && !errors.Is(err, io.EOF) {
		return commonerrors.ErrInvalidPayload.WithCause(err)
	}
	return nil
}
