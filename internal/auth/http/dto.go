package http

import (
	"time"

	authdomain "github.com/AlibekovAA/worktime/backend/internal/auth/domain"
	"github.com/AlibekovAA/worktime/backend/internal/auth/service"
	userdomain "github.com/AlibekovAA/worktime/backend/internal/user/domain"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	CompanyName string `json:"companyName" validate:"required,min=2,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	CompanyID   string     `json:"companyId"`
	CompanyName string     `json:"companyName"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type tokensResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type authResponse struct {
	User   userResponse   `json:"user"`
	Tokens tokensResponse `json:"tokens"`
}

type sessionResponse struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IsCurrent  bool      `json:"isCurrent"`
}

type sessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type logoutAllResponse struct {
	RevokedTokensCount int64 `json:"revokedTokensCount"`
}

func toUserResponse(summary userdomain.Summary) userResponse {
	return userResponse{
		ID:          string(summary.ID),
		Email:       summary.Email,
		CompanyID:   summary.CompanyID,
		CompanyName: summary.CompanyName,
		LastLoginAt: summary.LastLoginAt,
		CreatedAt:   summary.CreatedAt,
	}
}

func toAuthResponse(result *service.AuthResult) authResponse {
	return authResponse{
		User: toUserResponse(result.User),
		Tokens: tokensResponse{
			AccessToken:      result.Tokens.AccessToken,
			RefreshToken:     result.Tokens.RefreshToken,
			TokenType:        result.Tokens.TokenType,
			ExpiresAt:        result.Tokens.ExpiresAt,
			RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
		},
	}
}

func toSessionsResponse(sessions []authdomain.Session) sessionsResponse {
	out := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = sessionResponse{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			IPAddress:  s.IPAddress,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
			IsCurrent:  s.IsCurrent,
		}
	}
	return sessionsResponse{Sessions: out}
}
