package http

import (
	"net/http"
	"time"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
)

func (h *Handler) setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	if token == "" {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     constants.RefreshCookieName,
		Value:    token,
		Path:     constants.RefreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.secureCookie || r.TLS != nil,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     constants.RefreshCookieName,
		Value:    "",
		Path:     constants.RefreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.secureCookie || r.TLS != nil,
	})
}

func refreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(constants.RefreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
