package http

import (
	"net/http"
	"time"
)

type CookieManager struct {
	Secure bool
}

// SetSessionCookie writes the opaque session token. HttpOnly and strict
// same-site keep it out of scripts and cross-site requests.
func (c *CookieManager) SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// SetCSRFCookie is script-readable on purpose: same-origin pages echo it
// back through the X-CSRF-Token header.
func (c *CookieManager) SetCSRFCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     "csrf_token",
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (c *CookieManager) ClearSessionCookies(w http.ResponseWriter) {
	clear := func(name string, httpOnly bool) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: httpOnly,
			Secure:   c.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
	clear("session_token", true)
	clear("csrf_token", false)
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
