package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/idbroker/internal/log"
)

// Session cookie names. auth_token is the credential; auth_email is a
// convenience copy that is never trusted on its own.
const (
	EmailCookie = "auth_email"
	TokenCookie = "auth_token"
)

func sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// SetSessionPair sets both session cookies on the same response
func SetSessionPair(w http.ResponseWriter, email, token string, maxAge time.Duration) {
	seconds := int(maxAge.Seconds())
	http.SetCookie(w, sessionCookie(EmailCookie, email, seconds))
	http.SetCookie(w, sessionCookie(TokenCookie, token, seconds))

	log.LogTraceWithFields("cookie", "Session cookies set", map[string]any{
		"maxAge":   maxAge.String(),
		"sameSite": "Lax",
	})
}

// ClearSessionPair expires both session cookies. A negative MaxAge is sent
// as Max-Age=0.
func ClearSessionPair(w http.ResponseWriter) {
	http.SetCookie(w, sessionCookie(EmailCookie, "", -1))
	http.SetCookie(w, sessionCookie(TokenCookie, "", -1))
	log.LogTraceWithFields("cookie", "Session cookies cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetSessionToken retrieves the session credential. An empty value counts as missing.
func GetSessionToken(r *http.Request) (string, error) {
	token, err := Get(r, TokenCookie)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", http.ErrNoCookie
	}
	return token, nil
}
