package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CheckPassword reports whether r carries password as ?password=, an
// Authorization bearer token or an X-Auth-Token header. An empty password
// accepts every request.
func CheckPassword(r *http.Request, password string) bool {
	if password == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && equal(q, password) {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if tok := strings.TrimSpace(ah[len("Bearer "):]); equal(tok, password) {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && equal(x, password) {
		return true
	}
	return false
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// PasswordAuth rejects requests without the shared password. Paths for which
// skip returns true pass through (health checks, the device socket which
// also accepts an in-band auth frame).
func PasswordAuth(getPassword func() string, skip func(path string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c.Request().URL.Path) {
				return next(c)
			}
			if !CheckPassword(c.Request(), getPassword()) {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": map[string]string{"code": "UNAUTHORIZED", "message": "missing or invalid password"},
				})
			}
			return next(c)
		}
	}
}
