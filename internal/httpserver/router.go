package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	bridgemw "github.com/chadiek/glass-bridge/internal/middleware"
)

// NewEcho creates a configured Echo instance. A non-empty password guards
// every route except health checks and the device socket, which checks it itself.
func NewEcho(password string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(bridgemw.PasswordAuth(func() string { return password }, func(path string) bool {
		switch path {
		case "/healthz", "/health", "/device/ws":
			return true
		}
		return false
	}))
	return e
}
