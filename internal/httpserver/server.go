package httpserver

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/glass-bridge/internal/agent"
	bridgeerrors "github.com/chadiek/glass-bridge/internal/errors"
)

const sessionEventTail = 10

// Options configure the control surface.
type Options struct {
	Password string
	Version  string
	// Device serves /device/ws when set.
	Device http.Handler
	// Connected reports open device sockets for /stats.
	Connected func() int
}

// Server exposes the orchestrator's control surface over HTTP.
type Server struct {
	Echo      *echo.Echo
	bridge    *agent.Orchestrator
	opts      Options
	startedAt time.Time
}

// New constructs the HTTP server with routes.
func New(bridge *agent.Orchestrator, opts Options) *Server {
	s := &Server{Echo: NewEcho(opts.Password), bridge: bridge, opts: opts, startedAt: time.Now()}
	s.Register(s.Echo)
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/health", s.health)
	e.GET("/", s.info)
	e.GET("/stats", s.stats)

	e.GET("/events", s.pollEvents)
	e.DELETE("/events", s.clearEvents)

	e.GET("/sessions", s.listSessions)
	e.GET("/sessions/:id", s.getSession)
	e.POST("/sessions/:id/pause", s.control(s.bridge.Pause))
	e.POST("/sessions/:id/resume", s.control(s.bridge.Resume))
	e.POST("/sessions/:id/next", s.control(s.bridge.NextPage))
	e.POST("/sessions/:id/prev", s.control(s.bridge.PrevPage))
	e.PUT("/sessions/:id/persona", s.setPersona)
	e.PUT("/sessions/:id/display-duration", s.setDisplayDuration)
	e.PUT("/sessions/:id/auto-advance", s.setAutoAdvance)

	e.POST("/display", s.display)

	if s.opts.Device != nil {
		e.GET("/device/ws", echo.WrapHandler(s.opts.Device))
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.bridge.Registry().Len(),
		"uptime_s": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) info(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":    "glass-bridge",
		"version": s.opts.Version,
		"endpoints": []string{
			"GET /health", "GET /stats", "GET /events", "DELETE /events",
			"GET /sessions", "GET /sessions/:id",
			"POST /sessions/:id/pause", "POST /sessions/:id/resume",
			"POST /sessions/:id/next", "POST /sessions/:id/prev",
			"PUT /sessions/:id/persona", "PUT /sessions/:id/display-duration",
			"PUT /sessions/:id/auto-advance", "POST /display", "GET /device/ws",
		},
	})
}

func (s *Server) stats(c echo.Context) error {
	events := s.bridge.Events()
	out := map[string]any{
		"sessions":       s.bridge.Registry().Len(),
		"events":         events.Len(),
		"event_capacity": events.Cap(),
		"event_types":    events.Stats(),
		"uptime_s":       int64(time.Since(s.startedAt).Seconds()),
	}
	if s.opts.Connected != nil {
		out["devices"] = s.opts.Connected()
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) pollEvents(c echo.Context) error {
	since, err := queryInt(c, "since", 0)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.bridge.Events().Poll(int64(since), limit))
}

func (s *Server) clearEvents(c echo.Context) error {
	s.bridge.Events().Clear()
	return c.JSON(http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) listSessions(c echo.Context) error {
	sessions := s.bridge.Sessions()
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) getSession(c echo.Context) error {
	id := c.Param("id")
	snap, err := s.bridge.Session(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session": snap,
		"events":  s.bridge.Events().ForSession(id, sessionEventTail),
	})
}

// control adapts a session operation with no body to a handler that replies
// with the resulting snapshot.
func (s *Server) control(op func(sessionID string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := op(id); err != nil {
			return err
		}
		return s.replySession(c, id)
	}
}

func (s *Server) replySession(c echo.Context, id string) error {
	snap, err := s.bridge.Session(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "session": snap})
}

type personaRequest struct {
	Persona string `json:"persona"`
}

func (s *Server) setPersona(c echo.Context) error {
	var req personaRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	id := c.Param("id")
	if err := s.bridge.SetPersona(id, req.Persona); err != nil {
		return err
	}
	return s.replySession(c, id)
}

type durationRequest struct {
	DurationMs *int `json:"duration_ms"`
}

func (s *Server) setDisplayDuration(c echo.Context) error {
	var req durationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.DurationMs == nil {
		return bridgeerrors.NewInvalidParameter("duration_ms is required")
	}
	id := c.Param("id")
	if err := s.bridge.SetDisplayDuration(id, *req.DurationMs); err != nil {
		return err
	}
	return s.replySession(c, id)
}

type autoAdvanceRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) setAutoAdvance(c echo.Context) error {
	var req autoAdvanceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return bridgeerrors.NewInvalidParameter("enabled is required")
	}
	id := c.Param("id")
	if err := s.bridge.SetAutoAdvance(id, *req.Enabled); err != nil {
		return err
	}
	return s.replySession(c, id)
}

type displayRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	// Duration is in milliseconds.
	Duration int `json:"duration"`
}

func (s *Server) display(c echo.Context) error {
	var req displayRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Duration < 0 {
		return bridgeerrors.NewInvalidParameter("duration must not be negative")
	}
	shown, err := s.bridge.Display(req.SessionID, req.Text, time.Duration(req.Duration)*time.Millisecond)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "sessions": shown})
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return bridgeerrors.NewInvalidParameter("invalid request body")
	}
	return nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, bridgeerrors.NewInvalidParameter(name + " must be an integer")
	}
	return v, nil
}

// errorHandler renders BridgeErrors and echo errors as {"error":{"code","message"}}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		code := "HTTP_ERROR"
		switch he.Code {
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		}
		_ = c.JSON(he.Code, map[string]any{"error": map[string]any{"code": code, "message": http.StatusText(he.Code)}})
		return
	}
	bErr := bridgeerrors.As(err)
	body := map[string]any{"code": bErr.Code, "message": bErr.Message}
	if len(bErr.Details) > 0 {
		body["details"] = bErr.Details
	}
	if bErr.Status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	_ = c.JSON(bErr.Status, map[string]any{"error": body})
}
