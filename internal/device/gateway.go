// Package device connects wearable clients over WebSocket. Devices send
// transcription fragments and receive text to render.
package device

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chadiek/glass-bridge/internal/middleware"
	"github.com/chadiek/glass-bridge/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Bridge is the slice of the orchestrator the gateway drives.
type Bridge interface {
	Connect(sessionID, userID string) *session.Session
	Disconnect(sessionID string) error
	OnFragment(sessionID, text string, isFinal bool) error
}

// message is the JSON frame exchanged with devices.
// Inbound types: "auth", "transcription", "bye". Outbound: "hello", "display", "error".
type message struct {
	Type       string `json:"type"`
	Password   string `json:"password,omitempty"`
	Text       string `json:"text,omitempty"`
	IsFinal    bool   `json:"is_final,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Devices are not browsers; origin is not meaningful here.
		return true
	},
}

type conn struct {
	ws   *websocket.Conn
	send chan message
	once sync.Once
	done chan struct{}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// Gateway tracks one WebSocket per session and implements the display sink.
type Gateway struct {
	authPassword string

	mu     sync.RWMutex
	bridge Bridge
	conns  map[string]*conn
}

func NewGateway(authPassword string) *Gateway {
	return &Gateway{authPassword: authPassword, conns: make(map[string]*conn)}
}

// Bind attaches the orchestrator. It must be called before serving.
func (g *Gateway) Bind(b Bridge) {
	g.mu.Lock()
	g.bridge = b
	g.mu.Unlock()
}

// Connected reports the number of open device sockets.
func (g *Gateway) Connected() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Close asks every device socket to close. Sessions are torn down as their
// read loops exit.
func (g *Gateway) Close() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.conns {
		c.close()
		_ = c.ws.SetReadDeadline(time.Now().Add(writeWait))
	}
}

// ShowText queues text for the session's device. It never blocks: when the
// device is gone or its buffer is full the frame is dropped.
func (g *Gateway) ShowText(sessionID, text string, duration time.Duration) {
	g.mu.RLock()
	c := g.conns[sessionID]
	g.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- message{Type: "display", Text: text, DurationMs: duration.Milliseconds()}:
	default:
		log.Printf("[%s] device send buffer full; dropping display frame", sessionID)
	}
}

// ServeHTTP upgrades to WebSocket. Query: session_id (generated when
// absent), user_id (defaults to the session id).
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	bridge := g.bridge
	g.mu.RUnlock()
	if bridge == nil {
		http.Error(w, "device gateway not ready", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()

	if g.authPassword != "" && !middleware.CheckPassword(r, g.authPassword) {
		// fall back to an auth message as the first frame
		if err := g.readAuth(ws); err != nil {
			writeError(ws, err)
			return
		}
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = sessionID
	}

	c := &conn{ws: ws, send: make(chan message, sendBuffer), done: make(chan struct{})}
	if !g.register(sessionID, c) {
		writeError(ws, errors.New("session already connected"))
		return
	}
	c.send <- message{Type: "hello", SessionID: sessionID}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.writeLoop(sessionID, c)
	}()

	bridge.Connect(sessionID, userID)
	g.readLoop(bridge, sessionID, c)

	g.unregister(sessionID, c)
	if err := bridge.Disconnect(sessionID); err != nil {
		log.Printf("[%s] disconnect: %v", sessionID, err)
	}
	c.close()
	wg.Wait()
}

func (g *Gateway) register(sessionID string, c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.conns[sessionID]; exists {
		return false
	}
	g.conns[sessionID] = c
	return true
}

func (g *Gateway) unregister(sessionID string, c *conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[sessionID] == c {
		delete(g.conns, sessionID)
	}
}

func (g *Gateway) readAuth(ws *websocket.Conn) error {
	_ = ws.SetReadDeadline(time.Now().Add(writeWait))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()
	mt, data, err := ws.ReadMessage()
	if err != nil {
		return errors.New("auth required")
	}
	if mt != websocket.TextMessage {
		return errors.New("invalid auth frame")
	}
	var m message
	if err := json.Unmarshal(data, &m); err != nil || strings.ToLower(m.Type) != "auth" || !middleware.CheckPassword(authRequest(m.Password), g.authPassword) {
		return errors.New("unauthorized")
	}
	return nil
}

// authRequest lets an in-band password go through the same check as headers.
func authRequest(password string) *http.Request {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Auth-Token", password)
	return r
}

func (g *Gateway) readLoop(bridge Bridge, sessionID string, c *conn) {
	c.ws.SetReadLimit(64 * 1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] ws read error: %v", sessionID, err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			g.reply(c, message{Type: "error", Error: "invalid json"})
			continue
		}
		switch strings.ToLower(m.Type) {
		case "transcription":
			if err := bridge.OnFragment(sessionID, m.Text, m.IsFinal); err != nil {
				g.reply(c, message{Type: "error", Error: err.Error()})
			}
		case "bye":
			return
		default:
			g.reply(c, message{Type: "error", Error: "unknown message type " + m.Type})
		}
	}
}

func (g *Gateway) reply(c *conn, m message) {
	select {
	case c.send <- m:
	default:
	}
}

func (g *Gateway) writeLoop(sessionID string, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case m := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(m); err != nil {
				log.Printf("[%s] ws write error: %v", sessionID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func writeError(ws *websocket.Conn, err error) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteJSON(message{Type: "error", Error: err.Error()})
}
