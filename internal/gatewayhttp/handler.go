// Package gatewayhttp serves the /ws/chat upgrade and wires a fresh
// orchestrator.Connection to each socket, grounded on the teacher pack's
// hubenschmidt-asr-llm-tts gateway handler (upgrader config, a mutex-guarded
// sender, and a read loop dispatching text/binary frames) generalized to
// spec.md §6's query-param handshake and device-eviction rules.
package gatewayhttp

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vanta-voice/gateway/internal/orchestrator"
	"github.com/vanta-voice/gateway/internal/validate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DepsFactory builds the per-connection dependency bundle; it is a factory
// rather than a fixed value so each Connection gets its own TTS/STT adapter
// instances (Deepgram and Lokutor/Cartesia clients hold per-session state).
type DepsFactory func() orchestrator.Deps

// Handler upgrades /ws/chat and supervises its connections' lifecycle.
type Handler struct {
	deps     DepsFactory
	registry *orchestrator.Registry
}

func NewHandler(deps DepsFactory, registry *orchestrator.Registry) *Handler {
	return &Handler{deps: deps, registry: registry}
}

// Register mounts the /ws/chat route on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/ws/chat", h.serveWS)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(orchestrator.CloseMissingDeviceID, "device_id is required"))
		conn.Close()
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" || !validate.ValidateSessionID(sessionID) {
		sessionID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gatewayhttp: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sender := newWSSender(conn)
	deps := h.deps()
	deps.Registry = h.registry

	connID := uuid.NewString()
	c := orchestrator.NewConnection(connID, deviceID, sessionID, sender, deps)

	h.registry.Register(deviceID, c)
	defer func() {
		c.Close()
	}()

	c.Start()
	h.readLoop(conn, c)
}

func (h *Handler) readLoop(conn *websocket.Conn, c *orchestrator.Connection) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.HandleBinary(data)
		case websocket.TextMessage:
			var frame orchestrator.InboundFrame
			if jsonErr := json.Unmarshal(data, &frame); jsonErr != nil {
				continue
			}
			c.HandleJSON(frame)
		}
	}
}

// wsSender implements orchestrator.Sender over a *websocket.Conn, guarding
// writes with a mutex the way gorilla/websocket requires for a single
// connection shared between a read loop and async TTS/LLM goroutines.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

func (s *wsSender) SendJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *wsSender) SendBinary(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (s *wsSender) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return s.conn.Close()
}
