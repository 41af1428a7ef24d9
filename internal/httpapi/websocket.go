package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// MaxWSConnections bounds total concurrent command-stream connections,
// carried over from the teacher's MaxWSConnectionsTotal.
const MaxWSConnections = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // demo control plane: no cross-origin risk worth restricting
	},
}

// wsMessage is one command submitted over the WebSocket stream: verb plus
// the same body shape POST /commands/{verb} accepts.
type wsMessage struct {
	Verb string          `json:"verb"`
	Body json.RawMessage `json:"body"`
}

// wsAck is sent back for every message processed, so a client can tell a
// malformed command from a dropped connection.
type wsAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CommandStreamHub accepts a persistent WebSocket per client and applies
// every well-formed message as a Command, for callers that want to push a
// long sequence of commands without one HTTP round trip each — grounded on
// the teacher's WebSocketHub, generalized from a broadcast-only hub to one
// that also reads inbound messages for exactly this control-plane flow
// (the teacher's hub parses inbound JSON too, but only logs it).
type CommandStreamHub struct {
	sink Sink

	mu    sync.Mutex
	count int
}

// NewCommandStreamHub creates a hub applying every decoded command to sink.
func NewCommandStreamHub(sink Sink) *CommandStreamHub {
	return &CommandStreamHub{sink: sink}
}

// HandleWS upgrades the request and streams commands from the client until
// it disconnects.
func (h *CommandStreamHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.count >= MaxWSConnections {
		h.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	h.count++
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.count--
		h.mu.Unlock()
	}()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("sms: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			conn.WriteJSON(wsAck{OK: false, Error: "invalid json"})
			continue
		}

		cmd, err := buildCommand(msg.Verb, msg.Body)
		if err != nil {
			conn.WriteJSON(wsAck{OK: false, Error: err.Error()})
			continue
		}

		h.sink.Enqueue(cmd)
		conn.WriteJSON(wsAck{OK: true})
	}
}
