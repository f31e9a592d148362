package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	wsPongWait = 60 * time.Second

	// Send pings to the peer with this period. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// Maximum frame size, matching the broker-side cap.
	wsMaxFrameBytes = 10 << 20

	// Budget for ingesting one frame.
	wsIngestWait = 30 * time.Second
)

// upgrader configures the WebSocket handshake. CheckOrigin is permissive;
// frames authenticate themselves through their envelope keys.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSession serializes writes. Acks from the read loop and keepalive pings
// from the ping loop share the connection.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(messageType, data)
}

// handleWS upgrades the request and ingests envelope frames until the peer
// goes away. Every frame is answered with a success or error ack.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.d.Processor == nil {
		writeError(w, http.StatusServiceUnavailable, "Ingest unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	session := &wsSession{conn: conn}
	stop := make(chan struct{})
	defer close(stop)
	go pingLoop(session, stop)

	source := "ws:" + r.RemoteAddr
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsIngestWait)
		n, err := s.d.Processor.Process(ctx, "ws", source, frame)
		cancel()

		ack := map[string]any{"success": err == nil, "accounts": n}
		if err != nil {
			ack["error"] = err.Error()
		}
		body, _ := json.Marshal(ack)
		if err := session.write(websocket.TextMessage, body); err != nil {
			return
		}
	}
}

func pingLoop(session *wsSession, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := session.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
