package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Config governs handshake, heartbeat, and frame-size policy for the
// WebSocket upgrade path.
type Config struct {
	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	MaxMessageBytes   int64
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	return c
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade performs the handshake, registers a Connection, and runs a
// heartbeat loop until the socket closes or a pong timeout elapses. The
// handler callback receives each inbound message; Upgrade returns once the
// connection is fully closed and deregistered.
func Upgrade(w http.ResponseWriter, r *http.Request, registry *Registry, clientIdentifier string, cfg Config, onMessage func(messageType int, data []byte)) error {
	cfg = cfg.withDefaults()

	conn, err := registry.Register(clientIdentifier)
	if err != nil {
		http.Error(w, "connection registry at capacity", http.StatusServiceUnavailable)
		return err
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		registry.Deregister(conn.ID)
		return err
	}
	defer func() {
		registry.Deregister(conn.ID)
		ws.Close()
	}()

	registry.Open(conn.ID)
	ws.SetReadLimit(cfg.MaxMessageBytes)

	_ = ws.SetReadDeadline(time.Now().Add(cfg.HeartbeatInterval + cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		registry.Touch(conn.ID)
		return ws.SetReadDeadline(time.Now().Add(cfg.HeartbeatInterval + cfg.PongTimeout))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			registry.Touch(conn.ID)
			if onMessage != nil {
				onMessage(mt, data)
			}
		}
	}()

	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return err
			}
		case <-done:
			return nil
		}
	}
}
