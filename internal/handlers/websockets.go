package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// measurementFrame is the per-device payload pushed on each tick.
type measurementFrame struct {
	Device   string  `json:"device"`
	CurrentA float64 `json:"current_a"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for production
}

// wsMeasurements streams converter readings. With ?device= it pushes the
// measured current of that converter on each tick; without it, the full
// state table.
func (h *Handler) wsMeasurements(c *gin.Context) {
	interval := h.parseInterval(c)
	device := c.Query("device")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	// Send an initial frame immediately.
	if err := h.sendReading(c.Request.Context(), conn, device); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendReading(c.Request.Context(), conn, device); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return defaultInterval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// sendReading fetches and writes the current frame with a write deadline.
func (h *Handler) sendReading(ctx context.Context, conn *websocket.Conn, device string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

	if device != "" {
		current, err := h.services.Monitoring.Measured(ctx, device)
		if err != nil {
			if h.log != nil {
				h.log.Errorw("ws_measured_failed", "device", device, "err", err)
			}
			return conn.WriteJSON(wsEnvelope{Type: "error", Error: err.Error()})
		}
		return conn.WriteJSON(wsEnvelope{
			Type: "measurement",
			Data: measurementFrame{Device: device, CurrentA: current},
		})
	}

	states, err := h.services.Monitoring.States(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_states_failed", "err", err)
		}
		return err
	}
	return conn.WriteJSON(wsEnvelope{Type: "states", Data: states})
}
