// Package ui implements the coordinator's single full-duplex connection
// to the UI (§4.6). It enforces the single-UI invariant, streams state
// deltas/messages/commits/export payloads, and accepts control commands.
// Grounded the same way as internal/channel/agent, but the transport
// imposes no maximum incoming message size (export/import payloads can
// be large, §6 "Transport").
package ui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler receives decoded inbound UI messages, one call per envelope.
type Handler interface {
	OnUIEvent(ctx context.Context, env *wire.UIEnvelope)
	OnProtocolError(ctx context.Context, err error)
	OnConnected(ctx context.Context)
	OnDisconnected(ctx context.Context)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub holds the single UI connection slot.
type Hub struct {
	mu      sync.Mutex
	current *Channel
	logger  *logger.Logger
}

// NewHub creates an empty UI-channel hub.
func NewHub(lg *logger.Logger) *Hub {
	return &Hub{logger: lg}
}

// Accept upgrades the request and registers it as the single UI
// connection, rejecting a second attempt with a close frame while
// leaving any existing session untouched (§4.6, same discipline as 4.5).
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, handler Handler) (*Channel, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.Transport, "UI websocket upgrade failed", err)
	}

	h.mu.Lock()
	if h.current != nil {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "a UI is already connected"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return nil, coorderrors.New(coorderrors.Transport, "rejected second UI connection")
	}

	ch := &Channel{conn: conn, hub: h, send: make(chan []byte, 256), logger: h.logger}
	h.current = ch
	h.mu.Unlock()

	return ch, nil
}

func (h *Hub) clear(ch *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == ch {
		h.current = nil
	}
}

// Channel is the single UI websocket connection.
type Channel struct {
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	logger *logger.Logger
	once   sync.Once
}

// Run starts the read and write pumps, notifies handler.OnConnected, and
// blocks until the connection closes.
func (c *Channel) Run(ctx context.Context, handler Handler) {
	go c.writePump()
	handler.OnConnected(ctx)
	c.readPump(ctx, handler)
}

func (c *Channel) readPump(ctx context.Context, handler Handler) {
	defer func() {
		c.hub.clear(c)
		close(c.send)
		_ = c.conn.Close()
		handler.OnDisconnected(ctx)
	}()

	// No SetReadLimit call: the UI channel imposes no maximum incoming
	// message size (gorilla's default read limit of 0 means unlimited).
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("UI websocket read error", zap.Error(err))
			}
			return
		}

		env, err := wire.DecodeUIEnvelope(raw)
		if err != nil {
			if coorderrors.Is(err, coorderrors.UIProtocol) {
				// Semantically invalid, not fatal: reported back as an
				// `error` event, the session continues (§7).
				c.SendError(err.Error())
				continue
			}
			handler.OnProtocolError(ctx, err)
			return
		}
		handler.OnUIEvent(ctx, env)
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a pre-encoded UI envelope for delivery. Non-blocking per
// §5: a full buffer drops the message and logs rather than stalling the
// controller's execution lane.
func (c *Channel) Send(raw []byte) {
	select {
	case c.send <- raw:
	default:
		c.logger.Warn("UI send buffer full, dropping message")
	}
}

// SendEvent encodes and sends a core->UI event.
func (c *Channel) SendEvent(event string, content interface{}) error {
	raw, err := wire.EncodeUIEnvelope(event, content)
	if err != nil {
		return err
	}
	c.Send(raw)
	return nil
}

// SendError is a convenience wrapper for the `error` event of §6/§7.
func (c *Channel) SendError(message string) {
	_ = c.SendEvent(wire.UIEventError, wire.ErrorContent{Message: message})
}

// Close closes the connection with a descriptive reason.
func (c *Channel) Close(reason string) {
	c.once.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}
