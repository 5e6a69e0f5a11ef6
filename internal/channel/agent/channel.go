// Package agent implements the coordinator's single full-duplex
// connection to the agent (§4.5). It enforces the single-client
// invariant, ingests events/breakpoints/commits and emits modified
// breakpoints back. Grounded on the teacher's
// internal/orchestrator/streaming.Client (ReadPump/WritePump over
// gorilla/websocket with a ping/pong heartbeat) and
// internal/gateway/websocket.Hub (single registration channel enforcing
// an occupancy invariant), merged into one type since the agent channel
// has exactly one slot rather than a client set.
package agent

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
	"github.com/agentbreak/coordinator/pkg/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize on the agent side uses gorilla's default limits per
	// §4.5 ("default limits on the agent side"); 0 leaves ReadLimit
	// unset, i.e. gorilla's built-in default, which places no cap on
	// message size.
	maxMessageSize = 0
)

// Handler receives decoded inbound agent messages. All calls happen on
// the channel's read goroutine; the controller is expected to hand them
// to its own serialized execution lane (§5) rather than act on them
// inline.
type Handler interface {
	OnEvent(ctx context.Context, data *wire.AgentEventData)
	OnBreakpoint(ctx context.Context, data *wire.AgentBreakpointData)
	OnCommit(ctx context.Context, data *wire.AgentCommitData)
	OnProtocolError(ctx context.Context, err error)
	OnDisconnected(ctx context.Context)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub holds the single agent connection slot.
type Hub struct {
	mu      sync.Mutex
	current *Channel
	logger  *logger.Logger
}

// NewHub creates an empty agent-channel hub.
func NewHub(lg *logger.Logger) *Hub {
	return &Hub{logger: lg}
}

// Accept upgrades the HTTP request to a websocket connection and
// registers it as the single agent connection. If a connection is
// already registered, the new socket is upgraded only long enough to be
// sent a close frame with a descriptive reason, then dropped; the
// existing session is left completely undisturbed (§4.5, invariant 5
// of the testable properties).
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, handler Handler) (*Channel, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.Transport, "agent websocket upgrade failed", err)
	}

	h.mu.Lock()
	if h.current != nil {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "an agent is already connected"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return nil, coorderrors.New(coorderrors.Transport, "rejected second agent connection")
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

// Channel is the single agent websocket connection.
type Channel struct {
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	logger *logger.Logger
	once   sync.Once
}

// Run starts the read and write pumps and blocks until the connection
// closes, at which point it calls handler.OnDisconnected.
func (c *Channel) Run(ctx context.Context, handler Handler) {
	go c.writePump()
	c.readPump(ctx, handler)
}

func (c *Channel) readPump(ctx context.Context, handler Handler) {
	defer func() {
		c.hub.clear(c)
		close(c.send)
		_ = c.conn.Close()
		handler.OnDisconnected(ctx)
	}()

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(maxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("agent websocket read error", zap.Error(err))
			}
			return
		}

		env, err := wire.DecodeAgentEnvelope(raw)
		if err != nil {
			handler.OnProtocolError(ctx, err)
			return
		}

		switch env.Message {
		case wire.AgentMsgEvent:
			data, err := wire.DecodeEventData(env.Data)
			if err != nil {
				handler.OnProtocolError(ctx, err)
				return
			}
			handler.OnEvent(ctx, data)
		case wire.AgentMsgBreakpoint:
			data, err := wire.DecodeBreakpointData(env.Data)
			if err != nil {
				handler.OnProtocolError(ctx, err)
				return
			}
			handler.OnBreakpoint(ctx, data)
		case wire.AgentMsgCommit:
			data, err := wire.DecodeCommitData(env.Data)
			if err != nil {
				handler.OnProtocolError(ctx, err)
				return
			}
			handler.OnCommit(ctx, data)
		}
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

// SendBreakpoint encodes and queues the (possibly mutated) breakpoint for
// delivery to the agent. It never blocks the caller's lane: a full send
// buffer drops the write and logs, mirroring the non-blocking outbound
// discipline of §5.
func (c *Channel) SendBreakpoint(bp *model.Breakpoint) error {
	raw, err := wire.EncodeBreakpointEnvelope(bp)
	if err != nil {
		return err
	}
	select {
	case c.send <- raw:
		return nil
	default:
		c.logger.Warn("agent send buffer full, dropping breakpoint echo", zap.String("breakpoint", bp.UUID))
		return coorderrors.New(coorderrors.Transport, "agent send buffer full")
	}
}

// Close closes the connection with a descriptive reason, used both for
// the controller-driven "close this session" paths (AGENT_PROTOCOL,
// PARSE, PROTOCOL) and for shutdown.
func (c *Channel) Close(reason string) {
	c.once.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}
