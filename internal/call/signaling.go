package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vidcall/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientWriteTimeout = 10 * time.Second

// Client is the signaling connection of one peer: it registers the peer on
// dial, sends negotiation envelopes, and dispatches inbound traffic to the
// envelope and presence handlers.
type Client struct {
	conn   *websocket.Conn
	peerID domain.PeerID
	logger *zap.SugaredLogger

	writeMu sync.Mutex

	handlerMu  sync.RWMutex
	onEnvelope func(domain.Envelope)
	onPresence func([]domain.PeerID)

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay and registers peerID on the new connection.
func Dial(ctx context.Context, url string, peerID domain.PeerID, logger *zap.SugaredLogger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &Client{
		conn:   conn,
		peerID: peerID,
		logger: logger,
		done:   make(chan struct{}),
	}

	register, err := domain.NewEnvelope(domain.EnvelopeRegister, peerID, "", domain.RegisterPayload{PeerID: peerID})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.Send(ctx, register); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register peer: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// OnEnvelope sets the handler for inbound negotiation envelopes.
func (c *Client) OnEnvelope(fn func(domain.Envelope)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onEnvelope = fn
}

// OnPresence sets the handler for presence snapshots.
func (c *Client) OnPresence(fn func([]domain.PeerID)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onPresence = fn
}

// Send writes one envelope. Safe for concurrent use.
func (c *Client) Send(ctx context.Context, env domain.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(clientWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debugw("signaling read loop ended", "error", err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one raw message by its type tag. Presence snapshots and
// negotiation envelopes share the wire, distinguished only by type.
func (c *Client) dispatch(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.logger.Warnw("undecodable signaling message", "error", err)
		return
	}

	c.handlerMu.RLock()
	onEnvelope, onPresence := c.onEnvelope, c.onPresence
	c.handlerMu.RUnlock()

	if head.Type == string(domain.PresenceUpdateType) {
		var update domain.PresenceUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			c.logger.Warnw("undecodable presence update", "error", err)
			return
		}
		if onPresence != nil {
			onPresence(update.Peers)
		}
		return
	}

	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warnw("undecodable envelope", "error", err)
		return
	}
	if onEnvelope != nil {
		onEnvelope(env)
	}
}

// Close shuts the connection down; the read loop exits shortly after.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
