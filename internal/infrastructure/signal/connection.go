package signal

import (
	"context"
	"sync"
	"time"

	"vidcall/internal/core/domain"

	"github.com/gorilla/websocket"
)

// wsConnection wraps one live websocket and implements ports.Connection.
// All writes go through a single mutex so envelopes for a given target are
// delivered in relay order.
type wsConnection struct {
	id           domain.ConnID
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex

	peerMu sync.RWMutex
	peer   domain.PeerID
}

func newWSConnection(id domain.ConnID, conn *websocket.Conn, writeTimeout time.Duration) *wsConnection {
	return &wsConnection{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConnection) ID() domain.ConnID { return c.id }

// setPeer tags the identity this connection registered as, mirroring the
// registry's latest-wins binding.
func (c *wsConnection) setPeer(peerID domain.PeerID) {
	c.peerMu.Lock()
	c.peer = peerID
	c.peerMu.Unlock()
}

func (c *wsConnection) registeredPeer() (domain.PeerID, bool) {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peer, c.peer != ""
}

func (c *wsConnection) Send(ctx context.Context, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteJSON(v)
}

func (c *wsConnection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConnection) close() error {
	return c.conn.Close()
}
