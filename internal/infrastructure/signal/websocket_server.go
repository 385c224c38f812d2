package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"
	ctxlog "vidcall/pkg/logger"
	"vidcall/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer handles one connection-event at a time per connection but
// concurrently across connections. The presence registry is the only shared
// state; each register/unregister is a single atomic update.
type WebSocketServer struct {
	registry ports.PresenceRegistry
	relay    ports.RelayService
	metrics  ports.SignalMetrics

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	messageRate  rate.Limit
	messageBurst int

	logger *zap.SugaredLogger
	ctxLog *ctxlog.ContextLogger
}

func NewWebSocketServer(registry ports.PresenceRegistry, relay ports.RelayService, metrics ports.SignalMetrics, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		registry:     registry,
		relay:        relay,
		metrics:      metrics,
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
		ctxLog:       ctxlog.NewContextLogger(logger.Desugar()),
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

// SetMessageRateLimit enables per-connection message rate limiting.
func (s *WebSocketServer) SetMessageRateLimit(perSecond float64, burst int) {
	s.messageRate = rate.Limit(perSecond)
	s.messageBurst = burst
}

// HandleWebSocket upgrades the request and runs the connection's event loop
// until disconnect.
func (s *WebSocketServer) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	// Peer identity tagged by the auth middleware, if any. Registration is
	// still driven by the register envelope; the tag only constrains it.
	var authPeer domain.PeerID
	if v, ok := c.Get("peer_id"); ok {
		if id, ok := v.(domain.PeerID); ok {
			authPeer = id
		}
	}

	wsc := newWSConnection(domain.ConnID(utils.NewConnID()), conn, s.writeTimeout)
	defer wsc.close()

	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}
	s.logger.Infow("connection opened", "conn_id", wsc.ID(), "remote", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	var limiter *rate.Limiter
	if s.messageRate > 0 {
		limiter = rate.NewLimiter(s.messageRate, s.messageBurst)
	}

	envelopeChan := make(chan domain.Envelope, 10)
	errorChan := make(chan error, 1)
	loopDone := make(chan struct{})
	defer close(loopDone)

	go readEnvelopes(conn, s.readTimeout, envelopeChan, errorChan, loopDone)

	ctx := ctxlog.WithConnID(c.Request.Context(), string(wsc.ID()))
	for {
		select {
		case env := <-envelopeChan:
			if limiter != nil && !limiter.Allow() {
				s.logger.Warnw("message rate exceeded, dropping", "conn_id", wsc.ID(), "type", env.Type)
				continue
			}
			envCtx := ctx
			if peer, ok := wsc.registeredPeer(); ok {
				envCtx = ctxlog.WithPeerID(envCtx, string(peer))
			}
			if err := s.handleEnvelope(envCtx, wsc, authPeer, env); err != nil {
				s.ctxLog.WithContext(envCtx).Sugar().Infow("error handling envelope", "type", env.Type, "error", err)
				s.sendError(envCtx, wsc, err.Error())
			}

		case <-pingTicker.C:
			if err := wsc.ping(); err != nil {
				s.logger.Infow("error sending ping", "conn_id", wsc.ID(), "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "conn_id", wsc.ID(), "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}

	// Re-registration may already have rebound the peer to a newer
	// connection; Unregister only frees the mapping still held by this one.
	if peerID, ok := s.registry.Unregister(context.Background(), wsc); ok {
		if s.metrics != nil {
			s.metrics.PeerUnregistered(len(s.registry.Snapshot(context.Background())))
		}
		s.logger.Infow("peer disconnected", "conn_id", wsc.ID(), "peer_id", peerID)
		s.relay.BroadcastPresence(context.Background())
	} else {
		s.logger.Infow("connection closed before registration", "conn_id", wsc.ID())
	}
}

// readEnvelopes decodes inbound frames onto envelopeChan until a read error
// or until the connection's event loop has exited. Watching loopDone keeps
// the reader from blocking forever on an undrained channel after the loop
// stops consuming.
func readEnvelopes(conn *websocket.Conn, readTimeout time.Duration, envelopeChan chan<- domain.Envelope, errorChan chan<- error, loopDone <-chan struct{}) {
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case errorChan <- err:
			case <-loopDone:
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		select {
		case envelopeChan <- env:
		case <-loopDone:
			return
		}
	}
}

func (s *WebSocketServer) handleEnvelope(ctx context.Context, wsc *wsConnection, authPeer domain.PeerID, env domain.Envelope) error {
	if env.Type == "" {
		return fmt.Errorf("envelope type is required")
	}

	if env.Type == domain.EnvelopeRegister {
		return s.handleRegister(ctx, wsc, authPeer, env)
	}

	if !env.Type.IsNegotiation() {
		return fmt.Errorf("unknown envelope type: %s", env.Type)
	}

	// The sender's identity is whatever this connection registered as, not
	// whatever the envelope claims.
	from, ok := wsc.registeredPeer()
	if !ok {
		return fmt.Errorf("connection is not registered")
	}
	if env.From != "" && env.From != from {
		return fmt.Errorf("from mismatch: connection registered as %s", from)
	}
	env.From = from

	if env.To == "" {
		return fmt.Errorf("envelope target is required")
	}

	return s.relay.Relay(ctx, env)
}

func (s *WebSocketServer) handleRegister(ctx context.Context, wsc *wsConnection, authPeer domain.PeerID, env domain.Envelope) error {
	var payload domain.RegisterPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("invalid register payload: %w", err)
		}
	}
	peerID := payload.PeerID
	if peerID == "" {
		peerID = env.From
	}
	if peerID == "" {
		return fmt.Errorf("peer_id is required")
	}
	if authPeer != "" && peerID != authPeer {
		return fmt.Errorf("peer_id %s does not match authenticated identity", peerID)
	}

	if err := s.registry.Register(ctx, peerID, wsc); err != nil {
		return fmt.Errorf("register peer: %w", err)
	}
	wsc.setPeer(peerID)

	if s.metrics != nil {
		s.metrics.PeerRegistered(len(s.registry.Snapshot(ctx)))
	}
	s.logger.Infow("peer registered", "conn_id", wsc.ID(), "peer_id", peerID)

	// Snapshot taken after the mutation; the newly registered connection is
	// included in the fan-out.
	s.relay.BroadcastPresence(ctx)
	return nil
}

func (s *WebSocketServer) sendError(ctx context.Context, wsc *wsConnection, message string) {
	errMsg := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if err := wsc.Send(ctx, errMsg); err != nil {
		s.logger.Debugw("error response not delivered", "conn_id", wsc.ID(), "error", err)
	}
}

// ConnectedPeers returns the currently registered peer identifiers.
func (s *WebSocketServer) ConnectedPeers() []domain.PeerID {
	return s.registry.Snapshot(context.Background())
}
