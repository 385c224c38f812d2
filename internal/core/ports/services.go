package ports

import (
	"context"

	"vidcall/internal/core/domain"
)

// RelayService forwards negotiation envelopes between live connections. It
// is a stateless forwarding function over the PresenceRegistry.
type RelayService interface {
	// Relay resolves env.To and forwards the envelope verbatim. When the
	// target is absent it sends an unavailable notice back to env.From for
	// offers and drops everything else silently.
	Relay(ctx context.Context, env domain.Envelope) error

	// BroadcastPresence sends the current registry snapshot to every live
	// connection.
	BroadcastPresence(ctx context.Context)
}

// AuthService validates and issues the identity tokens used to tag peers on
// connect. The relay performs no further authentication of signaling
// messages.
type AuthService interface {
	GenerateToken(peerID domain.PeerID) (string, error)
	ValidateToken(token string) (*TokenClaims, error)
}

// TokenClaims is the identity extracted from a validated token.
type TokenClaims struct {
	PeerID domain.PeerID
}

// ArtifactStore receives finalized recording artifacts.
type ArtifactStore interface {
	Save(ctx context.Context, artifact domain.Artifact) error
}

// SignalMetrics records signaling-plane measurements.
type SignalMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	PeerRegistered(total int)
	PeerUnregistered(total int)
	EnvelopeRelayed(t domain.EnvelopeType)
	RelayUnavailable()
	PresenceBroadcast(fanout int)
}
