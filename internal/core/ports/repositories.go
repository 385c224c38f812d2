package ports

import (
	"context"

	"vidcall/internal/core/domain"
)

// Connection is a live signaling transport connection as the registry and
// relay see it. Send must be safe for concurrent use; implementations
// serialize writes so envelopes for a given target keep relay order.
type Connection interface {
	ID() domain.ConnID
	Send(ctx context.Context, v interface{}) error
}

// PresenceRegistry maps a peer identity to its current live connection.
// Exactly one connection may be bound to a peer at a time; re-registration
// overwrites. No persistence: state is rebuilt from scratch on restart.
type PresenceRegistry interface {
	// Register binds peerID to conn, overwriting any prior mapping.
	Register(ctx context.Context, peerID domain.PeerID, conn Connection) error

	// Resolve returns the connection currently bound to peerID.
	Resolve(ctx context.Context, peerID domain.PeerID) (Connection, bool)

	// Unregister removes every mapping whose connection equals conn and
	// returns the freed peer identity, or ok=false if conn was never
	// registered.
	Unregister(ctx context.Context, conn Connection) (domain.PeerID, bool)

	// Snapshot returns the identifiers of all currently registered peers,
	// sorted for stable broadcasts.
	Snapshot(ctx context.Context) []domain.PeerID

	// Connections returns every live registered connection, for fan-out
	// broadcasts.
	Connections(ctx context.Context) []Connection
}
