package domain

// PeerID identifies a user across all signaling exchanges. It is opaque to
// the relay and stable for the lifetime of a client session; the auth
// collaborator supplies it.
type PeerID string

// ConnID identifies one live transport connection on the signaling server.
// It is transient: created on connect, destroyed on disconnect.
type ConnID string

// PresenceUpdate is the snapshot broadcast to every connection after a
// register or unregister.
type PresenceUpdate struct {
	Type  string   `json:"type"`
	Peers []PeerID `json:"peers"`
}

const PresenceUpdateType = "presence-update"

func NewPresenceUpdate(peers []PeerID) PresenceUpdate {
	return PresenceUpdate{Type: PresenceUpdateType, Peers: peers}
}
