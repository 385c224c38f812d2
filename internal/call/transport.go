package call

import (
	"context"

	"vidcall/internal/core/domain"
	"vidcall/internal/media"
)

// Transport is one negotiated media leg of a call. The session state
// machine drives negotiation; the transport owns the actual connection and
// reports its fate through the callbacks.
type Transport interface {
	media.TrackBinder

	CreateOffer(ctx context.Context) (domain.SessionDescription, error)

	// CreateAnswer requires the remote offer to have been applied first.
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)

	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(cand domain.ICECandidate) error

	// RequestKeyframe asks the remote sender for a refresh, so recordings
	// start from a decodable frame.
	RequestKeyframe() error

	OnICECandidate(fn func(domain.ICECandidate))
	OnConnected(fn func())
	OnFailed(fn func())
	OnRemoteVideo(fn func(media.VideoTrack))
	OnRemoteAudio(fn func(media.AudioTrack))

	Close() error
}

// TransportFactory builds a fresh transport for each negotiation attempt.
type TransportFactory func(ctx context.Context) (Transport, error)

// Signaler delivers envelopes to the relay.
type Signaler interface {
	Send(ctx context.Context, env domain.Envelope) error
}
