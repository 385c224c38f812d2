package domain

import "encoding/json"

// EnvelopeType tags a negotiation envelope.
type EnvelopeType string

const (
	EnvelopeRegister     EnvelopeType = "register"
	EnvelopeOffer        EnvelopeType = "offer"
	EnvelopeAnswer       EnvelopeType = "answer"
	EnvelopeICECandidate EnvelopeType = "ice-candidate"
	EnvelopeEnd          EnvelopeType = "end"
	EnvelopeReject       EnvelopeType = "reject"
	EnvelopeUnavailable  EnvelopeType = "unavailable"
)

// Envelope is one addressed signaling message. The relay forwards it
// verbatim and never inspects Payload.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	From    PeerID          `json:"from,omitempty"`
	To      PeerID          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsNegotiation reports whether the envelope type is one a client may ask
// the relay to forward.
func (t EnvelopeType) IsNegotiation() bool {
	switch t {
	case EnvelopeOffer, EnvelopeAnswer, EnvelopeICECandidate, EnvelopeEnd, EnvelopeReject:
		return true
	}
	return false
}

// RegisterPayload binds a peer identity to the sending connection.
type RegisterPayload struct {
	PeerID PeerID `json:"peer_id"`
}

// UnavailablePayload is sent back to an offer's sender when the target peer
// has no live connection.
type UnavailablePayload struct {
	To PeerID `json:"to"`
}

func NewEnvelope(t EnvelopeType, from, to PeerID, payload interface{}) (Envelope, error) {
	env := Envelope{Type: t, From: from, To: to}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = raw
	}
	return env, nil
}
