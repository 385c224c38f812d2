package domain

// SessionDescription is the SDP payload carried by offer and answer
// envelopes. Field names follow the W3C RTCSessionDescription JSON shape so
// browser peers interoperate without translation.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is the payload of an ice-candidate envelope, in the
// RTCIceCandidateInit JSON shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}
