package domain

// CallPhase is the lifecycle phase of one call session.
type CallPhase int

const (
	PhaseIdle CallPhase = iota
	PhaseConnecting
	PhaseActive
	PhaseEnded
)

func (p CallPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EndCause records why a session reached PhaseEnded.
type EndCause string

const (
	CauseLocalEnd        EndCause = "local-end"
	CauseRemoteEnd       EndCause = "remote-end"
	CauseRemoteReject    EndCause = "remote-reject"
	CauseTransportFailed EndCause = "transport-failed"
)
