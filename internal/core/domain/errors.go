package domain

import "errors"

var (
	ErrPeerNotConnected   = errors.New("peer not connected")
	ErrSessionNotIdle     = errors.New("session is not idle")
	ErrSessionEnded       = errors.New("session has ended")
	ErrSessionBusy        = errors.New("session already negotiating with another peer")
	ErrNoTransport        = errors.New("no transport session")
	ErrRecordingActive    = errors.New("recording already active")
	ErrNoRecordableTracks = errors.New("no media tracks available for recording")
	ErrInvalidMode        = errors.New("invalid recording mode")
)
