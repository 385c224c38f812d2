package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/media"
	"vidcall/internal/recording"

	"go.uber.org/zap"
)

// Session is the client-side call state machine. Exactly one remote peer per
// session; Ended is terminal, a new call needs a new session. All handlers
// run to completion under the session mutex, so overlapping signaling events
// observe consistent state.
type Session struct {
	self         domain.PeerID
	signaler     Signaler
	newTransport TransportFactory
	pipeline     *media.Pipeline
	recorder     *recording.Recorder
	logger       *zap.SugaredLogger

	mu            sync.Mutex
	phase         domain.CallPhase
	peer          domain.PeerID
	transport     Transport
	remoteDescSet bool
	pendingICE    []domain.ICECandidate
	lastOfferSDP  string
	startedAt     time.Time
	endedAt       time.Time
	cause         domain.EndCause

	remoteVideo media.VideoTrack
	remoteAudio media.AudioTrack

	onPhase func(domain.CallPhase)
}

func NewSession(
	self domain.PeerID,
	signaler Signaler,
	factory TransportFactory,
	pipeline *media.Pipeline,
	recorder *recording.Recorder,
	logger *zap.SugaredLogger,
) *Session {
	return &Session{
		self:         self,
		signaler:     signaler,
		newTransport: factory,
		pipeline:     pipeline,
		recorder:     recorder,
		logger:       logger,
	}
}

// OnPhaseChange registers the phase observer. Called outside the session
// mutex.
func (s *Session) OnPhaseChange(fn func(domain.CallPhase)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPhase = fn
}

func (s *Session) Phase() domain.CallPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Peer() domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Session) Cause() domain.EndCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Duration is zero until the call connects; while Active it grows, after
// Ended it is frozen at the connected span.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	if s.phase == domain.PhaseEnded {
		return s.endedAt.Sub(s.startedAt)
	}
	return time.Since(s.startedAt)
}

// Initiate starts an outgoing call: builds the transport, attaches local
// media and sends the offer.
func (s *Session) Initiate(ctx context.Context, peer domain.PeerID) error {
	s.mu.Lock()

	if s.phase == domain.PhaseEnded {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	if s.phase != domain.PhaseIdle {
		s.mu.Unlock()
		return domain.ErrSessionNotIdle
	}

	transport, err := s.setupTransportLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create offer: %w", err)
	}

	s.peer = peer
	s.phase = domain.PhaseConnecting
	notify := s.onPhase
	s.mu.Unlock()

	if notify != nil {
		notify(domain.PhaseConnecting)
	}

	env, err := domain.NewEnvelope(domain.EnvelopeOffer, s.self, peer, offer)
	if err != nil {
		return err
	}
	if err := s.signaler.Send(ctx, env); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	s.logger.Infow("call initiated", "peer", peer)
	return nil
}

// AcceptIncoming answers an incoming offer. A retransmitted offer carrying
// the exact SDP already answered is ignored; an offer from a different peer
// while engaged is rejected.
func (s *Session) AcceptIncoming(ctx context.Context, env domain.Envelope) error {
	var offer domain.SessionDescription
	if err := json.Unmarshal(env.Payload, &offer); err != nil {
		return fmt.Errorf("decode offer payload: %w", err)
	}

	s.mu.Lock()

	if s.phase == domain.PhaseEnded {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	if s.phase != domain.PhaseIdle {
		if env.From == s.peer && offer.SDP == s.lastOfferSDP {
			s.mu.Unlock()
			s.logger.Debugw("ignoring duplicate offer", "peer", env.From)
			return nil
		}
		s.mu.Unlock()

		reject, err := domain.NewEnvelope(domain.EnvelopeReject, s.self, env.From, nil)
		if err == nil {
			if sendErr := s.signaler.Send(ctx, reject); sendErr != nil {
				s.logger.Warnw("sending reject", "peer", env.From, "error", sendErr)
			}
		}
		return domain.ErrSessionBusy
	}

	transport, err := s.setupTransportLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := transport.SetRemoteDescription(offer); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("apply remote offer: %w", err)
	}
	s.remoteDescSet = true
	s.lastOfferSDP = offer.SDP

	answer, err := transport.CreateAnswer(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create answer: %w", err)
	}

	s.peer = env.From
	s.phase = domain.PhaseConnecting
	notify := s.onPhase
	s.mu.Unlock()

	if notify != nil {
		notify(domain.PhaseConnecting)
	}

	answerEnv, err := domain.NewEnvelope(domain.EnvelopeAnswer, s.self, env.From, answer)
	if err != nil {
		return err
	}
	if err := s.signaler.Send(ctx, answerEnv); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	s.logger.Infow("incoming call accepted", "peer", env.From)
	return nil
}

// HandleAnswer applies the callee's answer and flushes candidates queued
// before the remote description existed, in arrival order.
func (s *Session) HandleAnswer(ctx context.Context, env domain.Envelope) error {
	var answer domain.SessionDescription
	if err := json.Unmarshal(env.Payload, &answer); err != nil {
		return fmt.Errorf("decode answer payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseConnecting || env.From != s.peer {
		s.logger.Debugw("dropping answer", "phase", s.phase, "from", env.From)
		return nil
	}
	if s.transport == nil {
		return domain.ErrNoTransport
	}
	if s.remoteDescSet {
		// Answer retransmission after the description is installed.
		return nil
	}

	if err := s.transport.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("apply remote answer: %w", err)
	}
	s.remoteDescSet = true

	pending := s.pendingICE
	s.pendingICE = nil
	for _, cand := range pending {
		if err := s.transport.AddICECandidate(cand); err != nil {
			s.logger.Warnw("applying queued candidate", "error", err)
		}
	}
	return nil
}

// HandleRemoteICE applies a remote candidate, queueing it when the remote
// description has not arrived yet.
func (s *Session) HandleRemoteICE(ctx context.Context, env domain.Envelope) error {
	var cand domain.ICECandidate
	if err := json.Unmarshal(env.Payload, &cand); err != nil {
		return fmt.Errorf("decode candidate payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseEnded || s.phase == domain.PhaseIdle || env.From != s.peer {
		return nil
	}
	if !s.remoteDescSet {
		s.pendingICE = append(s.pendingICE, cand)
		return nil
	}
	if s.transport == nil {
		return domain.ErrNoTransport
	}
	return s.transport.AddICECandidate(cand)
}

// HandleEnvelope dispatches one inbound signaling envelope.
func (s *Session) HandleEnvelope(ctx context.Context, env domain.Envelope) error {
	switch env.Type {
	case domain.EnvelopeOffer:
		return s.AcceptIncoming(ctx, env)
	case domain.EnvelopeAnswer:
		return s.HandleAnswer(ctx, env)
	case domain.EnvelopeICECandidate:
		return s.HandleRemoteICE(ctx, env)
	case domain.EnvelopeEnd:
		s.handleRemoteTermination(ctx, env.From, domain.CauseRemoteEnd)
		return nil
	case domain.EnvelopeReject:
		s.handleRemoteTermination(ctx, env.From, domain.CauseRemoteReject)
		return nil
	case domain.EnvelopeUnavailable:
		// The callee was gone before the offer reached anyone.
		s.handleRemoteTermination(ctx, s.Peer(), domain.CauseRemoteReject)
		return nil
	default:
		return fmt.Errorf("unexpected envelope type %q", env.Type)
	}
}

func (s *Session) handleRemoteTermination(ctx context.Context, from domain.PeerID, cause domain.EndCause) {
	s.mu.Lock()
	if s.phase == domain.PhaseEnded || s.phase == domain.PhaseIdle || from != s.peer {
		s.mu.Unlock()
		return
	}
	cleanup, notify := s.endLocked(cause)
	s.mu.Unlock()

	cleanup(ctx)
	if notify != nil {
		notify(domain.PhaseEnded)
	}
	s.logger.Infow("call ended by remote", "peer", from, "cause", cause)
}

// End terminates the session locally. Safe to call repeatedly; only the
// first call sends the end envelope and releases resources.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == domain.PhaseEnded {
		s.mu.Unlock()
		return nil
	}
	peer := s.peer
	hadCall := s.phase != domain.PhaseIdle
	cleanup, notify := s.endLocked(domain.CauseLocalEnd)
	s.mu.Unlock()

	if hadCall && peer != "" {
		env, err := domain.NewEnvelope(domain.EnvelopeEnd, s.self, peer, nil)
		if err == nil {
			if sendErr := s.signaler.Send(ctx, env); sendErr != nil {
				s.logger.Warnw("sending end", "peer", peer, "error", sendErr)
			}
		}
	}

	cleanup(ctx)
	if notify != nil {
		notify(domain.PhaseEnded)
	}
	s.logger.Infow("call ended locally", "peer", peer)
	return nil
}

// endLocked transitions to Ended and returns the cleanup to run outside the
// mutex, since closing the transport can re-enter session callbacks.
func (s *Session) endLocked(cause domain.EndCause) (func(context.Context), func(domain.CallPhase)) {
	s.phase = domain.PhaseEnded
	s.cause = cause
	s.endedAt = time.Now()
	s.pendingICE = nil

	transport := s.transport
	remoteVideo, remoteAudio := s.remoteVideo, s.remoteAudio
	s.remoteVideo = nil
	s.remoteAudio = nil
	notify := s.onPhase

	cleanup := func(ctx context.Context) {
		if s.recorder != nil {
			if _, err := s.recorder.Stop(ctx); err != nil {
				s.logger.Warnw("stopping recording on end", "error", err)
			}
		}
		if remoteVideo != nil {
			remoteVideo.Stop()
		}
		if remoteAudio != nil {
			remoteAudio.Stop()
		}
		if transport != nil {
			if err := transport.Close(); err != nil {
				s.logger.Warnw("closing transport", "error", err)
			}
		}
		if s.pipeline != nil {
			s.pipeline.ReleaseAll()
		}
	}
	return cleanup, notify
}

// setupTransportLocked builds the transport, binds local media and wires
// the lifecycle callbacks. Caller holds the mutex.
func (s *Session) setupTransportLocked(ctx context.Context) (Transport, error) {
	transport, err := s.newTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	if s.pipeline != nil {
		if err := s.pipeline.BindTo(transport); err != nil {
			transport.Close()
			return nil, fmt.Errorf("bind local media: %w", err)
		}
	}

	transport.OnICECandidate(func(cand domain.ICECandidate) {
		s.sendCandidate(cand)
	})
	transport.OnConnected(func() {
		s.transportConnected()
	})
	transport.OnFailed(func() {
		s.transportFailed()
	})
	transport.OnRemoteVideo(func(t media.VideoTrack) {
		s.mu.Lock()
		s.remoteVideo = t
		s.mu.Unlock()
	})
	transport.OnRemoteAudio(func(t media.AudioTrack) {
		s.mu.Lock()
		s.remoteAudio = t
		s.mu.Unlock()
	})

	s.transport = transport
	s.remoteDescSet = false
	s.pendingICE = nil
	return transport, nil
}

func (s *Session) sendCandidate(cand domain.ICECandidate) {
	s.mu.Lock()
	peer := s.peer
	ended := s.phase == domain.PhaseEnded
	s.mu.Unlock()

	if ended || peer == "" {
		return
	}
	env, err := domain.NewEnvelope(domain.EnvelopeICECandidate, s.self, peer, cand)
	if err != nil {
		s.logger.Errorw("building candidate envelope", "error", err)
		return
	}
	if err := s.signaler.Send(context.Background(), env); err != nil {
		s.logger.Warnw("sending candidate", "error", err)
	}
}

func (s *Session) transportConnected() {
	s.mu.Lock()
	if s.phase != domain.PhaseConnecting {
		s.mu.Unlock()
		return
	}
	s.phase = domain.PhaseActive
	s.startedAt = time.Now()
	notify := s.onPhase
	s.mu.Unlock()

	if notify != nil {
		notify(domain.PhaseActive)
	}
	s.logger.Infow("call connected", "peer", s.Peer())
}

func (s *Session) transportFailed() {
	s.mu.Lock()
	if s.phase == domain.PhaseEnded || s.phase == domain.PhaseIdle {
		s.mu.Unlock()
		return
	}
	cleanup, notify := s.endLocked(domain.CauseTransportFailed)
	s.mu.Unlock()

	cleanup(context.Background())
	if notify != nil {
		notify(domain.PhaseEnded)
	}
	s.logger.Warnw("transport failed, call ended")
}

// StartRecording composes the current call media into a recording. The
// remote sender is asked for a keyframe so the file starts decodable.
func (s *Session) StartRecording(ctx context.Context, mode domain.RecordingMode) error {
	s.mu.Lock()
	if s.recorder == nil {
		s.mu.Unlock()
		return domain.ErrNoRecordableTracks
	}
	if s.phase == domain.PhaseEnded {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	transport := s.transport
	sources := recording.SourceSet{
		Remote:      s.remoteVideo,
		RemoteAudio: s.remoteAudio,
	}
	s.mu.Unlock()

	if s.pipeline != nil {
		active := s.pipeline.ActiveVideo()
		if s.pipeline.Sharing() {
			sources.Screen = active
			sources.ScreenAudio = s.pipeline.ScreenAudio()
		} else {
			sources.Camera = active
		}
		sources.LocalAudio = s.pipeline.LocalAudio()
	}

	if transport != nil {
		if err := transport.RequestKeyframe(); err != nil {
			s.logger.Debugw("keyframe request failed", "error", err)
		}
	}
	return s.recorder.Start(ctx, mode, sources)
}

// StopRecording finalizes the active recording, a no-op when idle.
func (s *Session) StopRecording(ctx context.Context) (*domain.Artifact, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.Stop(ctx)
}

// Recording reports whether a recording job is active.
func (s *Session) Recording() bool {
	return s.recorder != nil && s.recorder.Recording()
}

// RemoteTracks returns the current inbound tracks, nil before connection.
func (s *Session) RemoteTracks() (media.VideoTrack, media.AudioTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteVideo, s.remoteAudio
}
