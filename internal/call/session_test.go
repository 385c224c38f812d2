package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/media"
	"vidcall/internal/recording"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSignaler struct {
	mu   sync.Mutex
	sent []domain.Envelope
}

func (f *fakeSignaler) Send(ctx context.Context, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSignaler) byType(t domain.EnvelopeType) []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Envelope
	for _, env := range f.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeTransport struct {
	mu          sync.Mutex
	remoteDescs []domain.SessionDescription
	candidates  []domain.ICECandidate
	closed      bool
	keyframes   int

	onICE       func(domain.ICECandidate)
	onConnected func()
	onFailed    func()
}

func (f *fakeTransport) BindVideo(t media.VideoTrack) error    { return nil }
func (f *fakeTransport) BindAudio(t media.AudioTrack) error    { return nil }
func (f *fakeTransport) ReplaceVideo(t media.VideoTrack) error { return nil }

func (f *fakeTransport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (f *fakeTransport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (f *fakeTransport) SetRemoteDescription(desc domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDescs = append(f.remoteDescs, desc)
	return nil
}

func (f *fakeTransport) AddICECandidate(cand domain.ICECandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, cand)
	return nil
}

func (f *fakeTransport) RequestKeyframe() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyframes++
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(domain.ICECandidate)) { f.onICE = fn }
func (f *fakeTransport) OnConnected(fn func())                      { f.onConnected = fn }
func (f *fakeTransport) OnFailed(fn func())                         { f.onFailed = fn }
func (f *fakeTransport) OnRemoteVideo(fn func(media.VideoTrack))    {}
func (f *fakeTransport) OnRemoteAudio(fn func(media.AudioTrack))    {}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) appliedCandidates() []domain.ICECandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ICECandidate(nil), f.candidates...)
}

func newSessionFixture(t *testing.T) (*Session, *fakeSignaler, *fakeTransport) {
	t.Helper()
	signaler := &fakeSignaler{}
	transport := &fakeTransport{}
	factory := func(ctx context.Context) (Transport, error) { return transport, nil }

	pipeline := media.NewPipeline(media.NewPatternDevices(), zap.NewNop().Sugar())
	_, err := pipeline.AcquireLocal(context.Background(), media.Opts{})
	require.NoError(t, err)

	recorder := recording.NewRecorder(
		recording.Config{Width: 160, Height: 120, FPS: 10, SampleRate: 8000, Channels: 1},
		nil, zap.NewNop().Sugar())

	sess := NewSession("alice", signaler, factory, pipeline, recorder, zap.NewNop().Sugar())
	return sess, signaler, transport
}

func mustEnvelope(t *testing.T, typ domain.EnvelopeType, from domain.PeerID, payload interface{}) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(typ, from, "alice", payload)
	require.NoError(t, err)
	return env
}

func TestInitiateSendsOfferAndConnects(t *testing.T) {
	sess, signaler, _ := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	assert.Equal(t, domain.PhaseConnecting, sess.Phase())
	assert.Equal(t, domain.PeerID("bob"), sess.Peer())

	offers := signaler.byType(domain.EnvelopeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.PeerID("bob"), offers[0].To)

	var sdp domain.SessionDescription
	require.NoError(t, json.Unmarshal(offers[0].Payload, &sdp))
	assert.Equal(t, "offer", sdp.Type)
}

func TestInitiateTwiceFails(t *testing.T) {
	sess, _, _ := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	assert.ErrorIs(t, sess.Initiate(ctx, "carol"), domain.ErrSessionNotIdle)
}

func TestCandidatesQueuedUntilAnswerThenFlushedInOrder(t *testing.T) {
	sess, _, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))

	for _, c := range []string{"cand-1", "cand-2", "cand-3"} {
		env := mustEnvelope(t, domain.EnvelopeICECandidate, "bob", domain.ICECandidate{Candidate: c})
		require.NoError(t, sess.HandleRemoteICE(ctx, env))
	}
	assert.Empty(t, transport.appliedCandidates(), "no candidates before the answer")

	answer := mustEnvelope(t, domain.EnvelopeAnswer, "bob", domain.SessionDescription{Type: "answer", SDP: "v=0"})
	require.NoError(t, sess.HandleAnswer(ctx, answer))

	applied := transport.appliedCandidates()
	require.Len(t, applied, 3)
	assert.Equal(t, "cand-1", applied[0].Candidate)
	assert.Equal(t, "cand-2", applied[1].Candidate)
	assert.Equal(t, "cand-3", applied[2].Candidate)

	// A candidate arriving after the answer is applied immediately.
	late := mustEnvelope(t, domain.EnvelopeICECandidate, "bob", domain.ICECandidate{Candidate: "cand-4"})
	require.NoError(t, sess.HandleRemoteICE(ctx, late))
	assert.Len(t, transport.appliedCandidates(), 4)

	// Replaying the original candidate list must not error and must not
	// refire the pre-answer queue.
	for _, c := range []string{"cand-1", "cand-2", "cand-3"} {
		env := mustEnvelope(t, domain.EnvelopeICECandidate, "bob", domain.ICECandidate{Candidate: c})
		require.NoError(t, sess.HandleRemoteICE(ctx, env))
	}
	assert.Len(t, transport.appliedCandidates(), 7)
}

func TestDuplicateAnswerNotReapplied(t *testing.T) {
	sess, _, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	answer := mustEnvelope(t, domain.EnvelopeAnswer, "bob", domain.SessionDescription{Type: "answer", SDP: "v=0"})
	require.NoError(t, sess.HandleAnswer(ctx, answer))
	require.NoError(t, sess.HandleAnswer(ctx, answer))

	assert.Len(t, transport.remoteDescs, 1)
}

func TestAcceptIncomingAnswersOffer(t *testing.T) {
	sess, signaler, transport := newSessionFixture(t)
	ctx := context.Background()

	offer := mustEnvelope(t, domain.EnvelopeOffer, "bob", domain.SessionDescription{Type: "offer", SDP: "v=0 bob"})
	require.NoError(t, sess.AcceptIncoming(ctx, offer))

	assert.Equal(t, domain.PhaseConnecting, sess.Phase())
	assert.Equal(t, domain.PeerID("bob"), sess.Peer())
	require.Len(t, transport.remoteDescs, 1)
	assert.Len(t, signaler.byType(domain.EnvelopeAnswer), 1)
}

func TestDuplicateOfferProducesNoSecondAnswer(t *testing.T) {
	sess, signaler, _ := newSessionFixture(t)
	ctx := context.Background()

	offer := mustEnvelope(t, domain.EnvelopeOffer, "bob", domain.SessionDescription{Type: "offer", SDP: "v=0 bob"})
	require.NoError(t, sess.AcceptIncoming(ctx, offer))
	require.NoError(t, sess.AcceptIncoming(ctx, offer))

	assert.Len(t, signaler.byType(domain.EnvelopeAnswer), 1)
	assert.Empty(t, signaler.byType(domain.EnvelopeReject))
}

func TestOfferWhileBusyIsRejected(t *testing.T) {
	sess, signaler, _ := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))

	offer := mustEnvelope(t, domain.EnvelopeOffer, "carol", domain.SessionDescription{Type: "offer", SDP: "v=0 carol"})
	err := sess.AcceptIncoming(ctx, offer)
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	rejects := signaler.byType(domain.EnvelopeReject)
	require.Len(t, rejects, 1)
	assert.Equal(t, domain.PeerID("carol"), rejects[0].To)
}

func TestTransportConnectedActivatesCall(t *testing.T) {
	sess, _, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	transport.onConnected()

	assert.Equal(t, domain.PhaseActive, sess.Phase())
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, sess.Duration(), time.Duration(0))
}

func TestTransportFailureEndsCall(t *testing.T) {
	sess, _, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	transport.onConnected()
	transport.onFailed()

	assert.Equal(t, domain.PhaseEnded, sess.Phase())
	assert.Equal(t, domain.CauseTransportFailed, sess.Cause())
	assert.True(t, transport.closed)
}

func TestEndIsIdempotent(t *testing.T) {
	sess, signaler, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	require.NoError(t, sess.End(ctx))
	require.NoError(t, sess.End(ctx))
	require.NoError(t, sess.End(ctx))

	assert.Equal(t, domain.PhaseEnded, sess.Phase())
	assert.Equal(t, domain.CauseLocalEnd, sess.Cause())
	assert.Len(t, signaler.byType(domain.EnvelopeEnd), 1)
	assert.True(t, transport.closed)
}

func TestRemoteEndReleasesEverything(t *testing.T) {
	sess, signaler, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	transport.onConnected()
	require.NoError(t, sess.StartRecording(ctx, domain.RecordCameraOnly))

	end := mustEnvelope(t, domain.EnvelopeEnd, "bob", nil)
	require.NoError(t, sess.HandleEnvelope(ctx, end))

	assert.Equal(t, domain.PhaseEnded, sess.Phase())
	assert.Equal(t, domain.CauseRemoteEnd, sess.Cause())
	assert.True(t, transport.closed)
	assert.False(t, sess.Recording())

	// No end envelope echoes back to the remote.
	assert.Empty(t, signaler.byType(domain.EnvelopeEnd))

	video, audio := sess.RemoteTracks()
	assert.Nil(t, video)
	assert.Nil(t, audio)
}

func TestRejectEndsConnectingCall(t *testing.T) {
	sess, _, _ := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	reject := mustEnvelope(t, domain.EnvelopeReject, "bob", nil)
	require.NoError(t, sess.HandleEnvelope(ctx, reject))

	assert.Equal(t, domain.PhaseEnded, sess.Phase())
	assert.Equal(t, domain.CauseRemoteReject, sess.Cause())
}

func TestUnavailableEndsConnectingCall(t *testing.T) {
	sess, _, _ := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	unavailable, err := domain.NewEnvelope(domain.EnvelopeUnavailable, "", "alice", domain.UnavailablePayload{To: "bob"})
	require.NoError(t, err)
	require.NoError(t, sess.HandleEnvelope(ctx, unavailable))

	assert.Equal(t, domain.PhaseEnded, sess.Phase())
}

func TestEndedSessionRefusesNewWork(t *testing.T) {
	sess, _, _ := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	require.NoError(t, sess.End(ctx))

	assert.ErrorIs(t, sess.Initiate(ctx, "carol"), domain.ErrSessionEnded)

	offer := mustEnvelope(t, domain.EnvelopeOffer, "carol", domain.SessionDescription{Type: "offer", SDP: "x"})
	assert.ErrorIs(t, sess.AcceptIncoming(ctx, offer), domain.ErrSessionEnded)

	assert.ErrorIs(t, sess.StartRecording(ctx, domain.RecordCameraOnly), domain.ErrSessionEnded)
}

func TestStartRecordingRequestsKeyframe(t *testing.T) {
	sess, _, transport := newSessionFixture(t)
	ctx := context.Background()

	require.NoError(t, sess.Initiate(ctx, "bob"))
	transport.onConnected()

	require.NoError(t, sess.StartRecording(ctx, domain.RecordCameraOnly))
	defer sess.StopRecording(ctx)

	assert.Equal(t, 1, transport.keyframes)
	assert.True(t, sess.Recording())
}

func TestStopRecordingWhenIdleIsNoop(t *testing.T) {
	sess, _, _ := newSessionFixture(t)

	artifact, err := sess.StopRecording(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestPhaseCallbacksFireInOrder(t *testing.T) {
	sess, _, transport := newSessionFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var phases []domain.CallPhase
	sess.OnPhaseChange(func(p domain.CallPhase) {
		mu.Lock()
		phases = append(phases, p)
		mu.Unlock()
	})

	require.NoError(t, sess.Initiate(ctx, "bob"))
	transport.onConnected()
	require.NoError(t, sess.End(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.CallPhase{
		domain.PhaseConnecting,
		domain.PhaseActive,
		domain.PhaseEnded,
	}, phases)
}
