package webrtc

import (
	"context"
	"strings"
	"testing"
	"time"

	"vidcall/internal/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T) *PeerSession {
	t.Helper()

	s, err := NewPeerSession(Config{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewPeerSessionDefaults(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, 48000, s.cfg.SampleRate)
	assert.Equal(t, 1, s.cfg.Channels)
}

func TestCreateOfferCarriesBoundMedia(t *testing.T) {
	s := newTestSession(t)

	devices := media.NewPatternDevices()
	stream, err := devices.Open(context.Background(), media.OpenRequest{Video: true, Audio: true})
	require.NoError(t, err)
	defer stream.StopAll()

	require.NoError(t, s.BindVideo(stream.Video))
	require.NoError(t, s.BindAudio(stream.Audio))

	offer, err := s.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "offer", offer.Type)
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "m=audio")
}

func TestReplaceVideoRequiresBoundSender(t *testing.T) {
	s := newTestSession(t)

	devices := media.NewPatternDevices()
	stream, err := devices.Open(context.Background(), media.OpenRequest{Video: true})
	require.NoError(t, err)
	defer stream.StopAll()

	err = s.ReplaceVideo(stream.Video)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestClockDuration(t *testing.T) {
	assert.Equal(t, time.Second, clockDuration(90000, 90000))
	assert.Equal(t, 500*time.Millisecond, clockDuration(24000, 48000))
	assert.Equal(t, time.Duration(0), clockDuration(0, 90000))
}

func TestOfferAnswerBetweenTwoSessions(t *testing.T) {
	caller := newTestSession(t)
	callee := newTestSession(t)

	devices := media.NewPatternDevices()
	callerStream, err := devices.Open(context.Background(), media.OpenRequest{Video: true, Audio: true})
	require.NoError(t, err)
	defer callerStream.StopAll()
	require.NoError(t, caller.BindVideo(callerStream.Video))
	require.NoError(t, caller.BindAudio(callerStream.Audio))

	offer, err := caller.CreateOffer(context.Background())
	require.NoError(t, err)

	require.NoError(t, callee.SetRemoteDescription(offer))
	answer, err := callee.CreateAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Type)
	assert.True(t, strings.HasPrefix(answer.SDP, "v=0"))

	require.NoError(t, caller.SetRemoteDescription(answer))
}
