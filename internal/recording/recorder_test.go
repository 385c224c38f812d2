package recording

import (
	"context"
	"sync"
	"testing"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu    sync.Mutex
	saved []domain.Artifact
}

func (s *memoryStore) Save(ctx context.Context, a domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, a)
	return nil
}

func testConfig() Config {
	return Config{Width: 320, Height: 240, FPS: 10, SampleRate: 8000, Channels: 1}
}

func openSources(t *testing.T) (SourceSet, func()) {
	t.Helper()
	devices := media.NewPatternDevices()
	devices.Width, devices.Height, devices.FPS = 160, 120, 10
	devices.SampleRate = 8000

	camera, err := devices.Open(context.Background(), media.OpenRequest{Video: true, Audio: true})
	require.NoError(t, err)
	remote, err := devices.Open(context.Background(), media.OpenRequest{Video: true, Audio: true})
	require.NoError(t, err)

	sources := SourceSet{
		Camera:      camera.Video,
		Remote:      remote.Video,
		LocalAudio:  camera.Audio,
		RemoteAudio: remote.Audio,
	}
	cleanup := func() {
		camera.StopAll()
		remote.StopAll()
	}
	return sources, cleanup
}

func TestRecorderProducesWebM(t *testing.T) {
	store := &memoryStore{}
	r := NewRecorder(testConfig(), store, zap.NewNop().Sugar())

	sources, cleanup := openSources(t)
	defer cleanup()

	require.NoError(t, r.Start(context.Background(), domain.RecordCombined, sources))
	assert.True(t, r.Recording())

	time.Sleep(400 * time.Millisecond)

	artifact, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.False(t, r.Recording())

	// EBML header magic.
	require.Greater(t, len(artifact.Data), 4)
	assert.Equal(t, []byte{0x1A, 0x45, 0xDF, 0xA3}, artifact.Data[:4])

	assert.Regexp(t, `^call-recording-.+\.webm$`, artifact.Filename)
	require.Len(t, store.saved, 1)
	assert.Equal(t, artifact.Filename, store.saved[0].Filename)
}

func TestStartWhileActiveFails(t *testing.T) {
	r := NewRecorder(testConfig(), nil, zap.NewNop().Sugar())
	sources, cleanup := openSources(t)
	defer cleanup()

	require.NoError(t, r.Start(context.Background(), domain.RecordCameraOnly, sources))
	defer r.Stop(context.Background())

	err := r.Start(context.Background(), domain.RecordCameraOnly, sources)
	assert.ErrorIs(t, err, domain.ErrRecordingActive)
}

func TestStartRejectsInvalidMode(t *testing.T) {
	r := NewRecorder(testConfig(), nil, zap.NewNop().Sugar())
	sources, cleanup := openSources(t)
	defer cleanup()

	err := r.Start(context.Background(), domain.RecordingMode("hologram"), sources)
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestStartWithoutSourcesFails(t *testing.T) {
	r := NewRecorder(testConfig(), nil, zap.NewNop().Sugar())

	err := r.Start(context.Background(), domain.RecordCombined, SourceSet{})
	assert.ErrorIs(t, err, domain.ErrNoRecordableTracks)
}

func TestScreenOnlyRequiresScreen(t *testing.T) {
	r := NewRecorder(testConfig(), nil, zap.NewNop().Sugar())
	sources, cleanup := openSources(t)
	defer cleanup()

	err := r.Start(context.Background(), domain.RecordScreenOnly, sources)
	assert.ErrorIs(t, err, domain.ErrNoRecordableTracks)
}

func TestStopBeforeFirstFrameDeliversNothing(t *testing.T) {
	store := &memoryStore{}
	cfg := testConfig()
	cfg.FPS = 1
	r := NewRecorder(cfg, store, zap.NewNop().Sugar())

	sources, cleanup := openSources(t)
	defer cleanup()

	require.NoError(t, r.Start(context.Background(), domain.RecordCameraOnly, sources))

	// At 1 fps the first frame composes after a second; stopping right
	// away leaves a file that is container headers only.
	artifact, err := r.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, artifact)
	assert.Empty(t, store.saved)
}

func TestPartialConfigFillsDefaults(t *testing.T) {
	r := NewRecorder(Config{Width: 320, Height: 240, SampleRate: 8000, Channels: 1}, nil, zap.NewNop().Sugar())
	assert.Equal(t, 30, r.cfg.FPS)

	r = NewRecorder(Config{FPS: 10}, nil, zap.NewNop().Sugar())
	assert.Equal(t, 1280, r.cfg.Width)
	assert.Equal(t, 720, r.cfg.Height)
	assert.Equal(t, 48000, r.cfg.SampleRate)
	assert.Equal(t, 1, r.cfg.Channels)
	assert.Equal(t, 10, r.cfg.FPS)

	// The loop must survive a config that omitted the frame rate.
	sources, cleanup := openSources(t)
	defer cleanup()
	r = NewRecorder(Config{Width: 320, Height: 240, SampleRate: 8000, Channels: 1}, nil, zap.NewNop().Sugar())
	require.NoError(t, r.Start(context.Background(), domain.RecordCameraOnly, sources))
	time.Sleep(150 * time.Millisecond)
	artifact, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, artifact)
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	r := NewRecorder(testConfig(), nil, zap.NewNop().Sugar())

	artifact, err := r.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestCombinedLayoutPrecedence(t *testing.T) {
	devices := media.NewPatternDevices()
	open := func() *media.Stream {
		s, err := devices.Open(context.Background(), media.OpenRequest{Video: true})
		require.NoError(t, err)
		return s
	}
	camera := open()
	screen := open()
	remote := open()
	defer camera.StopAll()
	defer screen.StopAll()
	defer remote.StopAll()

	tests := []struct {
		name      string
		sources   SourceSet
		primary   media.VideoTrack
		secondary media.VideoTrack
	}{
		{
			"screen and remote win",
			SourceSet{Camera: camera.Video, Screen: screen.Video, Remote: remote.Video},
			screen.Video, remote.Video,
		},
		{
			"screen and camera",
			SourceSet{Camera: camera.Video, Screen: screen.Video},
			screen.Video, camera.Video,
		},
		{
			"remote and camera",
			SourceSet{Camera: camera.Video, Remote: remote.Video},
			remote.Video, camera.Video,
		},
		{
			"single camera fallback",
			SourceSet{Camera: camera.Video},
			camera.Video, nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, ok := tt.sources.layoutFor(domain.RecordCombined)
			require.True(t, ok)
			assert.Equal(t, tt.primary, layout.primary)
			assert.Equal(t, tt.secondary, layout.secondary)
			assert.False(t, layout.pip)
		})
	}
}

func TestPictureInPictureLayout(t *testing.T) {
	devices := media.NewPatternDevices()
	camera, err := devices.Open(context.Background(), media.OpenRequest{Video: true})
	require.NoError(t, err)
	remote, err := devices.Open(context.Background(), media.OpenRequest{Video: true})
	require.NoError(t, err)
	defer camera.StopAll()
	defer remote.StopAll()

	layout, ok := SourceSet{Camera: camera.Video, Remote: remote.Video}.layoutFor(domain.RecordPictureInPicture)
	require.True(t, ok)
	assert.True(t, layout.pip)
	assert.Equal(t, remote.Video, layout.primary)
	assert.Equal(t, camera.Video, layout.secondary)

	// Without a remote the overlay degrades to camera only.
	layout, ok = SourceSet{Camera: camera.Video}.layoutFor(domain.RecordPictureInPicture)
	require.True(t, ok)
	assert.False(t, layout.pip)
	assert.Equal(t, camera.Video, layout.primary)
}

func TestScreenAudioJoinsTheMix(t *testing.T) {
	devices := media.NewPatternDevices()
	devices.SampleRate = 8000

	mic, err := devices.Open(context.Background(), media.OpenRequest{Audio: true})
	require.NoError(t, err)
	defer mic.StopAll()
	screen, err := devices.Open(context.Background(), media.OpenRequest{Audio: true})
	require.NoError(t, err)
	defer screen.StopAll()

	sources := SourceSet{LocalAudio: mic.Audio, ScreenAudio: screen.Audio}
	assert.Len(t, sources.audioSources(), 2)
}

func TestMixerPadsAndClips(t *testing.T) {
	m := &audioMixer{sources: []*mixSource{
		{buf: []int16{10000, 30000}},
		{buf: []int16{10000, 30000, 5}},
	}}

	out := m.mix(4)
	require.Len(t, out, 4)
	assert.Equal(t, int16(20000), out[0])
	// 30000+30000 clips at the int16 ceiling.
	assert.Equal(t, int16(32767), out[1])
	assert.Equal(t, int16(5), out[2])
	assert.Equal(t, int16(0), out[3])
}
