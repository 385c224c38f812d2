package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"go.uber.org/zap"
)

// TrackBinder receives local tracks for transmission. Implemented by the
// transport so the pipeline can attach and substitute outgoing tracks
// without owning negotiation.
type TrackBinder interface {
	BindVideo(t VideoTrack) error
	BindAudio(t AudioTrack) error

	// ReplaceVideo substitutes the outgoing video track in place, without
	// renegotiation.
	ReplaceVideo(t VideoTrack) error
}

// Opts constrains local capture.
type Opts struct {
	AudioOnly     bool
	VideoDeviceID string
	Width         int
	Height        int
	FPS           int
}

// Pipeline owns the local media of one call: the camera/microphone stream,
// an optional screen share substituted for the camera, and the mute and
// video-disable gates. It releases everything it acquired on ReleaseAll.
type Pipeline struct {
	devices Devices
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	camera *Stream
	video  *gatedVideoTrack
	audio  *gatedAudioTrack
	screen *Stream
	binder TrackBinder
}

func NewPipeline(devices Devices, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{devices: devices, logger: logger}
}

// AcquireLocal opens the camera and microphone. Failures are classified as
// CaptureError so callers can show an actionable message.
func (p *Pipeline) AcquireLocal(ctx context.Context, opts Opts) (*Stream, error) {
	req := OpenRequest{
		Video:         !opts.AudioOnly,
		Audio:         true,
		VideoDeviceID: opts.VideoDeviceID,
		Width:         opts.Width,
		Height:        opts.Height,
		FPS:           opts.FPS,
	}

	stream, err := p.devices.Open(ctx, req)
	if err != nil {
		return nil, classifyCaptureErr(err, "camera/microphone")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.camera != nil {
		p.camera.StopAll()
	}
	p.camera = stream
	p.video = nil
	p.audio = nil
	if stream.Video != nil {
		p.video = newGatedVideoTrack(stream.Video)
	}
	if stream.Audio != nil {
		p.audio = newGatedAudioTrack(stream.Audio)
	}

	p.logger.Infow("acquired local media",
		"video", stream.Video != nil, "audio", stream.Audio != nil)
	return p.localStreamLocked(), nil
}

func (p *Pipeline) localStreamLocked() *Stream {
	out := &Stream{}
	if p.video != nil {
		out.Video = p.video
	}
	if p.audio != nil {
		out.Audio = p.audio
	}
	return out
}

// BindTo attaches the current local tracks to the transport and remembers
// the binder for later substitutions.
func (p *Pipeline) BindTo(b TrackBinder) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.video != nil {
		if err := b.BindVideo(p.video); err != nil {
			return err
		}
	}
	if p.audio != nil {
		if err := b.BindAudio(p.audio); err != nil {
			return err
		}
	}
	p.binder = b
	return nil
}

// StartScreenShare opens a display capture and substitutes it for the
// outgoing camera video. When the share ends at the source, the camera is
// restored automatically.
func (p *Pipeline) StartScreenShare(ctx context.Context) error {
	p.mu.Lock()
	if p.screen != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	stream, err := p.devices.OpenScreen(ctx)
	if err != nil {
		return classifyCaptureErr(err, "screen")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.screen = stream
	if p.binder != nil && stream.Video != nil {
		if err := p.binder.ReplaceVideo(stream.Video); err != nil {
			p.screen = nil
			stream.StopAll()
			return err
		}
	}

	if stream.Video != nil {
		stream.Video.OnEnded(func() {
			p.handleScreenEnded(stream)
		})
	}

	p.logger.Infow("screen share started")
	return nil
}

// handleScreenEnded restores the camera when the share is cancelled at the
// source rather than through StopScreenShare.
func (p *Pipeline) handleScreenEnded(s *Stream) {
	p.mu.Lock()
	if p.screen != s {
		p.mu.Unlock()
		return
	}
	p.screen = nil
	binder, video := p.binder, p.video
	p.mu.Unlock()

	if binder != nil && video != nil {
		if err := binder.ReplaceVideo(video); err != nil {
			p.logger.Warnw("restoring camera after screen end", "error", err)
		}
	}
	p.logger.Infow("screen share ended at source, camera restored")
}

// StopScreenShare restores the camera and stops the screen tracks. Calling
// it while not sharing is a no-op.
func (p *Pipeline) StopScreenShare() error {
	p.mu.Lock()
	s := p.screen
	p.screen = nil
	binder, video := p.binder, p.video
	p.mu.Unlock()

	if s == nil {
		return nil
	}

	var err error
	if binder != nil && video != nil {
		err = binder.ReplaceVideo(video)
	}
	s.StopAll()
	p.logger.Infow("screen share stopped")
	return err
}

// ToggleScreenShare flips sharing state and reports whether sharing is now
// active.
func (p *Pipeline) ToggleScreenShare(ctx context.Context) (bool, error) {
	if p.Sharing() {
		return false, p.StopScreenShare()
	}
	if err := p.StartScreenShare(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pipeline) Sharing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screen != nil
}

// SwitchCamera swaps the camera source in place. The gate wrapper keeps its
// identity, so the transport needs no renegotiation and an active screen
// share is unaffected until it ends.
func (p *Pipeline) SwitchCamera(ctx context.Context, deviceID string) error {
	stream, err := p.devices.Open(ctx, OpenRequest{Video: true, VideoDeviceID: deviceID})
	if err != nil {
		return classifyCaptureErr(err, "camera")
	}
	if stream.Video == nil {
		return &CaptureError{Kind: CaptureDeviceNotFound, Device: deviceID}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.video == nil {
		stream.StopAll()
		return errors.New("no local video to switch")
	}

	old := p.video.swap(stream.Video)
	if p.camera != nil {
		p.camera.Video = stream.Video
	}
	if old != nil {
		old.Stop()
	}
	p.logger.Infow("switched camera", "device_id", deviceID)
	return nil
}

// ListVideoInputs enumerates selectable cameras.
func (p *Pipeline) ListVideoInputs(ctx context.Context) ([]VideoInput, error) {
	return p.devices.ListVideoInputs(ctx)
}

// SetMuted replaces outgoing audio with silence without stopping capture.
func (p *Pipeline) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.setMuted(muted)
	}
}

func (p *Pipeline) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil && p.audio.muted()
}

// SetVideoDisabled replaces outgoing video with black frames without
// stopping capture.
func (p *Pipeline) SetVideoDisabled(disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video != nil {
		p.video.setDisabled(disabled)
	}
}

func (p *Pipeline) VideoDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video != nil && p.video.disabled()
}

// ActiveVideo returns the video track currently going out: the screen when
// sharing, the camera otherwise. Nil when no video was acquired.
func (p *Pipeline) ActiveVideo() VideoTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screen != nil && p.screen.Video != nil {
		return p.screen.Video
	}
	if p.video != nil {
		return p.video
	}
	return nil
}

// LocalAudio returns the gated microphone track, nil when absent.
func (p *Pipeline) LocalAudio() AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		return p.audio
	}
	return nil
}

// ScreenAudio returns the display capture's audio track when the share
// carries one, nil otherwise. It supplements the microphone rather than
// replacing it.
func (p *Pipeline) ScreenAudio() AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screen != nil && p.screen.Audio != nil {
		return p.screen.Audio
	}
	return nil
}

// ReleaseAll stops every acquired track and detaches the binder.
func (p *Pipeline) ReleaseAll() {
	p.mu.Lock()
	camera, screen := p.camera, p.screen
	p.camera = nil
	p.screen = nil
	p.video = nil
	p.audio = nil
	p.binder = nil
	p.mu.Unlock()

	if screen != nil {
		screen.StopAll()
	}
	if camera != nil {
		camera.StopAll()
	}
	p.logger.Infow("released local media")
}

func classifyCaptureErr(err error, device string) error {
	var capErr *CaptureError
	if errors.As(err, &capErr) {
		return err
	}
	return &CaptureError{Kind: CaptureUnknown, Device: device, Err: err}
}

// gatedVideoTrack wraps a camera track with a disable gate and a swappable
// source, so transports can hold one stable track across camera switches.
type gatedVideoTrack struct {
	mu       sync.RWMutex
	inner    VideoTrack
	isOff    bool
	onEnded  []func()
	stopped  bool
	stopOnce sync.Once
}

func newGatedVideoTrack(inner VideoTrack) *gatedVideoTrack {
	return &gatedVideoTrack{inner: inner}
}

func (t *gatedVideoTrack) src() VideoTrack {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inner
}

func (t *gatedVideoTrack) swap(next VideoTrack) VideoTrack {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.inner
	t.inner = next
	return old
}

func (t *gatedVideoTrack) ID() string      { return t.src().ID() }
func (t *gatedVideoTrack) Kind() TrackKind { return KindVideo }
func (t *gatedVideoTrack) Label() string   { return t.src().Label() }

func (t *gatedVideoTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *gatedVideoTrack) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		callbacks := t.onEnded
		t.onEnded = nil
		inner := t.inner
		t.mu.Unlock()

		if inner != nil {
			inner.Stop()
		}
		for _, fn := range callbacks {
			fn()
		}
	})
}

func (t *gatedVideoTrack) setDisabled(disabled bool) {
	t.mu.Lock()
	t.isOff = disabled
	t.mu.Unlock()
}

func (t *gatedVideoTrack) disabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isOff
}

func (t *gatedVideoTrack) ReadFrame(ctx context.Context) (*Frame, error) {
	frame, err := t.src().ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	if t.disabled() {
		// Keep frame pacing, black out the content.
		draw.Draw(frame.Image, frame.Image.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return frame, nil
}

// gatedAudioTrack wraps a microphone track with a mute gate.
type gatedAudioTrack struct {
	mu      sync.RWMutex
	inner   AudioTrack
	silent  bool
	onEnded []func()
	stopped bool
}

func newGatedAudioTrack(inner AudioTrack) *gatedAudioTrack {
	return &gatedAudioTrack{inner: inner}
}

func (t *gatedAudioTrack) ID() string      { return t.inner.ID() }
func (t *gatedAudioTrack) Kind() TrackKind { return KindAudio }
func (t *gatedAudioTrack) Label() string   { return t.inner.Label() }
func (t *gatedAudioTrack) SampleRate() int { return t.inner.SampleRate() }
func (t *gatedAudioTrack) Channels() int   { return t.inner.Channels() }

func (t *gatedAudioTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *gatedAudioTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	callbacks := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	t.inner.Stop()
	for _, fn := range callbacks {
		fn()
	}
}

func (t *gatedAudioTrack) setMuted(muted bool) {
	t.mu.Lock()
	t.silent = muted
	t.mu.Unlock()
}

func (t *gatedAudioTrack) muted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.silent
}

func (t *gatedAudioTrack) ReadPCM(ctx context.Context) (*PCMChunk, error) {
	chunk, err := t.inner.ReadPCM(ctx)
	if err != nil {
		return nil, err
	}
	if t.muted() {
		for i := range chunk.Samples {
			chunk.Samples[i] = 0
		}
	}
	return chunk, nil
}
