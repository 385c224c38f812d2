package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"time"
)

// PatternDevices is a synthetic capture backend generating test patterns.
// It stands in for real cameras in tests, examples and headless runs.
type PatternDevices struct {
	Width  int
	Height int
	FPS    int

	SampleRate int
	Channels   int

	// FailOpen, when set, makes Open and OpenScreen fail with that error.
	FailOpen error

	mu     sync.Mutex
	serial int
}

func NewPatternDevices() *PatternDevices {
	return &PatternDevices{
		Width:      640,
		Height:     480,
		FPS:        30,
		SampleRate: 48000,
		Channels:   1,
	}
}

func (d *PatternDevices) nextID(prefix string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serial++
	return fmt.Sprintf("%s-%d", prefix, d.serial)
}

func (d *PatternDevices) Open(ctx context.Context, req OpenRequest) (*Stream, error) {
	if d.FailOpen != nil {
		return nil, d.FailOpen
	}

	w, h, fps := d.Width, d.Height, d.FPS
	if req.Width > 0 {
		w = req.Width
	}
	if req.Height > 0 {
		h = req.Height
	}
	if req.FPS > 0 {
		fps = req.FPS
	}

	stream := &Stream{}
	if req.Video {
		label := req.VideoDeviceID
		if label == "" {
			label = "pattern-cam"
		}
		stream.Video = newPatternVideoTrack(d.nextID("video"), label, w, h, fps, drawColorBars)
	}
	if req.Audio {
		stream.Audio = newSineAudioTrack(d.nextID("audio"), "pattern-mic", d.SampleRate, d.Channels)
	}
	return stream, nil
}

func (d *PatternDevices) OpenScreen(ctx context.Context) (*Stream, error) {
	if d.FailOpen != nil {
		return nil, d.FailOpen
	}
	return &Stream{
		Video: newPatternVideoTrack(d.nextID("screen"), "pattern-screen", d.Width, d.Height, d.FPS, drawGradient),
	}, nil
}

func (d *PatternDevices) ListVideoInputs(ctx context.Context) ([]VideoInput, error) {
	return []VideoInput{
		{DeviceID: "pattern-front", Label: "Pattern Camera (front)"},
		{DeviceID: "pattern-rear", Label: "Pattern Camera (rear)"},
	}, nil
}

// baseTrack carries shared identity and lifecycle for synthetic tracks.
type baseTrack struct {
	id    string
	kind  TrackKind
	label string

	mu      sync.Mutex
	stopped bool
	onEnded []func()
	done    chan struct{}
}

func newBaseTrack(id string, kind TrackKind, label string) baseTrack {
	return baseTrack{id: id, kind: kind, label: label, done: make(chan struct{})}
}

func (t *baseTrack) ID() string      { return t.id }
func (t *baseTrack) Kind() TrackKind { return t.kind }
func (t *baseTrack) Label() string   { return t.label }

func (t *baseTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *baseTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	callbacks := t.onEnded
	t.onEnded = nil
	close(t.done)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// wait blocks until the deadline, cancellation or Stop, whichever is first.
func (t *baseTrack) wait(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		select {
		case <-t.done:
			return io.EOF
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return io.EOF
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type paintFunc func(img *image.RGBA, frameIndex int)

type patternVideoTrack struct {
	baseTrack
	width  int
	height int
	fps    int
	paint  paintFunc

	start      time.Time
	frameIndex int
}

func newPatternVideoTrack(id, label string, w, h, fps int, paint paintFunc) *patternVideoTrack {
	return &patternVideoTrack{
		baseTrack: newBaseTrack(id, KindVideo, label),
		width:     w,
		height:    h,
		fps:       fps,
		paint:     paint,
		start:     time.Now(),
	}
}

func (t *patternVideoTrack) ReadFrame(ctx context.Context) (*Frame, error) {
	frameDur := time.Second / time.Duration(t.fps)
	due := t.start.Add(time.Duration(t.frameIndex) * frameDur)
	if err := t.wait(ctx, due); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	t.paint(img, t.frameIndex)
	frame := &Frame{
		Image: img,
		PTS:   time.Duration(t.frameIndex) * frameDur,
	}
	t.frameIndex++
	return frame, nil
}

// drawColorBars paints moving vertical color bars.
func drawColorBars(img *image.RGBA, frameIndex int) {
	bars := []color.RGBA{
		{R: 192, G: 192, B: 192, A: 255},
		{R: 192, G: 192, B: 0, A: 255},
		{R: 0, G: 192, B: 192, A: 255},
		{R: 0, G: 192, B: 0, A: 255},
		{R: 192, G: 0, B: 192, A: 255},
		{R: 192, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 192, A: 255},
	}
	b := img.Bounds()
	barWidth := b.Dx() / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}
	offset := frameIndex * 2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			idx := ((x + offset) / barWidth) % len(bars)
			img.SetRGBA(x, y, bars[idx])
		}
	}
}

// drawGradient paints a horizontal gray gradient, distinct enough from the
// color bars to tell screen frames from camera frames in composites.
func drawGradient(img *image.RGBA, frameIndex int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8((x*255/b.Dx() + frameIndex) % 256)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

type sineAudioTrack struct {
	baseTrack
	sampleRate int
	channels   int

	start   time.Time
	chunkIx int
	phase   float64
}

const sineChunkDuration = 20 * time.Millisecond

func newSineAudioTrack(id, label string, sampleRate, channels int) *sineAudioTrack {
	return &sineAudioTrack{
		baseTrack:  newBaseTrack(id, KindAudio, label),
		sampleRate: sampleRate,
		channels:   channels,
		start:      time.Now(),
	}
}

func (t *sineAudioTrack) SampleRate() int { return t.sampleRate }
func (t *sineAudioTrack) Channels() int   { return t.channels }

func (t *sineAudioTrack) ReadPCM(ctx context.Context) (*PCMChunk, error) {
	due := t.start.Add(time.Duration(t.chunkIx) * sineChunkDuration)
	if err := t.wait(ctx, due); err != nil {
		return nil, err
	}

	samplesPerChannel := int(float64(t.sampleRate) * sineChunkDuration.Seconds())
	samples := make([]int16, samplesPerChannel*t.channels)
	step := 2 * math.Pi * 440 / float64(t.sampleRate)
	for i := 0; i < samplesPerChannel; i++ {
		v := int16(math.Sin(t.phase) * 0.2 * math.MaxInt16)
		for ch := 0; ch < t.channels; ch++ {
			samples[i*t.channels+ch] = v
		}
		t.phase += step
	}

	chunk := &PCMChunk{
		Samples: samples,
		PTS:     time.Duration(t.chunkIx) * sineChunkDuration,
	}
	t.chunkIx++
	return chunk, nil
}
