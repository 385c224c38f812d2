package recording

import (
	"context"
	"sync"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"
	"vidcall/internal/media"

	"go.uber.org/zap"
)

// Config sets the canvas and audio format of produced recordings.
type Config struct {
	Width      int
	Height     int
	FPS        int
	SampleRate int
	Channels   int
}

func DefaultConfig() Config {
	return Config{
		Width:      1280,
		Height:     720,
		FPS:        30,
		SampleRate: 48000,
		Channels:   1,
	}
}

// Recorder composes live tracks into a WebM file. One recording at a time;
// Stop finalizes the file and hands it to the artifact store.
type Recorder struct {
	cfg    Config
	store  ports.ArtifactStore
	logger *zap.SugaredLogger

	mu  sync.Mutex
	job *job
}

type job struct {
	comp  *compositor
	mixer *audioMixer
	mux   *webmMuxer

	videoEnc media.VideoEncoder
	audioEnc media.AudioEncoder

	startedAt time.Time
	withAudio bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecorder(cfg Config, store ports.ArtifactStore, logger *zap.SugaredLogger) *Recorder {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	return &Recorder{cfg: cfg, store: store, logger: logger}
}

// Start begins composing the given sources. It fails when a recording is
// already active, the mode is unknown, or no source satisfies the mode.
func (r *Recorder) Start(ctx context.Context, mode domain.RecordingMode, sources SourceSet) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}

	layout, ok := sources.layoutFor(mode)
	if !ok {
		return domain.ErrNoRecordableTracks
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job != nil {
		return domain.ErrRecordingActive
	}

	audio := sources.audioSources()
	mux, err := newWebMMuxer(r.cfg.Width, r.cfg.Height, r.cfg.SampleRate, r.cfg.Channels, len(audio) > 0)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	j := &job{
		comp:      newCompositor(r.cfg.Width, r.cfg.Height, layout),
		mux:       mux,
		videoEnc:  media.NewMJPEGEncoder(80),
		audioEnc:  media.NewPCMEncoder(),
		startedAt: time.Now(),
		withAudio: len(audio) > 0,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if j.withAudio {
		j.mixer = newAudioMixer(audio)
	}
	r.job = j

	go r.runLoop(loopCtx, j)

	r.logger.Infow("recording started", "mode", mode,
		"width", r.cfg.Width, "height", r.cfg.Height, "fps", r.cfg.FPS,
		"audio_sources", len(audio))
	return nil
}

func (r *Recorder) runLoop(ctx context.Context, j *job) {
	defer close(j.done)

	frameDur := time.Second / time.Duration(r.cfg.FPS)
	samplesPerFrame := r.cfg.SampleRate / r.cfg.FPS * r.cfg.Channels

	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ts := time.Since(j.startedAt).Milliseconds()

			data, err := j.videoEnc.Encode(&media.Frame{Image: j.comp.render(now)})
			if err != nil {
				r.logger.Warnw("frame encode failed", "error", err)
				continue
			}
			if err := j.mux.WriteVideo(ts, data); err != nil {
				r.logger.Warnw("video mux write failed", "error", err)
			}

			if j.withAudio {
				samples := j.mixer.mix(samplesPerFrame)
				payload, err := j.audioEnc.Encode(&media.PCMChunk{Samples: samples})
				if err != nil {
					r.logger.Warnw("audio encode failed", "error", err)
					continue
				}
				if err := j.mux.WriteAudio(ts, payload); err != nil {
					r.logger.Warnw("audio mux write failed", "error", err)
				}
			}
		}
	}
}

// Stop finalizes the active recording and returns its artifact. Stopping
// while not recording is a no-op returning nil.
func (r *Recorder) Stop(ctx context.Context) (*domain.Artifact, error) {
	r.mu.Lock()
	j := r.job
	r.job = nil
	r.mu.Unlock()

	if j == nil {
		return nil, nil
	}

	j.cancel()
	<-j.done
	j.comp.stop()
	if j.mixer != nil {
		j.mixer.stop()
	}

	data, err := j.mux.Finalize()
	if err != nil {
		return nil, err
	}

	// A file with no media blocks is just container headers; deliver
	// nothing rather than a useless artifact.
	if j.mux.BlockCount() == 0 {
		r.logger.Warnw("recording produced no media, discarding",
			"duration", time.Since(j.startedAt).Round(time.Millisecond))
		return nil, nil
	}

	artifact := &domain.Artifact{
		Data:     data,
		Filename: "call-recording-" + j.startedAt.Format(time.RFC3339) + ".webm",
	}

	if r.store != nil {
		if err := r.store.Save(ctx, *artifact); err != nil {
			return artifact, err
		}
	}

	r.logger.Infow("recording stopped",
		"filename", artifact.Filename,
		"bytes", len(artifact.Data),
		"duration", time.Since(j.startedAt).Round(time.Millisecond))
	return artifact, nil
}

// Recording reports whether a job is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job != nil
}
