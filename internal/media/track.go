package media

import (
	"context"
	"image"
	"time"
)

// TrackKind identifies the media type a track carries.
type TrackKind int

const (
	KindVideo TrackKind = iota
	KindAudio
)

func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Frame is a single raw video frame.
type Frame struct {
	Image *image.RGBA
	PTS   time.Duration
}

// PCMChunk is a block of interleaved signed 16-bit audio samples.
type PCMChunk struct {
	Samples []int16
	PTS     time.Duration
}

// Track is a live local or remote media track. Stop is idempotent; after
// Stop, reads fail with io.EOF and the OnEnded callback fires once.
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	OnEnded(fn func())
	Stop()
}

// VideoTrack delivers raw frames.
type VideoTrack interface {
	Track
	ReadFrame(ctx context.Context) (*Frame, error)
}

// AudioTrack delivers raw PCM.
type AudioTrack interface {
	Track
	ReadPCM(ctx context.Context) (*PCMChunk, error)
	SampleRate() int
	Channels() int
}

// Stream groups the tracks produced by one capture request, mirroring a
// camera-plus-microphone acquisition. Either field may be nil.
type Stream struct {
	Video VideoTrack
	Audio AudioTrack
}

// Tracks returns the non-nil tracks of the stream.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	var out []Track
	if s.Video != nil {
		out = append(out, s.Video)
	}
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	return out
}

// StopAll stops every track in the stream.
func (s *Stream) StopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
