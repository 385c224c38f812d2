package recording

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/at-wat/ebml-go/webm"
)

// webmMuxer wraps the EBML block writers for one in-memory WebM file with
// an MJPEG video track and an optional PCM audio track.
type webmMuxer struct {
	mu     sync.Mutex
	buf    *closableBuffer
	video  webm.BlockWriteCloser
	audio  webm.BlockWriteCloser
	blocks int
	done   bool
}

type closableBuffer struct {
	bytes.Buffer
}

func (b *closableBuffer) Close() error { return nil }

func newWebMMuxer(width, height, sampleRate, channels int, withAudio bool) (*webmMuxer, error) {
	tracks := []webm.TrackEntry{
		{
			Name:        "Video",
			TrackNumber: 1,
			TrackUID:    1,
			CodecID:     "V_MJPEG",
			TrackType:   1,
			Video: &webm.Video{
				PixelWidth:  uint64(width),
				PixelHeight: uint64(height),
			},
		},
	}
	if withAudio {
		tracks = append(tracks, webm.TrackEntry{
			Name:        "Audio",
			TrackNumber: 2,
			TrackUID:    2,
			CodecID:     "A_PCM/INT/LIT",
			TrackType:   2,
			Audio: &webm.Audio{
				SamplingFrequency: float64(sampleRate),
				Channels:          uint64(channels),
			},
		})
	}

	buf := &closableBuffer{}
	writers, err := webm.NewSimpleBlockWriter(buf, tracks)
	if err != nil {
		return nil, fmt.Errorf("create webm writer: %w", err)
	}

	m := &webmMuxer{buf: buf, video: writers[0]}
	if withAudio {
		m.audio = writers[1]
	}
	return m, nil
}

// WriteVideo appends one encoded frame. Every MJPEG frame is independently
// decodable, so all blocks are keyframes.
func (m *webmMuxer) WriteVideo(timestampMs int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return nil
	}
	_, err := m.video.Write(true, timestampMs, data)
	if err == nil {
		m.blocks++
	}
	return err
}

func (m *webmMuxer) WriteAudio(timestampMs int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done || m.audio == nil {
		return nil
	}
	_, err := m.audio.Write(true, timestampMs, data)
	if err == nil {
		m.blocks++
	}
	return err
}

// BlockCount reports how many media blocks have been written. The container
// headers alone do not count; a file with zero blocks holds no media.
func (m *webmMuxer) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocks
}

// Finalize closes the writers, which emits cues and duration, and returns
// the complete file.
func (m *webmMuxer) Finalize() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return m.buf.Bytes(), nil
	}
	m.done = true

	if err := m.video.Close(); err != nil {
		return nil, fmt.Errorf("close video track: %w", err)
	}
	if m.audio != nil {
		if err := m.audio.Close(); err != nil {
			return nil, fmt.Errorf("close audio track: %w", err)
		}
	}
	return m.buf.Bytes(), nil
}
