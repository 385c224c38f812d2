package recording

import (
	"context"
	"math"
	"sync"

	"vidcall/internal/media"
)

// maxBuffered caps the per-source backlog to roughly one second at 48kHz
// stereo, so a stalled consumer cannot grow memory without bound.
const maxBuffered = 96000

// audioMixer pulls PCM from each source in the background and produces
// additively mixed blocks on demand. Sources that lag are padded with
// silence rather than delaying the mix.
type audioMixer struct {
	sources []*mixSource
}

type mixSource struct {
	mu     sync.Mutex
	buf    []int16
	cancel context.CancelFunc
	done   chan struct{}
}

func newAudioMixer(tracks []media.AudioTrack) *audioMixer {
	m := &audioMixer{}
	for _, t := range tracks {
		ctx, cancel := context.WithCancel(context.Background())
		src := &mixSource{cancel: cancel, done: make(chan struct{})}

		go func(t media.AudioTrack) {
			defer close(src.done)
			for {
				chunk, err := t.ReadPCM(ctx)
				if err != nil {
					return
				}
				src.mu.Lock()
				src.buf = append(src.buf, chunk.Samples...)
				if len(src.buf) > maxBuffered {
					src.buf = src.buf[len(src.buf)-maxBuffered:]
				}
				src.mu.Unlock()
			}
		}(t)
		m.sources = append(m.sources, src)
	}
	return m
}

// mix takes n samples from every source, padding exhausted sources with
// silence, and sums with clipping.
func (m *audioMixer) mix(n int) []int16 {
	out := make([]int16, n)
	if len(m.sources) == 0 {
		return out
	}

	acc := make([]int32, n)
	for _, src := range m.sources {
		src.mu.Lock()
		take := n
		if take > len(src.buf) {
			take = len(src.buf)
		}
		for i := 0; i < take; i++ {
			acc[i] += int32(src.buf[i])
		}
		src.buf = src.buf[take:]
		src.mu.Unlock()
	}

	for i, v := range acc {
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

func (m *audioMixer) stop() {
	for _, src := range m.sources {
		src.cancel()
		<-src.done
	}
}
