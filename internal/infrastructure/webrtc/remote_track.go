package webrtc

import (
	"context"
	"io"
	"sync"

	"vidcall/internal/media"

	"github.com/pion/webrtc/v3"
)

// remoteTrackBase carries identity and lifecycle shared by remote tracks.
// Stop only marks the track ended; the underlying RTP stream is torn down
// when the peer connection closes.
type remoteTrackBase struct {
	rtp *webrtc.TrackRemote

	mu      sync.Mutex
	stopped bool
	onEnded []func()
}

func (t *remoteTrackBase) ID() string    { return t.rtp.ID() }
func (t *remoteTrackBase) Label() string { return t.rtp.StreamID() }

func (t *remoteTrackBase) OnEnded(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *remoteTrackBase) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	callbacks := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (t *remoteTrackBase) ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// remoteVideoTrack reassembles fragmented access units from RTP and decodes
// them into raw frames. Packets of one frame share a timestamp; the marker
// bit closes the frame.
type remoteVideoTrack struct {
	remoteTrackBase
	dec media.VideoDecoder
	buf []byte
}

func newRemoteVideoTrack(rtp *webrtc.TrackRemote, dec media.VideoDecoder) *remoteVideoTrack {
	return &remoteVideoTrack{
		remoteTrackBase: remoteTrackBase{rtp: rtp},
		dec:             dec,
	}
}

func (t *remoteVideoTrack) Kind() media.TrackKind { return media.KindVideo }

func (t *remoteVideoTrack) ReadFrame(ctx context.Context) (*media.Frame, error) {
	for {
		if t.ended() {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pkt, _, err := t.rtp.ReadRTP()
		if err != nil {
			t.Stop()
			return nil, io.EOF
		}

		t.buf = append(t.buf, pkt.Payload...)
		if !pkt.Marker {
			continue
		}

		data := t.buf
		t.buf = nil
		img, err := t.dec.Decode(data)
		if err != nil {
			// Lost a fragment somewhere; drop the frame and resync on the
			// next marker.
			continue
		}
		return &media.Frame{
			Image: img,
			PTS:   clockDuration(pkt.Timestamp, videoClockRate),
		}, nil
	}
}

// remoteAudioTrack decodes L16 RTP payloads into PCM chunks.
type remoteAudioTrack struct {
	remoteTrackBase
	sampleRate int
	channels   int
}

func newRemoteAudioTrack(rtp *webrtc.TrackRemote, sampleRate, channels int) *remoteAudioTrack {
	return &remoteAudioTrack{
		remoteTrackBase: remoteTrackBase{rtp: rtp},
		sampleRate:      sampleRate,
		channels:        channels,
	}
}

func (t *remoteAudioTrack) Kind() media.TrackKind { return media.KindAudio }
func (t *remoteAudioTrack) SampleRate() int       { return t.sampleRate }
func (t *remoteAudioTrack) Channels() int         { return t.channels }

func (t *remoteAudioTrack) ReadPCM(ctx context.Context) (*media.PCMChunk, error) {
	if t.ended() {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pkt, _, err := t.rtp.ReadRTP()
	if err != nil {
		t.Stop()
		return nil, io.EOF
	}

	// L16 is 16-bit big-endian PCM.
	samples := make([]int16, len(pkt.Payload)/2)
	for i := range samples {
		samples[i] = int16(uint16(pkt.Payload[i*2])<<8 | uint16(pkt.Payload[i*2+1]))
	}
	return &media.PCMChunk{
		Samples: samples,
		PTS:     clockDuration(pkt.Timestamp, t.sampleRate),
	}, nil
}
