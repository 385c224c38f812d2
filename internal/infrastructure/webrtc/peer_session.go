package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/media"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	jpegPayloadType = 96
	l16PayloadType  = 97

	videoClockRate = 90000

	// Payload size keeping packets under typical MTU after headers.
	maxRTPPayload = 1200
)

// Config carries peer connection settings.
type Config struct {
	ICEServers []webrtc.ICEServer
	SampleRate int
	Channels   int
}

// PeerSession wraps one pion PeerConnection for a 1:1 call. It pumps local
// tracks out as RTP, surfaces remote tracks as decodable media tracks, and
// exposes the SDP/ICE operations the session state machine drives.
type PeerSession struct {
	pc     *webrtc.PeerConnection
	cfg    Config
	logger *zap.SugaredLogger

	videoEnc media.VideoEncoder
	audioEnc media.AudioEncoder

	mu          sync.Mutex
	videoSender *webrtc.RTPSender
	videoPump   *pump
	audioPump   *pump
	closed      bool

	onICE         func(domain.ICECandidate)
	onConnected   func()
	onFailed      func()
	onRemoteVideo func(media.VideoTrack)
	onRemoteAudio func(media.AudioTrack)
}

func NewPeerSession(cfg Config, logger *zap.SugaredLogger) (*PeerSession, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}

	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  "video/jpeg",
			ClockRate: videoClockRate,
		},
		PayloadType: jpegPayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register video codec: %w", err)
	}
	if err := engine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  "audio/L16",
			ClockRate: uint32(cfg.SampleRate),
			Channels:  uint16(cfg.Channels),
		},
		PayloadType: l16PayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register audio codec: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(engine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &PeerSession{
		pc:       pc,
		cfg:      cfg,
		logger:   logger,
		videoEnc: media.NewMJPEGEncoder(80),
		audioEnc: media.NewL16Encoder(),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		s.mu.Lock()
		fn := s.onICE
		s.mu.Unlock()
		if fn != nil {
			init := cand.ToJSON()
			fn(domain.ICECandidate{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Infow("peer connection state changed", "state", state.String())
		s.mu.Lock()
		onConnected, onFailed := s.onConnected, s.onFailed
		s.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			if onConnected != nil {
				onConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			if onFailed != nil {
				onFailed()
			}
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.handleRemoteTrack(track)
	})

	return s, nil
}

func (s *PeerSession) handleRemoteTrack(track *webrtc.TrackRemote) {
	s.logger.Infow("remote track received",
		"kind", track.Kind().String(),
		"track_id", track.ID(),
		"codec", track.Codec().MimeType,
	)

	s.mu.Lock()
	onVideo, onAudio := s.onRemoteVideo, s.onRemoteAudio
	s.mu.Unlock()

	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		if onVideo != nil {
			onVideo(newRemoteVideoTrack(track, &media.MJPEGDecoder{}))
		}
	case webrtc.RTPCodecTypeAudio:
		if onAudio != nil {
			onAudio(newRemoteAudioTrack(track, s.cfg.SampleRate, s.cfg.Channels))
		}
	}
}

// BindVideo adds the track as an outgoing sender and starts pumping frames.
func (s *PeerSession) BindVideo(t media.VideoTrack) error {
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: "video/jpeg", ClockRate: videoClockRate},
		t.ID(), "vidcall",
	)
	if err != nil {
		return fmt.Errorf("create local video track: %w", err)
	}
	sender, err := s.pc.AddTrack(local)
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoSender = sender
	s.videoPump = s.startVideoPump(t, local)
	return nil
}

// BindAudio adds the track as an outgoing sender and starts pumping PCM.
func (s *PeerSession) BindAudio(t media.AudioTrack) error {
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:  "audio/L16",
			ClockRate: uint32(t.SampleRate()),
			Channels:  uint16(t.Channels()),
		},
		t.ID(), "vidcall",
	)
	if err != nil {
		return fmt.Errorf("create local audio track: %w", err)
	}
	if _, err := s.pc.AddTrack(local); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioPump = s.startAudioPump(t, local)
	return nil
}

// ReplaceVideo swaps the outgoing video source on the existing sender, so
// no renegotiation happens and the remote side keeps a single video track.
func (s *PeerSession) ReplaceVideo(t media.VideoTrack) error {
	s.mu.Lock()
	sender := s.videoSender
	oldPump := s.videoPump
	s.mu.Unlock()

	if sender == nil {
		return fmt.Errorf("no video sender to replace")
	}
	if oldPump != nil {
		oldPump.stop()
	}

	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: "video/jpeg", ClockRate: videoClockRate},
		t.ID(), "vidcall",
	)
	if err != nil {
		return fmt.Errorf("create replacement track: %w", err)
	}
	if err := sender.ReplaceTrack(local); err != nil {
		return fmt.Errorf("replace track: %w", err)
	}

	s.mu.Lock()
	s.videoPump = s.startVideoPump(t, local)
	s.mu.Unlock()
	return nil
}

// CreateOffer produces and installs the local offer.
func (s *PeerSession) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

// CreateAnswer produces and installs the local answer. The remote offer must
// have been applied first.
func (s *PeerSession) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (s *PeerSession) SetRemoteDescription(desc domain.SessionDescription) error {
	sdpType := webrtc.NewSDPType(desc.Type)
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (s *PeerSession) AddICECandidate(cand domain.ICECandidate) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

// RequestKeyframe sends a PLI for every remote video track.
func (s *PeerSession) RequestKeyframe() error {
	for _, receiver := range s.pc.GetReceivers() {
		track := receiver.Track()
		if track == nil || track.Kind() != webrtc.RTPCodecTypeVideo {
			continue
		}
		pli := &rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}
		if err := s.pc.WriteRTCP([]rtcp.Packet{pli}); err != nil {
			return fmt.Errorf("send PLI: %w", err)
		}
	}
	return nil
}

func (s *PeerSession) OnICECandidate(fn func(domain.ICECandidate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onICE = fn
}

func (s *PeerSession) OnConnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = fn
}

func (s *PeerSession) OnFailed(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailed = fn
}

func (s *PeerSession) OnRemoteVideo(fn func(media.VideoTrack)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemoteVideo = fn
}

func (s *PeerSession) OnRemoteAudio(fn func(media.AudioTrack)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemoteAudio = fn
}

func (s *PeerSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	videoPump, audioPump := s.videoPump, s.audioPump
	s.mu.Unlock()

	if videoPump != nil {
		videoPump.stop()
	}
	if audioPump != nil {
		audioPump.stop()
	}
	return s.pc.Close()
}

// pump is a goroutine feeding one local track into an RTP sender.
type pump struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pump) stop() {
	p.cancel()
	<-p.done
}

func (s *PeerSession) startVideoPump(t media.VideoTrack, out *webrtc.TrackLocalStaticRTP) *pump {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pump{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		seq := uint16(0)
		for {
			frame, err := t.ReadFrame(ctx)
			if err != nil {
				s.logger.Debugw("video pump stopped", "error", err)
				return
			}
			data, err := s.videoEnc.Encode(frame)
			if err != nil {
				s.logger.Warnw("video encode failed", "error", err)
				continue
			}
			ts := uint32(frame.PTS.Seconds() * videoClockRate)
			if err := writeFragmented(out, data, ts, &seq); err != nil {
				s.logger.Debugw("video write stopped", "error", err)
				return
			}
		}
	}()
	return p
}

func (s *PeerSession) startAudioPump(t media.AudioTrack, out *webrtc.TrackLocalStaticRTP) *pump {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pump{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		seq := uint16(0)
		for {
			chunk, err := t.ReadPCM(ctx)
			if err != nil {
				s.logger.Debugw("audio pump stopped", "error", err)
				return
			}
			data, err := s.audioEnc.Encode(chunk)
			if err != nil {
				s.logger.Warnw("audio encode failed", "error", err)
				continue
			}
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					SequenceNumber: seq,
					Timestamp:      uint32(chunk.PTS.Seconds() * float64(t.SampleRate())),
				},
				Payload: data,
			}
			seq++
			if err := out.WriteRTP(pkt); err != nil {
				s.logger.Debugw("audio write stopped", "error", err)
				return
			}
		}
	}()
	return p
}

// writeFragmented splits one encoded frame across RTP packets sharing a
// timestamp, marker set on the last. The receiver reassembles on the marker.
func writeFragmented(out *webrtc.TrackLocalStaticRTP, data []byte, timestamp uint32, seq *uint16) error {
	for offset := 0; offset < len(data); offset += maxRTPPayload {
		end := offset + maxRTPPayload
		if end > len(data) {
			end = len(data)
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(data),
				SequenceNumber: *seq,
				Timestamp:      timestamp,
			},
			Payload: data[offset:end],
		}
		*seq++
		if err := out.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

// clockDuration converts an RTP timestamp to a stream position.
func clockDuration(timestamp uint32, clockRate int) time.Duration {
	return time.Duration(timestamp) * time.Second / time.Duration(clockRate)
}
