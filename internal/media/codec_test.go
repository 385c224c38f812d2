package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMJPEGRoundTrip(t *testing.T) {
	devices := NewPatternDevices()
	stream, err := devices.Open(context.Background(), OpenRequest{Video: true, Width: 64, Height: 48})
	require.NoError(t, err)
	defer stream.StopAll()

	frame, err := stream.Video.ReadFrame(context.Background())
	require.NoError(t, err)

	enc := NewMJPEGEncoder(80)
	data, err := enc.Encode(frame)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	dec := &MJPEGDecoder{}
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, frame.Image.Bounds(), img.Bounds())
}

func TestPCMEncoderByteOrder(t *testing.T) {
	chunk := &PCMChunk{Samples: []int16{0x0102, -1}}

	little, err := NewPCMEncoder().Encode(chunk)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0xFF, 0xFF}, little)

	big, err := NewL16Encoder().Encode(chunk)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0xFF, 0xFF}, big)
}

func TestPatternAudioTrackTiming(t *testing.T) {
	devices := NewPatternDevices()
	stream, err := devices.Open(context.Background(), OpenRequest{Audio: true})
	require.NoError(t, err)
	defer stream.StopAll()

	chunk, err := stream.Audio.ReadPCM(context.Background())
	require.NoError(t, err)

	// 20ms at 48kHz mono
	assert.Len(t, chunk.Samples, 960)
	assert.Equal(t, time.Duration(0), chunk.PTS)
}
