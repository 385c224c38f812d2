package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// VideoEncoder turns raw frames into encoded access units.
type VideoEncoder interface {
	MimeType() string
	Encode(frame *Frame) ([]byte, error)
}

// VideoDecoder turns encoded access units back into raw frames.
type VideoDecoder interface {
	MimeType() string
	Decode(data []byte) (*image.RGBA, error)
}

// AudioEncoder turns PCM chunks into encoded payloads.
type AudioEncoder interface {
	MimeType() string
	Encode(chunk *PCMChunk) ([]byte, error)
}

// MJPEGEncoder encodes each frame independently as JPEG. Every frame is a
// keyframe, which keeps recordings seekable without inter-frame state.
type MJPEGEncoder struct {
	Quality int
}

func NewMJPEGEncoder(quality int) *MJPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &MJPEGEncoder{Quality: quality}
}

func (e *MJPEGEncoder) MimeType() string { return "video/jpeg" }

func (e *MJPEGEncoder) Encode(frame *Frame) ([]byte, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("mjpeg: nil frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("mjpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// MJPEGDecoder decodes JPEG access units into RGBA frames.
type MJPEGDecoder struct{}

func (d *MJPEGDecoder) MimeType() string { return "video/jpeg" }

func (d *MJPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mjpeg decode: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// PCMEncoder serializes samples as 16-bit PCM. Recordings use little-endian,
// RTP L16 payloads use big-endian.
type PCMEncoder struct {
	order binary.ByteOrder
	mime  string
}

func NewPCMEncoder() *PCMEncoder {
	return &PCMEncoder{order: binary.LittleEndian, mime: "audio/pcm"}
}

func NewL16Encoder() *PCMEncoder {
	return &PCMEncoder{order: binary.BigEndian, mime: "audio/L16"}
}

func (e *PCMEncoder) MimeType() string { return e.mime }

func (e *PCMEncoder) Encode(chunk *PCMChunk) ([]byte, error) {
	if chunk == nil {
		return nil, fmt.Errorf("pcm: nil chunk")
	}
	out := make([]byte, len(chunk.Samples)*2)
	for i, s := range chunk.Samples {
		e.order.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}
