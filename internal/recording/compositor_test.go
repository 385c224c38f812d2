package recording

import (
	"context"
	"testing"
	"time"

	"vidcall/internal/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openVideo(t *testing.T, w, h int) media.VideoTrack {
	t.Helper()
	devices := media.NewPatternDevices()
	devices.Width, devices.Height, devices.FPS = w, h, 30
	stream, err := devices.Open(context.Background(), media.OpenRequest{Video: true})
	require.NoError(t, err)
	t.Cleanup(stream.StopAll)
	return stream.Video
}

func waitForFrame(t *testing.T, l *frameLatch) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.snapshot() != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("latch never received a frame")
}

func TestRenderSingleSourceFillsCanvas(t *testing.T) {
	track := openVideo(t, 160, 120)
	c := newCompositor(320, 240, videoLayout{primary: track})
	defer c.stop()

	waitForFrame(t, c.primary)

	img := c.render(time.Now())
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())

	// Color bars occupy the scaled region; center pixel must not be black.
	r, g, b, _ := img.At(160, 120).RGBA()
	assert.True(t, r > 0 || g > 0 || b > 0)
}

func TestRenderBeforeFirstFrameIsBlack(t *testing.T) {
	// A latch with no frame yet leaves the canvas black except the stamp.
	c := &compositor{width: 320, height: 240, primary: &frameLatch{}}

	img := c.render(time.Now())
	r, g, b, a := img.At(160, 120).RGBA()
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	assert.NotZero(t, a)
}

func TestRenderSplitUsesBothHalves(t *testing.T) {
	left := openVideo(t, 160, 120)
	right := openVideo(t, 160, 120)
	c := newCompositor(640, 240, videoLayout{primary: left, secondary: right})
	defer c.stop()

	waitForFrame(t, c.primary)
	waitForFrame(t, c.secondary)

	img := c.render(time.Now())

	lr, lg, lb, _ := img.At(160, 120).RGBA()
	rr, rg, rb, _ := img.At(480, 120).RGBA()
	assert.True(t, lr > 0 || lg > 0 || lb > 0, "left half painted")
	assert.True(t, rr > 0 || rg > 0 || rb > 0, "right half painted")
}

func TestRenderPipOverlayBottomRight(t *testing.T) {
	main := openVideo(t, 320, 240)
	overlay := openVideo(t, 160, 120)
	c := newCompositor(640, 480, videoLayout{primary: main, secondary: overlay, pip: true})
	defer c.stop()

	waitForFrame(t, c.primary)
	waitForFrame(t, c.secondary)

	img := c.render(time.Now())

	// Border pixel just outside the overlay content is black.
	bx := 640 - pipMargin - pipWidth - pipBorder
	by := 480 - pipMargin - pipHeight - pipBorder
	r, g, b, _ := img.At(bx, by).RGBA()
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}
