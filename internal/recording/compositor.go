package recording

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"vidcall/internal/media"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	pipWidth    = 240
	pipHeight   = 180
	pipMargin   = 16
	pipBorder   = 2
	stampMargin = 10
)

// frameLatch keeps the most recent frame of one video source. The compositor
// samples latches at its own cadence, so slow or stalled sources repeat
// their last frame instead of stalling the recording clock.
type frameLatch struct {
	track media.VideoTrack

	mu     sync.Mutex
	latest *image.RGBA

	cancel context.CancelFunc
	done   chan struct{}
}

func newFrameLatch(track media.VideoTrack) *frameLatch {
	ctx, cancel := context.WithCancel(context.Background())
	l := &frameLatch{track: track, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		for {
			frame, err := track.ReadFrame(ctx)
			if err != nil {
				return
			}
			l.mu.Lock()
			l.latest = frame.Image
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *frameLatch) snapshot() *image.RGBA {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

func (l *frameLatch) stop() {
	l.cancel()
	<-l.done
}

// compositor paints the canvas of one recording: the layout sources scaled
// to fit, the local overlay in picture-in-picture mode, and the timestamp
// box in the top-right corner.
type compositor struct {
	width  int
	height int

	primary   *frameLatch
	secondary *frameLatch
	pip       bool
}

func newCompositor(width, height int, layout videoLayout) *compositor {
	c := &compositor{
		width:   width,
		height:  height,
		primary: newFrameLatch(layout.primary),
		pip:     layout.pip,
	}
	if layout.secondary != nil {
		c.secondary = newFrameLatch(layout.secondary)
	}
	return c
}

func (c *compositor) stop() {
	c.primary.stop()
	if c.secondary != nil {
		c.secondary.stop()
	}
}

// render paints one canvas frame. Sources that have not delivered a frame
// yet leave their region black.
func (c *compositor) render(now time.Time) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	fillRect(canvas, canvas.Bounds(), color.RGBA{A: 255})

	primary := c.primary.snapshot()
	var secondary *image.RGBA
	if c.secondary != nil {
		secondary = c.secondary.snapshot()
	}

	switch {
	case secondary != nil && c.pip:
		drawFitted(canvas, canvas.Bounds(), primary)
		c.drawOverlay(canvas, secondary)
	case secondary != nil:
		// Side-by-side split.
		half := c.width / 2
		drawFitted(canvas, image.Rect(0, 0, half, c.height), primary)
		drawFitted(canvas, image.Rect(half, 0, c.width, c.height), secondary)
	default:
		drawFitted(canvas, canvas.Bounds(), primary)
	}

	drawTimestamp(canvas, now)
	return canvas
}

// drawOverlay paints the local picture bottom-right with a border and a
// "You" label.
func (c *compositor) drawOverlay(canvas *image.RGBA, src *image.RGBA) {
	x1 := c.width - pipMargin
	y1 := c.height - pipMargin
	x0 := x1 - pipWidth
	y0 := y1 - pipHeight

	border := image.Rect(x0-pipBorder, y0-pipBorder, x1+pipBorder, y1+pipBorder)
	fillRect(canvas, border, color.RGBA{A: 255})
	drawFitted(canvas, image.Rect(x0, y0, x1, y1), src)
	drawLabel(canvas, "You", x0+6, y1-6)
}

// drawFitted scales src into dst preserving aspect ratio, centered, black
// bars on the remainder. A nil src leaves the region untouched.
func drawFitted(canvas *image.RGBA, dst image.Rectangle, src *image.RGBA) {
	if src == nil {
		return
	}
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return
	}

	scale := float64(dw) / float64(sw)
	if s := float64(dh) / float64(sh); s < scale {
		scale = s
	}
	tw := int(float64(sw) * scale)
	th := int(float64(sh) * scale)
	x0 := dst.Min.X + (dw-tw)/2
	y0 := dst.Min.Y + (dh-th)/2

	xdraw.ApproxBiLinear.Scale(canvas, image.Rect(x0, y0, x0+tw, y0+th), src, src.Bounds(), xdraw.Over, nil)
}

// drawTimestamp paints the wall-clock time in a dark box top-right.
func drawTimestamp(canvas *image.RGBA, now time.Time) {
	text := now.Format("2006-01-02 15:04:05")
	face := basicfont.Face7x13

	textWidth := font.MeasureString(face, text).Ceil()
	boxH := face.Metrics().Height.Ceil() + 8
	x1 := canvas.Bounds().Max.X - stampMargin
	x0 := x1 - textWidth - 12
	y0 := stampMargin
	y1 := y0 + boxH

	fillRect(canvas, image.Rect(x0, y0, x1, y1), color.RGBA{A: 200})
	drawLabel(canvas, text, x0+6, y1-6)
}

func drawLabel(canvas *image.RGBA, text string, x, y int) {
	d := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func fillRect(canvas *image.RGBA, r image.Rectangle, c color.RGBA) {
	xdraw.Draw(canvas, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}
