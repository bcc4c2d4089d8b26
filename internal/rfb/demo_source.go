package rfb

import (
	"context"
	"time"
)

// demoFPS is the synthetic source's own capture cadence, independent
// of any client's request rate.
const demoFPS = 10

// demoBarCount is the number of vertical color bars painted across the
// frame width.
const demoBarCount = 8

var demoPalette = [demoBarCount][3]byte{
	{0, 0, 255}, {0, 128, 255}, {0, 255, 255}, {0, 255, 0},
	{255, 255, 0}, {255, 128, 0}, {255, 0, 0}, {255, 0, 255},
} // stored as R,G,B; DemoSource writes them out BGRA

// DemoSource is the C13 stand-in Source: a scrolling color-bar test
// card with a solid clock-tick square, so a server has something worth
// diffing when no platform capture backend is registered. It never
// runs once a caller supplies its own Source.
type DemoSource struct {
	width, height uint16
	frame         []byte
	offset        int
	ticker        *time.Ticker
}

// NewDemoSource allocates the synthetic frame buffer at the given
// dimensions.
func NewDemoSource(width, height uint16) *DemoSource {
	return &DemoSource{
		width:  width,
		height: height,
		frame:  make([]byte, int(width)*int(height)*4),
		ticker: time.NewTicker(time.Second / demoFPS),
	}
}

// NextFrame paces itself to demoFPS via its own ticker, then repaints
// the scrolling bar pattern and a clock-tick square that inverts once
// per second, returning ok=false only if ctx is done.
func (d *DemoSource) NextFrame(ctx context.Context) ([]byte, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-d.ticker.C:
	}
	d.offset = (d.offset + 1) % int(d.width)
	d.paintBars()
	d.paintClockTick()
	out := make([]byte, len(d.frame))
	copy(out, d.frame)
	return out, true
}

func (d *DemoSource) paintBars() {
	barWidth := int(d.width) / demoBarCount
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < int(d.height); y++ {
		for x := 0; x < int(d.width); x++ {
			shifted := (x + d.offset) % int(d.width)
			bar := (shifted / barWidth) % demoBarCount
			rgb := demoPalette[bar]
			off := (y*int(d.width) + x) * 4
			d.frame[off], d.frame[off+1], d.frame[off+2], d.frame[off+3] = rgb[2], rgb[1], rgb[0], 0
		}
	}
}

// paintClockTick draws a small square in the top-left corner that
// flips between black and white once per wall-clock second, giving a
// dirty-region tracker a localized change on top of the scrolling bars.
func (d *DemoSource) paintClockTick() {
	on := time.Now().Second()%2 == 0
	var value byte
	if on {
		value = 255
	}
	size := 16
	if size > int(d.width) {
		size = int(d.width)
	}
	if size > int(d.height) {
		size = int(d.height)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := (y*int(d.width) + x) * 4
			d.frame[off], d.frame[off+1], d.frame[off+2] = value, value, value
		}
	}
}
