package rfb

import (
	"bytes"
	"fmt"
	"sync"
)

// Framebuffer is the server's authoritative pixel store: width*height*4
// bytes in BGRA order. Dimensions are fixed once created — resizing
// replaces the buffer entirely (see Server.Resize).
type Framebuffer struct {
	mu     sync.RWMutex
	width  uint16
	height uint16
	pix    []byte
}

// NewFramebuffer allocates a zeroed (black) framebuffer of the given
// dimensions.
func NewFramebuffer(width, height uint16) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pix:    make([]byte, int(width)*int(height)*4),
	}
}

func (f *Framebuffer) Dimensions() (width, height uint16) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.width, f.height
}

// Snapshot returns a copy of the current pixel buffer plus the
// dimensions it was taken at. Callers must not mutate the returned
// slice.
func (f *Framebuffer) Snapshot() (pix []byte, width, height uint16) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make([]byte, len(f.pix))
	copy(cp, f.pix)
	return cp, f.width, f.height
}

// Set replaces the framebuffer contents atomically. buf must be
// exactly 4*width*height bytes for the framebuffer's current
// dimensions.
func (f *Framebuffer) Set(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := int(f.width) * int(f.height) * 4
	if len(buf) != want {
		return fmt.Errorf("rfb: frame buffer length %d, want %d", len(buf), want)
	}
	copy(f.pix, buf)
	return nil
}

// Resize replaces the dimensions and reallocates the pixel store. The
// caller (Server.Resize) is responsible for rejecting no-op resizes
// and for resetting every session's dirty tracker.
func (f *Framebuffer) Resize(width, height uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.width, f.height = width, height
	f.pix = make([]byte, int(width)*int(height)*4)
}

// DefaultTileSize is the dirty-tracker's tile edge in pixels.
const DefaultTileSize = 64

// DirtyTracker computes the bounding rectangle of changed tiles
// between successive frames, one instance per session so each client
// diffs against its own last-seen frame. Update runs on the session's
// own message-loop goroutine; ForceFullUpdate is also called from the
// server's broadcast goroutine (BroadcastFull, Resize), so access to
// the tracker's state is guarded by mu.
type DirtyTracker struct {
	mu       sync.Mutex
	tileSize int
	prev     []byte
	width    uint16
	height   uint16
}

// NewDirtyTracker returns a tracker using tileSize x tileSize tiles.
// A non-positive tileSize falls back to DefaultTileSize.
func NewDirtyTracker(tileSize int) *DirtyTracker {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &DirtyTracker{tileSize: tileSize}
}

// ForceFullUpdate clears the tracker's memory of the previous frame,
// guaranteeing the next Update call returns a full-screen rectangle.
func (d *DirtyTracker) ForceFullUpdate() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// Update compares cur against the previously seen frame (of the same
// width/height) and returns the bounding box of changed tiles. On
// first use, or after a dimension change, it returns the full-screen
// rectangle and adopts cur as the new baseline.
func (d *DirtyTracker) Update(cur []byte, width, height uint16) Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prev == nil || d.width != width || d.height != height || len(d.prev) != len(cur) {
		d.prev = append([]byte(nil), cur...)
		d.width, d.height = width, height
		return Rect{X: 0, Y: 0, W: width, H: height}
	}

	tile := d.tileSize
	minTX, minTY := -1, -1
	maxTX, maxTY := -1, -1

	stride := int(width) * 4
	for ty := 0; ty < int(height); ty += tile {
		th := tile
		if ty+th > int(height) {
			th = int(height) - ty
		}
		for tx := 0; tx < int(width); tx += tile {
			tw := tile
			if tx+tw > int(width) {
				tw = int(width) - tx
			}
			if tileDiffers(cur, d.prev, stride, tx, ty, tw, th) {
				if minTX == -1 || tx < minTX {
					minTX = tx
				}
				if minTY == -1 || ty < minTY {
					minTY = ty
				}
				if tx+tw > maxTX {
					maxTX = tx + tw
				}
				if ty+th > maxTY {
					maxTY = ty + th
				}
			}
		}
	}

	copy(d.prev, cur)

	if minTX == -1 {
		return Rect{}
	}
	return Rect{
		X: uint16(minTX), Y: uint16(minTY),
		W: uint16(maxTX - minTX), H: uint16(maxTY - minTY),
	}
}

func tileDiffers(cur, prev []byte, stride, tx, ty, tw, th int) bool {
	rowBytes := tw * 4
	for y := ty; y < ty+th; y++ {
		off := y*stride + tx*4
		if !bytes.Equal(cur[off:off+rowBytes], prev[off:off+rowBytes]) {
			return true
		}
	}
	return false
}
