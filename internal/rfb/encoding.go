package rfb

import "io"

// Encoder produces the encoded payload for one sub-rectangle of a BGRA
// source framebuffer. The per-rectangle header (x, y, w, h, encoding)
// is written by the caller (Session), not the encoder — encoders emit
// payload bytes only.
type Encoder interface {
	Type() EncodingType
	// Encode writes the payload for the sub-rectangle rect of fb
	// (a width x height BGRA buffer) under pixel format pf.
	Encode(w io.Writer, fb []byte, width, height uint16, rect Rect, pf PixelFormat) error
}

// pixelAt returns the BGRA bytes of the pixel at (x, y) in a
// width-pixel-wide BGRA buffer.
func pixelAt(fb []byte, width uint16, x, y uint16) (b, g, r, a byte) {
	off := (int(y)*int(width) + int(x)) * 4
	return fb[off], fb[off+1], fb[off+2], fb[off+3]
}

// samePixel reports whether the pixels at the two coordinates are
// byte-identical.
func samePixel(fb []byte, width uint16, x1, y1, x2, y2 uint16) bool {
	o1 := (int(y1)*int(width) + int(x1)) * 4
	o2 := (int(y2)*int(width) + int(x2)) * 4
	return fb[o1] == fb[o2] && fb[o1+1] == fb[o2+1] && fb[o1+2] == fb[o2+2] && fb[o1+3] == fb[o2+3]
}

// rgbaQuad is a raw BGRA pixel value used as a map key when finding
// the most frequent color in a sub-rectangle.
type rgbaQuad [4]byte

func quadAt(fb []byte, width uint16, x, y uint16) rgbaQuad {
	off := (int(y)*int(width) + int(x)) * 4
	return rgbaQuad{fb[off], fb[off+1], fb[off+2], fb[off+3]}
}

// dominantColor returns the most frequent pixel value within the
// sub-rectangle rect of a width-pixel-wide BGRA buffer, used as the
// RRE/Hextile background color.
func dominantColor(fb []byte, width uint16, rect Rect) rgbaQuad {
	counts := make(map[rgbaQuad]int, 64)
	var best rgbaQuad
	bestCount := -1
	for y := rect.Y; y < rect.Y+rect.H; y++ {
		for x := rect.X; x < rect.X+rect.W; x++ {
			q := quadAt(fb, width, x, y)
			counts[q]++
			if counts[q] > bestCount {
				bestCount = counts[q]
				best = q
			}
		}
	}
	return best
}

// subRect is one axis-aligned run of a single color found while
// scanning a sub-rectangle, in coordinates relative to the
// sub-rectangle's own origin.
type subRect struct {
	x, y, w, h uint16
	color      rgbaQuad
}

// findRuns implements the RRE/Hextile scan: for every unprocessed
// pixel that differs from background, greedily grows the maximal
// axis-aligned rectangle of that exact color (extend right, then
// extend the strip down), marking covered cells processed. Runs are
// returned in the order they are discovered (row-major).
func findRuns(fb []byte, width uint16, rect Rect, background rgbaQuad) []subRect {
	w, h := int(rect.W), int(rect.H)
	if w == 0 || h == 0 {
		return nil
	}
	processed := make([]bool, w*h)
	var runs []subRect

	at := func(lx, ly int) rgbaQuad {
		return quadAt(fb, width, rect.X+uint16(lx), rect.Y+uint16(ly))
	}

	for ly := 0; ly < h; ly++ {
		for lx := 0; lx < w; lx++ {
			idx := ly*w + lx
			if processed[idx] {
				continue
			}
			col := at(lx, ly)
			if col == background {
				processed[idx] = true
				continue
			}
			// Extend right.
			rw := 1
			for lx+rw < w && !processed[ly*w+lx+rw] && at(lx+rw, ly) == col {
				rw++
			}
			// Extend down while the whole strip matches.
			rh := 1
			for ly+rh < h {
				ok := true
				for k := 0; k < rw; k++ {
					if processed[(ly+rh)*w+lx+k] || at(lx+k, ly+rh) != col {
						ok = false
						break
					}
				}
				if !ok {
					break
				}
				rh++
			}
			for dy := 0; dy < rh; dy++ {
				for dx := 0; dx < rw; dx++ {
					processed[(ly+dy)*w+lx+dx] = true
				}
			}
			runs = append(runs, subRect{x: uint16(lx), y: uint16(ly), w: uint16(rw), h: uint16(rh), color: col})
		}
	}
	return runs
}

func writeQuad(w io.Writer, pf PixelFormat, q rgbaQuad) error {
	return writePixel(w, pf, q[0], q[1], q[2], q[3])
}
