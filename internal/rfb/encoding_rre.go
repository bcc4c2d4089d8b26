package rfb

import (
	"bytes"
	"encoding/binary"
	"io"
)

// RREEncoder implements Rise-and-Run-length encoding: a background
// color plus a list of solid-colored sub-rectangles that differ from
// it.
type RREEncoder struct{}

func (RREEncoder) Type() EncodingType { return EncodingRRE }

func (RREEncoder) Encode(w io.Writer, fb []byte, width, height uint16, rect Rect, pf PixelFormat) error {
	payload, _, err := buildRRE(fb, width, rect, pf)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// buildRRE renders the RRE payload and also returns the sub-rectangle
// count, which IsEfficientRRE needs without re-parsing the payload.
func buildRRE(fb []byte, width uint16, rect Rect, pf PixelFormat) ([]byte, int, error) {
	background := dominantColor(fb, width, rect)
	runs := findRuns(fb, width, rect, background)

	var buf bytes.Buffer
	if err := writeU32(&buf, uint32(len(runs))); err != nil {
		return nil, 0, err
	}
	if err := writeQuad(&buf, pf, background); err != nil {
		return nil, 0, err
	}
	for _, run := range runs {
		if err := writeQuad(&buf, pf, run.color); err != nil {
			return nil, 0, err
		}
		if err := writeU16(&buf, run.x); err != nil {
			return nil, 0, err
		}
		if err := writeU16(&buf, run.y); err != nil {
			return nil, 0, err
		}
		if err := writeU16(&buf, run.w); err != nil {
			return nil, 0, err
		}
		if err := writeU16(&buf, run.h); err != nil {
			return nil, 0, err
		}
	}
	return buf.Bytes(), len(runs), nil
}

// IsEfficientRRE reports whether RRE is worth choosing over Raw for
// the given sub-rectangle: at most 50 sub-rects, and the encoded size
// under half the raw size.
func IsEfficientRRE(fb []byte, width uint16, rect Rect, pf PixelFormat) (efficient bool, payload []byte, err error) {
	payload, numSubRects, err := buildRRE(fb, width, rect, pf)
	if err != nil {
		return false, nil, err
	}
	rawSize := int(rect.W) * int(rect.H) * bytesPerPixel(pf)
	efficient = numSubRects <= 50 && len(payload) < rawSize/2
	return efficient, payload, nil
}

// DecodeRRE reconstructs a width x height BGRA buffer's rect region
// from an RRE payload, for round-trip testing.
func DecodeRRE(payload []byte, pf PixelFormat, rect Rect, dst []byte, dstWidth uint16) error {
	r := bytes.NewReader(payload)
	numSubRects, err := readU32(r)
	if err != nil {
		return err
	}
	bg, err := readQuad(r, pf)
	if err != nil {
		return err
	}
	fillRect(dst, dstWidth, rect, bg)

	for i := uint32(0); i < numSubRects; i++ {
		col, err := readQuad(r, pf)
		if err != nil {
			return err
		}
		x, err := readU16(r)
		if err != nil {
			return err
		}
		y, err := readU16(r)
		if err != nil {
			return err
		}
		w, err := readU16(r)
		if err != nil {
			return err
		}
		h, err := readU16(r)
		if err != nil {
			return err
		}
		sub := Rect{X: rect.X + x, Y: rect.Y + y, W: w, H: h}
		fillRect(dst, dstWidth, sub, col)
	}
	return nil
}

func fillRect(dst []byte, dstWidth uint16, rect Rect, q rgbaQuad) {
	for y := rect.Y; y < rect.Y+rect.H; y++ {
		for x := rect.X; x < rect.X+rect.W; x++ {
			off := (int(y)*int(dstWidth) + int(x)) * 4
			dst[off], dst[off+1], dst[off+2], dst[off+3] = q[0], q[1], q[2], q[3]
		}
	}
}

// readQuad reads one pixel under pf and returns it re-expanded to a
// BGRA quad using pf's shifts/maxes (inverse of packPixel). It is
// exact for 8-bit channels; for narrower channels the low bits lost
// by packPixel are not recovered. The fourth byte is always 0.
func readQuad(r io.Reader, pf PixelFormat) (rgbaQuad, error) {
	var pixel uint32
	switch pf.BPP {
	case 8:
		v, err := readU8(r)
		if err != nil {
			return rgbaQuad{}, err
		}
		pixel = uint32(v)
	case 16:
		var buf [2]byte
		if err := readFull(r, buf[:]); err != nil {
			return rgbaQuad{}, err
		}
		if pf.BigEndian == 1 {
			pixel = uint32(binary.BigEndian.Uint16(buf[:]))
		} else {
			pixel = uint32(binary.LittleEndian.Uint16(buf[:]))
		}
	default:
		var buf [4]byte
		if err := readFull(r, buf[:]); err != nil {
			return rgbaQuad{}, err
		}
		if pf.BigEndian == 1 {
			pixel = binary.BigEndian.Uint32(buf[:])
		} else {
			pixel = binary.LittleEndian.Uint32(buf[:])
		}
	}
	red := unscaleChannel((pixel>>pf.RedShift)&uint32(pf.RedMax), pf.RedMax)
	green := unscaleChannel((pixel>>pf.GreenShift)&uint32(pf.GreenMax), pf.GreenMax)
	blue := unscaleChannel((pixel>>pf.BlueShift)&uint32(pf.BlueMax), pf.BlueMax)
	return rgbaQuad{blue, green, red, 0}, nil
}

func unscaleChannel(v uint32, max uint16) byte {
	if max == 255 {
		return byte(v)
	}
	if max == 0 {
		return 0
	}
	return byte((v * 255) / uint32(max))
}
