package rfb

import (
	"bytes"
	"io"
)

// RawEncoder concatenates the sub-rectangle's pixels row by row, each
// serialized under the negotiated pixel format. Output is always
// exactly w*h*bytesPerPixel bytes.
type RawEncoder struct{}

func (RawEncoder) Type() EncodingType { return EncodingRaw }

func (RawEncoder) Encode(w io.Writer, fb []byte, width, height uint16, rect Rect, pf PixelFormat) error {
	for y := rect.Y; y < rect.Y+rect.H; y++ {
		for x := rect.X; x < rect.X+rect.W; x++ {
			b, g, r, a := pixelAt(fb, width, x, y)
			if err := writePixel(w, pf, b, g, r, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeRaw reconstructs a width x height BGRA buffer's rect region
// from a Raw payload, for round-trip testing.
func DecodeRaw(payload []byte, pf PixelFormat, rect Rect, dst []byte, dstWidth uint16) error {
	r := bytes.NewReader(payload)
	for y := rect.Y; y < rect.Y+rect.H; y++ {
		for x := rect.X; x < rect.X+rect.W; x++ {
			q, err := readQuad(r, pf)
			if err != nil {
				return err
			}
			off := (int(y)*int(dstWidth) + int(x)) * 4
			dst[off], dst[off+1], dst[off+2], dst[off+3] = q[0], q[1], q[2], q[3]
		}
	}
	return nil
}
