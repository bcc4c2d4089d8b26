package rfb

import (
	"bytes"
	"io"
)

const hextileTileSize = 16

const (
	hextileRaw                 = 0x01
	hextileBackgroundSpecified = 0x02
	hextileForegroundSpecified = 0x04
	hextileAnySubrects         = 0x08
	hextileSubrectsColoured    = 0x10
)

// HextileEncoder divides the sub-rectangle into 16x16 tiles and
// encodes each tile as background-only when it is one color, as raw
// when it has more than w*h/4 sub-rects, as monochrome subrects when
// all sub-rects share one color, and as colored subrects otherwise.
type HextileEncoder struct{}

func (HextileEncoder) Type() EncodingType { return EncodingHextile }

func (HextileEncoder) Encode(w io.Writer, fb []byte, width, height uint16, rect Rect, pf PixelFormat) error {
	for ty := rect.Y; ty < rect.Y+rect.H; ty += hextileTileSize {
		th := uint16(hextileTileSize)
		if ty+th > rect.Y+rect.H {
			th = rect.Y + rect.H - ty
		}
		for tx := rect.X; tx < rect.X+rect.W; tx += hextileTileSize {
			tw := uint16(hextileTileSize)
			if tx+tw > rect.X+rect.W {
				tw = rect.X + rect.W - tx
			}
			if err := encodeHextileTile(w, fb, width, height, Rect{X: tx, Y: ty, W: tw, H: th}, pf); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeHextileTile(w io.Writer, fb []byte, width, height uint16, tile Rect, pf PixelFormat) error {
	background := dominantColor(fb, width, tile)
	runs := findRuns(fb, width, tile, background)

	if len(runs) == 0 {
		if err := writeU8(w, hextileBackgroundSpecified); err != nil {
			return err
		}
		return writeQuad(w, pf, background)
	}

	if len(runs) > int(tile.W)*int(tile.H)/4 {
		if err := writeU8(w, hextileRaw); err != nil {
			return err
		}
		return RawEncoder{}.Encode(w, fb, width, height, tile, pf)
	}

	distinct := map[rgbaQuad]bool{}
	for _, run := range runs {
		distinct[run.color] = true
	}

	if len(distinct) == 1 {
		mask := uint8(hextileBackgroundSpecified | hextileForegroundSpecified | hextileAnySubrects)
		if err := writeU8(w, mask); err != nil {
			return err
		}
		if err := writeQuad(w, pf, background); err != nil {
			return err
		}
		if err := writeQuad(w, pf, runs[0].color); err != nil {
			return err
		}
		if err := writeU8(w, uint8(len(runs))); err != nil {
			return err
		}
		for _, run := range runs {
			if err := writeU8(w, byte(run.x<<4)|byte(run.y)); err != nil {
				return err
			}
			if err := writeU8(w, byte((run.w-1)<<4)|byte(run.h-1)); err != nil {
				return err
			}
		}
		return nil
	}

	mask := uint8(hextileBackgroundSpecified | hextileAnySubrects | hextileSubrectsColoured)
	if err := writeU8(w, mask); err != nil {
		return err
	}
	if err := writeQuad(w, pf, background); err != nil {
		return err
	}
	if err := writeU8(w, uint8(len(runs))); err != nil {
		return err
	}
	for _, run := range runs {
		if err := writeQuad(w, pf, run.color); err != nil {
			return err
		}
		if err := writeU8(w, byte(run.x<<4)|byte(run.y)); err != nil {
			return err
		}
		if err := writeU8(w, byte((run.w-1)<<4)|byte(run.h-1)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHextile reconstructs a width x height BGRA buffer's rect
// region from a Hextile payload, for round-trip testing.
func DecodeHextile(payload []byte, pf PixelFormat, rect Rect, dst []byte, dstWidth uint16) error {
	r := bytes.NewReader(payload)
	var background rgbaQuad
	var foreground rgbaQuad

	for ty := rect.Y; ty < rect.Y+rect.H; ty += hextileTileSize {
		th := uint16(hextileTileSize)
		if ty+th > rect.Y+rect.H {
			th = rect.Y + rect.H - ty
		}
		for tx := rect.X; tx < rect.X+rect.W; tx += hextileTileSize {
			tw := uint16(hextileTileSize)
			if tx+tw > rect.X+rect.W {
				tw = rect.X + rect.W - tx
			}
			tile := Rect{X: tx, Y: ty, W: tw, H: th}

			mask, err := readU8(r)
			if err != nil {
				return err
			}
			if mask&hextileRaw != 0 {
				for y := tile.Y; y < tile.Y+tile.H; y++ {
					for x := tile.X; x < tile.X+tile.W; x++ {
						q, err := readQuad(r, pf)
						if err != nil {
							return err
						}
						off := (int(y)*int(dstWidth) + int(x)) * 4
						dst[off], dst[off+1], dst[off+2], dst[off+3] = q[0], q[1], q[2], q[3]
					}
				}
				continue
			}
			if mask&hextileBackgroundSpecified != 0 {
				background, err = readQuad(r, pf)
				if err != nil {
					return err
				}
			}
			fillRect(dst, dstWidth, tile, background)
			if mask&hextileForegroundSpecified != 0 {
				foreground, err = readQuad(r, pf)
				if err != nil {
					return err
				}
			}
			if mask&hextileAnySubrects == 0 {
				continue
			}
			count, err := readU8(r)
			if err != nil {
				return err
			}
			colored := mask&hextileSubrectsColoured != 0
			for i := 0; i < int(count); i++ {
				col := foreground
				if colored {
					col, err = readQuad(r, pf)
					if err != nil {
						return err
					}
				}
				xy, err := readU8(r)
				if err != nil {
					return err
				}
				wh, err := readU8(r)
				if err != nil {
					return err
				}
				sx, sy := uint16(xy>>4), uint16(xy&0x0f)
				sw, sh := uint16(wh>>4)+1, uint16(wh&0x0f)+1
				sub := Rect{X: tile.X + sx, Y: tile.Y + sy, W: sw, H: sh}
				fillRect(dst, dstWidth, sub, col)
			}
		}
	}
	return nil
}
