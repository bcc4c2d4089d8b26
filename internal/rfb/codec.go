package rfb

import (
	"encoding/binary"
	"io"
)

// All multi-byte integers on the wire are big-endian (network byte
// order), per RFC 6143 §7. readFull loops until the requested number
// of bytes has been read or the stream ends, so a short read never
// silently truncates a message the way a single io.Reader.Read call
// can.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeI32(w io.Writer, v int32) error {
	return writeU32(w, uint32(v))
}

func writePad(w io.Writer, n int) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	_, err := w.Write(buf)
	return err
}

func skipPad(r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	return readFull(r, buf)
}

// bytesPerPixel returns the wire size of one pixel under fmt.
func bytesPerPixel(pf PixelFormat) int {
	return int(pf.BPP) / 8
}

// writePixel serializes one BGRA source pixel under the negotiated
// pixel format. For the server's default 32bpp little-endian
// true-color format this emits B, G, R, 0 — the source framebuffer's
// own byte order with the fourth byte zeroed.
func writePixel(w io.Writer, pf PixelFormat, b, g, r, _ byte) error {
	pixel := packPixel(pf, b, g, r)
	switch pf.BPP {
	case 8:
		return writeU8(w, uint8(pixel))
	case 16:
		if pf.BigEndian == 1 {
			return writeU16(w, uint16(pixel))
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(pixel))
		_, err := w.Write(buf[:])
		return err
	default: // 32
		if pf.BigEndian == 1 {
			return writeU32(w, pixel)
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], pixel)
		_, err := w.Write(buf[:])
		return err
	}
}

// packPixel maps a source BGRA byte triple onto the shift/max layout
// of pf, scaling each 8-bit channel down to the channel's bit depth.
func packPixel(pf PixelFormat, b, g, r byte) uint32 {
	red := scaleChannel(r, pf.RedMax)
	green := scaleChannel(g, pf.GreenMax)
	blue := scaleChannel(b, pf.BlueMax)
	return (red << pf.RedShift) | (green << pf.GreenShift) | (blue << pf.BlueShift)
}

func scaleChannel(v byte, max uint16) uint32 {
	if max == 255 {
		return uint32(v)
	}
	return (uint32(v) * uint32(max)) / 255
}

// PixelFormat wire (de)serialization.

func writePixelFormat(w io.Writer, pf PixelFormat) error {
	if err := writeU8(w, pf.BPP); err != nil {
		return err
	}
	if err := writeU8(w, pf.Depth); err != nil {
		return err
	}
	if err := writeU8(w, pf.BigEndian); err != nil {
		return err
	}
	if err := writeU8(w, pf.TrueColor); err != nil {
		return err
	}
	if err := writeU16(w, pf.RedMax); err != nil {
		return err
	}
	if err := writeU16(w, pf.GreenMax); err != nil {
		return err
	}
	if err := writeU16(w, pf.BlueMax); err != nil {
		return err
	}
	if err := writeU8(w, pf.RedShift); err != nil {
		return err
	}
	if err := writeU8(w, pf.GreenShift); err != nil {
		return err
	}
	if err := writeU8(w, pf.BlueShift); err != nil {
		return err
	}
	return writePad(w, 3)
}

func readPixelFormat(r io.Reader) (PixelFormat, error) {
	var pf PixelFormat
	var err error
	if pf.BPP, err = readU8(r); err != nil {
		return pf, err
	}
	if pf.Depth, err = readU8(r); err != nil {
		return pf, err
	}
	if pf.BigEndian, err = readU8(r); err != nil {
		return pf, err
	}
	if pf.TrueColor, err = readU8(r); err != nil {
		return pf, err
	}
	if pf.RedMax, err = readU16(r); err != nil {
		return pf, err
	}
	if pf.GreenMax, err = readU16(r); err != nil {
		return pf, err
	}
	if pf.BlueMax, err = readU16(r); err != nil {
		return pf, err
	}
	if pf.RedShift, err = readU8(r); err != nil {
		return pf, err
	}
	if pf.GreenShift, err = readU8(r); err != nil {
		return pf, err
	}
	if pf.BlueShift, err = readU8(r); err != nil {
		return pf, err
	}
	if err := skipPad(r, 3); err != nil {
		return pf, err
	}
	return pf, nil
}
