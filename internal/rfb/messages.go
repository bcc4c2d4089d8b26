package rfb

import (
	"fmt"
	"io"
)

// SetPixelFormatMsg is message type 0.
type SetPixelFormatMsg struct {
	Format PixelFormat
}

func readSetPixelFormat(r io.Reader) (SetPixelFormatMsg, error) {
	if err := skipPad(r, 3); err != nil {
		return SetPixelFormatMsg{}, err
	}
	pf, err := readPixelFormat(r)
	return SetPixelFormatMsg{Format: pf}, err
}

// SetEncodingsMsg is message type 2.
type SetEncodingsMsg struct {
	Encodings []EncodingType
}

func readSetEncodings(r io.Reader) (SetEncodingsMsg, error) {
	if err := skipPad(r, 1); err != nil {
		return SetEncodingsMsg{}, err
	}
	count, err := readU16(r)
	if err != nil {
		return SetEncodingsMsg{}, err
	}
	encs := make([]EncodingType, count)
	for i := range encs {
		v, err := readI32(r)
		if err != nil {
			return SetEncodingsMsg{}, err
		}
		encs[i] = EncodingType(v)
	}
	return SetEncodingsMsg{Encodings: encs}, nil
}

func readUpdateRequest(r io.Reader) (UpdateRequest, error) {
	inc, err := readU8(r)
	if err != nil {
		return UpdateRequest{}, err
	}
	x, err := readU16(r)
	if err != nil {
		return UpdateRequest{}, err
	}
	y, err := readU16(r)
	if err != nil {
		return UpdateRequest{}, err
	}
	w, err := readU16(r)
	if err != nil {
		return UpdateRequest{}, err
	}
	h, err := readU16(r)
	if err != nil {
		return UpdateRequest{}, err
	}
	return UpdateRequest{Incremental: inc != 0, Rect: Rect{X: x, Y: y, W: w, H: h}}, nil
}

// KeyEventMsg is message type 4.
type KeyEventMsg struct {
	Down   bool
	KeySym uint32
}

func readKeyEvent(r io.Reader) (KeyEventMsg, error) {
	down, err := readU8(r)
	if err != nil {
		return KeyEventMsg{}, err
	}
	if err := skipPad(r, 2); err != nil {
		return KeyEventMsg{}, err
	}
	sym, err := readU32(r)
	if err != nil {
		return KeyEventMsg{}, err
	}
	return KeyEventMsg{Down: down != 0, KeySym: sym}, nil
}

// PointerEventMsg is message type 5. Buttons follow the RFB
// convention: bit 0 left, 1 middle, 2 right, 3 wheel-up, 4 wheel-down.
type PointerEventMsg struct {
	Buttons uint8
	X, Y    uint16
}

func readPointerEvent(r io.Reader) (PointerEventMsg, error) {
	buttons, err := readU8(r)
	if err != nil {
		return PointerEventMsg{}, err
	}
	x, err := readU16(r)
	if err != nil {
		return PointerEventMsg{}, err
	}
	y, err := readU16(r)
	if err != nil {
		return PointerEventMsg{}, err
	}
	return PointerEventMsg{Buttons: buttons, X: x, Y: y}, nil
}

func readClientCutText(r io.Reader) ([]byte, error) {
	if err := skipPad(r, 3); err != nil {
		return nil, err
	}
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	// Guard against a malicious/garbled length turning a short read
	// into an enormous allocation.
	const maxCutText = 16 << 20
	if n > maxCutText {
		return nil, fmt.Errorf("rfb: ClientCutText length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SetDesktopSizeMsg is message type 251 (the "ExtendedDesktopSize"
// client request). This server never honors it — see the resize
// policy in DESIGN.md — but must still consume the exact payload
// length so the connection stays in sync.
type SetDesktopSizeMsg struct {
	Width, Height uint16
}

func readSetDesktopSize(r io.Reader) (SetDesktopSizeMsg, error) {
	if err := skipPad(r, 1); err != nil {
		return SetDesktopSizeMsg{}, err
	}
	w, err := readU16(r)
	if err != nil {
		return SetDesktopSizeMsg{}, err
	}
	h, err := readU16(r)
	if err != nil {
		return SetDesktopSizeMsg{}, err
	}
	screens, err := readU8(r)
	if err != nil {
		return SetDesktopSizeMsg{}, err
	}
	if err := skipPad(r, 1); err != nil {
		return SetDesktopSizeMsg{}, err
	}
	if err := skipPad(r, int(screens)*16); err != nil {
		return SetDesktopSizeMsg{}, err
	}
	return SetDesktopSizeMsg{Width: w, Height: h}, nil
}

// writeFramebufferUpdateHeader writes the FramebufferUpdate message
// header for a single-rectangle update: type=0, padding, num_rects=1.
func writeFramebufferUpdateHeader(w io.Writer) error {
	if err := writeU8(w, 0); err != nil {
		return err
	}
	if err := writePad(w, 1); err != nil {
		return err
	}
	return writeU16(w, 1)
}

func writeRectHeader(w io.Writer, rect Rect, enc EncodingType) error {
	if err := writeU16(w, rect.X); err != nil {
		return err
	}
	if err := writeU16(w, rect.Y); err != nil {
		return err
	}
	if err := writeU16(w, rect.W); err != nil {
		return err
	}
	if err := writeU16(w, rect.H); err != nil {
		return err
	}
	return writeI32(w, int32(enc))
}

// writeExtendedDesktopSize emits the server-initiated resize
// notification: one rectangle at (0, statusCode) sized (newWidth,
// newHeight) with encoding ExtendedDesktopSize, followed by a single
// synthetic screen descriptor covering the whole framebuffer.
func writeExtendedDesktopSize(w io.Writer, statusCode uint16, newWidth, newHeight uint16) error {
	if err := writeFramebufferUpdateHeader(w); err != nil {
		return err
	}
	if err := writeRectHeader(w, Rect{X: 0, Y: statusCode, W: newWidth, H: newHeight}, EncodingExtendedDesktopSize); err != nil {
		return err
	}
	if err := writeU8(w, 1); err != nil { // num_screens
		return err
	}
	if err := writePad(w, 3); err != nil {
		return err
	}
	if err := writeU32(w, 0); err != nil { // screen id
		return err
	}
	if err := writeU16(w, 0); err != nil { // x
		return err
	}
	if err := writeU16(w, 0); err != nil { // y
		return err
	}
	if err := writeU16(w, newWidth); err != nil {
		return err
	}
	if err := writeU16(w, newHeight); err != nil {
		return err
	}
	return writeU32(w, 0) // flags
}
