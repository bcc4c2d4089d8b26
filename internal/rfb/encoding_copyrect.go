package rfb

import "io"

// CopyRectEncoder tells the client to copy an already-known
// rectangle of its own framebuffer to a new location rather than
// resending pixels. The encoder does not search for the source
// location itself — the caller supplies it.
type CopyRectEncoder struct {
	SrcX, SrcY uint16
}

func (CopyRectEncoder) Type() EncodingType { return EncodingCopyRect }

// Encode ignores fb/width/height/rect entirely: the CopyRect payload
// is exactly the 4-byte source coordinate, independent of the
// destination rectangle's contents.
func (e CopyRectEncoder) Encode(w io.Writer, _ []byte, _, _ uint16, _ Rect, _ PixelFormat) error {
	if err := writeU16(w, e.SrcX); err != nil {
		return err
	}
	return writeU16(w, e.SrcY)
}
