// Package rfb implements the server side of the Remote Framebuffer
// (RFB/VNC) protocol: handshake, per-client message loop, dirty-region
// tracking and the Raw/CopyRect/RRE/Hextile rectangle encoders.
package rfb

import "fmt"

// PixelFormat describes how a pixel is laid out on the wire. See RFC
// 6143 §7.4.
type PixelFormat struct {
	BPP                             uint8 // bits-per-pixel: 8, 16 or 32
	Depth                           uint8 // depth <= BPP
	BigEndian                       uint8 // 1 if multi-byte pixels are big-endian
	TrueColor                       uint8 // 1 if true-color (no color map)
	RedMax, GreenMax, BlueMax       uint16
	RedShift, GreenShift, BlueShift uint8
	_                               [3]byte // padding
}

const PixelFormatSize = 16

// DefaultPixelFormat is what the server offers a client during
// ServerInit: 32bpp, depth 24, little-endian, true color, BGRA byte
// order on the wire (B, G, R, 0).
var DefaultPixelFormat = PixelFormat{
	BPP: 32, Depth: 24, BigEndian: 0, TrueColor: 1,
	RedMax: 255, GreenMax: 255, BlueMax: 255,
	RedShift: 16, GreenShift: 8, BlueShift: 0,
}

// Validate checks the channel-max/shift invariants from the data model:
// each channel max must fit in the bits actually reserved for it and
// the three channels must not overlap within BPP.
func (pf PixelFormat) Validate() error {
	switch pf.BPP {
	case 8, 16, 32:
	default:
		return fmt.Errorf("rfb: invalid bits-per-pixel %d", pf.BPP)
	}
	if pf.Depth > pf.BPP {
		return fmt.Errorf("rfb: depth %d exceeds bits-per-pixel %d", pf.Depth, pf.BPP)
	}
	type span struct{ lo, hi uint32 }
	spans := []span{
		{uint32(pf.RedShift), uint32(pf.RedShift) + bitsFor(pf.RedMax)},
		{uint32(pf.GreenShift), uint32(pf.GreenShift) + bitsFor(pf.GreenMax)},
		{uint32(pf.BlueShift), uint32(pf.BlueShift) + bitsFor(pf.BlueMax)},
	}
	for i := range spans {
		for j := range spans {
			if i == j {
				continue
			}
			if spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi {
				return fmt.Errorf("rfb: pixel format channel shifts overlap")
			}
		}
	}
	return nil
}

func bitsFor(max uint16) uint32 {
	n := uint32(0)
	for (uint32(1) << n) <= uint32(max) {
		n++
	}
	return n
}

func (pf PixelFormat) String() string {
	return fmt.Sprintf("{bpp:%d depth:%d be:%d tc:%d rmax:%d gmax:%d bmax:%d rs:%d gs:%d bs:%d}",
		pf.BPP, pf.Depth, pf.BigEndian, pf.TrueColor, pf.RedMax, pf.GreenMax, pf.BlueMax,
		pf.RedShift, pf.GreenShift, pf.BlueShift)
}

// EncodingType is the signed 32-bit wire code for a rectangle encoding
// or a pseudo-encoding capability advertisement.
type EncodingType int32

const (
	EncodingRaw                 EncodingType = 0
	EncodingCopyRect            EncodingType = 1
	EncodingRRE                 EncodingType = 2
	EncodingHextile             EncodingType = 5
	EncodingCursorPseudo        EncodingType = -239
	EncodingDesktopSizePseudo   EncodingType = -223
	EncodingExtendedDesktopSize EncodingType = -308
)

func (e EncodingType) String() string {
	switch e {
	case EncodingRaw:
		return "Raw"
	case EncodingCopyRect:
		return "CopyRect"
	case EncodingRRE:
		return "RRE"
	case EncodingHextile:
		return "Hextile"
	case EncodingCursorPseudo:
		return "CursorPseudo"
	case EncodingDesktopSizePseudo:
		return "DesktopSizePseudo"
	case EncodingExtendedDesktopSize:
		return "ExtendedDesktopSize"
	default:
		return fmt.Sprintf("EncodingType(%d)", int32(e))
	}
}

// Rect is an axis-aligned rectangle in framebuffer pixel coordinates.
type Rect struct {
	X, Y, W, H uint16
}

// Empty reports whether the rectangle covers zero pixels.
func (r Rect) Empty() bool { return r.W == 0 || r.H == 0 }

// Intersect returns the overlap of r and o, which is empty if they do
// not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max16(r.X, o.X), max16(r.Y, o.Y)
	x1, y1 := min32(int(r.X)+int(r.W), int(o.X)+int(o.W)), min32(int(r.Y)+int(r.H), int(o.Y)+int(o.H))
	if int(x0) >= x1 || int(y0) >= y1 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: uint16(x1 - int(x0)), H: uint16(y1 - int(y0))}
}

// ClampTo clamps r so it lies entirely within a width x height buffer.
func (r Rect) ClampTo(width, height uint16) Rect {
	return r.Intersect(Rect{X: 0, Y: 0, W: width, H: height})
}

func max16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// UpdateRequest is a parsed FramebufferUpdateRequest message.
type UpdateRequest struct {
	Incremental bool
	Rect        Rect
}

// ClientMessageType identifies a client-to-server message.
type ClientMessageType uint8

const (
	MsgSetPixelFormat           ClientMessageType = 0
	MsgSetEncodings             ClientMessageType = 2
	MsgFramebufferUpdateRequest ClientMessageType = 3
	MsgKeyEvent                 ClientMessageType = 4
	MsgPointerEvent             ClientMessageType = 5
	MsgClientCutText            ClientMessageType = 6
	MsgSetDesktopSize           ClientMessageType = 251
)

// SecurityType is one of the RFB security-negotiation codes.
type SecurityType uint8

const (
	SecurityTypeNone     SecurityType = 1
	SecurityTypeVNCAuth  SecurityType = 2
)
