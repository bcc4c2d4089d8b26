package rfb

import "context"

// Source is the platform-specific screen-capture collaborator. It is
// implemented outside this package; the core only ever calls
// NextFrame. NextFrame returns the latest captured frame as a BGRA
// buffer of exactly 4*width*height bytes, or ok=false meaning "no new
// frame available" — the caller keeps using the frame it already has.
type Source interface {
	NextFrame(ctx context.Context) (frame []byte, ok bool)
}

// Sink is the host-OS input-injection collaborator: keysym-to-keycode
// translation and pointer-event dispatch are entirely its concern.
type Sink interface {
	Key(down bool, keysym uint32)
	Pointer(buttons uint8, x, y uint16)
}

// NopSink discards every input event; useful for read-only servers or
// tests that don't care about input injection.
type NopSink struct{}

func (NopSink) Key(down bool, keysym uint32)         {}
func (NopSink) Pointer(buttons uint8, x, y uint16)   {}
