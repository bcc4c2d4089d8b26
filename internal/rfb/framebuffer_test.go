package rfb

import "testing"

func solidFrame(width, height int, b, g, r byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		buf[i*4], buf[i*4+1], buf[i*4+2] = b, g, r
	}
	return buf
}

func TestDirtyTrackerIdenticalFramesAreClean(t *testing.T) {
	tracker := NewDirtyTracker(64)
	frame := solidFrame(128, 128, 10, 20, 30)

	first := tracker.Update(frame, 128, 128)
	if first.Empty() {
		t.Fatal("expected the first Update to report a full-screen region")
	}

	second := tracker.Update(frame, 128, 128)
	if !second.Empty() {
		t.Fatalf("expected an identical second frame to report an empty region, got %+v", second)
	}
}

func TestDirtyTrackerSinglePixelChangeCoversItsTile(t *testing.T) {
	tracker := NewDirtyTracker(64)
	frame := solidFrame(128, 128, 0, 0, 0)
	tracker.Update(frame, 128, 128) // establish baseline

	changed := append([]byte(nil), frame...)
	off := (70*128 + 70) * 4
	changed[off] = 255

	region := tracker.Update(changed, 128, 128)
	want := Rect{X: 64, Y: 64, W: 64, H: 64}
	if region != want {
		t.Fatalf("region = %+v, want %+v", region, want)
	}
}

func TestDirtyTrackerForceFullUpdate(t *testing.T) {
	tracker := NewDirtyTracker(64)
	frame := solidFrame(64, 64, 1, 2, 3)
	tracker.Update(frame, 64, 64)
	tracker.ForceFullUpdate()

	region := tracker.Update(frame, 64, 64)
	if region.Empty() {
		t.Fatal("expected ForceFullUpdate to make the next Update report a full-screen region even for an identical frame")
	}
}

func TestFramebufferSetRejectsWrongLength(t *testing.T) {
	fb := NewFramebuffer(4, 4)
	if err := fb.Set(make([]byte, 10)); err == nil {
		t.Fatal("expected Set with the wrong buffer length to fail")
	}
}

func TestFramebufferResizeReallocates(t *testing.T) {
	fb := NewFramebuffer(4, 4)
	fb.Resize(8, 8)
	pix, w, h := fb.Snapshot()
	if w != 8 || h != 8 {
		t.Fatalf("dimensions after resize = %dx%d, want 8x8", w, h)
	}
	if len(pix) != 8*8*4 {
		t.Fatalf("pixel buffer length after resize = %d, want %d", len(pix), 8*8*4)
	}
}
