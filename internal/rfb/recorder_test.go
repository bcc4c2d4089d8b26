package rfb

import "testing"

func TestBGRAToImageReordersChannelsAndForcesOpaqueAlpha(t *testing.T) {
	// One BGRA pixel: B=0x10 G=0x20 R=0x30 A=0x00 (alpha is meaningless
	// on the wire and must come out opaque in the recorded frame).
	buf := []byte{0x10, 0x20, 0x30, 0x00}
	img := bgraToImage(buf, 1, 1)

	r, g, b, a := img.At(0, 0).RGBA()
	if byte(r>>8) != 0x30 || byte(g>>8) != 0x20 || byte(b>>8) != 0x10 || byte(a>>8) != 0xFF {
		t.Fatalf("got r=%x g=%x b=%x a=%x, want r=30 g=20 b=10 a=ff", r>>8, g>>8, b>>8, a>>8)
	}
}
