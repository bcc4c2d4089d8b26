package rfb

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteU16BigEndianRegardlessOfHost(t *testing.T) {
	var buf bytes.Buffer
	if err := writeU16(&buf, 0x1234); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x12, 0x34}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("writeU16 = % x, want % x", buf.Bytes(), want)
	}
}

func TestWriteU32BigEndianRegardlessOfHost(t *testing.T) {
	var buf bytes.Buffer
	if err := writeU32(&buf, 0xAABBCCDD); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("writeU32 = % x, want % x", buf.Bytes(), want)
	}
	if binary.BigEndian.Uint32(buf.Bytes()) != 0xAABBCCDD {
		t.Fatal("round trip through binary.BigEndian failed")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writeU8(&buf, 7)
	writeU16(&buf, 40000)
	writeU32(&buf, 4000000000)
	writeI32(&buf, -308)

	u8, err := readU8(&buf)
	if err != nil || u8 != 7 {
		t.Fatalf("readU8 = %d, %v", u8, err)
	}
	u16, err := readU16(&buf)
	if err != nil || u16 != 40000 {
		t.Fatalf("readU16 = %d, %v", u16, err)
	}
	u32, err := readU32(&buf)
	if err != nil || u32 != 4000000000 {
		t.Fatalf("readU32 = %d, %v", u32, err)
	}
	i32, err := readI32(&buf)
	if err != nil || i32 != -308 {
		t.Fatalf("readI32 = %d, %v", i32, err)
	}
}

func TestPixelFormatWireRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writePixelFormat(&buf, DefaultPixelFormat); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != PixelFormatSize {
		t.Fatalf("wire pixel format is %d bytes, want %d", buf.Len(), PixelFormatSize)
	}
	got, err := readPixelFormat(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultPixelFormat {
		t.Fatalf("readPixelFormat = %+v, want %+v", got, DefaultPixelFormat)
	}
}

func TestWritePixelDefaultFormatIsBGRAWithZeroAlpha(t *testing.T) {
	var buf bytes.Buffer
	if err := writePixel(&buf, DefaultPixelFormat, 0x11, 0x22, 0x33, 0xFF); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x11, 0x22, 0x33, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("writePixel = % x, want % x", buf.Bytes(), want)
	}
}
