package rfb

import (
	"context"
	"testing"
	"time"
)

func TestDemoSourceProducesCorrectlySizedFrames(t *testing.T) {
	src := NewDemoSource(32, 16)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, ok := src.NextFrame(ctx)
	if !ok {
		t.Fatal("expected a frame before the context deadline")
	}
	if len(frame) != 32*16*4 {
		t.Fatalf("frame length = %d, want %d", len(frame), 32*16*4)
	}
}

func TestDemoSourceStopsWhenContextCanceled(t *testing.T) {
	src := NewDemoSource(4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := src.NextFrame(ctx)
	if ok {
		t.Fatal("expected NextFrame to report no frame once the context is already canceled")
	}
}
