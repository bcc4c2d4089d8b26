package rfb

import (
	"net"
	"testing"
	"time"
)

// attachTestSession registers a Session directly on srv's session set,
// bypassing Start's accept loop, and returns the client end of the
// in-memory pipe backing it.
func attachTestSession(srv *Server, id string) net.Conn {
	serverConn, clientConn := net.Pipe()
	sess := newSession(id, serverConn, srv, "", NopSink{}, noopLogger{})
	sess.protocolVersion = "3.8"
	srv.addSession(id, sess)
	return clientConn
}

func TestBroadcastUpdateOnlyWritesToSessionsWithPendingRequest(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "unused", Width: 4, Height: 4, Name: "x"})
	client := attachTestSession(srv, "s1")

	// No FramebufferUpdateRequest has been sent yet, so a broadcast
	// must not write anything: reads on the client side should time
	// out rather than return data.
	if err := srv.BroadcastUpdate(solidFrame(4, 4, 1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected no update to be written before any request was pending")
	}

	// Now register a pending request and broadcast a changed frame:
	// this time the session must receive a FramebufferUpdate.
	sess := srv.sessions["s1"]
	sess.pendingReq = &UpdateRequest{Incremental: true, Rect: Rect{X: 0, Y: 0, W: 4, H: 4}}

	// BroadcastUpdate writes synchronously and net.Pipe has no buffer, so
	// the write only completes while the client reads: run it alongside.
	broadcastErr := make(chan error, 1)
	go func() { broadcastErr <- srv.BroadcastUpdate(solidFrame(4, 4, 9, 9, 9)) }()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, 4) // message type + pad + num_rects
	if _, err := readFullConn(client, header); err != nil {
		t.Fatalf("expected a FramebufferUpdate after a pending request, got: %v", err)
	}
	if header[0] != 0 {
		t.Fatalf("message type = %d, want 0 (FramebufferUpdate)", header[0])
	}
	// Drain the rectangle header and the 4x4 Raw payload so the write finishes.
	if _, err := readFullConn(client, make([]byte, 12+4*4*4)); err != nil {
		t.Fatal(err)
	}
	if err := <-broadcastErr; err != nil {
		t.Fatal(err)
	}
}

func TestResizeRejectsNoOpDimensions(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "unused", Width: 100, Height: 100, Name: "x"})
	if err := srv.Resize(100, 100); err == nil {
		t.Fatal("expected resizing to the current dimensions to be rejected")
	}
}

func TestResizeReplacesFramebufferDimensions(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "unused", Width: 100, Height: 100, Name: "x"})
	if err := srv.Resize(50, 60); err != nil {
		t.Fatal(err)
	}
	w, h := srv.fb.Dimensions()
	if w != 50 || h != 60 {
		t.Fatalf("dimensions after resize = %dx%d, want 50x60", w, h)
	}
}

func TestSnapshotReturnsOneEntryPerSession(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "unused", Width: 4, Height: 4, Name: "x"})
	attachTestSession(srv, "a")
	attachTestSession(srv, "b")
	infos := srv.Snapshot()
	if len(infos) != 2 {
		t.Fatalf("Snapshot returned %d entries, want 2", len(infos))
	}
}
