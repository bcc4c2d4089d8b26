package rfb

import (
	"bytes"
	"net"
	"testing"
	"time"
)

// newTestSession wires a Session to one end of an in-memory net.Pipe
// connection, backed by a Server with the given dimensions/name/
// password, and returns the other end for the test to drive as the
// client.
func newTestSession(t *testing.T, width, height uint16, name, password string) (*Session, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	srv := NewServer(ServerConfig{
		Addr: "unused", Width: width, Height: height, Name: name, Password: password,
		Sink: NopSink{}, Logger: noopLogger{},
	})
	sess := newSession("test-id", serverConn, srv, password, NopSink{}, noopLogger{})
	return sess, clientConn
}

func TestBareHandshakeNoAuth(t *testing.T) {
	sess, client := newTestSession(t, 2, 1, "x", "")
	client.SetDeadline(time.Now().Add(2 * time.Second))

	done := make(chan error, 1)
	go func() { done <- sess.handshake() }()

	expectFromServer(t, client, []byte("RFB 003.008\n"))
	if _, err := client.Write([]byte("RFB 003.008\n")); err != nil {
		t.Fatal(err)
	}

	expectFromServer(t, client, []byte{0x01, 0x01}) // one type, None
	if _, err := client.Write([]byte{0x01}); err != nil {
		t.Fatal(err)
	}

	expectFromServer(t, client, []byte{0x00, 0x00, 0x00, 0x00}) // SecurityResult OK
	if _, err := client.Write([]byte{0x00}); err != nil {       // ClientInit, shared-flag
		t.Fatal(err)
	}

	want := []byte{
		0x00, 0x02, 0x00, 0x01, // width=2, height=1
		0x20, 0x18, 0x00, 0x01, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x10, 0x08, 0x00, 0x00, 0x00, 0x00, // pixel format
		0x00, 0x00, 0x00, 0x01, // name length = 1
		0x78, // "x"
	}
	expectFromServer(t, client, want)

	if err := <-done; err != nil {
		t.Fatalf("handshake returned error: %v", err)
	}
}

func TestVNCAuthHandshakeSuccess(t *testing.T) {
	sess, client := newTestSession(t, 1, 1, "x", "pass")
	client.SetDeadline(time.Now().Add(2 * time.Second))

	done := make(chan error, 1)
	go func() { done <- sess.handshake() }()

	expectFromServer(t, client, []byte("RFB 003.008\n"))
	client.Write([]byte("RFB 003.008\n"))

	expectFromServer(t, client, []byte{0x01, 0x02}) // one type, VncAuth
	client.Write([]byte{0x02})

	challenge := make([]byte, challengeSize)
	if _, err := readFullConn(client, challenge); err != nil {
		t.Fatal(err)
	}
	response, err := vncAuthEncrypt("pass", challenge)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Write(response); err != nil {
		t.Fatal(err)
	}

	expectFromServer(t, client, []byte{0x00, 0x00, 0x00, 0x00}) // SecurityResult OK
	if _, err := client.Write([]byte{0x00}); err != nil {       // ClientInit
		t.Fatal(err)
	}

	serverInit := make([]byte, 4+PixelFormatSize+4+1)
	if _, err := readFullConn(client, serverInit); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("handshake returned error: %v", err)
	}
}

func TestSecurityNegotiationByProtocolVersion(t *testing.T) {
	// Property 8: 3.3 writes a bare u32 security type; 3.7/3.8 write a
	// u8 count followed by that many u8 type codes.
	sess33, client33 := newTestSession(t, 1, 1, "x", "")
	sess33.protocolVersion = "3.3"
	go sess33.negotiateSecurity()
	client33.SetDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4)
	if _, err := readFullConn(client33, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0x00, 0x00, 0x00, 0x01}) {
		t.Fatalf("3.3 security field = % X, want u32(SecurityTypeNone)", buf)
	}
	// The None type needs no client response; drain the SecurityResult
	// the server sends next so its goroutine doesn't block forever.
	if _, err := readFullConn(client33, make([]byte, 4)); err != nil {
		t.Fatal(err)
	}

	sess38, client38 := newTestSession(t, 1, 1, "x", "")
	sess38.protocolVersion = "3.8"
	go sess38.negotiateSecurity()
	client38.SetDeadline(time.Now().Add(time.Second))
	buf2 := make([]byte, 2)
	if _, err := readFullConn(client38, buf2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf2, []byte{0x01, 0x01}) {
		t.Fatalf("3.8 security field = % X, want u8(1) u8(None)", buf2)
	}
	if _, err := client38.Write([]byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if _, err := readFullConn(client38, make([]byte, 4)); err != nil {
		t.Fatal(err)
	}
}

func expectFromServer(t *testing.T, conn net.Conn, want []byte) {
	t.Helper()
	got := make([]byte, len(want))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFullConn(conn, got); err != nil {
		t.Fatalf("reading %d bytes from server: %v", len(want), err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("server wrote % X, want % X", got, want)
	}
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
