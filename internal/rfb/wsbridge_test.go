package rfb

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestBridgeRelaysBytesUnmodified spins up a plain TCP echo listener
// standing in for the RFB port, wraps it with a Bridge, and verifies a
// WebSocket client sees exactly what it sent echoed back — the bridge
// must not interpret or reframe the payload.
func TestBridgeRelaysBytesUnmodified(t *testing.T) {
	echoLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer echoLn.Close()
	go func() {
		for {
			conn, err := echoLn.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	bridge := NewBridge("", echoLn.Addr().String(), noopLogger{})
	srv := httptest.NewServer(nil)
	defer srv.Close()
	// Route the test server's mux to the bridge's handler directly,
	// bypassing Bridge.Serve's own http.Server/listener bookkeeping.
	srv.Config.Handler = http.HandlerFunc(bridge.handleUpgrade)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websockify"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket bridge: %v", err)
	}
	defer conn.Close()

	payload := []byte("the quick brown fox RFB payload \x00\x01\x02")
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("echoed payload = %q, want %q", got, payload)
	}
}
