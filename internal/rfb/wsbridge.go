package rfb

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Bridge is the C12 WebSocket-to-TCP relay: it upgrades browser
// (noVNC-style) connections on /websockify and pumps the exact RFB
// byte stream to/from a local TCP dial into the server. It never
// parses RFB — a bridged client speaks the same wire protocol as any
// native VNC client.
type Bridge struct {
	listenAddr string
	rfbAddr    string
	log        Logger
	server     *http.Server
}

// NewBridge constructs a bridge that will listen on listenAddr and
// relay every upgraded connection to rfbAddr (normally
// "127.0.0.1:<port>", the server's own RFB listener).
func NewBridge(listenAddr, rfbAddr string, log Logger) *Bridge {
	if log == nil {
		log = noopLogger{}
	}
	return &Bridge{listenAddr: listenAddr, rfbAddr: rfbAddr, log: log}
}

var bridgeUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve blocks until ctx is canceled, running the bridge's HTTP
// listener. A bind failure is returned as an error; failures on
// individual bridged connections are logged and never reach the
// caller.
func (b *Bridge) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/websockify", b.handleUpgrade)

	b.server = &http.Server{
		Addr:           b.listenAddr,
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		b.server.Close()
	}()

	b.log.Info("websocket bridge listening", "addr", b.listenAddr, "target", b.rfbAddr)
	if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rfb: websocket bridge listen: %w", err)
	}
	return nil
}

func (b *Bridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := bridgeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn, err := net.Dial("tcp", b.rfbAddr)
	if err != nil {
		b.log.Warn("bridge dial to rfb listener failed", "error", err)
		ws.Close()
		return
	}
	go pumpTCPToWS(ws, conn, b.log)
	go pumpWSToTCP(ws, conn, b.log)
}

// pumpTCPToWS relays bytes read from the local RFB connection out as
// binary WebSocket frames.
func pumpTCPToWS(ws *websocket.Conn, conn net.Conn, log Logger) {
	defer ws.Close()
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Debug("bridge tcp read ended", "error", err)
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			log.Debug("bridge websocket write failed", "error", err)
			return
		}
	}
}

// pumpWSToTCP relays binary WebSocket frames into the local RFB
// connection unmodified.
func pumpWSToTCP(ws *websocket.Conn, conn net.Conn, log Logger) {
	defer ws.Close()
	defer conn.Close()
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			log.Debug("bridge websocket read ended", "error", err)
			return
		}
		if _, err := conn.Write(payload); err != nil {
			log.Debug("bridge tcp write failed", "error", err)
			return
		}
	}
}
