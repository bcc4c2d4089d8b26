// Command gorfbd runs a standalone RFB (VNC) server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/gorfb/gorfbd/internal/rfb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gorfbd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		port            = flag.Int("port", 5900, "TCP port to listen on")
		width           = flag.Int("width", 1024, "initial framebuffer width")
		height          = flag.Int("height", 768, "initial framebuffer height")
		password        = flag.String("password", "", "VNC authentication password (<=8 chars honored, rest truncated)")
		configPath      = flag.String("config", "", "optional YAML config file")
		record          = flag.String("record", "", "optional path prefix for an AVI/MJPEG session recording")
		websocketListen = flag.String("websocket-listen", "", "optional address to serve a WebSocket/noVNC bridge on")
		tileSize        = flag.Int("tile-size", rfb.DefaultTileSize, "dirty-tracker tile edge in pixels")
	)
	flag.Parse()

	fileCfg, err := rfb.LoadFileConfig(*configPath)
	if err != nil {
		return err
	}
	cfg := rfb.FileConfig{
		Port: 5900, Width: 1024, Height: 768, TileSize: rfb.DefaultTileSize,
	}.Merge(fileCfg)

	if flag.CommandLine.Changed("port") {
		cfg.Port = *port
	}
	if flag.CommandLine.Changed("width") {
		cfg.Width = *width
	}
	if flag.CommandLine.Changed("height") {
		cfg.Height = *height
	}
	if flag.CommandLine.Changed("password") {
		cfg.Password = *password
	}
	if flag.CommandLine.Changed("tile-size") {
		cfg.TileSize = *tileSize
	}
	if flag.CommandLine.Changed("record") {
		cfg.Record = *record
	}
	if flag.CommandLine.Changed("websocket-listen") {
		cfg.WebsocketListen = *websocketListen
	}

	if len(cfg.Password) > 8 {
		slog.Warn("password longer than 8 bytes, truncating for VNC auth", "length", len(cfg.Password))
	}

	log := rfb.NewSlogLogger(slog.Default())

	var recorder *rfb.Recorder
	if cfg.Record != "" {
		recorder, err = rfb.NewRecorder(cfg.Record, uint16(cfg.Width), uint16(cfg.Height), rfb.DefaultRecorderFPS, log)
		if err != nil {
			return fmt.Errorf("starting recorder: %w", err)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := rfb.NewServer(rfb.ServerConfig{
		Addr:     addr,
		Width:    uint16(cfg.Width),
		Height:   uint16(cfg.Height),
		Name:     "gorfbd",
		Password: cfg.Password,
		TileSize: cfg.TileSize,
		Logger:   log,
		Recorder: recorder,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	if cfg.WebsocketListen != "" {
		bridge := rfb.NewBridge(cfg.WebsocketListen, "127.0.0.1"+addr, log)
		go func() {
			if err := bridge.Serve(ctx); err != nil {
				log.Warn("websocket bridge stopped", "error", err)
			}
		}()
	}

	go runConsole(ctx, server, addr)

	select {
	case <-ctx.Done():
		server.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

// runConsole picks between the interactive bubbletea console and the
// scriptable line-command fallback depending on whether stdin is a
// terminal.
func runConsole(ctx context.Context, server *rfb.Server, addr string) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		p := tea.NewProgram(newConsoleModel(server, addr))
		if _, err := p.Run(); err != nil {
			fmt.Fprintln(os.Stderr, "console error:", err)
		}
		return
	}
	runLineConsole(ctx, server)
}

// runLineConsole implements the same status/clients/quit verbs for
// non-TTY stdin (e.g. under a process supervisor), so the daemon stays
// scriptable without a terminal attached.
func runLineConsole(ctx context.Context, server *rfb.Server) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "status":
			fmt.Printf("%d client(s) connected\n", len(server.Snapshot()))
		case "clients":
			for _, c := range server.Snapshot() {
				fmt.Printf("%s %s rfb %s sent=%d\n", c.ID, c.RemoteAddr, c.ProtocolVersion, c.BytesSent)
			}
		case "quit":
			server.Stop()
			return
		}
	}
}
