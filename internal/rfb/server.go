package rfb

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ServerConfig gathers everything NewServer needs to construct a
// broadcaster: initial framebuffer dimensions, the desktop name sent
// during ServerInit, and the C7 capture/injection collaborators.
type ServerConfig struct {
	Addr     string
	Width    uint16
	Height   uint16
	Name     string
	Password string // empty means SecurityTypeNone only
	TileSize int

	Source Source
	Sink   Sink
	Logger Logger

	// Recorder, if non-nil, receives every broadcast frame on a
	// best-effort basis (see recorder.go).
	Recorder *Recorder
}

// Server is the C6 broadcaster: it owns the canonical framebuffer, the
// live session set, and the mutable password, and fans updates out to
// every connected client.
type Server struct {
	addr     string
	name     string
	tileSize int

	fb *Framebuffer

	passMu   sync.Mutex
	password string

	sessMu   sync.Mutex
	sessions map[string]*Session

	source Source
	sink   Sink
	log    Logger

	recorder *Recorder

	listener net.Listener

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer constructs a Server that has not yet started listening.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}
	source := cfg.Source
	if source == nil {
		source = NewDemoSource(cfg.Width, cfg.Height)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}
	name := cfg.Name
	if name == "" {
		name = "gorfb"
	}
	return &Server{
		addr:     cfg.Addr,
		name:     name,
		tileSize: cfg.TileSize,
		fb:       NewFramebuffer(cfg.Width, cfg.Height),
		password: cfg.Password,
		sessions: map[string]*Session{},
		source:   source,
		sink:     sink,
		log:      log,
		recorder: cfg.Recorder,
		stopped:  make(chan struct{}),
	}
}

// Start binds the listener, launches the capture loop, and runs the
// accept loop until ctx is canceled or Stop is called. It returns nil
// on a clean shutdown and a non-nil error on a bind failure.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rfb: listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.log.Info("rfb server listening", "addr", ln.Addr().String())

	go s.captureLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close() // unblocks Accept below
		case <-s.stopped:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return nil
			default:
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		id := uuid.New().String()
		password := s.snapshotPassword()
		sess := newSession(id, conn, s, password, s.sink, s.log)
		s.addSession(id, sess)
		go s.serveSession(id, sess)
	}
}

func (s *Server) serveSession(id string, sess *Session) {
	defer s.removeSession(id)
	defer sess.close()
	if err := sess.Serve(); err != nil {
		s.log.Debug("session ended", "id", id, "error", err)
	} else {
		s.log.Debug("session closed", "id", id)
	}
}

// captureLoop pulls frames from the configured Source and feeds them
// into BroadcastUpdate. It runs for the server's whole lifetime; a
// Source that never has a new frame simply never triggers an update.
func (s *Server) captureLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		default:
		}
		frame, ok := s.source.NextFrame(ctx)
		if !ok {
			continue
		}
		if err := s.BroadcastUpdate(frame); err != nil {
			s.log.Warn("broadcast_update failed", "error", err)
		}
	}
}

func (s *Server) addSession(id string, sess *Session) {
	s.sessMu.Lock()
	s.sessions[id] = sess
	s.sessMu.Unlock()
}

func (s *Server) removeSession(id string) {
	s.sessMu.Lock()
	delete(s.sessions, id)
	s.sessMu.Unlock()
}

func (s *Server) sessionList() []*Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	return list
}

func (s *Server) snapshotPassword() string {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.password
}

// SetPassword changes the password used for VNC authentication on
// future connections. Already-connected sessions keep whatever
// password (or lack of one) they were accepted under.
func (s *Server) SetPassword(password string) {
	s.passMu.Lock()
	s.password = password
	s.passMu.Unlock()
}

// SetFrame replaces the shared framebuffer contents atomically. It
// does not trigger a broadcast; callers that want clients notified
// should use BroadcastUpdate instead.
func (s *Server) SetFrame(buf []byte) error {
	return s.fb.Set(buf)
}

// BroadcastUpdate installs buf as the current frame and asks every
// live session to service its own dirty region against it. Any
// session whose write fails is dropped from the set. If a recorder is
// attached it is fed the same frame on a non-blocking, best-effort
// basis.
func (s *Server) BroadcastUpdate(buf []byte) error {
	if err := s.fb.Set(buf); err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.feed(buf)
	}
	for _, sess := range s.sessionList() {
		if err := sess.serviceIfPending(); err != nil {
			s.log.Debug("dropping session after write error", "id", sess.id, "error", err)
			s.removeSession(sess.id)
			sess.close()
		}
	}
	return nil
}

// BroadcastFull forces every session's dirty tracker to emit a
// full-screen rectangle on its next update.
func (s *Server) BroadcastFull() {
	for _, sess := range s.sessionList() {
		sess.tracker.ForceFullUpdate()
	}
}

// Resize replaces the framebuffer's dimensions, provided (w, h) is
// not already the current size. Every session's tracker is reset and
// every session that advertised ExtendedDesktopSize is sent the
// server-initiated resize notification.
func (s *Server) Resize(width, height uint16) error {
	curW, curH := s.fb.Dimensions()
	if curW == width && curH == height {
		return fmt.Errorf("rfb: resize to current dimensions %dx%d rejected", width, height)
	}
	s.fb.Resize(width, height)
	for _, sess := range s.sessionList() {
		sess.tracker.ForceFullUpdate()
		if sess.wantsExtDesktopSize() {
			if err := sess.sendExtendedDesktopSize(width, height); err != nil {
				s.log.Debug("failed to notify session of resize", "id", sess.id, "error", err)
			}
		}
	}
	return nil
}

// Stop closes the listener and disconnects every session. It is
// idempotent.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.listener != nil {
			err = s.listener.Close()
		}
		for _, sess := range s.sessionList() {
			sess.close()
		}
		if s.recorder != nil {
			s.recorder.close()
		}
	})
	return err
}

// Snapshot copies out the current SessionInfo for every live session,
// for the operator console. It takes the session-set mutex only long
// enough to copy references.
func (s *Server) Snapshot() []SessionInfo {
	sessions := s.sessionList()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}
