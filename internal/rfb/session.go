package rfb

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"
)

// ioTimeout bounds every individual stream read or write. A session
// that makes no progress within this window is treated as dead.
const ioTimeout = 30 * time.Second

// SessionInfo is read-only bookkeeping surfaced to the operator
// console and to log records. It never participates in the wire
// protocol.
type SessionInfo struct {
	ID              string
	RemoteAddr      string
	ProtocolVersion string
	ConnectedAt     time.Time
	BytesSent       int64
	LastUpdateAt    time.Time
}

// Session is one accepted RFB connection: its own handshake state,
// negotiated pixel format and encoding capabilities, and its own
// dirty-region tracker so it diffs independently of every other
// client.
type Session struct {
	id       string
	conn     net.Conn
	br       *bufio.Reader
	bw       *bufio.Writer
	server   *Server
	log      Logger
	sink     Sink
	password string // snapshot taken at accept time

	protocolVersion string
	desktopName     string

	capMu           sync.Mutex
	pixelFormat     PixelFormat
	encodings       map[EncodingType]bool
	extDesktopSize  bool

	tracker *DirtyTracker

	sendMu sync.Mutex

	pendingMu  sync.Mutex
	pendingReq *UpdateRequest

	infoMu sync.Mutex
	info   SessionInfo
}

func newSession(id string, conn net.Conn, srv *Server, password string, sink Sink, log Logger) *Session {
	if log == nil {
		log = noopLogger{}
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Session{
		id:          id,
		conn:        conn,
		br:          bufio.NewReader(conn),
		bw:          bufio.NewWriter(conn),
		server:      srv,
		log:         log,
		sink:        sink,
		password:    password,
		pixelFormat: DefaultPixelFormat,
		encodings:   map[EncodingType]bool{},
		tracker:     NewDirtyTracker(srv.tileSize),
	}
}

func (s *Session) Info() SessionInfo {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.info
}

func (s *Session) touchLastUpdate() {
	s.infoMu.Lock()
	s.info.LastUpdateAt = time.Now()
	s.infoMu.Unlock()
}

func (s *Session) addBytesSent(n int) {
	s.infoMu.Lock()
	s.info.BytesSent += int64(n)
	s.infoMu.Unlock()
}

func (s *Session) deadline() time.Time { return time.Now().Add(ioTimeout) }

// Read implements io.Reader against the buffered, deadline-bounded
// connection, so codec helpers can take a Session directly.
func (s *Session) Read(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(s.deadline()); err != nil {
		return 0, err
	}
	return s.br.Read(p)
}

// Write implements io.Writer the same way, and tracks bytes-sent
// bookkeeping for the operator console.
func (s *Session) Write(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return 0, err
	}
	n, err := s.bw.Write(p)
	s.addBytesSent(n)
	return n, err
}

func (s *Session) flush() error {
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *Session) close() { s.conn.Close() }

// Serve runs the handshake state machine and then the message loop.
// It always returns the error that ended the session: io.EOF when the
// peer closes the connection, otherwise the protocol violation,
// timeout, or auth failure. The caller (Server) removes the session
// from its set either way.
func (s *Session) Serve() error {
	if err := s.handshake(); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	s.infoMu.Lock()
	s.info = SessionInfo{
		ID:              s.id,
		RemoteAddr:      s.conn.RemoteAddr().String(),
		ProtocolVersion: s.protocolVersion,
		ConnectedAt:     time.Now(),
	}
	s.infoMu.Unlock()

	return s.messageLoop()
}

// --- Handshake: H0 through H5, strict order. ---

func (s *Session) handshake() error {
	if err := s.sendProtocolVersion(); err != nil { // H0
		return err
	}
	if err := s.readProtocolVersion(); err != nil { // H1
		return err
	}
	if err := s.negotiateSecurity(); err != nil { // H2 + H3
		return err
	}
	if err := s.readClientInit(); err != nil { // H4
		return err
	}
	return s.sendServerInit() // H5
}

func (s *Session) sendProtocolVersion() error {
	if _, err := s.Write([]byte("RFB 003.008\n")); err != nil {
		return err
	}
	return s.flush()
}

func (s *Session) readProtocolVersion() error {
	buf := make([]byte, 12)
	if err := readFull(s, buf); err != nil {
		return err
	}
	var major, minor int
	if _, err := fmt.Sscanf(string(buf), "RFB %d.%3d\n", &major, &minor); err != nil {
		return fmt.Errorf("unparseable protocol version %q: %w", buf, err)
	}
	switch {
	case major == 3 && minor == 8:
		s.protocolVersion = "3.8"
	case major == 3 && minor == 7:
		s.protocolVersion = "3.7"
	default:
		s.protocolVersion = "3.3"
	}
	return nil
}

func (s *Session) negotiateSecurity() error {
	offerVNCAuth := s.password != ""

	if s.protocolVersion == "3.3" {
		var chosen SecurityType = SecurityTypeNone
		if offerVNCAuth {
			chosen = SecurityTypeVNCAuth
		}
		if err := writeU32(s, uint32(chosen)); err != nil {
			return err
		}
		if err := s.flush(); err != nil {
			return err
		}
		return s.runAuth(chosen)
	}

	types := []SecurityType{SecurityTypeNone}
	if offerVNCAuth {
		types = []SecurityType{SecurityTypeVNCAuth}
	}
	if err := writeU8(s, uint8(len(types))); err != nil {
		return err
	}
	for _, t := range types {
		if err := writeU8(s, uint8(t)); err != nil {
			return err
		}
	}
	if err := s.flush(); err != nil {
		return err
	}

	choice, err := readU8(s)
	if err != nil {
		return err
	}
	chosen := SecurityType(choice)
	valid := false
	for _, t := range types {
		if t == chosen {
			valid = true
		}
	}
	if !valid {
		return s.rejectSecurity("unsupported security type")
	}
	return s.runAuth(chosen)
}

func (s *Session) rejectSecurity(reason string) error {
	if err := writeU32(s, 1); err != nil {
		return err
	}
	if s.protocolVersion == "3.8" {
		if err := writeU32(s, uint32(len(reason))); err != nil {
			return err
		}
		if _, err := s.Write([]byte(reason)); err != nil {
			return err
		}
	}
	s.flush()
	return fmt.Errorf("security negotiation failed: %s", reason)
}

func (s *Session) runAuth(t SecurityType) error {
	if t == SecurityTypeVNCAuth {
		challenge, err := newChallenge()
		if err != nil {
			return err
		}
		if _, err := s.Write(challenge); err != nil {
			return err
		}
		if err := s.flush(); err != nil {
			return err
		}
		response := make([]byte, challengeSize)
		if err := readFull(s, response); err != nil {
			return err
		}
		ok, err := verifyVNCAuth(s.password, challenge, response)
		if err != nil {
			return err
		}
		if !ok {
			return s.rejectSecurity("authentication failed")
		}
	}
	// SecurityResult=0 for every successful path, including "None" on
	// every protocol version — some 3.3 clients require it even though
	// RFC 6143 doesn't strictly mandate it there.
	if err := writeU32(s, 0); err != nil {
		return err
	}
	return s.flush()
}

func (s *Session) readClientInit() error {
	_, err := readU8(s) // shared-flag, ignored
	return err
}

func (s *Session) sendServerInit() error {
	width, height := s.server.fb.Dimensions()
	if err := writeU16(s, width); err != nil {
		return err
	}
	if err := writeU16(s, height); err != nil {
		return err
	}
	if err := writePixelFormat(s, s.currentPixelFormat()); err != nil {
		return err
	}
	name := s.server.name
	if err := writeU32(s, uint32(len(name))); err != nil {
		return err
	}
	if _, err := s.Write([]byte(name)); err != nil {
		return err
	}
	s.desktopName = name
	return s.flush()
}

// --- Message loop ---

func (s *Session) messageLoop() error {
	for {
		msgType, err := readU8(s)
		if err != nil {
			return err
		}
		switch ClientMessageType(msgType) {
		case MsgSetPixelFormat:
			msg, err := readSetPixelFormat(s)
			if err != nil {
				return err
			}
			s.setPixelFormat(msg.Format)
		case MsgSetEncodings:
			msg, err := readSetEncodings(s)
			if err != nil {
				return err
			}
			s.setEncodings(msg.Encodings)
		case MsgFramebufferUpdateRequest:
			req, err := readUpdateRequest(s)
			if err != nil {
				return err
			}
			if err := s.handleUpdateRequest(req); err != nil {
				return err
			}
		case MsgKeyEvent:
			msg, err := readKeyEvent(s)
			if err != nil {
				return err
			}
			s.sink.Key(msg.Down, msg.KeySym)
		case MsgPointerEvent:
			msg, err := readPointerEvent(s)
			if err != nil {
				return err
			}
			s.sink.Pointer(msg.Buttons, msg.X, msg.Y)
		case MsgClientCutText:
			if _, err := readClientCutText(s); err != nil {
				return err
			}
		case MsgSetDesktopSize:
			msg, err := readSetDesktopSize(s)
			if err != nil {
				return err
			}
			if err := s.rejectDesktopResize(msg); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown client message type %d", msgType)
		}
	}
}

func (s *Session) currentPixelFormat() PixelFormat {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.pixelFormat
}

func (s *Session) setPixelFormat(pf PixelFormat) {
	s.capMu.Lock()
	s.pixelFormat = pf
	s.capMu.Unlock()
}

func (s *Session) setEncodings(encs []EncodingType) {
	s.capMu.Lock()
	s.encodings = make(map[EncodingType]bool, len(encs))
	for _, e := range encs {
		s.encodings[e] = true
	}
	s.extDesktopSize = s.encodings[EncodingExtendedDesktopSize]
	s.capMu.Unlock()
}

func (s *Session) supports(e EncodingType) bool {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.encodings[e]
}

// wantsExtDesktopSize reports whether the client advertised the
// ExtendedDesktopSize pseudo-encoding. Safe to call from the server's
// broadcast goroutine: extDesktopSize is written under capMu in
// setEncodings, which runs on the session's own message-loop goroutine.
func (s *Session) wantsExtDesktopSize() bool {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.extDesktopSize
}

// preferredEncoder implements the encoding-selection contract from
// §4.5: Hextile if advertised, otherwise Raw. RRE and CopyRect are
// never auto-selected — see DESIGN.md's resolution of the source's
// open question about RRE capability flags.
func (s *Session) preferredEncoder() Encoder {
	if s.supports(EncodingHextile) {
		return HextileEncoder{}
	}
	return RawEncoder{}
}

// handleUpdateRequest is the client-driven half of the RFB pull model:
// a request is serviced immediately if the framebuffer already has
// something new for this session, otherwise it is remembered until
// Server.BroadcastUpdate next finds this session dirty. This is the
// resolution of the tension between §4.6's "enqueue one update write
// per broadcast" and §9's "no buffering for slow clients" — the
// session never holds more than the single most recent request.
func (s *Session) handleUpdateRequest(req UpdateRequest) error {
	sent, err := s.tryService(req)
	if err != nil {
		return err
	}
	if sent {
		s.pendingMu.Lock()
		s.pendingReq = nil
		s.pendingMu.Unlock()
		return nil
	}
	s.pendingMu.Lock()
	r := req
	s.pendingReq = &r
	s.pendingMu.Unlock()
	return nil
}

// serviceIfPending re-evaluates a previously stashed request against
// the current framebuffer. Called by Server.BroadcastUpdate after
// every frame change; a no-op if the session has nothing outstanding.
func (s *Session) serviceIfPending() error {
	s.pendingMu.Lock()
	req := s.pendingReq
	s.pendingMu.Unlock()
	if req == nil {
		return nil
	}
	sent, err := s.tryService(*req)
	if err != nil {
		return err
	}
	if sent {
		s.pendingMu.Lock()
		s.pendingReq = nil
		s.pendingMu.Unlock()
	}
	return nil
}

// tryService implements §4.5's five-step update algorithm. It reports
// whether a FramebufferUpdate was actually written; false with a nil
// error means the region was empty (nothing changed since this
// session's last snapshot, or the change fell outside the requested
// rectangle) and the request should be remembered as pending.
func (s *Session) tryService(req UpdateRequest) (bool, error) {
	pix, width, height := s.server.fb.Snapshot()

	if !req.Incremental {
		s.tracker.ForceFullUpdate()
	}
	region := s.tracker.Update(pix, width, height)
	if region.Empty() {
		return false, nil
	}

	region = region.ClampTo(width, height)
	if req.Incremental {
		region = region.Intersect(req.Rect)
	}
	if region.Empty() {
		return false, nil
	}

	enc := s.preferredEncoder()
	pf := s.currentPixelFormat()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := writeFramebufferUpdateHeader(s); err != nil {
		return false, err
	}
	if err := writeRectHeader(s, region, enc.Type()); err != nil {
		return false, err
	}
	if err := enc.Encode(s, pix, width, height, region, pf); err != nil {
		return false, err
	}
	s.touchLastUpdate()
	return true, s.flush()
}

// sendCopyRect sends an explicit CopyRect update: the caller supplies
// the source coordinates because this implementation never
// auto-detects motion (§4.5).
func (s *Session) sendCopyRect(dst Rect, srcX, srcY uint16) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeFramebufferUpdateHeader(s); err != nil {
		return err
	}
	if err := writeRectHeader(s, dst, EncodingCopyRect); err != nil {
		return err
	}
	enc := CopyRectEncoder{SrcX: srcX, SrcY: srcY}
	if err := enc.Encode(s, nil, 0, 0, dst, PixelFormat{}); err != nil {
		return err
	}
	return s.flush()
}

// rejectDesktopResize never honors a client-requested resize. If the
// client advertised ExtendedDesktopSize it gets a non-zero status
// rectangle telling it the request was refused; otherwise the request
// is silently ignored, per §4.5's SetDesktopSize row.
func (s *Session) rejectDesktopResize(SetDesktopSizeMsg) error {
	if !s.wantsExtDesktopSize() {
		return nil
	}
	width, height := s.server.fb.Dimensions()
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	const statusResizeProhibited = 1
	if err := writeExtendedDesktopSize(s, statusResizeProhibited, width, height); err != nil {
		return err
	}
	return s.flush()
}

// sendExtendedDesktopSize notifies the client of a server-initiated
// resize. Called by Server.Resize for every session that advertised
// the capability.
func (s *Session) sendExtendedDesktopSize(width, height uint16) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	const statusServerInitiated = 0
	if err := writeExtendedDesktopSize(s, statusServerInitiated, width, height); err != nil {
		return err
	}
	return s.flush()
}
