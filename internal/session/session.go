package session

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"cwc/internal/app"
	"cwc/internal/cryptography/wire"
	"cwc/internal/protocol"
	"cwc/internal/settings"
)

// Deps collects the external collaborators a Session needs, grounded on
// the teacher's convention of constructor-injected single-method
// interfaces rather than a monolithic dependency struct with concrete
// types.
type Deps struct {
	Dialer   app.Dialer
	Logger   app.Logger
	Notifier app.StatusNotifier
	Viewers  app.ViewerActivity

	// NewTimeoutReader wraps a freshly dialed connection as a
	// TimeoutReader; tests substitute this to avoid real sockets.
	NewTimeoutReader func(net.Conn) app.TimeoutReader
}

// Session runs one configured card server's connection lifecycle:
// CONNECTING -> HANDSHAKE -> RUNNING -> BACKOFF, looping until Destroy is
// called or its context is cancelled.
type Session struct {
	deps Deps

	mu          sync.Mutex
	cfg         Config
	state       State
	enabled     bool
	reconfigure bool
	destroying  bool
	wake        chan struct{}

	conn   net.Conn
	reader app.TimeoutReader
	codec  *wire.Codec
	key    [16]byte
	seq    protocol.SequenceCounter

	connected bool
	caid      uint16
	ua        [8]byte
	providers []protocol.Provider

	writer *writerTask

	onECMReply func(seq uint16, body []byte)

	attempt int
}

// New builds a Session for cfg, initially disabled. Callers call Enable
// to start it running and Run (typically in its own goroutine) to drive
// the state machine.
func New(cfg Config, deps Deps) *Session {
	if deps.NewTimeoutReader == nil {
		panic("session: Deps.NewTimeoutReader is required")
	}
	return &Session{
		deps:  deps,
		cfg:   cfg,
		state: StateDisabled,
		wake:  make(chan struct{}),
	}
}

// Enable marks the session enabled, allowing it to leave DISABLED.
func (s *Session) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	s.interrupt()
}

// Disable marks the session disabled; the running loop notices on its
// next must-break check and returns to DISABLED.
func (s *Session) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	s.interruptConn()
	s.interrupt()
}

// Reconfigure replaces the session's configuration and requests the
// current connection (if any) be torn down and re-established under the
// new configuration, matching §4.5's update semantics.
func (s *Session) Reconfigure(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.reconfigure = true
	s.mu.Unlock()
	s.interruptConn()
	s.interrupt()
}

// Destroy requests the session loop exit permanently once its current
// state settles.
func (s *Session) Destroy() {
	s.mu.Lock()
	s.destroying = true
	s.mu.Unlock()
	s.interruptConn()
	s.interrupt()
}

// interrupt wakes a goroutine blocked in backoff or the disabled wait.
func (s *Session) interrupt() {
	s.mu.Lock()
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
}

// interruptConn closes the live connection, if any, unblocking a reader
// goroutine mid-read the way shutdown(fd, RDWR) does in the source
// protocol; Go's net.Conn has no half-close equivalent, so Close is used
// for both directions per the design note in §9.
func (s *Session) interruptConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session currently has an authenticated
// connection (the card-data handshake completed).
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// CAID returns the card's conditional-access system id, or 0 if the
// handshake has not yet completed.
func (s *Session) CAID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caid
}

// EMMEnabled reports whether this server forwards EMM sections, per its
// current configuration.
func (s *Session) EMMEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.EMMEnabled
}

// Providers returns a copy of the card's provider list.
func (s *Session) Providers() []protocol.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

func (s *Session) mustBreak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroying || !s.enabled || s.reconfigure
}

func (s *Session) hostLog(phase, format string, v ...any) {
	if s.deps.Logger == nil {
		return
	}
	s.deps.Logger.Printf("cwc: host=%s phase=%s "+format, append([]any{s.cfg.Hostname, phase}, v...)...)
}

// Run drives the session's state machine until ctx is cancelled or
// Destroy is called, and returns nil in both cases; dial and handshake
// failures are logged and retried through backoff, never returned.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.mu.Lock()
		destroying := s.destroying
		enabled := s.enabled
		s.mu.Unlock()

		if destroying {
			s.setState(StateDestroying)
			return nil
		}

		if !enabled {
			s.setState(StateDisabled)
			if !s.waitForWake(ctx) {
				return nil
			}
			continue
		}

		s.mu.Lock()
		s.reconfigure = false
		s.mu.Unlock()

		if err := s.connectAndHandshake(ctx); err != nil {
			s.hostLog("connect", "%v", err)
			s.setState(StateBackoff)
			if !s.backoff(ctx) {
				return nil
			}
			continue
		}

		s.attempt = 0
		s.runLoop(ctx)
		s.setState(StateBackoff)
		if !s.backoff(ctx) {
			return nil
		}
	}
}

func (s *Session) waitForWake(ctx context.Context) bool {
	s.mu.Lock()
	wake := s.wake
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return true
	}
}

func (s *Session) connectAndHandshake(ctx context.Context) error {
	s.setState(StateConnecting)
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	conn, err := s.deps.Dialer.DialTimeout(ctx, cfg.Hostname, cfg.Port, settings.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("session: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = s.deps.NewTimeoutReader(conn)
	s.codec = wire.NewCodec()
	s.mu.Unlock()

	s.setState(StateHandshake)
	if err := s.handshake(cfg); err != nil {
		_ = conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify("cwcStatus", map[string]any{"id": cfg.ID, "connected": 1})
	}
	return nil
}

// runLoop is the RUNNING state: pair the keep-alive writer with the
// blocking read loop via errgroup, exactly as the teacher's
// client_routing.Router.RouteTraffic pairs its TUN/transport goroutines.
func (s *Session) runLoop(ctx context.Context) {
	s.setState(StateRunning)

	s.mu.Lock()
	conn := s.conn
	cfgID := s.cfg.ID
	s.mu.Unlock()

	w := newWriterTask(conn, s.deps.Logger, func() ([]byte, uint16, error) {
		return s.encryptFrame([]byte{byte(protocol.OpKeepAlive), 0, 0}, 0)
	})
	s.mu.Lock()
	s.writer = w
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		w.run(egCtx)
		return nil
	})
	eg.Go(func() error {
		s.readLoop()
		cancel()
		return nil
	})
	_ = eg.Wait()

	_ = conn.Close()
	s.mu.Lock()
	s.conn = nil
	s.connected = false
	s.writer = nil
	s.mu.Unlock()

	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify("cwcStatus", map[string]any{"id": cfgID, "connected": 0})
	}
}

func (s *Session) readLoop() {
	for {
		if s.mustBreak() {
			return
		}

		decoded, err := s.readMessage(settings.RunningReadTimeout)
		if err != nil {
			s.hostLog("running", "%v", err)
			return
		}

		hdr, body, err := protocol.ParseHeader(decoded)
		if err != nil {
			s.hostLog("running", "bad header: %v", err)
			continue
		}

		s.dispatch(hdr, body)
	}
}

// dispatch handles a RUNNING-state message. ECM replies are passed to the
// handler set with SetECMReplyHandler (internal/controlplane installs a
// binding.Set's Dispatch, which matches them by seq to the owning binding);
// this package only recognizes the opcode class and otherwise discards,
// matching the source protocol's "default: EMM, ignore" fallthrough.
func (s *Session) dispatch(hdr protocol.Header, body []byte) {
	if s.onECMReply != nil && (hdr.Opcode == protocol.OpECMResolved || hdr.Opcode == protocol.OpECMForbidden) {
		s.onECMReply(hdr.Seq, body)
	}
}

// SetECMReplyHandler sets the function ECM replies are routed to;
// internal/controlplane sets it to the server's binding.Set Dispatch, which
// delivers each reply to the binding awaiting that sequence number.
func (s *Session) SetECMReplyHandler(fn func(seq uint16, body []byte)) {
	s.mu.Lock()
	s.onECMReply = fn
	s.mu.Unlock()
}

// encryptFrame builds and encrypts one frame under the session's current
// key, returning the final wire bytes and the sequence number stamped
// into it, without transmitting anything.
func (s *Session) encryptFrame(payload []byte, sid uint16) ([]byte, uint16, error) {
	builder := &protocol.Builder{Seq: &s.seq}
	buf := make([]byte, 0, settings.MaxFrameSize)
	frame, seqNo, err := builder.Build(buf, payload, sid)
	if err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	key := s.key
	codec := s.codec
	s.mu.Unlock()

	if codec == nil {
		return nil, 0, fmt.Errorf("session: not connected")
	}

	frameLen, err := codec.Encrypt(frame, len(frame), key)
	if err != nil {
		return nil, 0, err
	}
	protocol.StampLength(frame, frameLen)
	return frame[:frameLen], seqNo, nil
}

// SendFrame builds, encrypts, and transmits one frame, either directly
// (pre-RUNNING, when no writer goroutine exists) or via the writer queue.
// It returns the sequence number stamped into the frame.
func (s *Session) SendFrame(payload []byte, sid uint16) (uint16, error) {
	out, seqNo, err := s.encryptFrame(payload, sid)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	w := s.writer
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return 0, fmt.Errorf("session: not connected")
	}

	if w != nil {
		w.enqueue(out)
		return seqNo, nil
	}

	if _, err := conn.Write(out); err != nil {
		return 0, fmt.Errorf("session: write: %w", err)
	}
	return seqNo, nil
}
