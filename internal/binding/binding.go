package binding

import (
	"bytes"
	"sync"

	"cwc/internal/app"
	"cwc/internal/protocol"
	"cwc/internal/settings"
)

// sessionHandle is the slice of *session.Session a binding needs: sending a
// frame and reading the owning server's current handshake state. Kept as a
// tiny interface, one method per concern, matching the rest of the module's
// external-collaborator convention, so tests can fake a session cheaply.
type sessionHandle interface {
	SendFrame(payload []byte, sid uint16) (uint16, error)
	CAID() uint16
	Providers() []protocol.Provider
	Connected() bool
}

// PacketOutcome reports what on_packet did with one transport-stream
// packet, for callers (and tests) that want to distinguish drop/buffer/flush
// without inspecting internal state.
type PacketOutcome int

const (
	PacketBuffered PacketOutcome = iota
	PacketDroppedForbidden
	PacketDroppedNotReady
	PacketFlushed
)

// Binding is the descrambler state for one (server, service) pair: it owns
// its cluster buffer and key context exclusively, guarded by mu, matching
// the per-service stream mutex in the concurrency design.
type Binding struct {
	session    sessionHandle
	service    app.ServiceID
	sid        uint16
	providerID uint32
	emmEnabled bool
	logger     app.Logger

	keyCtx     app.KeyContext
	demux      app.Demux
	clusterCap int

	mu              sync.Mutex
	lastECM         []byte
	pendingSeq      uint16
	ecmReplyPending bool
	keyState        KeyState
	forbiddenLogged bool

	cluster []byte
	fill    int

	closed bool
}

// Config collects a binding's fixed identity and collaborators.
type Config struct {
	Session    sessionHandle
	Service    app.ServiceID
	SID        uint16
	ProviderID uint32
	EMMEnabled bool
	KeyCtx     app.KeyContext
	Demux      app.Demux
	ClusterCap int
	Logger     app.Logger
}

// New builds a Binding in the UNKNOWN key state with an empty cluster
// buffer sized to cfg.ClusterCap packets.
func New(cfg Config) *Binding {
	return &Binding{
		session:    cfg.Session,
		service:    cfg.Service,
		sid:        cfg.SID,
		providerID: cfg.ProviderID,
		emmEnabled: cfg.EMMEnabled,
		logger:     cfg.Logger,
		keyCtx:     cfg.KeyCtx,
		demux:      cfg.Demux,
		clusterCap: cfg.ClusterCap,
		cluster:    make([]byte, cfg.ClusterCap*settings.TSPacketSize),
	}
}

func (b *Binding) logf(format string, v ...any) {
	if b.logger != nil {
		b.logger.Printf(format, v...)
	}
}

// providerMatches reports whether providerID is unrestricted (0) or present
// in the server's advertised provider list.
func providerMatches(id uint32, providers []protocol.Provider) bool {
	if id == 0 {
		return true
	}
	for _, p := range providers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// OnCASection handles one CA section delivered by the demux for this
// binding's service: ECM sections (payload[0] in {0x80, 0x81}) are
// deduplicated and sent with an at-most-one-in-flight gate; any other
// section is forwarded only when EMM forwarding is enabled for the owning
// server (the tier-1, per-binding EMM path; global Conax fan-out lives in
// internal/emm).
func (b *Binding) OnCASection(caid uint16, section []byte) {
	if len(section) == 0 {
		return
	}
	if caid != b.session.CAID() {
		return
	}
	if !providerMatches(b.providerID, b.session.Providers()) {
		return
	}
	if section[0]&0xf0 != 0x80 {
		return
	}

	if section[0] == 0x80 || section[0] == 0x81 {
		b.onECM(section)
		return
	}

	if b.emmEnabled {
		if _, err := b.session.SendFrame(section, b.sid); err != nil {
			b.logf("cwc: binding service=%s emm forward failed: %v", b.service, err)
		}
	}
}

func (b *Binding) onECM(section []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ecmReplyPending {
		return
	}
	if bytes.Equal(b.lastECM, section) {
		return
	}
	if !b.session.Connected() {
		b.keyState = StateUnknown
		return
	}

	ecm := make([]byte, len(section))
	copy(ecm, section)

	seq, err := b.session.SendFrame(section, b.sid)
	if err != nil {
		b.logf("cwc: binding service=%s ecm send failed: %v", b.service, err)
		return
	}
	b.lastECM = ecm
	b.pendingSeq = seq
	b.ecmReplyPending = true
}

// HandleECMReply applies an ECM reply matched to this binding by sequence
// number. Callers (a Set) are responsible for the seq/ecm_reply_pending
// match; this method assumes the match already holds.
func (b *Binding) HandleECMReply(body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ecmReplyPending = false

	if len(body) < settings.ECMReplyMinLength {
		b.keyState = StateForbidden
		if !b.forbiddenLogged {
			b.logf("cwc: binding service=%s access denied (short ecm reply)", b.service)
			b.forbiddenLogged = true
		}
		return
	}
	if b.keyState == StateForbidden {
		return
	}

	cw, err := protocol.ParseECMReply(body)
	if err != nil {
		b.logf("cwc: binding service=%s bad ecm reply: %v", b.service, err)
		return
	}
	if cw.HasEven {
		b.keyCtx.SetEvenControlWord(cw.Even)
	}
	if cw.HasOdd {
		b.keyCtx.SetOddControlWord(cw.Odd)
	}
	b.keyState = StateResolved
}

// PendingSeq and ReplyPending let a Set match an inbound reply to this
// binding without exposing the mutex.
func (b *Binding) PendingSeq() (seq uint16, pending bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingSeq, b.ecmReplyPending
}

// KeyState reports the binding's current key state.
func (b *Binding) KeyState() KeyState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keyState
}

// OnPacket feeds one decrypted-or-not 188-byte transport-stream packet
// through the cluster buffer, draining it through the key context once full.
func (b *Binding) OnPacket(packet [188]byte) PacketOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.keyState {
	case StateForbidden:
		return PacketDroppedForbidden
	case StateResolved:
		// fall through to buffering below
	default:
		return PacketDroppedNotReady
	}

	copy(b.cluster[b.fill*settings.TSPacketSize:], packet[:])
	b.fill++

	if b.fill < b.clusterCap {
		return PacketBuffered
	}

	r, err := b.keyCtx.DecryptPackets(b.cluster[:b.fill*settings.TSPacketSize])
	if err != nil {
		b.logf("cwc: binding service=%s descramble failed: %v", b.service, err)
		r = 0
	}

	for i := 0; i < r; i++ {
		var pkt [settings.TSPacketSize]byte
		copy(pkt[:], b.cluster[i*settings.TSPacketSize:(i+1)*settings.TSPacketSize])
		b.demux.RecvPacket2(b.service, pkt)
	}

	remaining := b.clusterCap - r
	if remaining > 0 {
		copy(b.cluster, b.cluster[r*settings.TSPacketSize:b.clusterCap*settings.TSPacketSize])
	}
	b.fill = remaining

	return PacketFlushed
}

// Destroy frees the binding's key context. It takes the binding's own
// mutex (the per-service stream mutex), like the binding's other methods,
// so teardown never races a concurrent on_packet/on_ca_section call; a
// second call is a no-op.
func (b *Binding) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.keyCtx.Close()
}
