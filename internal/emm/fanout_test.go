package emm_test

import (
	"errors"
	"testing"

	"cwc/internal/emm"
	"cwc/internal/protocol"
)

type fakeTarget struct {
	emmEnabled bool
	connected  bool
	caid       uint16
	providers  []protocol.Provider
	sendErr    error
	sent       [][]byte
}

func (f *fakeTarget) EMMEnabled() bool               { return f.emmEnabled }
func (f *fakeTarget) Connected() bool                { return f.connected }
func (f *fakeTarget) CAID() uint16                   { return f.caid }
func (f *fakeTarget) Providers() []protocol.Provider { return f.providers }
func (f *fakeTarget) SendFrame(payload []byte, _ uint16) (uint16, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return uint16(len(f.sent)), nil
}

// conaxSection builds an 11-byte Conax EMM section whose bytes [3:10]
// (7 bytes) carry sa, matching providerSA(sa)'s SharedAddress[1:8].
func conaxSection(sa [7]byte) []byte {
	section := make([]byte, 11)
	section[0] = 0x82
	copy(section[3:10], sa[:])
	return section
}

// providerSA places sa at SharedAddress[1:8], leaving byte 0 a dummy
// value, since cwc_emm compares against &sa[1], not &sa[0].
func providerSA(sa [7]byte) [8]byte {
	var full [8]byte
	full[0] = 0xff
	copy(full[1:8], sa[:])
	return full
}

func TestFanOutSendsOnlyToMatchingConnectedEMMEnabledTargets(t *testing.T) {
	sa := [7]byte{1, 2, 3, 4, 5, 6, 7}
	match := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}}
	wrongCAID := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0100, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}}
	disabled := &fakeTarget{emmEnabled: false, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}}
	disconnected := &fakeTarget{emmEnabled: true, connected: false, caid: 0x0b00, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}}
	noMatch := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 2, SharedAddress: [8]byte{9, 9, 9, 9, 9, 9, 9, 9}}}}

	targets := []emm.Target{match, wrongCAID, disabled, disconnected, noMatch}
	sent := emm.FanOut(targets, conaxSection(sa))

	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(match.sent) != 1 {
		t.Fatalf("expected the matching target to receive the section")
	}
	for _, other := range []*fakeTarget{wrongCAID, disabled, disconnected, noMatch} {
		if len(other.sent) != 0 {
			t.Fatalf("expected non-matching target to receive nothing, got %d", len(other.sent))
		}
	}
}

func TestFanOutIgnoresNonConaxOpcode(t *testing.T) {
	sa := [7]byte{1, 2, 3, 4, 5, 6, 7}
	target := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}}
	section := conaxSection(sa)
	section[0] = 0x83

	if sent := emm.FanOut([]emm.Target{target}, section); sent != 0 {
		t.Fatalf("sent = %d, want 0 for non-Conax opcode", sent)
	}
}

func TestFanOutIgnoresTooShortSection(t *testing.T) {
	target := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00}
	if sent := emm.FanOut([]emm.Target{target}, []byte{0x82, 0, 0}); sent != 0 {
		t.Fatalf("sent = %d, want 0 for too-short section", sent)
	}
}

func TestFanOutBroadcastsToMultipleMatchingServers(t *testing.T) {
	sa := [7]byte{1, 2, 3, 4, 5, 6, 7}
	a := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}}
	b := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 2, SharedAddress: providerSA(sa)}}}

	sent := emm.FanOut([]emm.Target{a, b}, conaxSection(sa))
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
}

var errSend = errors.New("send failed")

func TestFanOutDoesNotCountFailedSends(t *testing.T) {
	sa := [7]byte{1, 2, 3, 4, 5, 6, 7}
	target := &fakeTarget{emmEnabled: true, connected: true, caid: 0x0b00, providers: []protocol.Provider{{ID: 1, SharedAddress: providerSA(sa)}}, sendErr: errSend}

	if sent := emm.FanOut([]emm.Target{target}, conaxSection(sa)); sent != 0 {
		t.Fatalf("sent = %d, want 0 when SendFrame fails", sent)
	}
}
