// Package emm implements the global, vendor-filtered EMM fan-out: a
// Conax entitlement-management section is broadcast to every connected
// server whose provider list claims the section's shared address. This is
// distinct from a descrambler binding's own per-service EMM forwarding
// (internal/binding.Binding.OnCASection's default branch), which only
// forwards sections already addressed to that binding's service; this
// package instead matches by card data the way cwc_emm matches against
// every server's provider table, independent of any particular service.
package emm

import (
	"bytes"

	"cwc/internal/protocol"
	"cwc/internal/settings"
)

// Target is the slice of a running server session the fan-out needs:
// whether it forwards EMMs, whether its writer is running (i.e. the
// session is connected), its card's CAID and provider list, and a way to
// send a frame. *session.Session satisfies this.
type Target interface {
	EMMEnabled() bool
	Connected() bool
	CAID() uint16
	Providers() []protocol.Provider
	SendFrame(payload []byte, sid uint16) (uint16, error)
}

// sharedAddressOffset and sharedAddressLen locate the shared-address bytes
// within a Conax EMM section, matching cwc_emm's
// memcmp(&data[3], &cwc->cwc_providers[i].sa[1], 7): a 7-byte compare of
// section[3..10) against the provider's shared address starting at its
// byte 1, not byte 0.
const (
	sharedAddressOffset       = 3
	sharedAddressLen          = 7
	providerSharedAddressSkip = 1
)

// FanOut forwards section to every target that is connected, EMM-enabled,
// reports the Conax CAID, and advertises a provider whose shared address
// matches the section's. It returns how many targets the section was sent
// to. Sections that are not Conax-vendor EMMs (first byte != 0x82) or are
// too short to carry a shared address are ignored entirely.
func FanOut(targets []Target, section []byte) int {
	if len(section) == 0 || section[0] != settings.ConaxEMMOpcode {
		return 0
	}
	if len(section) < sharedAddressOffset+sharedAddressLen {
		return 0
	}
	sharedAddress := section[sharedAddressOffset : sharedAddressOffset+sharedAddressLen]

	sent := 0
	for _, target := range targets {
		if !target.EMMEnabled() || !target.Connected() {
			continue
		}
		if target.CAID() != settings.ConaxCAID {
			continue
		}
		if !hasMatchingProvider(target.Providers(), sharedAddress) {
			continue
		}
		if _, err := target.SendFrame(section, 0); err == nil {
			sent++
		}
	}
	return sent
}

func hasMatchingProvider(providers []protocol.Provider, sharedAddress []byte) bool {
	for _, p := range providers {
		if bytes.Equal(p.SharedAddress[providerSharedAddressSkip:providerSharedAddressSkip+sharedAddressLen], sharedAddress) {
			return true
		}
	}
	return false
}
