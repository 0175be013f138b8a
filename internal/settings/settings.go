// Package settings collects the timing and sizing constants used across the
// session, binding, and registry packages, mirroring the teacher's
// infrastructure/settings convention of small typed constant files instead
// of scattered magic numbers.
package settings

import "time"

const (
	// ConnectTimeout bounds the initial TCP dial (CONNECTING state).
	ConnectTimeout = 10 * time.Second

	// HandshakeReadTimeout bounds each blocking read during HANDSHAKE
	// (login key, LOGIN_ACK, CARD_DATA).
	HandshakeReadTimeout = 5 * time.Second

	// KeepAliveInterval is how long the writer waits idle before emitting
	// a KEEPALIVE frame.
	KeepAliveInterval = 30 * time.Second

	// RunningReadTimeout is the RUNNING-state read deadline: double the
	// keep-alive interval, tolerating exactly one missed keep-alive.
	RunningReadTimeout = 2 * KeepAliveInterval

	// BackoffActive and BackoffIdle are the waits of the reconnect-backoff
	// tiers from §4.3 BACKOFF; the third tier (first failure with an active
	// viewer) retries at once and needs no constant.
	BackoffActive = 3 * time.Second
	BackoffIdle   = 60 * time.Second

	// MaxFrameSize is the largest encrypted frame the wire protocol
	// allows (§4.1 message encryption step 1).
	MaxFrameSize = 240

	// FrameHeaderSize is the 12-byte header scratch prefixing every
	// logical frame (len, seq, sid, 6 zero bytes).
	FrameHeaderSize = 12

	// ConfiguredKeySize is the length of the server's configured DES key
	// before spreading.
	ConfiguredKeySize = 14

	// SessionKeySize is the length of a spread DES session key.
	SessionKeySize = 16

	// TSPacketSize is the fixed size of one MPEG transport-stream packet.
	TSPacketSize = 188

	// MaxProviders bounds the provider descriptors a server may report.
	MaxProviders = 256

	// MinCardDataPayload is the minimum payload length accepted for a
	// CARD_DATA reply (§4.2 card-data reply parsing).
	MinCardDataPayload = 14

	// ECMReplyMinLength is the minimum ECM reply payload length that
	// carries usable control words; shorter replies mean access denied.
	ECMReplyMinLength = 19

	// ConaxCAID is the CAID EMM fan-out is restricted to (§4.4).
	ConaxCAID uint16 = 0x0b00

	// ConaxEMMOpcode is the first payload byte identifying a
	// vendor-filtered Conax EMM section.
	ConaxEMMOpcode byte = 0x82
)
