package app

// Demux is the transport-stream demultiplexer this module feeds decrypted
// packets back into. ServiceID identifies the service a binding descrambles
// for; it is opaque to this module beyond equality comparison.
type ServiceID string

type Demux interface {
	// RecvPacket2 re-delivers one decrypted 188-byte packet to the demux
	// for the given service, mirroring ts_recv_packet2 in the source
	// protocol.
	RecvPacket2(service ServiceID, packet [188]byte)
}

// ElementaryStream describes one CA-relevant stream of a service, as
// reported by the demux.
type ElementaryStream struct {
	CAID       uint16
	ProviderID uint32 // 24-bit value, top byte always zero
}
