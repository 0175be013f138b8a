package protocol

import (
	"errors"
	"fmt"
	"sync/atomic"

	"cwc/internal/settings"
)

// ErrPayloadTooLarge is returned by Build when a message would not fit the
// wire protocol's maximum frame size once the header is attached.
var ErrPayloadTooLarge = errors.New("protocol: message payload too large")

// ErrFrameTooShort is returned by ParseHeader when a decrypted frame is
// shorter than the fixed 12-byte header.
var ErrFrameTooShort = errors.New("protocol: frame shorter than header")

// SequenceCounter hands out the 16-bit sequence numbers stamped into every
// outgoing frame's header, matching cwc_send_msg's atomic_add(&cwc_seq, 1).
// The zero value is ready to use.
type SequenceCounter struct {
	next uint32
}

// Next returns the next sequence number, wrapping at 16 bits.
func (c *SequenceCounter) Next() uint16 {
	v := atomic.AddUint32(&c.next, 1)
	return uint16(v)
}

// Builder assembles outgoing frames: a 12-byte zeroed header (length filled
// in later by the caller once the wire codec has encrypted the frame, seq
// and sid filled in now) followed by the message payload.
type Builder struct {
	Seq *SequenceCounter
}

// Build writes the header and payload into buf, returning the used prefix
// and the sequence number stamped into it. buf must have capacity for
// settings.FrameHeaderSize+len(payload) plus the codec's padding/checksum/
// IV overhead; callers allocate a settings.MaxFrameSize-capacity buffer.
func (b *Builder) Build(buf []byte, payload []byte, sid uint16) ([]byte, uint16, error) {
	total := settings.FrameHeaderSize + len(payload)
	if total > settings.MaxFrameSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, total)
	}
	if cap(buf) < total {
		return nil, 0, fmt.Errorf("%w: buffer capacity %d below %d", ErrPayloadTooLarge, cap(buf), total)
	}
	buf = buf[:total]
	for i := 0; i < settings.FrameHeaderSize; i++ {
		buf[i] = 0
	}

	seq := b.Seq.Next()
	buf[2] = byte(seq >> 8)
	buf[3] = byte(seq)
	buf[4] = byte(sid >> 8)
	buf[5] = byte(sid)

	copy(buf[settings.FrameHeaderSize:], payload)
	return buf, seq, nil
}

// StampLength writes the big-endian (frameLen-2) length prefix into buf[0:2]
// once the wire codec has encrypted the frame and its final length is
// known, matching cwc_send_msg's post-encrypt buf[0]/buf[1] assignment.
func StampLength(buf []byte, frameLen int) {
	l := frameLen - 2
	buf[0] = byte(l >> 8)
	buf[1] = byte(l)
}

// Header is the decoded fixed-size prefix of an incoming frame.
type Header struct {
	Seq    uint16
	SID    uint16
	Opcode Opcode
}

// ParseHeader decodes the 12-byte header and leading opcode byte from a
// decrypted frame (buf[0:2] is the wire length, already consumed by the
// caller's read loop; this expects buf to start at the length-prefixed
// frame's payload exactly as Decrypt leaves it).
func ParseHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < settings.FrameHeaderSize+1 {
		return Header{}, nil, ErrFrameTooShort
	}
	h := Header{
		Seq: uint16(buf[2])<<8 | uint16(buf[3]),
		SID: uint16(buf[4])<<8 | uint16(buf[5]),
	}
	body := buf[settings.FrameHeaderSize:]
	h.Opcode = Opcode(body[0])
	return h, body, nil
}
