package session

import (
	"fmt"
	"time"

	"cwc/internal/settings"
)

// bodyReadTimeout bounds the second read of a two-part message (header,
// then body); the source protocol waits just one second here since the
// body is expected to follow the header immediately.
const bodyReadTimeout = time.Second

// readMessage reads one length-prefixed, encrypted frame using
// headerTimeout for the 2-byte length and bodyReadTimeout for the rest,
// decrypts it with the session's current key, and returns the decrypted
// bytes (header included) with padding/checksum still attached — callers
// use protocol.ParseHeader to get at the opcode and body.
func (s *Session) readMessage(headerTimeout time.Duration) ([]byte, error) {
	header := make([]byte, 2)
	if _, err := s.reader.ReadTimeout(header, headerTimeout); err != nil {
		return nil, fmt.Errorf("session: read header: %w", err)
	}
	msglen := int(header[0])<<8 | int(header[1])
	if msglen >= settings.MaxFrameSize {
		return nil, fmt.Errorf("session: invalid message size: %d", msglen)
	}

	buf := make([]byte, msglen+2)
	copy(buf[:2], header)
	if _, err := s.reader.ReadTimeout(buf[2:], bodyReadTimeout); err != nil {
		return nil, fmt.Errorf("session: read body: %w", err)
	}

	s.mu.Lock()
	key := s.key
	codec := s.codec
	s.mu.Unlock()

	decodedLen, err := codec.Decrypt(buf, msglen+2, key)
	if err != nil {
		return nil, fmt.Errorf("session: decrypt: %w", err)
	}
	if decodedLen < 15 {
		return nil, fmt.Errorf("session: decrypted frame too short (%d bytes)", decodedLen)
	}
	return buf[:decodedLen], nil
}
