package session

import (
	"fmt"

	"cwc/internal/cryptography/wire"
	"cwc/internal/protocol"
	"cwc/internal/settings"
)

// handshake performs the HANDSHAKE state in full: login-key receive,
// LOGIN, LOGIN_ACK wait, session-key derivation, CARD_DATA_REQ, CARD_DATA
// wait and decode. Any failure aborts the connection; the caller closes
// conn and transitions to BACKOFF.
func (s *Session) handshake(cfg Config) error {
	var preLogin [settings.ConfiguredKeySize]byte
	if _, err := s.reader.ReadTimeout(preLogin[:], settings.HandshakeReadTimeout); err != nil {
		return fmt.Errorf("session: read login key: %w", err)
	}

	loginKey := wire.LoginKey(cfg.DESKey, preLogin)
	s.mu.Lock()
	s.key = loginKey
	s.mu.Unlock()

	if err := s.sendLogin(cfg); err != nil {
		return err
	}

	decoded, err := s.readMessage(settings.HandshakeReadTimeout)
	if err != nil {
		return fmt.Errorf("session: login ack: %w", err)
	}
	hdr, _, err := protocol.ParseHeader(decoded)
	if err != nil {
		return fmt.Errorf("session: login ack: %w", err)
	}
	if hdr.Opcode != protocol.OpLoginAck {
		return fmt.Errorf("session: login rejected (opcode %v)", hdr.Opcode)
	}

	sessionKey := wire.SessionKey(cfg.DESKey, cfg.PasswordHashed)
	s.mu.Lock()
	s.key = sessionKey
	s.mu.Unlock()

	if _, err := s.SendFrame([]byte{byte(protocol.OpCardDataReq), 0, 0}, 0); err != nil {
		return fmt.Errorf("session: send card data request: %w", err)
	}

	decoded, err = s.readMessage(settings.HandshakeReadTimeout)
	if err != nil {
		return fmt.Errorf("session: card data: %w", err)
	}
	hdr, body, err := protocol.ParseHeader(decoded)
	if err != nil {
		return fmt.Errorf("session: card data: %w", err)
	}
	if hdr.Opcode != protocol.OpCardData {
		return fmt.Errorf("session: unexpected opcode %v waiting for card data", hdr.Opcode)
	}

	cd, err := protocol.ParseCardDataReply(body)
	if err != nil {
		return fmt.Errorf("session: card data: %w", err)
	}

	s.mu.Lock()
	s.caid = cd.CAID
	s.ua = cd.UA
	s.providers = cd.Providers
	s.mu.Unlock()

	s.hostLog("handshake", "connected as user 0x%02x to caid 0x%04x with %d providers",
		cd.UserID, cd.CAID, len(cd.Providers))
	return nil
}

func (s *Session) sendLogin(cfg Config) error {
	ul := len(cfg.Username) + 1
	pl := len(cfg.PasswordHashed) + 1
	payload := make([]byte, 3+ul+pl)
	payload[0] = byte(protocol.OpLogin)
	payload[1] = 0
	payload[2] = byte(ul + pl)
	copy(payload[3:], cfg.Username)
	copy(payload[3+ul:], cfg.PasswordHashed)

	if _, err := s.SendFrame(payload, 0); err != nil {
		return fmt.Errorf("session: send login: %w", err)
	}
	return nil
}
