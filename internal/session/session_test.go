package session_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"cwc/internal/app"
	"cwc/internal/cryptography/wire"
	"cwc/internal/network"
	"cwc/internal/protocol"
	"cwc/internal/session"
)

type pipeDialer struct{ conn net.Conn }

func (d pipeDialer) DialTimeout(_ context.Context, _ string, _ uint16, _ time.Duration) (net.Conn, error) {
	return d.conn, nil
}

// readFrame reads one length-prefixed frame off conn and decrypts it with
// key, returning the decoded bytes (header included).
func readFrame(t *testing.T, conn net.Conn, key [16]byte) []byte {
	t.Helper()
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	msglen := int(binary.BigEndian.Uint16(header))
	buf := make([]byte, msglen+2)
	copy(buf, header)
	if _, err := io.ReadFull(conn, buf[2:]); err != nil {
		t.Fatalf("read body: %v", err)
	}
	codec := wire.NewCodec()
	n, err := codec.Decrypt(buf, msglen+2, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return buf[:n]
}

func writeFrame(t *testing.T, conn net.Conn, key [16]byte, payload []byte) {
	t.Helper()
	builder := &protocol.Builder{Seq: &protocol.SequenceCounter{}}
	buf := make([]byte, 0, 240)
	frame, _, err := builder.Build(buf, payload, 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	codec := wire.NewCodec()
	n, err := codec.Encrypt(frame, len(frame), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	protocol.StampLength(frame, n)
	if _, err := conn.Write(frame[:n]); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandshakeHappyPath(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var desKey [14]byte
	for i := range desKey {
		desKey[i] = byte(i + 1)
	}
	cfg := session.Config{
		ID:             "srv1",
		Hostname:       "card.example",
		Port:           16000,
		Username:       "u",
		PasswordHashed: "Xy7dQvR2",
		DESKey:         desKey,
	}

	notify := &recordingNotifier{}
	deps := session.Deps{
		Dialer:           pipeDialer{conn: client},
		NewTimeoutReader: func(c net.Conn) app.TimeoutReader { return network.NewConnTimeoutReader(c) },
		Notifier:         notify,
	}
	sess := session.New(cfg, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sess.Enable()
		_ = sess.Run(ctx)
		close(done)
	}()

	var preLogin [14]byte
	for i := range preLogin {
		preLogin[i] = byte(0x10 + i)
	}
	if _, err := server.Write(preLogin[:]); err != nil {
		t.Fatalf("write prelogin: %v", err)
	}

	loginKey := wire.LoginKey(desKey, preLogin)
	loginMsg := readFrame(t, server, loginKey)
	hdr, body, err := protocol.ParseHeader(loginMsg)
	if err != nil {
		t.Fatalf("parse login header: %v", err)
	}
	if hdr.Opcode != protocol.OpLogin {
		t.Fatalf("opcode = %v, want OpLogin", hdr.Opcode)
	}
	if len(body) < 3 {
		t.Fatalf("login body too short: %v", body)
	}

	writeFrame(t, server, loginKey, []byte{byte(protocol.OpLoginAck), 0, 0})

	sessionKey := wire.SessionKey(desKey, cfg.PasswordHashed)
	reqMsg := readFrame(t, server, sessionKey)
	reqHdr, _, err := protocol.ParseHeader(reqMsg)
	if err != nil {
		t.Fatalf("parse card data req: %v", err)
	}
	if reqHdr.Opcode != protocol.OpCardDataReq {
		t.Fatalf("opcode = %v, want OpCardDataReq", reqHdr.Opcode)
	}

	cardData := buildCardDataPayload()
	writeFrame(t, server, sessionKey, cardData)

	deadline := time.After(time.Second)
	for {
		if sess.Connected() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session never reached connected state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if sess.CAID() != 0x0b00 {
		t.Fatalf("caid = %#x, want 0x0b00", sess.CAID())
	}
	if len(sess.Providers()) != 1 {
		t.Fatalf("providers = %d, want 1", len(sess.Providers()))
	}
	if len(notify.events) == 0 || notify.events[0] != "cwcStatus" {
		t.Fatalf("expected a cwcStatus notification, got %v", notify.events)
	}

	sess.Destroy()
	cancel()
	<-done
}

func buildCardDataPayload() []byte {
	plen := 12 + 1*11
	body := make([]byte, 15+11)
	body[0] = byte(protocol.OpCardData)
	body[1] = byte((plen >> 8) & 0x0f)
	body[2] = byte(plen)
	body[3] = 0x01
	body[4], body[5] = 0x0b, 0x00
	for i := 0; i < 8; i++ {
		body[6+i] = byte(0xa0 + i)
	}
	body[14] = 1
	rec := body[15:26]
	rec[0], rec[1], rec[2] = 0, 0xab, 0xcd
	for j := 0; j < 8; j++ {
		rec[3+j] = byte(0x30 + j)
	}
	return body
}

type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) Notify(event string, _ map[string]any) {
	r.events = append(r.events, event)
}
