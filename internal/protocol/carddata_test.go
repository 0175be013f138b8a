package protocol_test

import (
	"testing"

	"cwc/internal/protocol"
)

func buildCardDataBody(nprov int) []byte {
	plen := 12 + nprov*11
	body := make([]byte, 15+nprov*11)
	body[0] = byte(protocol.OpCardData)
	body[1] = byte((plen >> 8) & 0x0f)
	body[2] = byte(plen)
	body[3] = 0x01 // user id
	body[4], body[5] = 0x0b, 0x00
	for i := 0; i < 8; i++ {
		body[6+i] = byte(0xa0 + i)
	}
	body[14] = byte(nprov)
	for i := 0; i < nprov; i++ {
		rec := body[15+i*11 : 15+i*11+11]
		rec[0], rec[1], rec[2] = 0x00, 0x00, byte(i+1)
		for j := 0; j < 8; j++ {
			rec[3+j] = byte(0x10*i + j)
		}
	}
	return body
}

func TestParseCardDataReply(t *testing.T) {
	body := buildCardDataBody(2)

	cd, err := protocol.ParseCardDataReply(body)
	if err != nil {
		t.Fatalf("ParseCardDataReply: %v", err)
	}
	if cd.CAID != 0x0b00 {
		t.Fatalf("caid = %#x, want 0x0b00", cd.CAID)
	}
	if cd.UA[0] != 0xa0 {
		t.Fatalf("ua[0] = %#x, want 0xa0", cd.UA[0])
	}
	if len(cd.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(cd.Providers))
	}
	if cd.Providers[0].ID != 1 {
		t.Fatalf("provider[0].ID = %d, want 1", cd.Providers[0].ID)
	}
	if cd.Providers[1].SharedAddress[0] != 0x10 {
		t.Fatalf("provider[1].SharedAddress[0] = %#x, want 0x10", cd.Providers[1].SharedAddress[0])
	}
}

func TestParseCardDataReplyRejectsShortBody(t *testing.T) {
	if _, err := protocol.ParseCardDataReply([]byte{1, 2}); err == nil {
		t.Fatalf("expected error for body under 3 bytes, got nil")
	}
}

func TestParseCardDataReplyRejectsTruncatedProviderList(t *testing.T) {
	body := buildCardDataBody(2)
	body = body[:len(body)-5] // truncate mid provider record

	if _, err := protocol.ParseCardDataReply(body); err == nil {
		t.Fatalf("expected error for truncated provider list, got nil")
	}
}
