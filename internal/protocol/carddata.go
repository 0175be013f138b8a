package protocol

import (
	"errors"
	"fmt"

	"cwc/internal/settings"
)

// ErrInvalidCardData is returned by ParseCardDataReply when the reply body
// is too short to be a well-formed CARD_DATA message.
var ErrInvalidCardData = errors.New("protocol: invalid card data reply")

// Provider identifies one of the card's provider entries: a 3-byte
// provider ID and its 8-byte shared address.
type Provider struct {
	ID            uint32
	SharedAddress [8]byte
}

// CardData is the parsed payload of a CARD_DATA reply: the card's CAID,
// unique address, and provider list, from which the session derives which
// ECMs it can even attempt to resolve.
type CardData struct {
	UserID    byte
	CAID      uint16
	UA        [8]byte
	Providers []Provider
}

// ParseCardDataReply parses the CARD_DATA message body (the bytes
// ParseHeader returns, i.e. with the 12-byte header already stripped).
// Field offsets mirror cwc_decode_card_data_reply exactly.
func ParseCardDataReply(body []byte) (CardData, error) {
	if len(body) < 3 {
		return CardData{}, fmt.Errorf("%w: body too short (%d bytes)", ErrInvalidCardData, len(body))
	}

	plen := int(body[1]&0x0f)<<8 | int(body[2])
	if plen < settings.MinCardDataPayload {
		return CardData{}, fmt.Errorf("%w: payload length %d below minimum", ErrInvalidCardData, plen)
	}
	if len(body) < 15 {
		return CardData{}, fmt.Errorf("%w: body too short for fixed fields (%d bytes)", ErrInvalidCardData, len(body))
	}

	nprov := int(body[14])
	if plen < nprov*11 {
		return CardData{}, fmt.Errorf("%w: payload length %d too short for %d providers", ErrInvalidCardData, plen, nprov)
	}
	if nprov > settings.MaxProviders {
		return CardData{}, fmt.Errorf("%w: %d providers exceeds maximum", ErrInvalidCardData, nprov)
	}

	cd := CardData{
		UserID: body[3],
		CAID:   uint16(body[4])<<8 | uint16(body[5]),
	}
	copy(cd.UA[:], body[6:14])

	rest := body[15:]
	if len(rest) < nprov*11 {
		return CardData{}, fmt.Errorf("%w: provider list truncated", ErrInvalidCardData)
	}

	cd.Providers = make([]Provider, nprov)
	for i := 0; i < nprov; i++ {
		rec := rest[i*11 : i*11+11]
		p := Provider{
			ID: uint32(rec[0])<<16 | uint32(rec[1])<<8 | uint32(rec[2]),
		}
		copy(p.SharedAddress[:], rec[3:11])
		cd.Providers[i] = p
	}
	return cd, nil
}
