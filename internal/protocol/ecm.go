package protocol

import (
	"errors"
	"fmt"

	"cwc/internal/settings"
)

// ErrECMReplyTooShort is returned by ParseECMReply when the reply body
// carries fewer than settings.ECMReplyMinLength bytes, which the protocol
// treats as "access denied" rather than a malformed frame.
var ErrECMReplyTooShort = errors.New("protocol: ecm reply too short")

// ControlWords holds the even/odd control words an ECM reply carries. A
// control word is "present" when at least one of its 8 bytes is non-zero;
// a reply that carries only one parity sends the other as eight zero bytes.
type ControlWords struct {
	Even    [8]byte
	HasEven bool
	Odd     [8]byte
	HasOdd  bool
}

// ParseECMReply parses an ECM reply's body (header already stripped by
// ParseHeader) into its control words. Matches cwc_running_reply's 0x80/
// 0x81 branch: msg[3:11] is the even word, msg[11:19] the odd word, each
// only adopted if not all-zero.
func ParseECMReply(body []byte) (ControlWords, error) {
	if len(body) < settings.ECMReplyMinLength {
		return ControlWords{}, fmt.Errorf("%w: %d bytes", ErrECMReplyTooShort, len(body))
	}

	var cw ControlWords
	even := body[3:11]
	odd := body[11:19]

	for _, b := range even {
		if b != 0 {
			cw.HasEven = true
			break
		}
	}
	if cw.HasEven {
		copy(cw.Even[:], even)
	}

	for _, b := range odd {
		if b != 0 {
			cw.HasOdd = true
			break
		}
	}
	if cw.HasOdd {
		copy(cw.Odd[:], odd)
	}

	return cw, nil
}
