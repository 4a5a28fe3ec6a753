package payload

// payload.go = hex payload handling for the probe.
// Payloads are written as whitespace-separated two-character hex tokens,
// one message per line, exactly as they appear in protocol captures.

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Reference payloads for the speed daemon protocol.
// DefaultHex identifies as a camera on road 123 at mile 8 (limit 60 mph),
// reports plate "UN1X" at timestamp 0 and asks for a heartbeat every
// 10 deciseconds.
const DefaultHex = `
80 00 7b 00 08 00 3c
20 04 55 4e 31 58 00 00 00 00
40 00 00 00 0a
`

// CameraMile9Hex is the same camera one mile down the road, reporting the
// same plate 45 seconds later. Sending DefaultHex and then CameraMile9Hex
// on separate connections makes the server compute a speed of 80 mph and
// issue a ticket.
const CameraMile9Hex = `
80 00 7b 00 09 00 3c
20 04 55 4e 31 58 00 00 00 2d
`

// DispatcherHex identifies as a ticket dispatcher responsible for road 123.
const DispatcherHex = `
81 01 00 7b
`

// Normalize strips all whitespace (spaces, tabs, newlines) from a hex
// literal so multi-line captures can be decoded directly.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Decode normalizes a hex literal and decodes it into raw bytes.
// An odd number of hex digits or a non-hex character is an error;
// nothing is ever silently truncated or substituted.
func Decode(s string) ([]byte, error) {
	cleaned := Normalize(s)
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("hex payload has odd length %d", len(cleaned))
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}

// MustDecode is Decode for the built-in payload constants.
// It panics on error, so it is only appropriate for literals that are
// known-good at compile time.
func MustDecode(s string) []byte {
	b, err := Decode(s)
	if err != nil {
		panic(fmt.Sprintf("payload: bad built-in hex literal: %v", err))
	}
	return b
}
