// Package numeric implements the base-64 numeric codec used by the
// server-link protocol to identify servers and users with short tokens
// instead of names. Server numerics are 1-2 characters, user local numerics
// are 2-3 characters, and the concatenation (the "joint" numeric) is the
// 3-5 character token used as a message origin on the wire.
package numeric

import (
	"fmt"
	"strings"
)

// alphabet is the P10-style base-64 digit set: A-Z, a-z, 0-9, '[', ']'.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789[]"

const Base = int64(len(alphabet))

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

// Encode renders n using width digits of the numeric alphabet, most
// significant digit first. Panics if n does not fit in width digits; callers
// control width from configuration and should validate ahead of time.
func Encode(n int64, width int) string {
	if n < 0 {
		panic(fmt.Sprintf("numeric: negative value %d", n))
	}

	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = alphabet[n%Base]
		n /= Base
	}
	if n != 0 {
		panic(fmt.Sprintf("numeric: value overflows %d digits", width))
	}
	return string(buf)
}

// Decode parses a base-64 numeric token into its integer value.
func Decode(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("numeric: empty token")
	}
	var n int64
	for i := 0; i < len(s); i++ {
		d := decodeTable[s[i]]
		if d < 0 {
			return 0, fmt.Errorf("numeric: invalid digit %q in %q", s[i], s)
		}
		n = n*Base + int64(d)
	}
	return n, nil
}

// SplitServerPrefix splits a joint user numeric into its leading server
// numeric prefix (prefixLen characters, 1 or 2) and the remaining local
// numeric.
func SplitServerPrefix(joint string, prefixLen int) (serverPrefix, local string, err error) {
	if len(joint) <= prefixLen {
		return "", "", fmt.Errorf("numeric: token %q too short for prefix length %d", joint, prefixLen)
	}
	return joint[:prefixLen], joint[prefixLen:], nil
}

// Valid reports whether s consists solely of numeric-alphabet digits.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return r > 255 || decodeTable[byte(r)] < 0
	}) == -1
}
