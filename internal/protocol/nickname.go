package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NickLen is the number of ASCII bytes packed into a client ID.
const NickLen = 8

// ToNick unpacks a client ID into its nickname: the 8 little-endian bytes
// read as ASCII with the right-hand space padding trimmed.
func ToNick(id uint64) string {
	var b [NickLen]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return strings.TrimRight(string(b[:]), " ")
}

// FromNick packs a nickname into a client ID. Accented letters are folded
// to their ASCII base first; anything still outside printable ASCII, or
// longer than 8 bytes, is rejected.
func FromNick(nick string) (uint64, error) {
	folded, err := foldASCII(nick)
	if err != nil {
		return 0, err
	}
	if len(folded) > NickLen {
		return 0, fmt.Errorf("nickname %q longer than %d bytes", nick, NickLen)
	}
	for i := 0; i < len(folded); i++ {
		if c := folded[i]; c < 0x20 || c > 0x7e {
			return 0, fmt.Errorf("nickname %q: byte 0x%02x is not printable ascii", nick, c)
		}
	}
	var b [NickLen]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[:], folded)
	return binary.LittleEndian.Uint64(b[:]), nil
}

func foldASCII(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return "", fmt.Errorf("normalize nickname %q: %w", s, err)
	}
	return out, nil
}
