package attachment

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Bytes is an opaque binary field.
// Its text form is lowercase hex, optionally written with a 0x prefix,
// so fixtures and JSON output stay readable.
type Bytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b Bytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimPrefix(string(text), "0x"), "0X")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex bytes: %w", err)
	}
	*b = decoded
	return nil
}

func (b Bytes) String() string {
	return "0x" + hex.EncodeToString(b)
}
