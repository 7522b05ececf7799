package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// DomainSideSchema separates side-schema digests from any other use of
// the same hash. The version suffix allows the record layout to change.
const DomainSideSchema = "ledgerattach/side-schema/v1"

// Hash computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest accumulates canonical records into a domain-separated hash.
// Each record is written as its canonical encoding followed by a newline,
// so the digest equals Hash(domain, <the JSON-lines document>).
type Digest struct {
	h     hash.Hash
	count int
}

// NewDigest starts a digest in the given domain.
func NewDigest(domain string) *Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return &Digest{h: h}
}

// Add appends one record.
func (d *Digest) Add(v Value) error {
	b, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("digest record %d: %w", d.count, err)
	}
	d.h.Write(b)
	d.h.Write([]byte{'\n'})
	d.count++
	return nil
}

// Count returns the number of records added.
func (d *Digest) Count() int { return d.count }

// Sum returns the hex digest. Further Adds continue from the same state.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
