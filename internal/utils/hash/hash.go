package hash

import (
	"crypto/md5"
	"fmt"
)

// Hash digests are md5 hex strings so ledgers written by earlier deployments
// keep matching.
type Hash struct {
	data []byte
}

func NewHash(data []byte) Hash {
	return Hash{data: data}
}

func (h Hash) ComputeHash() string {
	sum := md5.Sum(h.data)
	return fmt.Sprintf("%x", sum)
}

// Identity returns the ledger key of a source address.
func Identity(address string) string {
	return NewHash([]byte(address)).ComputeHash()
}

// Fingerprint returns the dedup digest of an item token.
func Fingerprint(token string) string {
	return NewHash([]byte(token)).ComputeHash()
}
