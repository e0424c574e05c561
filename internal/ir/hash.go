package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEvent prefixes every payload content hash. The version suffix
// leaves room for algorithm migration.
const DomainEvent = "conduit/event/v1"

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the hex digest of a payload's canonical bytes.
func ContentHash(payload IRObject) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return HashCanonical(canonical), nil
}

// HashCanonical hashes bytes that are already in canonical form. The store
// uses it to re-derive hashes from persisted payload bytes during verify.
func HashCanonical(canonical []byte) string {
	return hashWithDomain(DomainEvent, canonical)
}
