package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// The version suffix allows the algorithm or field set to migrate without
// silently colliding with older digests.
const (
	DomainParity      = "chainshadow/parity/v1"
	DomainErrorExport = "chainshadow/error-export/v1"
	DomainJitter      = "chainshadow/jitter/v1"
)

// ShortHashLen is the number of hex characters kept for short digests.
const ShortHashLen = 16

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// Digest returns the full hex SHA-256 of v's canonical JSON under domain.
func Digest(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hex.EncodeToString(hashWithDomain(domain, canonical)), nil
}

// ShortDigest is Digest truncated to ShortHashLen hex characters.
func ShortDigest(domain string, v any) (string, error) {
	full, err := Digest(domain, v)
	if err != nil {
		return "", err
	}
	return full[:ShortHashLen], nil
}

// DigestBytes hashes raw bytes under domain. Used where the input is already
// a stable string (e.g. jitter seeds) and canonical JSON would add nothing.
func DigestBytes(domain string, data []byte) []byte {
	return hashWithDomain(domain, data)
}
