// Package ir provides the constrained value model used for content hashing.
//
// Every digest in chainshadow (parity hashes, structured-error export hashes,
// canary buckets) is computed over RFC 8785 canonical JSON produced by this
// package. ir imports nothing internal; all other packages may import it.
//
// Key design constraints:
//   - NO float types in hashed content - ratios travel as integer basis points
//   - Object keys are ordered by UTF-16 code units, strings are NFC normalized
//   - Digests are domain separated and versioned (see hash.go)
package ir
