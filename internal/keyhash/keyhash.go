// Package keyhash derives short fixed-size identifiers from query hashes.
package keyhash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes; IDs are twice as long in hex.
const Size = 8

// ID returns the hex encoded 8-byte blake2b digest of hash.
// The result is URL-safe and stable across processes.
func ID(hash string) string {
	// error only for invalid sizes or keys
	h, _ := blake2b.New(Size, nil)
	h.Write([]byte(hash))
	return hex.EncodeToString(h.Sum(nil))
}
