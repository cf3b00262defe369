package lineage

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLength is the length of a rendered lineage hash.
const HashLength = sha256.Size * 2

// Hash derives the lineage digest from a parent hash (empty for roots), the
// ordered mutation list and an already normalized sequence.
func Hash(parentHash string, mutations []string, normalizedSequence string) string {
	sum := sha256.Sum256([]byte(parentHash + ":" + JoinMutations(mutations) + ":" + normalizedSequence))
	return hex.EncodeToString(sum[:])
}

// Compute normalizes rawSequence and hashes it with the parent and mutations.
func Compute(parentHash string, mutations []string, rawSequence string) (string, error) {
	normalized, err := NormalizeSequence(rawSequence)
	if err != nil {
		return "", err
	}
	return Hash(parentHash, mutations, normalized), nil
}

// Verify re-derives the digest and compares it with expected.
func Verify(expected, parentHash string, mutations []string, normalizedSequence string) bool {
	return expected == Hash(parentHash, mutations, normalizedSequence)
}
