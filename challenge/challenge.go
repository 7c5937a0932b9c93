// Package challenge derives the per-account answer slots a reader has to
// transcribe before a content-read quiz counts as completed.
package challenge

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size 每个账户需要回答的题目数量
const Size = 5

// ErrTooFewAnswers is returned when the committed answer list cannot hold a
// full challenge of distinct slots.
var ErrTooFewAnswers = errors.New("challenge: answer list shorter than challenge size")

// Keccak256 returns the legacy keccak-256 digest of the concatenated parts.
func Keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Keccak256Hex is Keccak256 encoded as 0x-prefixed lowercase hex.
func Keccak256Hex(parts ...[]byte) string {
	return "0x" + hex.EncodeToString(Keccak256(parts...))
}

// Indexes returns size distinct slots in [0, n) for account reading the item
// identified by contentKey. The result depends on nothing but its arguments.
func Indexes(contentKey, account string, n, size int) ([]int, error) {
	if size <= 0 || n < size {
		return nil, ErrTooFewAnswers
	}

	seed := Keccak256([]byte(contentKey), []byte(account))
	out := make([]int, 0, size)
	seen := make(map[int]struct{}, size)

	var ctr [4]byte
	for i := uint32(0); len(out) < size; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		digest := Keccak256(seed, ctr[:])
		idx := int(binary.BigEndian.Uint64(digest[:8]) % uint64(n))
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out, nil
}

// HashAnswer hashes a plaintext answer the way committed answers are hashed.
func HashAnswer(answer string) string {
	return Keccak256Hex([]byte(answer))
}

// Matches reports whether the plaintext answer hashes to committed. Hex case
// and the 0x prefix are ignored on the committed side.
func Matches(committed, answer string) bool {
	return normalize(committed) == normalize(HashAnswer(answer))
}

func normalize(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.TrimPrefix(h, "0x")
}
