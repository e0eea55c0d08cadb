package crypto

import (
	"sync"

	"git.gammaspectra.live/P2Pool/edwards25519"
	"git.gammaspectra.live/P2Pool/sha3"
	"git.gammaspectra.live/P2Pool/sharechain/types"
)

var hasherPool = sync.Pool{
	New: func() any {
		return sha3.NewLegacyKeccak256()
	},
}

func GetKeccak256Hasher() *sha3.HasherState {
	return hasherPool.Get().(*sha3.HasherState)
}

func PutKeccak256Hasher(h *sha3.HasherState) {
	h.Reset()
	hasherPool.Put(h)
}

func Keccak256(data ...[]byte) (result types.Hash) {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		_, _ = h.Write(b)
	}
	HashFastSum(h, result[:])
	return
}

// PooledKeccak256 keccak-256 via the shared hasher pool
func PooledKeccak256(data ...[]byte) (result types.Hash) {
	h := GetKeccak256Hasher()
	defer PutKeccak256Hasher(h)
	for _, b := range data {
		_, _ = h.Write(b)
	}
	HashFastSum(h, result[:])
	return
}

// HashFastSum keccak Sum without the state clone allocation
func HashFastSum(hash *sha3.HasherState, sum []byte) []byte {
	_ = hash.Sum(sum[:0])
	return sum
}

// BytesToScalar wide reduction of a 256-bit hash into the scalar field
func BytesToScalar(buf []byte) *edwards25519.Scalar {
	var wideBytes [64]byte
	copy(wideBytes[:], buf)
	c, _ := edwards25519.NewScalar().SetUniformBytes(wideBytes[:])
	return c
}

func HashToScalar(data ...[]byte) *edwards25519.Scalar {
	h := Keccak256(data...)
	return BytesToScalar(h[:])
}
