package randomx

import (
	"git.gammaspectra.live/P2Pool/sharechain/types"
)

// Hasher the proof-of-work black box. Hash keys the dataset with the seed
// obtained from the base chain and hashes the block blob.
type Hasher interface {
	Hash(key []byte, input []byte) (types.Hash, error)
	Close()
}

const (
	SeedHashEpochLag    = 64
	SeedHashEpochBlocks = 2048
)

func SeedHeights(height uint64) (seedHeight, nextHeight uint64) {
	return SeedHeight(height), SeedHeight(height + SeedHashEpochLag)
}

func SeedHeight(height uint64) uint64 {
	if height <= SeedHashEpochBlocks+SeedHashEpochLag {
		return 0
	}

	return (height - SeedHashEpochLag - 1) & (^uint64(SeedHashEpochBlocks - 1))
}
