package sidechain

import (
	"testing"

	"git.gammaspectra.live/P2Pool/sharechain/types"
)

// makeBareBlock a verified block with hand-set consensus fields, outside any
// store. The returned id is synthetic.
func makeBareBlock(id byte, parent types.Hash, height uint64, difficulty uint64, cumulativeDifficulty uint64, prevId types.Hash) (types.Hash, *PoolBlock) {
	b := &PoolBlock{}
	b.Side.Parent = parent
	b.Side.Height = height
	b.Side.Difficulty = types.DifficultyFrom64(difficulty)
	b.Side.CumulativeDifficulty = types.DifficultyFrom64(cumulativeDifficulty)
	b.Side.PrevId = prevId
	b.Verified.Store(true)

	blockId := types.Hash{0xf0, id}
	b.cache.templateId.Store(&blockId)
	return blockId, b
}

func TestIsLongerChainStaleAlternative(t *testing.T) {
	blocks := make(map[types.Hash]*PoolBlock)
	getById := func(h types.Hash) *PoolBlock {
		return blocks[h]
	}

	staleAnchor := types.Hash{0xaa}
	freshAnchor := types.Hash{0xbb}

	chainMain := map[types.Hash]*ChainMain{
		staleAnchor: {Height: 50, Id: staleAnchor},
		freshAnchor: {Height: 98, Id: freshAnchor},
	}
	head := &ChainMain{Height: 100}

	makeGetChainMain := func() GetChainMainByHashFunc {
		return func(h types.Hash) *ChainMain {
			if h == types.ZeroHash {
				return head
			}
			return chainMain[h]
		}
	}

	// current chain: a single block whose ancestors are pruned, low total difficulty
	currentId, current := makeBareBlock(1, types.Hash{0xee}, 5, 1000, 6000, freshAnchor)
	blocks[currentId] = current

	// candidate chain: fully present, higher total difficulty, stale anchors
	var candidate *PoolBlock
	parent := types.ZeroHash
	var cumulative uint64
	for i := uint64(0); i <= 5; i++ {
		cumulative += 2000
		id, b := makeBareBlock(byte(10+i), parent, i, 2000, cumulative, staleAnchor)
		blocks[id] = b
		parent = id
		candidate = b
	}

	if isLonger, _ := IsLongerChain(current, candidate, testConsensus, getById, makeGetChainMain()); isLonger {
		t.Fatal("stale alternative chain displaced the live chain")
	}

	// anchor the same candidate chain to a recent base-chain block
	chainMain[staleAnchor].Height = 95

	if isLonger, isAlternative := IsLongerChain(current, candidate, testConsensus, getById, makeGetChainMain()); !isLonger {
		t.Fatal("recent heavier alternative chain was not selected")
	} else if !isAlternative {
		t.Fatal("disjoint chains must report alternative")
	}
}

func TestIsLongerChainRejectsUnverified(t *testing.T) {
	getById := func(h types.Hash) *PoolBlock { return nil }
	getChainMain := func(h types.Hash) *ChainMain { return nil }

	_, candidate := makeBareBlock(1, types.ZeroHash, 0, 1000, 1000, types.ZeroHash)
	candidate.Verified.Store(false)

	if isLonger, _ := IsLongerChain(nil, candidate, testConsensus, getById, getChainMain); isLonger {
		t.Fatal("unverified candidate selected")
	}

	candidate.Verified.Store(true)
	candidate.Invalid.Store(true)
	if isLonger, _ := IsLongerChain(nil, candidate, testConsensus, getById, getChainMain); isLonger {
		t.Fatal("invalid candidate selected")
	}

	candidate.Invalid.Store(false)
	if isLonger, _ := IsLongerChain(nil, candidate, testConsensus, getById, getChainMain); !isLonger {
		t.Fatal("candidate must supersede a nil tip")
	}
}

func TestIsLongerChainSameChainMonotonic(t *testing.T) {
	blocks := make(map[types.Hash]*PoolBlock)
	getById := func(h types.Hash) *PoolBlock { return blocks[h] }
	getChainMain := func(h types.Hash) *ChainMain { return nil }

	parent := types.ZeroHash
	var cumulative uint64
	var chain []*PoolBlock
	for i := uint64(0); i < 4; i++ {
		cumulative += 1000
		id, b := makeBareBlock(byte(1+i), parent, i, 1000, cumulative, types.ZeroHash)
		blocks[id] = b
		parent = id
		chain = append(chain, b)
	}

	if isLonger, isAlternative := IsLongerChain(chain[0], chain[3], testConsensus, getById, getChainMain); !isLonger {
		t.Fatal("descendant with higher cumulative difficulty must win")
	} else if isAlternative {
		t.Fatal("same chain must not report alternative")
	}

	if isLonger, _ := IsLongerChain(chain[3], chain[0], testConsensus, getById, getChainMain); isLonger {
		t.Fatal("ancestor must not displace descendant")
	}
}
