package sidechain

import (
	"testing"

	"git.gammaspectra.live/P2Pool/sharechain/types"
)

// makeLinearWindow a hand-built chain of n blocks with the given timestamp
// spacing and constant per-block difficulty, outside any store
func makeLinearWindow(n int, spacing uint64, difficulty uint64) (tip *PoolBlock, getById GetByTemplateIdFunc) {
	blocks := make(map[types.Hash]*PoolBlock)

	parent := types.ZeroHash
	var cumulative uint64
	for i := 0; i < n; i++ {
		cumulative += difficulty
		b := &PoolBlock{}
		b.Side.Parent = parent
		b.Side.Height = uint64(i)
		b.Side.Timestamp = testTimestamp + uint64(i)*spacing
		b.Side.Difficulty = types.DifficultyFrom64(difficulty)
		b.Side.CumulativeDifficulty = types.DifficultyFrom64(cumulative)

		id := types.Hash{0xd0, byte(i)}
		b.cache.templateId.Store(&id)
		blocks[id] = b
		parent = id
		tip = b
	}

	return tip, func(h types.Hash) *PoolBlock {
		return blocks[h]
	}
}

func TestNextDifficultyClampsToMinimum(t *testing.T) {
	tip, getById := makeLinearWindow(12, testTimestampSpacing, 1000)

	diff, verifyError, invalidError := NextDifficulty(tip, testConsensus, getById, nil, nil)
	if verifyError != nil || invalidError != nil {
		t.Fatal(verifyError, invalidError)
	}

	if !diff.Equals64(testConsensus.MinimumDifficulty) {
		t.Fatalf("expected minimum difficulty, got %s", diff.StringNumeric())
	}
}

func TestNextDifficultyEqualTimestamps(t *testing.T) {
	// all samples share one timestamp: deltaT = 1 and the whole cumulative
	// span counts
	tip, getById := makeLinearWindow(12, 0, 1000)

	diff, verifyError, invalidError := NextDifficulty(tip, testConsensus, getById, nil, nil)
	if verifyError != nil || invalidError != nil {
		t.Fatal(verifyError, invalidError)
	}

	if !diff.Equals64(11 * 1000 * testConsensus.TargetBlockTime) {
		t.Fatalf("expected %d, got %s", 11*1000*testConsensus.TargetBlockTime, diff.StringNumeric())
	}
}

func TestNextDifficultyTrimsOutliers(t *testing.T) {
	// a single manipulated timestamp far in the future is cut by the 10% trim
	tip, getById := makeLinearWindow(20, 0, 1000)
	tip.Side.Timestamp += 1 << 30

	diff, verifyError, invalidError := NextDifficulty(tip, testConsensus, getById, nil, nil)
	if verifyError != nil || invalidError != nil {
		t.Fatal(verifyError, invalidError)
	}

	// N=20, cut=2: the outlier lands beyond index2 and its cumulative
	// difficulty does not widen the span
	if !diff.Equals64(18 * 1000 * testConsensus.TargetBlockTime) {
		t.Fatalf("expected %d, got %s", 18*1000*testConsensus.TargetBlockTime, diff.StringNumeric())
	}
}

func TestNextDifficultyMissingParent(t *testing.T) {
	tip, _ := makeLinearWindow(5, 0, 1000)
	empty := func(h types.Hash) *PoolBlock { return nil }

	_, verifyError, invalidError := NextDifficulty(tip, testConsensus, empty, nil, nil)
	if verifyError == nil {
		t.Fatal("missing parent must be a transient verification error")
	}
	if invalidError != nil {
		t.Fatal("missing parent must not be permanent")
	}
}

func TestNextDifficultyOverflow(t *testing.T) {
	consensus := &Consensus{
		PoolName:          "overflow",
		TargetBlockTime:   LargestTargetBlockTime,
		MinimumDifficulty: SmallestMinimumDifficulty,
		ChainWindowSize:   60,
		UnclePenalty:      DefaultUnclePenalty,
	}

	blocks := make(map[types.Hash]*PoolBlock)
	getById := func(h types.Hash) *PoolBlock { return blocks[h] }

	parentId := types.Hash{0xd1, 0}
	parent := &PoolBlock{}
	parent.Side.Height = 0
	parent.Side.Timestamp = testTimestamp
	parent.Side.Difficulty = types.DifficultyFrom64(1000)
	parent.Side.CumulativeDifficulty = types.DifficultyFrom64(1000)
	parent.cache.templateId.Store(&parentId)
	blocks[parentId] = parent

	tipId := types.Hash{0xd1, 1}
	tip := &PoolBlock{}
	tip.Side.Parent = parentId
	tip.Side.Height = 1
	tip.Side.Timestamp = testTimestamp
	tip.Side.Difficulty = types.NewDifficulty(0, 1<<62)
	tip.Side.CumulativeDifficulty = types.NewDifficulty(1000, 1<<62)
	tip.cache.templateId.Store(&tipId)
	blocks[tipId] = tip

	_, verifyError, invalidError := NextDifficulty(tip, consensus, getById, nil, nil)
	if invalidError == nil {
		t.Fatal("expected overflow to be permanent")
	}
	if verifyError != nil {
		t.Fatal(verifyError)
	}
}
