package sidechain

import (
	"math/rand"
	"testing"

	"git.gammaspectra.live/P2Pool/sharechain/types"
)

func TestSplitRewardExact(t *testing.T) {
	shares := Shares{
		{Weight: types.DifficultyFrom64(1), Address: testWallet(1)},
		{Weight: types.DifficultyFrom64(2), Address: testWallet(2)},
		{Weight: types.DifficultyFrom64(3), Address: testWallet(3)},
	}

	rewards := SplitReward(10, shares)
	if len(rewards) != 3 {
		t.Fatal("wrong reward count")
	}

	// prefix allocation: floor(1*10/6)=1, floor(3*10/6)=5, floor(6*10/6)=10
	expected := []uint64{1, 4, 5}
	for i := range expected {
		if rewards[i] != expected[i] {
			t.Fatalf("wrong reward at index %d, got %d, expected %d", i, rewards[i], expected[i])
		}
	}
}

func TestSplitRewardConservation(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 100; round++ {
		n := 1 + r.Intn(64)
		shares := make(Shares, n)
		for i := range shares {
			shares[i] = &Share{
				Weight:  types.DifficultyFrom64(1 + uint64(r.Int63n(1e12))),
				Address: testWallet(i),
			}
		}

		reward := 1 + uint64(r.Int63n(1e18))
		rewards := SplitReward(reward, shares)
		if rewards == nil {
			t.Fatal("split failed")
		}

		var total uint64
		for _, v := range rewards {
			total += v
		}
		if total != reward {
			t.Fatalf("reward not conserved: got %d, expected %d", total, reward)
		}
	}
}

func TestSplitRewardZeroWeight(t *testing.T) {
	if rewards := SplitReward(100, Shares{}); rewards != nil {
		t.Fatal("empty shares must fail")
	}
}

func TestSharesCompact(t *testing.T) {
	a := testWallet(1)
	b := testWallet(2)

	shares := Shares{
		{Weight: types.DifficultyFrom64(100), Address: b},
		{Weight: types.DifficultyFrom64(50), Address: a},
		{Weight: types.DifficultyFrom64(25), Address: b},
	}

	compacted := shares.Compact()
	if len(compacted) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(compacted))
	}

	// sorted by the wallet consensus ordering
	if compacted[0].Address.ComparePacked(&compacted[1].Address) >= 0 {
		t.Fatal("shares not sorted")
	}

	for _, share := range compacted {
		if share.Address.Compare(b) == 0 && !share.Weight.Equals64(125) {
			t.Fatalf("weights not merged, got %s", share.Weight.StringNumeric())
		}
		if share.Address.Compare(a) == 0 && !share.Weight.Equals64(50) {
			t.Fatalf("wrong weight, got %s", share.Weight.StringNumeric())
		}
	}
}

func TestGetSharesMissingUncle(t *testing.T) {
	tip, getById := makeLinearWindow(3, 0, 1000)
	tip.Side.Uncles = append(tip.Side.Uncles, types.Hash{0x99})

	if shares, _ := GetShares(tip, testConsensus, getById, nil); shares != nil {
		t.Fatal("missing uncle must fail share calculation")
	}
}

func TestGetSharesDeterministicOrder(t *testing.T) {
	tc := newTestChain(t)

	g := tc.addBlock(3, nil, nil, testTimestamp)
	b1 := tc.addBlock(1, g, nil, testTimestamp+testTimestampSpacing)
	b2 := tc.addBlock(2, b1, nil, testTimestamp+2*testTimestampSpacing)

	shares, _ := GetShares(b2, testConsensus, tc.s.GetPoolBlockByTemplateId, nil)
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}

	for i := 1; i < len(shares); i++ {
		if shares[i-1].Address.ComparePacked(&shares[i].Address) >= 0 {
			t.Fatal("shares not ordered by wallet")
		}
	}
}
