package sidechain

import (
	"git.gammaspectra.live/P2Pool/sharechain/types"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
	"git.gammaspectra.live/P2Pool/sharechain/wallet"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

type GetByTemplateIdFunc func(h types.Hash) *PoolBlock

type Share struct {
	Weight  types.Difficulty
	Address wallet.PackedAddress
}

type Shares []*Share

func (s Shares) Index(addr wallet.PackedAddress) int {
	return slices.IndexFunc(s, func(share *Share) bool {
		return share.Address.ComparePacked(&addr) == 0
	})
}

func (s Shares) Clone() (o Shares) {
	o = make(Shares, len(s))
	for i := range s {
		o[i] = &Share{Address: s[i].Address, Weight: s[i].Weight}
	}
	return o
}

// Compact merges entries with the same wallet, leaving the result sorted by
// the wallet consensus ordering
func (s Shares) Compact() Shares {
	if len(s) == 0 {
		return s
	}

	slices.SortFunc(s, func(a *Share, b *Share) bool {
		return a.Address.ComparePacked(&b.Address) < 0
	})

	index := 0
	for i, share := range s {
		if i == 0 {
			continue
		}
		if s[index].Address.ComparePacked(&share.Address) == 0 {
			s[index].Weight = s[index].Weight.Add(share.Weight)
		} else {
			index++
			s[index].Address = share.Address
			s[index].Weight = share.Weight
		}
	}

	return s[:index+1]
}

func PreAllocateShares[T constraints.Integer](n T) Shares {
	preAllocatedShares := make(Shares, n)
	for i := range preAllocatedShares {
		preAllocatedShares[i] = &Share{}
	}
	return preAllocatedShares
}

// GetShares walks the PPLNS window from tip and produces the weighted,
// wallet-sorted share list. Missing ancestors or uncles yield a nil result;
// the caller treats that as transient, not invalidity.
func GetShares(tip *PoolBlock, consensus *Consensus, getByTemplateId GetByTemplateIdFunc, preAllocatedShares Shares) (shares Shares, bottomHeight uint64) {
	index := 0
	l := len(preAllocatedShares)
	insert := func(weight types.Difficulty, a wallet.PackedAddress) {
		var s *Share
		if index < l {
			s = preAllocatedShares[index]
		} else {
			s = &Share{}
			preAllocatedShares = append(preAllocatedShares, s)
		}
		s.Weight = weight
		s.Address = a
		index++
	}

	var blockDepth uint64

	cur := tip
	for {
		curWeight := cur.Side.Difficulty

		for _, uncleId := range cur.Side.Uncles {
			uncle := getByTemplateId(uncleId)
			if uncle == nil {
				//cannot find uncles
				utils.Debugf("[SideChain] get_shares: can't find uncle %s of block at height = %d", uncleId, cur.Side.Height)
				return nil, 0
			}

			// Skip uncles which are already out of PPLNS window
			if (tip.Side.Height - uncle.Side.Height) >= consensus.ChainWindowSize {
				continue
			}

			// Take some % of uncle's weight into this share
			unclePenalty := uncle.Side.Difficulty.Mul64(consensus.UnclePenalty).Div64(100)
			curWeight = curWeight.Add(unclePenalty)

			insert(uncle.Side.Difficulty.Sub(unclePenalty), uncle.Side.MinerWallet)
		}

		insert(curWeight, cur.Side.MinerWallet)

		blockDepth++

		if blockDepth >= consensus.ChainWindowSize {
			break
		}

		// Reached the genesis block so we're done
		if cur.Side.Height == 0 {
			break
		}

		parentId := cur.Side.Parent
		cur = getByTemplateId(parentId)

		if cur == nil {
			utils.Debugf("[SideChain] get_shares: can't find parent %s within window", parentId)
			return nil, 0
		}
	}

	bottomHeight = cur.Side.Height

	shares = preAllocatedShares[:index]

	// Combine shares with the same wallet addresses
	shares = shares.Compact()

	return shares, bottomHeight
}

// SplitReward distributes a total reward across shares by prefix allocation,
// exactly: A(k) = floor(prefixWeight(k) * reward / totalWeight), reward k =
// A(k) - A(k-1). 128-bit intermediates keep the division exact.
func SplitReward(reward uint64, shares Shares) (rewards []uint64) {
	var totalWeight types.Difficulty
	for i := range shares {
		totalWeight = totalWeight.Add(shares[i].Weight)
	}

	if totalWeight.IsZero() {
		return nil
	}

	rewards = make([]uint64, len(shares))

	var w types.Difficulty
	var rewardGiven uint64

	for i := range shares {
		w = w.Add(shares[i].Weight)
		nextValue := w.Mul64(reward).Div(totalWeight)
		rewards[i] = nextValue.Lo - rewardGiven
		rewardGiven = nextValue.Lo
	}

	// Double check that we gave out the exact amount
	rewardGiven = 0
	for _, r := range rewards {
		rewardGiven += r
	}
	if rewardGiven != reward {
		return nil
	}

	return rewards
}

// CalculateOutputs derives the full output set for a block paying
// totalReward across its window shares
func CalculateOutputs(block *PoolBlock, consensus *Consensus, totalReward uint64, getByTemplateId GetByTemplateIdFunc, derivationCache *wallet.DerivationCache, preAllocatedShares Shares) (outputs []PoolBlockOutput, bottomHeight uint64) {
	tmpShares, bottomHeight := GetShares(block, consensus, getByTemplateId, preAllocatedShares)
	if tmpShares == nil {
		return nil, 0
	}
	tmpRewards := SplitReward(totalReward, tmpShares)

	if tmpRewards == nil || len(tmpRewards) != len(tmpShares) {
		return nil, 0
	}

	n := len(tmpShares)
	outputs = make([]PoolBlockOutput, n)

	for i := 0; i < n; i++ {
		ephPublicKey, err := derivationCache.GetEphemeralPublicKey(&tmpShares[i].Address, &block.Side.TransactionPrivateKey, uint64(i))
		if err != nil {
			utils.Errorf("[SideChain] calculate_outputs: could not derive output %d: %s", i, err)
			return nil, 0
		}
		outputs[i] = PoolBlockOutput{
			Reward:             tmpRewards[i],
			EphemeralPublicKey: ephPublicKey,
		}
	}

	return outputs, bottomHeight
}
