package sidechain

import (
	"git.gammaspectra.live/P2Pool/sharechain/types"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
)

type GetChainMainByHashFunc func(h types.Hash) *ChainMain

// IsLongerChain decides whether candidate supersedes block as the chain tip.
//
// On the same chain (a common ancestor is found by equalizing heights and
// walking parents in lock-step) the cumulative difficulties decide. On
// disjoint chains the per-block difficulties are summed over the window and
// the candidate must additionally be anchored to recent base-chain blocks;
// long-buried alternative histories never displace the live chain.
//
// isAlternative reports the disjoint-chains path was taken; it is also true
// when there is no current block and a valid candidate is accepted.
func IsLongerChain(block, candidate *PoolBlock, consensus *Consensus, getByTemplateId GetByTemplateIdFunc, getChainMainByHash GetChainMainByHashFunc) (isLonger, isAlternative bool) {
	if candidate == nil || !candidate.Verified.Load() || candidate.Invalid.Load() {
		return false, false
	}

	// If these two blocks are on the same chain, they must have a common ancestor
	if block != nil {
		blockAncestor := block
		for blockAncestor != nil && blockAncestor.Side.Height > candidate.Side.Height {
			parentId := blockAncestor.Side.Parent
			blockAncestor = getByTemplateId(parentId)
			if blockAncestor == nil {
				utils.Debugf("[SideChain] is_longer_chain: couldn't find ancestor %s of block %s", parentId, block.Side.Parent)
			}
		}

		if blockAncestor != nil {
			candidateAncestor := candidate
			for candidateAncestor != nil && candidateAncestor.Side.Height > blockAncestor.Side.Height {
				parentId := candidateAncestor.Side.Parent
				candidateAncestor = getByTemplateId(parentId)
				if candidateAncestor == nil {
					utils.Debugf("[SideChain] is_longer_chain: couldn't find ancestor %s of candidate", parentId)
				}
			}

			for blockAncestor != nil && candidateAncestor != nil {
				if blockAncestor.Side.Parent == candidateAncestor.Side.Parent {
					// If they are really on the same chain, we can just compare cumulative difficulties
					return block.Side.CumulativeDifficulty.Cmp(candidate.Side.CumulativeDifficulty) < 0, false
				}
				blockAncestor = getByTemplateId(blockAncestor.Side.Parent)
				candidateAncestor = getByTemplateId(candidateAncestor.Side.Parent)
			}
		}
	} else {
		return true, true
	}

	// They're on totally different chains. Compare total difficulties over the last window
	var blockTotalDiff, candidateTotalDiff types.Difficulty

	oldChain := block
	newChain := candidate

	var candidateMainchainHeight uint64
	var mainchainPrevId types.Hash

	for i := uint64(0); i < consensus.ChainWindowSize && (oldChain != nil || newChain != nil); i++ {
		if oldChain != nil {
			blockTotalDiff = blockTotalDiff.Add(oldChain.Side.Difficulty)
			oldChain = getByTemplateId(oldChain.Side.Parent)
		}

		if newChain != nil {
			candidateTotalDiff = candidateTotalDiff.Add(newChain.Side.Difficulty)

			if newChain.Side.PrevId != mainchainPrevId {
				if data := getChainMainByHash(newChain.Side.PrevId); data != nil {
					mainchainPrevId = newChain.Side.PrevId
					candidateMainchainHeight = utils.Max(candidateMainchainHeight, data.Height)
				}
			}

			newChain = getByTemplateId(newChain.Side.Parent)
		}
	}

	if blockTotalDiff.Cmp(candidateTotalDiff) >= 0 {
		return false, true
	}

	// Final check: candidate chain must be built on top of recent mainchain blocks
	if headTip := getChainMainByHash(types.ZeroHash); headTip != nil {
		if candidateMainchainHeight+10 < headTip.Height {
			utils.Noticef("[SideChain] received a longer alternative chain but it's stale: height %d, current height %d", candidateMainchainHeight, headTip.Height)
			return false, true
		}
	}

	return true, true
}
