package sidechain

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"git.gammaspectra.live/P2Pool/sharechain/types"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
	"git.gammaspectra.live/P2Pool/sharechain/wallet"
	"golang.org/x/exp/slices"
)

// mainChainBlockTime base-chain target spacing in seconds, used for the
// pruning margin and hashrate estimates
const mainChainBlockTime = 120

// ChainMain a base-chain block header as seen by the collaborator
type ChainMain struct {
	Difficulty types.Difficulty
	Height     uint64
	Timestamp  uint64
	Id         types.Hash
}

// MinerData the live base-chain mining context
type MinerData struct {
	Height     uint64
	Difficulty types.Difficulty
}

// P2PoolInterface the external collaborators: base-chain view, PoW seeds and
// the outbound relay/template surface.
// Outbound calls are made while the sidechain lock is held: implementations
// must not call back into the SideChain and should dispatch their own work
// asynchronously.
type P2PoolInterface interface {
	ConsensusProvider
	UpdateTip(tip *PoolBlock)
	UpdateBlockTemplate()
	Broadcast(block *PoolBlock)
	GetChainMainByHash(hash types.Hash) *ChainMain
	GetChainMainTip() *ChainMain
	GetMinerDataTip() *MinerData
	GetSeedByHeight(height uint64) types.Hash
}

// SideChain the sidechain engine: in-memory block graph, verification
// fixpoint, fork choice, PPLNS share accounting, retargeting and pruning.
// Logically single-threaded under sidechainLock.
type SideChain struct {
	derivationCache *wallet.DerivationCache
	server          P2PoolInterface

	sidechainLock sync.RWMutex

	store *BlockStore

	chainTip          atomic.Pointer[PoolBlock]
	currentDifficulty atomic.Pointer[types.Difficulty]

	preAllocatedShares               Shares
	preAllocatedSharesPool           sync.Pool
	preAllocatedDifficultyData       []DifficultyData
	preAllocatedTimestampDifferences []uint32
}

func NewSideChain(server P2PoolInterface) *SideChain {
	s := &SideChain{
		derivationCache:                  wallet.NewDerivationCache(),
		server:                           server,
		store:                            NewBlockStore(server.Consensus().ChainWindowSize * 3),
		preAllocatedShares:               PreAllocateShares(server.Consensus().ChainWindowSize * 2),
		preAllocatedDifficultyData:       make([]DifficultyData, 0, server.Consensus().ChainWindowSize*2),
		preAllocatedTimestampDifferences: make([]uint32, 0, server.Consensus().ChainWindowSize*2),
	}
	s.preAllocatedSharesPool.New = func() any {
		return PreAllocateShares(s.Consensus().ChainWindowSize * 2)
	}
	minDiff := types.DifficultyFrom64(server.Consensus().MinimumDifficulty)
	s.currentDifficulty.Store(&minDiff)
	return s
}

func (c *SideChain) Consensus() *Consensus {
	return c.server.Consensus()
}

func (c *SideChain) DerivationCache() *wallet.DerivationCache {
	return c.derivationCache
}

// Difficulty the difficulty required for the next block on top of the tip
func (c *SideChain) Difficulty() types.Difficulty {
	return *c.currentDifficulty.Load()
}

func (c *SideChain) GetChainTip() *PoolBlock {
	return c.chainTip.Load()
}

func (c *SideChain) LastUpdated() uint64 {
	if tip := c.chainTip.Load(); tip != nil {
		return tip.LocalTimestamp
	}
	return 0
}

// BlockSeen true if the id had not been seen at ingress before. Used by the
// relay layer for duplicate suppression; marking is independent of insertion.
func (c *SideChain) BlockSeen(block *PoolBlock) bool {
	id := block.SideTemplateId(c.Consensus())

	c.sidechainLock.Lock()
	defer c.sidechainLock.Unlock()
	return c.store.MarkSeen(id)
}

// AddPoolBlockExternal ingests a relayed block: spam pre-filter, base-chain
// anchor sanity, PoW, then insertion. missingBlocks lists referenced
// parent/uncle ids not present in the store so the caller can request them
// from peers. ban reports whether a failure is protocol abuse rather than
// transient.
func (c *SideChain) AddPoolBlockExternal(block *PoolBlock) (missingBlocks []types.Hash, err error, ban bool) {
	templateId := block.SideTemplateId(c.Consensus())

	if block.Side.Difficulty.Cmp64(c.Consensus().MinimumDifficulty) < 0 {
		return nil, fmt.Errorf("block mined by %s has invalid difficulty %s, expected >= %d", block.Side.MinerWallet, block.Side.Difficulty.StringNumeric(), c.Consensus().MinimumDifficulty), true
	}

	expectedDifficulty := c.Difficulty()
	tooLowDiff := block.Side.Difficulty.Cmp(expectedDifficulty) < 0

	if otherBlock := c.GetPoolBlockByTemplateId(templateId); otherBlock != nil {
		//already added
		return nil, nil, false
	}

	// This is mainly an anti-spam measure, not an actual verification step
	if tooLowDiff {
		// Reduce required diff by 50% (by doubling this block's diff) to account for alternative chains
		diff2 := block.Side.Difficulty.Mul64(2)
		tip := c.GetChainTip()
		for tmp := tip; tmp != nil && (tmp.Side.Height+c.Consensus().ChainWindowSize > tip.Side.Height); tmp = c.GetParent(tmp) {
			if diff2.Cmp(tmp.Side.Difficulty) >= 0 {
				tooLowDiff = false
				break
			}
		}
	}

	if tooLowDiff {
		return nil, fmt.Errorf("block mined by %s has too low difficulty %s, expected >= %s", block.Side.MinerWallet, block.Side.Difficulty.StringNumeric(), expectedDifficulty.StringNumeric()), false
	}

	// This check is not always possible to perform because of mainchain reorgs
	if data := c.server.GetChainMainByHash(block.Side.PrevId); data != nil {
		if (data.Height + 1) != block.Side.GenHeight {
			return nil, fmt.Errorf("wrong mainchain height %d, expected %d", block.Side.GenHeight, data.Height+1), true
		}
	} else {
		utils.Noticef("[SideChain] add_external_block: block %s is built on top of an unknown mainchain block %s, mainchain reorg might have happened", templateId, block.Side.PrevId)
	}

	seed := c.server.GetSeedByHeight(block.Side.GenHeight)
	if seed == types.ZeroHash {
		return nil, fmt.Errorf("could not get seed hash for mainchain height %d", block.Side.GenHeight), false
	}

	if powHash, err := block.PowHashWithError(c.Consensus().GetHasher(), seed); err != nil {
		return nil, err, false
	} else if !block.Side.Difficulty.CheckPoW(powHash) {
		return nil, fmt.Errorf("not enough PoW for id %s, height = %d, mainchain height %d", templateId, block.Side.Height, block.Side.GenHeight), true
	}

	return func() []types.Hash {
		c.sidechainLock.RLock()
		defer c.sidechainLock.RUnlock()
		missing := make([]types.Hash, 0, 4)
		if block.Side.Parent != types.ZeroHash && c.getPoolBlockByTemplateId(block.Side.Parent) == nil {
			missing = append(missing, block.Side.Parent)
		}

		for _, uncleId := range block.Side.Uncles {
			if uncleId != types.ZeroHash && c.getPoolBlockByTemplateId(uncleId) == nil {
				missing = append(missing, uncleId)
			}
		}
		return missing
	}(), c.AddPoolBlock(block), true
}

// AddPoolBlock inserts a block (local or relayed, PoW already checked),
// updates descendant depths and drives the verification fixpoint.
func (c *SideChain) AddPoolBlock(block *PoolBlock) (err error) {
	templateId := block.SideTemplateId(c.Consensus())

	c.sidechainLock.Lock()
	defer c.sidechainLock.Unlock()

	if err = c.store.Insert(templateId, block); err != nil {
		if errors.Is(err, ErrAlreadyPresent) {
			utils.Noticef("[SideChain] add_block: trying to add the same block twice, id = %s, height = %d", templateId, block.Side.Height)
			return nil
		}
		return err
	}

	block.LocalTimestamp = uint64(time.Now().Unix())

	utils.Debugf("[SideChain] add_block: height = %d, id = %s, mainchain height = %d, verified = %t, total = %d", block.Side.Height, templateId, block.Side.GenHeight, block.Verified.Load(), c.store.Count())

	c.updateDepths(block)

	if block.Verified.Load() {
		if !block.Invalid.Load() {
			c.updateChainTip(block)
		}

		return nil
	}
	return c.verifyLoop(block)
}

// verifyLoop verification fixpoint: verify the inserted block, then every
// known descendant within uncle range of anything newly verified, until no
// progress. The best surviving candidate is handed to updateChainTip.
func (c *SideChain) verifyLoop(blockToVerify *PoolBlock) (err error) {
	// PoW is already checked at this point

	blocksToVerify := make([]*PoolBlock, 1, 8)
	blocksToVerify[0] = blockToVerify
	var highestBlock *PoolBlock
	for len(blocksToVerify) != 0 {
		block := blocksToVerify[len(blocksToVerify)-1]
		blocksToVerify = blocksToVerify[:len(blocksToVerify)-1]

		if block.Verified.Load() {
			continue
		}

		if verification, invalid := c.verifyBlock(block); invalid != nil {
			utils.Errorf("[SideChain] block at height = %d, id = %s, mainchain height = %d, mined by %s is invalid: %s", block.Side.Height, block.SideTemplateId(c.Consensus()), block.Side.GenHeight, block.Side.MinerWallet, invalid)
			block.Invalid.Store(true)
			block.Verified.Store(verification == nil)
			if block == blockToVerify {
				//Save error for return
				err = invalid
			}
		} else if verification != nil {
			utils.Debugf("[SideChain] can't verify block at height = %d, id = %s: %s", block.Side.Height, block.SideTemplateId(c.Consensus()), verification)
			block.Verified.Store(false)
			block.Invalid.Store(false)
		} else {
			block.Verified.Store(true)
			block.Invalid.Store(false)

			utils.Logf("[SideChain] verified block at height = %d, depth = %d, id = %s, mainchain height = %d, mined by %s", block.Side.Height, block.Depth.Load(), block.SideTemplateId(c.Consensus()), block.Side.GenHeight, block.Side.MinerWallet)

			// This block is now verified

			if isLongerChain, _ := c.isLongerChain(highestBlock, block); isLongerChain {
				highestBlock = block
			} else if highestBlock != nil && highestBlock.Side.Height > block.Side.Height {
				utils.Debugf("[SideChain] block at height = %d, id = %s, is not a longer chain than height = %d, id = %s", block.Side.Height, block.SideTemplateId(c.Consensus()), highestBlock.Side.Height, highestBlock.SideTemplateId(c.Consensus()))
			}

			// If it came through a broadcast, send it to our peers
			if block.WantBroadcast.Load() && !block.Broadcasted.Swap(true) {
				if block.Depth.Load() < UncleBlockDepth {
					c.server.Broadcast(block)
				}
			}

			// Try to verify blocks on top of this one
			for i := uint64(1); i <= UncleBlockDepth; i++ {
				blocksToVerify = append(blocksToVerify, c.store.AtHeight(block.Side.Height+i)...)
			}
		}
	}

	if highestBlock != nil {
		c.updateChainTip(highestBlock)
	}

	return
}

// verifyBlock evaluates the consensus rules in order. verification != nil
// leaves the block unverified (missing data, transient); invalid != nil
// marks it permanently invalid.
func (c *SideChain) verifyBlock(block *PoolBlock) (verification error, invalid error) {
	// Genesis
	if block.Side.Height == 0 {
		if block.Side.Parent != types.ZeroHash ||
			len(block.Side.Uncles) != 0 ||
			block.Side.Difficulty.Cmp64(c.Consensus().MinimumDifficulty) != 0 ||
			block.Side.CumulativeDifficulty.Cmp64(c.Consensus().MinimumDifficulty) != 0 {
			return nil, errors.New("genesis block has invalid parameters")
		}
		//this does not verify coinbase outputs, but that's fine
		return nil, nil
	}

	// Deep block
	//
	// Blocks in the PPLNS window require up to ChainWindowSize earlier blocks to verify
	// If a block is deeper than ChainWindowSize * 2 it can't influence blocks in the window
	// Also, having so many blocks on top of this one means it was verified by the network at some point
	// We skip checks in this case to make pruning possible
	if block.Depth.Load() >= c.Consensus().ChainWindowSize*2 {
		utils.Debugf("[SideChain] block at height = %d, id = %s skipped verification", block.Side.Height, block.SideTemplateId(c.Consensus()))
		return nil, nil
	}

	//Regular block
	//Must have parent
	if block.Side.Parent == types.ZeroHash {
		return nil, errors.New("block must have a parent")
	}

	parent := c.getParent(block)
	if parent == nil {
		return errors.New("parent does not exist"), nil
	}

	if !parent.Verified.Load() {
		return errors.New("parent is not verified"), nil
	}
	// If it's invalid then this block is also invalid
	if parent.Invalid.Load() {
		return nil, errors.New("parent is invalid")
	}

	expectedHeight := parent.Side.Height + 1
	if expectedHeight != block.Side.Height {
		return nil, fmt.Errorf("wrong height, expected %d", expectedHeight)
	}

	// Uncle hashes must be sorted in the ascending order to prevent cheating when the same hash is repeated multiple times
	for i, uncleId := range block.Side.Uncles {
		if i == 0 {
			continue
		}
		if block.Side.Uncles[i-1].Compare(uncleId) != -1 {
			return nil, errors.New("invalid uncle order")
		}
	}

	expectedCumulativeDifficulty := parent.Side.CumulativeDifficulty.Add(block.Side.Difficulty)

	//check uncles

	minedBlocks := make([]types.Hash, 0, len(block.Side.Uncles)*UncleBlockDepth*2+1)
	{
		tmp := parent
		n := utils.Min(UncleBlockDepth, block.Side.Height+1)
		for i := uint64(0); tmp != nil && i < n; i++ {
			minedBlocks = append(minedBlocks, tmp.SideTemplateId(c.Consensus()))
			minedBlocks = append(minedBlocks, tmp.Side.Uncles...)
			tmp = c.getParent(tmp)
		}
	}

	for _, uncleId := range block.Side.Uncles {
		// Empty hash is only used in the genesis block and only for its parent
		// Uncles can't be empty
		if uncleId == types.ZeroHash {
			return nil, errors.New("empty uncle hash")
		}

		// Can't mine the same uncle block twice
		if slices.Index(minedBlocks, uncleId) != -1 {
			return nil, fmt.Errorf("uncle %s has already been mined", uncleId)
		}

		uncle := c.getPoolBlockByTemplateId(uncleId)
		if uncle == nil {
			return errors.New("uncle does not exist"), nil
		}
		if !uncle.Verified.Load() {
			return errors.New("uncle is not verified"), nil
		}
		// If it's invalid then this block is also invalid
		if uncle.Invalid.Load() {
			return nil, errors.New("uncle is invalid")
		}
		if uncle.Side.Height >= block.Side.Height || (uncle.Side.Height+UncleBlockDepth < block.Side.Height) {
			return nil, fmt.Errorf("uncle at the wrong height (%d)", uncle.Side.Height)
		}

		// Check that uncle and parent have the same ancestor (they must be on the same chain)
		tmp := parent
		for tmp.Side.Height > uncle.Side.Height {
			tmp = c.getParent(tmp)
			if tmp == nil {
				return nil, errors.New("uncle from different chain (check 1)")
			}
		}

		if tmp.Side.Height < uncle.Side.Height {
			return nil, errors.New("uncle from different chain (check 2)")
		}

		sameChain := false
		tmp2 := uncle
		for j := uint64(0); j < UncleBlockDepth && tmp != nil && tmp2 != nil && (tmp.Side.Height+UncleBlockDepth >= block.Side.Height); j++ {
			if tmp.Side.Parent == tmp2.Side.Parent {
				sameChain = true
				break
			}
			tmp = c.getParent(tmp)
			tmp2 = c.getParent(tmp2)
		}
		if !sameChain {
			return nil, errors.New("uncle from different chain (check 3)")
		}

		expectedCumulativeDifficulty = expectedCumulativeDifficulty.Add(uncle.Side.Difficulty)
	}

	// We can verify this block now (all previous blocks in the window are verified and valid)
	// It can still turn out to be invalid

	if !block.Side.CumulativeDifficulty.Equals(expectedCumulativeDifficulty) {
		return nil, fmt.Errorf("wrong cumulative difficulty, got %s, expected %s", block.Side.CumulativeDifficulty.StringNumeric(), expectedCumulativeDifficulty.StringNumeric())
	}

	// Verify difficulty and miner rewards only for blocks in the PPLNS window
	if block.Depth.Load() >= c.Consensus().ChainWindowSize {
		utils.Debugf("[SideChain] block at height = %d, id = %s skipped diff/reward verification", block.Side.Height, block.SideTemplateId(c.Consensus()))
		return nil, nil
	}

	var diff types.Difficulty
	if parent == c.GetChainTip() {
		// built on top of the current chain tip, using current difficulty for verification
		diff = c.Difficulty()
	} else if diff, verification, invalid = c.getDifficulty(parent); verification != nil || invalid != nil {
		return verification, invalid
	} else if diff.IsZero() {
		return nil, errors.New("could not get difficulty")
	}
	if diff != block.Side.Difficulty {
		return nil, fmt.Errorf("wrong difficulty, got %s, expected %s", block.Side.Difficulty.StringNumeric(), diff.StringNumeric())
	}

	shares, _ := c.getShares(block, c.preAllocatedShares)
	if len(shares) == 0 {
		return nil, errors.New("could not get outputs")
	}
	if len(shares) != len(block.Side.Outputs) {
		return nil, fmt.Errorf("invalid number of outputs, got %d, expected %d", len(block.Side.Outputs), len(shares))
	}

	totalReward := block.Side.TotalReward()
	rewards := SplitReward(totalReward, shares)
	if len(rewards) != len(block.Side.Outputs) {
		return nil, fmt.Errorf("invalid number of outputs, got %d, expected %d", len(block.Side.Outputs), len(rewards))
	}

	for i := range rewards {
		out := &block.Side.Outputs[i]
		if rewards[i] != out.Reward {
			return nil, fmt.Errorf("has invalid reward at index %d, got %d, expected %d", i, out.Reward, rewards[i])
		}

		ephPublicKey, err := c.derivationCache.GetEphemeralPublicKey(&shares[i].Address, &block.Side.TransactionPrivateKey, uint64(i))
		if err != nil {
			return nil, fmt.Errorf("could not derive eph_public_key at index %d: %w", i, err)
		}
		if ephPublicKey != out.EphemeralPublicKey {
			return nil, fmt.Errorf("has incorrect eph_public_key at index %d, got %s, expected %s", i, out.EphemeralPublicKey, ephPublicKey)
		}
	}

	// All checks passed
	return nil, nil
}

// updateDepths initializes the depth of a freshly inserted block from any
// children that already reference it, then propagates depths down through
// parent and uncle edges until the store is settled again.
func (c *SideChain) updateDepths(block *PoolBlock) {
	blockId := block.SideTemplateId(c.Consensus())
	for i := uint64(1); i <= UncleBlockDepth; i++ {
		for _, child := range c.store.AtHeight(block.Side.Height + i) {
			if child.Side.Parent == blockId {
				if i != 1 {
					utils.Errorf("[SideChain] updateDepths: store is inconsistent with child's parent, id = %s", blockId)
				} else {
					block.Depth.Store(utils.Max(block.Depth.Load(), child.Depth.Load()+1))
				}
			}

			if slices.Index(child.Side.Uncles, blockId) != -1 {
				block.Depth.Store(utils.Max(block.Depth.Load(), child.Depth.Load()+i))
			}
		}
	}

	blocksToUpdate := make([]*PoolBlock, 1, 8)
	blocksToUpdate[0] = block

	for len(blocksToUpdate) != 0 {
		block = blocksToUpdate[len(blocksToUpdate)-1]
		blocksToUpdate = blocksToUpdate[:len(blocksToUpdate)-1]

		blockDepth := block.Depth.Load()
		// Verify this block and possibly other blocks on top of it when we're sure it will get verified
		if !block.Verified.Load() && (blockDepth >= c.Consensus().ChainWindowSize*2 || block.Side.Height == 0) {
			_ = c.verifyLoop(block)
		}

		if parent := c.getParent(block); parent != nil {
			if parent.Side.Height+1 != block.Side.Height {
				utils.Errorf("[SideChain] updateDepths: side height is inconsistent with block's parent, id = %s", block.Side.Parent)
			}

			if parent.Depth.Load() < blockDepth+1 {
				parent.Depth.Store(blockDepth + 1)
				blocksToUpdate = append(blocksToUpdate, parent)
			}
		}

		for _, uncleId := range block.Side.Uncles {
			uncle := c.getPoolBlockByTemplateId(uncleId)
			if uncle == nil {
				continue
			}

			if uncle.Side.Height >= block.Side.Height || (uncle.Side.Height+UncleBlockDepth < block.Side.Height) {
				utils.Errorf("[SideChain] updateDepths: side height is inconsistent with block's uncles, id = %s", uncleId)
			}

			d := block.Side.Height - uncle.Side.Height
			if uncle.Depth.Load() < blockDepth+d {
				uncle.Depth.Store(blockDepth + d)
				blocksToUpdate = append(blocksToUpdate, uncle)
			}
		}
	}
}

func (c *SideChain) updateChainTip(block *PoolBlock) {
	if !block.Verified.Load() || block.Invalid.Load() {
		utils.Errorf("[SideChain] trying to update chain tip to an unverified or invalid block, fix the code!")
		return
	}

	if block.Depth.Load() >= c.Consensus().ChainWindowSize {
		utils.Debugf("[SideChain] trying to update chain tip to a block with depth %d, ignoring it", block.Depth.Load())
		return
	}

	tip := c.GetChainTip()

	if block == tip {
		utils.Debugf("[SideChain] trying to update chain tip to the same block again, ignoring it")
		return
	}

	if isLongerChain, isAlternative := c.isLongerChain(tip, block); isLongerChain {
		if diff, _, _ := c.getDifficulty(block); !diff.IsZero() {
			c.chainTip.Store(block)
			c.currentDifficulty.Store(&diff)

			utils.Logf("[SideChain] new chain tip: next height = %d, next difficulty = %s, mainchain height = %d", block.Side.Height+1, diff.StringNumeric(), block.Side.GenHeight)

			block.WantBroadcast.Store(true)
			c.server.UpdateTip(block)
			c.server.UpdateBlockTemplate()

			if isAlternative {
				c.derivationCache.Clear()

				utils.Logf("[SideChain] SYNCHRONIZED to tip %s", block.SideTemplateId(c.Consensus()))
			}

			c.pruneOldBlocks()
		}
	} else if tip != nil && block.Side.Height > tip.Side.Height {
		utils.Debugf("[SideChain] block %s, height = %d, is not a longer chain than %s, height = %d", block.SideTemplateId(c.Consensus()), block.Side.Height, tip.SideTemplateId(c.Consensus()), tip.Side.Height)
	} else if tip != nil && block.Side.Height+UncleBlockDepth > tip.Side.Height {
		utils.Debugf("[SideChain] possible uncle block: id = %s, height = %d", block.SideTemplateId(c.Consensus()), block.Side.Height)
		c.server.UpdateBlockTemplate()
	}

	if block.WantBroadcast.Load() && !block.Broadcasted.Swap(true) {
		c.server.Broadcast(block)
	}
}

// pruneOldBlocks removes blocks at least pruneDistance below the tip whose
// depth is at least pruneDistance, where pruneDistance is twice the window
// plus one base-chain block time (two minutes) worth of sidechain blocks.
// References from pruned
// heights leave the store consistent: any remaining block's missing
// parent/uncles are below the pruning horizon.
func (c *SideChain) pruneOldBlocks() {
	// Leave 2 minutes worth of spare blocks in addition to 2xPPLNS window for lagging nodes which need to sync
	pruneDistance := c.Consensus().ChainWindowSize*2 + mainChainBlockTime/c.Consensus().TargetBlockTime

	tip := c.GetChainTip()
	if tip == nil || tip.Side.Height < pruneDistance {
		return
	}

	h := tip.Side.Height - pruneDistance

	numBlocksPruned := 0
	c.store.EachHeight(func(height uint64, blocks []*PoolBlock) bool {
		if height > h {
			return true
		}

		// loop backwards for proper deletions
		for i := len(blocks) - 1; i >= 0; i-- {
			block := blocks[i]
			if block.Depth.Load() < pruneDistance {
				continue
			}
			if c.store.Remove(block.SideTemplateId(c.Consensus())) {
				numBlocksPruned++
			} else {
				utils.Errorf("[SideChain] blocksByHeight and blocksByTemplateId are inconsistent at height = %d, id = %s", height, block.SideTemplateId(c.Consensus()))
			}
		}
		return true
	})

	if numBlocksPruned > 0 {
		utils.Debugf("[SideChain] pruned %d old blocks at heights <= %d", numBlocksPruned, h)
	}
}

// GetMissingBlocks parent/uncle ids referenced by unverified blocks that are
// not present in the store
func (c *SideChain) GetMissingBlocks() []types.Hash {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()

	missingBlocks := make([]types.Hash, 0)

	c.store.EachBlock(func(b *PoolBlock) bool {
		if b.Verified.Load() {
			return true
		}

		if b.Side.Parent != types.ZeroHash && c.getPoolBlockByTemplateId(b.Side.Parent) == nil {
			missingBlocks = append(missingBlocks, b.Side.Parent)
		}

		missingUncles := 0

		for _, uncleId := range b.Side.Uncles {
			if uncleId != types.ZeroHash && c.getPoolBlockByTemplateId(uncleId) == nil {
				missingBlocks = append(missingBlocks, uncleId)
				missingUncles++

				// Get no more than 2 first missing uncles at a time from each block
				// Blocks with more than 2 uncles are very rare and they will be processed in several steps
				if missingUncles >= 2 {
					break
				}
			}
		}
		return true
	})

	return missingBlocks
}

// FillSideChainData prepares a locally built candidate block: links it to the
// current tip, selects includable uncles from the last UncleBlockDepth
// heights, and returns the share list the template's rewards must follow.
func (c *SideChain) FillSideChainData(block *PoolBlock, minerWallet wallet.PackedAddress, txKeySec crypto.PrivateKeyBytes) (shares Shares, err error) {
	c.sidechainLock.Lock()
	defer c.sidechainLock.Unlock()

	block.Side.MinerWallet = minerWallet
	block.Side.TransactionPrivateKey = txKeySec
	block.Side.Uncles = nil

	tip := c.GetChainTip()

	if tip == nil {
		block.Side.Parent = types.ZeroHash
		block.Side.Height = 0
		block.Side.Difficulty = types.DifficultyFrom64(c.Consensus().MinimumDifficulty)
		block.Side.CumulativeDifficulty = block.Side.Difficulty

		shares, _ = c.getShares(block, c.preAllocatedShares)
		if shares == nil {
			return nil, errors.New("could not get shares for genesis template")
		}
		return shares.Clone(), nil
	}

	block.Side.Parent = tip.SideTemplateId(c.Consensus())
	block.Side.Height = tip.Side.Height + 1

	// First get a list of already mined blocks at the possible uncle heights
	minedBlocks := make([]types.Hash, 0, UncleBlockDepth*2+1)
	{
		tmp := tip
		n := utils.Min(UncleBlockDepth, tip.Side.Height+1)
		for i := uint64(0); tmp != nil && i < n; i++ {
			minedBlocks = append(minedBlocks, tmp.SideTemplateId(c.Consensus()))
			minedBlocks = append(minedBlocks, tmp.Side.Uncles...)
			tmp = c.getParent(tmp)
		}
	}

	for i, n := uint64(0), utils.Min(UncleBlockDepth, tip.Side.Height+1); i < n; i++ {
		for _, uncle := range c.store.AtHeight(tip.Side.Height - i) {
			// Only add verified and valid blocks
			if !uncle.Verified.Load() || uncle.Invalid.Load() {
				continue
			}

			uncleId := uncle.SideTemplateId(c.Consensus())

			// Only add it if it hasn't been mined already
			if slices.Index(minedBlocks, uncleId) != -1 {
				continue
			}

			// Only add it if it's on the same chain
			if !c.isOnSameChain(tip, uncle, block.Side.Height) {
				utils.Debugf("[SideChain] block template at height %d: uncle block %s (height %d) is not on the same chain", block.Side.Height, uncleId, uncle.Side.Height)
				continue
			}

			block.Side.Uncles = append(block.Side.Uncles, uncleId)
			utils.Debugf("[SideChain] block template at height %d: added %s (height %d) as an uncle block", block.Side.Height, uncleId, uncle.Side.Height)
		}
	}

	// Sort uncles and remove duplicates
	if len(block.Side.Uncles) > 1 {
		slices.SortFunc(block.Side.Uncles, func(a, b types.Hash) bool {
			return a.Compare(b) < 0
		})
		block.Side.Uncles = slices.Compact(block.Side.Uncles)
	}

	block.Side.Difficulty = c.Difficulty()
	block.Side.CumulativeDifficulty = tip.Side.CumulativeDifficulty.Add(block.Side.Difficulty)

	for _, uncleId := range block.Side.Uncles {
		uncle := c.getPoolBlockByTemplateId(uncleId)
		if uncle == nil {
			utils.Errorf("[SideChain] block template has an unknown uncle block %s, fix the code!", uncleId)
			continue
		}
		block.Side.CumulativeDifficulty = block.Side.CumulativeDifficulty.Add(uncle.Side.Difficulty)
	}

	shares, _ = c.getShares(block, c.preAllocatedShares)
	if shares == nil {
		return nil, errors.New("could not get shares for template")
	}
	return shares.Clone(), nil
}

// isOnSameChain the same-chain proof used for uncle candidates: walk the tip
// back to the candidate's height, then look for a shared parent within uncle
// range.
func (c *SideChain) isOnSameChain(tip, candidate *PoolBlock, templateHeight uint64) bool {
	tmp := tip
	for tmp != nil && tmp.Side.Height > candidate.Side.Height {
		tmp = c.getParent(tmp)
	}
	if tmp == nil || tmp.Side.Height < candidate.Side.Height {
		return false
	}

	tmp2 := candidate
	for j := uint64(0); j < UncleBlockDepth && tmp != nil && tmp2 != nil && (tmp.Side.Height+UncleBlockDepth >= templateHeight); j++ {
		if tmp.Side.Parent == tmp2.Side.Parent {
			return true
		}
		tmp = c.getParent(tmp)
		tmp2 = c.getParent(tmp2)
	}
	return false
}

// GetOutputsBlob computes the output set paying totalReward across the
// block's window, stores it on the block and returns the serialized form:
// varint(N) || (varint(reward) || 0x02 || eph_pubkey)*
func (c *SideChain) GetOutputsBlob(block *PoolBlock, totalReward uint64) ([]byte, error) {
	c.sidechainLock.Lock()
	defer c.sidechainLock.Unlock()

	preAllocatedShares := c.preAllocatedSharesPool.Get().(Shares)
	defer c.preAllocatedSharesPool.Put(preAllocatedShares)

	outputs, _ := CalculateOutputs(block, c.Consensus(), totalReward, c.getPoolBlockByTemplateId, c.derivationCache, preAllocatedShares)
	if outputs == nil {
		return nil, errors.New("could not calculate outputs")
	}

	block.Side.Outputs = outputs

	blob := make([]byte, 0, utils.UVarInt64Size(len(outputs))+len(outputs)*(10+1+types.HashSize))
	return block.Side.AppendOutputsBlob(blob), nil
}

// GetBlockBlob the relayed form of a stored block; an empty id returns the
// current tip
func (c *SideChain) GetBlockBlob(id types.Hash) ([]byte, error) {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()

	var block *PoolBlock
	if id == types.ZeroHash {
		block = c.GetChainTip()
	} else {
		block = c.getPoolBlockByTemplateId(id)
	}

	if block == nil {
		return nil, errors.New("block not found")
	}

	return block.Blob()
}

// PrintStatus logs hashrate estimates and window composition
func (c *SideChain) PrintStatus() {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()

	poolHashrate := c.Difficulty().Div64(c.Consensus().TargetBlockTime)

	tip := c.GetChainTip()
	tipHeight := uint64(0)
	if tip != nil {
		tipHeight = tip.Side.Height
	}

	var totalBlocksInWindow, totalUnclesInWindow uint64

	var blockDepth uint64
	for cur := tip; cur != nil; cur = c.getParent(cur) {
		totalBlocksInWindow++
		for _, uncleId := range cur.Side.Uncles {
			if uncle := c.getPoolBlockByTemplateId(uncleId); uncle != nil && (tipHeight-uncle.Side.Height) < c.Consensus().ChainWindowSize {
				totalUnclesInWindow++
			}
		}

		blockDepth++
		if blockDepth >= c.Consensus().ChainWindowSize || cur.Side.Height == 0 {
			break
		}
	}

	utils.Logf("[SideChain] sidechain status: height = %d, id = %s, blocks in window = %d, uncles in window = %d, pool hashrate = %s H/s, stored blocks = %d",
		tipHeight, func() string {
			if tip == nil {
				return types.ZeroHash.String()
			}
			return tip.SideTemplateId(c.Consensus()).String()
		}(), totalBlocksInWindow, totalUnclesInWindow, poolHashrate.StringNumeric(), c.store.Count())

	if minerData := c.server.GetMinerDataTip(); minerData != nil {
		networkHashrate := minerData.Difficulty.Div64(mainChainBlockTime)
		utils.Logf("[SideChain] mainchain status: height = %d, network hashrate = %s H/s", minerData.Height, networkHashrate.StringNumeric())
	}
}

func (c *SideChain) getShares(tip *PoolBlock, preAllocatedShares Shares) (shares Shares, bottomHeight uint64) {
	return GetShares(tip, c.Consensus(), c.getPoolBlockByTemplateId, preAllocatedShares)
}

func (c *SideChain) GetDifficulty(tip *PoolBlock) (difficulty types.Difficulty, verifyError, invalidError error) {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()
	return c.getDifficulty(tip)
}

func (c *SideChain) getDifficulty(tip *PoolBlock) (difficulty types.Difficulty, verifyError, invalidError error) {
	return NextDifficulty(tip, c.Consensus(), c.getPoolBlockByTemplateId, c.preAllocatedDifficultyData, c.preAllocatedTimestampDifferences)
}

func (c *SideChain) GetParent(block *PoolBlock) *PoolBlock {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()
	return c.getParent(block)
}

func (c *SideChain) getParent(block *PoolBlock) *PoolBlock {
	return c.getPoolBlockByTemplateId(block.Side.Parent)
}

func (c *SideChain) GetPoolBlockByTemplateId(id types.Hash) *PoolBlock {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()
	return c.getPoolBlockByTemplateId(id)
}

func (c *SideChain) getPoolBlockByTemplateId(id types.Hash) *PoolBlock {
	return c.store.Get(id)
}

func (c *SideChain) GetPoolBlocksByHeight(height uint64) []*PoolBlock {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()
	return slices.Clone(c.store.AtHeight(height))
}

func (c *SideChain) GetPoolBlockCount() int {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()
	return c.store.Count()
}

func (c *SideChain) IsLongerChain(block, candidate *PoolBlock) (isLonger, isAlternative bool) {
	c.sidechainLock.RLock()
	defer c.sidechainLock.RUnlock()
	return c.isLongerChain(block, candidate)
}

func (c *SideChain) isLongerChain(block, candidate *PoolBlock) (isLonger, isAlternative bool) {
	return IsLongerChain(block, candidate, c.Consensus(), c.getPoolBlockByTemplateId, func(h types.Hash) *ChainMain {
		if h == types.ZeroHash {
			return c.server.GetChainMainTip()
		}
		return c.server.GetChainMainByHash(h)
	})
}
