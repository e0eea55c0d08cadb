package sidechain

import (
	"errors"
	"strconv"

	"git.gammaspectra.live/P2Pool/sharechain/crypto"
	"git.gammaspectra.live/P2Pool/sharechain/randomx"
	"git.gammaspectra.live/P2Pool/sharechain/types"
	"git.gammaspectra.live/P2Pool/sharechain/utils"
)

const (
	UncleBlockDepth = 3
)

type ConsensusProvider interface {
	Consensus() *Consensus
}

const (
	SmallestMinimumDifficulty = 1000
	LargestMinimumDifficulty  = 1000000000

	LargestTargetBlockTime = 120
)

const (
	DefaultPoolName          = "default"
	DefaultTargetBlockTime   = 1
	DefaultMinimumDifficulty = SmallestMinimumDifficulty
	DefaultChainWindowSize   = 2160
	DefaultUnclePenalty      = 20
)

// Consensus the configuration one sidechain instance is bound to. Two pools
// with different consensus ids are disjoint networks.
type Consensus struct {
	PoolName          string `json:"name"`
	PoolPassword      string `json:"password"`
	TargetBlockTime   uint64 `json:"block_time"`
	MinimumDifficulty uint64 `json:"min_diff"`
	ChainWindowSize   uint64 `json:"pplns_window"`
	UnclePenalty      uint64 `json:"uncle_penalty"`

	hasher randomx.Hasher

	id types.Hash
}

func NewConsensus(poolName, poolPassword string, targetBlockTime, minimumDifficulty, chainWindowSize, unclePenalty uint64) *Consensus {
	c := &Consensus{
		PoolName:          poolName,
		PoolPassword:      poolPassword,
		TargetBlockTime:   targetBlockTime,
		MinimumDifficulty: minimumDifficulty,
		ChainWindowSize:   chainWindowSize,
		UnclePenalty:      unclePenalty,
	}

	if !c.verify() {
		return nil
	}
	return c
}

func NewConsensusFromJSON(data []byte) (*Consensus, error) {
	var c Consensus
	if err := utils.UnmarshalJSON(data, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	if !c.verify() {
		return nil, errors.New("could not verify consensus")
	}

	return &c, nil
}

func (c *Consensus) applyDefaults() {
	if c.PoolName == "" {
		c.PoolName = DefaultPoolName
	}
	if c.TargetBlockTime == 0 {
		c.TargetBlockTime = DefaultTargetBlockTime
	}
	if c.MinimumDifficulty == 0 {
		c.MinimumDifficulty = DefaultMinimumDifficulty
	}
	if c.ChainWindowSize == 0 {
		c.ChainWindowSize = DefaultChainWindowSize
	}
	if c.UnclePenalty == 0 {
		c.UnclePenalty = DefaultUnclePenalty
	}
}

func (c *Consensus) verify() bool {
	if len(c.PoolName) < 1 || len(c.PoolName) > 128 {
		return false
	}

	if len(c.PoolPassword) > 128 {
		return false
	}

	if c.TargetBlockTime < 1 || c.TargetBlockTime > LargestTargetBlockTime {
		return false
	}

	if c.MinimumDifficulty < SmallestMinimumDifficulty || c.MinimumDifficulty > LargestMinimumDifficulty {
		return false
	}

	if c.ChainWindowSize < 60 || c.ChainWindowSize > 2160 {
		return false
	}

	if c.UnclePenalty < 1 || c.UnclePenalty > 99 {
		return false
	}

	c.id = c.CalculateId()
	if c.id == types.ZeroHash {
		return false
	}

	return true
}

// CalculateSideTemplateId the content-addressed identity of a share: main
// blob, side blob and the consensus id, hashed together.
func (c *Consensus) CalculateSideTemplateId(share *PoolBlock) types.Hash {
	mainData := share.MainChainData
	sideData, _ := share.Side.MarshalBinary()

	return c.CalculateSideChainIdFromBlobs(mainData, sideData)
}

func (c *Consensus) CalculateSideChainIdFromBlobs(mainBlob, sideBlob []byte) types.Hash {
	return crypto.PooledKeccak256(mainBlob, sideBlob, c.id[:])
}

func (c *Consensus) Id() types.Hash {
	if c.id == types.ZeroHash {
		//this data race is fine
		c.id = c.CalculateId()
		return c.id
	}
	return c.id
}

func (c *Consensus) InitHasher(hasher randomx.Hasher) {
	if c.hasher != nil {
		c.hasher.Close()
	}
	c.hasher = hasher
}

func (c *Consensus) GetHasher() randomx.Hasher {
	if c.hasher == nil {
		utils.Panicf("hasher has not been initialized in consensus")
	}
	return c.hasher
}

// CalculateId every config field, each followed by a NUL byte, through the
// consensus hash. The exact bit pattern is the shared-secret identifier of a
// private pool and is never transmitted over the wire.
func (c *Consensus) CalculateId() types.Hash {
	var buf []byte
	buf = append(buf, c.PoolName...)
	buf = append(buf, 0)
	buf = append(buf, c.PoolPassword...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatUint(c.TargetBlockTime, 10)...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatUint(c.MinimumDifficulty, 10)...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatUint(c.ChainWindowSize, 10)...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatUint(c.UnclePenalty, 10)...)
	buf = append(buf, 0)

	return randomx.ConsensusHash(buf)
}
