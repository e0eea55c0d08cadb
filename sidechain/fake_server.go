package sidechain

import (
	"sync"
	"sync/atomic"

	"git.gammaspectra.live/P2Pool/sharechain/types"
)

// FakeServer an in-memory collaborator for tests and tools: a settable
// base-chain view and no-op outbound calls with counters.
type FakeServer struct {
	consensus *Consensus

	lock      sync.RWMutex
	chainMain map[types.Hash]*ChainMain
	tip       *ChainMain
	minerData *MinerData
	seed      types.Hash

	BroadcastCount           atomic.Uint64
	UpdateTipCount           atomic.Uint64
	UpdateBlockTemplateCount atomic.Uint64
}

func GetFakeTestServer(consensus *Consensus) *FakeServer {
	return &FakeServer{
		consensus: consensus,
		chainMain: make(map[types.Hash]*ChainMain),
		seed:      types.MustHashFromString("0202020202020202020202020202020202020202020202020202020202020202"),
	}
}

func (s *FakeServer) Consensus() *Consensus {
	return s.consensus
}

func (s *FakeServer) UpdateTip(tip *PoolBlock) {
	s.UpdateTipCount.Add(1)
}

func (s *FakeServer) UpdateBlockTemplate() {
	s.UpdateBlockTemplateCount.Add(1)
}

func (s *FakeServer) Broadcast(block *PoolBlock) {
	s.BroadcastCount.Add(1)
}

func (s *FakeServer) AddChainMain(data *ChainMain) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.chainMain[data.Id] = data
	if s.tip == nil || data.Height > s.tip.Height {
		s.tip = data
	}
}

func (s *FakeServer) SetMinerData(data *MinerData) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.minerData = data
}

func (s *FakeServer) GetChainMainByHash(hash types.Hash) *ChainMain {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.chainMain[hash]
}

func (s *FakeServer) GetChainMainTip() *ChainMain {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.tip != nil {
		return s.tip
	}
	if s.minerData != nil {
		return &ChainMain{Height: s.minerData.Height, Difficulty: s.minerData.Difficulty}
	}
	return nil
}

func (s *FakeServer) GetMinerDataTip() *MinerData {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.minerData
}

func (s *FakeServer) GetSeedByHeight(height uint64) types.Hash {
	return s.seed
}
