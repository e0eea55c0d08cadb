package sidechain

import (
	"errors"

	"git.gammaspectra.live/P2Pool/sharechain/types"
)

// ErrAlreadyPresent insertion of a block whose id is already stored
var ErrAlreadyPresent = errors.New("block already present")

// BlockStore in-memory indices over the block graph: by id, by height, and
// the set of ids seen at ingress. It does no locking; every caller holds the
// sidechain lock.
type BlockStore struct {
	byTemplateId map[types.Hash]*PoolBlock
	byHeight     map[uint64][]*PoolBlock
	seenIds      map[types.Hash]struct{}
}

func NewBlockStore(preAllocatedCapacity uint64) *BlockStore {
	return &BlockStore{
		byTemplateId: make(map[types.Hash]*PoolBlock, preAllocatedCapacity),
		byHeight:     make(map[uint64][]*PoolBlock, preAllocatedCapacity),
		seenIds:      make(map[types.Hash]struct{}, preAllocatedCapacity),
	}
}

func (s *BlockStore) Insert(id types.Hash, block *PoolBlock) error {
	if _, ok := s.byTemplateId[id]; ok {
		return ErrAlreadyPresent
	}

	s.byTemplateId[id] = block
	s.byHeight[block.Side.Height] = append(s.byHeight[block.Side.Height], block)
	return nil
}

func (s *BlockStore) Get(id types.Hash) *PoolBlock {
	return s.byTemplateId[id]
}

func (s *BlockStore) AtHeight(height uint64) []*PoolBlock {
	return s.byHeight[height]
}

// Remove drops the block from both indices. Returns false if the indices
// were inconsistent for this id.
func (s *BlockStore) Remove(id types.Hash) bool {
	block, ok := s.byTemplateId[id]
	if !ok {
		return false
	}
	delete(s.byTemplateId, id)

	v := s.byHeight[block.Side.Height]
	for i := range v {
		if v[i] == block {
			v = append(v[:i], v[i+1:]...)
			break
		}
	}
	if len(v) == 0 {
		delete(s.byHeight, block.Side.Height)
	} else {
		s.byHeight[block.Side.Height] = v
	}
	return true
}

// MarkSeen true if the id was newly inserted into the seen set
func (s *BlockStore) MarkSeen(id types.Hash) bool {
	if _, ok := s.seenIds[id]; ok {
		return false
	}
	s.seenIds[id] = struct{}{}
	return true
}

func (s *BlockStore) Count() int {
	return len(s.byTemplateId)
}

// EachBlock iterates the by-id index; return false to stop
func (s *BlockStore) EachBlock(f func(block *PoolBlock) bool) {
	for _, b := range s.byTemplateId {
		if !f(b) {
			return
		}
	}
}

// EachHeight iterates the by-height index; return false to stop
func (s *BlockStore) EachHeight(f func(height uint64, blocks []*PoolBlock) bool) {
	for height, blocks := range s.byHeight {
		if !f(height, blocks) {
			return
		}
	}
}
