package sidechain

import (
	"testing"

	"git.gammaspectra.live/P2Pool/sharechain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeTestBlock(height uint64) (types.Hash, *PoolBlock) {
	b := &PoolBlock{}
	b.Side.Height = height
	id := types.Hash{0xe0, byte(height)}
	b.cache.templateId.Store(&id)
	return id, b
}

func TestBlockStoreInsert(t *testing.T) {
	s := NewBlockStore(0)

	id, b := storeTestBlock(1)
	require.NoError(t, s.Insert(id, b))
	require.ErrorIs(t, s.Insert(id, b), ErrAlreadyPresent)

	assert.Equal(t, b, s.Get(id))
	assert.Equal(t, 1, s.Count())

	assert.Len(t, s.AtHeight(1), 1)
	assert.Empty(t, s.AtHeight(2))
}

func TestBlockStoreRemove(t *testing.T) {
	s := NewBlockStore(0)

	id1, b1 := storeTestBlock(1)
	id2, b2 := storeTestBlock(2)
	b2.Side.Height = 1
	require.NoError(t, s.Insert(id1, b1))
	require.NoError(t, s.Insert(id2, b2))
	assert.Len(t, s.AtHeight(1), 2)

	assert.True(t, s.Remove(id1))
	assert.False(t, s.Remove(id1))

	assert.Nil(t, s.Get(id1))
	assert.Len(t, s.AtHeight(1), 1)
	assert.Equal(t, b2, s.AtHeight(1)[0])

	assert.True(t, s.Remove(id2))
	assert.Empty(t, s.AtHeight(1))
	assert.Zero(t, s.Count())
}

func TestBlockStoreMarkSeen(t *testing.T) {
	s := NewBlockStore(0)

	id := types.Hash{0x01}
	assert.True(t, s.MarkSeen(id))
	assert.False(t, s.MarkSeen(id))
}
