package blockindex

import (
	"testing"

	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain links count blocks, genesis first, wiring Prev/Height/Skip the
// way lchain.NewChildIndex does.
func buildChain(count int) []*BlockIndex {
	indexes := make([]*BlockIndex, count)
	var prevHash util.Hash
	for i := 0; i < count; i++ {
		h := block.BlockHeader{HashPrevBlock: prevHash, Time: uint32(i)}
		bi := NewBlockIndex(h)
		bi.Height = int32(i)
		if i > 0 {
			bi.Prev = indexes[i-1]
			bi.BuildSkip()
		}
		indexes[i] = bi
		prevHash = bi.GetBlockHash()
	}
	return indexes
}

func TestGetAncestorWalksBack(t *testing.T) {
	chain := buildChain(50)
	tip := chain[49]
	for h := int32(0); h < 50; h++ {
		anc := tip.GetAncestor(h)
		require.NotNil(t, anc)
		assert.Equal(t, h, anc.Height)
		assert.Equal(t, chain[h].GetBlockHash(), anc.GetBlockHash())
	}
}

func TestGetAncestorOutOfRange(t *testing.T) {
	chain := buildChain(5)
	tip := chain[4]
	assert.Nil(t, tip.GetAncestor(-1))
	assert.Nil(t, tip.GetAncestor(5))
}

func TestIsGenesis(t *testing.T) {
	chain := buildChain(2)
	assert.True(t, chain[0].IsGenesis())
	assert.False(t, chain[1].IsGenesis())
}
