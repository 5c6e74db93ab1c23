package lchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/pow"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/persist/storage/memstore"
	"github.com/ledgerforge/chaincore/util"
)

const testBits = 0x207fffff

func coinbaseBlock(prev util.Hash, nonce uint32) *block.Block {
	coinbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{tx.NewCoinBaseInput([]byte{byte(nonce)}, 0xffffffff)},
		Outputs: []tx.TxOutput{{Value: 50}},
	}
	return &block.Block{
		Header: block.BlockHeader{
			Version:       1,
			HashPrevBlock: prev,
			Time:          uint32(nonce) + 1,
			Bits:          testBits,
			Nonce:         nonce,
		},
		Transactions: []*tx.Transaction{coinbase},
	}
}

func spendBlock(prev util.Hash, nonce uint32, spend outpoint.OutPoint) *block.Block {
	coinbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{tx.NewCoinBaseInput([]byte{byte(nonce)}, 0xffffffff)},
		Outputs: []tx.TxOutput{{Value: 50}},
	}
	spender := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: spend}},
		Outputs: []tx.TxOutput{{Value: 49}},
	}
	return &block.Block{
		Header: block.BlockHeader{
			Version:       1,
			HashPrevBlock: prev,
			Time:          uint32(nonce) + 1,
			Bits:          testBits,
			Nonce:         nonce,
		},
		Transactions: []*tx.Transaction{coinbase, spender},
	}
}

func TestNewChildIndexGenesis(t *testing.T) {
	blk := coinbaseBlock(util.HashZero, 1)
	idx := NewChildIndex(blk.Header, nil)
	assert.Equal(t, int32(0), idx.Height)
	assert.Equal(t, 0, pow.BlockProof(testBits).Cmp(&idx.ChainWork))
}

func TestNewChildIndexBuildsOnParent(t *testing.T) {
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)

	child := coinbaseBlock(genesis.GetHash(), 2)
	childIdx := NewChildIndex(child.Header, genesisIdx)

	assert.Equal(t, int32(1), childIdx.Height)
	assert.Same(t, genesisIdx, childIdx.Prev)

	expected := new(big.Int).Add(&genesisIdx.ChainWork, pow.BlockProof(testBits))
	assert.Equal(t, 0, expected.Cmp(&childIdx.ChainWork))
}

func TestAttachStagesBlockAndUTXOEffects(t *testing.T) {
	store := memstore.New()
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)

	b := store.NewBatch()
	require.NoError(t, Attach(store, b, genesis, genesisIdx))
	require.NoError(t, b.Commit())

	best, ok := store.GetBestBlockHash()
	require.True(t, ok)
	assert.Equal(t, genesis.GetHash(), best)

	desc, ok := store.GetTransactionDescriptor(genesis.Transactions[0].GetHash())
	require.True(t, ok)
	assert.Equal(t, storage.LocationChain, desc.Location)
	assert.Len(t, desc.Spends, 1)
	assert.False(t, desc.Spends[0].Spent)
}

func TestAttachMarksSpendOfEarlierBlockOutput(t *testing.T) {
	store := memstore.New()
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)
	b0 := store.NewBatch()
	require.NoError(t, Attach(store, b0, genesis, genesisIdx))
	require.NoError(t, b0.Commit())

	coinbaseHash := genesis.Transactions[0].GetHash()
	blk2 := spendBlock(genesis.GetHash(), 2, outpoint.New(coinbaseHash, 0))
	idx2 := NewChildIndex(blk2.Header, genesisIdx)

	b := store.NewBatch()
	require.NoError(t, Attach(store, b, blk2, idx2))
	require.NoError(t, b.Commit())

	desc, ok := store.GetTransactionDescriptor(coinbaseHash)
	require.True(t, ok)
	require.True(t, desc.Spends[0].Spent)

	spenderHash := blk2.Transactions[1].GetHash()
	spenderDesc, ok := store.GetTransactionDescriptor(spenderHash)
	require.True(t, ok)
	assert.Equal(t, blk2.GetHash(), spenderDesc.BlockHash)
	assert.Equal(t, 1, spenderDesc.TxIndex)
}

func TestDetachReversesAttach(t *testing.T) {
	store := memstore.New()
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)
	b0 := store.NewBatch()
	require.NoError(t, Attach(store, b0, genesis, genesisIdx))
	require.NoError(t, b0.Commit())

	coinbaseHash := genesis.Transactions[0].GetHash()
	blk2 := spendBlock(genesis.GetHash(), 2, outpoint.New(coinbaseHash, 0))
	idx2 := NewChildIndex(blk2.Header, genesisIdx)
	b1 := store.NewBatch()
	require.NoError(t, Attach(store, b1, blk2, idx2))
	require.NoError(t, b1.Commit())

	b2 := store.NewBatch()
	require.NoError(t, Detach(store, b2, blk2, idx2))
	require.NoError(t, b2.Commit())

	desc, ok := store.GetTransactionDescriptor(coinbaseHash)
	require.True(t, ok)
	assert.False(t, desc.Spends[0].Spent)

	_, ok = store.GetTransactionDescriptor(blk2.Transactions[1].GetHash())
	assert.False(t, ok)

	best, ok := store.GetBestBlockHash()
	require.True(t, ok)
	assert.Equal(t, genesis.GetHash(), best)

	_, ok = store.GetBlockHashByHeight(1)
	assert.False(t, ok)
}

func TestForkPointFindsCommonAncestor(t *testing.T) {
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)

	a1 := coinbaseBlock(genesis.GetHash(), 2)
	a1Idx := NewChildIndex(a1.Header, genesisIdx)
	a2 := coinbaseBlock(a1.GetHash(), 3)
	a2Idx := NewChildIndex(a2.Header, a1Idx)

	b1 := coinbaseBlock(genesis.GetHash(), 4)
	b1Idx := NewChildIndex(b1.Header, genesisIdx)

	fork := forkPoint(a2Idx, b1Idx)
	require.NotNil(t, fork)
	assert.Equal(t, genesis.GetHash(), fork.GetBlockHash())
}

func TestReorganizeSwitchesToHigherWorkFork(t *testing.T) {
	store := memstore.New()
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)
	b0 := store.NewBatch()
	require.NoError(t, Attach(store, b0, genesis, genesisIdx))
	require.NoError(t, b0.Commit())

	oldTip := coinbaseBlock(genesis.GetHash(), 2)
	oldTipIdx := NewChildIndex(oldTip.Header, genesisIdx)
	b1 := store.NewBatch()
	require.NoError(t, Attach(store, b1, oldTip, oldTipIdx))
	require.NoError(t, b1.Commit())

	newA := coinbaseBlock(genesis.GetHash(), 3)
	newAIdx := NewChildIndex(newA.Header, genesisIdx)
	newB := coinbaseBlock(newA.GetHash(), 4)
	newBIdx := NewChildIndex(newB.Header, newAIdx)

	blocksByHash := map[util.Hash]*block.Block{
		newA.GetHash(): newA,
		newB.GetHash(): newB,
	}
	loadBlock := func(idx *blockindex.BlockIndex) (*block.Block, error) {
		return blocksByHash[idx.GetBlockHash()], nil
	}

	result, err := Reorganize(store, oldTipIdx, newBIdx, loadBlock)
	require.NoError(t, err)
	require.Len(t, result.Detached, 1)
	assert.Equal(t, oldTip.GetHash(), result.Detached[0].GetBlockHash())
	require.Len(t, result.Attached, 2)
	assert.Equal(t, newA.GetHash(), result.Attached[0].GetBlockHash())
	assert.Equal(t, newB.GetHash(), result.Attached[1].GetBlockHash())

	best, ok := store.GetBestBlockHash()
	require.True(t, ok)
	assert.Equal(t, newB.GetHash(), best)

	h1, ok := store.GetBlockHashByHeight(1)
	require.True(t, ok)
	assert.Equal(t, newA.GetHash(), h1)
}

func TestReorganizeAttachesCrossBlockSpendWithinNewBranch(t *testing.T) {
	store := memstore.New()
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)
	b0 := store.NewBatch()
	require.NoError(t, Attach(store, b0, genesis, genesisIdx))
	require.NoError(t, b0.Commit())

	oldTip := coinbaseBlock(genesis.GetHash(), 2)
	oldTipIdx := NewChildIndex(oldTip.Header, genesisIdx)
	b1 := store.NewBatch()
	require.NoError(t, Attach(store, b1, oldTip, oldTipIdx))
	require.NoError(t, b1.Commit())

	// newA's coinbase output is spent by newB, both new to this reorg and
	// neither ever committed to store before Reorganize runs — newB's
	// attach must see newA's just-staged descriptor write.
	newA := coinbaseBlock(genesis.GetHash(), 3)
	newAIdx := NewChildIndex(newA.Header, genesisIdx)
	newB := spendBlock(newA.GetHash(), 4, outpoint.New(newA.Transactions[0].GetHash(), 0))
	newBIdx := NewChildIndex(newB.Header, newAIdx)

	blocksByHash := map[util.Hash]*block.Block{
		newA.GetHash(): newA,
		newB.GetHash(): newB,
	}
	loadBlock := func(idx *blockindex.BlockIndex) (*block.Block, error) {
		return blocksByHash[idx.GetBlockHash()], nil
	}

	result, err := Reorganize(store, oldTipIdx, newBIdx, loadBlock)
	require.NoError(t, err)
	require.Len(t, result.Attached, 2)

	desc, ok := store.GetTransactionDescriptor(newA.Transactions[0].GetHash())
	require.True(t, ok)
	assert.True(t, desc.Spends[0].Spent)

	best, ok := store.GetBestBlockHash()
	require.True(t, ok)
	assert.Equal(t, newB.GetHash(), best)
}

func TestReorganizeRejectsLowerOrEqualWork(t *testing.T) {
	store := memstore.New()
	genesis := coinbaseBlock(util.HashZero, 1)
	genesisIdx := NewChildIndex(genesis.Header, nil)
	b0 := store.NewBatch()
	require.NoError(t, Attach(store, b0, genesis, genesisIdx))
	require.NoError(t, b0.Commit())

	oldTip := coinbaseBlock(genesis.GetHash(), 2)
	oldTipIdx := NewChildIndex(oldTip.Header, genesisIdx)
	b1 := store.NewBatch()
	require.NoError(t, Attach(store, b1, oldTip, oldTipIdx))
	require.NoError(t, b1.Commit())

	rivalTip := coinbaseBlock(genesis.GetHash(), 3)
	rivalTipIdx := NewChildIndex(rivalTip.Header, genesisIdx)

	loadBlock := func(idx *blockindex.BlockIndex) (*block.Block, error) {
		return rivalTip, nil
	}

	_, err := Reorganize(store, oldTipIdx, rivalTipIdx, loadBlock)
	require.Error(t, err)
	assert.True(t, errcode.IsErrorCode(err, errcode.ErrReorgFailed))

	best, ok := store.GetBestBlockHash()
	require.True(t, ok)
	assert.Equal(t, oldTip.GetHash(), best)
}
