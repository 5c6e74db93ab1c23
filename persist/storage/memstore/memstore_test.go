package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

func sampleBlock(prev util.Hash, nonce uint32) *block.Block {
	coinbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{tx.NewCoinBaseInput([]byte{0x01}, 0xffffffff)},
		Outputs: []tx.TxOutput{{Value: 5000000000, LockingScript: []byte{0xAA}}},
	}
	return &block.Block{
		Header: block.BlockHeader{
			Version:       1,
			HashPrevBlock: prev,
			MerkleRoot:    coinbase.GetHash(),
			Time:          1000,
			Bits:          0x207fffff,
			Nonce:         nonce,
		},
		Transactions: []*tx.Transaction{coinbase},
	}
}

func TestPutBlockAndGetBlock(t *testing.T) {
	s := New()
	blk := sampleBlock(util.HashZero, 1)
	idx := blockindex.NewBlockIndex(blk.Header)
	idx.Height = 0

	b := s.NewBatch()
	b.PutBlock(idx, blk)
	b.PutBestBlockHash(idx.GetBlockHash())
	b.PutBlockHashByHeight(0, idx.GetBlockHash())
	require.NoError(t, b.Commit())

	assert.True(t, s.HasBlock(idx.GetBlockHash()))
	gotIdx, gotBlk, ok := s.GetBlock(idx.GetBlockHash())
	require.True(t, ok)
	assert.Equal(t, idx.Height, gotIdx.Height)
	assert.Equal(t, blk.Header.Nonce, gotBlk.Header.Nonce)

	best, ok := s.GetBestBlockHash()
	require.True(t, ok)
	assert.Equal(t, idx.GetBlockHash(), best)

	h, ok := s.GetBlockHashByHeight(0)
	require.True(t, ok)
	assert.Equal(t, idx.GetBlockHash(), h)
}

func TestUpdateNextBlockHash(t *testing.T) {
	s := New()
	genesis := sampleBlock(util.HashZero, 1)
	genIdx := blockindex.NewBlockIndex(genesis.Header)
	genIdx.Height = 0

	b := s.NewBatch()
	b.PutBlock(genIdx, genesis)
	require.NoError(t, b.Commit())

	child := sampleBlock(genIdx.GetBlockHash(), 2)
	childHash := child.Header.GetHash()

	b2 := s.NewBatch()
	b2.UpdateNextBlockHash(genIdx.GetBlockHash(), &childHash)
	require.NoError(t, b2.Commit())

	gotIdx, ok := s.GetBlockInfo(genIdx.GetBlockHash())
	require.True(t, ok)
	require.NotNil(t, gotIdx.NextBlockHash)
	assert.Equal(t, childHash, *gotIdx.NextBlockHash)
}

func TestTransactionDescriptorChainVsPool(t *testing.T) {
	s := New()
	blk := sampleBlock(util.HashZero, 1)
	idx := blockindex.NewBlockIndex(blk.Header)
	idx.Height = 0
	coinbaseHash := blk.Transactions[0].GetHash()

	poolTx := &tx.Transaction{
		Version: 1,
		Inputs: []tx.TxInput{{
			PreviousOutput:  outpoint.New(coinbaseHash, 0),
			UnlockingScript: []byte{0x01},
			Sequence:        0xffffffff,
		}},
		Outputs: []tx.TxOutput{{Value: 100, LockingScript: []byte{0xBB}}},
	}
	poolHash := poolTx.GetHash()

	b := s.NewBatch()
	b.PutBlock(idx, blk)
	b.PutTransactionDescriptor(coinbaseHash, &storage.TransactionDescriptor{
		Location:  storage.LocationChain,
		BlockHash: idx.GetBlockHash(),
		TxIndex:   0,
	})
	b.PutTransactionToPool(poolHash, poolTx, 1)
	b.PutTransactionDescriptor(poolHash, &storage.TransactionDescriptor{
		Location:     storage.LocationPool,
		PoolSequence: 1,
	})
	require.NoError(t, b.Commit())

	gotChainTx, ok := s.GetTransaction(coinbaseHash)
	require.True(t, ok)
	assert.Equal(t, coinbaseHash, gotChainTx.GetHash())

	gotPoolTx, ok := s.GetTransaction(poolHash)
	require.True(t, ok)
	assert.Equal(t, poolHash, gotPoolTx.GetHash())
}

func TestGetOldestPoolTransactionsOrdered(t *testing.T) {
	s := New()
	b := s.NewBatch()

	var hashes []util.Hash
	for i := uint64(0); i < 5; i++ {
		t := &tx.Transaction{Version: int32(i) + 1, LockTime: uint32(i)}
		h := t.GetHash()
		hashes = append(hashes, h)
		// Descend so insertion order differs from final sort order.
		seq := 4 - i
		b.PutTransactionToPool(h, t, seq)
		b.PutTransactionDescriptor(h, &storage.TransactionDescriptor{
			Location:     storage.LocationPool,
			PoolSequence: seq,
		})
	}
	require.NoError(t, b.Commit())

	oldest := s.GetOldestPoolTransactions(3)
	require.Len(t, oldest, 3)
	// Sequence 0 belongs to the last-inserted hash (i == 4).
	assert.Equal(t, hashes[4], oldest[0])
	assert.Equal(t, hashes[3], oldest[1])
	assert.Equal(t, hashes[2], oldest[2])
}

func TestDeleteTransactionFromPool(t *testing.T) {
	s := New()
	t1 := &tx.Transaction{Version: 1}
	h := t1.GetHash()

	b := s.NewBatch()
	b.PutTransactionToPool(h, t1, 0)
	require.NoError(t, b.Commit())

	b2 := s.NewBatch()
	b2.DeleteTransactionFromPool(h)
	require.NoError(t, b2.Commit())

	assert.Empty(t, s.GetOldestPoolTransactions(10))
}
