package lmempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/persist/storage/memstore"
	"github.com/ledgerforge/chaincore/util"
)

func putSpendableChainOutput(t *testing.T, store storage.BlockStorage, hash util.Hash) {
	t.Helper()
	b := store.NewBatch()
	b.PutTransactionDescriptor(hash, &storage.TransactionDescriptor{
		Location: storage.LocationChain,
		Spends:   make([]storage.OutputSpend, 1),
	})
	require.NoError(t, b.Commit())
}

func TestAddTransactionToPoolAcceptsSpendableInput(t *testing.T) {
	store := memstore.New()
	prevHash := util.DoubleSha256([]byte("prev"))
	putSpendableChainOutput(t, store, prevHash)

	pool := New()
	txn := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(prevHash, 0)}},
		Outputs: []tx.TxOutput{{Value: 1}},
	}

	b := store.NewBatch()
	entry, err := pool.AddTransactionToPool(store, b, txn, 100)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	assert.Equal(t, txn.GetHash(), entry.Hash)
	assert.True(t, pool.Exists(txn.GetHash()))
	assert.Equal(t, 1, pool.Size())
}

func TestAddTransactionToPoolRejectsCoinbase(t *testing.T) {
	store := memstore.New()
	pool := New()
	coinbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{tx.NewCoinBaseInput([]byte{0x01}, 0xffffffff)},
	}
	b := store.NewBatch()
	_, err := pool.AddTransactionToPool(store, b, coinbase, 0)
	require.Error(t, err)
	assert.True(t, errcode.IsErrorCode(err, errcode.ErrMissingInputs))
}

func TestAddTransactionToPoolRejectsUnresolvedInput(t *testing.T) {
	store := memstore.New()
	pool := New()
	txn := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(util.DoubleSha256([]byte("missing")), 0)}},
	}
	b := store.NewBatch()
	_, err := pool.AddTransactionToPool(store, b, txn, 0)
	require.Error(t, err)
	assert.True(t, errcode.IsErrorCode(err, errcode.ErrMissingInputs))
}

func TestGetOldestTransactionsOrdersBySequence(t *testing.T) {
	store := memstore.New()
	pool := New()

	var hashes []util.Hash
	for i := 0; i < 5; i++ {
		prevHash := util.DoubleSha256([]byte{byte(i)})
		putSpendableChainOutput(t, store, prevHash)

		txn := &tx.Transaction{
			Version: int32(i) + 1,
			Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(prevHash, 0)}},
			Outputs: []tx.TxOutput{{Value: 1}},
		}
		hashes = append(hashes, txn.GetHash())

		b := store.NewBatch()
		_, err := pool.AddTransactionToPool(store, b, txn, int64(i))
		require.NoError(t, err)
		require.NoError(t, b.Commit())
	}

	oldest := pool.GetOldestTransactions(3)
	require.Len(t, oldest, 3)
	for i, entry := range oldest {
		assert.Equal(t, hashes[i], entry.Hash)
	}
}

func TestRemoveTransactionFromPool(t *testing.T) {
	store := memstore.New()
	prevHash := util.DoubleSha256([]byte("prev"))
	putSpendableChainOutput(t, store, prevHash)

	pool := New()
	txn := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(prevHash, 0)}},
	}
	b := store.NewBatch()
	_, err := pool.AddTransactionToPool(store, b, txn, 0)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	b2 := store.NewBatch()
	pool.RemoveTransactionFromPool(b2, txn.GetHash())
	require.NoError(t, b2.Commit())

	assert.False(t, pool.Exists(txn.GetHash()))
	assert.Empty(t, pool.GetOldestTransactions(10))
}
