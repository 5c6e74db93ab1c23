package lutxo

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

func putChainDescriptor(t *testing.T, store storage.BlockStorage, hash util.Hash, blockHash util.Hash, txIndex int, outputCount int) {
	t.Helper()
	b := store.NewBatch()
	b.PutTransactionDescriptor(hash, &storage.TransactionDescriptor{
		Location:  storage.LocationChain,
		BlockHash: blockHash,
		TxIndex:   txIndex,
		Spends:    make([]storage.OutputSpend, outputCount),
	})
	require.NoError(t, b.Commit())
}

func TestAttachTransactionMarksInputsSpent(t *testing.T) {
	store := memstore.New()
	blockHash := util.DoubleSha256([]byte("block"))

	coinbase := &tx.Transaction{Version: 1, Outputs: []tx.TxOutput{{Value: 5000000000}}}
	putChainDescriptor(t, store, coinbase.GetHash(), blockHash, 0, 1)

	spender := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(coinbase.GetHash(), 0)}},
		Outputs: []tx.TxOutput{{Value: 100}},
	}

	b := store.NewBatch()
	require.NoError(t, AttachTransaction(store, b, spender, blockHash, 1))
	require.NoError(t, b.Commit())

	prevDesc, ok := store.GetTransactionDescriptor(coinbase.GetHash())
	require.True(t, ok)
	assert.True(t, prevDesc.Spends[0].Spent)
	assert.Equal(t, spender.GetHash(), prevDesc.Spends[0].By.Hash)

	spenderDesc, ok := store.GetTransactionDescriptor(spender.GetHash())
	require.True(t, ok)
	assert.Equal(t, storage.LocationChain, spenderDesc.Location)
	require.Len(t, spenderDesc.Spends, 1)
	assert.False(t, spenderDesc.Spends[0].Spent)
}

func TestAttachTransactionRejectsDoubleSpend(t *testing.T) {
	store := memstore.New()
	blockHash := util.DoubleSha256([]byte("block"))
	coinbase := &tx.Transaction{Version: 1, Outputs: []tx.TxOutput{{Value: 1}}}
	putChainDescriptor(t, store, coinbase.GetHash(), blockHash, 0, 1)

	spender1 := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(coinbase.GetHash(), 0)}},
		Outputs: []tx.TxOutput{{Value: 1}},
	}
	b := store.NewBatch()
	require.NoError(t, AttachTransaction(store, b, spender1, blockHash, 1))
	require.NoError(t, b.Commit())

	spender2 := &tx.Transaction{
		Version: 2,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(coinbase.GetHash(), 0)}},
		Outputs: []tx.TxOutput{{Value: 1}},
	}
	b2 := store.NewBatch()
	err := AttachTransaction(store, b2, spender2, blockHash, 2)
	require.Error(t, err)
	assert.True(t, errcode.IsErrorCode(err, errcode.ErrInputAlreadySpent))
}

func TestDetachTransactionUnspendsInputs(t *testing.T) {
	store := memstore.New()
	blockHash := util.DoubleSha256([]byte("block"))
	coinbase := &tx.Transaction{Version: 1, Outputs: []tx.TxOutput{{Value: 1}}}
	putChainDescriptor(t, store, coinbase.GetHash(), blockHash, 0, 1)

	spender := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.TxInput{{PreviousOutput: outpoint.New(coinbase.GetHash(), 0)}},
		Outputs: []tx.TxOutput{{Value: 1}},
	}
	b := store.NewBatch()
	require.NoError(t, AttachTransaction(store, b, spender, blockHash, 1))
	require.NoError(t, b.Commit())

	b2 := store.NewBatch()
	require.NoError(t, DetachTransaction(store, b2, spender))
	require.NoError(t, b2.Commit())

	prevDesc, ok := store.GetTransactionDescriptor(coinbase.GetHash())
	require.True(t, ok)
	assert.False(t, prevDesc.Spends[0].Spent)

	assert.False(t, store.HasTransaction(spender.GetHash()))
}
