package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerforge/chaincore/model/tx"
)

func TestSequenceCounterMonotonic(t *testing.T) {
	var c SequenceCounter
	assert.Equal(t, uint64(0), c.Next())
	assert.Equal(t, uint64(1), c.Next())
	assert.Equal(t, uint64(2), c.Next())
}

func TestNewPoolEntryCachesHash(t *testing.T) {
	txn := &tx.Transaction{Version: 1, LockTime: 42}
	entry := NewPoolEntry(txn, 5, 1000)
	assert.Equal(t, txn.GetHash(), entry.Hash)
	assert.Equal(t, uint64(5), entry.Sequence)
	assert.Equal(t, int64(1000), entry.EntryTime)
}
