// Package mempool defines the shape of a single disk-pool entry and the
// monotonic sequence counter used to order them by admission time. The pool
// container itself (add/remove/oldest-N, the btree index) lives in
// logic/lmempool — this package only holds the plain data the pool indexes.
//
// Deliberately thinner than the teacher's TxEntry: copernicus's entry
// carries fee rate, ancestor/descendant size and a second feerate-ordered
// btree because its mempool does fee-based eviction and block-template
// selection. Both are out of scope here (spec.md's Non-goals exclude fee
// policy), so PoolEntry keeps only what spec.md's TransactionPool actually
// needs: the transaction, its admission sequence, and when it entered.
package mempool

import (
	"sync/atomic"

	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/util"
)

// PoolEntry is one transaction sitting in the disk-pool.
type PoolEntry struct {
	Tx       *tx.Transaction
	Hash     util.Hash
	Sequence uint64
	// EntryTime is a Unix-seconds timestamp supplied by the caller at
	// admission time (process/ stamps it); the pool container never calls
	// time.Now() itself so it stays deterministic and testable.
	EntryTime int64
}

// NewPoolEntry builds an entry for t, computing its hash once up front.
func NewPoolEntry(t *tx.Transaction, sequence uint64, entryTime int64) *PoolEntry {
	return &PoolEntry{
		Tx:        t,
		Hash:      t.GetHash(),
		Sequence:  sequence,
		EntryTime: entryTime,
	}
}

// SequenceCounter hands out strictly increasing admission sequence numbers,
// mirroring copernicus's transactionsUpdated/nTransactionsUpdated counter
// but used here as the disk-pool's total order rather than a change-tick.
type SequenceCounter struct {
	next uint64
}

// Next returns the next sequence number, starting at 0.
func (c *SequenceCounter) Next() uint64 {
	return atomic.AddUint64(&c.next, 1) - 1
}
