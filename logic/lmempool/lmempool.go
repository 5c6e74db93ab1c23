// Package lmempool implements TransactionPool (spec component C3): admit a
// standalone transaction into the disk-pool once its inputs resolve to
// unspent best-chain outputs, evict it, and hand back the oldest N pool
// entries for relay/mining-candidate selection.
//
// Grounded on copernicus's logic/lmempool.AcceptTxToMemPool /
// addTxToMemPool, simplified the way SPEC_FULL.md's Non-goals call for:
// no ancestor/descendant package limits, no fee-rate ordering
// (mempool.TxMempool.txByAncestorFeeRateSort) since fee policy is a
// Non-goal. The github.com/google/btree tree the teacher keeps for
// feerate order is repurposed here to order entries by admission sequence
// instead — a github.com/google/btree.BTree of *mempool.PoolEntry keyed by
// Sequence gives getOldestTransactions its O(log n) "smallest N" walk
// without a full pool scan.
package lmempool

import (
	"sync"

	"github.com/google/btree"

	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/model/mempool"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

const btreeDegree = 32

// sequenceItem is the btree.Item ordering PoolEntry by admission sequence.
type sequenceItem struct {
	entry *mempool.PoolEntry
}

func (a sequenceItem) Less(than btree.Item) bool {
	return a.entry.Sequence < than.(sequenceItem).entry.Sequence
}

// TransactionPool is the in-memory index over the disk-pool's contents; the
// bytes themselves are persisted through storage.BlockStorage, this type
// only tracks membership and admission order so getOldestTransactions and
// exists don't need a storage round trip.
type TransactionPool struct {
	mu       sync.RWMutex
	byHash   map[util.Hash]*mempool.PoolEntry
	ordered  *btree.BTree
	sequence mempool.SequenceCounter
}

// New builds an empty TransactionPool.
func New() *TransactionPool {
	return &TransactionPool{
		byHash:  make(map[util.Hash]*mempool.PoolEntry),
		ordered: btree.New(btreeDegree),
	}
}

// Exists reports whether hash is currently in the pool.
func (p *TransactionPool) Exists(hash util.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byHash[hash]
	return ok
}

// Size returns the number of transactions currently pooled.
func (p *TransactionPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHash)
}

// AddTransactionToPool validates t's inputs against store (each must resolve
// to an unspent output, either already on the best chain or produced by an
// earlier transaction still sitting in the pool — a coinbase input or a tx
// already on the best chain is rejected) and stages its admission into
// batch, returning the PoolEntry that now indexes it. entryTime is a
// caller-supplied Unix-seconds timestamp.
func (p *TransactionPool) AddTransactionToPool(store storage.BlockStorage, batch storage.Batch, t *tx.Transaction, entryTime int64) (*mempool.PoolEntry, error) {
	hash := t.GetHash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHash[hash]; ok {
		return nil, errcode.New(errcode.ErrAlreadyOnChain)
	}
	if store.HasTransaction(hash) {
		return nil, errcode.New(errcode.ErrAlreadyOnChain)
	}
	if t.IsCoinBase() {
		return nil, errcode.New(errcode.ErrMissingInputs)
	}

	prevDescs := make([]*storage.TransactionDescriptor, len(t.Inputs))
	for i, in := range t.Inputs {
		prevOut := in.PreviousOutput
		prevDesc, ok := store.GetTransactionDescriptor(prevOut.Hash)
		if !ok || (prevDesc.Location != storage.LocationChain && prevDesc.Location != storage.LocationPool) {
			return nil, errcode.New(errcode.ErrMissingInputs)
		}
		if int(prevOut.Index) >= len(prevDesc.Spends) || prevDesc.Spends[prevOut.Index].Spent {
			return nil, errcode.New(errcode.ErrMissingInputs)
		}
		prevDescs[i] = prevDesc
	}

	seq := p.sequence.Next()
	entry := mempool.NewPoolEntry(t, seq, entryTime)

	for i, in := range t.Inputs {
		prevDescs[i].Spends[in.PreviousOutput.Index] = storage.OutputSpend{
			Spent: true,
			By:    outpoint.New(hash, uint32(i)),
		}
		batch.PutTransactionDescriptor(in.PreviousOutput.Hash, prevDescs[i])
	}

	batch.PutTransactionToPool(hash, t, seq)
	batch.PutTransactionDescriptor(hash, &storage.TransactionDescriptor{
		Location:     storage.LocationPool,
		PoolSequence: seq,
		Spends:       make([]storage.OutputSpend, len(t.Outputs)),
	})

	p.byHash[hash] = entry
	p.ordered.ReplaceOrInsert(sequenceItem{entry: entry})
	return entry, nil
}

// RemoveTransactionFromPool discards hash from the pool's index and stages
// its deletion, descriptor included, into batch. A no-op if hash isn't
// pooled. Use this for a plain eviction, where nothing else is about to
// claim hash's descriptor.
func (p *TransactionPool) RemoveTransactionFromPool(batch storage.Batch, hash util.Hash) {
	if p.forget(hash) {
		batch.DeleteTransactionFromPool(hash)
		batch.DeleteTransactionDescriptor(hash)
	}
}

// ForgetTransaction drops hash from the pool's in-memory index and pool
// bytes, but leaves its TransactionDescriptor alone — for the case where a
// block just confirmed hash and logic/lutxo.AttachTransaction has already
// (in the same or an earlier batch) overwritten the descriptor to point at
// that block. Deleting it here would erase that chain location.
func (p *TransactionPool) ForgetTransaction(batch storage.Batch, hash util.Hash) {
	if p.forget(hash) {
		batch.DeleteTransactionFromPool(hash)
	}
}

func (p *TransactionPool) forget(hash util.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.byHash[hash]
	if !ok {
		return false
	}
	delete(p.byHash, hash)
	p.ordered.Delete(sequenceItem{entry: entry})
	return true
}

// GetOldestTransactions returns up to count pooled transactions in ascending
// admission order — the set a miner or relay loop drains first.
func (p *TransactionPool) GetOldestTransactions(count int) []*mempool.PoolEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*mempool.PoolEntry, 0, count)
	p.ordered.Ascend(func(item btree.Item) bool {
		if len(out) >= count {
			return false
		}
		out = append(out, item.(sequenceItem).entry)
		return true
	})
	return out
}
