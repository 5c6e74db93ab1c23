// Package memstore is an in-memory BlockStorage, used by the chain core's
// tests and as a reference implementation of the contract in
// persist/storage. It carries no on-disk persistence of its own; production
// wiring uses persist/storage/leveldbstore instead.
package memstore

import (
	"sort"
	"sync"

	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

// Store is a mutex-guarded, map-backed BlockStorage.
type Store struct {
	mu sync.RWMutex

	blocks        map[util.Hash]*block.Block
	indexes       map[util.Hash]*blockindex.BlockIndex
	heightToHash  map[int32]util.Hash
	bestBlockHash util.Hash
	haveBest      bool

	descriptors map[util.Hash]*storage.TransactionDescriptor
	poolTxs     map[util.Hash]*tx.Transaction
	poolOrder   []util.Hash // ascending sequence order
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		blocks:       make(map[util.Hash]*block.Block),
		indexes:      make(map[util.Hash]*blockindex.BlockIndex),
		heightToHash: make(map[int32]util.Hash),
		descriptors:  make(map[util.Hash]*storage.TransactionDescriptor),
		poolTxs:      make(map[util.Hash]*tx.Transaction),
	}
}

// batch stages writes until Commit applies them under the Store's lock in
// one critical section — the in-memory stand-in for a LevelDB write batch.
type batch struct {
	store *Store
	ops   []func(*Store)
}

func (s *Store) NewBatch() storage.Batch {
	return &batch{store: s}
}

func (b *batch) PutBlock(index *blockindex.BlockIndex, blk *block.Block) {
	b.ops = append(b.ops, func(s *Store) {
		hash := index.GetBlockHash()
		s.indexes[hash] = index
		s.blocks[hash] = blk
	})
}

func (b *batch) PutBestBlockHash(hash util.Hash) {
	b.ops = append(b.ops, func(s *Store) {
		s.bestBlockHash = hash
		s.haveBest = true
	})
}

func (b *batch) PutBlockHashByHeight(height int32, hash util.Hash) {
	b.ops = append(b.ops, func(s *Store) {
		s.heightToHash[height] = hash
	})
}

func (b *batch) DeleteBlockHashByHeight(height int32) {
	b.ops = append(b.ops, func(s *Store) {
		delete(s.heightToHash, height)
	})
}

func (b *batch) UpdateNextBlockHash(hash util.Hash, next *util.Hash) {
	b.ops = append(b.ops, func(s *Store) {
		if idx, ok := s.indexes[hash]; ok {
			idx.NextBlockHash = next
		}
	})
}

func (b *batch) PutTransactionDescriptor(hash util.Hash, desc *storage.TransactionDescriptor) {
	b.ops = append(b.ops, func(s *Store) {
		s.descriptors[hash] = desc
	})
}

func (b *batch) DeleteTransactionDescriptor(hash util.Hash) {
	b.ops = append(b.ops, func(s *Store) {
		delete(s.descriptors, hash)
	})
}

func (b *batch) PutTransactionToPool(hash util.Hash, t *tx.Transaction, sequence uint64) {
	b.ops = append(b.ops, func(s *Store) {
		s.poolTxs[hash] = t
		s.poolOrder = insertSorted(s.poolOrder, hash, sequence, s.descriptors)
	})
}

func (b *batch) DeleteTransactionFromPool(hash util.Hash) {
	b.ops = append(b.ops, func(s *Store) {
		delete(s.poolTxs, hash)
		for i, h := range s.poolOrder {
			if h == hash {
				s.poolOrder = append(s.poolOrder[:i], s.poolOrder[i+1:]...)
				break
			}
		}
	})
}

func (b *batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		op(b.store)
	}
	return nil
}

// insertSorted keeps poolOrder sorted by each entry's pool sequence number,
// looked up from the descriptor table.
func insertSorted(order []util.Hash, hash util.Hash, sequence uint64, descriptors map[util.Hash]*storage.TransactionDescriptor) []util.Hash {
	order = append(order, hash)
	sort.SliceStable(order, func(i, j int) bool {
		di, oki := descriptors[order[i]]
		dj, okj := descriptors[order[j]]
		if order[i] == hash {
			return sequence < dj.PoolSequence || !okj
		}
		if order[j] == hash {
			return di.PoolSequence < sequence && oki
		}
		if oki && okj {
			return di.PoolSequence < dj.PoolSequence
		}
		return false
	})
	return order
}

func (s *Store) HasBlock(hash util.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[hash]
	return ok
}

func (s *Store) GetBlock(hash util.Hash) (*blockindex.BlockIndex, *block.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[hash]
	if !ok {
		return nil, nil, false
	}
	return idx, s.blocks[hash], true
}

func (s *Store) GetBlockInfo(hash util.Hash) (*blockindex.BlockIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[hash]
	return idx, ok
}

func (s *Store) GetBlockHeader(hash util.Hash) (*block.BlockHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[hash]
	if !ok {
		return nil, false
	}
	return &idx.Header, true
}

func (s *Store) GetBestBlockHash() (util.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestBlockHash, s.haveBest
}

func (s *Store) GetBlockHashByHeight(height int32) (util.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heightToHash[height]
	return h, ok
}

func (s *Store) HasTransaction(hash util.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.descriptors[hash]
	return ok
}

func (s *Store) GetTransaction(hash util.Hash) (*tx.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.descriptors[hash]
	if !ok {
		return nil, false
	}
	switch desc.Location {
	case storage.LocationPool:
		t, ok := s.poolTxs[hash]
		return t, ok
	case storage.LocationChain:
		blk, ok := s.blocks[desc.BlockHash]
		if !ok || desc.TxIndex >= len(blk.Transactions) {
			return nil, false
		}
		return blk.Transactions[desc.TxIndex], true
	default:
		return nil, false
	}
}

func (s *Store) GetTransactionDescriptor(hash util.Hash) (*storage.TransactionDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.descriptors[hash]
	return desc, ok
}

func (s *Store) GetOldestPoolTransactions(count int) []util.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if count > len(s.poolOrder) {
		count = len(s.poolOrder)
	}
	out := make([]util.Hash, count)
	copy(out, s.poolOrder[:count])
	return out
}

func (s *Store) Close() error { return nil }
