// Package storage defines the BlockStorage contract (spec §6, component C1)
// consumed by the rest of the chain core, and the TransactionDescriptor /
// Batch types that make its transactional boundary concrete. The core never
// assumes a particular storage engine; two implementations are provided —
// leveldbstore (grounded on copernicus's persist/db.DBWrapper, used in
// production) and memstore (an in-memory stand-in used by tests).
package storage

import (
	"errors"

	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/util"
)

// ErrNotFound is returned by lookups with no matching record; callers treat
// it the same as a returned (nil, false)/zero-value pair, it exists so
// storage implementations have one sentinel to agree on internally.
var ErrNotFound = errors.New("storage: not found")

// Location discriminates where a transaction's bytes actually live —
// invariant 3 of spec.md's data model: a tx hash is on the best chain XOR in
// the disk-pool, never both.
type Location int

const (
	LocationUnknown Location = iota
	LocationChain
	LocationPool
)

// OutputSpend records that a given output has been spent and by which
// best-chain input.
type OutputSpend struct {
	Spent bool
	By    outpoint.OutPoint
}

// TransactionDescriptor is the per-transaction-hash record spec.md's data
// model calls for: either a disk locator into a best-chain block, or the
// pool's own copy of the bytes plus its admission sequence number, plus the
// spent/unspent status of each of the transaction's outputs.
type TransactionDescriptor struct {
	Location Location

	// Valid when Location == LocationChain.
	BlockHash util.Hash
	TxIndex   int // position within that block's transaction list

	// Valid when Location == LocationPool. leveldbstore fills PoolTx on
	// read; memstore leaves it nil (its pool bytes are reached through
	// GetTransaction).
	PoolTx       *tx.Transaction
	PoolSequence uint64

	// Spends tracks, for every output index, whether it is currently spent
	// and by which OutPoint (invariant 4).
	Spends []OutputSpend
}

// Batch is BlockStorage's atomic-write primitive: every write inside one
// Batch either all land or none do, giving §5's transactional-boundary
// contract (one putBlock == one storage transaction; a reorg is one larger
// transaction spanning every detach and attach).
type Batch interface {
	PutBlock(index *blockindex.BlockIndex, blk *block.Block)
	PutBestBlockHash(hash util.Hash)
	PutBlockHashByHeight(height int32, hash util.Hash)
	DeleteBlockHashByHeight(height int32)
	UpdateNextBlockHash(hash util.Hash, next *util.Hash)
	PutTransactionDescriptor(hash util.Hash, desc *TransactionDescriptor)
	DeleteTransactionDescriptor(hash util.Hash)
	PutTransactionToPool(hash util.Hash, t *tx.Transaction, sequence uint64)
	DeleteTransactionFromPool(hash util.Hash)

	// Commit atomically applies every staged write. A Batch must not be
	// reused after Commit.
	Commit() error
}

// BlockStorage is the persistence boundary the chain core is built against
// (spec §6). Implementations must provide atomic read visibility for the
// best-block pointer and the descriptor table, and must support Batch so
// callers can make a putBlock or a reorg a single transaction.
type BlockStorage interface {
	NewBatch() Batch

	HasBlock(hash util.Hash) bool
	GetBlock(hash util.Hash) (*blockindex.BlockIndex, *block.Block, bool)
	GetBlockInfo(hash util.Hash) (*blockindex.BlockIndex, bool)
	GetBlockHeader(hash util.Hash) (*block.BlockHeader, bool)

	GetBestBlockHash() (util.Hash, bool)
	GetBlockHashByHeight(height int32) (util.Hash, bool)

	HasTransaction(hash util.Hash) bool
	GetTransaction(hash util.Hash) (*tx.Transaction, bool)
	GetTransactionDescriptor(hash util.Hash) (*TransactionDescriptor, bool)

	// GetOldestPoolTransactions returns up to count disk-pool entries
	// ordered by ascending admission sequence (TransactionPool.getOldestTransactions).
	GetOldestPoolTransactions(count int) []util.Hash

	Close() error
}
