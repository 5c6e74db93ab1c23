// Package chain implements Blockchain (spec component C7): the single
// serialization point in front of BlockStorage, TransactionMagnet,
// TransactionPool and BlockMagnet. Every mutation — putBlock, putTransaction,
// any reorg they trigger — runs under one mutex, giving the reorg invariant
// (§5) its simplest possible proof: at most one writer ever touches chain
// state at a time.
//
// Grounded on copernicus's model/chain/chain.go Chain type (AddToIndexMap,
// AddToBranch, the best-tip pointer) generalized from a process-wide
// singleton into a constructible object, since global chain state has no
// place in a library meant to be embedded by more than one caller.
package chain

import (
	"sync"

	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/event"
	"github.com/ledgerforge/chaincore/log"
	"github.com/ledgerforge/chaincore/logic/lchain"
	"github.com/ledgerforge/chaincore/logic/lmempool"
	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

// Blockchain is the facade every caller mutates chain state through. The
// zero value is not usable; build one with New.
type Blockchain struct {
	mu sync.Mutex

	store storage.BlockStorage
	pool  *lmempool.TransactionPool

	tip      *blockindex.BlockIndex
	listener event.ChainEventListener
}

// New builds a Blockchain over an already-open store. If store already has
// a best block on disk, the caller must call Resume to reload the in-memory
// tip pointer before the first putBlock.
func New(store storage.BlockStorage, pool *lmempool.TransactionPool) *Blockchain {
	return &Blockchain{store: store, pool: pool}
}

// Resume reloads the in-memory tip pointer from store's best-block hash,
// for restarting against a non-empty data directory.
func (bc *Blockchain) Resume() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash, ok := bc.store.GetBestBlockHash()
	if !ok {
		return nil
	}
	idx, ok := bc.store.GetBlockInfo(hash)
	if !ok {
		return errcode.New(errcode.ErrParentBlockMissing)
	}
	bc.tip = idx
	return nil
}

// SetEventListener installs the listener future mutations report to. Not
// safe to call concurrently with putBlock/putTransaction.
func (bc *Blockchain) SetEventListener(l event.ChainEventListener) {
	bc.listener = l
}

func (bc *Blockchain) emitAttach(idx *blockindex.BlockIndex, blk *block.Block) {
	if bc.listener != nil {
		bc.listener.OnAttachBlock(event.ChainBlock{Height: idx.Height, Block: blk})
	}
}

func (bc *Blockchain) emitDetach(idx *blockindex.BlockIndex, blk *block.Block) {
	if bc.listener != nil {
		bc.listener.OnDetachBlock(event.ChainBlock{Height: idx.Height, Block: blk})
	}
}

func (bc *Blockchain) emitNewTx(t *tx.Transaction) {
	if bc.listener != nil {
		bc.listener.OnNewTransaction(t)
	}
}

func (bc *Blockchain) emitRemoveTx(t *tx.Transaction) {
	if bc.listener != nil {
		bc.listener.OnRemoveTransaction(t)
	}
}

// PutBlock is putBlock (spec §4.1): accepts blk as the child of its
// hashPrevBlock parent. Returns (true, nil) once blk is durably attached to
// the best chain, (false, nil) for an already-known block or one that rests
// on a fork without yet becoming best, and a non-nil error for a block whose
// parent is unknown (the caller must route it to BlockOrphanage instead) or
// a reorg that failed outright.
func (bc *Blockchain) PutBlock(blk *block.Block) (bool, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash := blk.GetHash()
	if bc.store.HasBlock(hash) {
		log.Debug("putBlock: %s already known, rejecting duplicate", hash)
		return false, nil
	}

	if blk.Header.IsGenesisHeader() {
		if bc.tip != nil {
			return false, errcode.New(errcode.ErrInvalidBlockHeight)
		}
		idx := lchain.NewChildIndex(blk.Header, nil)
		batch := bc.store.NewBatch()
		if err := lchain.Attach(bc.store, batch, blk, idx); err != nil {
			return false, err
		}
		if err := batch.Commit(); err != nil {
			return false, errcode.StorageFailure(err)
		}
		bc.tip = idx
		bc.emitAttach(idx, blk)
		log.Info("putBlock: attached genesis %s", hash)
		return true, nil
	}

	parent, ok := bc.store.GetBlockInfo(blk.Header.HashPrevBlock)
	if !ok {
		log.Warn("putBlock: %s has unknown parent %s", hash, blk.Header.HashPrevBlock)
		return false, errcode.New(errcode.ErrParentBlockMissing)
	}
	idx := lchain.NewChildIndex(blk.Header, parent)

	if bc.tip != nil && parent.GetBlockHash() == bc.tip.GetBlockHash() {
		return bc.extendTip(idx, blk)
	}

	if bc.tip != nil && idx.ChainWork.Cmp(&bc.tip.ChainWork) <= 0 {
		// Fork candidate that isn't the new best: persist as known, go no
		// further, so a later block can still extend it into a winning
		// reorg.
		batch := bc.store.NewBatch()
		batch.PutBlock(idx, blk)
		if err := batch.Commit(); err != nil {
			return false, errcode.StorageFailure(err)
		}
		log.Debug("putBlock: %s persisted as non-best fork candidate at height %d", idx.GetBlockHash(), idx.Height)
		return false, nil
	}

	log.Info("putBlock: %s out-works tip %s, reorganizing", idx.GetBlockHash(), bc.tip.GetBlockHash())
	return bc.reorganizeOnto(idx, blk)
}

// extendTip handles the common case: blk's parent is the current tip.
func (bc *Blockchain) extendTip(idx *blockindex.BlockIndex, blk *block.Block) (bool, error) {
	batch := bc.store.NewBatch()
	if err := lchain.Attach(bc.store, batch, blk, idx); err != nil {
		return false, err
	}
	for i, t := range blk.Transactions {
		if i == 0 {
			continue // coinbase was never in the pool
		}
		bc.pool.ForgetTransaction(batch, t.GetHash())
	}
	if err := batch.Commit(); err != nil {
		return false, errcode.StorageFailure(err)
	}
	bc.tip = idx
	bc.emitAttach(idx, blk)
	for i, t := range blk.Transactions {
		if i == 0 {
			continue
		}
		bc.emitRemoveTx(t)
	}
	log.Info("putBlock: extended tip to %s at height %d", idx.GetBlockHash(), idx.Height)
	return true, nil
}

// reorganizeOnto switches the best chain to idx/blk, which must out-work the
// current tip. Detached transactions are restaged into the disk-pool;
// transactions newly confirmed by an attached block are dropped from it.
func (bc *Blockchain) reorganizeOnto(idx *blockindex.BlockIndex, blk *block.Block) (bool, error) {
	loadBlock := func(want *blockindex.BlockIndex) (*block.Block, error) {
		if want.GetBlockHash() == idx.GetBlockHash() {
			return blk, nil
		}
		_, b, ok := bc.store.GetBlock(want.GetBlockHash())
		if !ok {
			return nil, errcode.New(errcode.ErrReorgFailed)
		}
		return b, nil
	}

	result, err := lchain.Reorganize(bc.store, bc.tip, idx, loadBlock)
	if err != nil {
		return false, err
	}

	bc.tip = idx

	poolBatch := bc.store.NewBatch()
	for di, detachedIdx := range result.Detached {
		detachedBlk := result.DetachedBlocks[di]
		for i, t := range detachedBlk.Transactions {
			if i == 0 {
				continue
			}
			if _, err := bc.pool.AddTransactionToPool(bc.store, poolBatch, t, 0); err == nil {
				bc.emitNewTx(t)
			}
		}
		bc.emitDetach(detachedIdx, detachedBlk)
	}
	for ai, attachedIdx := range result.Attached {
		attachedBlk := result.AttachedBlocks[ai]
		for i, t := range attachedBlk.Transactions {
			if i == 0 {
				continue
			}
			bc.pool.ForgetTransaction(poolBatch, t.GetHash())
		}
		bc.emitAttach(attachedIdx, attachedBlk)
		for i, t := range attachedBlk.Transactions {
			if i == 0 {
				continue
			}
			bc.emitRemoveTx(t)
		}
	}
	if err := poolBatch.Commit(); err != nil {
		return false, errcode.StorageFailure(err)
	}
	log.Info("reorganize: switched to %s, detached %d block(s), attached %d block(s)",
		idx.GetBlockHash(), len(result.Detached), len(result.Attached))
	return true, nil
}

// PutTransaction is putTransaction (spec §4.1): admits t into the disk-pool
// once every input resolves to an unspent best-chain (or earlier-pooled)
// output. entryTime is a caller-supplied Unix-seconds timestamp.
func (bc *Blockchain) PutTransaction(t *tx.Transaction, entryTime int64) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hash := t.GetHash()
	if bc.store.HasTransaction(hash) {
		if desc, ok := bc.store.GetTransactionDescriptor(hash); ok && desc.Location == storage.LocationChain {
			return errcode.New(errcode.ErrAlreadyOnChain)
		}
	}

	batch := bc.store.NewBatch()
	if _, err := bc.pool.AddTransactionToPool(bc.store, batch, t, entryTime); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return errcode.StorageFailure(err)
	}
	bc.emitNewTx(t)
	return nil
}

// GetBestBlockHash returns the current tip's hash.
func (bc *Blockchain) GetBestBlockHash() (util.Hash, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.tip == nil {
		return util.Hash{}, false
	}
	return bc.tip.GetBlockHash(), true
}

// GetBestBlockHeight returns the current tip's height, or -1 if empty.
func (bc *Blockchain) GetBestBlockHeight() int32 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.tip == nil {
		return -1
	}
	return bc.tip.Height
}

// GetBlockHash resolves the best-chain hash at height, failing with
// ErrInvalidBlockHeight outside [0, bestHeight].
func (bc *Blockchain) GetBlockHash(height int32) (util.Hash, error) {
	bc.mu.Lock()
	best := bc.tip
	bc.mu.Unlock()
	if best == nil || height < 0 || height > best.Height {
		return util.Hash{}, errcode.New(errcode.ErrInvalidBlockHeight)
	}
	hash, ok := bc.store.GetBlockHashByHeight(height)
	if !ok {
		return util.Hash{}, errcode.New(errcode.ErrInvalidBlockHeight)
	}
	return hash, nil
}

// GetBlockInfo returns the BlockIndex metadata for hash, whether it is on
// the best chain or a fork; false if hash is unknown.
func (bc *Blockchain) GetBlockInfo(hash util.Hash) (*blockindex.BlockIndex, bool) {
	return bc.store.GetBlockInfo(hash)
}

// GetBlock returns the full block for hash, whether it is on the best chain
// or a fork; false if hash is unknown.
func (bc *Blockchain) GetBlock(hash util.Hash) (*blockindex.BlockIndex, *block.Block, bool) {
	return bc.store.GetBlock(hash)
}

// GetBlockHeader returns just hash's header.
func (bc *Blockchain) GetBlockHeader(hash util.Hash) (*block.BlockHeader, bool) {
	return bc.store.GetBlockHeader(hash)
}

// GetTransaction returns hash's transaction bytes, searching on-chain and
// pool locations transparently.
func (bc *Blockchain) GetTransaction(hash util.Hash) (*tx.Transaction, bool) {
	return bc.store.GetTransaction(hash)
}

// HasBlock reports whether hash is known, on the best chain or any fork.
func (bc *Blockchain) HasBlock(hash util.Hash) bool {
	return bc.store.HasBlock(hash)
}

// HasTransaction reports whether hash is known, on-chain or pooled.
func (bc *Blockchain) HasTransaction(hash util.Hash) bool {
	return bc.store.HasTransaction(hash)
}

// GetTransactionOutput resolves op to the output it names and whether it is
// currently spent, failing with InvalidOutPoint if the transaction or index
// doesn't exist.
func (bc *Blockchain) GetTransactionOutput(op outpoint.OutPoint) (*tx.TxOutput, storage.OutputSpend, error) {
	t, ok := bc.store.GetTransaction(op.Hash)
	if !ok || int(op.Index) >= len(t.Outputs) {
		return nil, storage.OutputSpend{}, errcode.New(errcode.ErrInvalidOutPoint)
	}
	desc, ok := bc.store.GetTransactionDescriptor(op.Hash)
	if !ok || int(op.Index) >= len(desc.Spends) {
		return nil, storage.OutputSpend{}, errcode.New(errcode.ErrInvalidOutPoint)
	}
	return &t.Outputs[op.Index], desc.Spends[op.Index], nil
}

// ChainLocator summarizes the shape of the best chain the way a peer
// requesting headers needs: block hashes at exponentially decreasing
// density walking back from the starting point, always ending at genesis.
type ChainLocator struct {
	Hashes []util.Hash
}

// GetChainLocator builds a ChainLocator walking back from start (the
// current tip, if start is nil) — grounded on copernicus's
// Chain.GetLocator: every block for the first ten steps, then doubling the
// stride each step after, using GetAncestor's skip pointers rather than a
// single-step walk.
func (bc *Blockchain) GetChainLocator(start *blockindex.BlockIndex) *ChainLocator {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	idx := start
	if idx == nil {
		idx = bc.tip
	}
	if idx == nil {
		return &ChainLocator{}
	}

	step := int32(1)
	hashes := make([]util.Hash, 0, 32)
	for {
		hashes = append(hashes, idx.GetBlockHash())
		if idx.Height == 0 {
			break
		}
		height := idx.Height - step
		if height < 0 {
			height = 0
		}
		idx = idx.GetAncestor(height)
		if idx == nil {
			break
		}
		if len(hashes) > 10 {
			step *= 2
		}
	}
	return &ChainLocator{Hashes: hashes}
}

// ChainIterator walks the best chain forward from a fixed starting height.
// It resolves spec.md §9's Open Question about a missing getIterator
// (height): a Blockchain mutation after the iterator was built does not
// invalidate it, but Next will simply stop once it walks past whatever the
// best chain's height was at the time of the call that exposed the gap.
type ChainIterator struct {
	bc     *Blockchain
	height int32
}

// Iterator builds a ChainIterator starting at height, failing with
// ErrInvalidBlockHeight if height is outside the current best chain.
func (bc *Blockchain) Iterator(height int32) (*ChainIterator, error) {
	if _, err := bc.GetBlockHash(height); err != nil {
		return nil, err
	}
	return &ChainIterator{bc: bc, height: height}, nil
}

// Next returns the next block on the best chain in ascending height order,
// or ok=false once the iterator passes the current best-chain height.
func (it *ChainIterator) Next() (event.ChainBlock, bool) {
	hash, err := it.bc.GetBlockHash(it.height)
	if err != nil {
		return event.ChainBlock{}, false
	}
	_, blk, ok := it.bc.GetBlock(hash)
	if !ok {
		return event.ChainBlock{}, false
	}
	cb := event.ChainBlock{Height: it.height, Block: blk}
	it.height++
	return cb, true
}
