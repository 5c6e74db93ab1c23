// Package lchain implements BlockMagnet (spec component C4): attaching a
// single block to the best chain, detaching its current tip, and
// reorganizing across an arbitrary fork depth by chain work — all as one
// storage transaction so a failed reorg leaves the original best chain
// untouched.
//
// Grounded directly on copernicus's logic/lchain/lchain.go: ConnectBlock's
// per-transaction UTXO application (here logic/lutxo.AttachTransaction),
// ConnectTip/DisconnectTip's read-apply-flush-UpdateTip sequence, and — most
// directly — the two-cursor fork-point walk anywhere in the btcd-family
// blockchain.go forks (other_examples/btcsuite-btcd__chain.go,
// decred-dcrd__chain.go, jaxnet-lab-jaxnetd__chainio.go all implement the
// same connectBestChain shape) for Reorganize.
package lchain

import (
	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/pow"
	"github.com/ledgerforge/chaincore/logic/lutxo"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

// batchOverlay lets a transaction see every earlier transaction's still-
// uncommitted descriptor write within the same batch — whether that earlier
// transaction sits in the same block or an earlier block of the same
// Reorganize walk — the way copernicus's CoinsMap overlays the UTXO cache
// during ApplyBlockTransactions.
type batchOverlay struct {
	store    storage.BlockStorage
	pending  map[util.Hash]*storage.TransactionDescriptor
}

func newBatchOverlay(store storage.BlockStorage) *batchOverlay {
	return &batchOverlay{store: store, pending: make(map[util.Hash]*storage.TransactionDescriptor)}
}

func (o *batchOverlay) GetTransactionDescriptor(hash util.Hash) (*storage.TransactionDescriptor, bool) {
	if d, ok := o.pending[hash]; ok {
		return d, true
	}
	return o.store.GetTransactionDescriptor(hash)
}

// recordingBatch wraps a storage.Batch, mirroring every
// PutTransactionDescriptor/DeleteTransactionDescriptor call into the overlay
// so subsequent reads within the same Attach see it.
type recordingBatch struct {
	storage.Batch
	overlay *batchOverlay
}

func (b recordingBatch) PutTransactionDescriptor(hash util.Hash, desc *storage.TransactionDescriptor) {
	b.overlay.pending[hash] = desc
	b.Batch.PutTransactionDescriptor(hash, desc)
}

func (b recordingBatch) DeleteTransactionDescriptor(hash util.Hash) {
	delete(b.overlay.pending, hash)
	b.Batch.DeleteTransactionDescriptor(hash)
}

// NewChildIndex builds the candidate BlockIndex for header on top of parent
// (or the genesis index, if parent is nil), computing height and cumulative
// chain work — the equivalent of copernicus's Chain.AddToIndexMap, called
// as soon as a header is known, before the block's transactions have
// necessarily been attached.
func NewChildIndex(header block.BlockHeader, parent *blockindex.BlockIndex) *blockindex.BlockIndex {
	idx := blockindex.NewBlockIndex(header)
	if parent != nil {
		idx.Prev = parent
		idx.Height = parent.Height + 1
		idx.BuildSkip()
		idx.ChainWork.Add(&parent.ChainWork, pow.BlockProof(header.Bits))
	} else {
		idx.Height = 0
		idx.ChainWork.Set(pow.BlockProof(header.Bits))
	}
	return idx
}

// Attach connects blk at idx (already built by NewChildIndex, with Prev and
// ChainWork in place) onto the best chain, staging every write — the block
// bytes, every transaction's UTXO attach, the height/best-block/
// next-block-hash bookkeeping — into batch. The caller commits batch only
// once every block in a reorg's attach list has succeeded. A lone call (not
// part of a Reorganize walk) gets an overlay scoped to just this block.
func Attach(store storage.BlockStorage, batch storage.Batch, blk *block.Block, idx *blockindex.BlockIndex) error {
	overlay := newBatchOverlay(store)
	return attachWith(overlay, recordingBatch{Batch: batch, overlay: overlay}, blk, idx)
}

// attachWith is Attach's body against an already-built overlay/recording
// pair, so Reorganize can thread one overlay across every block in the
// walk instead of scoping it per block — otherwise a block's descriptor
// write would only be visible to that block's own transactions, not to a
// later block in the same reorg that spends one of its outputs.
func attachWith(overlay *batchOverlay, recording recordingBatch, blk *block.Block, idx *blockindex.BlockIndex) error {
	idx.TransactionCount = len(blk.Transactions)
	idx.BlockSize = blk.SerializeSize()

	for i, t := range blk.Transactions {
		if err := lutxo.AttachTransaction(overlay, recording, t, idx.GetBlockHash(), i); err != nil {
			return err
		}
	}

	recording.PutBlock(idx, blk)
	recording.PutBlockHashByHeight(idx.Height, idx.GetBlockHash())
	recording.PutBestBlockHash(idx.GetBlockHash())
	if idx.Prev != nil {
		hash := idx.GetBlockHash()
		recording.UpdateNextBlockHash(idx.Prev.GetBlockHash(), &hash)
	}
	return nil
}

// Detach reverses Attach for the current tip: every transaction's UTXO
// spends are undone, the height index entry is dropped, the best-block
// pointer moves back to parent, and parent's NextBlockHash is cleared. A
// lone call gets an overlay scoped to just this block.
func Detach(store storage.BlockStorage, batch storage.Batch, blk *block.Block, idx *blockindex.BlockIndex) error {
	overlay := newBatchOverlay(store)
	return detachWith(overlay, recordingBatch{Batch: batch, overlay: overlay}, blk, idx)
}

// detachWith is Detach's body against an already-built overlay/recording
// pair — see attachWith.
func detachWith(overlay *batchOverlay, recording recordingBatch, blk *block.Block, idx *blockindex.BlockIndex) error {
	for i := len(blk.Transactions) - 1; i >= 0; i-- {
		if err := lutxo.DetachTransaction(overlay, recording, blk.Transactions[i]); err != nil {
			return err
		}
	}

	recording.DeleteBlockHashByHeight(idx.Height)
	if idx.Prev != nil {
		recording.PutBestBlockHash(idx.Prev.GetBlockHash())
		recording.UpdateNextBlockHash(idx.Prev.GetBlockHash(), nil)
	}
	return nil
}

// forkPoint finds the common ancestor of a and b, the classic two-cursor
// search every btcd-family chain.go performs before a reorg — grounded on
// copernicus's Chain.FindFork, which brings the deeper side down to the
// shallower side's height via GetAncestor's skip pointers (O(log n)) rather
// than single-stepping .Prev, before the final single-step backtrack to the
// actual fork (unavoidable without a priori knowledge of the fork depth).
func forkPoint(a, b *blockindex.BlockIndex) *blockindex.BlockIndex {
	if a.Height > b.Height {
		a = a.GetAncestor(b.Height)
	} else if b.Height > a.Height {
		b = b.GetAncestor(a.Height)
	}
	for a != nil && b != nil && a.GetBlockHash() != b.GetBlockHash() {
		a = a.Prev
		b = b.Prev
	}
	return a
}

// ReorgResult reports what a successful Reorganize actually did, in commit
// order: every detached block (oldTip down to, but not including, the fork
// point) followed by every attached block (fork point up to newTip). The
// caller (chain.Blockchain) uses this to migrate detached transactions back
// into the disk-pool and drop newly-confirmed ones out of it, and to emit
// one OnDetachBlock/OnAttachBlock per entry.
type ReorgResult struct {
	Detached       []*blockindex.BlockIndex
	DetachedBlocks []*block.Block
	Attached       []*blockindex.BlockIndex
	AttachedBlocks []*block.Block
}

// Reorganize switches the best chain from oldTip to newTip, which must have
// strictly greater cumulative chain work. It detaches every block from
// oldTip down to (but not including) the fork point, then attaches every
// block from just above the fork point up to newTip. loadBlock resolves a
// BlockIndex's transaction bytes (the caller already has newTip's blocks in
// hand from wherever it arrived; oldTip's blocks come from store).
//
// The whole operation is staged into one storage.Batch and only committed
// if every detach and attach succeeds — an error at any point discards the
// batch (nothing was ever persisted) and returns ErrReorgFailed, leaving
// the original best chain exactly as it was.
func Reorganize(store storage.BlockStorage, oldTip, newTip *blockindex.BlockIndex, loadBlock func(*blockindex.BlockIndex) (*block.Block, error)) (*ReorgResult, error) {
	if newTip.ChainWork.Cmp(&oldTip.ChainWork) <= 0 {
		return nil, errcode.New(errcode.ErrReorgFailed)
	}

	fork := forkPoint(oldTip, newTip)
	if fork == nil {
		return nil, errcode.New(errcode.ErrReorgFailed)
	}

	var detachList []*blockindex.BlockIndex
	for walk := oldTip; walk != nil && walk.GetBlockHash() != fork.GetBlockHash(); walk = walk.Prev {
		detachList = append(detachList, walk)
	}

	var attachList []*blockindex.BlockIndex
	for walk := newTip; walk != nil && walk.GetBlockHash() != fork.GetBlockHash(); walk = walk.Prev {
		attachList = append(attachList, walk)
	}
	// attachList was built tip-first; reverse it to fork-first order.
	for i, j := 0, len(attachList)-1; i < j; i, j = i+1, j-1 {
		attachList[i], attachList[j] = attachList[j], attachList[i]
	}

	batch := store.NewBatch()
	overlay := newBatchOverlay(store)
	recording := recordingBatch{Batch: batch, overlay: overlay}
	result := &ReorgResult{}

	// One overlay spans the whole detach+attach walk: a block attached
	// earlier in this same reorg may have its output spent by a block
	// attached later in it, and that later block's lutxo.AttachTransaction
	// must see the earlier block's descriptor write even though neither has
	// been committed to store yet.
	for _, idx := range detachList {
		_, blk, ok := store.GetBlock(idx.GetBlockHash())
		if !ok {
			return nil, errcode.New(errcode.ErrReorgFailed)
		}
		if err := detachWith(overlay, recording, blk, idx); err != nil {
			return nil, errcode.New(errcode.ErrReorgFailed)
		}
		result.Detached = append(result.Detached, idx)
		result.DetachedBlocks = append(result.DetachedBlocks, blk)
	}

	for _, idx := range attachList {
		blk, err := loadBlock(idx)
		if err != nil {
			return nil, errcode.New(errcode.ErrReorgFailed)
		}
		if err := attachWith(overlay, recording, blk, idx); err != nil {
			return nil, errcode.New(errcode.ErrReorgFailed)
		}
		result.Attached = append(result.Attached, idx)
		result.AttachedBlocks = append(result.AttachedBlocks, blk)
	}

	if err := batch.Commit(); err != nil {
		return nil, errcode.StorageFailure(err)
	}
	return result, nil
}
