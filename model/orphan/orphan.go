// Package orphan implements the two orphan pools spec.md's data model calls
// for: blocks whose parent hasn't been seen yet (BlockOrphanage, component
// C5) and transactions whose spent inputs haven't been seen yet
// (TransactionOrphanage, component C6). Both are keyed by "the thing I'm
// missing" so a Blockchain/BlockProcessor can cheaply find everything that
// becomes connectable once that thing finally arrives.
//
// Grounded on copernicus's model/chain.Chain.orphan map (parent-hash ->
// child BlockIndex list, promoted breadth-first once the parent lands — see
// Chain.AddToBranch's queue walk) for BlockOrphanage, and on
// msghandle/txmessage.go's mapOrphanTransactionsByPrev / OrphanTx{TimeExpire}
// for TransactionOrphanage's per-entry expiry, which the teacher sketches
// but never wires up — SPEC_FULL.md's supplemented-features section calls
// for expiry to actually be enforced here.
package orphan

import (
	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/util"
)

// BlockOrphanage holds blocks whose parent is unknown, indexed both by their
// own hash (for hasOrphan/removeOrphan) and by the missing parent hash (for
// promoting every waiting child once that parent lands).
type BlockOrphanage struct {
	byHash       map[util.Hash]*block.Block
	byParentHash map[util.Hash]map[util.Hash]struct{}
	maxEntries   int
}

// NewBlockOrphanage builds an empty orphanage capped at maxEntries blocks;
// once the cap is hit, PutOrphan evicts an arbitrary entry (the first one Go
// map iteration yields, not the oldest — acceptable since this is a DoS
// backstop, not a policy).
func NewBlockOrphanage(maxEntries int) *BlockOrphanage {
	return &BlockOrphanage{
		byHash:       make(map[util.Hash]*block.Block),
		byParentHash: make(map[util.Hash]map[util.Hash]struct{}),
		maxEntries:   maxEntries,
	}
}

// PutOrphan stores blk under its own hash and under its (unknown) parent hash.
func (o *BlockOrphanage) PutOrphan(blk *block.Block) {
	hash := blk.GetHash()
	if _, exists := o.byHash[hash]; exists {
		return
	}
	if o.maxEntries > 0 && len(o.byHash) >= o.maxEntries {
		o.evictOne()
	}
	o.byHash[hash] = blk
	parent := blk.Header.HashPrevBlock
	if o.byParentHash[parent] == nil {
		o.byParentHash[parent] = make(map[util.Hash]struct{})
	}
	o.byParentHash[parent][hash] = struct{}{}
}

func (o *BlockOrphanage) evictOne() {
	for hash := range o.byHash {
		o.RemoveOrphan(hash)
		return
	}
}

// HasOrphan reports whether hash is a currently-held orphan block.
func (o *BlockOrphanage) HasOrphan(hash util.Hash) bool {
	_, ok := o.byHash[hash]
	return ok
}

// GetOrphan returns the orphan block for hash, if held.
func (o *BlockOrphanage) GetOrphan(hash util.Hash) (*block.Block, bool) {
	blk, ok := o.byHash[hash]
	return blk, ok
}

// RemoveOrphan discards the orphan block with the given hash.
func (o *BlockOrphanage) RemoveOrphan(hash util.Hash) {
	blk, ok := o.byHash[hash]
	if !ok {
		return
	}
	delete(o.byHash, hash)
	parent := blk.Header.HashPrevBlock
	if siblings, ok := o.byParentHash[parent]; ok {
		delete(siblings, hash)
		if len(siblings) == 0 {
			delete(o.byParentHash, parent)
		}
	}
}

// GetOrphansDependingOn returns every orphan block directly waiting on
// parentHash, without removing them — the caller (BlockProcessor) removes
// each as it successfully attaches it, since promotion can cascade
// (a grandchild only becomes connectable once its own parent attaches).
func (o *BlockOrphanage) GetOrphansDependingOn(parentHash util.Hash) []*block.Block {
	children, ok := o.byParentHash[parentHash]
	if !ok {
		return nil
	}
	out := make([]*block.Block, 0, len(children))
	for hash := range children {
		out = append(out, o.byHash[hash])
	}
	return out
}

// Len reports how many orphan blocks are currently held.
func (o *BlockOrphanage) Len() int {
	return len(o.byHash)
}

// GetRootOrphanOf walks hashPrevBlock links within the orphanage, starting
// at hash, to find the earliest ancestor that is itself still an orphan —
// spec.md §4.5's getRootOrphanOf, the entry point a caller re-announces
// getdata for, since requesting hash itself would only re-fetch a block
// whose own parent is still missing. Returns hash unchanged if hash isn't
// an orphan, or if its own parent isn't one either.
func (o *BlockOrphanage) GetRootOrphanOf(hash util.Hash) util.Hash {
	for {
		blk, ok := o.byHash[hash]
		if !ok {
			return hash
		}
		parent := blk.Header.HashPrevBlock
		if _, ok := o.byHash[parent]; !ok {
			return hash
		}
		hash = parent
	}
}

// orphanTxEntry pairs an orphan transaction with its expiry deadline.
type orphanTxEntry struct {
	tx         *tx.Transaction
	expireTime int64
}

// TransactionOrphanage holds transactions whose spent inputs reference
// transactions not yet known, indexed by their own hash and by every
// missing input hash they depend on.
type TransactionOrphanage struct {
	byHash        map[util.Hash]*orphanTxEntry
	byMissingHash map[util.Hash]map[util.Hash]struct{}
	maxEntries    int
}

// NewTransactionOrphanage builds an empty orphanage capped at maxEntries
// transactions.
func NewTransactionOrphanage(maxEntries int) *TransactionOrphanage {
	return &TransactionOrphanage{
		byHash:        make(map[util.Hash]*orphanTxEntry),
		byMissingHash: make(map[util.Hash]map[util.Hash]struct{}),
		maxEntries:    maxEntries,
	}
}

// PutOrphan stores t, indexed under every input's referenced transaction
// hash that isn't yet known, with an absolute expireAt (Unix seconds)
// deadline supplied by the caller.
func (o *TransactionOrphanage) PutOrphan(t *tx.Transaction, missingHashes []util.Hash, expireAt int64) {
	hash := t.GetHash()
	if _, exists := o.byHash[hash]; exists {
		return
	}
	if o.maxEntries > 0 && len(o.byHash) >= o.maxEntries {
		o.evictOne()
	}
	o.byHash[hash] = &orphanTxEntry{tx: t, expireTime: expireAt}
	for _, missing := range missingHashes {
		if o.byMissingHash[missing] == nil {
			o.byMissingHash[missing] = make(map[util.Hash]struct{})
		}
		o.byMissingHash[missing][hash] = struct{}{}
	}
}

func (o *TransactionOrphanage) evictOne() {
	for hash := range o.byHash {
		o.removeUnlocked(hash)
		return
	}
}

// HasOrphan reports whether hash is a currently-held orphan transaction.
func (o *TransactionOrphanage) HasOrphan(hash util.Hash) bool {
	_, ok := o.byHash[hash]
	return ok
}

// RemoveOrphan discards the orphan transaction with the given hash.
func (o *TransactionOrphanage) RemoveOrphan(hash util.Hash) {
	o.removeUnlocked(hash)
}

func (o *TransactionOrphanage) removeUnlocked(hash util.Hash) {
	entry, ok := o.byHash[hash]
	if !ok {
		return
	}
	delete(o.byHash, hash)
	for _, in := range entry.tx.Inputs {
		missing := in.PreviousOutput.Hash
		if siblings, ok := o.byMissingHash[missing]; ok {
			delete(siblings, hash)
			if len(siblings) == 0 {
				delete(o.byMissingHash, missing)
			}
		}
	}
}

// GetOrphansDependingOn returns every orphan transaction waiting on
// txHash, without removing them.
func (o *TransactionOrphanage) GetOrphansDependingOn(txHash util.Hash) []*tx.Transaction {
	children, ok := o.byMissingHash[txHash]
	if !ok {
		return nil
	}
	out := make([]*tx.Transaction, 0, len(children))
	for hash := range children {
		out = append(out, o.byHash[hash].tx)
	}
	return out
}

// ExpireBefore removes and returns every orphan transaction whose expiry
// deadline is at or before now, the way copernicus's OrphanTx.TimeExpire
// field is meant to be swept but never is — the sweep itself is new,
// required by SPEC_FULL.md's supplemented-feature list.
func (o *TransactionOrphanage) ExpireBefore(now int64) []util.Hash {
	var expired []util.Hash
	for hash, entry := range o.byHash {
		if entry.expireTime <= now {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		o.removeUnlocked(hash)
	}
	return expired
}

// Len reports how many orphan transactions are currently held.
func (o *TransactionOrphanage) Len() int {
	return len(o.byHash)
}
