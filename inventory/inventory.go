// Package inventory implements InventoryProcessor (spec component C8):
// AlreadyHas, the predicate that tells a network layer whether an announced
// block or transaction is already known in any form, so it never re-fetches
// something it already has.
//
// Grounded on copernicus's blockchain/validation.go AlreadyHave (a storage
// check, which covers both on-chain and disk-pool transactions, then the
// matching orphanage, minus the bloom-filter/mempool fee-relay concerns that
// don't apply here) and on its general use of github.com/hashicorp/golang-lru
// to keep a hot predicate cheap — the same library
// persist/storage/leveldbstore's BlockIndex cache already wires in, reused
// here for the announcement-frequency lookup SPEC_FULL.md's domain-stack
// table calls for.
//
// Processor implements event.ChainEventListener so a caller wiring it in via
// Blockchain.SetEventListener gets cache invalidation for free: a "false"
// cached for a block or transaction before it existed must not outlive the
// moment it starts existing.
package inventory

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/ledgerforge/chaincore/event"
	"github.com/ledgerforge/chaincore/model/orphan"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
)

const cacheSize = 8192

var _ event.ChainEventListener = (*Processor)(nil)

// Processor answers AlreadyHas against storage and the two orphanages.
type Processor struct {
	store       storage.BlockStorage
	blockOrphan *orphan.BlockOrphanage
	txOrphan    *orphan.TransactionOrphanage
	cache       *lru.Cache
}

// New builds a Processor. blockOrphan/txOrphan may be nil if the caller
// never routes anything to an orphanage (AlreadyHas then only consults
// storage).
func New(store storage.BlockStorage, blockOrphan *orphan.BlockOrphanage, txOrphan *orphan.TransactionOrphanage) *Processor {
	cache, _ := lru.New(cacheSize)
	return &Processor{store: store, blockOrphan: blockOrphan, txOrphan: txOrphan, cache: cache}
}

// AlreadyHas reports whether inv's referenced item is known to the node in
// any form: on the best chain or a known fork, in the disk-pool, or sitting
// in the corresponding orphanage. It is never a false negative for anything
// actually persisted, per spec §4.7.
func (p *Processor) AlreadyHas(inv event.InvVector) bool {
	if v, ok := p.cache.Get(inv); ok {
		return v.(bool)
	}
	result := p.compute(inv)
	p.cache.Add(inv, result)
	return result
}

func (p *Processor) compute(inv event.InvVector) bool {
	switch inv.Type {
	case event.InvTypeBlock, event.InvTypeFilteredBlock:
		if p.store.HasBlock(inv.Hash) {
			return true
		}
		return p.blockOrphan != nil && p.blockOrphan.HasOrphan(inv.Hash)
	case event.InvTypeTx:
		if p.store.HasTransaction(inv.Hash) {
			return true
		}
		return p.txOrphan != nil && p.txOrphan.HasOrphan(inv.Hash)
	default:
		return false
	}
}

// Forget evicts inv from the cache — callers invalidate an entry after a
// mutation that could flip its answer (a block arriving, an orphan expiring)
// rather than waiting out a stale cached "false".
func (p *Processor) Forget(inv event.InvVector) {
	p.cache.Remove(inv)
}

// Processor implements event.ChainEventListener so a Blockchain wired to it
// via SetEventListener keeps AlreadyHas's cache honest on its own: a "false"
// cached before a block or transaction existed must not survive the moment
// it does, per spec §4.7's no-false-negatives requirement.

// OnAttachBlock forgets the block itself and every transaction it carries —
// each may have been queried (and cached false) before this block made them
// known.
func (p *Processor) OnAttachBlock(cb event.ChainBlock) {
	p.Forget(event.InvVector{Type: event.InvTypeBlock, Hash: cb.Block.GetHash()})
	for _, t := range cb.Block.Transactions {
		p.Forget(event.InvVector{Type: event.InvTypeTx, Hash: t.GetHash()})
	}
}

// OnDetachBlock forgets the block and its transactions, symmetric with
// OnAttachBlock — a detached block's hash stays known (it's still on a
// fork), but a stale cache entry should not be trusted to still reflect
// that correctly.
func (p *Processor) OnDetachBlock(cb event.ChainBlock) {
	p.Forget(event.InvVector{Type: event.InvTypeBlock, Hash: cb.Block.GetHash()})
	for _, t := range cb.Block.Transactions {
		p.Forget(event.InvVector{Type: event.InvTypeTx, Hash: t.GetHash()})
	}
}

// OnNewTransaction forgets t: it just became known, either via the pool or
// (via OnAttachBlock, separately) a block.
func (p *Processor) OnNewTransaction(t *tx.Transaction) {
	p.Forget(event.InvVector{Type: event.InvTypeTx, Hash: t.GetHash()})
}

// OnRemoveTransaction forgets t: whether evicted or just confirmed, any
// cached answer for it is stale.
func (p *Processor) OnRemoveTransaction(t *tx.Transaction) {
	p.Forget(event.InvVector{Type: event.InvTypeTx, Hash: t.GetHash()})
}
