// Package event defines the chain core's callback surface: what a
// Blockchain (component C7) reports as blocks attach/detach and
// transactions enter/leave the disk-pool, and the InvVector/InvType pair
// used by InventoryProcessor to describe "a thing that might already be
// known" the way Bitcoin's inv message does.
//
// Grounded on copernicus's net/server.go's use of btcd's wire.InvVect /
// wire.InvType (InvTypeTx / InvTypeBlock / InvTypeFilteredBlock) for the
// InvVector shape, generalized here as a listener interface rather than a
// wire message since P2P transport is out of scope — only the notification
// boundary between the chain core and whatever consumes it survives.
package event

import (
	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/util"
)

// ChainBlock pairs a block with the height it was attached/detached at.
type ChainBlock struct {
	Height int32
	Block  *block.Block
}

// ChainEventListener receives notifications for every mutation
// Blockchain.putBlock/putTransaction produces. Implementations must return
// quickly; Blockchain calls these synchronously while holding its single
// mutex (spec §9's serialization requirement).
type ChainEventListener interface {
	// OnAttachBlock fires once per block newly on the best chain, in
	// ascending height order (a reorg fires one OnDetachBlock per
	// abandoned block, then one OnAttachBlock per newly-active block).
	OnAttachBlock(cb ChainBlock)
	// OnDetachBlock fires once per block leaving the best chain.
	OnDetachBlock(cb ChainBlock)
	// OnNewTransaction fires when a transaction is admitted to the
	// disk-pool.
	OnNewTransaction(t *tx.Transaction)
	// OnRemoveTransaction fires for every non-coinbase transaction of a
	// block newly attached to the best chain, whether or not that
	// transaction had been in the disk-pool. Pool evictions do not fire it.
	OnRemoveTransaction(t *tx.Transaction)
}

// InvType discriminates what an InvVector refers to, mirroring btcd's
// wire.InvType constants.
type InvType uint32

const (
	InvTypeTx InvType = iota
	InvTypeBlock
	InvTypeFilteredBlock
)

func (t InvType) String() string {
	switch t {
	case InvTypeTx:
		return "tx"
	case InvTypeBlock:
		return "block"
	case InvTypeFilteredBlock:
		return "filtered block"
	default:
		return "unknown"
	}
}

// InvVector names one block or transaction by hash, the unit
// InventoryProcessor.AlreadyHas answers a yes/no about.
type InvVector struct {
	Type InvType
	Hash util.Hash
}
