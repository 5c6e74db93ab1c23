// Package process implements BlockProcessor and TransactionProcessor (spec
// component C9): the thin classifiers a network layer calls into — route an
// arriving block or transaction either straight into Blockchain or into the
// matching orphanage, and promote an orphanage's waiting entries once the
// hash they were blocked on becomes known.
//
// Grounded on copernicus's service/blockservice.go ProcessBlock/
// ProcessNewBlock (the hasBlock(parent)-then-putBlock-else-orphan branch,
// and the orphan-promotion walk after a successful connect) and
// msghandle/txmessage.go's ProcessTxMessage/mapOrphanTransactionsByPrev
// promotion loop for the transaction side.
package process

import (
	"github.com/ledgerforge/chaincore/chain"
	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/log"
	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/orphan"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/util"
)

// BlockProcessor classifies arriving blocks: attach them if their parent is
// known, otherwise hold them in a BlockOrphanage until it arrives.
type BlockProcessor struct {
	bc      *chain.Blockchain
	orphans *orphan.BlockOrphanage
}

// NewBlockProcessor builds a BlockProcessor over bc and orphans.
func NewBlockProcessor(bc *chain.Blockchain, orphans *orphan.BlockOrphanage) *BlockProcessor {
	return &BlockProcessor{bc: bc, orphans: orphans}
}

// AcceptBlock is acceptBlock (spec §4.8): if blk's parent is known (or blk is
// itself genesis), route it to Blockchain.PutBlock and promote any orphans
// that were waiting on it; otherwise hold it in the orphanage and report
// (false, nil) — an orphan is not a processing failure.
func (p *BlockProcessor) AcceptBlock(blk *block.Block) (bool, error) {
	parentKnown := blk.Header.IsGenesisHeader() || p.bc.HasBlock(blk.Header.HashPrevBlock)
	if !parentKnown {
		log.Debug("acceptBlock: %s orphaned, waiting on parent %s", blk.GetHash(), blk.Header.HashPrevBlock)
		p.orphans.PutOrphan(blk)
		return false, nil
	}

	ok, err := p.bc.PutBlock(blk)
	if err != nil {
		return false, err
	}
	if ok {
		p.promoteOrphans(blk.GetHash())
	}
	return ok, nil
}

// PutOrphan stores blk directly in the orphanage, bypassing the parent
// check — for out-of-order gossip paths that already know blk can't attach
// yet.
func (p *BlockProcessor) PutOrphan(blk *block.Block) {
	p.orphans.PutOrphan(blk)
}

// promoteOrphans attaches every orphan waiting on parentHash, recursively
// promoting their own children in turn — a single accepted block can
// cascade-resolve an entire chain of orphans.
func (p *BlockProcessor) promoteOrphans(parentHash util.Hash) {
	for _, child := range p.orphans.GetOrphansDependingOn(parentHash) {
		childHash := child.GetHash()
		p.orphans.RemoveOrphan(childHash)
		ok, err := p.bc.PutBlock(child)
		if err == nil && ok {
			log.Debug("acceptBlock: promoted orphan %s now that parent %s is known", childHash, parentHash)
			p.promoteOrphans(childHash)
		}
	}
}

// TransactionProcessor classifies arriving transactions: pool them if every
// input resolves, otherwise hold them in a TransactionOrphanage until the
// transaction(s) they depend on arrive.
type TransactionProcessor struct {
	bc      *chain.Blockchain
	orphans *orphan.TransactionOrphanage
}

// NewTransactionProcessor builds a TransactionProcessor over bc and orphans.
func NewTransactionProcessor(bc *chain.Blockchain, orphans *orphan.TransactionOrphanage) *TransactionProcessor {
	return &TransactionProcessor{bc: bc, orphans: orphans}
}

// AddTransactionToPool is addTransactionToPool (spec §4.8): admits t to the
// disk-pool via Blockchain.PutTransaction, or — on MissingInputs — files it
// in the orphanage against every input transaction hash that isn't yet
// known. A later successful AddTransactionToPool for one of those hashes
// triggers a promotion attempt; a block confirming one of those hashes does
// not, as BlockProcessor never consults the transaction orphanage.
func (p *TransactionProcessor) AddTransactionToPool(t *tx.Transaction, entryTime, expireAt int64) error {
	err := p.bc.PutTransaction(t, entryTime)
	if err == nil {
		p.promoteOrphans(t.GetHash())
		return nil
	}
	if errcode.IsErrorCode(err, errcode.ErrMissingInputs) {
		log.Debug("addTransactionToPool: %s orphaned on missing inputs", t.GetHash())
		p.orphans.PutOrphan(t, missingInputHashes(p.bc, t), expireAt)
	}
	return err
}

// PutOrphan stores t directly in the orphanage against missing, bypassing
// the initial admission attempt.
func (p *TransactionProcessor) PutOrphan(t *tx.Transaction, missing []util.Hash, expireAt int64) {
	p.orphans.PutOrphan(t, missing, expireAt)
}

// promoteOrphans resubmits every orphan transaction waiting on txHash.
func (p *TransactionProcessor) promoteOrphans(txHash util.Hash) {
	for _, dependent := range p.orphans.GetOrphansDependingOn(txHash) {
		depHash := dependent.GetHash()
		p.orphans.RemoveOrphan(depHash)
		if err := p.bc.PutTransaction(dependent, 0); err == nil {
			p.promoteOrphans(depHash)
		} else if errcode.IsErrorCode(err, errcode.ErrMissingInputs) {
			p.orphans.PutOrphan(dependent, missingInputHashes(p.bc, dependent), 0)
		}
	}
}

// missingInputHashes reports which of t's input transaction hashes bc
// cannot currently resolve at all. This is a conservative approximation of
// spec §4.6's "missing outpoint" set: an input whose transaction hash is
// known but whose particular output is already spent is also rejected by
// PutTransaction, but has no future "becomes known" event to re-trigger a
// promotion attempt, so it is deliberately left out of this set.
func missingInputHashes(bc *chain.Blockchain, t *tx.Transaction) []util.Hash {
	var missing []util.Hash
	for _, in := range t.Inputs {
		if in.IsCoinBase() {
			continue
		}
		if !bc.HasTransaction(in.PreviousOutput.Hash) {
			missing = append(missing, in.PreviousOutput.Hash)
		}
	}
	return missing
}
