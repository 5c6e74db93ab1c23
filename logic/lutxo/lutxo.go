// Package lutxo implements TransactionMagnet (spec component C2): attaching
// a transaction to the UTXO set when its containing block is connected, and
// detaching it when that block is disconnected during a reorg.
//
// The teacher keeps a dedicated UTXO coin set (model/utxo.CoinsMap /
// CoinsLruCache, Coin{txOut, height, isCoinBase}) fed by
// logic/ltx.ApplyBlockTransactions inside logic/lchain.ConnectBlock. This
// port folds that bookkeeping directly into each transaction's
// storage.TransactionDescriptor.Spends slice instead of keeping a parallel
// coin set — spec.md's data model already requires a per-output
// spent/unspent record per invariant 4, and lscript's signature/script
// verification that would normally consult the coin set for the previous
// output's script is out of scope (script interpretation is a Non-goal), so
// there is nothing else a separate Coin type would need to carry here.
package lutxo

import (
	"github.com/ledgerforge/chaincore/errcode"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

// DescriptorReader is the read side AttachTransaction/DetachTransaction need:
// just enough to resolve a previous output's current descriptor. Callers
// pass either a storage.BlockStorage directly or, inside a multi-transaction
// block, an overlay that lets a later transaction see an earlier
// transaction's still-uncommitted descriptor writes (logic/lchain's batch
// overlay plays this role during Attach).
type DescriptorReader interface {
	GetTransactionDescriptor(hash util.Hash) (*storage.TransactionDescriptor, bool)
}

// AttachTransaction marks every output t spends as spent and records t's own
// outputs as unspent, staging both into batch. reader resolves each previous
// output's current descriptor — callers apply one AttachTransaction per
// transaction in a block, in block order, before committing the batch
// (mirroring ConnectBlock's per-transaction ApplyBlockTransactions loop).
// An output already marked spent by this same input (the mark disk-pool
// admission leaves) is accepted; a mark by any other input fails with
// ErrInputAlreadySpent.
func AttachTransaction(reader DescriptorReader, batch storage.Batch, t *tx.Transaction, blockHash util.Hash, txIndex int) error {
	if !t.IsCoinBase() {
		for _, in := range t.Inputs {
			prevOut := in.PreviousOutput
			prevDesc, ok := reader.GetTransactionDescriptor(prevOut.Hash)
			if !ok {
				return errcode.New(errcode.ErrInputMissing)
			}
			if int(prevOut.Index) >= len(prevDesc.Spends) {
				return errcode.New(errcode.ErrInvalidOutPoint)
			}
			spentBy := outpoint.New(t.GetHash(), uint32(indexOfInput(t, in)))
			if prev := prevDesc.Spends[prevOut.Index]; prev.Spent && prev.By != spentBy {
				return errcode.New(errcode.ErrInputAlreadySpent)
			}
			prevDesc.Spends[prevOut.Index] = storage.OutputSpend{
				Spent: true,
				By:    spentBy,
			}
			batch.PutTransactionDescriptor(prevOut.Hash, prevDesc)
		}
	}

	spends := make([]storage.OutputSpend, len(t.Outputs))
	batch.PutTransactionDescriptor(t.GetHash(), &storage.TransactionDescriptor{
		Location:  storage.LocationChain,
		BlockHash: blockHash,
		TxIndex:   txIndex,
		Spends:    spends,
	})
	return nil
}

// DetachTransaction reverses AttachTransaction: every output t spent is
// marked unspent again, and t's own chain descriptor is removed. It does not
// put t back into the disk-pool; chain.Blockchain re-admits detached
// transactions after a reorg commits.
func DetachTransaction(reader DescriptorReader, batch storage.Batch, t *tx.Transaction) error {
	if !t.IsCoinBase() {
		for _, in := range t.Inputs {
			prevOut := in.PreviousOutput
			prevDesc, ok := reader.GetTransactionDescriptor(prevOut.Hash)
			if !ok {
				continue
			}
			if int(prevOut.Index) >= len(prevDesc.Spends) {
				continue
			}
			prevDesc.Spends[prevOut.Index] = storage.OutputSpend{}
			batch.PutTransactionDescriptor(prevOut.Hash, prevDesc)
		}
	}
	batch.DeleteTransactionDescriptor(t.GetHash())
	return nil
}

func indexOfInput(t *tx.Transaction, target tx.TxInput) int {
	for i, in := range t.Inputs {
		if in.PreviousOutput == target.PreviousOutput {
			return i
		}
	}
	return -1
}
