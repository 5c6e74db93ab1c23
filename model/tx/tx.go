// Package tx defines the Transaction wire type: its inputs, outputs and
// serialization/hashing, bit-exact to the Bitcoin-style model referenced by
// the chain core spec. Script *interpretation* is out of scope; a
// TxInput/TxOutput's script fields are carried as opaque bytes.
package tx

import (
	"bytes"
	"io"

	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/util"
)

const maxScriptSize = 10_000_000

// TxInput references a previously unspent output and carries the unlocking
// script that (per the out-of-scope script engine) proves the right to spend
// it.
type TxInput struct {
	PreviousOutput outpoint.OutPoint
	UnlockingScript []byte
	Sequence        uint32
}

// NewCoinBaseInput builds the reserved input used by a block's first
// transaction: OutPoint = (all-zero hash, 0xFFFFFFFF).
func NewCoinBaseInput(script []byte, sequence uint32) TxInput {
	return TxInput{
		PreviousOutput:  outpoint.New(util.HashZero, outpoint.CoinbaseIndex),
		UnlockingScript: script,
		Sequence:        sequence,
	}
}

// IsCoinBase reports whether this input is the reserved coinbase marker.
func (in TxInput) IsCoinBase() bool {
	return in.PreviousOutput.IsCoinBase()
}

// TxOutput is a single spendable (until marked otherwise) value assignment.
type TxOutput struct {
	Value         int64
	LockingScript []byte
}

// Transaction is an ordered set of inputs spending prior outputs and an
// ordered set of outputs it creates.
type Transaction struct {
	Version  int32
	Inputs   []TxInput
	Outputs  []TxOutput
	LockTime uint32
}

// IsCoinBase reports whether this transaction is a block's first transaction:
// exactly one input, and that input is the coinbase marker.
func (t *Transaction) IsCoinBase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].IsCoinBase()
}

// Serialize writes the transaction in wire format.
func (t *Transaction) Serialize(w io.Writer) error {
	if err := util.WriteUint32(w, uint32(t.Version)); err != nil {
		return err
	}
	if err := util.WriteVarInt(w, uint64(len(t.Inputs))); err != nil {
		return err
	}
	for _, in := range t.Inputs {
		if err := in.PreviousOutput.Serialize(w); err != nil {
			return err
		}
		if err := util.WriteVarBytes(w, in.UnlockingScript); err != nil {
			return err
		}
		if err := util.WriteUint32(w, in.Sequence); err != nil {
			return err
		}
	}
	if err := util.WriteVarInt(w, uint64(len(t.Outputs))); err != nil {
		return err
	}
	for _, out := range t.Outputs {
		if err := util.WriteInt64(w, out.Value); err != nil {
			return err
		}
		if err := util.WriteVarBytes(w, out.LockingScript); err != nil {
			return err
		}
	}
	return util.WriteUint32(w, t.LockTime)
}

// Deserialize reads a transaction written by Serialize.
func Deserialize(r io.Reader) (*Transaction, error) {
	version, err := util.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	t := &Transaction{Version: int32(version)}

	inCount, err := util.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	t.Inputs = make([]TxInput, inCount)
	for i := range t.Inputs {
		op, err := outpoint.Deserialize(r)
		if err != nil {
			return nil, err
		}
		script, err := util.ReadVarBytes(r, maxScriptSize)
		if err != nil {
			return nil, err
		}
		seq, err := util.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		t.Inputs[i] = TxInput{PreviousOutput: op, UnlockingScript: script, Sequence: seq}
	}

	outCount, err := util.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	t.Outputs = make([]TxOutput, outCount)
	for i := range t.Outputs {
		value, err := util.ReadInt64(r)
		if err != nil {
			return nil, err
		}
		script, err := util.ReadVarBytes(r, maxScriptSize)
		if err != nil {
			return nil, err
		}
		t.Outputs[i] = TxOutput{Value: value, LockingScript: script}
	}

	lockTime, err := util.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	t.LockTime = lockTime
	return t, nil
}

// GetHash returns the transaction's identifying hash: double-SHA-256 of its
// serialized bytes.
func (t *Transaction) GetHash() util.Hash {
	var buf bytes.Buffer
	// Serialize cannot fail writing into a bytes.Buffer.
	_ = t.Serialize(&buf)
	return util.DoubleSha256(buf.Bytes())
}

// SerializeSize returns the encoded length in bytes, used for block-size
// accounting.
func (t *Transaction) SerializeSize() int {
	var buf bytes.Buffer
	_ = t.Serialize(&buf)
	return buf.Len()
}
