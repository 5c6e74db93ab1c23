// Package block defines the BlockHeader and Block wire types.
package block

import (
	"bytes"
	"io"

	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/util"
)

// headerSize is the fixed encoded length of a BlockHeader: 4 + 32 + 32 + 4 + 4 + 4.
const headerSize = 80

// BlockHeader is the 80-byte fixed structure whose hash anchors a block into
// the chain.
type BlockHeader struct {
	Version       int32
	HashPrevBlock util.Hash
	MerkleRoot    util.Hash
	Time          uint32
	Bits          uint32
	Nonce         uint32
}

// IsGenesisHeader reports whether this header has no parent.
func (h *BlockHeader) IsGenesisHeader() bool {
	return h.HashPrevBlock.IsZero()
}

// Serialize writes the header in wire format.
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := util.WriteUint32(w, uint32(h.Version)); err != nil {
		return err
	}
	if err := h.HashPrevBlock.Serialize(w); err != nil {
		return err
	}
	if err := h.MerkleRoot.Serialize(w); err != nil {
		return err
	}
	if err := util.WriteUint32(w, h.Time); err != nil {
		return err
	}
	if err := util.WriteUint32(w, h.Bits); err != nil {
		return err
	}
	return util.WriteUint32(w, h.Nonce)
}

// DeserializeHeader reads a BlockHeader written by Serialize.
func DeserializeHeader(r io.Reader) (*BlockHeader, error) {
	version, err := util.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	prev, err := util.DeserializeHash(r)
	if err != nil {
		return nil, err
	}
	merkle, err := util.DeserializeHash(r)
	if err != nil {
		return nil, err
	}
	t, err := util.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	bits, err := util.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	nonce, err := util.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	return &BlockHeader{
		Version:       int32(version),
		HashPrevBlock: prev,
		MerkleRoot:    merkle,
		Time:          t,
		Bits:          bits,
		Nonce:         nonce,
	}, nil
}

// GetHash is the block's identifying hash: double-SHA-256 of the serialized
// header (the header alone, not the transactions — the classic Bitcoin block
// hash).
func (h *BlockHeader) GetHash() util.Hash {
	var buf bytes.Buffer
	_ = h.Serialize(&buf)
	return util.DoubleSha256(buf.Bytes())
}

// Block is a header plus its ordered transactions, transactions[0] being the
// coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []*tx.Transaction
}

// GetHash returns the block's hash (the header hash).
func (b *Block) GetHash() util.Hash {
	return b.Header.GetHash()
}

// CoinBase returns the block's first transaction, or nil for an empty block.
func (b *Block) CoinBase() *tx.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// Serialize writes the block in wire format: header then a var-int count of
// transactions then each transaction.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	if err := util.WriteVarInt(w, uint64(len(b.Transactions))); err != nil {
		return err
	}
	for _, t := range b.Transactions {
		if err := t.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a Block written by Serialize.
func Deserialize(r io.Reader) (*Block, error) {
	header, err := DeserializeHeader(r)
	if err != nil {
		return nil, err
	}
	count, err := util.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	txs := make([]*tx.Transaction, count)
	for i := range txs {
		t, err := tx.Deserialize(r)
		if err != nil {
			return nil, err
		}
		txs[i] = t
	}
	return &Block{Header: *header, Transactions: txs}, nil
}

// SerializeSize returns the total encoded block size in bytes.
func (b *Block) SerializeSize() int {
	var buf bytes.Buffer
	_ = b.Serialize(&buf)
	return buf.Len()
}
