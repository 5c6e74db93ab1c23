// Package outpoint defines the reference to a single transaction output that
// a TxInput spends.
package outpoint

import (
	"fmt"
	"io"

	"github.com/ledgerforge/chaincore/util"
)

// CoinbaseIndex is the sentinel output index used by a coinbase input's
// OutPoint (paired with the all-zero hash).
const CoinbaseIndex = 0xffffffff

// OutPoint identifies a transaction output by its containing transaction's
// hash and its index within that transaction's output list.
type OutPoint struct {
	Hash  util.Hash
	Index uint32
}

// New builds an OutPoint.
func New(hash util.Hash, index uint32) OutPoint {
	return OutPoint{Hash: hash, Index: index}
}

// IsCoinBase reports whether this OutPoint is the reserved coinbase marker.
func (o OutPoint) IsCoinBase() bool {
	return o.Hash.IsZero() && o.Index == CoinbaseIndex
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash.String(), o.Index)
}

// Serialize writes the OutPoint in wire format: hash then little-endian index.
func (o OutPoint) Serialize(w io.Writer) error {
	if err := o.Hash.Serialize(w); err != nil {
		return err
	}
	return util.WriteUint32(w, o.Index)
}

// Deserialize reads an OutPoint written by Serialize.
func Deserialize(r io.Reader) (OutPoint, error) {
	hash, err := util.DeserializeHash(r)
	if err != nil {
		return OutPoint{}, err
	}
	index, err := util.ReadUint32(r)
	if err != nil {
		return OutPoint{}, err
	}
	return OutPoint{Hash: hash, Index: index}, nil
}
