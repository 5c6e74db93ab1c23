// Package blockindex defines BlockIndex, the in-memory metadata kept for
// every known block (main chain or any fork) — spec.md's BlockInfo.
// Grounded on copernicus's model/blockindex/blockindex.go: the Prev pointer,
// skip-pointer ancestor lookup, and chain-work accumulation are adapted
// directly from it; NextBlockHash is new (the teacher tracks "on the active
// chain" via a slice index instead, but spec.md's invariant 2 requires an
// explicit nextBlockHash field per BlockInfo).
package blockindex

import (
	"math/big"

	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/util"
)

// BlockIndex is the metadata kept per known block: height, header, the
// cumulative chain work from genesis through this block, the child on the
// best chain (if any), and bookkeeping for locating the block's bytes.
type BlockIndex struct {
	Hash   util.Hash // block hash, cached
	Header block.BlockHeader

	Prev *BlockIndex
	// Skip allows O(log n) ancestor lookups; see GetAncestor.
	Skip *BlockIndex

	Height int32
	ChainWork big.Int

	// NextBlockHash is the child on the *best* chain. None for tips and for
	// any block that is not (or is no longer) on the best chain.
	NextBlockHash *util.Hash

	TransactionCount int
	BlockSize        int

	// BlockLocatorOnDisk is an opaque reference handed back by BlockStorage;
	// the chain core never interprets it.
	BlockLocatorOnDisk []byte

	// SequenceID is persisted by leveldbstore; no chain-core code sets it
	// or reads it.
	SequenceID int64
}

// NewBlockIndex builds a BlockIndex for a freshly-seen header. Height,
// ChainWork and Prev are filled in by the caller once the parent is known
// (see lchain.NewChildIndex).
func NewBlockIndex(header block.BlockHeader) *BlockIndex {
	return &BlockIndex{
		Hash:   header.GetHash(),
		Header: header,
	}
}

// GetBlockHash returns the cached block hash.
func (bi *BlockIndex) GetBlockHash() util.Hash {
	return bi.Hash
}

// IsGenesis reports whether this index has no parent.
func (bi *BlockIndex) IsGenesis() bool {
	return bi.Header.IsGenesisHeader()
}

// invertLowestOne turns the lowest set bit of n into a 0.
func invertLowestOne(n int32) int32 {
	return n & (n - 1)
}

// getSkipHeight computes what height BuildSkip's Skip pointer should target,
// verbatim from the teacher's comment-documented algorithm.
func getSkipHeight(height int32) int32 {
	if height < 2 {
		return 0
	}
	if height&1 > 0 {
		return invertLowestOne(invertLowestOne(height-1)) + 1
	}
	return invertLowestOne(height)
}

// BuildSkip wires up the Skip pointer once Prev is known; call after
// attaching this index to its parent.
func (bi *BlockIndex) BuildSkip() {
	if bi.Prev != nil {
		bi.Skip = bi.Prev.GetAncestor(getSkipHeight(bi.Height))
	}
}

// GetAncestor efficiently walks back to the ancestor of this block at the
// given height, in O(log(height difference)) steps via the skip pointers.
func (bi *BlockIndex) GetAncestor(height int32) *BlockIndex {
	if height > bi.Height || height < 0 {
		return nil
	}

	walk := bi
	walkHeight := bi.Height
	for walkHeight > height {
		skipHeight := getSkipHeight(walkHeight)
		skipHeightPrev := getSkipHeight(walkHeight - 1)
		if walk.Skip != nil && (skipHeight == height ||
			(skipHeight > height && !(skipHeightPrev < skipHeight-2 && skipHeightPrev >= height))) {
			walk = walk.Skip
			walkHeight = skipHeight
		} else {
			if walk.Prev == nil {
				return nil
			}
			walk = walk.Prev
			walkHeight--
		}
	}
	return walk
}
