// Package errcode defines the typed error values the chain core produces, in
// the style of copernicus's errcode package: a per-module int code plus a
// human-readable description, wrapped in a single ProjectError type.
package errcode

import (
	"fmt"

	"github.com/pkg/errors"
)

// Module base offsets, mirroring the teacher's iota-block-per-module layout.
const (
	ChainErrorBase = iota * 1000
	MagnetErrorBase
	PoolErrorBase
	OrphanErrorBase
	StorageErrorBase
)

// ChainErr enumerates the reorg/chain-state error kinds from spec §7.
type ChainErr int

const (
	ErrParentBlockMissing ChainErr = ChainErrorBase + iota
	ErrInvalidBlockHeight
	ErrReorgFailed
)

var chainErrStrings = map[ChainErr]string{
	ErrParentBlockMissing: "parent block missing: caller must route to the orphanage",
	ErrInvalidBlockHeight: "requested height outside [0, bestHeight]",
	ErrReorgFailed:        "reorganization failed and was rolled back to the original best chain",
}

func (e ChainErr) String() string { return chainErrStrings[e] }

// MagnetErr enumerates TransactionMagnet attach/detach failures.
type MagnetErr int

const (
	ErrInputAlreadySpent MagnetErr = MagnetErrorBase + iota
	ErrInputMissing
	ErrInvalidOutPoint
)

var magnetErrStrings = map[MagnetErr]string{
	ErrInputAlreadySpent: "referenced output already spent by another best-chain input",
	ErrInputMissing:      "referenced output could not be resolved",
	ErrInvalidOutPoint:   "transaction missing or output index out of range",
}

func (e MagnetErr) String() string { return magnetErrStrings[e] }

// PoolErr enumerates disk-pool admission failures.
type PoolErr int

const (
	ErrMissingInputs PoolErr = PoolErrorBase + iota
	ErrAlreadyOnChain
)

var poolErrStrings = map[PoolErr]string{
	ErrMissingInputs:  "one or more inputs could not be resolved to an unspent output",
	ErrAlreadyOnChain: "transaction is already present on the best chain",
}

func (e PoolErr) String() string { return poolErrStrings[e] }

// errCoder is satisfied by every one of the typed enums above.
type errCoder interface {
	fmt.Stringer
	moduleCode() (int, string)
}

func (e ChainErr) moduleCode() (int, string)  { return int(e), "chain" }
func (e MagnetErr) moduleCode() (int, string) { return int(e), "magnet" }
func (e PoolErr) moduleCode() (int, string)   { return int(e), "pool" }

// ProjectError is the single error type surfaced by this module's public
// APIs, carrying the offending module name, a stable numeric code, and a
// description.
type ProjectError struct {
	Module string
	Code   int
	Desc   string
}

func (e ProjectError) Error() string {
	return fmt.Sprintf("chaincore: module=%s code=%d: %s", e.Module, e.Code, e.Desc)
}

// New builds a ProjectError from one of the typed error enums above.
func New(code errCoder) error {
	c, module := code.moduleCode()
	return ProjectError{Module: module, Code: c, Desc: code.String()}
}

// IsErrorCode reports whether err is the ProjectError produced by code.
func IsErrorCode(err error, code errCoder) bool {
	pe, ok := err.(ProjectError)
	if !ok {
		return false
	}
	c, module := code.moduleCode()
	return pe.Module == module && pe.Code == c
}

// StorageFailure wraps an underlying storage I/O error, preserving its cause
// via github.com/pkg/errors the way the teacher's disk-boundary code does.
func StorageFailure(cause error) error {
	return errors.Wrap(cause, "storage failure")
}
