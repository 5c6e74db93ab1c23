// Package pow provides the chain-work arithmetic the reorg engine compares
// to decide which branch is "best": compact-bits <-> big.Int conversion and
// the expected-hashes-to-produce-this-header formula. Grounded on
// copernicus's model/pow/pow.go, stripped of its EDA/DAA difficulty
// retargeting schedule — consensus rule versioning is an explicit Non-goal
// of this core; only the work comparison itself is needed.
package pow

import "math/big"

var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CompactToBig expands the Bitcoin "compact" difficulty-bits encoding (a
// 3-byte mantissa with a 1-byte exponent) into a full target.
func CompactToBig(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff

	var target *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target = big.NewInt(int64(mantissa))
	} else {
		target = big.NewInt(int64(mantissa))
		target.Lsh(target, uint(8*(exponent-3)))
	}

	if bits&0x00800000 != 0 {
		target.Neg(target)
	}
	return target
}

// BigToCompact is the inverse of CompactToBig.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	negative := n.Sign() < 0
	work := new(big.Int).Abs(n)
	exponent := uint(len(work.Bytes()))

	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(work.Uint64() << (8 * (3 - exponent)))
	} else {
		shifted := new(big.Int).Rsh(work, 8*(exponent-3))
		mantissa = uint32(shifted.Uint64())
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent)<<24 | mantissa
	if negative {
		compact |= 0x00800000
	}
	return compact
}

// BlockProof returns the expected number of hash evaluations to produce a
// header with the given difficulty bits: 2**256 / (target+1). This is the
// per-block contribution accumulated into BlockIndex.ChainWork.
func BlockProof(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(oneLsh256, denom)
}

// CheckProofOfWork reports whether hash, interpreted as a big-endian
// integer, is at or below the target implied by bits (and that bits itself
// encodes a target within powLimit).
func CheckProofOfWork(hashBigEndian []byte, bits uint32, powLimit *big.Int) bool {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return false
	}
	if powLimit != nil && target.Cmp(powLimit) > 0 {
		return false
	}
	h := new(big.Int).SetBytes(hashBigEndian)
	return h.Cmp(target) <= 0
}
