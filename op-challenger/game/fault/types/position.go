package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	big1 = big.NewInt(1)
)

// RootGIndex is the generalized index of the root of any game tree.
var RootGIndex = big.NewInt(1)

// Position is a generalized index of a node in a perfect binary tree:
// 2^depth + index_at_depth. The root of the tree is 1.
//
// A native uint64 would overflow at the deepest leaves of the real
// protocol's 64-level trace (2^65-1), so the generalized index is kept as
// a *big.Int internally. All constructors copy their input so a Position
// is safe to treat as an immutable value, the way a u128 would behave in
// the reference implementation.
type Position struct {
	gindex *big.Int
}

// NewPositionFromGIndex wraps an existing generalized index.
func NewPositionFromGIndex(gindex *big.Int) Position {
	return Position{gindex: new(big.Int).Set(gindex)}
}

// NewPosition computes a generalized index from a depth and index at that
// depth: 2^depth + indexAtDepth.
func NewPosition(depth uint64, indexAtDepth *big.Int) Position {
	g := new(big.Int).Lsh(big1, uint(depth))
	g.Add(g, indexAtDepth)
	return Position{gindex: g}
}

// RootPosition is the position of the root claim in any game tree.
var RootPosition = NewPositionFromGIndex(RootGIndex)

// ToGIndex returns a defensive copy of the underlying generalized index.
func (p Position) ToGIndex() *big.Int {
	return new(big.Int).Set(p.gindex)
}

// Depth is 127 - leading_zeros(p) for a u128; for a big.Int the highest set
// bit position is BitLen()-1, which is the same quantity.
func (p Position) Depth() uint64 {
	return uint64(p.gindex.BitLen() - 1)
}

// IndexAtDepth returns p - 2^depth(p).
func (p Position) IndexAtDepth() *big.Int {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big1, uint(p.Depth())), big1)
	return new(big.Int).And(p.gindex, mask)
}

// Left returns the left child position: p << 1.
func (p Position) Left() Position {
	return Position{gindex: new(big.Int).Lsh(p.gindex, 1)}
}

// Right returns the right child position: (p << 1) | 1.
func (p Position) Right() Position {
	g := new(big.Int).Lsh(p.gindex, 1)
	g.Or(g, big1)
	return Position{gindex: g}
}

// Parent returns p >> 1.
func (p Position) Parent() Position {
	return Position{gindex: new(big.Int).Rsh(p.gindex, 1)}
}

// RightIndex returns the rightmost leaf position, at maxDepth, within the
// subtree rooted at p: (p << (D - depth(p))) | (2^(D - depth(p)) - 1).
func (p Position) RightIndex(maxDepth uint64) Position {
	remaining := maxDepth - p.Depth()
	g := new(big.Int).Lsh(p.gindex, uint(remaining))
	ones := new(big.Int).Sub(new(big.Int).Lsh(big1, uint(remaining)), big1)
	g.Or(g, ones)
	return Position{gindex: g}
}

// TraceIndex returns the index into the execution trace that this position
// commits to: index_at_depth(right_index(p, D)).
func (p Position) TraceIndex(maxDepth uint64) *big.Int {
	return p.RightIndex(maxDepth).IndexAtDepth()
}

// MakeMove returns the relative position for an attack (descends left of p)
// or defense (descends left of p's right sibling) move against p:
// ((¬is_attack | p) << 1).
func (p Position) MakeMove(isAttack bool) Position {
	base := new(big.Int).Set(p.gindex)
	if !isAttack {
		base.Or(base, big1)
	}
	return Position{gindex: new(big.Int).Lsh(base, 1)}
}

// IsRootPosition reports whether p is the root of the game tree.
func (p Position) IsRootPosition() bool {
	return p.gindex.Cmp(RootGIndex) == 0
}

// Equal reports whether two positions are the same generalized index.
func (p Position) Equal(o Position) bool {
	return p.gindex.Cmp(o.gindex) == 0
}

// Bytes32 ABI-encodes the generalized index as a uint256, the wire form
// used when a Position is packed into calldata for attack/defend/step.
func (p Position) Bytes32() [32]byte {
	u, overflow := uint256.FromBig(p.gindex)
	if overflow {
		// A 128-bit generalized index never overflows a uint256; this would
		// only trip if a caller constructed a Position directly from a
		// corrupt or adversarial big.Int.
		panic("position: generalized index overflows uint256")
	}
	return u.Bytes32()
}

func (p Position) String() string {
	return fmt.Sprintf("Position(gindex: %s, depth: %d, indexAtDepth: %s)", p.gindex, p.Depth(), p.IndexAtDepth())
}
