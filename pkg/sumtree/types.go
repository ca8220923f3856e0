package sumtree

import (
	"bytes"
	"fmt"
	"math/big"
)

// Commitment is the (amount, digest) pair carried by every node of a sum tree.
// For leaves the amount is the entity's declared value, for internal nodes it is
// the sum of both children.
type Commitment struct {
	Amount uint64
	Digest []byte
}

// Equal reports whether both the amount and the digest match exactly.
func (c Commitment) Equal(other Commitment) bool {
	return c.Amount == other.Amount && bytes.Equal(c.Digest, other.Digest)
}

// Clone returns a copy that shares no memory with c.
func (c Commitment) Clone() Commitment {
	digest := make([]byte, len(c.Digest))
	copy(digest, c.Digest)
	return Commitment{Amount: c.Amount, Digest: digest}
}

func (c Commitment) String() string {
	return fmt.Sprintf("{amount: %d, digest: %x}", c.Amount, c.Digest)
}

// Position records which side of the path node the sibling occupies at one tree level.
type Position uint8

const (
	// Left means the sibling is the left child, so the path node is the right child.
	Left Position = iota
	// Right means the sibling is the right child, so the path node is the left child.
	Right
)

func (p Position) String() string {
	switch p {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("position(%d)", uint8(p))
	}
}

// ProofStep is a single sibling on the path from a leaf to the root.
type ProofStep struct {
	Sibling  Commitment
	Position Position
}

// InclusionProof proves that the leaf at LeafIndex is part of a sum tree.
type InclusionProof struct {
	// LeafIndex is the index of the proven leaf in insertion order
	LeafIndex int

	// Steps are ordered leaf to root:
	// Steps[0] is the leaf's sibling, Steps[len-1] is the child of the root
	Steps []ProofStep
}

// Clone returns a deep copy of the proof.
func (p *InclusionProof) Clone() *InclusionProof {
	if p == nil {
		return nil
	}
	steps := make([]ProofStep, len(p.Steps))
	for i, step := range p.Steps {
		steps[i] = ProofStep{Sibling: step.Sibling.Clone(), Position: step.Position}
	}
	return &InclusionProof{LeafIndex: p.LeafIndex, Steps: steps}
}

// Entry is one (label, amount) pair committed to by the tree.
// Label disambiguates entities holding identical amounts; it is typically an
// account identifier concatenated with a per-entity salt.
type Entry struct {
	Label  []byte
	Amount *big.Int
}

// NewEntry is a convenience constructor for uint64 amounts.
func NewEntry(label []byte, amount uint64) Entry {
	return Entry{Label: label, Amount: new(big.Int).SetUint64(amount)}
}

// Interval is the half-open range [Lo, Hi) a leaf occupies within the root total.
type Interval struct {
	Lo uint64
	Hi uint64
}

// Len returns the width of the interval, which equals the leaf amount.
func (i Interval) Len() uint64 {
	return i.Hi - i.Lo
}

// IsEmpty reports whether the interval covers no values (a zero-amount leaf).
func (i Interval) IsEmpty() bool {
	return i.Hi <= i.Lo
}

// Contains reports whether v lies in [Lo, Hi).
func (i Interval) Contains(v uint64) bool {
	return v >= i.Lo && v < i.Hi
}

// Overlaps reports whether two intervals share at least one value.
// Empty intervals never overlap anything.
func (i Interval) Overlaps(other Interval) bool {
	if i.IsEmpty() || other.IsEmpty() {
		return false
	}
	return i.Lo < other.Hi && other.Lo < i.Hi
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d, %d)", i.Lo, i.Hi)
}
