package sumtree

import (
	"fmt"
	"math/bits"
)

// VerifyAllotment checks that claimed is the leaf at index of a tree with the given
// root and leafCount, and returns the exclusive interval [lo, hi) that the leaf's
// amount occupies within [0, root.Amount). A nil error means the proof is accepted.
//
// leafCount must come from the trusted verification context (e.g. the published
// root), never from the prover: it is what keeps padding slots unprovable.
//
// Intervals of distinct leaves of one tree never overlap, so a caller that records
// accepted intervals can detect the same amount being claimed twice.
func VerifyAllotment(scheme Scheme, claimed Commitment, index, leafCount int, proof *InclusionProof, root Commitment) (Interval, error) {
	if index < 0 || index >= leafCount {
		return Interval{}, fmt.Errorf("%w: leaf %d (tree has %d leaves)", ErrIndexOutOfRange, index, leafCount)
	}
	if err := validateProofShape(scheme, claimed, index, leafCount, proof, root); err != nil {
		return Interval{}, err
	}

	running := claimed
	var lo uint64

	for level, step := range proof.Steps {
		var err error
		if step.Position == Left {
			running, err = scheme.Combine(step.Sibling, running)
			if err == nil {
				var carry uint64
				lo, carry = bits.Add64(lo, step.Sibling.Amount, 0)
				if carry != 0 {
					err = fmt.Errorf("%w: interval offset", ErrAmountOverflow)
				}
			}
		} else {
			running, err = scheme.Combine(running, step.Sibling)
		}
		if err != nil {
			return Interval{}, fmt.Errorf("%w: level %d: %w", ErrProofMismatch, level, err)
		}
	}

	if !running.Equal(root) {
		return Interval{}, fmt.Errorf("%w: reconstructed %s, expected %s", ErrProofMismatch, running, root)
	}

	// lo + claimed.Amount <= root.Amount once the root matched, so this cannot wrap
	return Interval{Lo: lo, Hi: lo + claimed.Amount}, nil
}

// VerifyProof reports whether VerifyAllotment accepts the proof.
func VerifyProof(scheme Scheme, claimed Commitment, index, leafCount int, proof *InclusionProof, root Commitment) bool {
	_, err := VerifyAllotment(scheme, claimed, index, leafCount, proof, root)
	return err == nil
}

// validateProofShape rejects proofs whose length, positions or digest sizes do not
// fit the claimed index before any hashing is done.
func validateProofShape(scheme Scheme, claimed Commitment, index, leafCount int, proof *InclusionProof, root Commitment) error {
	if proof == nil {
		return fmt.Errorf("%w: proof is nil", ErrMalformedProof)
	}
	if proof.LeafIndex != index {
		return fmt.Errorf("%w: proof is for leaf %d, verifying leaf %d", ErrMalformedProof, proof.LeafIndex, index)
	}

	depth := ExpectedDepth(leafCount)
	if len(proof.Steps) != depth {
		return fmt.Errorf("%w: proof has %d steps, tree of %d leaves has depth %d", ErrMalformedProof, len(proof.Steps), leafCount, depth)
	}

	size := scheme.DigestSize()
	if len(claimed.Digest) != size {
		return fmt.Errorf("%w: leaf digest is %d bytes, expected %d", ErrMalformedProof, len(claimed.Digest), size)
	}
	if len(root.Digest) != size {
		return fmt.Errorf("%w: root digest is %d bytes, expected %d", ErrMalformedProof, len(root.Digest), size)
	}

	for level, step := range proof.Steps {
		// bit k of the index is 1 when the path node is the right child at level k
		expected := Right
		if (index>>level)&1 == 1 {
			expected = Left
		}
		if step.Position != expected {
			return fmt.Errorf("%w: level %d sibling is %s, index %d requires %s", ErrMalformedProof, level, step.Position, index, expected)
		}
		if len(step.Sibling.Digest) != size {
			return fmt.Errorf("%w: level %d sibling digest is %d bytes, expected %d", ErrMalformedProof, level, len(step.Sibling.Digest), size)
		}
	}
	return nil
}
