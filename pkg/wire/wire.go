// Package wire defines the JSON forms of commitments and proofs that cross a process
// or network boundary. Amounts are decimal strings and digests are 0x-prefixed hex,
// so values round-trip losslessly through any JSON implementation.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
)

// Commitment is the wire form of sumtree.Commitment.
type Commitment struct {
	Amount string        `json:"amount"`
	Digest hexutil.Bytes `json:"digest"`
}

// ProofStep is the wire form of sumtree.ProofStep.
type ProofStep struct {
	Position string     `json:"position"` // "left" or "right": the sibling's side
	Sibling  Commitment `json:"sibling"`
}

// InclusionProof is the wire form of sumtree.InclusionProof.
type InclusionProof struct {
	LeafIndex int         `json:"leafIndex"`
	Steps     []ProofStep `json:"steps"`
}

// PublishedRoot is what a prover publishes for a commitment epoch. Verifiers treat
// it as trusted context: LeafCount bounds the provable indices.
type PublishedRoot struct {
	Root         Commitment `json:"root"`
	LeafCount    int        `json:"leafCount"`
	HashFunction string     `json:"hash"`
}

// ProofBundle is what a prover hands to a single entity: its label, its leaf
// commitment and the inclusion proof.
type ProofBundle struct {
	Label hexutil.Bytes  `json:"label"`
	Leaf  Commitment     `json:"leaf"`
	Proof InclusionProof `json:"proof"`
}

// FromCommitment converts a commitment to its wire form.
func FromCommitment(c sumtree.Commitment) Commitment {
	digest := make([]byte, len(c.Digest))
	copy(digest, c.Digest)
	return Commitment{
		Amount: strconv.FormatUint(c.Amount, 10),
		Digest: digest,
	}
}

// ToCommitment converts a wire commitment back, validating the amount.
func (c Commitment) ToCommitment() (sumtree.Commitment, error) {
	amount, err := strconv.ParseUint(c.Amount, 10, 64)
	if err != nil {
		return sumtree.Commitment{}, fmt.Errorf("invalid commitment amount %q: %w", c.Amount, err)
	}
	if len(c.Digest) == 0 {
		return sumtree.Commitment{}, fmt.Errorf("commitment digest cannot be empty")
	}
	digest := make([]byte, len(c.Digest))
	copy(digest, c.Digest)
	return sumtree.Commitment{Amount: amount, Digest: digest}, nil
}

// FromProof converts an inclusion proof to its wire form.
func FromProof(p *sumtree.InclusionProof) InclusionProof {
	steps := make([]ProofStep, len(p.Steps))
	for i, step := range p.Steps {
		steps[i] = ProofStep{
			Position: step.Position.String(),
			Sibling:  FromCommitment(step.Sibling),
		}
	}
	return InclusionProof{LeafIndex: p.LeafIndex, Steps: steps}
}

// ToProof converts a wire proof back, validating positions and commitments.
func (p InclusionProof) ToProof() (*sumtree.InclusionProof, error) {
	steps := make([]sumtree.ProofStep, len(p.Steps))
	for i, step := range p.Steps {
		position, err := ParsePosition(step.Position)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		sibling, err := step.Sibling.ToCommitment()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps[i] = sumtree.ProofStep{Sibling: sibling, Position: position}
	}
	return &sumtree.InclusionProof{LeafIndex: p.LeafIndex, Steps: steps}, nil
}

// ParsePosition parses "left" or "right".
func ParsePosition(s string) (sumtree.Position, error) {
	switch s {
	case sumtree.Left.String():
		return sumtree.Left, nil
	case sumtree.Right.String():
		return sumtree.Right, nil
	default:
		return 0, fmt.Errorf("unknown position %q", s)
	}
}

// NewPublishedRoot captures the verification context of a built tree.
func NewPublishedRoot(tree *sumtree.Tree, hashFunction string) *PublishedRoot {
	return &PublishedRoot{
		Root:         FromCommitment(tree.Root()),
		LeafCount:    tree.LeafCount(),
		HashFunction: hashFunction,
	}
}

// NewProofBundle assembles the bundle for the leaf at index.
func NewProofBundle(tree *sumtree.Tree, label []byte, index int) (*ProofBundle, error) {
	leaf, err := tree.Leaf(index)
	if err != nil {
		return nil, err
	}
	proof, err := tree.Prove(index)
	if err != nil {
		return nil, err
	}
	return &ProofBundle{
		Label: append([]byte{}, label...),
		Leaf:  FromCommitment(leaf),
		Proof: FromProof(proof),
	}, nil
}

// MarshalPublishedRoot serializes a PublishedRoot to JSON bytes.
func MarshalPublishedRoot(pr *PublishedRoot) ([]byte, error) {
	if pr == nil {
		return nil, fmt.Errorf("cannot marshal nil PublishedRoot")
	}
	return json.MarshalIndent(pr, "", "  ")
}

// UnmarshalPublishedRoot deserializes a PublishedRoot from JSON bytes.
func UnmarshalPublishedRoot(data []byte) (*PublishedRoot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var pr PublishedRoot
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to PublishedRoot: %w", err)
	}
	if pr.LeafCount <= 0 {
		return nil, fmt.Errorf("published root must have a positive leaf count, got %d", pr.LeafCount)
	}
	if _, err := pr.Root.ToCommitment(); err != nil {
		return nil, fmt.Errorf("invalid published root: %w", err)
	}
	return &pr, nil
}

// MarshalProofBundle serializes a ProofBundle to JSON bytes.
func MarshalProofBundle(pb *ProofBundle) ([]byte, error) {
	if pb == nil {
		return nil, fmt.Errorf("cannot marshal nil ProofBundle")
	}
	return json.MarshalIndent(pb, "", "  ")
}

// UnmarshalProofBundle deserializes a ProofBundle from JSON bytes.
func UnmarshalProofBundle(data []byte) (*ProofBundle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var pb ProofBundle
	if err := json.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ProofBundle: %w", err)
	}
	return &pb, nil
}

// MarshalProof serializes a single inclusion proof to JSON bytes.
func MarshalProof(p *sumtree.InclusionProof) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("cannot marshal nil InclusionProof")
	}
	return json.Marshal(FromProof(p))
}

// UnmarshalProof deserializes a single inclusion proof from JSON bytes.
func UnmarshalProof(data []byte) (*sumtree.InclusionProof, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var p InclusionProof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to InclusionProof: %w", err)
	}
	return p.ToProof()
}
