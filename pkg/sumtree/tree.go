package sumtree

import (
	"fmt"
	"math/bits"

	"golang.org/x/sync/errgroup"
)

// Tree is a binary Merkle sum tree built once from a fixed set of leaves.
// Leaf counts that are not a power of two are padded on the right with
// zero-amount padding commitments. Trees are immutable and safe for concurrent reads.
type Tree struct {
	scheme Scheme

	// leafCount is the number of real (unpadded) leaves
	leafCount int

	// levels stores all tree levels for proof generation
	// levels[0] = padded leaves, levels[len-1] = [root]
	levels [][]Commitment
}

// BuildConfig controls how levels are combined.
type BuildConfig struct {
	// Workers is the maximum number of goroutines combining one level.
	// Values below 2 build sequentially.
	Workers int

	// ParallelThreshold is the minimum number of pairs in a level before
	// it is split across workers. Smaller levels are combined inline.
	ParallelThreshold int
}

const defaultParallelThreshold = 1024

// BuildSumTree commits to entries in the given order and builds the tree bottom-up.
// The entry order defines each leaf's index. Labels must be unique within a tree.
func BuildSumTree(scheme Scheme, entries []Entry, cfg *BuildConfig) (*Tree, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("cannot build sum tree: %w", ErrEmptyInput)
	}

	seen := make(map[string]int, len(entries))
	leaves := make([]Commitment, len(entries))
	for i, entry := range entries {
		if prev, ok := seen[string(entry.Label)]; ok {
			return nil, fmt.Errorf("%w: entries %d and %d share label %q", ErrDuplicateLabel, prev, i, entry.Label)
		}
		seen[string(entry.Label)] = i

		leaf, err := scheme.Leaf(entry.Amount, entry.Label)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		leaves[i] = leaf
	}

	return BuildSumTreeFromCommitments(scheme, leaves, cfg)
}

// BuildSumTreeFromCommitments builds a tree from leaf commitments that were already
// produced by scheme.Leaf. The slice is copied; the caller keeps ownership.
func BuildSumTreeFromCommitments(scheme Scheme, leaves []Commitment, cfg *BuildConfig) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build sum tree: %w", ErrEmptyInput)
	}

	depth := ExpectedDepth(len(leaves))
	padded := 1 << depth

	base := make([]Commitment, padded)
	for i, leaf := range leaves {
		base[i] = leaf.Clone()
	}
	for i := len(leaves); i < padded; i++ {
		base[i] = scheme.Padding()
	}

	levels := make([][]Commitment, 0, depth+1)
	levels = append(levels, base)

	currentLevel := base
	for len(currentLevel) > 1 {
		nextLevel, err := combineLevel(scheme, currentLevel, cfg)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", len(levels), err)
		}
		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &Tree{
		scheme:    scheme,
		leafCount: len(leaves),
		levels:    levels,
	}, nil
}

// combineLevel merges adjacent pairs (level[2i], level[2i+1]) into the next level.
// Every goroutine writes its own contiguous range of the output slice.
func combineLevel(scheme Scheme, level []Commitment, cfg *BuildConfig) ([]Commitment, error) {
	pairs := len(level) / 2
	next := make([]Commitment, pairs)

	combineRange := func(start, end int) error {
		for i := start; i < end; i++ {
			parent, err := scheme.Combine(level[2*i], level[2*i+1])
			if err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
			next[i] = parent
		}
		return nil
	}

	workers, threshold := 1, defaultParallelThreshold
	if cfg != nil {
		workers = cfg.Workers
		if cfg.ParallelThreshold > 0 {
			threshold = cfg.ParallelThreshold
		}
	}

	if workers < 2 || pairs < threshold {
		if err := combineRange(0, pairs); err != nil {
			return nil, err
		}
		return next, nil
	}

	chunk := (pairs + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < pairs; start += chunk {
		end := min(start+chunk, pairs)
		g.Go(func() error {
			return combineRange(start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

// ExpectedDepth returns the number of proof steps for a tree with leafCount real leaves,
// i.e. ceil(log2(leafCount)). It returns 0 for leafCount <= 1.
func ExpectedDepth(leafCount int) int {
	if leafCount <= 1 {
		return 0
	}
	return bits.Len(uint(leafCount - 1))
}

// Root returns the root commitment.
func (t *Tree) Root() Commitment {
	return t.levels[len(t.levels)-1][0].Clone()
}

// LeafCount returns the number of real leaves the tree was built from.
func (t *Tree) LeafCount() int {
	return t.leafCount
}

// PaddedLeafCount returns the leaf count rounded up to the next power of two.
func (t *Tree) PaddedLeafCount() int {
	return len(t.levels[0])
}

// Depth returns the number of levels below the root.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// Leaf returns the commitment of the real leaf at index.
func (t *Tree) Leaf(index int) (Commitment, error) {
	if index < 0 || index >= t.leafCount {
		return Commitment{}, fmt.Errorf("%w: leaf %d (tree has %d leaves)", ErrIndexOutOfRange, index, t.leafCount)
	}
	return t.levels[0][index].Clone(), nil
}

// Prove creates the inclusion proof for the real leaf at index.
// Padding slots are never provable.
func (t *Tree) Prove(index int) (*InclusionProof, error) {
	if index < 0 || index >= t.leafCount {
		return nil, fmt.Errorf("%w: leaf %d (tree has %d leaves)", ErrIndexOutOfRange, index, t.leafCount)
	}

	steps := make([]ProofStep, 0, t.Depth())
	nodeIndex := index

	// Traverse from leaf to root, collecting siblings
	for level := 0; level < len(t.levels)-1; level++ {
		var step ProofStep
		if nodeIndex%2 == 0 {
			// Node is on the left, sibling is on the right
			step = ProofStep{Sibling: t.levels[level][nodeIndex+1].Clone(), Position: Right}
		} else {
			// Node is on the right, sibling is on the left
			step = ProofStep{Sibling: t.levels[level][nodeIndex-1].Clone(), Position: Left}
		}
		steps = append(steps, step)

		nodeIndex /= 2
	}

	return &InclusionProof{
		LeafIndex: index,
		Steps:     steps,
	}, nil
}
