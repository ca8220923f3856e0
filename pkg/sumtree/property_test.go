package sumtree

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// amountsGen produces non-empty leaf sets whose total cannot overflow.
func amountsGen() gopter.Gen {
	return gen.IntRange(1, 64).FlatMap(func(n interface{}) gopter.Gen {
		return gen.SliceOfN(n.(int), gen.UInt64Range(0, 1<<40))
	}, reflect.TypeOf([]uint64{}))
}

// TestSumTreeProperties checks round-trip validity, sum conservation and the
// interval partition on random leaf sets.
func TestSumTreeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	scheme := newTestScheme()

	properties.Property("Root amount equals the sum of the leaves", prop.ForAll(
		func(amounts []uint64) bool {
			tree, err := BuildSumTree(scheme, createTestEntries(amounts...), nil)
			if err != nil {
				return false
			}
			var total uint64
			for _, a := range amounts {
				total += a
			}
			return tree.Root().Amount == total
		},
		amountsGen(),
	))

	properties.Property("Every proof verifies and intervals tile the total", prop.ForAll(
		func(amounts []uint64) bool {
			tree, err := BuildSumTree(scheme, createTestEntries(amounts...), nil)
			if err != nil {
				return false
			}
			root := tree.Root()

			var next uint64
			for i := range amounts {
				leaf, err := tree.Leaf(i)
				if err != nil {
					return false
				}
				proof, err := tree.Prove(i)
				if err != nil || len(proof.Steps) != ExpectedDepth(len(amounts)) {
					return false
				}
				interval, err := VerifyAllotment(scheme, leaf, i, len(amounts), proof, root)
				if err != nil || interval.Lo != next || interval.Len() != amounts[i] {
					return false
				}
				next = interval.Hi
			}
			return next == root.Amount
		},
		amountsGen(),
	))

	properties.Property("Parallel build matches sequential build", prop.ForAll(
		func(amounts []uint64, workers int) bool {
			entries := createTestEntries(amounts...)
			sequential, err := BuildSumTree(scheme, entries, nil)
			if err != nil {
				return false
			}
			parallel, err := BuildSumTree(scheme, entries, &BuildConfig{Workers: workers, ParallelThreshold: 1})
			if err != nil {
				return false
			}
			return sequential.Root().Equal(parallel.Root())
		},
		amountsGen(),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
