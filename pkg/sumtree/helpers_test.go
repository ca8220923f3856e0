package sumtree

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// testHasher is a SHA-256 Hasher local to the package tests.
type testHasher struct{}

func (testHasher) Hash(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return h.Sum(nil)
}

func (testHasher) HashLength() int {
	return sha256.Size
}

func newTestScheme() *SumScheme {
	return NewSumScheme(testHasher{})
}

// createTestEntries creates entries with unique labels and the given amounts
func createTestEntries(amounts ...uint64) []Entry {
	entries := make([]Entry, len(amounts))
	for i, amount := range amounts {
		entries[i] = NewEntry([]byte(fmt.Sprintf("account-%d", i)), amount)
	}
	return entries
}

// createSequentialEntries creates n entries with amounts 1..n
func createSequentialEntries(n int) []Entry {
	amounts := make([]uint64, n)
	for i := range amounts {
		amounts[i] = uint64(i + 1)
	}
	return createTestEntries(amounts...)
}

func buildTestTree(t *testing.T, amounts ...uint64) *Tree {
	t.Helper()
	tree, err := BuildSumTree(newTestScheme(), createTestEntries(amounts...), nil)
	require.NoError(t, err)
	return tree
}

func bigAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad test amount " + s)
	}
	return v
}
