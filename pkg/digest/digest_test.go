package digest

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
)

// TestHasherCompliance runs every registered hasher through the same checks
func TestHasherCompliance(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			h, err := New(name)
			require.NoError(t, err)

			t.Run("Fixed output length", func(t *testing.T) {
				for _, input := range [][]byte{nil, {0}, []byte("abc"), make([]byte, 1000)} {
					require.Len(t, h.Hash(input), h.HashLength())
				}
			})

			t.Run("Deterministic", func(t *testing.T) {
				require.Equal(t, h.Hash([]byte("a"), []byte("b")), h.Hash([]byte("a"), []byte("b")))
			})

			t.Run("Variadic input is concatenated", func(t *testing.T) {
				require.Equal(t, h.Hash([]byte("ab"), []byte("c")), h.Hash([]byte("a"), []byte("bc")))
			})

			t.Run("Distinct inputs", func(t *testing.T) {
				assert.NotEqual(t, h.Hash([]byte("a")), h.Hash([]byte("b")))
				assert.NotEqual(t, h.Hash([]byte{0}), h.Hash([]byte{0, 0}))
				assert.NotEqual(t, h.Hash(nil), h.Hash([]byte{0}))
			})

			t.Run("Drives a sum tree", func(t *testing.T) {
				scheme := sumtree.NewSumScheme(h)
				entries := []sumtree.Entry{
					sumtree.NewEntry([]byte("alice"), 5),
					sumtree.NewEntry([]byte("bob"), 3),
					sumtree.NewEntry([]byte("carol"), 7),
				}
				tree, err := sumtree.BuildSumTree(scheme, entries, nil)
				require.NoError(t, err)

				leaf, err := tree.Leaf(2)
				require.NoError(t, err)
				proof, err := tree.Prove(2)
				require.NoError(t, err)
				interval, err := sumtree.VerifyAllotment(scheme, leaf, 2, 3, proof, tree.Root())
				require.NoError(t, err)
				require.Equal(t, sumtree.Interval{Lo: 8, Hi: 15}, interval)
			})
		})
	}
}

func TestKnownVectors(t *testing.T) {
	testCases := []struct {
		name     string
		hasher   sumtree.Hasher
		input    string
		expected string
	}{
		{"Keccak256 empty", Keccak256{}, "", "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"SHA256 abc", SHA256{}, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"SHA3-256 empty", SHA3{}, "", "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, hex.EncodeToString(tc.hasher.Hash([]byte(tc.input))))
		})
	}
}

func TestMiMCFieldElements(t *testing.T) {
	// bn254 scalar field modulus
	modulus, ok := new(big.Int).SetString("21888242871839275222246405745257275088548364400416903434220401441405940400129", 10)
	require.True(t, ok)

	out := MiMC{}.Hash(make([]byte, 100))
	require.Len(t, out, 32)
	require.Equal(t, -1, new(big.Int).SetBytes(out).Cmp(modulus), "digest must be a field element")

	// Inputs longer than one chunk still differ in their last byte
	a := make([]byte, 64)
	b := make([]byte, 64)
	b[63] = 1
	require.NotEqual(t, MiMC{}.Hash(a), MiMC{}.Hash(b))
}

func TestNew(t *testing.T) {
	h, err := New(" Keccak256 ")
	require.NoError(t, err)
	require.IsType(t, Keccak256{}, h)

	_, err = New("md5")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported hash function")

	require.Equal(t, []string{NameBlake2b, NameKeccak256, NameMiMC, NameSHA256, NameSHA3}, Names())
}
