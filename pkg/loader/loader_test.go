package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/digest"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
)

func TestLoadCSV(t *testing.T) {
	t.Run("With header", func(t *testing.T) {
		input := "label,amount\nalice,5\nbob, 3\n"
		entries, err := LoadCSV(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, []byte("alice"), entries[0].Label)
		assert.Equal(t, int64(5), entries[0].Amount.Int64())
		assert.Equal(t, []byte("bob"), entries[1].Label)
		assert.Equal(t, int64(3), entries[1].Amount.Int64())
	})

	t.Run("Without header", func(t *testing.T) {
		entries, err := LoadCSV(strings.NewReader("alice,5\n"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("Large amount is kept for the scheme to reject", func(t *testing.T) {
		entries, err := LoadCSV(strings.NewReader("whale,340282366920938463463374607431768211456\n"))
		require.NoError(t, err)
		require.Len(t, entries, 1)

		scheme := sumtree.NewSumScheme(digest.SHA256{})
		_, err = sumtree.BuildSumTree(scheme, entries, nil)
		require.ErrorIs(t, err, sumtree.ErrInvalidAmount)
	})

	t.Run("Invalid amount", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader("alice,5\nbob,lots\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "csv row 2")
	})

	t.Run("Empty label", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(" ,5\n"))
		require.Error(t, err)
	})

	t.Run("Wrong column count", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader("alice,5,extra\n"))
		require.Error(t, err)
	})
}

func TestLoadJSON(t *testing.T) {
	entries, err := LoadJSON(strings.NewReader(`[{"label":"alice","amount":"5"},{"label":"bob","amount":"18446744073709551615"}]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "18446744073709551615", entries[1].Amount.String())

	_, err = LoadJSON(strings.NewReader(`[{"label":"alice","amount":"1.5"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json entry 0")

	_, err = LoadJSON(strings.NewReader(`{`))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "entries.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("alice,5\nbob,3\n"), 0o600))
	entries, err := LoadFile(csvPath)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("bob"), entries[1].Label)

	jsonPath := filepath.Join(dir, "entries.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"label":"carol","amount":"7"}]`), 0o600))
	entries, err = LoadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	txtPath := filepath.Join(dir, "entries.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("alice,5\n"), 0o600))
	_, err = LoadFile(txtPath)
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}
