package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/wire"
)

// PersistenceFactory opens a fresh, empty ledger store for one subtest.
type PersistenceFactory func(t *testing.T) persistence.ILedgerPersistence

// NewTestEpoch returns an epoch with a distinct root digest derived from id.
func NewTestEpoch(id string, createdAt int64) *persistence.Epoch {
	return &persistence.Epoch{
		ID:           id,
		Root:         wire.Commitment{Amount: "16", Digest: []byte("root-" + id)},
		LeafCount:    4,
		HashFunction: "keccak256",
		CreatedAt:    createdAt,
	}
}

// NewTestAllotment returns an allotment of [lo, hi) for the given leaf.
func NewTestAllotment(epochID string, leafIndex int, lo, hi uint64) *persistence.Allotment {
	return &persistence.Allotment{
		EpochID:    epochID,
		LeafIndex:  leafIndex,
		Lo:         lo,
		Hi:         hi,
		LeafDigest: []byte{byte(leafIndex), 0xaa},
		AcceptedAt: 1700000000 + int64(leafIndex),
	}
}

// RunLedgerPersistenceSuite exercises the ILedgerPersistence contract against a backend.
// Every subtest gets its own store from newStore and uses unique epoch ids.
func RunLedgerPersistenceSuite(t *testing.T, newStore PersistenceFactory) {
	t.Run("SaveAndLoadEpoch", func(t *testing.T) {
		store := newStore(t)
		epoch := NewTestEpoch(UniqueID(t, "save-load"), 100)

		require.NoError(t, store.SaveEpoch(epoch))

		loaded, err := store.LoadEpoch(epoch.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, epoch, loaded)
	})

	t.Run("LoadEpoch_NotFound", func(t *testing.T) {
		store := newStore(t)
		loaded, err := store.LoadEpoch(UniqueID(t, "missing"))
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveEpoch_Invalid", func(t *testing.T) {
		store := newStore(t)
		err := store.SaveEpoch(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil Epoch")

		require.Error(t, store.SaveEpoch(&persistence.Epoch{}))
	})

	t.Run("ListEpochs_SortedByCreation", func(t *testing.T) {
		store := newStore(t)
		ids := []string{UniqueID(t, "c"), UniqueID(t, "a"), UniqueID(t, "b")}
		for i, id := range ids {
			require.NoError(t, store.SaveEpoch(NewTestEpoch(id, int64(300-i*100))))
		}

		epochs, err := store.ListEpochs()
		require.NoError(t, err)

		var found []string
		for _, e := range epochs {
			for _, id := range ids {
				if e.ID == id {
					found = append(found, e.ID)
				}
			}
		}
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, found)
	})

	t.Run("SaveAndListAllotments", func(t *testing.T) {
		store := newStore(t)
		epochID := UniqueID(t, "allot")
		require.NoError(t, store.SaveEpoch(NewTestEpoch(epochID, 1)))

		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, 2, 8, 15)))
		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, 0, 0, 5)))
		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, 1, 5, 8)))

		allotments, err := store.ListAllotments(epochID)
		require.NoError(t, err)
		require.Len(t, allotments, 3)
		for i, a := range allotments {
			assert.Equal(t, i, a.LeafIndex)
		}
		assert.Equal(t, NewTestAllotment(epochID, 1, 5, 8), allotments[1])
	})

	t.Run("SaveAllotment_RejectsSecondSaveOfLeaf", func(t *testing.T) {
		store := newStore(t)
		epochID := UniqueID(t, "second-save")
		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, 0, 0, 5)))

		err := store.SaveAllotment(NewTestAllotment(epochID, 0, 0, 6))
		require.ErrorIs(t, err, persistence.ErrAllotmentExists)

		allotments, err := store.ListAllotments(epochID)
		require.NoError(t, err)
		require.Len(t, allotments, 1)
		assert.Equal(t, uint64(5), allotments[0].Hi)

		// The same leaf index in another epoch is a different record
		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID+"-other", 0, 0, 6)))
	})

	t.Run("SaveAllotment_ConcurrentSameLeaf", func(t *testing.T) {
		store := newStore(t)
		epochID := UniqueID(t, "race")

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(hi uint64) {
				defer wg.Done()
				err := store.SaveAllotment(NewTestAllotment(epochID, 0, 0, hi))
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, persistence.ErrAllotmentExists)
			}(uint64(i + 1))
		}
		wg.Wait()

		assert.Equal(t, 1, accepted)
		allotments, err := store.ListAllotments(epochID)
		require.NoError(t, err)
		assert.Len(t, allotments, 1)
	})

	t.Run("SaveAllotment_Invalid", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.SaveAllotment(nil))
		require.Error(t, store.SaveAllotment(&persistence.Allotment{LeafIndex: 1}))
		require.Error(t, store.SaveAllotment(NewTestAllotment(UniqueID(t, "inverted"), 0, 9, 3)))
	})

	t.Run("ListAllotments_Empty", func(t *testing.T) {
		store := newStore(t)
		allotments, err := store.ListAllotments(UniqueID(t, "none"))
		require.NoError(t, err)
		assert.Empty(t, allotments)
	})

	t.Run("ListAllotments_IsolatedPerEpoch", func(t *testing.T) {
		store := newStore(t)
		short := UniqueID(t, "iso")
		long := short + "x"
		require.NoError(t, store.SaveAllotment(NewTestAllotment(short, 0, 0, 1)))
		require.NoError(t, store.SaveAllotment(NewTestAllotment(long, 0, 0, 2)))

		allotments, err := store.ListAllotments(short)
		require.NoError(t, err)
		require.Len(t, allotments, 1)
		assert.Equal(t, uint64(1), allotments[0].Hi)
	})

	t.Run("DeleteEpoch_DropsAllotments", func(t *testing.T) {
		store := newStore(t)
		epochID := UniqueID(t, "delete")
		require.NoError(t, store.SaveEpoch(NewTestEpoch(epochID, 1)))
		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, 0, 0, 5)))

		require.NoError(t, store.DeleteEpoch(epochID))

		loaded, err := store.LoadEpoch(epochID)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		allotments, err := store.ListAllotments(epochID)
		require.NoError(t, err)
		assert.Empty(t, allotments)

		// Idempotent
		require.NoError(t, store.DeleteEpoch(epochID))

		// A dropped leaf can be recorded again
		require.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, 0, 0, 5)))
	})

	t.Run("LoadedValuesAreCopies", func(t *testing.T) {
		store := newStore(t)
		epoch := NewTestEpoch(UniqueID(t, "copy"), 1)
		require.NoError(t, store.SaveEpoch(epoch))
		epoch.Root.Digest[0] = 'X'

		loaded, err := store.LoadEpoch(epoch.ID)
		require.NoError(t, err)
		assert.Equal(t, byte('r'), loaded.Root.Digest[0])

		loaded.Root.Digest[0] = 'Y'
		reloaded, err := store.LoadEpoch(epoch.ID)
		require.NoError(t, err)
		assert.Equal(t, byte('r'), reloaded.Root.Digest[0])
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.HealthCheck())
	})

	t.Run("Close", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())

		err := store.SaveEpoch(NewTestEpoch("after-close", 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")

		_, err = store.LoadEpoch("after-close")
		require.Error(t, err)
		_, err = store.ListEpochs()
		require.Error(t, err)
		require.Error(t, store.SaveAllotment(NewTestAllotment("after-close", 0, 0, 1)))
		_, err = store.ListAllotments("after-close")
		require.Error(t, err)
		require.Error(t, store.DeleteEpoch("after-close"))
		require.Error(t, store.HealthCheck())

		// Idempotent
		require.NoError(t, store.Close())
	})

	t.Run("ThreadSafety", func(t *testing.T) {
		store := newStore(t)
		epochID := UniqueID(t, "concurrent")
		require.NoError(t, store.SaveEpoch(NewTestEpoch(epochID, 1)))

		var wg sync.WaitGroup
		numGoroutines := 8
		numOperations := 25

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					leaf := id*numOperations + j
					lo := uint64(leaf * 10)
					assert.NoError(t, store.SaveAllotment(NewTestAllotment(epochID, leaf, lo, lo+10)))
				}
			}(i)
		}

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					_, err := store.ListAllotments(epochID)
					assert.NoError(t, err)
					_, err = store.LoadEpoch(epochID)
					assert.NoError(t, err)
				}
			}()
		}

		wg.Wait()

		allotments, err := store.ListAllotments(epochID)
		require.NoError(t, err)
		require.Len(t, allotments, numGoroutines*numOperations)
		for i := 1; i < len(allotments); i++ {
			assert.Less(t, allotments[i-1].Lo, allotments[i].Lo)
		}
	})
}

// UniqueID namespaces an id by test name so shared backends (redis) do not collide across runs.
func UniqueID(t *testing.T, id string) string {
	return fmt.Sprintf("%s-%s", t.Name(), id)
}
