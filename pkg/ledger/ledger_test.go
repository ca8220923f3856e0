package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/digest"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
)

type fixture struct {
	ledger *Ledger
	store  persistence.ILedgerPersistence
	scheme *sumtree.SumScheme
	tree   *sumtree.Tree
	epoch  *persistence.Epoch
}

func newFixture(t *testing.T, amounts ...uint64) *fixture {
	t.Helper()

	store := memory.NewMemoryPersistence(nil)
	t.Cleanup(func() { _ = store.Close() })

	scheme := sumtree.NewSumScheme(digest.Keccak256{})
	entries := make([]sumtree.Entry, len(amounts))
	for i, amount := range amounts {
		entries[i] = sumtree.NewEntry([]byte(fmt.Sprintf("account-%d", i)), amount)
	}
	tree, err := sumtree.BuildSumTree(scheme, entries, nil)
	require.NoError(t, err)

	l := NewLedger(store, zap.NewNop())
	l.now = func() time.Time { return time.Unix(1700000000, 0) }

	epoch, err := l.RegisterEpoch(tree.Root(), tree.LeafCount(), digest.NameKeccak256)
	require.NoError(t, err)

	return &fixture{ledger: l, store: store, scheme: scheme, tree: tree, epoch: epoch}
}

func (f *fixture) claim(t *testing.T, index int) (*persistence.Allotment, error) {
	t.Helper()
	leaf, err := f.tree.Leaf(index)
	require.NoError(t, err)
	proof, err := f.tree.Prove(index)
	require.NoError(t, err)
	return f.ledger.Claim(f.scheme, f.epoch.ID, leaf, index, proof)
}

func TestRegisterEpoch(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)

	assert.NotEmpty(t, f.epoch.ID)
	assert.Equal(t, 4, f.epoch.LeafCount)
	assert.Equal(t, digest.NameKeccak256, f.epoch.HashFunction)
	assert.Equal(t, int64(1700000000), f.epoch.CreatedAt)

	stored, err := f.ledger.Epoch(f.epoch.ID)
	require.NoError(t, err)
	assert.Equal(t, f.epoch, stored)

	root, err := stored.Root.ToCommitment()
	require.NoError(t, err)
	assert.True(t, root.Equal(f.tree.Root()))

	t.Run("Rejects bad context", func(t *testing.T) {
		_, err := f.ledger.RegisterEpoch(f.tree.Root(), 0, digest.NameKeccak256)
		require.Error(t, err)
		_, err = f.ledger.RegisterEpoch(sumtree.Commitment{Amount: 1}, 4, digest.NameKeccak256)
		require.Error(t, err)
		_, err = f.ledger.RegisterEpoch(f.tree.Root(), 4, "md5")
		require.Error(t, err)
	})

	t.Run("Same root resolves to one epoch", func(t *testing.T) {
		f.ledger.now = func() time.Time { return time.Unix(1800000000, 0) }
		again, err := f.ledger.RegisterEpoch(f.tree.Root(), 4, " KECCAK256 ")
		require.NoError(t, err)
		assert.Equal(t, f.epoch.ID, again.ID)
		assert.Equal(t, int64(1700000000), again.CreatedAt)

		epochs, err := f.store.ListEpochs()
		require.NoError(t, err)
		assert.Len(t, epochs, 1)
	})
}

func TestEpochID(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)
	root := f.tree.Root()

	assert.Equal(t, f.epoch.ID, EpochID(root, 4, digest.NameKeccak256))
	assert.Equal(t, f.epoch.ID, EpochID(root, 4, "Keccak256"))
	assert.NotEqual(t, f.epoch.ID, EpochID(root, 5, digest.NameKeccak256))
	assert.NotEqual(t, f.epoch.ID, EpochID(root, 4, digest.NameSHA256))

	bumped := root.Clone()
	bumped.Amount++
	assert.NotEqual(t, f.epoch.ID, EpochID(bumped, 4, digest.NameKeccak256))

	flipped := root.Clone()
	flipped.Digest[0] ^= 0x01
	assert.NotEqual(t, f.epoch.ID, EpochID(flipped, 4, digest.NameKeccak256))
}

func TestRegisterEpoch_ReRegisteredRootKeepsClaims(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)

	_, err := f.claim(t, 0)
	require.NoError(t, err)

	// Another ledger over the same store registers the same published root
	other := NewLedger(f.store, zap.NewNop())
	epoch, err := other.RegisterEpoch(f.tree.Root(), f.tree.LeafCount(), digest.NameKeccak256)
	require.NoError(t, err)
	require.Equal(t, f.epoch.ID, epoch.ID)

	leaf, err := f.tree.Leaf(0)
	require.NoError(t, err)
	proof, err := f.tree.Prove(0)
	require.NoError(t, err)
	_, err = other.Claim(f.scheme, epoch.ID, leaf, 0, proof)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	allotments, err := other.Allotments(epoch.ID)
	require.NoError(t, err)
	assert.Len(t, allotments, 1)
}

func TestClaim_AcceptsEveryLeafOnce(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)
	expected := []sumtree.Interval{{Lo: 0, Hi: 5}, {Lo: 5, Hi: 8}, {Lo: 8, Hi: 15}, {Lo: 15, Hi: 16}}

	for i, want := range expected {
		allotment, err := f.claim(t, i)
		require.NoError(t, err)
		assert.Equal(t, want, allotment.Interval())
		assert.Equal(t, f.epoch.ID, allotment.EpochID)
		assert.Equal(t, int64(1700000000), allotment.AcceptedAt)
	}

	allotments, err := f.ledger.Allotments(f.epoch.ID)
	require.NoError(t, err)
	require.Len(t, allotments, 4)
	for i, a := range allotments {
		assert.Equal(t, expected[i], a.Interval())
	}
}

func TestClaim_RejectsDoubleClaim(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)

	_, err := f.claim(t, 2)
	require.NoError(t, err)

	_, err = f.claim(t, 2)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	allotments, err := f.ledger.Allotments(f.epoch.ID)
	require.NoError(t, err)
	assert.Len(t, allotments, 1)
}

func TestClaim_RejectsOverlap(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)

	// An allotment recorded out of band for leaf 3 that covers part of leaf 2's interval
	require.NoError(t, f.store.SaveAllotment(&persistence.Allotment{
		EpochID:   f.epoch.ID,
		LeafIndex: 3,
		Lo:        10,
		Hi:        16,
	}))

	_, err := f.claim(t, 2)
	require.ErrorIs(t, err, ErrIntervalOverlap)

	_, err = f.claim(t, 1)
	require.NoError(t, err)
}

func TestClaim_ZeroAmountLeavesDoNotConflict(t *testing.T) {
	f := newFixture(t, 4, 0, 0, 2)

	for i := 0; i < 4; i++ {
		_, err := f.claim(t, i)
		require.NoError(t, err, "leaf %d", i)
	}
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1, 9)

	leaf, err := f.tree.Leaf(1)
	require.NoError(t, err)
	proof, err := f.tree.Prove(1)
	require.NoError(t, err)

	t.Run("Unknown epoch", func(t *testing.T) {
		_, err := f.ledger.Claim(f.scheme, "no-such-epoch", leaf, 1, proof)
		require.ErrorIs(t, err, ErrUnknownEpoch)
	})

	t.Run("Inflated amount", func(t *testing.T) {
		inflated := leaf.Clone()
		inflated.Amount++
		_, err := f.ledger.Claim(f.scheme, f.epoch.ID, inflated, 1, proof)
		require.ErrorIs(t, err, sumtree.ErrProofMismatch)
	})

	t.Run("Padding slot", func(t *testing.T) {
		_, err := f.ledger.Claim(f.scheme, f.epoch.ID, f.scheme.Padding(), 5, proof)
		require.ErrorIs(t, err, sumtree.ErrIndexOutOfRange)
	})

	t.Run("Wrong scheme", func(t *testing.T) {
		_, err := f.ledger.Claim(sumtree.NewSumScheme(digest.SHA256{}), f.epoch.ID, leaf, 1, proof)
		require.Error(t, err)
	})

	allotments, err := f.ledger.Allotments(f.epoch.ID)
	require.NoError(t, err)
	assert.Empty(t, allotments)

	_, err = f.ledger.Allotments("no-such-epoch")
	require.ErrorIs(t, err, ErrUnknownEpoch)
}

func TestClaim_ConcurrentDuplicateClaims(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.claim(t, 0); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyClaimed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}

// slowListStore delays ListAllotments so that concurrent claims all pass the
// conflict scan before any of them writes.
type slowListStore struct {
	persistence.ILedgerPersistence
	delay time.Duration
}

func (s *slowListStore) ListAllotments(epochID string) ([]*persistence.Allotment, error) {
	time.Sleep(s.delay)
	return s.ILedgerPersistence.ListAllotments(epochID)
}

func TestClaim_LedgersSharingStoreAcceptLeafOnce(t *testing.T) {
	f := newFixture(t, 5, 3, 7, 1)
	shared := &slowListStore{ILedgerPersistence: f.store, delay: 50 * time.Millisecond}

	leaf, err := f.tree.Leaf(0)
	require.NoError(t, err)
	proof, err := f.tree.Prove(0)
	require.NoError(t, err)

	const numLedgers = 4
	errs := make([]error, numLedgers)
	var wg sync.WaitGroup
	for i := 0; i < numLedgers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = NewLedger(shared, zap.NewNop()).Claim(f.scheme, f.epoch.ID, leaf, 0, proof)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	}
	assert.Equal(t, 1, accepted)

	allotments, err := f.ledger.Allotments(f.epoch.ID)
	require.NoError(t, err)
	assert.Len(t, allotments, 1)
}

func TestDropEpoch(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, 5, 3, 7, 1)
	f.ledger.logger = zap.New(core)

	_, err := f.claim(t, 1)
	require.NoError(t, err)

	require.NoError(t, f.ledger.DropEpoch(f.epoch.ID))
	assert.Equal(t, 1, logs.FilterMessage("Dropped epoch").Len())

	_, err = f.ledger.Epoch(f.epoch.ID)
	require.ErrorIs(t, err, ErrUnknownEpoch)
	_, err = f.claim(t, 1)
	require.ErrorIs(t, err, ErrUnknownEpoch)

	require.ErrorIs(t, f.ledger.DropEpoch(f.epoch.ID), ErrUnknownEpoch)

	// Registering the root again starts a fresh epoch under the same ID
	epoch, err := f.ledger.RegisterEpoch(f.tree.Root(), f.tree.LeafCount(), digest.NameKeccak256)
	require.NoError(t, err)
	assert.Equal(t, f.epoch.ID, epoch.ID)
	allotments, err := f.ledger.Allotments(epoch.ID)
	require.NoError(t, err)
	assert.Empty(t, allotments)
}

func TestClaim_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, 5, 3)
	f.ledger.logger = zap.New(core)

	_, err := f.claim(t, 0)
	require.NoError(t, err)
	_, err = f.claim(t, 0)
	require.Error(t, err)

	assert.Equal(t, 1, logs.FilterMessage("Accepted claim").Len())
	assert.Equal(t, 1, logs.FilterMessage("Rejected duplicate claim").Len())
}

func TestSchemeFor(t *testing.T) {
	f := newFixture(t, 5, 3)
	scheme, err := SchemeFor(f.epoch)
	require.NoError(t, err)
	assert.Equal(t, f.scheme.DigestSize(), scheme.DigestSize())

	_, err = SchemeFor(&persistence.Epoch{HashFunction: "md5"})
	require.Error(t, err)
}
