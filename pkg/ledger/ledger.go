// Package ledger records accepted allotments per published root and refuses
// claims whose interval was already handed out.
//
// A Merkle sum proof on its own shows that a leaf's interval is disjoint from
// every other leaf of the same tree. The ledger adds the one check a proof cannot
// carry: that the same leaf, or an overlapping interval, was not accepted before.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/digest"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/wire"
)

var (
	// ErrUnknownEpoch is returned when no epoch with the given ID is registered.
	ErrUnknownEpoch = errors.New("unknown epoch")

	// ErrAlreadyClaimed is returned when the leaf, or its exact interval, was accepted before.
	ErrAlreadyClaimed = errors.New("allotment already claimed")

	// ErrIntervalOverlap is returned when the interval intersects an accepted interval of another leaf.
	ErrIntervalOverlap = errors.New("interval overlaps an accepted allotment")
)

// Ledger serializes claims against a persistence backend.
type Ledger struct {
	store  persistence.ILedgerPersistence
	logger *zap.Logger

	// mu spans the read-check-write of a claim within this process. Claims from other
	// processes sharing the store are settled by the store's conditional SaveAllotment.
	mu sync.Mutex

	now func() time.Time
}

// NewLedger creates a ledger over store. The ledger does not own the store.
func NewLedger(store persistence.ILedgerPersistence, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// EpochID derives the epoch identifier from the trusted verification context, so every
// registration of the same root, leaf count and hash function names the same epoch.
func EpochID(root sumtree.Commitment, leafCount int, hashName string) string {
	buf := make([]byte, 0, 24+len(root.Digest))
	buf = binary.BigEndian.AppendUint64(buf, root.Amount)
	buf = binary.BigEndian.AppendUint64(buf, uint64(leafCount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(root.Digest)))
	buf = append(buf, root.Digest...)
	return hexutil.Encode(crypto.Keccak256(buf, []byte(canonicalHashName(hashName))))
}

// RegisterEpoch records a published root with its trusted context. Registering a root
// that is already known returns the existing epoch and its allotments stay in force.
func (l *Ledger) RegisterEpoch(root sumtree.Commitment, leafCount int, hashName string) (*persistence.Epoch, error) {
	if leafCount <= 0 {
		return nil, fmt.Errorf("leaf count must be positive, got %d", leafCount)
	}
	if len(root.Digest) == 0 {
		return nil, fmt.Errorf("root digest cannot be empty")
	}
	hashName = canonicalHashName(hashName)
	if _, err := digest.New(hashName); err != nil {
		return nil, err
	}
	id := EpochID(root, leafCount, hashName)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.store.LoadEpoch(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load epoch: %w", err)
	}
	if existing != nil {
		l.logger.Sugar().Debugw("Epoch already registered", "epoch", id)
		return existing, nil
	}

	epoch := &persistence.Epoch{
		ID:           id,
		Root:         wire.FromCommitment(root),
		LeafCount:    leafCount,
		HashFunction: hashName,
		CreatedAt:    l.now().Unix(),
	}
	if err := l.store.SaveEpoch(epoch); err != nil {
		return nil, fmt.Errorf("failed to save epoch: %w", err)
	}

	l.logger.Sugar().Infow("Registered epoch",
		"epoch", epoch.ID,
		"rootAmount", root.Amount,
		"leafCount", leafCount,
		"hash", hashName,
	)
	return epoch, nil
}

// Epoch returns the registered epoch with the given ID.
func (l *Ledger) Epoch(epochID string) (*persistence.Epoch, error) {
	epoch, err := l.store.LoadEpoch(epochID)
	if err != nil {
		return nil, fmt.Errorf("failed to load epoch: %w", err)
	}
	if epoch == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEpoch, epochID)
	}
	return epoch, nil
}

// DropEpoch retires an epoch together with every allotment accepted against it.
func (l *Ledger) DropEpoch(epochID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.Epoch(epochID); err != nil {
		return err
	}
	allotments, err := l.store.ListAllotments(epochID)
	if err != nil {
		return fmt.Errorf("failed to list allotments: %w", err)
	}
	if err := l.store.DeleteEpoch(epochID); err != nil {
		return fmt.Errorf("failed to delete epoch: %w", err)
	}

	l.logger.Sugar().Infow("Dropped epoch", "epoch", epochID, "allotments", len(allotments))
	return nil
}

// Claim verifies an allotment against the epoch's root and records it if no accepted
// allotment conflicts with it.
func (l *Ledger) Claim(
	scheme sumtree.Scheme,
	epochID string,
	claimed sumtree.Commitment,
	index int,
	proof *sumtree.InclusionProof,
) (*persistence.Allotment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sugar := l.logger.Sugar().With("epoch", epochID, "leafIndex", index)

	epoch, err := l.Epoch(epochID)
	if err != nil {
		return nil, err
	}
	root, err := epoch.Root.ToCommitment()
	if err != nil {
		return nil, fmt.Errorf("epoch %s has an invalid root: %w", epochID, err)
	}

	interval, err := sumtree.VerifyAllotment(scheme, claimed, index, epoch.LeafCount, proof, root)
	if err != nil {
		sugar.Warnw("Rejected claim with invalid proof", "error", err)
		return nil, err
	}

	accepted, err := l.store.ListAllotments(epochID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allotments: %w", err)
	}
	for _, prior := range accepted {
		if prior.LeafIndex == index || (!interval.IsEmpty() && prior.Interval() == interval) {
			sugar.Warnw("Rejected duplicate claim", "interval", interval.String())
			return nil, fmt.Errorf("%w: leaf %d holds %s", ErrAlreadyClaimed, prior.LeafIndex, prior.Interval())
		}
		if prior.Interval().Overlaps(interval) {
			sugar.Warnw("Rejected overlapping claim",
				"interval", interval.String(),
				"conflictingLeaf", prior.LeafIndex,
				"conflictingInterval", prior.Interval().String(),
			)
			return nil, fmt.Errorf("%w: %s intersects %s of leaf %d", ErrIntervalOverlap, interval, prior.Interval(), prior.LeafIndex)
		}
	}

	allotment := &persistence.Allotment{
		EpochID:    epochID,
		LeafIndex:  index,
		Lo:         interval.Lo,
		Hi:         interval.Hi,
		LeafDigest: append([]byte{}, claimed.Digest...),
		AcceptedAt: l.now().Unix(),
	}
	if err := l.store.SaveAllotment(allotment); err != nil {
		if errors.Is(err, persistence.ErrAllotmentExists) {
			sugar.Warnw("Rejected duplicate claim", "interval", interval.String(), "error", err)
			return nil, fmt.Errorf("%w: leaf %d was recorded concurrently", ErrAlreadyClaimed, index)
		}
		return nil, fmt.Errorf("failed to save allotment: %w", err)
	}

	sugar.Infow("Accepted claim", "interval", interval.String())
	return allotment, nil
}

// Allotments lists the accepted allotments of an epoch ordered by interval start.
func (l *Ledger) Allotments(epochID string) ([]*persistence.Allotment, error) {
	if _, err := l.Epoch(epochID); err != nil {
		return nil, err
	}
	allotments, err := l.store.ListAllotments(epochID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allotments: %w", err)
	}
	return allotments, nil
}

func canonicalHashName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SchemeFor returns the commitment scheme an epoch's tree was built with.
func SchemeFor(epoch *persistence.Epoch) (*sumtree.SumScheme, error) {
	h, err := digest.New(epoch.HashFunction)
	if err != nil {
		return nil, err
	}
	return sumtree.NewSumScheme(h), nil
}
