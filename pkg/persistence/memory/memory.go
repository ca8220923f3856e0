package memory

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of ILedgerPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Epoch storage: id -> Epoch
	epochs map[string]*persistence.Epoch

	// Allotment storage: epochID -> leafIndex -> Allotment
	allotments map[string]map[int]*persistence.Allotment

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Logs a warning since claims recorded here do not survive a restart.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory ledger persistence - ALL CLAIMS WILL BE LOST ON RESTART",
			"hint", "set SUMTREE_PERSISTENCE=badger or redis to keep claims")
	}

	return &MemoryPersistence{
		epochs:     make(map[string]*persistence.Epoch),
		allotments: make(map[string]map[int]*persistence.Allotment),
	}
}

// SaveEpoch persists an epoch.
func (m *MemoryPersistence) SaveEpoch(epoch *persistence.Epoch) error {
	if err := persistence.ValidateEpoch(epoch); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.epochs[epoch.ID] = epoch.Clone()
	return nil
}

// LoadEpoch retrieves an epoch by ID.
func (m *MemoryPersistence) LoadEpoch(id string) (*persistence.Epoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	epoch, exists := m.epochs[id]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return epoch.Clone(), nil
}

// ListEpochs returns all epochs sorted by creation time.
func (m *MemoryPersistence) ListEpochs() ([]*persistence.Epoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.Epoch, 0, len(m.epochs))
	for _, epoch := range m.epochs {
		result = append(result, epoch.Clone())
	}
	persistence.SortEpochs(result)

	return result, nil
}

// DeleteEpoch removes an epoch and its allotments.
func (m *MemoryPersistence) DeleteEpoch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.epochs, id)
	delete(m.allotments, id)
	return nil
}

// SaveAllotment persists an accepted allotment unless the leaf already holds one.
func (m *MemoryPersistence) SaveAllotment(allotment *persistence.Allotment) error {
	if err := persistence.ValidateAllotment(allotment); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	byLeaf, ok := m.allotments[allotment.EpochID]
	if !ok {
		byLeaf = make(map[int]*persistence.Allotment)
		m.allotments[allotment.EpochID] = byLeaf
	}
	if _, exists := byLeaf[allotment.LeafIndex]; exists {
		return fmt.Errorf("%w: epoch %s leaf %d", persistence.ErrAllotmentExists, allotment.EpochID, allotment.LeafIndex)
	}
	byLeaf[allotment.LeafIndex] = allotment.Clone()

	return nil
}

// ListAllotments returns an epoch's allotments sorted by interval start.
func (m *MemoryPersistence) ListAllotments(epochID string) ([]*persistence.Allotment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	byLeaf := m.allotments[epochID]
	result := make([]*persistence.Allotment, 0, len(byLeaf))
	for _, allotment := range byLeaf {
		result = append(result, allotment.Clone())
	}
	persistence.SortAllotments(result)

	return result, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}
