package persistence

import "errors"

// ErrAllotmentExists is returned by SaveAllotment when the leaf already holds an allotment.
var ErrAllotmentExists = errors.New("allotment already exists")

// ILedgerPersistence defines the interface for persisting the exclusivity ledger.
// All implementations must be thread-safe as claims may be processed concurrently.
//
// The interface supports:
// - Epoch management (a published root plus its trusted verification context)
// - Allotment records (intervals accepted against an epoch)
// - Lifecycle management (close, health check)
type ILedgerPersistence interface {
	// Epoch Management

	// SaveEpoch persists an epoch keyed by its ID.
	// Overwrites any existing epoch with the same ID.
	SaveEpoch(epoch *Epoch) error

	// LoadEpoch retrieves an epoch by ID.
	// Returns nil if the epoch doesn't exist, error only on storage failure.
	LoadEpoch(id string) (*Epoch, error)

	// ListEpochs returns all persisted epochs sorted by creation time (ascending).
	// Returns empty slice if no epochs exist, error only on storage failure.
	ListEpochs() ([]*Epoch, error)

	// DeleteEpoch removes an epoch together with all of its allotments.
	// Idempotent - returns nil if the epoch doesn't exist.
	DeleteEpoch(id string) error

	// Allotment Records

	// SaveAllotment persists an accepted allotment keyed by (EpochID, LeafIndex).
	// The write is conditional: if the leaf already holds an allotment the store is left
	// unchanged and ErrAllotmentExists is returned, including when the competing write
	// comes from another process sharing the backend.
	SaveAllotment(allotment *Allotment) error

	// ListAllotments returns the allotments of an epoch sorted by interval start.
	// Returns empty slice if none exist, error only on storage failure.
	ListAllotments(epochID string) ([]*Allotment, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
