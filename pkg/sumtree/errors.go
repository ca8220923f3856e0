package sumtree

import "errors"

var (
	// ErrInvalidAmount is returned when a leaf amount is missing, negative or wider than 64 bits.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountOverflow is returned when summing two amounts exceeds the uint64 domain.
	ErrAmountOverflow = errors.New("amount overflow")

	// ErrEmptyInput is returned when building a tree without any leaves.
	ErrEmptyInput = errors.New("empty input")

	// ErrDuplicateLabel is returned when two entries of the same tree share a label.
	ErrDuplicateLabel = errors.New("duplicate label")

	// ErrIndexOutOfRange is returned for indices outside [0, leafCount).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrMalformedProof is returned when a proof's shape does not fit the claimed index or tree depth.
	ErrMalformedProof = errors.New("malformed proof")

	// ErrProofMismatch is returned when the reconstructed root differs from the expected root.
	ErrProofMismatch = errors.New("proof mismatch")
)
