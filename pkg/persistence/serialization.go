package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalEpoch serializes an Epoch to JSON bytes.
func MarshalEpoch(epoch *Epoch) ([]byte, error) {
	if epoch == nil {
		return nil, fmt.Errorf("cannot marshal nil Epoch")
	}

	data, err := json.Marshal(epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Epoch to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalEpoch deserializes an Epoch from JSON bytes.
func UnmarshalEpoch(data []byte) (*Epoch, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var epoch Epoch
	if err := json.Unmarshal(data, &epoch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Epoch: %w", err)
	}

	return &epoch, nil
}

// MarshalAllotment serializes an Allotment to JSON bytes.
func MarshalAllotment(allotment *Allotment) ([]byte, error) {
	if allotment == nil {
		return nil, fmt.Errorf("cannot marshal nil Allotment")
	}

	return json.Marshal(allotment)
}

// UnmarshalAllotment deserializes an Allotment from JSON bytes.
func UnmarshalAllotment(data []byte) (*Allotment, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var allotment Allotment
	if err := json.Unmarshal(data, &allotment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Allotment: %w", err)
	}

	return &allotment, nil
}

// ValidateEpoch checks the fields every backend requires before saving.
func ValidateEpoch(epoch *Epoch) error {
	if epoch == nil {
		return fmt.Errorf("cannot save nil Epoch")
	}
	if epoch.ID == "" {
		return fmt.Errorf("epoch ID cannot be empty")
	}
	return nil
}

// ValidateAllotment checks the fields every backend requires before saving.
func ValidateAllotment(allotment *Allotment) error {
	if allotment == nil {
		return fmt.Errorf("cannot save nil Allotment")
	}
	if allotment.EpochID == "" {
		return fmt.Errorf("allotment epoch ID cannot be empty")
	}
	if allotment.LeafIndex < 0 {
		return fmt.Errorf("allotment leaf index cannot be negative: %d", allotment.LeafIndex)
	}
	if allotment.Hi < allotment.Lo {
		return fmt.Errorf("allotment interval is inverted: [%d, %d)", allotment.Lo, allotment.Hi)
	}
	return nil
}
