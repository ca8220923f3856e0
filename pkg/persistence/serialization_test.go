package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/wire"
)

func TestMarshalUnmarshalEpoch_RoundTrip(t *testing.T) {
	original := &Epoch{
		ID:           "5f0c3d7e-6a4b-4f55-9d39-1b3f0c1a2e11",
		Root:         wire.Commitment{Amount: "18446744073709551615", Digest: []byte{0xde, 0xad, 0xbe, 0xef}},
		LeafCount:    5,
		HashFunction: "keccak256",
		CreatedAt:    1700000000,
	}

	data, err := MarshalEpoch(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalEpoch(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshalUnmarshalAllotment_RoundTrip(t *testing.T) {
	original := &Allotment{
		EpochID:    "epoch-1",
		LeafIndex:  3,
		Lo:         1 << 60,
		Hi:         1<<60 + 7,
		LeafDigest: []byte{1, 2, 3},
		AcceptedAt: 1700000100,
	}

	data, err := MarshalAllotment(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lo":"1152921504606846976"`)

	restored, err := UnmarshalAllotment(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
	assert.Equal(t, uint64(7), restored.Interval().Len())
}

func TestSerialization_InvalidInput(t *testing.T) {
	_, err := MarshalEpoch(nil)
	require.Error(t, err)
	_, err = MarshalAllotment(nil)
	require.Error(t, err)

	_, err = UnmarshalEpoch(nil)
	require.Error(t, err)
	_, err = UnmarshalAllotment([]byte{})
	require.Error(t, err)

	_, err = UnmarshalEpoch([]byte("{not json"))
	require.Error(t, err)
	_, err = UnmarshalAllotment([]byte("{not json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.Error(t, ValidateEpoch(nil))
	require.Error(t, ValidateEpoch(&Epoch{}))
	require.NoError(t, ValidateEpoch(&Epoch{ID: "a"}))

	require.Error(t, ValidateAllotment(nil))
	require.Error(t, ValidateAllotment(&Allotment{}))
	require.Error(t, ValidateAllotment(&Allotment{EpochID: "a", LeafIndex: -1}))
	require.Error(t, ValidateAllotment(&Allotment{EpochID: "a", Lo: 5, Hi: 4}))
	require.NoError(t, ValidateAllotment(&Allotment{EpochID: "a", Lo: 4, Hi: 4}))
}

func TestCloneAndSort(t *testing.T) {
	epoch := &Epoch{ID: "a", Root: wire.Commitment{Amount: "1", Digest: []byte{9}}}
	clone := epoch.Clone()
	clone.Root.Digest[0] = 0
	assert.Equal(t, byte(9), epoch.Root.Digest[0])

	epochs := []*Epoch{{ID: "b", CreatedAt: 2}, {ID: "c", CreatedAt: 1}, {ID: "a", CreatedAt: 2}}
	SortEpochs(epochs)
	assert.Equal(t, []string{"c", "a", "b"}, []string{epochs[0].ID, epochs[1].ID, epochs[2].ID})

	allotments := []*Allotment{{LeafIndex: 2, Lo: 8}, {LeafIndex: 1, Lo: 5}, {LeafIndex: 0, Lo: 0}}
	SortAllotments(allotments)
	assert.Equal(t, []int{0, 1, 2}, []int{allotments[0].LeafIndex, allotments[1].LeafIndex, allotments[2].LeafIndex})
}
