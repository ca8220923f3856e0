package persistence

import (
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/wire"
)

// Epoch is a registered root together with the context verifiers must trust:
// the real leaf count and the digest function the tree was built with.
type Epoch struct {
	// ID is the primary key (a UUID assigned at registration)
	ID string `json:"id"`

	Root wire.Commitment `json:"root"`

	LeafCount int `json:"leafCount"`

	// HashFunction is a digest name understood by digest.New
	HashFunction string `json:"hashFunction"`

	// CreatedAt is the Unix timestamp of registration
	CreatedAt int64 `json:"createdAt"`
}

// Allotment is an interval accepted for one leaf of an epoch.
type Allotment struct {
	EpochID   string `json:"epochId"`
	LeafIndex int    `json:"leafIndex"`

	// Lo and Hi bound the half-open interval [Lo, Hi)
	Lo uint64 `json:"lo,string"`
	Hi uint64 `json:"hi,string"`

	LeafDigest hexutil.Bytes `json:"leafDigest"`

	// AcceptedAt is the Unix timestamp of acceptance
	AcceptedAt int64 `json:"acceptedAt"`
}

// Interval returns the allotted interval.
func (a *Allotment) Interval() sumtree.Interval {
	return sumtree.Interval{Lo: a.Lo, Hi: a.Hi}
}

// Clone returns a deep copy of the epoch.
func (e *Epoch) Clone() *Epoch {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Root.Digest = append(hexutil.Bytes{}, e.Root.Digest...)
	return &clone
}

// Clone returns a deep copy of the allotment.
func (a *Allotment) Clone() *Allotment {
	if a == nil {
		return nil
	}
	clone := *a
	clone.LeafDigest = append(hexutil.Bytes{}, a.LeafDigest...)
	return &clone
}

// SortEpochs orders epochs by creation time, breaking ties by ID.
func SortEpochs(epochs []*Epoch) {
	sort.Slice(epochs, func(i, j int) bool {
		if epochs[i].CreatedAt != epochs[j].CreatedAt {
			return epochs[i].CreatedAt < epochs[j].CreatedAt
		}
		return epochs[i].ID < epochs[j].ID
	})
}

// SortAllotments orders allotments by interval start, breaking ties by leaf index.
func SortAllotments(allotments []*Allotment) {
	sort.Slice(allotments, func(i, j int) bool {
		if allotments[i].Lo != allotments[j].Lo {
			return allotments[i].Lo < allotments[j].Lo
		}
		return allotments[i].LeafIndex < allotments[j].LeafIndex
	})
}
