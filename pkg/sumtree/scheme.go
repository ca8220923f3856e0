package sumtree

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
)

// Hasher is the digest function a Scheme is parameterized over.
// It must be deterministic, collision resistant and always return HashLength bytes.
//
// The method set matches github.com/wealdtech/go-merkletree/v2.HashType,
// so hashers from that module can be used directly.
type Hasher interface {
	Hash(data ...[]byte) []byte
	HashLength() int
}

// Scheme builds leaf commitments and merges two commitments into their parent.
// Implementations must be pure and safe for concurrent use.
type Scheme interface {
	// Leaf commits to an entity's amount under its label.
	Leaf(amount *big.Int, label []byte) (Commitment, error)

	// Padding returns the zero-amount commitment used to fill a level up to a power of two.
	Padding() Commitment

	// Combine returns the parent of left and right. Argument order is significant.
	Combine(left, right Commitment) (Commitment, error)

	// DigestSize is the length in bytes of every digest the scheme produces.
	DigestSize() int
}

// Domain separation tags prepended to every digest input.
const (
	tagLeaf    byte = 0x00
	tagPadding byte = 0x01
	tagNode    byte = 0x02
)

// SumScheme is the default Scheme:
//
//	leaf    = H(0x00 || be64(amount) || label)
//	padding = H(0x01 || be64(0))
//	node    = H(0x02 || left.digest || right.digest || be64(left.amount + right.amount))
type SumScheme struct {
	hasher  Hasher
	padding Commitment
}

var _ Scheme = (*SumScheme)(nil)

// NewSumScheme returns a SumScheme backed by the given hasher.
func NewSumScheme(h Hasher) *SumScheme {
	s := &SumScheme{hasher: h}
	s.padding = Commitment{
		Amount: 0,
		Digest: h.Hash([]byte{tagPadding}, encodeAmount(0)),
	}
	return s
}

// Leaf commits to amount under label. The amount must fit in a uint64.
func (s *SumScheme) Leaf(amount *big.Int, label []byte) (Commitment, error) {
	value, err := AmountToUint64(amount)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment{
		Amount: value,
		Digest: s.hasher.Hash([]byte{tagLeaf}, encodeAmount(value), label),
	}, nil
}

// Padding returns a copy of the padding commitment.
func (s *SumScheme) Padding() Commitment {
	return s.padding.Clone()
}

// Combine merges left and right into their parent commitment.
func (s *SumScheme) Combine(left, right Commitment) (Commitment, error) {
	sum, carry := bits.Add64(left.Amount, right.Amount, 0)
	if carry != 0 {
		return Commitment{}, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, left.Amount, right.Amount)
	}
	return Commitment{
		Amount: sum,
		Digest: s.hasher.Hash([]byte{tagNode}, left.Digest, right.Digest, encodeAmount(sum)),
	}, nil
}

// DigestSize returns the hasher's output length.
func (s *SumScheme) DigestSize() int {
	return s.hasher.HashLength()
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// AmountToUint64 converts an arbitrary precision amount to the tree's numeric domain.
func AmountToUint64(amount *big.Int) (uint64, error) {
	if amount == nil {
		return 0, fmt.Errorf("%w: amount is nil", ErrInvalidAmount)
	}
	if amount.Sign() < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount.String())
	}
	if amount.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: %s exceeds 64 bits", ErrInvalidAmount, amount.String())
	}
	return amount.Uint64(), nil
}

func encodeAmount(amount uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	return buf[:]
}
