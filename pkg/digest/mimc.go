package digest

import (
	"encoding/binary"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

const (
	mimcBlockSize = 32

	// mimcChunkSize leaves the top byte of every block zero so each block is a
	// canonical bn254 scalar field element.
	mimcChunkSize = mimcBlockSize - 1
)

// MiMC hashes with MiMC over the bn254 scalar field, which keeps commitments
// cheap to recompute inside a SNARK circuit.
//
// Input is concatenated, cut into 31-byte chunks and each chunk is written as one
// left-padded field element. A final element holding the input length keeps
// inputs that differ only in trailing zero bytes apart.
type MiMC struct{}

func (MiMC) Hash(data ...[]byte) []byte {
	var h hash.Hash = mimc.NewMiMC()

	var total int
	for _, d := range data {
		total += len(d)
	}
	buf := make([]byte, 0, total)
	for _, d := range data {
		buf = append(buf, d...)
	}

	var block [mimcBlockSize]byte
	for start := 0; start < len(buf); start += mimcChunkSize {
		end := min(start+mimcChunkSize, len(buf))
		clear(block[:])
		copy(block[mimcBlockSize-(end-start):], buf[start:end])
		// Blocks with a zero top byte are always canonical, so Write cannot fail
		_, _ = h.Write(block[:])
	}

	clear(block[:])
	binary.BigEndian.PutUint64(block[mimcBlockSize-8:], uint64(len(buf)))
	_, _ = h.Write(block[:])

	return h.Sum(nil)
}

func (MiMC) HashLength() int {
	return mimcBlockSize
}
