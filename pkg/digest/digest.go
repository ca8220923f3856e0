// Package digest provides the digest functions a sum tree commitment scheme can be
// parameterized over. Every hasher here is stateless and safe for concurrent use.
package digest

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/wealdtech/go-merkletree/v2/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
)

// Supported hash function names
const (
	NameKeccak256 = "keccak256"
	NameSHA256    = "sha256"
	NameSHA3      = "sha3-256"
	NameBlake2b   = "blake2b"
	NameMiMC      = "mimc-bn254"
)

var constructors = map[string]func() sumtree.Hasher{
	NameKeccak256: func() sumtree.Hasher { return Keccak256{} },
	NameSHA256:    func() sumtree.Hasher { return SHA256{} },
	NameSHA3:      func() sumtree.Hasher { return SHA3{} },
	NameBlake2b:   func() sumtree.Hasher { return blake2b.New() },
	NameMiMC:      func() sumtree.Hasher { return MiMC{} },
}

// New returns the hasher registered under name (case-insensitive).
func New(name string) (sumtree.Hasher, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported hash function %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names returns all supported hash function names in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keccak256 hashes with the legacy Keccak-256 used by Ethereum, so roots can be
// checked by Solidity contracts.
type Keccak256 struct{}

func (Keccak256) Hash(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

func (Keccak256) HashLength() int {
	return 32
}

// SHA256 hashes with FIPS 180-4 SHA-256.
type SHA256 struct{}

func (SHA256) Hash(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return h.Sum(nil)
}

func (SHA256) HashLength() int {
	return sha256.Size
}

// SHA3 hashes with FIPS 202 SHA3-256.
type SHA3 struct{}

func (SHA3) Hash(data ...[]byte) []byte {
	h := sha3.New256()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	return h.Sum(nil)
}

func (SHA3) HashLength() int {
	return 32
}
