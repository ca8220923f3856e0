package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/digest"
)

// Environment variable names for sumtree configuration
const (
	EnvSumTreeHash           = "SUMTREE_HASH"
	EnvSumTreeWorkers        = "SUMTREE_WORKERS"
	EnvSumTreePersistence    = "SUMTREE_PERSISTENCE"
	EnvSumTreeDataPath       = "SUMTREE_DATA_PATH"
	EnvSumTreeRedisAddress   = "SUMTREE_REDIS_ADDRESS"
	EnvSumTreeRedisPassword  = "SUMTREE_REDIS_PASSWORD"
	EnvSumTreeRedisDB        = "SUMTREE_REDIS_DB"
	EnvSumTreeRedisKeyPrefix = "SUMTREE_REDIS_KEY_PREFIX"
	EnvSumTreeVerbose        = "SUMTREE_VERBOSE"
)

// Defaults used by the CLI flags
const (
	DefaultHashFunction = digest.NameKeccak256
	DefaultDataPath     = "./sumtree-data"
	DefaultRedisAddress = "localhost:6379"
	MaxWorkers          = 256
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// SupportedPersistenceTypes lists the ledger backends in the order shown in CLI help
var SupportedPersistenceTypes = []PersistenceType{
	PersistenceTypeMemory,
	PersistenceTypeBadger,
	PersistenceTypeRedis,
}

// ParsePersistenceType parses a backend name (case-insensitive)
func ParsePersistenceType(s string) (PersistenceType, error) {
	pt := PersistenceType(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range SupportedPersistenceTypes {
		if pt == supported {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unsupported persistence type: %q", s)
}

// RedisConfig holds the connection settings of the redis ledger backend
type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// PersistenceConfig selects and configures the ledger backend
type PersistenceConfig struct {
	Type PersistenceType `json:"type" yaml:"type"`

	// DataPath is the badger database directory
	DataPath string `json:"dataPath" yaml:"dataPath"`

	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// SumTreeConfig represents the complete configuration of the sumtree tooling
type SumTreeConfig struct {
	// HashFunction names the digest function (see digest.Names)
	HashFunction string `json:"hash_function"`

	// Workers bounds the goroutines used per tree level; values below 2 build sequentially
	Workers int `json:"workers"`

	Persistence PersistenceConfig `json:"persistence"`

	// Debug enables development logging at debug level
	Debug bool `json:"debug"`
}

// Validate validates the sumtree configuration
func (c *SumTreeConfig) Validate() error {
	var allErrors field.ErrorList

	if c.HashFunction == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("hashFunction"), "hash function is required"))
	} else if _, err := digest.New(c.HashFunction); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashFunction"), c.HashFunction, digest.Names()))
	}

	if c.Workers < 0 || c.Workers > MaxWorkers {
		allErrors = append(allErrors, field.Invalid(field.NewPath("workers"), c.Workers, fmt.Sprintf("must be between 0-%d", MaxWorkers)))
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (pc *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch pc.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if pc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "address is required for redis persistence"))
		}
		if pc.Redis.DB < 0 || pc.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), pc.Redis.DB, "must be between 0-15"))
		}
	default:
		supported := make([]string, len(SupportedPersistenceTypes))
		for i, pt := range SupportedPersistenceTypes {
			supported[i] = pt.String()
		}
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type.String(), supported))
	}

	return allErrors
}

// GetSupportedHashFunctionsString returns supported hash functions for CLI help
func GetSupportedHashFunctionsString() string {
	return strings.Join(digest.Names(), ", ")
}

// GetSupportedPersistenceTypesString returns supported ledger backends for CLI help
func GetSupportedPersistenceTypesString() string {
	names := make([]string, len(SupportedPersistenceTypes))
	for i, pt := range SupportedPersistenceTypes {
		names[i] = pt.String()
	}
	return strings.Join(names, ", ")
}
