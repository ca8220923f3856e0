package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sumtree",
		Usage: "Merkle sum tree commitments and exclusive allotment proofs",
		Description: `Commits a list of (label, amount) entries to a single Merkle sum tree root.

Every leaf's inclusion proof also proves the half-open interval [lo, hi) the leaf
occupies within the root total. Intervals of different leaves never overlap, so a
verifier can accept each allotment independently. The claim command records accepted
intervals in a durable ledger (badger by default) and refuses to hand out the
same interval twice.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hash",
				Usage:   fmt.Sprintf("Digest function: %s", config.GetSupportedHashFunctionsString()),
				Value:   config.DefaultHashFunction,
				EnvVars: []string{config.EnvSumTreeHash},
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Goroutines per tree level when building large trees (0 or 1 builds sequentially)",
				Value:   1,
				EnvVars: []string{config.EnvSumTreeWorkers},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvSumTreeVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "commit",
				Usage: "Build the tree for an input file and print the published root",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Entries file (.csv with label,amount rows or .json)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "proofs-dir",
						Usage: "Directory to write one proof bundle per leaf (proof-<index>.json)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the published root to this file instead of stdout",
					},
				},
				Action: commitCommand,
			},
			{
				Name:  "prove",
				Usage: "Print the proof bundle for one leaf",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Entries file the root was committed from",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "index",
						Usage:    "Leaf index (position of the entry in the input)",
						Required: true,
					},
				},
				Action: proveCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a proof bundle against a published root and print the allotted interval",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "root",
						Usage:    "Published root file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "proof",
						Usage:    "Proof bundle file",
						Required: true,
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "claim",
				Usage: "Verify a proof bundle and record the allotment in the ledger",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "root",
						Usage: "Published root file (required unless --epoch is given)",
					},
					&cli.StringFlag{
						Name:     "proof",
						Usage:    "Proof bundle file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "epoch",
						Usage: "Registered epoch ID; when empty the root is registered, or resolved if already known",
					},
				}, persistenceFlags()...),
				Action: claimCommand,
			},
			{
				Name:  "drop-epoch",
				Usage: "Retire an epoch and every allotment accepted against it",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "epoch",
						Usage:    "Registered epoch ID",
						Required: true,
					},
				}, persistenceFlags()...),
				Action: dropEpochCommand,
			},
		},
	}
}

// persistenceFlags selects the ledger backend shared by the ledger commands
func persistenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "persistence",
			Usage:   fmt.Sprintf("Ledger backend: %s", config.GetSupportedPersistenceTypesString()),
			Value:   config.PersistenceTypeBadger.String(),
			EnvVars: []string{config.EnvSumTreePersistence},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger data directory",
			Value:   config.DefaultDataPath,
			EnvVars: []string{config.EnvSumTreeDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis server address (host:port)",
			Value:   config.DefaultRedisAddress,
			EnvVars: []string{config.EnvSumTreeRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvSumTreeRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number (0-15)",
			EnvVars: []string{config.EnvSumTreeRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for all Redis keys",
			EnvVars: []string{config.EnvSumTreeRedisKeyPrefix},
		},
	}
}
