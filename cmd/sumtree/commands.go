package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/config"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/digest"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/loader"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/logger"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence/factory"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/wire"
)

// parseConfig collects global and command flags into a validated configuration
func parseConfig(c *cli.Context) (*config.SumTreeConfig, error) {
	persistenceType := config.PersistenceTypeMemory
	if name := c.String("persistence"); name != "" {
		pt, err := config.ParsePersistenceType(name)
		if err != nil {
			return nil, err
		}
		persistenceType = pt
	}

	cfg := &config.SumTreeConfig{
		HashFunction: strings.ToLower(strings.TrimSpace(c.String("hash"))),
		Workers:      c.Int("workers"),
		Persistence: config.PersistenceConfig{
			Type:     persistenceType,
			DataPath: c.String("data-path"),
			Redis: config.RedisConfig{
				Address:   c.String("redis-address"),
				Password:  c.String("redis-password"),
				DB:        c.Int("redis-db"),
				KeyPrefix: c.String("redis-key-prefix"),
			},
		},
		Debug: c.Bool("verbose"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// setup returns the validated configuration and a logger for a command
func setup(c *cli.Context) (*config.SumTreeConfig, *zap.Logger, error) {
	cfg, err := parseConfig(c)
	if err != nil {
		return nil, nil, err
	}
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create logger")
	}
	return cfg, l, nil
}

// buildTree loads the input file and commits to it with the configured hash
func buildTree(cfg *config.SumTreeConfig, l *zap.Logger, input string) (*sumtree.Tree, []sumtree.Entry, error) {
	entries, err := loader.LoadFile(input)
	if err != nil {
		return nil, nil, err
	}

	h, err := digest.New(cfg.HashFunction)
	if err != nil {
		return nil, nil, err
	}

	tree, err := sumtree.BuildSumTree(sumtree.NewSumScheme(h), entries, &sumtree.BuildConfig{Workers: cfg.Workers})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to build tree from %s", input)
	}

	l.Sugar().Debugw("Built sum tree",
		"input", input,
		"leaves", tree.LeafCount(),
		"paddedLeaves", tree.PaddedLeafCount(),
		"depth", tree.Depth(),
		"total", tree.Root().Amount,
	)
	return tree, entries, nil
}

// commitCommand handles the commit subcommand
func commitCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	tree, entries, err := buildTree(cfg, l, c.String("input"))
	if err != nil {
		return err
	}

	if dir := c.String("proofs-dir"); dir != "" {
		if err := writeProofBundles(tree, entries, dir); err != nil {
			return err
		}
		l.Sugar().Infow("Wrote proof bundles", "dir", dir, "count", len(entries))
	}

	data, err := wire.MarshalPublishedRoot(wire.NewPublishedRoot(tree, cfg.HashFunction))
	if err != nil {
		return err
	}
	return writeOutput(c, c.String("output"), data)
}

func writeProofBundles(tree *sumtree.Tree, entries []sumtree.Entry, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	for i, entry := range entries {
		bundle, err := wire.NewProofBundle(tree, entry.Label, i)
		if err != nil {
			return errors.Wrapf(err, "failed to prove leaf %d", i)
		}
		data, err := wire.MarshalProofBundle(bundle)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("proof-%d.json", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
	}
	return nil
}

// proveCommand handles the prove subcommand
func proveCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	tree, entries, err := buildTree(cfg, l, c.String("input"))
	if err != nil {
		return err
	}

	index := c.Int("index")
	if index < 0 || index >= len(entries) {
		return errors.Wrapf(sumtree.ErrIndexOutOfRange, "index %d with %d entries", index, len(entries))
	}

	bundle, err := wire.NewProofBundle(tree, entries[index].Label, index)
	if err != nil {
		return err
	}
	data, err := wire.MarshalProofBundle(bundle)
	if err != nil {
		return err
	}
	return writeOutput(c, "", data)
}

// verifyCommand handles the verify subcommand
func verifyCommand(c *cli.Context) error {
	_, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	published, err := readPublishedRoot(c.String("root"))
	if err != nil {
		return err
	}
	bundle, leaf, proof, err := readProofBundle(c.String("proof"))
	if err != nil {
		return err
	}

	h, err := digest.New(published.HashFunction)
	if err != nil {
		return errors.Wrap(err, "published root names an unsupported hash")
	}
	scheme := sumtree.NewSumScheme(h)
	if err := checkLabel(scheme, bundle.Label, leaf); err != nil {
		return err
	}

	root, err := published.Root.ToCommitment()
	if err != nil {
		return err
	}

	interval, err := sumtree.VerifyAllotment(scheme, leaf, proof.LeafIndex, published.LeafCount, proof, root)
	if err != nil {
		l.Sugar().Debugw("Proof rejected", "leafIndex", proof.LeafIndex, "error", err)
		return errors.Wrap(err, "proof rejected")
	}

	_, err = fmt.Fprintf(c.App.Writer, "✅ leaf %d (%s) holds %s of %d\n",
		proof.LeafIndex, string(bundle.Label), interval, root.Amount)
	return err
}

// claimCommand handles the claim subcommand
func claimCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	if c.String("epoch") == "" && c.String("root") == "" {
		return errors.New("either --epoch or --root is required")
	}

	bundle, leaf, proof, err := readProofBundle(c.String("proof"))
	if err != nil {
		return err
	}

	store, err := factory.NewLedgerPersistence(&cfg.Persistence, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	lg := ledger.NewLedger(store, l)

	epoch, err := resolveEpoch(c, lg)
	if err != nil {
		return err
	}

	scheme, err := ledger.SchemeFor(epoch)
	if err != nil {
		return err
	}
	if err := checkLabel(scheme, bundle.Label, leaf); err != nil {
		return err
	}

	allotment, err := lg.Claim(scheme, epoch.ID, leaf, proof.LeafIndex, proof)
	if err != nil {
		return errors.Wrap(err, "claim rejected")
	}

	data, err := json.MarshalIndent(allotment, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(c, "", data)
}

// dropEpochCommand handles the drop-epoch subcommand
func dropEpochCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := factory.NewLedgerPersistence(&cfg.Persistence, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	id := c.String("epoch")
	if err := ledger.NewLedger(store, l).DropEpoch(id); err != nil {
		return errors.Wrapf(err, "failed to drop epoch %s", id)
	}
	_, err = fmt.Fprintf(c.App.Writer, "dropped epoch %s\n", id)
	return err
}


// resolveEpoch loads the epoch named by --epoch, or registers the epoch for --root.
// Registration is idempotent, so every run against the same root shares one epoch.
func resolveEpoch(c *cli.Context, lg *ledger.Ledger) (*persistence.Epoch, error) {
	if id := c.String("epoch"); id != "" {
		return lg.Epoch(id)
	}

	published, err := readPublishedRoot(c.String("root"))
	if err != nil {
		return nil, err
	}
	root, err := published.Root.ToCommitment()
	if err != nil {
		return nil, err
	}
	return lg.RegisterEpoch(root, published.LeafCount, published.HashFunction)
}

// checkLabel recomputes the leaf commitment from the bundle label so a bundle
// cannot present another entity's leaf under its own label
func checkLabel(scheme sumtree.Scheme, label []byte, leaf sumtree.Commitment) error {
	expected, err := scheme.Leaf(new(big.Int).SetUint64(leaf.Amount), label)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected.Digest, leaf.Digest) {
		return errors.Errorf("label %q does not match the leaf commitment", string(label))
	}
	return nil
}

func readPublishedRoot(path string) (*wire.PublishedRoot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read root file %s", path)
	}
	published, err := wire.UnmarshalPublishedRoot(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid root file %s", path)
	}
	return published, nil
}

func readProofBundle(path string) (*wire.ProofBundle, sumtree.Commitment, *sumtree.InclusionProof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sumtree.Commitment{}, nil, errors.Wrapf(err, "failed to read proof file %s", path)
	}
	bundle, err := wire.UnmarshalProofBundle(data)
	if err != nil {
		return nil, sumtree.Commitment{}, nil, errors.Wrapf(err, "invalid proof file %s", path)
	}
	leaf, err := bundle.Leaf.ToCommitment()
	if err != nil {
		return nil, sumtree.Commitment{}, nil, errors.Wrapf(err, "invalid leaf in %s", path)
	}
	proof, err := bundle.Proof.ToProof()
	if err != nil {
		return nil, sumtree.Commitment{}, nil, errors.Wrapf(err, "invalid proof in %s", path)
	}
	return bundle, leaf, proof, nil
}

// writeOutput writes data to path, or to the app writer when path is empty
func writeOutput(c *cli.Context, path string, data []byte) error {
	if path == "" {
		_, err := fmt.Fprintln(c.App.Writer, string(data))
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
