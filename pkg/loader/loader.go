// Package loader reads (label, amount) entries from CSV or JSON sources.
// Range checks on amounts are left to the commitment scheme so that out-of-range
// values surface as sumtree.ErrInvalidAmount with the entry index attached.
package loader

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/sumtree"
)

// jsonEntry is the JSON form of an input entry. Amounts are strings so that
// values beyond 2^53 survive JSON tooling.
type jsonEntry struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// LoadCSV reads "label,amount" rows. A first row whose label column is "label" is
// treated as a header and skipped.
func LoadCSV(r io.Reader) ([]sumtree.Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	entries := make([]sumtree.Entry, 0)
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv row %d", row)
		}
		if row == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "label") {
			continue
		}

		entry, err := parseEntry(record[0], record[1])
		if err != nil {
			return nil, errors.Wrapf(err, "csv row %d", row)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LoadJSON reads a JSON array of {"label": "...", "amount": "..."} objects.
func LoadJSON(r io.Reader) ([]sumtree.Entry, error) {
	var raw []jsonEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode json entries")
	}

	entries := make([]sumtree.Entry, 0, len(raw))
	for i, je := range raw {
		entry, err := parseEntry(je.Label, je.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "json entry %d", i)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LoadFile loads entries from path, choosing the format by extension (.csv or .json).
func LoadFile(path string) ([]sumtree.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".json":
		return LoadJSON(f)
	default:
		return nil, errors.Errorf("unsupported input format %q (expected .csv or .json)", filepath.Ext(path))
	}
}

func parseEntry(label, amount string) (sumtree.Entry, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return sumtree.Entry{}, errors.New("label cannot be empty")
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok {
		return sumtree.Entry{}, errors.Errorf("invalid amount %q", amount)
	}
	return sumtree.Entry{Label: []byte(label), Amount: value}, nil
}
