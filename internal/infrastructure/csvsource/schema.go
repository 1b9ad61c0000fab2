package csvsource

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// requiredColumns must be resolvable (directly or via alias) for a dataset
// to be analyzable at all.
var requiredColumns = []string{"date", "spend", "impressions", "clicks", "revenue"}

// ValidateHeader checks a normalized header for the required columns and
// reports every missing one in a single error.
func ValidateHeader(header []string) error {
	cols := resolveColumns(header)
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("csv header missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Fingerprint identifies a dataset's shape: its columns and the value kind
// inferred for each. Two exports with the same fingerprint can safely share
// cached baselines.
type Fingerprint struct {
	Hash    string            `json:"hash"`
	Columns []string          `json:"columns"`
	Kinds   map[string]string `json:"kinds"`
}

// FingerprintOf derives the fingerprint from a normalized header and a small
// sample of data rows. Kinds are inferred from the first non-empty cell per
// column: "number", "date" or "text".
func FingerprintOf(header []string, sample [][]string) Fingerprint {
	kinds := make(map[string]string, len(header))
	for i, col := range header {
		kinds[col] = inferKind(columnSample(sample, i))
	}

	columns := append([]string(nil), header...)
	sort.Strings(columns)

	h := sha256.New()
	for _, col := range columns {
		fmt.Fprintf(h, "%s=%s;", col, kinds[col])
	}
	return Fingerprint{
		Hash:    hex.EncodeToString(h.Sum(nil)),
		Columns: columns,
		Kinds:   kinds,
	}
}

// DriftFrom describes how this fingerprint differs from a previous one.
// An empty result means no drift.
func (f Fingerprint) DriftFrom(prev Fingerprint) []string {
	if f.Hash == prev.Hash {
		return nil
	}

	var changes []string
	prevCols := make(map[string]struct{}, len(prev.Columns))
	for _, c := range prev.Columns {
		prevCols[c] = struct{}{}
	}
	curCols := make(map[string]struct{}, len(f.Columns))
	for _, c := range f.Columns {
		curCols[c] = struct{}{}
	}

	for _, c := range prev.Columns {
		if _, ok := curCols[c]; !ok {
			changes = append(changes, fmt.Sprintf("column removed: %s", c))
		}
	}
	for _, c := range f.Columns {
		if _, ok := prevCols[c]; !ok {
			changes = append(changes, fmt.Sprintf("column added: %s", c))
		}
	}
	for _, c := range f.Columns {
		if _, ok := prevCols[c]; !ok {
			continue
		}
		if prev.Kinds[c] != f.Kinds[c] && prev.Kinds[c] != "" && f.Kinds[c] != "" {
			changes = append(changes, fmt.Sprintf("column %s changed kind: %s -> %s", c, prev.Kinds[c], f.Kinds[c]))
		}
	}
	return changes
}

func columnSample(sample [][]string, col int) string {
	for _, record := range sample {
		if col < len(record) {
			if v := strings.TrimSpace(record[col]); v != "" {
				return v
			}
		}
	}
	return ""
}

func inferKind(value string) string {
	if value == "" {
		return "text"
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err == nil {
		return "number"
	}
	if !parseDate(value).IsZero() {
		return "date"
	}
	return "text"
}
