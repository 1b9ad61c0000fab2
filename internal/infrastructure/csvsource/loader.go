// Package csvsource loads campaign performance rows from CSV exports.
// Real-world exports are messy: header names vary between platforms, dates
// arrive in several layouts and numeric cells may hold garbage. The loader
// coerces what it can, counts what it coerced and only fails hard when the
// file yields no rows at all.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/domain"
)

// ErrNoRows is returned when the input produced zero data rows.
var ErrNoRows = errors.New("csv input contains no data rows")

// dateLayouts are tried in order when parsing the date column.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// columnAliases maps canonical column names to the header spellings seen in
// exports from different ad platforms.
var columnAliases = map[string][]string{
	"date":        {"date", "day"},
	"campaign":    {"campaign", "campaign_name"},
	"creative":    {"creative_id", "creative"},
	"spend":       {"spend", "cost"},
	"impressions": {"impressions"},
	"clicks":      {"clicks"},
	"revenue":     {"revenue"},
}

// LoadReport counts the coercions applied while reading.
type LoadReport struct {
	RowsRead   int `json:"rows_read"`
	BadDates   int `json:"bad_dates"`
	BadNumbers int `json:"bad_numbers"`
	ShortRows  int `json:"short_rows"`
}

// LoadFile reads rows from a CSV file on disk.
func LoadFile(path string) ([]domain.Row, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// LoadFileWithFingerprint is LoadWithFingerprint over a file on disk.
func LoadFileWithFingerprint(path string) ([]domain.Row, LoadReport, Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, Fingerprint{}, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()
	return LoadWithFingerprint(f)
}

// Load reads rows from a CSV stream. The header row is mandatory and must
// pass schema validation; data rows are coerced rather than rejected.
func Load(r io.Reader) ([]domain.Row, LoadReport, error) {
	rows, report, _, _, err := load(r)
	return rows, report, err
}

// LoadWithFingerprint loads rows and fingerprints the dataset shape in one
// pass. The fingerprint keys baseline caching and schema drift detection.
func LoadWithFingerprint(r io.Reader) ([]domain.Row, LoadReport, Fingerprint, error) {
	rows, report, header, sample, err := load(r)
	if err != nil {
		return rows, report, Fingerprint{}, err
	}
	return rows, report, FingerprintOf(header, sample), nil
}

// fingerprintSampleSize bounds how many records feed kind inference.
const fingerprintSampleSize = 20

func load(r io.Reader) ([]domain.Row, LoadReport, []string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, LoadReport{}, nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	header = normalizeHeader(header)
	if err := ValidateHeader(header); err != nil {
		return nil, LoadReport{}, header, nil, err
	}
	cols := resolveColumns(header)

	var (
		rows   []domain.Row
		sample [][]string
		report LoadReport
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, header, sample, fmt.Errorf("failed to read csv record: %w", err)
		}
		if len(sample) < fingerprintSampleSize {
			sample = append(sample, record)
		}
		row, ok := parseRecord(record, cols, &report)
		if !ok {
			continue
		}
		rows = append(rows, row)
		report.RowsRead++
	}

	if len(rows) == 0 {
		return nil, report, header, sample, ErrNoRows
	}
	if report.BadDates > 0 || report.BadNumbers > 0 {
		log.Warn().
			Int("bad_dates", report.BadDates).
			Int("bad_numbers", report.BadNumbers).
			Int("rows_read", report.RowsRead).
			Msg("CSV load coerced malformed cells")
	}
	return rows, report, header, sample, nil
}

// columnIndex maps canonical names to positions in the header.
type columnIndex map[string]int

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func resolveColumns(header []string) columnIndex {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	cols := make(columnIndex)
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := pos[alias]; ok {
				cols[canonical] = i
				break
			}
		}
	}
	return cols
}

// parseRecord coerces one record into a Row. Rows too short to hold any
// mapped column are dropped; cell-level defects degrade to zero values.
func parseRecord(record []string, cols columnIndex, report *LoadReport) (domain.Row, bool) {
	cell := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	if _, ok := cell("date"); !ok {
		report.ShortRows++
		return domain.Row{}, false
	}

	num := func(name string) float64 {
		raw, ok := cell(name)
		if !ok || raw == "" {
			return 0
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			report.BadNumbers++
			return 0
		}
		return v
	}

	var row domain.Row
	if raw, ok := cell("date"); ok {
		row.Date = parseDate(raw)
		if row.Date.IsZero() && raw != "" {
			report.BadDates++
		}
	}
	if raw, ok := cell("campaign"); ok {
		row.Campaign = raw
	}
	if raw, ok := cell("creative"); ok {
		row.Creative = raw
	}
	row.Spend = num("spend")
	row.Impressions = num("impressions")
	row.Clicks = num("clicks")
	row.Revenue = num("revenue")
	return row, true
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
