// Package ingest loads the district damage and NGO score tables from
// the CSV files produced by the upstream data pipeline, plus district
// centroids from GeoJSON for movement annotation. Partial rows are
// expected in user-supplied CSVs: missing or non-numeric fields coerce
// to 0 and never fail the load.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/reliefiq/reliefsim/internal/model"
)

// NormalizeDistrict canonicalizes a district name for matching across
// the damage, score, and GeoJSON sources.
func NormalizeDistrict(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LoadDistricts reads the district damage CSV. Expected columns:
// district plus houses_destroyed_pct (the headline damage figure).
func LoadDistricts(path string) ([]model.District, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open districts: %w", err)
	}
	defer f.Close()
	return ReadDistricts(f)
}

// ReadDistricts parses district rows from CSV data.
func ReadDistricts(r io.Reader) ([]model.District, error) {
	rows, header, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("read districts: %w", err)
	}

	nameCol := columnIndex(header, "district")
	damageCol := columnIndex(header, "houses_destroyed_pct")
	if nameCol < 0 {
		return nil, fmt.Errorf("read districts: no district column in header %v", header)
	}

	var out []model.District
	seen := make(map[string]bool)
	for _, row := range rows {
		raw := strings.TrimSpace(field(row, nameCol))
		if raw == "" {
			continue
		}
		id := NormalizeDistrict(raw)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, model.District{
			ID:               id,
			DisplayName:      raw,
			InitialDamagePct: clampPct(parseFloat(field(row, damageCol))),
		})
	}
	return out, nil
}

// LoadScores reads the NGO region score CSV. Expected columns: NGO,
// district, match, urgency, fitness_score.
func LoadScores(path string) ([]model.ScoreEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scores: %w", err)
	}
	defer f.Close()
	return ReadScores(f)
}

// ReadScores parses score rows from CSV data.
func ReadScores(r io.Reader) ([]model.ScoreEntry, error) {
	rows, header, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}

	ngoCol := columnIndex(header, "ngo")
	districtCol := columnIndex(header, "district")
	matchCol := columnIndex(header, "match")
	urgencyCol := columnIndex(header, "urgency")
	fitnessCol := columnIndex(header, "fitness_score")
	if ngoCol < 0 || districtCol < 0 {
		return nil, fmt.Errorf("read scores: need NGO and district columns, got header %v", header)
	}

	var out []model.ScoreEntry
	skipped := 0
	for _, row := range rows {
		ngo := strings.TrimSpace(field(row, ngoCol))
		district := NormalizeDistrict(field(row, districtCol))
		if ngo == "" || district == "" {
			skipped++
			continue
		}
		out = append(out, model.ScoreEntry{
			NGOID:      ngo,
			DistrictID: district,
			Match:      clampPct(parseFloat(field(row, matchCol))),
			Urgency:    clampPct(parseFloat(field(row, urgencyCol))),
			Fitness:    clampPct(parseFloat(field(row, fitnessCol))),
		})
	}
	if skipped > 0 {
		slog.Warn("score rows missing NGO or district", "skipped", skipped)
	}
	return out, nil
}

// readTable reads a CSV into header + rows, tolerating ragged rows.
func readTable(r io.Reader) ([][]string, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("empty CSV")
	}
	header := make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return all[1:], header, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseFloat coerces malformed numerics to 0 per the input-malformation
// policy.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
