// Package loader reads the tabular and rulebook inputs of an analysis
// run from disk and hands the core validated in-memory structures. All
// parse failures are ConfigurationError: the engine itself never touches
// files.
//
// Tabular inputs are CSV. The segments table discovers events
// dynamically from its header columns (<event>_from_km/<event>_to_km
// pairs); nothing in the codebase enumerates event names.
package loader

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/models"
)

// LoadRequest reads an analysis request from a YAML file.
func LoadRequest(path string) (*analysis.Request, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &models.ConfigurationError{Field: "request",
			Reason: fmt.Sprintf("failed to read %s: %v", path, err)}
	}
	var req analysis.Request
	if err := v.Unmarshal(&req); err != nil {
		return nil, &models.ConfigurationError{Field: "request",
			Reason: fmt.Sprintf("failed to decode %s: %v", path, err)}
	}
	return &req, nil
}

// LoadTables loads every table the request references. File references
// must all be present; a missing reference fails before any file I/O.
func LoadTables(req *analysis.Request) (*analysis.Tables, error) {
	for field, path := range map[string]string{
		"segments_file":   req.SegmentsFile,
		"flow_pairs_file": req.FlowPairsFile,
		"locations_file":  req.LocationsFile,
	} {
		if path == "" {
			return nil, &models.ConfigurationError{Field: field, Reason: "file reference is required"}
		}
	}

	segments, err := LoadSegments(req.SegmentsFile)
	if err != nil {
		return nil, err
	}
	pairs, err := LoadFlowPairs(req.FlowPairsFile)
	if err != nil {
		return nil, err
	}
	locations, err := LoadLocations(req.LocationsFile)
	if err != nil {
		return nil, err
	}
	rosters := make(map[string][]models.Runner, len(req.Events))
	for _, er := range req.Events {
		name := models.NormalizeEventName(er.Name)
		if er.PaceFile == "" {
			return nil, &models.ConfigurationError{Field: "pace_file", Event: name,
				Reason: "file reference is required"}
		}
		roster, err := LoadPaces(er.PaceFile, name)
		if err != nil {
			return nil, err
		}
		rosters[name] = roster
	}
	return &analysis.Tables{
		Segments:  segments,
		FlowPairs: pairs,
		Locations: locations,
		Rosters:   rosters,
	}, nil
}

// LoadSegments parses the segment table. Expected header:
// segment_id,width_m,direction,hint followed by <event>_from_km and
// <event>_to_km column pairs for every event the course serves. Empty
// range cells mean the event does not use the segment.
func LoadSegments(path string) ([]models.Segment, error) {
	rows, err := readCSV(path, "segments")
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &models.ConfigurationError{Field: "segments",
			Reason: fmt.Sprintf("%s must have a header and at least one row", path)}
	}
	header := rows[0]
	if len(header) < 6 || header[0] != "segment_id" || header[1] != "width_m" || header[2] != "direction" || header[3] != "hint" {
		return nil, &models.ConfigurationError{Field: "segments",
			Reason: fmt.Sprintf("%s: header must start segment_id,width_m,direction,hint", path)}
	}

	// Discover events from the from/to column pairs.
	type rangeCols struct{ from, to int }
	eventCols := make(map[string]rangeCols)
	var eventOrder []string
	for i := 4; i < len(header); i++ {
		col := header[i]
		switch {
		case strings.HasSuffix(col, "_from_km"):
			event := models.NormalizeEventName(strings.TrimSuffix(col, "_from_km"))
			rc := eventCols[event]
			rc.from = i
			eventCols[event] = rc
			eventOrder = append(eventOrder, event)
		case strings.HasSuffix(col, "_to_km"):
			event := models.NormalizeEventName(strings.TrimSuffix(col, "_to_km"))
			rc := eventCols[event]
			rc.to = i
			eventCols[event] = rc
		default:
			return nil, &models.ConfigurationError{Field: "segments",
				Reason: fmt.Sprintf("%s: unexpected column %q", path, col)}
		}
	}
	for event, rc := range eventCols {
		if rc.from == 0 || rc.to == 0 {
			return nil, &models.ConfigurationError{Field: "segments", Event: event,
				Reason: "event needs both a _from_km and a _to_km column"}
		}
	}

	segments := make([]models.Segment, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, &models.ConfigurationError{Field: "segments",
				Reason: fmt.Sprintf("%s line %d: expected %d columns, got %d", path, line+2, len(header), len(row))}
		}
		width, err := parseFloat(row[1], path, line+2, "width_m")
		if err != nil {
			return nil, err
		}
		seg := models.Segment{
			ID:        strings.TrimSpace(row[0]),
			WidthM:    width,
			Direction: strings.TrimSpace(row[2]),
			Hint:      strings.TrimSpace(row[3]),
			Ranges:    make(map[string]models.Range),
		}
		for _, event := range eventOrder {
			rc := eventCols[event]
			fromCell := strings.TrimSpace(row[rc.from])
			toCell := strings.TrimSpace(row[rc.to])
			if fromCell == "" && toCell == "" {
				continue
			}
			if fromCell == "" || toCell == "" {
				return nil, &models.ConfigurationError{Field: "segments", Segment: seg.ID, Event: event,
					Reason: "both from_km and to_km must be set when either is"}
			}
			from, err := parseFloat(fromCell, path, line+2, event+"_from_km")
			if err != nil {
				return nil, err
			}
			to, err := parseFloat(toCell, path, line+2, event+"_to_km")
			if err != nil {
				return nil, err
			}
			seg.Ranges[event] = models.Range{FromKm: from, ToKm: to}
		}
		if err := seg.Validate(); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// LoadFlowPairs parses the flow-pair table: segment_id,event_a,event_b.
func LoadFlowPairs(path string) ([]models.FlowPairSpec, error) {
	rows, err := readCSV(path, "flow_pairs")
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 || len(rows[0]) != 3 || rows[0][0] != "segment_id" {
		return nil, &models.ConfigurationError{Field: "flow_pairs",
			Reason: fmt.Sprintf("%s: header must be segment_id,event_a,event_b", path)}
	}
	pairs := make([]models.FlowPairSpec, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if len(row) != 3 {
			return nil, &models.ConfigurationError{Field: "flow_pairs",
				Reason: fmt.Sprintf("%s line %d: expected 3 columns", path, line+2)}
		}
		p := models.FlowPairSpec{
			SegmentID: strings.TrimSpace(row[0]),
			EventA:    models.NormalizeEventName(row[1]),
			EventB:    models.NormalizeEventName(row[2]),
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// LoadLocations parses the location coverage table: location,event.
func LoadLocations(path string) ([]models.LocationRow, error) {
	rows, err := readCSV(path, "locations")
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 || len(rows[0]) != 2 || rows[0][0] != "location" {
		return nil, &models.ConfigurationError{Field: "locations",
			Reason: fmt.Sprintf("%s: header must be location,event", path)}
	}
	locations := make([]models.LocationRow, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if len(row) != 2 {
			return nil, &models.ConfigurationError{Field: "locations",
				Reason: fmt.Sprintf("%s line %d: expected 2 columns", path, line+2)}
		}
		l := models.LocationRow{
			Location: strings.TrimSpace(row[0]),
			Event:    models.NormalizeEventName(row[1]),
		}
		if l.Location == "" || l.Event == "" {
			return nil, &models.ConfigurationError{Field: "locations",
				Reason: fmt.Sprintf("%s line %d: location and event must not be empty", path, line+2)}
		}
		locations = append(locations, l)
	}
	return locations, nil
}

// LoadPaces parses one event's pace table: runner_id followed by one
// seconds-per-km column per kilometre of the course.
func LoadPaces(path, event string) ([]models.Runner, error) {
	rows, err := readCSV(path, "pace_table")
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 || len(rows[0]) < 2 || rows[0][0] != "runner_id" {
		return nil, &models.ConfigurationError{Field: "pace_table", Event: event,
			Reason: fmt.Sprintf("%s: header must be runner_id,km_1,...", path)}
	}
	kms := len(rows[0]) - 1
	runners := make([]models.Runner, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if len(row) != kms+1 {
			return nil, &models.ConfigurationError{Field: "pace_table", Event: event,
				Reason: fmt.Sprintf("%s line %d: expected %d split columns", path, line+2, kms)}
		}
		r := models.Runner{Event: event, SplitSec: make([]float64, kms)}
		for i := 0; i < kms; i++ {
			s, err := parseFloat(row[i+1], path, line+2, rows[0][i+1])
			if err != nil {
				return nil, err
			}
			r.SplitSec[i] = s
		}
		if err := r.Validate(); err != nil {
			return nil, &models.ConfigurationError{Field: "pace_table", Event: event,
				Reason: fmt.Sprintf("%s line %d: %v", path, line+2, err)}
		}
		runners = append(runners, r)
	}
	return runners, nil
}

// rulebookFile mirrors the YAML layout; severities arrive as labels and
// are converted after decoding.
type rulebookFile struct {
	Version string `mapstructure:"version"`
	Bands   []struct {
		Label      string  `mapstructure:"label"`
		MinDensity float64 `mapstructure:"min_density"`
		MaxDensity float64 `mapstructure:"max_density"`
	} `mapstructure:"bands"`
	Flags []struct {
		Severity   string  `mapstructure:"severity"`
		MinLOS     string  `mapstructure:"min_los"`
		MinDensity float64 `mapstructure:"min_density"`
		MinRate    float64 `mapstructure:"min_rate"`
	} `mapstructure:"flags"`
}

// LoadRulebook reads the LOS bands and flag thresholds from YAML and
// stamps the rulebook with the SHA-256 of the file contents, so every
// downstream consumer can detect a stale or mismatched rulebook.
func LoadRulebook(path string) (*models.Rulebook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "rulebook",
			Reason: fmt.Sprintf("failed to read %s: %v", path, err)}
	}
	sum := sha256.Sum256(raw)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &models.ConfigurationError{Field: "rulebook",
			Reason: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}
	var file rulebookFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, &models.ConfigurationError{Field: "rulebook",
			Reason: fmt.Sprintf("failed to decode %s: %v", path, err)}
	}

	rb := &models.Rulebook{
		Version: file.Version,
		Hash:    hex.EncodeToString(sum[:]),
	}
	for _, b := range file.Bands {
		rb.Bands = append(rb.Bands, models.LOSBand{
			Label:      b.Label,
			MinDensity: b.MinDensity,
			MaxDensity: b.MaxDensity,
		})
	}
	for i, f := range file.Flags {
		sev, err := models.ParseSeverity(f.Severity)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "rulebook",
				Reason: fmt.Sprintf("flag rule %d: %v", i, err)}
		}
		rb.Flags = append(rb.Flags, models.FlagRule{
			Severity:   sev,
			MinLOS:     f.MinLOS,
			MinDensity: f.MinDensity,
			MinRate:    f.MinRate,
		})
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return rb, nil
}

func readCSV(path, field string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.ConfigurationError{Field: field,
			Reason: fmt.Sprintf("failed to open %s: %v", path, err)}
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &models.ConfigurationError{Field: field,
			Reason: fmt.Sprintf("failed to parse %s: %v", path, err)}
	}
	return rows, nil
}

func parseFloat(cell, path string, line int, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, &models.ConfigurationError{Field: column,
			Reason: fmt.Sprintf("%s line %d: %q is not a number", path, line, cell)}
	}
	return v, nil
}
