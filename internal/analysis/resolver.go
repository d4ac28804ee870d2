// Package analysis resolves analysis requests into immutable run
// configurations and orchestrates the computation of one run: projection,
// binning, flow-pair analysis, and flagging.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/racefield/crowdflow/internal/models"
)

// Request describes one analysis run as submitted by the caller: the
// events to analyze with their start times, plus the file references the
// loader used to produce the tables. Nothing here is defaulted
// implicitly; gaps surface as ConfigurationError.
type Request struct {
	Date     string `mapstructure:"date"`     // YYYY-MM-DD
	Timezone string `mapstructure:"timezone"` // IANA name, e.g. Europe/Amsterdam

	SegmentsFile  string `mapstructure:"segments_file"`
	FlowPairsFile string `mapstructure:"flow_pairs_file"`
	LocationsFile string `mapstructure:"locations_file"`
	RulebookFile  string `mapstructure:"rulebook_file"`

	Events []EventRequest `mapstructure:"events"`
}

// EventRequest is one event entry of a Request.
type EventRequest struct {
	Name           string `mapstructure:"name"`
	Day            string `mapstructure:"day"`
	StartOffsetMin int    `mapstructure:"start_offset_min"`
	DurationMin    int    `mapstructure:"duration_min"`
	PaceFile       string `mapstructure:"pace_file"`
}

// Tables holds the already-loaded, parsed input tables. Loading and
// parsing belong to the loader; a load failure is a ConfigurationError
// raised there, before Resolve runs.
type Tables struct {
	Segments  []models.Segment
	FlowPairs []models.FlowPairSpec
	Locations []models.LocationRow
	Rosters   map[string][]models.Runner // keyed by normalized event name
}

// Defaults carries the run tuning parameters from the application
// configuration. They are passed explicitly: the resolver is the only
// place they enter the run, and the resulting AnalysisConfig is the only
// place any component reads them from.
type Defaults struct {
	BinWindow    time.Duration
	ZoneLengthKm float64
	MinOverlap   time.Duration
	ScanStepKm   float64
	Workers      int
}

// Resolve validates the request against the loaded tables and produces
// the immutable AnalysisConfig for one run. Validation is fail-fast in a
// fixed order, returning the first violation: structural request
// validity, then per-event segment coverage, then flow-pair coverage,
// then location coverage. Missing pairs are never auto-generated.
func Resolve(req *Request, tables *Tables, rb *models.Rulebook, defs Defaults) (*models.AnalysisConfig, error) {
	midnight, err := referenceMidnight(req)
	if err != nil {
		return nil, err
	}
	events, err := resolveEvents(req)
	if err != nil {
		return nil, err
	}
	if rb == nil {
		return nil, &models.ConfigurationError{Field: "rulebook", Reason: "rulebook is required"}
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}

	for i := range tables.Segments {
		if err := tables.Segments[i].Validate(); err != nil {
			return nil, err
		}
	}
	for i := range tables.FlowPairs {
		if err := tables.FlowPairs[i].Validate(); err != nil {
			return nil, err
		}
	}

	// Every event must appear in the segments table with valid ranges.
	for _, e := range events {
		if !eventHasSegment(e.Name, tables.Segments) {
			return nil, &models.ConfigurationError{Field: "segments", Event: e.Name,
				Reason: "event has no active range in any segment"}
		}
	}
	// Every event must be part of at least one flow pair (self-pairs count).
	for _, e := range events {
		if !eventHasPair(e.Name, tables.FlowPairs) {
			return nil, &models.ConfigurationError{Field: "flow_pairs", Event: e.Name,
				Reason: "event appears in no flow pair; add a pair (a self-pair is valid)"}
		}
	}
	// Every event needs at least one checkpoint location.
	for _, e := range events {
		if !eventHasLocation(e.Name, tables.Locations) {
			return nil, &models.ConfigurationError{Field: "locations", Event: e.Name,
				Reason: "event has no associated location"}
		}
	}
	// Every event needs a loaded, non-empty roster.
	for _, e := range events {
		roster, ok := tables.Rosters[e.Name]
		if !ok || len(roster) == 0 {
			return nil, &models.ConfigurationError{Field: "pace_table", Event: e.Name,
				Reason: "event has no loaded pace table rows"}
		}
	}
	// Every flow pair must reference requested events and a known segment.
	for _, p := range tables.FlowPairs {
		if findSegment(p.SegmentID, tables.Segments) == nil {
			return nil, &models.ConfigurationError{Field: "flow_pairs", Segment: p.SegmentID,
				Reason: "flow pair references unknown segment"}
		}
	}

	if defs.BinWindow <= 0 || defs.ZoneLengthKm <= 0 || defs.ScanStepKm <= 0 || defs.Workers < 1 || defs.MinOverlap < 0 {
		return nil, &models.ConfigurationError{Field: "analysis",
			Reason: "bin window, zone length, scan step must be positive; workers >= 1; min overlap >= 0"}
	}

	cfg := &models.AnalysisConfig{
		RunID:        uuid.New().String(),
		Midnight:     midnight,
		Events:       events,
		Segments:     tables.Segments,
		FlowPairs:    tables.FlowPairs,
		Rulebook:     rb,
		BinWindow:    defs.BinWindow,
		ZoneLengthKm: defs.ZoneLengthKm,
		MinOverlap:   defs.MinOverlap,
		ScanStepKm:   defs.ScanStepKm,
		Workers:      defs.Workers,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func referenceMidnight(req *Request) (time.Time, error) {
	if req.Date == "" {
		return time.Time{}, &models.ConfigurationError{Field: "date", Reason: "run date is required"}
	}
	if req.Timezone == "" {
		return time.Time{}, &models.ConfigurationError{Field: "timezone", Reason: "timezone is required"}
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return time.Time{}, &models.ConfigurationError{Field: "timezone",
			Reason: fmt.Sprintf("unknown timezone %q", req.Timezone)}
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, loc)
	if err != nil {
		return time.Time{}, &models.ConfigurationError{Field: "date",
			Reason: fmt.Sprintf("date %q is not YYYY-MM-DD", req.Date)}
	}
	return day, nil
}

func resolveEvents(req *Request) ([]models.Event, error) {
	if len(req.Events) == 0 {
		return nil, &models.ConfigurationError{Field: "events", Reason: "at least one event is required"}
	}
	seen := make(map[string]bool, len(req.Events))
	events := make([]models.Event, 0, len(req.Events))
	for _, er := range req.Events {
		name := models.NormalizeEventName(er.Name)
		if name == "" {
			return nil, &models.ConfigurationError{Field: "events", Reason: "event name must not be empty"}
		}
		if seen[name] {
			return nil, &models.ConfigurationError{Field: "events", Event: name,
				Reason: "duplicate event name"}
		}
		seen[name] = true
		e := models.Event{
			Name:           name,
			Day:            er.Day,
			StartOffsetMin: er.StartOffsetMin,
			DurationMin:    er.DurationMin,
			PaceRef:        er.PaceFile,
		}
		if err := e.Validate(); err != nil {
			return nil, &models.ConfigurationError{Field: "events", Event: name, Reason: err.Error()}
		}
		events = append(events, e)
	}
	return events, nil
}

func eventHasSegment(event string, segments []models.Segment) bool {
	for i := range segments {
		if segments[i].ActiveFor(event) {
			return true
		}
	}
	return false
}

func eventHasPair(event string, pairs []models.FlowPairSpec) bool {
	for _, p := range pairs {
		if p.EventA == event || p.EventB == event {
			return true
		}
	}
	return false
}

func eventHasLocation(event string, locations []models.LocationRow) bool {
	for _, l := range locations {
		if l.Event == event {
			return true
		}
	}
	return false
}

func findSegment(id string, segments []models.Segment) *models.Segment {
	for i := range segments {
		if segments[i].ID == id {
			return &segments[i]
		}
	}
	return nil
}
