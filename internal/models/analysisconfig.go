package models

import (
	"fmt"
	"time"
)

// AnalysisConfig is the resolved, immutable snapshot of one run: the
// events under analysis, the course segmentation, the pairs to examine,
// the rulebook, and every tuning parameter the computation reads. It is
// created exactly once by the resolver and threaded through all
// components by explicit parameter passing; no component reads defaults
// from anywhere else.
type AnalysisConfig struct {
	RunID    string    `json:"run_id"`
	Midnight time.Time `json:"midnight"` // reference midnight in the course timezone

	Events    []Event        `json:"events"`
	Segments  []Segment      `json:"segments"`
	FlowPairs []FlowPairSpec `json:"flow_pairs"`
	Rulebook  *Rulebook      `json:"rulebook"`

	BinWindow    time.Duration `json:"bin_window"`
	ZoneLengthKm float64       `json:"zone_length_km"`
	MinOverlap   time.Duration `json:"min_overlap"`
	ScanStepKm   float64       `json:"scan_step_km"`
	Workers      int           `json:"workers"`
}

// EventByName returns the configured event with the given normalized
// name, or nil when the run does not include it.
func (c *AnalysisConfig) EventByName(name string) *Event {
	for i := range c.Events {
		if c.Events[i].Name == name {
			return &c.Events[i]
		}
	}
	return nil
}

// SegmentByID returns the configured segment, or nil when absent.
func (c *AnalysisConfig) SegmentByID(id string) *Segment {
	for i := range c.Segments {
		if c.Segments[i].ID == id {
			return &c.Segments[i]
		}
	}
	return nil
}

// Validate checks the resolved configuration as a whole. The resolver
// performs the fail-fast, first-violation-wins request validation; this
// is the final guard before computation.
func (c *AnalysisConfig) Validate() error {
	if c.RunID == "" {
		return &ConfigurationError{Field: "run_id", Reason: "run id must not be empty"}
	}
	if c.Midnight.IsZero() {
		return &ConfigurationError{Field: "midnight", Reason: "reference midnight must be set"}
	}
	if len(c.Events) == 0 {
		return &ConfigurationError{Field: "events", Reason: "at least one event is required"}
	}
	for i := range c.Events {
		if err := c.Events[i].Validate(); err != nil {
			return &ConfigurationError{Field: "events", Event: c.Events[i].Name, Reason: err.Error()}
		}
	}
	if len(c.Segments) == 0 {
		return &ConfigurationError{Field: "segments", Reason: "at least one segment is required"}
	}
	for i := range c.Segments {
		if err := c.Segments[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.FlowPairs {
		if err := c.FlowPairs[i].Validate(); err != nil {
			return err
		}
	}
	if c.Rulebook == nil {
		return &ConfigurationError{Field: "rulebook", Reason: "rulebook is required"}
	}
	if err := c.Rulebook.Validate(); err != nil {
		return err
	}
	if c.BinWindow <= 0 {
		return &ConfigurationError{Field: "bin_window", Reason: "bin window must be positive"}
	}
	if c.ZoneLengthKm <= 0 {
		return &ConfigurationError{Field: "zone_length_km", Reason: "zone length must be positive"}
	}
	if c.MinOverlap < 0 {
		return &ConfigurationError{Field: "min_overlap", Reason: "minimum overlap must not be negative"}
	}
	if c.ScanStepKm <= 0 {
		return &ConfigurationError{Field: "scan_step_km", Reason: "scan step must be positive"}
	}
	if c.Workers < 1 {
		return &ConfigurationError{Field: "workers", Reason: fmt.Sprintf("workers must be >= 1, got %d", c.Workers)}
	}
	return nil
}
