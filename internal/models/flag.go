package models

import (
	"fmt"
	"time"
)

// Severity grades a flagged bin. The numeric order is the "worse than"
// order and must never be reordered: persisted runs rely on it.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWatch
	SeverityAlert
	SeverityCritical
)

var severityNames = [...]string{"NONE", "WATCH", "ALERT", "CRITICAL"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeverityCritical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity converts a severity label back to its value.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler so severities serialize
// as their labels in JSON artifacts.
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityNone || s > SeverityCritical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(severityNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// BinFlag marks one bin that crossed a rulebook threshold. BinFlags are
// produced only by the flagging engine; no other package may construct
// them from thresholds.
type BinFlag struct {
	SegmentID string    `json:"segment_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Density   float64   `json:"density"`
	Rate      float64   `json:"rate"`
	LOS       string    `json:"los"`
	Severity  Severity  `json:"severity"`
	Reason    string    `json:"reason"` // triggering threshold, e.g. "los>=E"
}

// SegmentFlagSummary is the per-segment rollup of BinFlags. This exact
// structure is what both the report and the artifact exporter serialize;
// neither may recompute any field of it.
type SegmentFlagSummary struct {
	SegmentID     string   `json:"segment_id"`
	FlaggedBins   int      `json:"flagged_bins"`
	WorstSeverity Severity `json:"worst_severity"`
	PeakDensity   float64  `json:"peak_density"`
	PeakRate      float64  `json:"peak_rate"`
	WorstLOS      string   `json:"worst_los"`
}
