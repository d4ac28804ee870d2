package models

import (
	"fmt"
	"math"
)

// Interaction classifications for segments shared by more than one field.
const (
	InteractionOvertake = "overtake"
	InteractionMerge    = "merge"
	InteractionDiverge  = "diverge"
)

// Range is an event's active distance window on a segment, expressed in
// that event's own cumulative course kilometres.
type Range struct {
	FromKm float64 `json:"from_km"`
	ToKm   float64 `json:"to_km"`
}

// ExtentKm returns the physical length covered by the range.
func (r Range) ExtentKm() float64 {
	return r.ToKm - r.FromKm
}

// Segment is a stretch of physical course. Each event that uses it maps
// the segment into its own cumulative distance via Ranges; events absent
// from Ranges do not run here.
type Segment struct {
	ID        string           `json:"id"`
	WidthM    float64          `json:"width_m"`
	Direction string           `json:"direction,omitempty"`
	Hint      string           `json:"hint,omitempty"` // optional interaction-type hint
	Ranges    map[string]Range `json:"ranges"`         // keyed by normalized event name
}

// extentTolerance is the maximum relative disagreement allowed between
// per-event extents of the same physical segment. Course measurements
// differ slightly per event; beyond this the input is considered broken.
const extentTolerance = 0.10

// Validate checks structural validity of the segment for the given
// events. Events not present in Ranges are simply inactive here.
func (s *Segment) Validate() error {
	if s.ID == "" {
		return &ConfigurationError{Field: "segments", Reason: "segment id must not be empty"}
	}
	if s.WidthM <= 0 {
		return &ConfigurationError{Field: "segments", Segment: s.ID,
			Reason: fmt.Sprintf("width must be positive, got %.2f", s.WidthM)}
	}
	if len(s.Ranges) == 0 {
		return &ConfigurationError{Field: "segments", Segment: s.ID,
			Reason: "segment has no active event ranges"}
	}
	switch s.Hint {
	case "", InteractionOvertake, InteractionMerge, InteractionDiverge:
	default:
		return &ConfigurationError{Field: "segments", Segment: s.ID,
			Reason: fmt.Sprintf("unknown interaction hint %q", s.Hint)}
	}
	var minExt, maxExt float64
	first := true
	for event, r := range s.Ranges {
		if r.FromKm < 0 || r.ToKm <= r.FromKm {
			return &ConfigurationError{Field: "segments", Segment: s.ID, Event: event,
				Reason: fmt.Sprintf("invalid distance range [%.3f, %.3f]", r.FromKm, r.ToKm)}
		}
		ext := r.ExtentKm()
		if first {
			minExt, maxExt = ext, ext
			first = false
			continue
		}
		minExt = math.Min(minExt, ext)
		maxExt = math.Max(maxExt, ext)
	}
	if (maxExt-minExt)/maxExt > extentTolerance {
		return &ConfigurationError{Field: "segments", Segment: s.ID,
			Reason: fmt.Sprintf("per-event extents disagree beyond %.0f%%: %.3f vs %.3f km",
				extentTolerance*100, minExt, maxExt)}
	}
	return nil
}

// ExtentKm returns the physical segment length used as the density
// denominator: the largest per-event extent. Per-event measurements must
// already have passed Validate's agreement check.
func (s *Segment) ExtentKm() float64 {
	var ext float64
	for _, r := range s.Ranges {
		ext = math.Max(ext, r.ExtentKm())
	}
	return ext
}

// ActiveFor reports whether the segment is used by the named event.
func (s *Segment) ActiveFor(event string) bool {
	_, ok := s.Ranges[event]
	return ok
}

// FlowPairSpec names one (segment, event pair) interaction to analyze.
// EventA == EventB is a valid self-pair representing pure congestion.
type FlowPairSpec struct {
	SegmentID string `json:"segment_id"`
	EventA    string `json:"event_a"`
	EventB    string `json:"event_b"`
}

// Validate checks structural validity of the pair spec.
func (p *FlowPairSpec) Validate() error {
	if p.SegmentID == "" {
		return &ConfigurationError{Field: "flow_pairs", Reason: "segment id must not be empty"}
	}
	if p.EventA == "" || p.EventB == "" {
		return &ConfigurationError{Field: "flow_pairs", Segment: p.SegmentID,
			Reason: "both pair events must be named"}
	}
	return nil
}
