package models

import (
	"fmt"
	"time"
)

// Bin is the atomic computed unit: the occupancy of one segment during
// one fixed time window. Bins are produced once per run, are immutable
// afterwards, and are the sole input to the flagging engine.
type Bin struct {
	SegmentID string         `json:"segment_id"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Counts    map[string]int `json:"counts"` // occupants per event
	Total     int            `json:"total"`
	Density   float64        `json:"density"` // persons per square metre
	Rate      float64        `json:"rate"`    // persons per second (canonical)
	LOS       string         `json:"los"`
}

// Validate checks the bin's computed invariants.
func (b *Bin) Validate() error {
	if b.SegmentID == "" {
		return fmt.Errorf("bin segment id must not be empty")
	}
	if !b.End.After(b.Start) {
		return fmt.Errorf("bin %s: end %v must be after start %v", b.SegmentID, b.End, b.Start)
	}
	if b.Total <= 0 {
		return fmt.Errorf("bin %s @ %v: no bin may exist without occupants", b.SegmentID, b.Start)
	}
	sum := 0
	for _, c := range b.Counts {
		if c < 0 {
			return fmt.Errorf("bin %s @ %v: negative event count", b.SegmentID, b.Start)
		}
		sum += c
	}
	if sum != b.Total {
		return fmt.Errorf("bin %s @ %v: total %d does not match per-event sum %d",
			b.SegmentID, b.Start, b.Total, sum)
	}
	if b.Density < 0 || b.Rate < 0 {
		return fmt.Errorf("bin %s @ %v: density and rate must be non-negative", b.SegmentID, b.Start)
	}
	return nil
}

// FlowPairResult is the outcome of analyzing one (segment, event pair)
// interaction. ConvergenceKm is the distance along the segment where the
// two fields' occupancy windows first overlap in time, nil when they
// never do (in which case all counts are zero by definition).
type FlowPairResult struct {
	SegmentID      string   `json:"segment_id"`
	EventA         string   `json:"event_a"`
	EventB         string   `json:"event_b"`
	ConvergenceKm  *float64 `json:"convergence_km"` // distance along segment, nullable
	ZoneFromKm     float64  `json:"zone_from_km"`
	ZoneToKm       float64  `json:"zone_to_km"`
	OvertakesAB    int      `json:"overtakes_ab"` // runners of A passed by B
	OvertakesBA    int      `json:"overtakes_ba"`
	CoPresenceA    int      `json:"co_presence_a"`
	CoPresenceB    int      `json:"co_presence_b"`
	Classification string   `json:"classification"`
}
