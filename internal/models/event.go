// Package models defines the core domain entities for the crowdflow engine:
// events, segments, runners, occupancy bins, flow-pair results, flags, and
// the resolved analysis configuration. All models include built-in
// validation so invalid data is rejected before computation starts.
//
// Terminology:
//   - Event: one start field sharing the course, e.g. "10k" or "half".
//   - Segment: a stretch of course with a per-event active distance range.
//   - Bin: the atomic (segment × time window) unit of computed occupancy.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event represents one start field of the race day. Events are discovered
// from input data, never enumerated in code; everything that loops over
// events iterates the runtime list carried by AnalysisConfig.
type Event struct {
	Name           string `json:"name"` // unique, lower-cased
	Day            string `json:"day"`  // grouping tag, e.g. "saturday"
	StartOffsetMin int    `json:"start_offset_min"`
	DurationMin    int    `json:"duration_min"`
	PaceRef        string `json:"pace_ref"`
	CourseRef      string `json:"course_ref,omitempty"`
}

// NormalizeEventName lower-cases and trims an event name. All lookups by
// event name go through this so "Half" and "half" address the same field.
func NormalizeEventName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate checks that all event fields are valid.
func (e *Event) Validate() error {
	if e.Name == "" {
		return errors.New("event name must not be empty")
	}
	if e.Name != NormalizeEventName(e.Name) {
		return fmt.Errorf("event name %q must be normalized (lower-case, trimmed)", e.Name)
	}
	if e.StartOffsetMin < 0 || e.StartOffsetMin >= 24*60 {
		return fmt.Errorf("event %s: start offset %d out of range [0, 1440)", e.Name, e.StartOffsetMin)
	}
	if e.DurationMin <= 0 {
		return fmt.Errorf("event %s: duration must be positive", e.Name)
	}
	if e.PaceRef == "" {
		return fmt.Errorf("event %s: pace table reference must not be empty", e.Name)
	}
	return nil
}

// StartTime returns the wall-clock gun time for this event relative to
// the run's reference midnight.
func (e *Event) StartTime(midnight time.Time) time.Time {
	return midnight.Add(time.Duration(e.StartOffsetMin) * time.Minute)
}

// EndTime returns the wall-clock end of the event's active window.
func (e *Event) EndTime(midnight time.Time) time.Time {
	return e.StartTime(midnight).Add(time.Duration(e.DurationMin) * time.Minute)
}

// Runner holds one participant's pace table: seconds to cover each
// successive kilometre of their course. Runners carry no identity beyond
// the event they belong to; all downstream use is aggregate counting.
type Runner struct {
	Event    string
	SplitSec []float64 // SplitSec[i] = seconds for km i -> i+1
}

// TotalKm returns the runner's course length in kilometres.
func (r *Runner) TotalKm() float64 {
	return float64(len(r.SplitSec))
}

// Validate checks the pace table is usable.
func (r *Runner) Validate() error {
	if r.Event == "" {
		return errors.New("runner event must not be empty")
	}
	if len(r.SplitSec) == 0 {
		return fmt.Errorf("runner in event %s: pace table must not be empty", r.Event)
	}
	for i, s := range r.SplitSec {
		if s <= 0 {
			return fmt.Errorf("runner in event %s: split %d must be positive, got %.3f", r.Event, i+1, s)
		}
	}
	return nil
}

// LocationRow marks that a checkpoint location applies to an event.
// Used for coverage validation only.
type LocationRow struct {
	Location string
	Event    string
}
