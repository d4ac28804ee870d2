// Package binning discretizes segment occupancy into fixed time windows
// and converts window occupancy into density, flow rate, and a
// Level-of-Service grade.
//
// Boundary rule, defined once and used everywhere: a runner's presence
// on a segment is the interval [entry, exit] and bins are [start, end).
// A runner occupies a bin when entry < binEnd && exit > binStart. The
// entry edge is inclusive (a runner exactly at from_km when a bin opens
// counts in that bin); the exit edge is exclusive (a runner leaving
// exactly on a bin boundary belongs to the earlier bin only), so no
// runner is double-counted across a boundary.
package binning

import (
	"sort"
	"time"

	"github.com/racefield/crowdflow/internal/models"
	"github.com/racefield/crowdflow/internal/projector"
)

// eventSweep holds one event's entry and exit times, independently
// sorted, with cursors that only move forward as bins advance.
type eventSweep struct {
	event   string
	entries []time.Time
	exits   []time.Time
	eIdx    int // entries[:eIdx] have entry < current bin end
	xIdx    int // exits[:xIdx] have exit <= current bin start
}

// Accumulate produces the occupancy bins for one segment. windowsByEvent
// carries each active event's projected entry/exit windows on this
// segment. Bins are binWindow wide, aligned to multiples of binWindow
// from midnight, and cover the union of occupied time; windows with zero
// total occupants yield no bin. An invalid active range is a
// ConfigurationError raised before any sweeping.
func Accumulate(seg *models.Segment, windowsByEvent map[string][]projector.Window, binWindow time.Duration, midnight time.Time) ([]models.Bin, error) {
	if binWindow <= 0 {
		return nil, &models.ConfigurationError{Field: "bin_window", Segment: seg.ID,
			Reason: "bin window must be positive"}
	}
	for event, r := range seg.Ranges {
		if r.FromKm < 0 || r.ToKm <= r.FromKm {
			return nil, &models.ConfigurationError{Field: "segments", Segment: seg.ID, Event: event,
				Reason: "active distance range must satisfy 0 <= from < to"}
		}
	}

	sweeps := make([]*eventSweep, 0, len(windowsByEvent))
	var minEntry, maxExit time.Time
	for _, event := range sortedKeys(windowsByEvent) {
		windows := windowsByEvent[event]
		if len(windows) == 0 {
			continue
		}
		sw := &eventSweep{
			event:   event,
			entries: make([]time.Time, len(windows)),
			exits:   make([]time.Time, len(windows)),
		}
		for i, w := range windows {
			sw.entries[i] = w.Entry
			sw.exits[i] = w.Exit
		}
		sort.Slice(sw.entries, func(i, j int) bool { return sw.entries[i].Before(sw.entries[j]) })
		sort.Slice(sw.exits, func(i, j int) bool { return sw.exits[i].Before(sw.exits[j]) })

		if minEntry.IsZero() || sw.entries[0].Before(minEntry) {
			minEntry = sw.entries[0]
		}
		if last := sw.exits[len(sw.exits)-1]; maxExit.IsZero() || last.After(maxExit) {
			maxExit = last
		}
		sweeps = append(sweeps, sw)
	}
	if len(sweeps) == 0 {
		return nil, nil
	}

	var bins []models.Bin
	k := minEntry.Sub(midnight) / binWindow
	if midnight.Add(k * binWindow).After(minEntry) {
		k-- // integer division truncates toward zero; step back for pre-midnight entries
	}
	for binStart := midnight.Add(k * binWindow); binStart.Before(maxExit); binStart = binStart.Add(binWindow) {
		binEnd := binStart.Add(binWindow)
		counts := make(map[string]int, len(sweeps))
		total := 0
		for _, sw := range sweeps {
			c := sw.countIn(binStart, binEnd)
			if c > 0 {
				counts[sw.event] = c
				total += c
			}
		}
		if total == 0 {
			continue
		}
		bins = append(bins, models.Bin{
			SegmentID: seg.ID,
			Start:     binStart,
			End:       binEnd,
			Counts:    counts,
			Total:     total,
		})
	}
	return bins, nil
}

// countIn returns the event's occupancy of [binStart, binEnd). Cursors
// advance monotonically, so a full accumulation is O(n log n) for the
// sort plus O(n + bins) for the sweep, never a per-bin rescan.
func (sw *eventSweep) countIn(binStart, binEnd time.Time) int {
	for sw.eIdx < len(sw.entries) && sw.entries[sw.eIdx].Before(binEnd) {
		sw.eIdx++
	}
	for sw.xIdx < len(sw.exits) && !sw.exits[sw.xIdx].After(binStart) {
		sw.xIdx++
	}
	return sw.eIdx - sw.xIdx
}

func sortedKeys(m map[string][]projector.Window) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
