// Package flowpair detects temporal interactions between two event
// fields sharing a course segment: the convergence point where their
// occupancy windows first overlap, and overtaking/co-presence counts
// inside a bounded interaction zone around it.
//
// The zone is deliberately bounded (configurable length) instead of
// running from the convergence point to the segment end; the unbounded
// variant inflates overlap statistics to the point of near-100%
// "overtaking" on long segments.
package flowpair

import (
	"sort"
	"time"

	"github.com/racefield/crowdflow/internal/models"
	"github.com/racefield/crowdflow/internal/projector"
)

// Input carries everything one pair analysis needs. All tuning values
// come from the resolved AnalysisConfig; the analyzer holds no defaults.
type Input struct {
	Spec     models.FlowPairSpec
	Segment  *models.Segment
	RunnersA []models.Runner
	RunnersB []models.Runner
	StartA   time.Time // gun time of event A
	StartB   time.Time

	ZoneLengthKm float64
	MinOverlap   time.Duration
	ScanStepKm   float64
}

// Analyze computes the FlowPairResult for one configured pair. A pair
// whose segment lacks an active range for either event is a
// ConfigurationError. Fields that never overlap in time on the segment
// produce a nil convergence point and zero counts, which is a valid
// outcome, not an error.
func Analyze(in Input) (models.FlowPairResult, error) {
	res := models.FlowPairResult{
		SegmentID: in.Spec.SegmentID,
		EventA:    in.Spec.EventA,
		EventB:    in.Spec.EventB,
	}
	rangeA, okA := in.Segment.Ranges[in.Spec.EventA]
	if !okA {
		return res, &models.ConfigurationError{Field: "flow_pairs", Segment: in.Spec.SegmentID,
			Event: in.Spec.EventA, Reason: "event has no active range on paired segment"}
	}
	rangeB, okB := in.Segment.Ranges[in.Spec.EventB]
	if !okB {
		return res, &models.ConfigurationError{Field: "flow_pairs", Segment: in.Spec.SegmentID,
			Event: in.Spec.EventB, Reason: "event has no active range on paired segment"}
	}
	if in.ZoneLengthKm <= 0 || in.ScanStepKm <= 0 {
		return res, &models.ConfigurationError{Field: "flow_pairs", Segment: in.Spec.SegmentID,
			Reason: "zone length and scan step must be positive"}
	}

	res.Classification = classify(in.Segment, rangeA, rangeB, in.Spec.EventA == in.Spec.EventB)

	if len(in.RunnersA) == 0 || len(in.RunnersB) == 0 {
		return res, nil // nothing on one side: no convergence by definition
	}

	shared := minFloat(rangeA.ExtentKm(), rangeB.ExtentKm())
	cp, err := convergencePoint(in, rangeA, rangeB, shared)
	if err != nil {
		return res, err
	}
	if cp == nil {
		return res, nil
	}
	res.ConvergenceKm = cp

	zoneFrom := *cp
	zoneTo := minFloat(zoneFrom+in.ZoneLengthKm, shared)
	if zoneTo <= zoneFrom {
		// Convergence exactly at the segment's end leaves no zone to analyze.
		res.ZoneFromKm, res.ZoneToKm = zoneFrom, zoneFrom
		return res, nil
	}
	res.ZoneFromKm, res.ZoneToKm = zoneFrom, zoneTo

	winA, err := projector.SegmentWindows(in.RunnersA, rangeA.FromKm+zoneFrom, rangeA.FromKm+zoneTo, in.StartA)
	if err != nil {
		return res, err
	}
	winB, err := projector.SegmentWindows(in.RunnersB, rangeB.FromKm+zoneFrom, rangeB.FromKm+zoneTo, in.StartB)
	if err != nil {
		return res, err
	}

	if in.Spec.EventA == in.Spec.EventB {
		// Self-pair: overtaking is zero by definition; co-presence is the
		// peak number of runners simultaneously inside the zone.
		peak := peakOccupancy(winA)
		res.CoPresenceA = peak
		res.CoPresenceB = peak
		return res, nil
	}

	res.OvertakesAB = countOverlapping(winA, winB, in.MinOverlap)
	res.OvertakesBA = countOverlapping(winB, winA, in.MinOverlap)
	res.CoPresenceA = countOverlapping(winA, winB, 0)
	res.CoPresenceB = countOverlapping(winB, winA, 0)
	return res, nil
}

// convergencePoint scans the shared extent at ScanStepKm resolution and
// returns the first distance along the segment where the two fields'
// occupancy windows overlap in time, or nil when they never do.
func convergencePoint(in Input, rangeA, rangeB models.Range, shared float64) (*float64, error) {
	for d := 0.0; ; d += in.ScanStepKm {
		if d > shared {
			d = shared
		}
		aMin, aMax, err := arrivalSpan(in.RunnersA, rangeA.FromKm+d, in.StartA)
		if err != nil {
			return nil, err
		}
		bMin, bMax, err := arrivalSpan(in.RunnersB, rangeB.FromKm+d, in.StartB)
		if err != nil {
			return nil, err
		}
		if !aMin.After(bMax) && !bMin.After(aMax) {
			cp := d
			return &cp, nil
		}
		if d == shared {
			return nil, nil
		}
	}
}

// arrivalSpan returns the earliest and latest wall-clock arrival of the
// roster at the given cumulative distance.
func arrivalSpan(runners []models.Runner, km float64, start time.Time) (time.Time, time.Time, error) {
	var earliest, latest time.Time
	for i := range runners {
		elapsed, err := projector.TimeAt(&runners[i], km)
		if err != nil {
			if dre, ok := err.(*models.DataRangeError); ok {
				withRunner := *dre
				withRunner.Runner = i
				return earliest, latest, &withRunner
			}
			return earliest, latest, err
		}
		at := start.Add(elapsed)
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
		if latest.IsZero() || at.After(latest) {
			latest = at
		}
	}
	return earliest, latest, nil
}

// countOverlapping counts windows in a that share at least minOverlap of
// concurrent zone time with some window in b. With minOverlap zero this
// is closed-interval co-presence: touching intervals count. Sorting b by
// entry with a running maximum of exits keeps this O((n+m) log m).
//
// Concurrent time is min(exits) - max(entries), so a window shorter than
// minOverlap can never qualify no matter how the other window lies: a
// runner flashing through the zone inside a slower runner's window is
// not an overtake at that threshold. Short windows are dropped from both
// sides before the cross-term check.
func countOverlapping(a, b []projector.Window, minOverlap time.Duration) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sorted := make([]projector.Window, 0, len(b))
	for _, w := range b {
		if w.Exit.Sub(w.Entry) >= minOverlap {
			sorted = append(sorted, w)
		}
	}
	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Entry.Before(sorted[j].Entry) })
	prefixMaxExit := make([]time.Time, len(sorted))
	for i, w := range sorted {
		if i == 0 || w.Exit.After(prefixMaxExit[i-1]) {
			prefixMaxExit[i] = w.Exit
		} else {
			prefixMaxExit[i] = prefixMaxExit[i-1]
		}
	}

	count := 0
	for _, w := range a {
		if w.Exit.Sub(w.Entry) < minOverlap {
			continue
		}
		// For windows at least minOverlap long, y of b overlaps w by
		// >= minOverlap iff y.Entry <= w.Exit-minOverlap and
		// y.Exit >= w.Entry+minOverlap.
		latestEntry := w.Exit.Add(-minOverlap)
		n := sort.Search(len(sorted), func(i int) bool {
			return sorted[i].Entry.After(latestEntry)
		})
		if n == 0 {
			continue
		}
		if !prefixMaxExit[n-1].Before(w.Entry.Add(minOverlap)) {
			count++
		}
	}
	return count
}

// peakOccupancy returns the maximum number of windows simultaneously
// open, counting a window opening at the exact instant another closes
// as concurrent (closed intervals).
func peakOccupancy(windows []projector.Window) int {
	if len(windows) == 0 {
		return 0
	}
	entries := make([]time.Time, len(windows))
	exits := make([]time.Time, len(windows))
	for i, w := range windows {
		entries[i] = w.Entry
		exits[i] = w.Exit
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	sort.Slice(exits, func(i, j int) bool { return exits[i].Before(exits[j]) })

	cur, peak := 0, 0
	i, j := 0, 0
	for i < len(entries) {
		if !entries[i].After(exits[j]) {
			cur++
			i++
			if cur > peak {
				peak = cur
			}
		} else {
			cur--
			j++
		}
	}
	return peak
}

// classify labels the interaction for reporting context. The label never
// changes the counting algorithm. An explicit segment hint wins; without
// one, fields entering the segment at the same cumulative course
// distance are an overtake situation (one field stratifies the other)
// and fields arriving with different accumulated distances are a merge.
func classify(seg *models.Segment, rangeA, rangeB models.Range, selfPair bool) string {
	if seg.Hint != "" {
		return seg.Hint
	}
	if selfPair {
		return models.InteractionOvertake
	}
	const sameEntryKm = 0.001
	if absFloat(rangeA.FromKm-rangeB.FromKm) <= sameEntryKm {
		return models.InteractionOvertake
	}
	return models.InteractionMerge
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
