// Package projector converts per-kilometre pace tables into wall-clock
// positions: given a runner's splits and an event's gun time, it answers
// "when does this runner reach distance d". Queries outside the runner's
// course length are errors, never clamped values.
package projector

import (
	"math"
	"time"

	"github.com/racefield/crowdflow/internal/models"
)

// Window is one runner's entry and exit time at a segment.
type Window struct {
	Entry time.Time
	Exit  time.Time
}

// TimeAt returns the elapsed time from the gun for the runner to reach
// km along their course. Positions inside a kilometre interpolate
// linearly within that split. km outside [0, TotalKm] is a
// DataRangeError.
func TimeAt(r *models.Runner, km float64) (time.Duration, error) {
	total := r.TotalKm()
	if km < 0 || km > total {
		return 0, &models.DataRangeError{
			Event:    r.Event,
			Runner:   -1,
			Distance: km,
			Reason:   "queried distance outside runner's course length",
		}
	}
	if km == total {
		var sum float64
		for _, s := range r.SplitSec {
			sum += s
		}
		return secondsToDuration(sum), nil
	}
	idx := int(math.Floor(km))
	frac := km - float64(idx)
	var sum float64
	for _, s := range r.SplitSec[:idx] {
		sum += s
	}
	sum += frac * r.SplitSec[idx]
	return secondsToDuration(sum), nil
}

// SegmentWindows batch-computes each runner's entry and exit time for a
// segment active over [fromKm, toKm] in the event's cumulative distance,
// offset by the event's gun time. A runner whose pace table ends before
// toKm is a DataRangeError naming the runner; short tables indicate
// broken input, not a runner who skips the segment.
func SegmentWindows(runners []models.Runner, fromKm, toKm float64, start time.Time) ([]Window, error) {
	if fromKm < 0 || toKm <= fromKm {
		return nil, &models.DataRangeError{
			Runner:   -1,
			Distance: fromKm,
			Reason:   "segment range must satisfy 0 <= from < to",
		}
	}
	windows := make([]Window, len(runners))
	for i := range runners {
		r := &runners[i]
		entry, err := TimeAt(r, fromKm)
		if err != nil {
			return nil, rangeErrWithRunner(err, i)
		}
		exit, err := TimeAt(r, toKm)
		if err != nil {
			return nil, rangeErrWithRunner(err, i)
		}
		windows[i] = Window{Entry: start.Add(entry), Exit: start.Add(exit)}
	}
	return windows, nil
}

func rangeErrWithRunner(err error, runner int) error {
	if dre, ok := err.(*models.DataRangeError); ok {
		withRunner := *dre
		withRunner.Runner = runner
		return &withRunner
	}
	return err
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
