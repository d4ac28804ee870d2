package binning

import (
	"fmt"
	"time"

	"github.com/racefield/crowdflow/internal/models"
)

// Densify fills Density, Rate, and LOS on each bin of one segment.
// Density is persons per square metre over the segment's physical area;
// Rate is persons per second over the bin window, the single canonical
// rate unit at every boundary of the engine. A zero or unknown width or
// extent is a DataRangeError: the calculator never emits NaN or Inf.
func Densify(bins []models.Bin, seg *models.Segment, binWindow time.Duration, rb *models.Rulebook) error {
	if seg.WidthM <= 0 {
		return &models.DataRangeError{Segment: seg.ID, Runner: -1,
			Reason: fmt.Sprintf("segment width must be positive, got %.2f m", seg.WidthM)}
	}
	extentM := seg.ExtentKm() * 1000
	if extentM <= 0 {
		return &models.DataRangeError{Segment: seg.ID, Runner: -1,
			Reason: "segment physical extent must be positive"}
	}
	if binWindow <= 0 {
		return &models.DataRangeError{Segment: seg.ID, Runner: -1,
			Reason: "bin window must be positive"}
	}
	areaM2 := seg.WidthM * extentM
	windowSec := binWindow.Seconds()
	for i := range bins {
		bins[i].Density = float64(bins[i].Total) / areaM2
		bins[i].Rate = float64(bins[i].Total) / windowSec
		bins[i].LOS = ClassifyLOS(bins[i].Density, rb)
	}
	return nil
}

// ClassifyLOS maps a density to a Level-of-Service grade by scanning the
// rulebook's ordered bands and picking the first whose [min, max) range
// contains the value; the lower bound is inclusive. Densities above all
// defined bands classify as the worst band. Pure and deterministic:
// only (density, rulebook) participate.
func ClassifyLOS(density float64, rb *models.Rulebook) string {
	for _, b := range rb.Bands {
		if density >= b.MinDensity && density < b.MaxDensity {
			return b.Label
		}
	}
	return rb.WorstBand()
}

// RatePerMetreMinute converts the canonical persons/second rate into the
// persons per metre of course width per minute figure used by some
// reports. Display-only: nothing downstream may treat this as a source
// of truth.
func RatePerMetreMinute(ratePerSecond, widthM float64) float64 {
	if widthM <= 0 {
		return 0
	}
	return ratePerSecond * 60 / widthM
}

// PersonsPerSecond inverts RatePerMetreMinute; together they round-trip
// display figures back to the canonical unit.
func PersonsPerSecond(ratePerMetreMinute, widthM float64) float64 {
	return ratePerMetreMinute * widthM / 60
}
