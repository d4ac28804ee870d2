package binning

import (
	"errors"
	"testing"
	"time"

	"github.com/racefield/crowdflow/internal/models"
	"github.com/racefield/crowdflow/internal/projector"
)

var midnight = time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC)

func at(hhmmss string) time.Time {
	t, err := time.Parse("15:04:05", hhmmss)
	if err != nil {
		panic(err)
	}
	return midnight.Add(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second)
}

func testSegment() *models.Segment {
	return &models.Segment{
		ID: "s1", WidthM: 6,
		Ranges: map[string]models.Range{
			"a": {FromKm: 0, ToKm: 1},
			"b": {FromKm: 0, ToKm: 1},
		},
	}
}

// Two events share a 1 km segment: A occupies it 07:00-07:10, B
// 07:05-07:15, with 2-minute bins. Bins must span 07:00-07:16 and both
// fields must co-occupy only the windows inside [07:05, 07:10].
func TestAccumulateTwoEventOverlap(t *testing.T) {
	windows := map[string][]projector.Window{
		"a": {{Entry: at("07:00:00"), Exit: at("07:10:00")}},
		"b": {{Entry: at("07:05:00"), Exit: at("07:15:00")}},
	}
	bins, err := Accumulate(testSegment(), windows, 2*time.Minute, midnight)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if len(bins) != 8 {
		t.Fatalf("expected 8 bins, got %d", len(bins))
	}
	if !bins[0].Start.Equal(at("07:00:00")) {
		t.Errorf("first bin starts %v, want 07:00", bins[0].Start)
	}
	if !bins[7].End.Equal(at("07:16:00")) {
		t.Errorf("last bin ends %v, want 07:16", bins[7].End)
	}

	for _, bin := range bins {
		both := bin.Counts["a"] > 0 && bin.Counts["b"] > 0
		inOverlap := !bin.Start.Before(at("07:04:00")) && bin.Start.Before(at("07:10:00"))
		if both != inOverlap {
			t.Errorf("bin %v: co-presence=%v, want %v", bin.Start, both, inOverlap)
		}
	}
}

// A runner leaving exactly on a bin boundary belongs to the earlier bin
// only; a runner entering exactly when a bin opens counts in it.
func TestAccumulateBoundaryRule(t *testing.T) {
	windows := map[string][]projector.Window{
		"a": {
			{Entry: at("07:00:00"), Exit: at("07:02:00")}, // exits on boundary
			{Entry: at("07:02:00"), Exit: at("07:03:00")}, // enters on boundary
		},
	}
	bins, err := Accumulate(testSegment(), windows, 2*time.Minute, midnight)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if len(bins) != 2 {
		t.Fatalf("expected 2 bins, got %d", len(bins))
	}
	if bins[0].Counts["a"] != 1 || bins[1].Counts["a"] != 1 {
		t.Errorf("boundary runner double-counted: %v / %v", bins[0].Counts, bins[1].Counts)
	}
}

func TestAccumulateNoOccupancyNoBins(t *testing.T) {
	bins, err := Accumulate(testSegment(), map[string][]projector.Window{}, time.Minute, midnight)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if len(bins) != 0 {
		t.Errorf("expected no bins for empty segment, got %d", len(bins))
	}
}

// A gap between two waves must not produce empty bins in between.
func TestAccumulateGapBetweenWaves(t *testing.T) {
	windows := map[string][]projector.Window{
		"a": {
			{Entry: at("07:00:00"), Exit: at("07:01:00")},
			{Entry: at("07:10:00"), Exit: at("07:11:00")},
		},
	}
	bins, err := Accumulate(testSegment(), windows, time.Minute, midnight)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	for _, bin := range bins {
		if bin.Total == 0 {
			t.Errorf("bin %v has zero occupants", bin.Start)
		}
	}
	if len(bins) != 2 {
		t.Errorf("expected 2 occupied bins, got %d", len(bins))
	}
}

func TestAccumulateInvalidRangeFailsFast(t *testing.T) {
	seg := &models.Segment{
		ID: "s1", WidthM: 6,
		Ranges: map[string]models.Range{"a": {FromKm: 2, ToKm: 1}},
	}
	windows := map[string][]projector.Window{
		"a": {{Entry: at("07:00:00"), Exit: at("07:01:00")}},
	}
	_, err := Accumulate(seg, windows, time.Minute, midnight)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Segment != "s1" || cfgErr.Event != "a" {
		t.Errorf("error lacks context: %+v", cfgErr)
	}
}

func TestAccumulateAlignment(t *testing.T) {
	// Entry at 07:00:30 with 1-minute bins: the first bin must open on
	// the minute, not at the entry instant.
	windows := map[string][]projector.Window{
		"a": {{Entry: at("07:00:30"), Exit: at("07:01:30")}},
	}
	bins, err := Accumulate(testSegment(), windows, time.Minute, midnight)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if len(bins) != 2 {
		t.Fatalf("expected 2 bins, got %d", len(bins))
	}
	if !bins[0].Start.Equal(at("07:00:00")) {
		t.Errorf("first bin starts %v, want aligned 07:00:00", bins[0].Start)
	}
}
