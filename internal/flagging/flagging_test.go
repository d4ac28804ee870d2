package flagging

import (
	"reflect"
	"testing"
	"time"

	"github.com/racefield/crowdflow/internal/models"
)

func testRulebook() *models.Rulebook {
	return &models.Rulebook{
		Version: "test",
		Bands: []models.LOSBand{
			{Label: "A", MinDensity: 0, MaxDensity: 0.72},
			{Label: "D", MinDensity: 0.72, MaxDensity: 1.08},
			{Label: "E", MinDensity: 1.08, MaxDensity: 2.17},
			{Label: "F", MinDensity: 2.17, MaxDensity: 10.0},
		},
		Flags: []models.FlagRule{
			{Severity: models.SeverityWatch, MinLOS: "D"},
			{Severity: models.SeverityAlert, MinLOS: "E"},
			{Severity: models.SeverityCritical, MinLOS: "F"},
		},
	}
}

func bin(segID string, minute int, density float64, los string) models.Bin {
	start := time.Date(2026, 4, 12, 9, minute, 0, 0, time.UTC)
	return models.Bin{
		SegmentID: segID, Start: start, End: start.Add(time.Minute),
		Counts: map[string]int{"10k": 1}, Total: 1,
		Density: density, Rate: density, LOS: los,
	}
}

// Three segments with six bins each: X1 crosses thresholds in three
// bins, Y1 in two, Z1 never. Exactly five flags on two segments.
func testBins() []models.Bin {
	return []models.Bin{
		bin("X1", 0, 0.5, "A"), bin("X1", 1, 0.8, "D"), bin("X1", 2, 1.2, "E"),
		bin("X1", 3, 2.5, "F"), bin("X1", 4, 0.6, "A"), bin("X1", 5, 0.3, "A"),
		bin("Y1", 0, 0.2, "A"), bin("Y1", 1, 0.75, "D"), bin("Y1", 2, 0.9, "D"),
		bin("Y1", 3, 0.5, "A"), bin("Y1", 4, 0.4, "A"), bin("Y1", 5, 0.1, "A"),
		bin("Z1", 0, 0.1, "A"), bin("Z1", 1, 0.2, "A"), bin("Z1", 2, 0.3, "A"),
		bin("Z1", 3, 0.2, "A"), bin("Z1", 4, 0.1, "A"), bin("Z1", 5, 0.05, "A"),
	}
}

func TestComputeBinFlags(t *testing.T) {
	rb := testRulebook()
	flags := ComputeBinFlags(testBins(), rb)
	if len(flags) != 5 {
		t.Fatalf("expected 5 flags, got %d", len(flags))
	}

	wantSeverity := map[string]models.Severity{
		"X1/1": models.SeverityWatch,
		"X1/2": models.SeverityAlert,
		"X1/3": models.SeverityCritical,
		"Y1/1": models.SeverityWatch,
		"Y1/2": models.SeverityWatch,
	}
	for _, f := range flags {
		key := f.SegmentID + "/" + f.Start.Format("4")
		want, ok := wantSeverity[key]
		if !ok {
			t.Errorf("unexpected flag on %s at %v", f.SegmentID, f.Start)
			continue
		}
		if f.Severity != want {
			t.Errorf("%s: severity %s, want %s", key, f.Severity, want)
		}
		if f.Reason == "" {
			t.Errorf("%s: flag carries no reason", key)
		}
	}
}

func TestComputeBinFlagsDeterministic(t *testing.T) {
	rb := testRulebook()
	first := ComputeBinFlags(testBins(), rb)
	second := ComputeBinFlags(testBins(), rb)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must produce identical flags")
	}
}

func TestSummarizeFlags(t *testing.T) {
	rb := testRulebook()
	flags := ComputeBinFlags(testBins(), rb)
	summaries := SummarizeFlags(flags, rb)

	if len(summaries) != 2 {
		t.Fatalf("expected 2 flagged segments, got %d", len(summaries))
	}
	if summaries[0].SegmentID != "X1" || summaries[1].SegmentID != "Y1" {
		t.Fatalf("summaries out of order: %s, %s", summaries[0].SegmentID, summaries[1].SegmentID)
	}

	x := summaries[0]
	if x.FlaggedBins != 3 {
		t.Errorf("X1 FlaggedBins = %d, want 3", x.FlaggedBins)
	}
	if x.WorstSeverity != models.SeverityCritical {
		t.Errorf("X1 WorstSeverity = %s, want CRITICAL", x.WorstSeverity)
	}
	if x.WorstLOS != "F" {
		t.Errorf("X1 WorstLOS = %s, want F", x.WorstLOS)
	}
	if x.PeakDensity != 2.5 {
		t.Errorf("X1 PeakDensity = %v, want 2.5", x.PeakDensity)
	}

	y := summaries[1]
	if y.FlaggedBins != 2 || y.WorstSeverity != models.SeverityWatch || y.WorstLOS != "D" {
		t.Errorf("Y1 summary wrong: %+v", y)
	}

	// Structural invariant: rollup counts account for every flag.
	total := 0
	for _, s := range summaries {
		total += s.FlaggedBins
	}
	if total != len(flags) {
		t.Errorf("rollup counts %d bins, %d flags exist", total, len(flags))
	}
	if err := VerifyConsistency(flags, summaries); err != nil {
		t.Errorf("VerifyConsistency: %v", err)
	}
}

func TestSummarizeFlagsEmpty(t *testing.T) {
	rb := testRulebook()
	if got := SummarizeFlags(nil, rb); len(got) != 0 {
		t.Errorf("expected no summaries for no flags, got %d", len(got))
	}
	if err := VerifyConsistency(nil, nil); err != nil {
		t.Errorf("VerifyConsistency on empty input: %v", err)
	}
}

func TestVerifyConsistencyDetectsDrift(t *testing.T) {
	rb := testRulebook()
	flags := ComputeBinFlags(testBins(), rb)
	summaries := SummarizeFlags(flags, rb)
	summaries[0].FlaggedBins++
	err := VerifyConsistency(flags, summaries)
	if err == nil {
		t.Fatal("expected consistency error")
	}
	if _, ok := err.(*models.ConsistencyError); !ok {
		t.Errorf("expected *models.ConsistencyError, got %T", err)
	}
}
