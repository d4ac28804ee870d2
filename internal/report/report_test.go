package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/models"
)

func testResults() *analysis.Results {
	start := time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)
	cp := 0.5
	return &analysis.Results{
		RunID:           "run-abc",
		GeneratedAt:     start,
		RulebookVersion: "2024.1",
		RulebookHash:    "0123456789abcdef0123456789abcdef",
		Bins: []models.Bin{
			{SegmentID: "s1", Start: start, End: start.Add(time.Minute),
				Counts: map[string]int{"10k": 12}, Total: 12, Density: 0.8, Rate: 0.2, LOS: "D"},
			{SegmentID: "s1", Start: start.Add(time.Minute), End: start.Add(2 * time.Minute),
				Counts: map[string]int{"10k": 4}, Total: 4, Density: 0.26, Rate: 0.066, LOS: "A"},
		},
		FlowPairs: []models.FlowPairResult{
			{SegmentID: "s1", EventA: "10k", EventB: "half", ConvergenceKm: &cp,
				ZoneFromKm: 0.5, ZoneToKm: 0.9, OvertakesAB: 3, OvertakesBA: 1,
				CoPresenceA: 5, CoPresenceB: 4, Classification: models.InteractionMerge},
			{SegmentID: "s2", EventA: "10k", EventB: "half", Classification: models.InteractionMerge},
		},
		Flags: []models.BinFlag{
			{SegmentID: "s1", Start: start, End: start.Add(time.Minute),
				Density: 0.8, Rate: 0.2, LOS: "D", Severity: models.SeverityWatch, Reason: "los>=D"},
		},
		Summaries: []models.SegmentFlagSummary{
			{SegmentID: "s1", FlaggedBins: 1, WorstSeverity: models.SeverityWatch,
				PeakDensity: 0.8, PeakRate: 0.2, WorstLOS: "D"},
		},
	}
}

func testSegments() []models.Segment {
	return []models.Segment{
		{ID: "s1", WidthM: 6, Ranges: map[string]models.Range{"10k": {FromKm: 0, ToKm: 1}}},
		{ID: "s2", WidthM: 4, Ranges: map[string]models.Range{"10k": {FromKm: 1, ToKm: 2}}},
	}
}

func TestWrite(t *testing.T) {
	var buf strings.Builder
	if err := Write(&buf, testResults(), testSegments()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"run-abc",
		"2024.1",
		"1 flagged bins total",
		"WATCH",
		"convergence at 0.50 km",
		"zone 0.50-0.90 km",
		"no temporal convergence",
		"LOS D",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	// The full hash never prints; the short form does.
	if strings.Contains(out, "0123456789abcdef0123456789abcdef") {
		t.Error("report should truncate the rulebook hash")
	}
	if !strings.Contains(out, "0123456789ab") {
		t.Error("report missing short rulebook hash")
	}
}

// The report's flag section and the artifact's flag list must agree
// because both carry the flagging engine's output untouched.
func TestReportArtifactParity(t *testing.T) {
	res := testResults()

	var buf strings.Builder
	if err := Write(&buf, res, testSegments()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	art := BuildArtifact(res)

	if len(art.Flags) != len(res.Flags) || len(art.Summaries) != len(res.Summaries) {
		t.Fatal("artifact altered the flag set")
	}
	for i := range art.Summaries {
		if art.Summaries[i] != res.Summaries[i] {
			t.Errorf("summary %d diverged: %+v vs %+v", i, art.Summaries[i], res.Summaries[i])
		}
	}
	if art.RunID != res.RunID || art.RulebookHash != res.RulebookHash {
		t.Error("artifact provenance diverged")
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	res := testResults()
	path, err := Export(dir, res)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Base(path) != "run-abc.json" {
		t.Errorf("artifact named %s, want run-abc.json", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if art.RunID != "run-abc" || len(art.Flags) != 1 || len(art.Bins) != 2 {
		t.Errorf("artifact = %+v", art)
	}
	if art.Summaries[0].WorstSeverity != models.SeverityWatch {
		t.Errorf("severity did not survive the round trip: %v", art.Summaries[0].WorstSeverity)
	}

	// RFC 3339 timestamps with explicit offsets.
	if !strings.Contains(string(data), "2026-04-12T09:00:00Z") {
		t.Error("artifact timestamps should be RFC 3339")
	}

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly the artifact in %s, found %d entries", dir, len(entries))
	}
}
