package telegram

import (
	"strings"
	"testing"

	"github.com/racefield/crowdflow/internal/models"
)

func testSummaries() []models.SegmentFlagSummary {
	return []models.SegmentFlagSummary{
		{SegmentID: "bridge-1", FlaggedBins: 3, WorstSeverity: models.SeverityCritical,
			PeakDensity: 2.5, PeakRate: 0.9, WorstLOS: "F"},
		{SegmentID: "park-2", FlaggedBins: 1, WorstSeverity: models.SeverityWatch,
			PeakDensity: 0.8, PeakRate: 0.2, WorstLOS: "D"},
	}
}

func TestFormatFlagAlert(t *testing.T) {
	msg := formatFlagAlert("run-1", testSummaries(), models.SeverityAlert)
	if msg == "" {
		t.Fatal("expected a message for a CRITICAL segment")
	}
	if !strings.Contains(msg, "bridge\\-1") {
		t.Error("message should contain the escaped segment id")
	}
	if strings.Contains(msg, "park") {
		t.Error("WATCH segment must not appear at ALERT threshold")
	}
	if !strings.Contains(msg, "CRITICAL") {
		t.Error("message should name the severity")
	}
	if !strings.Contains(msg, "3 flagged bins") {
		t.Error("message should carry the flagged-bin count")
	}
}

func TestFormatFlagAlertThreshold(t *testing.T) {
	if msg := formatFlagAlert("run-1", testSummaries(), models.SeverityWatch); !strings.Contains(msg, "park\\-2") {
		t.Error("WATCH threshold should include the WATCH segment")
	}
	if msg := formatFlagAlert("run-1", nil, models.SeverityWatch); msg != "" {
		t.Errorf("no summaries should produce no message, got %q", msg)
	}
	below := []models.SegmentFlagSummary{
		{SegmentID: "s1", FlaggedBins: 1, WorstSeverity: models.SeverityWatch, WorstLOS: "D"},
	}
	if msg := formatFlagAlert("run-1", below, models.SeverityCritical); msg != "" {
		t.Errorf("summaries below threshold should produce no message, got %q", msg)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got := escapeMarkdownV2("seg-1.a (north)")
	want := "seg\\-1\\.a \\(north\\)"
	if got != want {
		t.Errorf("escapeMarkdownV2 = %q, want %q", got, want)
	}
}
