// Package flagging is the single source of truth for crowding flags.
// ComputeBinFlags and SummarizeFlags are the only code paths allowed to
// decide whether a bin or segment is flagged and how severely; the
// report writer and the artifact exporter both consume their output and
// never recompute it. Keeping one implementation is the point: the
// predecessor system carried two and shipped divergent flag totals.
package flagging

import (
	"fmt"
	"sort"

	"github.com/racefield/crowdflow/internal/models"
)

// ComputeBinFlags applies the rulebook's severity thresholds to each bin
// and returns zero or one BinFlag per bin. Rules are evaluated from most
// severe to least; the first rule with a met criterion wins, and the
// reason names the criterion that triggered. Pure and deterministic:
// calling it twice on the same inputs yields identical output.
func ComputeBinFlags(bins []models.Bin, rb *models.Rulebook) []models.BinFlag {
	flags := make([]models.BinFlag, 0)
	for i := range bins {
		bin := &bins[i]
		severity, reason := matchSeverity(bin, rb)
		if severity == models.SeverityNone {
			continue
		}
		flags = append(flags, models.BinFlag{
			SegmentID: bin.SegmentID,
			Start:     bin.Start,
			End:       bin.End,
			Density:   bin.Density,
			Rate:      bin.Rate,
			LOS:       bin.LOS,
			Severity:  severity,
			Reason:    reason,
		})
	}
	return flags
}

// matchSeverity finds the most severe rule the bin satisfies. Rulebook
// validation guarantees rules are ordered by ascending severity, so the
// scan runs backwards.
func matchSeverity(bin *models.Bin, rb *models.Rulebook) (models.Severity, string) {
	for i := len(rb.Flags) - 1; i >= 0; i-- {
		rule := rb.Flags[i]
		if rule.MinLOS != "" && rb.LOSWorseOrEqual(bin.LOS, rule.MinLOS) {
			return rule.Severity, "los>=" + rule.MinLOS
		}
		if rule.MinDensity > 0 && bin.Density >= rule.MinDensity {
			return rule.Severity, fmt.Sprintf("density>=%.3f", rule.MinDensity)
		}
		if rule.MinRate > 0 && bin.Rate >= rule.MinRate {
			return rule.Severity, fmt.Sprintf("rate>=%.3f", rule.MinRate)
		}
	}
	return models.SeverityNone, ""
}

// SummarizeFlags rolls BinFlags up into one SegmentFlagSummary per
// flagged segment: flagged-bin count, worst severity, peak density and
// rate, worst LOS. Summaries come back sorted by segment ID so every
// consumer sees the same deterministic order. The rulebook orders LOS
// grades for the worst-of comparison.
func SummarizeFlags(flags []models.BinFlag, rb *models.Rulebook) []models.SegmentFlagSummary {
	bySegment := make(map[string]*models.SegmentFlagSummary)
	for _, f := range flags {
		s, ok := bySegment[f.SegmentID]
		if !ok {
			s = &models.SegmentFlagSummary{SegmentID: f.SegmentID}
			bySegment[f.SegmentID] = s
		}
		s.FlaggedBins++
		if f.Severity > s.WorstSeverity {
			s.WorstSeverity = f.Severity
		}
		if f.Density > s.PeakDensity {
			s.PeakDensity = f.Density
		}
		if f.Rate > s.PeakRate {
			s.PeakRate = f.Rate
		}
		if s.WorstLOS == "" || rb.LOSWorseOrEqual(f.LOS, s.WorstLOS) {
			s.WorstLOS = f.LOS
		}
	}

	summaries := make([]models.SegmentFlagSummary, 0, len(bySegment))
	for _, s := range bySegment {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SegmentID < summaries[j].SegmentID
	})
	return summaries
}

// VerifyConsistency checks the structural invariant that the per-segment
// flagged-bin counts sum to the number of flags. By construction this
// always holds; a violation means the flagging engine itself is broken
// and the run must abort.
func VerifyConsistency(flags []models.BinFlag, summaries []models.SegmentFlagSummary) error {
	total := 0
	for _, s := range summaries {
		total += s.FlaggedBins
	}
	if total != len(flags) {
		return &models.ConsistencyError{
			Reason: fmt.Sprintf("segment rollups count %d flagged bins but %d flags were computed", total, len(flags)),
		}
	}
	return nil
}
