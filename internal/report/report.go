// Package report renders run results for humans (text report) and
// machines (JSON artifact). Both renderers serialize the flagging
// engine's output as-is; neither computes a severity, a count, or a
// threshold comparison of its own.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/binning"
	"github.com/racefield/crowdflow/internal/models"
)

const timeLayout = "15:04:05"

// Write renders the human-readable run report.
func Write(w io.Writer, res *analysis.Results, segments []models.Segment) error {
	fmt.Fprintf(w, "CROWDFLOW ANALYSIS REPORT\n")
	fmt.Fprintf(w, "%s\n", strings.Repeat("=", 72))
	fmt.Fprintf(w, "Run:      %s\n", res.RunID)
	fmt.Fprintf(w, "Rulebook: %s (%s)\n", res.RulebookVersion, shortHash(res.RulebookHash))
	fmt.Fprintf(w, "Created:  %s\n\n", res.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	writeFlagSection(w, res)
	writeFlowSection(w, res)
	writeBinSection(w, res, segments)
	return nil
}

// writeFlagSection prints the segment flag summaries exactly as the
// flagging engine produced them.
func writeFlagSection(w io.Writer, res *analysis.Results) {
	fmt.Fprintf(w, "FLAGGED SEGMENTS (%d flagged bins total)\n", len(res.Flags))
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 72))
	if len(res.Summaries) == 0 {
		fmt.Fprintf(w, "  none\n\n")
		return
	}
	fmt.Fprintf(w, "  %-12s %6s %10s %12s %10s %5s\n",
		"segment", "bins", "worst", "peak p/m2", "peak p/s", "LOS")
	for _, s := range res.Summaries {
		fmt.Fprintf(w, "  %-12s %6d %10s %12.3f %10.3f %5s\n",
			s.SegmentID, s.FlaggedBins, s.WorstSeverity, s.PeakDensity, s.PeakRate, s.WorstLOS)
	}
	fmt.Fprintln(w)
}

func writeFlowSection(w io.Writer, res *analysis.Results) {
	fmt.Fprintf(w, "FLOW PAIR INTERACTIONS (%d pairs)\n", len(res.FlowPairs))
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 72))
	for _, p := range res.FlowPairs {
		fmt.Fprintf(w, "  %s: %s vs %s [%s]\n", p.SegmentID, p.EventA, p.EventB, p.Classification)
		if p.ConvergenceKm == nil {
			fmt.Fprintf(w, "    no temporal convergence on this segment\n")
			continue
		}
		fmt.Fprintf(w, "    convergence at %.2f km, zone %.2f-%.2f km\n",
			*p.ConvergenceKm, p.ZoneFromKm, p.ZoneToKm)
		fmt.Fprintf(w, "    overtakes %s->%s: %d, %s->%s: %d; co-presence: %d / %d\n",
			p.EventB, p.EventA, p.OvertakesAB, p.EventA, p.EventB, p.OvertakesBA,
			p.CoPresenceA, p.CoPresenceB)
	}
	fmt.Fprintln(w)
}

// writeBinSection prints, per segment, the worst bin and the display
// rate derived from the canonical persons/second figure.
func writeBinSection(w io.Writer, res *analysis.Results, segments []models.Segment) {
	fmt.Fprintf(w, "SEGMENT OCCUPANCY (%d bins)\n", len(res.Bins))
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 72))
	widths := make(map[string]float64, len(segments))
	for i := range segments {
		widths[segments[i].ID] = segments[i].WidthM
	}
	type peak struct {
		bins int
		bin  models.Bin
	}
	peaks := make(map[string]*peak)
	var order []string
	for _, b := range res.Bins {
		p, ok := peaks[b.SegmentID]
		if !ok {
			p = &peak{}
			peaks[b.SegmentID] = p
			order = append(order, b.SegmentID)
		}
		p.bins++
		if b.Density > p.bin.Density || p.bins == 1 {
			p.bin = b
		}
	}
	for _, id := range order {
		p := peaks[id]
		display := binning.RatePerMetreMinute(p.bin.Rate, widths[id])
		fmt.Fprintf(w, "  %-12s %4d bins, peak %s-%s: %d runners, %.3f p/m2, LOS %s (%.1f p/m/min)\n",
			id, p.bins,
			p.bin.Start.Format(timeLayout), p.bin.End.Format(timeLayout),
			p.bin.Total, p.bin.Density, p.bin.LOS, display)
	}
	fmt.Fprintln(w)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
