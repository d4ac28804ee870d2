package analysis

import (
	"sort"
	"sync"
	"time"

	"github.com/racefield/crowdflow/internal/binning"
	"github.com/racefield/crowdflow/internal/flagging"
	"github.com/racefield/crowdflow/internal/flowpair"
	"github.com/racefield/crowdflow/internal/logger"
	"github.com/racefield/crowdflow/internal/models"
	"github.com/racefield/crowdflow/internal/projector"
)

// Results is everything one run produces, handed as-is to the report
// writer, the artifact exporter, and the run store. Flags and Summaries
// come from the flagging engine and nothing else; consumers serialize
// them without recomputation.
type Results struct {
	RunID           string                      `json:"run_id"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	RulebookVersion string                      `json:"rulebook_version"`
	RulebookHash    string                      `json:"rulebook_hash"`
	Bins            []models.Bin                `json:"bins"`
	FlowPairs       []models.FlowPairResult     `json:"flow_pairs"`
	Flags           []models.BinFlag            `json:"flags"`
	Summaries       []models.SegmentFlagSummary `json:"summaries"`
}

// WorstSeverity returns the most severe grade across all segments.
func (r *Results) WorstSeverity() models.Severity {
	worst := models.SeverityNone
	for _, s := range r.Summaries {
		if s.WorstSeverity > worst {
			worst = s.WorstSeverity
		}
	}
	return worst
}

// segmentOutput is one segment worker's result, merged in segment order.
type segmentOutput struct {
	index int
	bins  []models.Bin
	err   error
}

// Run executes one full analysis over the resolved configuration and
// the per-event rosters. Segments are independent, so binning fans out
// across cfg.Workers goroutines; results merge back in segment-ID order
// so output is deterministic regardless of scheduling. The first error
// aborts the run: partial results are never returned.
func Run(cfg *models.AnalysisConfig, rosters map[string][]models.Runner) (*Results, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	segments := make([]models.Segment, len(cfg.Segments))
	copy(segments, cfg.Segments)
	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })

	outputs := make([]segmentOutput, len(segments))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				bins, err := accumulateSegment(cfg, &segments[idx], rosters)
				outputs[idx] = segmentOutput{index: idx, bins: bins, err: err}
			}
		}()
	}
	for i := range segments {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var bins []models.Bin
	for _, out := range outputs {
		if out.err != nil {
			return nil, out.err
		}
		bins = append(bins, out.bins...)
	}
	for i := range bins {
		if err := bins[i].Validate(); err != nil {
			return nil, &models.ConsistencyError{Reason: err.Error()}
		}
	}
	logger.Debug("run %s: %d bins across %d segments", cfg.RunID, len(bins), len(segments))

	pairs, err := analyzePairs(cfg, rosters)
	if err != nil {
		return nil, err
	}

	flags := flagging.ComputeBinFlags(bins, cfg.Rulebook)
	summaries := flagging.SummarizeFlags(flags, cfg.Rulebook)
	if err := flagging.VerifyConsistency(flags, summaries); err != nil {
		return nil, err
	}
	logger.Info("run %s: %d bins, %d flags across %d segments", cfg.RunID, len(bins), len(flags), len(summaries))

	return &Results{
		RunID:           cfg.RunID,
		GeneratedAt:     time.Now(),
		RulebookVersion: cfg.Rulebook.Version,
		RulebookHash:    cfg.Rulebook.Hash,
		Bins:            bins,
		FlowPairs:       pairs,
		Flags:           flags,
		Summaries:       summaries,
	}, nil
}

// accumulateSegment projects every active event's roster onto the
// segment and bins the occupancy.
func accumulateSegment(cfg *models.AnalysisConfig, seg *models.Segment, rosters map[string][]models.Runner) ([]models.Bin, error) {
	windowsByEvent := make(map[string][]projector.Window, len(seg.Ranges))
	for _, e := range cfg.Events {
		r, ok := seg.Ranges[e.Name]
		if !ok {
			continue
		}
		windows, err := projector.SegmentWindows(rosters[e.Name], r.FromKm, r.ToKm, e.StartTime(cfg.Midnight))
		if err != nil {
			return nil, scopeError(err, e.Name, seg.ID)
		}
		windowsByEvent[e.Name] = windows
	}
	bins, err := binning.Accumulate(seg, windowsByEvent, cfg.BinWindow, cfg.Midnight)
	if err != nil {
		return nil, err
	}
	if err := binning.Densify(bins, seg, cfg.BinWindow, cfg.Rulebook); err != nil {
		return nil, err
	}
	return bins, nil
}

// analyzePairs runs the flow-pair analyzer over every configured pair,
// in input order.
func analyzePairs(cfg *models.AnalysisConfig, rosters map[string][]models.Runner) ([]models.FlowPairResult, error) {
	results := make([]models.FlowPairResult, 0, len(cfg.FlowPairs))
	for _, spec := range cfg.FlowPairs {
		seg := cfg.SegmentByID(spec.SegmentID)
		if seg == nil {
			return nil, &models.ConfigurationError{Field: "flow_pairs", Segment: spec.SegmentID,
				Reason: "flow pair references unknown segment"}
		}
		eventA := cfg.EventByName(spec.EventA)
		eventB := cfg.EventByName(spec.EventB)
		if eventA == nil || eventB == nil {
			// Pair rows for events outside this run are ignored, not errors:
			// the pair table describes the whole course, the request picks
			// which events run today.
			continue
		}
		res, err := flowpair.Analyze(flowpair.Input{
			Spec:         spec,
			Segment:      seg,
			RunnersA:     rosters[spec.EventA],
			RunnersB:     rosters[spec.EventB],
			StartA:       eventA.StartTime(cfg.Midnight),
			StartB:       eventB.StartTime(cfg.Midnight),
			ZoneLengthKm: cfg.ZoneLengthKm,
			MinOverlap:   cfg.MinOverlap,
			ScanStepKm:   cfg.ScanStepKm,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// scopeError stamps segment and event context onto range errors so a
// failed run is diagnosable without re-running.
func scopeError(err error, event, segment string) error {
	if dre, ok := err.(*models.DataRangeError); ok {
		scoped := *dre
		if scoped.Event == "" {
			scoped.Event = event
		}
		scoped.Segment = segment
		return &scoped
	}
	return err
}
