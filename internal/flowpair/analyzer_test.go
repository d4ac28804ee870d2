package flowpair

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/racefield/crowdflow/internal/models"
	"github.com/racefield/crowdflow/internal/projector"
)

var gun = time.Date(2026, 4, 12, 7, 0, 0, 0, time.UTC)

func sharedSegment() *models.Segment {
	return &models.Segment{
		ID: "s1", WidthM: 6,
		Ranges: map[string]models.Range{
			"a": {FromKm: 0, ToKm: 1},
			"b": {FromKm: 0, ToKm: 1},
		},
	}
}

func pairInput(seg *models.Segment) Input {
	return Input{
		Spec:         models.FlowPairSpec{SegmentID: seg.ID, EventA: "a", EventB: "b"},
		Segment:      seg,
		StartA:       gun,
		StartB:       gun.Add(300 * time.Second),
		ZoneLengthKm: 0.4,
		MinOverlap:   60 * time.Second,
		ScanStepKm:   0.1,
	}
}

// Event A starts first with slower runners; event B starts five minutes
// later with faster ones. B's lead runner catches A's field half a
// kilometre in, so convergence lands at 0.5 km and the bounded zone
// covers [0.5, 0.9].
func TestAnalyzeConvergenceAndOvertaking(t *testing.T) {
	in := pairInput(sharedSegment())
	in.RunnersA = []models.Runner{
		{Event: "a", SplitSec: []float64{600}},
		{Event: "a", SplitSec: []float64{900}},
	}
	in.RunnersB = []models.Runner{
		{Event: "b", SplitSec: []float64{300}},
		{Event: "b", SplitSec: []float64{360}},
	}

	res, err := Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ConvergenceKm == nil {
		t.Fatal("expected a convergence point")
	}
	if math.Abs(*res.ConvergenceKm-0.5) > 1e-9 {
		t.Errorf("ConvergenceKm = %v, want 0.5", *res.ConvergenceKm)
	}
	if math.Abs(res.ZoneFromKm-0.5) > 1e-9 || math.Abs(res.ZoneToKm-0.9) > 1e-9 {
		t.Errorf("zone = [%v, %v], want [0.5, 0.9]", res.ZoneFromKm, res.ZoneToKm)
	}
	if res.OvertakesAB != 2 || res.OvertakesBA != 2 {
		t.Errorf("overtakes = %d/%d, want 2/2", res.OvertakesAB, res.OvertakesBA)
	}
	if res.CoPresenceA != 2 || res.CoPresenceB != 2 {
		t.Errorf("co-presence = %d/%d, want 2/2", res.CoPresenceA, res.CoPresenceB)
	}
	if res.Classification != models.InteractionOvertake {
		t.Errorf("classification = %s, want overtake (same entry km)", res.Classification)
	}
}

// Raising the overlap threshold must shrink overtake counts without
// touching co-presence, which always uses a zero threshold.
func TestAnalyzeMinOverlapThreshold(t *testing.T) {
	in := pairInput(sharedSegment())
	in.MinOverlap = 100 * time.Second
	in.RunnersA = []models.Runner{
		{Event: "a", SplitSec: []float64{600}},
		{Event: "a", SplitSec: []float64{900}},
	}
	in.RunnersB = []models.Runner{
		{Event: "b", SplitSec: []float64{300}},
		{Event: "b", SplitSec: []float64{360}},
	}

	res, err := Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.OvertakesAB != 1 || res.OvertakesBA != 2 {
		t.Errorf("overtakes = %d/%d, want 1/2 at 100s threshold", res.OvertakesAB, res.OvertakesBA)
	}
	if res.CoPresenceA != 2 || res.CoPresenceB != 2 {
		t.Errorf("co-presence = %d/%d, want 2/2", res.CoPresenceA, res.CoPresenceB)
	}
}

// Concurrent zone time is bounded by the shorter window: a 20-second
// dash through the zone never satisfies a 60-second minimum, even when
// it lies entirely inside the other runner's window.
func TestCountOverlappingShortWindow(t *testing.T) {
	slow := []projector.Window{{Entry: gun, Exit: gun.Add(120 * time.Second)}}
	dash := []projector.Window{{Entry: gun.Add(50 * time.Second), Exit: gun.Add(70 * time.Second)}}

	if got := countOverlapping(slow, dash, 60*time.Second); got != 0 {
		t.Errorf("countOverlapping(slow, dash, 60s) = %d, want 0", got)
	}
	if got := countOverlapping(dash, slow, 60*time.Second); got != 0 {
		t.Errorf("countOverlapping(dash, slow, 60s) = %d, want 0", got)
	}
	// Below the dash's 20s of concurrent time the pairing counts again.
	if got := countOverlapping(slow, dash, 15*time.Second); got != 1 {
		t.Errorf("countOverlapping(slow, dash, 15s) = %d, want 1", got)
	}
	// Co-presence keeps its zero-threshold closed-interval semantics.
	if got := countOverlapping(slow, dash, 0); got != 1 {
		t.Errorf("countOverlapping(slow, dash, 0) = %d, want 1", got)
	}
}

// A runner whose time in the interaction zone is shorter than the
// minimum overlap produces no overtakes in either direction, but still
// registers as co-present.
func TestAnalyzeNearInstantaneousPass(t *testing.T) {
	in := pairInput(sharedSegment())
	in.RunnersA = []models.Runner{
		{Event: "a", SplitSec: []float64{1200}},
		{Event: "a", SplitSec: []float64{2400}},
	}
	in.RunnersB = []models.Runner{
		{Event: "b", SplitSec: []float64{100}}, // crosses the 0.4 km zone in 40s
	}

	res, err := Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ConvergenceKm == nil {
		t.Fatal("expected a convergence point")
	}
	if math.Abs(*res.ConvergenceKm-0.2) > 1e-9 {
		t.Errorf("ConvergenceKm = %v, want 0.2", *res.ConvergenceKm)
	}
	if res.OvertakesAB != 0 || res.OvertakesBA != 0 {
		t.Errorf("overtakes = %d/%d, want 0/0 for a sub-threshold pass", res.OvertakesAB, res.OvertakesBA)
	}
	if res.CoPresenceA != 1 || res.CoPresenceB != 1 {
		t.Errorf("co-presence = %d/%d, want 1/1", res.CoPresenceA, res.CoPresenceB)
	}
}

// Fields that never share the segment in time: nil convergence point,
// zero counts, no error.
func TestAnalyzeNoTemporalOverlap(t *testing.T) {
	in := pairInput(sharedSegment())
	in.StartB = gun.Add(3000 * time.Second)
	in.RunnersA = []models.Runner{{Event: "a", SplitSec: []float64{600}}}
	in.RunnersB = []models.Runner{{Event: "b", SplitSec: []float64{300}}}

	res, err := Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ConvergenceKm != nil {
		t.Errorf("expected no convergence, got %v", *res.ConvergenceKm)
	}
	if res.OvertakesAB != 0 || res.OvertakesBA != 0 || res.CoPresenceA != 0 || res.CoPresenceB != 0 {
		t.Errorf("expected zero counts, got %+v", res)
	}
}

// A self-pair measures pure congestion: overtaking is zero by
// definition and co-presence is the peak concurrent occupancy.
func TestAnalyzeSelfPair(t *testing.T) {
	seg := &models.Segment{
		ID: "s1", WidthM: 6,
		Ranges: map[string]models.Range{"a": {FromKm: 5, ToKm: 6}},
	}
	in := pairInput(seg)
	in.Spec.EventA, in.Spec.EventB = "a", "a"
	in.StartB = in.StartA
	pace := func(p float64) []float64 { return []float64{p, p, p, p, p, p} }
	roster := []models.Runner{
		{Event: "a", SplitSec: pace(300)},
		{Event: "a", SplitSec: pace(310)},
		{Event: "a", SplitSec: pace(600)},
	}
	in.RunnersA = roster
	in.RunnersB = roster

	res, err := Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.OvertakesAB != 0 || res.OvertakesBA != 0 {
		t.Errorf("self-pair overtakes = %d/%d, want 0/0", res.OvertakesAB, res.OvertakesBA)
	}
	if res.CoPresenceA != 2 || res.CoPresenceB != 2 {
		t.Errorf("self-pair co-presence = %d/%d, want peak occupancy 2", res.CoPresenceA, res.CoPresenceB)
	}
	if res.ConvergenceKm == nil || *res.ConvergenceKm != 0 {
		t.Errorf("self-pair convergence = %v, want 0", res.ConvergenceKm)
	}
}

func TestAnalyzeEmptyRoster(t *testing.T) {
	in := pairInput(sharedSegment())
	in.RunnersA = []models.Runner{{Event: "a", SplitSec: []float64{600}}}
	in.RunnersB = nil

	res, err := Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ConvergenceKm != nil {
		t.Error("empty roster must yield no convergence")
	}
}

func TestAnalyzeMissingRange(t *testing.T) {
	seg := &models.Segment{
		ID: "s1", WidthM: 6,
		Ranges: map[string]models.Range{"a": {FromKm: 0, ToKm: 1}},
	}
	in := pairInput(seg)
	in.RunnersA = []models.Runner{{Event: "a", SplitSec: []float64{600}}}
	in.RunnersB = []models.Runner{{Event: "b", SplitSec: []float64{300}}}

	_, err := Analyze(in)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Event != "b" {
		t.Errorf("error should name the rangeless event: %+v", cfgErr)
	}
}

func TestClassify(t *testing.T) {
	sameEntry := sharedSegment()
	if got := classify(sameEntry, sameEntry.Ranges["a"], sameEntry.Ranges["b"], false); got != models.InteractionOvertake {
		t.Errorf("same entry km = %s, want overtake", got)
	}

	merging := &models.Segment{
		ID: "s2", WidthM: 6,
		Ranges: map[string]models.Range{
			"a": {FromKm: 0, ToKm: 1},
			"b": {FromKm: 5, ToKm: 6},
		},
	}
	if got := classify(merging, merging.Ranges["a"], merging.Ranges["b"], false); got != models.InteractionMerge {
		t.Errorf("different entry km = %s, want merge", got)
	}

	hinted := sharedSegment()
	hinted.Hint = models.InteractionDiverge
	if got := classify(hinted, hinted.Ranges["a"], hinted.Ranges["b"], false); got != models.InteractionDiverge {
		t.Errorf("hint should win, got %s", got)
	}
}
