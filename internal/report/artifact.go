package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/models"
)

// Artifact is the machine-readable export of one run. Timestamps are
// RFC 3339 with explicit offsets; rates are the canonical
// persons/second; flag summaries are the flagging engine's structures
// byte-for-byte, the same ones the text report prints.
type Artifact struct {
	RunID           string                      `json:"run_id"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	RulebookVersion string                      `json:"rulebook_version"`
	RulebookHash    string                      `json:"rulebook_hash"`
	Bins            []models.Bin                `json:"bins"`
	FlowPairs       []models.FlowPairResult     `json:"flow_pairs"`
	Flags           []models.BinFlag            `json:"flags"`
	Summaries       []models.SegmentFlagSummary `json:"summaries"`
}

// BuildArtifact assembles the export structure from run results. It is
// a field-for-field carry-over: the artifact layer adds nothing and
// recomputes nothing.
func BuildArtifact(res *analysis.Results) *Artifact {
	return &Artifact{
		RunID:           res.RunID,
		GeneratedAt:     res.GeneratedAt,
		RulebookVersion: res.RulebookVersion,
		RulebookHash:    res.RulebookHash,
		Bins:            res.Bins,
		FlowPairs:       res.FlowPairs,
		Flags:           res.Flags,
		Summaries:       res.Summaries,
	}
}

// Export writes the JSON artifact for a run into dir, named by run ID.
// The write is atomic: marshal to a temp file, then rename.
func Export(dir string, res *analysis.Results) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(BuildArtifact(res), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}
	path := filepath.Join(dir, res.RunID+".json")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename artifact: %w", err)
	}
	return path, nil
}
