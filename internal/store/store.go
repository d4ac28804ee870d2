// Package store persists analysis runs for later comparison and serves
// the "latest run" lookup used by dashboards. The relational store runs
// on sqlite (embedded, the default) or postgres, selected by
// configuration; an optional redis cache keeps the newest flag summary
// hot.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/models"
)

// Store wraps the relational run store.
type Store struct {
	db *sqlx.DB
}

// RunRecord is one persisted run's header row.
type RunRecord struct {
	ID              string    `db:"id"`
	CreatedAt       time.Time `db:"created_at"`
	RulebookVersion string    `db:"rulebook_version"`
	RulebookHash    string    `db:"rulebook_hash"`
	BinCount        int       `db:"bin_count"`
	FlagCount       int       `db:"flag_count"`
	WorstSeverity   string    `db:"worst_severity"`
}

// summaryRow mirrors models.SegmentFlagSummary for scanning; the domain
// type stays free of db tags.
type summaryRow struct {
	RunID         string  `db:"run_id"`
	SegmentID     string  `db:"segment_id"`
	FlaggedBins   int     `db:"flagged_bins"`
	WorstSeverity string  `db:"worst_severity"`
	PeakDensity   float64 `db:"peak_density"`
	PeakRate      float64 `db:"peak_rate"`
	WorstLOS      string  `db:"worst_los"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	created_at       TIMESTAMP NOT NULL,
	rulebook_version TEXT NOT NULL,
	rulebook_hash    TEXT NOT NULL,
	bin_count        INTEGER NOT NULL,
	flag_count       INTEGER NOT NULL,
	worst_severity   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS segment_flags (
	run_id         TEXT NOT NULL,
	segment_id     TEXT NOT NULL,
	flagged_bins   INTEGER NOT NULL,
	worst_severity TEXT NOT NULL,
	peak_density   DOUBLE PRECISION NOT NULL,
	peak_rate      DOUBLE PRECISION NOT NULL,
	worst_los      TEXT NOT NULL,
	PRIMARY KEY (run_id, segment_id)
);`

// Open connects to the configured driver and ensures the schema exists.
// Supported drivers: "sqlite" (modernc, no cgo) and "postgres" (lib/pq).
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s store: %w", driver, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists one run's header and segment summaries atomically.
func (s *Store) SaveRun(ctx context.Context, res *analysis.Results) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertRun := tx.Rebind(`INSERT INTO runs
		(id, created_at, rulebook_version, rulebook_hash, bin_count, flag_count, worst_severity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertRun,
		res.RunID, res.GeneratedAt.UTC(), res.RulebookVersion, res.RulebookHash,
		len(res.Bins), len(res.Flags), res.WorstSeverity().String()); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", res.RunID, err)
	}

	insertSummary := tx.Rebind(`INSERT INTO segment_flags
		(run_id, segment_id, flagged_bins, worst_severity, peak_density, peak_rate, worst_los)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, sum := range res.Summaries {
		if _, err := tx.ExecContext(ctx, insertSummary,
			res.RunID, sum.SegmentID, sum.FlaggedBins, sum.WorstSeverity.String(),
			sum.PeakDensity, sum.PeakRate, sum.WorstLOS); err != nil {
			return fmt.Errorf("failed to insert summary for %s/%s: %w", res.RunID, sum.SegmentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", res.RunID, err)
	}
	return nil
}

// LatestRun returns the most recently created run header.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, created_at, rulebook_version, rulebook_hash, bin_count, flag_count, worst_severity
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	return &rec, nil
}

// RunSummaries loads the persisted segment summaries of a run, ordered
// by segment ID like the flagging engine emits them.
func (s *Store) RunSummaries(ctx context.Context, runID string) ([]models.SegmentFlagSummary, error) {
	var rows []summaryRow
	query := s.db.Rebind(`SELECT run_id, segment_id, flagged_bins, worst_severity, peak_density, peak_rate, worst_los
		FROM segment_flags WHERE run_id = ? ORDER BY segment_id`)
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to load summaries for run %s: %w", runID, err)
	}
	summaries := make([]models.SegmentFlagSummary, 0, len(rows))
	for _, row := range rows {
		sev, err := models.ParseSeverity(row.WorstSeverity)
		if err != nil {
			return nil, fmt.Errorf("run %s segment %s: %w", runID, row.SegmentID, err)
		}
		summaries = append(summaries, models.SegmentFlagSummary{
			SegmentID:     row.SegmentID,
			FlaggedBins:   row.FlaggedBins,
			WorstSeverity: sev,
			PeakDensity:   row.PeakDensity,
			PeakRate:      row.PeakRate,
			WorstLOS:      row.WorstLOS,
		})
	}
	return summaries, nil
}
