// Command crowdflow runs one temporal density and flow analysis over a
// race day: it loads the configured tables, resolves the request into an
// immutable run configuration, executes the engine, and hands the
// results to every consumer (report, artifact, run store, cache,
// alerts). Any error rejects the entire run; partial results are never
// written.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/config"
	"github.com/racefield/crowdflow/internal/loader"
	"github.com/racefield/crowdflow/internal/logger"
	"github.com/racefield/crowdflow/internal/models"
	"github.com/racefield/crowdflow/internal/report"
	"github.com/racefield/crowdflow/internal/store"
	"github.com/racefield/crowdflow/internal/telegram"
)

var (
	configPath  = flag.String("config", "configs/config.yaml", "Path to application configuration")
	requestPath = flag.String("request", "configs/request.yaml", "Path to the analysis request")
	reportOut   = flag.String("report", "", "Write the text report here instead of stdout")
)

func main() {
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	req, err := loader.LoadRequest(*requestPath)
	if err != nil {
		logger.Fatal("Failed to load request: %v", err)
	}
	rulebook, err := loader.LoadRulebook(req.RulebookFile)
	if err != nil {
		logger.Fatal("Failed to load rulebook: %v", err)
	}
	logger.Info("Rulebook %s loaded (hash %.12s)", rulebook.Version, rulebook.Hash)

	tables, err := loader.LoadTables(req)
	if err != nil {
		logger.Fatal("Failed to load input tables: %v", err)
	}

	runCfg, err := analysis.Resolve(req, tables, rulebook, analysis.Defaults{
		BinWindow:    cfg.Analysis.BinWindow,
		ZoneLengthKm: cfg.Analysis.ZoneLengthKm,
		MinOverlap:   cfg.Analysis.MinOverlap,
		ScanStepKm:   cfg.Analysis.ScanStepKm,
		Workers:      cfg.Analysis.Workers,
	})
	if err != nil {
		logger.Fatal("Request rejected: %v", err)
	}
	logger.Info("Run %s resolved: %d events, %d segments, %d flow pairs",
		runCfg.RunID, len(runCfg.Events), len(runCfg.Segments), len(runCfg.FlowPairs))

	results, err := analysis.Run(runCfg, tables.Rosters)
	if err != nil {
		logger.Fatal("Analysis failed: %v", err)
	}

	out := os.Stdout
	if *reportOut != "" {
		f, err := os.Create(*reportOut)
		if err != nil {
			logger.Fatal("Failed to create report file: %v", err)
		}
		defer f.Close()
		out = f
	}
	if err := report.Write(out, results, runCfg.Segments); err != nil {
		logger.Fatal("Failed to write report: %v", err)
	}

	artifactPath, err := report.Export(cfg.Storage.ArtifactDir, results)
	if err != nil {
		logger.Fatal("Failed to export artifact: %v", err)
	}
	logger.Info("Artifact written to %s", artifactPath)

	ctx := context.Background()
	db, err := store.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		logger.Fatal("Failed to open run store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close run store: %v", err)
		}
	}()
	if err := db.SaveRun(ctx, results); err != nil {
		logger.Fatal("Failed to persist run: %v", err)
	}
	logger.Info("Run %s persisted (%s)", results.RunID, cfg.Storage.Driver)

	if cfg.Redis.Enabled {
		cache := store.NewCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		defer cache.Close()
		if err := cache.SetLatest(ctx, results); err != nil {
			logger.Warn("Failed to update latest-run cache: %v", err)
		} else {
			logger.Debug("Latest-run cache updated")
		}
	}

	if cfg.Telegram.Enabled {
		minSev, err := models.ParseSeverity(cfg.Telegram.MinSeverity)
		if err != nil {
			logger.Fatal("Invalid telegram.min_severity: %v", err)
		}
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		if err := client.SendFlagAlert(results.RunID, results.Summaries, minSev); err != nil {
			logger.Warn("Failed to send crowding alert: %v", err)
		}
	}

	logger.Info("Run %s complete: %d bins, %d flags, worst severity %s",
		results.RunID, len(results.Bins), len(results.Flags), results.WorstSeverity())
}
