// Package cli implements the echomem CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aurorahq/echomem/internal/ann"
	"github.com/aurorahq/echomem/internal/chunker"
	"github.com/aurorahq/echomem/internal/config"
	"github.com/aurorahq/echomem/internal/dlq"
	"github.com/aurorahq/echomem/internal/embedding"
	"github.com/aurorahq/echomem/internal/hotindex"
	"github.com/aurorahq/echomem/internal/ingest"
	"github.com/aurorahq/echomem/internal/metrics"
	"github.com/aurorahq/echomem/internal/store"
)

var (
	configFile string
	dbFlag     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "echomem",
	Short: "Conversational memory ingestion and recall",
	Long:  "Ingests conversation webhooks into a durable SQLite store and a hot vector index, and recalls memories by similarity.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (default: ECHOMEM_* env vars)")
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Database path (overrides config)")
}

// components holds the wired pipeline for one command invocation.
type components struct {
	cfg   *config.Config
	store *store.SQLiteStore
	index *hotindex.Manager
	queue *dlq.Queue
	proc  *ingest.Processor
}

func (c *components) Close() {
	c.store.Close()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	return cfg, nil
}

func openComponents() (*components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ch, err := chunker.New(chunker.Options{
		MaxTokens: cfg.ChunkTokens,
		Overlap:   cfg.ChunkOverlap,
		MinTokens: cfg.MinTokens,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	queue, err := dlq.New(cfg.DLQDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open dlq: %w", err)
	}

	reg, err := metrics.NewRegistry(prometheus.DefaultRegisterer)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	emb := embedding.NewClient(embedding.Options{
		BaseURL:   cfg.EmbedBaseURL,
		APIKey:    cfg.EmbedAPIKey,
		Model:     cfg.EmbedModel,
		Dims:      cfg.EmbedDim,
		BatchSize: cfg.EmbedBatch,
	})

	index := hotindex.New(st, hotindex.Options{
		Dim:       cfg.EmbedDim,
		HotWindow: cfg.HotWindow(),
		TopK:      cfg.TopK,
		ANN: ann.Options{
			Degree:         cfg.HNSWDegree,
			EfConstruction: cfg.HNSWEfCon,
			EfSearch:       cfg.HNSWEf,
		},
		MetadataPath: cfg.MetadataPath(),
	}, logger)

	proc := ingest.NewProcessor(st, ch, emb, index, queue, reg, ingest.Options{
		VerifySignatures: cfg.WebhookVerify,
		WebhookSecret:    cfg.WebhookSecret,
		Tolerance:        cfg.Tolerance(),
	}, logger)

	return &components{cfg: cfg, store: st, index: index, queue: queue, proc: proc}, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
