// Corvid Daemon - runs the agent platform as one background service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvidlabs/corvid/internal/api"
	"github.com/corvidlabs/corvid/internal/autodev"
	"github.com/corvidlabs/corvid/internal/chunker"
	"github.com/corvidlabs/corvid/internal/config"
	"github.com/corvidlabs/corvid/internal/embeddings"
	"github.com/corvidlabs/corvid/internal/frontier"
	"github.com/corvidlabs/corvid/internal/ledger"
	"github.com/corvidlabs/corvid/internal/oracle"
	"github.com/corvidlabs/corvid/internal/scheduler"
	"github.com/corvidlabs/corvid/internal/storage"
	"github.com/corvidlabs/corvid/internal/vectors"
)

var (
	configPath string
	dataDir    string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corvid",
		Short: "Corvid Daemon - autonomous agents with a corpus and a ledger",
		RunE:  runDaemon,
	}

	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".corvid")

	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir, "Data directory")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	fmt.Println("🚀 Starting Corvid Daemon...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	// Open database
	dbPath := filepath.Join(cfg.DataDir, "corvid.db")
	db, err := storage.Open(storage.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Stores
	agents := storage.NewAgentStore(db)
	ticks := storage.NewTickLogStore(db)
	corpus := storage.NewCorpusStore(db)
	crawl := storage.NewCrawlStore(db)
	devs := storage.NewAutoDevStore(db)
	led := ledger.NewStore(db.Conn())

	// Chunk indexer with optional vector mirroring
	splitter := chunker.NewSplitter(cfg.Indexer.ChunkWindow, cfg.Indexer.ChunkOverlap)
	indexer := chunker.NewIndexer(corpus, led, splitter)

	vectorStore, err := vectors.NewStore(vectors.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		fmt.Printf("⚠️  Qdrant not available: %v\n", err)
		fmt.Println("   Chunks stay queryable via SQLite only")
	} else {
		defer vectorStore.Close()

		embedder := embeddings.NewService(embeddings.Config{
			BaseURL: cfg.Ollama.URL,
			Model:   cfg.Ollama.Model,
		})
		if err := embedder.Health(context.Background()); err != nil {
			fmt.Printf("⚠️  Ollama not available: %v\n", err)
			fmt.Println("   Vector mirroring disabled")
		} else {
			if err := vectorStore.EnsureCollection(context.Background(), embedder.Dimension()); err != nil {
				fmt.Printf("⚠️  Qdrant collection setup failed: %v\n", err)
			} else {
				indexer = indexer.WithVectorSink(embedder, vectorStore)
				fmt.Println("✅ Qdrant + Ollama connected")
			}
		}
	}

	// Oracle client
	orc := oracle.NewClient(oracle.Config{
		APIKey: cfg.Oracle.APIKey,
		Model:  cfg.Oracle.Model,
	})
	if !orc.IsConfigured() {
		fmt.Println("⚠️  ANTHROPIC_API_KEY not set - ticks will fail until configured")
	} else {
		fmt.Println("✅ Oracle configured")
	}

	// Scheduler
	trader := scheduler.NewTrader(led, nil)
	supervisor := scheduler.New(agents, ticks, corpus, led, indexer, orc, trader)
	defer supervisor.Shutdown()

	if err := supervisor.ResumeLoops(); err != nil {
		fmt.Printf("⚠️  Failed to resume loops: %v\n", err)
	}

	// API server
	server := api.New(api.Config{
		Port:         cfg.Server.Port,
		Supervisor:   supervisor,
		Frontier:     frontier.New(crawl, ticks, corpus, indexer, orc, cfg.Crawl.PageBudget),
		AutoDev:      autodev.NewRunner(agents, devs, corpus, ticks, orc, indexer),
		AgentStore:   agents,
		TickLogStore: ticks,
		CrawlStore:   crawl,
		AutoDevStore: devs,
		LedgerStore:  led,
	})

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\n🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Stop(shutdownCtx)
	}()

	// Start server (blocks)
	fmt.Printf("🌐 API listening on http://localhost:%d\n", cfg.Server.Port)
	return server.Start()
}
