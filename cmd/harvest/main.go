// Package main provides the harvest CLI for loading the public library catalog into Elasticsearch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bull/library-harvester/internal/config"
	"github.com/bull/library-harvester/internal/data4library"
	"github.com/bull/library-harvester/internal/indexer"
	"github.com/bull/library-harvester/internal/loader"
	"github.com/bull/library-harvester/internal/schema"
	"github.com/bull/library-harvester/internal/search"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Public library catalog harvester",
	Long:  "CLI tool for harvesting data4library libraries and holdings into daily Elasticsearch indices",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Harvest libraries and holdings for today",
	Long: `Runs one ingestion pass into today's (KST) partitions.

This command:
1. Connects to Elasticsearch and waits until it is reachable
2. Declares the library-* and book-* index templates
3. Fetches every library from the data4library API into library-YYYY-MM-DD
4. Lists library pages for the configured region
5. Downloads each library's holdings CSV into book-YYYY-MM-DD

Partitions that already hold data for today are skipped.

Environment variables:
  ES_HOST               Elasticsearch address (required)
  AUTH_KEY              data4library API key (required)
  REGION                Portal region code (default: 11)
  DETAIL_REGION         Portal detail region (default: A)
  WORKERS               Libraries harvested concurrently (default: 1)
  CHUNK_SIZE            Documents per bulk request (default: 30000)
  REQUESTS_PER_SECOND   Upstream request rate, 0 for unlimited (default: 2)
  HTTP_TIMEOUT          Upstream request timeout (default: 5m)
  SKIP_EXISTING         Skip partitions that already hold data (default: true)`,
	RunE: runSync,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Declare the index templates only",
	Long:  "Declares the library-* and book-* index templates. Only ES_HOST is required.",
	RunE:  runTemplates,
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().String("es-host", "", "Elasticsearch address (overrides ES_HOST)")
	syncCmd.Flags().Int("workers", 1, "libraries harvested concurrently")
	syncCmd.Flags().Bool("skip-existing", true, "skip partitions that already hold data")

	bindFlag(config.KeyESHost, rootCmd.PersistentFlags().Lookup("es-host"))
	bindFlag(config.KeyWorkers, syncCmd.Flags().Lookup("workers"))
	bindFlag(config.KeySkipExisting, syncCmd.Flags().Lookup("skip-existing"))

	rootCmd.AddCommand(syncCmd, templatesCmd)
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect loads configuration with load and returns a healthy Elasticsearch client.
func connect(ctx context.Context, load func(*viper.Viper) (*config.Config, error)) (*config.Config, *search.Client, error) {
	cfg, err := load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("Invalid configuration: %w", err)
	}

	fmt.Printf("Connecting to Elasticsearch at %s...\n", cfg.ESHost)
	es, err := search.NewClient(cfg.ESHost)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to create Elasticsearch client: %w", err)
	}
	if err := es.WaitHealthy(ctx); err != nil {
		return nil, nil, fmt.Errorf("Elasticsearch health check failed: %w", err)
	}
	fmt.Println("Elasticsearch healthy")
	return cfg, es, nil
}

func runTemplates(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := newLogger(cmd)

	_, es, err := connect(ctx, config.LoadEngine)
	if err != nil {
		return err
	}
	if err := schema.NewManager(es, logger).Apply(ctx); err != nil {
		return fmt.Errorf("Failed to apply templates: %w", err)
	}
	fmt.Println("Templates applied")
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()
	logger := newLogger(cmd)

	fmt.Println("Starting harvest...")
	fmt.Println()

	cfg, es, err := connect(ctx, config.Load)
	if err != nil {
		return err
	}

	source := data4library.NewClient(cfg, logger)
	store := loader.New(es,
		loader.WithChunkSize(cfg.ChunkSize),
		loader.WithSkipExisting(cfg.SkipExisting),
		loader.WithLogger(logger),
	)
	pipeline := indexer.NewPipeline(schema.NewManager(es, logger), source, source, store, cfg.Workers, logger)

	result, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("Harvest failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Harvest complete!")
	fmt.Printf("  Day: %s\n", result.Day.Format("2006-01-02"))
	if result.LibrariesSkipped {
		fmt.Println("  Libraries: already loaded")
	} else {
		fmt.Printf("  Libraries: %d\n", result.LibrariesWritten)
	}
	fmt.Printf("  Library pages: %d loaded, %d skipped, %d failed of %d\n",
		result.PagesLoaded, result.PagesSkipped, len(result.FailedPages), result.Pages)
	fmt.Printf("  Books: %d\n", result.BooksWritten)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	if len(result.FailedPages) > 0 {
		fmt.Println()
		fmt.Println("Failed library pages:")
		for _, failed := range result.FailedPages {
			fmt.Printf("  - %s: %s\n", failed.PageID, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}
