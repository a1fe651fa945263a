package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/library-harvester/internal/catalog"
	"github.com/bull/library-harvester/internal/loader"
)

// LibrarySource returns the full library list.
type LibrarySource interface {
	Libraries(ctx context.Context) ([]catalog.Library, error)
}

// PageSource enumerates portal page identifiers and resolves each to holdings.
type PageSource interface {
	PageIDs(ctx context.Context) ([]string, error)
	Holdings(ctx context.Context, pageID string) (*catalog.Holdings, error)
}

// SchemaApplier declares index templates.
type SchemaApplier interface {
	Apply(ctx context.Context) error
}

// Store writes records into day partitions. Must be safe for concurrent use.
type Store interface {
	LoadLibraries(ctx context.Context, day time.Time, libs []catalog.Library) (*loader.Result, error)
	LoadBooks(ctx context.Context, day time.Time, libCode string, books []catalog.Book) (*loader.Result, error)
}

// RunResult contains statistics about one harvest run.
type RunResult struct {
	RunID            string
	Day              time.Time
	LibrariesWritten int
	LibrariesSkipped bool
	Pages            int
	PagesLoaded      int
	PagesSkipped     int
	BooksWritten     int
	FailedPages      []FailedPage
	Duration         time.Duration
}

// FailedPage represents a library page whose holdings could not be harvested.
type FailedPage struct {
	PageID string
	Reason string
	Err    error
}

// Pipeline orchestrates a harvest: templates, then libraries, then per-library holdings.
type Pipeline struct {
	schema    SchemaApplier
	libraries LibrarySource
	pages     PageSource
	store     Store
	workers   int
	now       func() time.Time
	logger    *slog.Logger
}

// NewPipeline creates a harvest pipeline. workers bounds how many libraries are harvested
// at once; 1 processes them strictly in order.
func NewPipeline(
	schema SchemaApplier,
	libraries LibrarySource,
	pages PageSource,
	store Store,
	workers int,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		schema:    schema,
		libraries: libraries,
		pages:     pages,
		store:     store,
		workers:   workers,
		now:       time.Now,
		logger:    logger,
	}
}

// Run performs one ingestion pass. Template and library failures abort the run;
// a failure for a single library page is recorded and the run continues.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := p.now()
	result := &RunResult{
		RunID: uuid.NewString(),
		Day:   loader.Day(start),
	}
	logger := p.logger.With("run_id", result.RunID)
	logger.Info("Starting harvest", "day", result.Day.Format("2006-01-02"), "workers", p.workers)

	// 1. Templates must exist before any partition is created
	if err := p.schema.Apply(ctx); err != nil {
		return nil, fmt.Errorf("apply templates: %w", err)
	}

	// 2. Libraries are reference data; failure here is fatal
	libs, err := p.libraries.Libraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch libraries: %w", err)
	}
	libRes, err := p.store.LoadLibraries(ctx, result.Day, libs)
	if err != nil {
		return nil, fmt.Errorf("load libraries: %w", err)
	}
	result.LibrariesWritten = libRes.Written
	result.LibrariesSkipped = libRes.Skipped
	logger.Info("Libraries saved", "index", libRes.Index, "written", libRes.Written, "skipped", libRes.Skipped)

	// 3. Holdings, one library page at a time per worker
	pageIDs, err := p.pages.PageIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list library pages: %w", err)
	}
	result.Pages = len(pageIDs)
	logger.Info("Found library pages", "count", len(pageIDs))

	if err := p.harvestPages(ctx, logger, result, pageIDs); err != nil {
		return result, err
	}

	result.Duration = p.now().Sub(start)
	logger.Info("Harvest complete",
		"pages", result.Pages,
		"loaded", result.PagesLoaded,
		"skipped", result.PagesSkipped,
		"failed", len(result.FailedPages),
		"books", result.BooksWritten,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) harvestPages(ctx context.Context, logger *slog.Logger, result *RunResult, pageIDs []string) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, pageID := range pageIDs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.harvestPage(gctx, logger, result.Day, pageID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Failed to harvest library page", "page", pageID, "error", err)
				result.FailedPages = append(result.FailedPages, FailedPage{
					PageID: pageID,
					Reason: err.Error(),
					Err:    err,
				})
				return nil // Skip this library, continue with others
			}
			if res.Skipped {
				result.PagesSkipped++
			} else {
				result.PagesLoaded++
			}
			result.BooksWritten += res.Written
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("harvest interrupted: %w", err)
	}
	return nil
}

// harvestPage fetches and loads a single library's holdings.
func (p *Pipeline) harvestPage(ctx context.Context, logger *slog.Logger, day time.Time, pageID string) (*loader.Result, error) {
	holdings, err := p.pages.Holdings(ctx, pageID)
	if err != nil {
		return nil, err
	}

	res, err := p.store.LoadBooks(ctx, day, holdings.LibCode, holdings.Books)
	if err != nil {
		if errors.Is(err, loader.ErrRetriesExhausted) {
			logger.Error("Giving up on library after retries", "page", pageID, "library", holdings.LibCode)
		}
		return nil, fmt.Errorf("load books for %s: %w", holdings.LibCode, err)
	}

	logger.Info("Books saved", "page", pageID, "library", holdings.LibCode,
		"written", res.Written, "skipped", res.Skipped)
	return res, nil
}
