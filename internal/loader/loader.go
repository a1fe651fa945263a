// Package loader writes records into date-partitioned indices.
//
// A partition is written at most once per day per scope: when documents already exist for
// the scope the load is skipped. Records are submitted in fixed-size batches, and each batch
// is retried as a whole with exponential backoff. Document ids are deterministic, so a batch
// may be resent safely.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/library-harvester/internal/catalog"
	"github.com/bull/library-harvester/internal/search"
)

// DefaultChunkSize keeps bulk payloads under the engine's request size limit.
const DefaultChunkSize = 30000

// ErrRetriesExhausted is returned when a batch kept failing until the elapsed-time ceiling.
var ErrRetriesExhausted = errors.New("bulk retries exhausted")

// Engine is the subset of the search engine the loader writes through.
// Implementations must be safe for concurrent use.
type Engine interface {
	CreateIndex(ctx context.Context, index string) error
	Count(ctx context.Context, index string, query any) (int64, error)
	Bulk(ctx context.Context, index string, docs []search.Document, refresh search.Refresh) (*search.BulkResponse, error)
}

// Result describes one partition load.
type Result struct {
	Index   string
	Scope   string // library code for book loads, empty for the library partition
	Skipped bool   // existing documents found, nothing written
	Dropped int    // records without identity
	Written int    // items the engine accepted
	Batches int    // batches accepted
	Retries int    // backoff waits across all batches
}

// Loader writes libraries and books into their day's partitions.
type Loader struct {
	engine       Engine
	policy       Policy
	chunkSize    int
	skipExisting bool
	logger       *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithChunkSize overrides the batch size. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

// WithSkipExisting toggles the idempotency check.
func WithSkipExisting(skip bool) Option {
	return func(l *Loader) { l.skipExisting = skip }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loader writing through engine. By default it skips partitions that
// already hold documents, uses DefaultChunkSize and DefaultPolicy.
func New(engine Engine, opts ...Option) *Loader {
	l := &Loader{
		engine:       engine,
		policy:       DefaultPolicy(),
		chunkSize:    DefaultChunkSize,
		skipExisting: true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type partition struct {
	index   string
	scope   string
	query   any // nil counts the whole index
	refresh search.Refresh
}

// LoadLibraries writes libs into the library partition for day. Writes wait for refresh
// so the library set is searchable as soon as this returns.
func (l *Loader) LoadLibraries(ctx context.Context, day time.Time, libs []catalog.Library) (*Result, error) {
	p := partition{
		index:   PartitionName(KindLibrary, day),
		refresh: search.RefreshWaitFor,
	}
	docs, dropped := libraryDocuments(libs, day.In(KST).Format(dayLayout))
	if dropped > 0 {
		l.logger.Warn("Dropped libraries without code", "index", p.index, "count", dropped)
	}

	res, err := l.load(ctx, p, docs)
	if res != nil {
		res.Dropped = dropped
	}
	return res, err
}

// LoadBooks writes one library's books into the book partition for day. The idempotency
// check is scoped to libCode. Writes do not wait for refresh.
func (l *Loader) LoadBooks(ctx context.Context, day time.Time, libCode string, books []catalog.Book) (*Result, error) {
	if libCode == "" {
		return nil, errors.New("load books: empty library code")
	}
	p := partition{
		index:   PartitionName(KindBook, day),
		scope:   libCode,
		query:   map[string]any{"term": map[string]any{"libCode": libCode}},
		refresh: search.RefreshFalse,
	}
	docs, dropped := bookDocuments(libCode, books)

	res, err := l.load(ctx, p, docs)
	if res != nil {
		res.Dropped = dropped
	}
	return res, err
}

func (l *Loader) load(ctx context.Context, p partition, docs []search.Document) (*Result, error) {
	res := &Result{Index: p.index, Scope: p.scope}

	if l.skipExisting {
		n, err := l.engine.Count(ctx, p.index, p.query)
		if err != nil {
			return nil, fmt.Errorf("count existing in %s: %w", p.index, err)
		}
		if n > 0 {
			l.logger.Info("Partition already loaded, skipping",
				"index", p.index, "scope", p.scope, "existing", n)
			res.Skipped = true
			return res, nil
		}
	}

	if err := l.engine.CreateIndex(ctx, p.index); err != nil {
		return nil, fmt.Errorf("create partition %s: %w", p.index, err)
	}

	for start := 0; start < len(docs); start += l.chunkSize {
		end := min(start+l.chunkSize, len(docs))

		accepted, retries, err := l.submit(ctx, p, docs[start:end])
		res.Retries += retries
		if err != nil {
			return res, fmt.Errorf("batch %d-%d of %s: %w", start, end, p.index, err)
		}
		res.Batches++
		res.Written += accepted
	}

	return res, nil
}

// submit sends one batch, retrying transient failures under a fresh backoff.
// Returns the accepted item count and the number of backoff waits.
func (l *Loader) submit(ctx context.Context, p partition, docs []search.Document) (int, int, error) {
	var resp *search.BulkResponse
	waits := 0

	operation := func() error {
		r, err := l.engine.Bulk(ctx, p.index, docs, p.refresh)
		if err != nil {
			if !search.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		waits++
		l.logger.Warn("Bulk submission failed, retrying",
			"index", p.index, "scope", p.scope, "docs", len(docs),
			"attempt", waits, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(l.policy.NewBackOff(), ctx), notify)
	if err != nil {
		if search.IsTransient(err) {
			return 0, waits, fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, waits, err)
		}
		return 0, waits, err
	}

	if rejected := resp.Rejected(); len(rejected) > 0 {
		first := rejected[0]
		reason := ""
		if first.Error != nil {
			reason = first.Error.Type + ": " + first.Error.Reason
		}
		l.logger.Warn("Bulk items rejected",
			"index", p.index, "scope", p.scope, "rejected", len(rejected),
			"first_id", first.ID, "first_status", first.Status, "first_reason", reason)
	}

	return resp.AcceptedCount(), waits, nil
}
