// Package batch runs per-item lookups concurrently under a global cap and
// records each result in an append-only log, so an interrupted run can be
// resumed and a finished run can be retried selectively.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

// Keyed is a record with a subject identifier.
type Keyed interface {
	Key() string
}

// LookupFunc performs the lookup for one item. Failures the lookup can
// classify belong inside the returned record; a returned error is treated
// as a worker failure and aborts the batch.
type LookupFunc[T any, R Keyed] func(ctx context.Context, item T) (R, error)

// Runner orchestrates one kind of lookup.
type Runner[T any, R Keyed] struct {
	name        string
	concurrency int
	key         func(T) string
	lookup      LookupFunc[T, R]

	// IsFailed, when set, counts records that carry an error in the summary.
	IsFailed func(R) bool

	// OnComplete, when set, receives the summary after every Run or Retry
	// that finished without a worker failure.
	OnComplete func(models.BatchSummary)
}

// NewRunner creates a Runner. key extracts the subject identifier of an
// input item; it must agree with R.Key for the record produced from it.
func NewRunner[T any, R Keyed](name string, concurrency int, key func(T) string, lookup LookupFunc[T, R]) *Runner[T, R] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner[T, R]{
		name:        name,
		concurrency: concurrency,
		key:         key,
		lookup:      lookup,
	}
}

// Run looks up every item and returns the new records in completion order.
//
// When logPath is set, each record is appended to it as soon as it is
// ready, and items whose key is already in the log are skipped without a
// lookup. Repeated keys within items are looked up once. All items are started at once; each waits on a shared semaphore
// before its lookup, so at most the configured number of lookups are in
// flight. The first worker failure cancels the rest and is returned.
func (r *Runner[T, R]) Run(ctx context.Context, items []T, logPath string) ([]R, error) {
	var out *store.Log
	done := map[string]struct{}{}
	if logPath != "" {
		out = store.NewLog(logPath)
		keys, err := loggedKeys[R](out)
		if err != nil {
			return nil, err
		}
		done = keys
	}

	total := len(items)
	summary := models.BatchSummary{Job: r.name, LogPath: logPath, Total: total}
	slog.Info("batch: starting", "job", r.name, "items", total, "already_done", len(done), "concurrency", r.concurrency)

	w := r.newWorkers(ctx, total, out)
	for i, item := range items {
		key := r.key(item)
		if _, ok := done[key]; ok {
			summary.Skipped++
			slog.Info("batch: already processed, skipping",
				"job", r.name, "progress", progress(i, total), "key", key)
			continue
		}
		done[key] = struct{}{}
		w.start(i, key, func(ctx context.Context) (R, error) { return r.lookup(ctx, item) })
	}

	records, err := w.wait()
	r.finish(&summary, records, err)
	return records, err
}

// Retry builds a new log from a finished one. Records whose key is already
// in the new log are left alone. Of the rest, those matching needsRetry are
// looked up again from the item toItem rebuilds, and the others are copied
// to the new log byte for byte. It returns the re-fetched records.
func (r *Runner[T, R]) Retry(ctx context.Context, prevPath, newPath string, needsRetry func(R) bool, toItem func(R) T) ([]R, error) {
	prev, err := store.ReadAll[R](prevPath)
	if err != nil {
		return nil, err
	}

	out := store.NewLog(newPath)
	done, err := loggedKeys[R](out)
	if err != nil {
		return nil, err
	}

	total := len(prev)
	summary := models.BatchSummary{Job: r.name + ".retry", LogPath: newPath, Total: total}
	slog.Info("batch: starting retry pass", "job", r.name, "records", total, "already_done", len(done))

	w := r.newWorkers(ctx, total, out)
	for i, e := range prev {
		key := e.Record.Key()
		if _, ok := done[key]; ok {
			summary.Skipped++
			slog.Info("batch: already in new log, skipping",
				"job", r.name, "progress", progress(i, total), "key", key)
			continue
		}
		done[key] = struct{}{}

		if !needsRetry(e.Record) {
			if err := out.AppendRaw(e.Raw); err != nil {
				w.abort(err)
				break
			}
			summary.Skipped++
			continue
		}
		item := toItem(e.Record)
		w.start(i, key, func(ctx context.Context) (R, error) { return r.lookup(ctx, item) })
	}

	records, err := w.wait()
	r.finish(&summary, records, err)
	return records, err
}

// workers is one errgroup of semaphore-bounded lookups.
type workers[R Keyed] struct {
	job     string
	total   int
	out     *store.Log
	sem     *semaphore.Weighted
	g       *errgroup.Group
	ctx     context.Context
	results chan R
}

func (r *Runner[T, R]) newWorkers(ctx context.Context, total int, out *store.Log) *workers[R] {
	g, gctx := errgroup.WithContext(ctx)
	return &workers[R]{
		job:     r.name,
		total:   total,
		out:     out,
		sem:     semaphore.NewWeighted(int64(r.concurrency)),
		g:       g,
		ctx:     gctx,
		results: make(chan R, total),
	}
}

// start launches one worker for the item at index i.
func (w *workers[R]) start(i int, key string, lookup func(context.Context) (R, error)) {
	w.g.Go(func() error {
		if err := w.sem.Acquire(w.ctx, 1); err != nil {
			return err
		}
		defer w.sem.Release(1)

		slog.Info("batch: processing", "job", w.job, "progress", progress(i, w.total), "key", key)
		rec, err := lookup(w.ctx)
		if err != nil {
			slog.Error("batch: worker failed", "job", w.job, "key", key, "error", err)
			return models.NewScrapeError(models.ErrCodeWorkerFailure,
				fmt.Sprintf("%s: lookup failed for %q", w.job, key), err)
		}
		if w.out != nil {
			if err := w.out.Append(rec); err != nil {
				slog.Error("batch: append failed", "job", w.job, "key", key, "error", err)
				return models.NewScrapeError(models.ErrCodeWorkerFailure,
					fmt.Sprintf("%s: append failed for %q", w.job, key), err)
			}
		}
		w.results <- rec
		return nil
	})
}

// abort records err as the batch failure.
func (w *workers[R]) abort(err error) {
	w.g.Go(func() error {
		return models.NewScrapeError(models.ErrCodeWorkerFailure, w.job+": aborted", err)
	})
}

// wait joins every worker and gathers the records they produced.
func (w *workers[R]) wait() ([]R, error) {
	err := w.g.Wait()
	close(w.results)
	records := make([]R, 0, len(w.results))
	for rec := range w.results {
		records = append(records, rec)
	}
	return records, err
}

func (r *Runner[T, R]) finish(summary *models.BatchSummary, records []R, err error) {
	summary.Processed = len(records)
	if r.IsFailed != nil {
		for _, rec := range records {
			if r.IsFailed(rec) {
				summary.Failed++
			}
		}
	}
	if err != nil {
		slog.Error("batch: aborted",
			"job", summary.Job, "processed", summary.Processed, "error", err)
		return
	}
	slog.Info("batch: complete",
		"job", summary.Job,
		"total", summary.Total,
		"skipped", summary.Skipped,
		"processed", summary.Processed,
		"failed", summary.Failed,
	)
	if r.OnComplete != nil {
		r.OnComplete(*summary)
	}
}

// loggedKeys returns the keys of every record in l, or an empty set when
// the log does not exist yet.
func loggedKeys[R Keyed](l *store.Log) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	if !l.Exists() {
		return keys, nil
	}
	entries, err := store.ReadAll[R](l.Path())
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		keys[e.Record.Key()] = struct{}{}
	}
	return keys, nil
}

func progress(i, total int) string {
	return fmt.Sprintf("%d of %d", i+1, total)
}
