package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

// addressLookup fakes a council lookup and counts calls.
type addressLookup struct {
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
	failOn   string
}

func (f *addressLookup) lookup(ctx context.Context, address string) (models.ScrapeRecord, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return models.ScrapeRecord{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if address == f.failOn {
		return models.ScrapeRecord{}, errors.New("selector panic")
	}

	rec := models.ScrapeRecord{Address: address, ScrapedText: "Council Name Fresh " + address}
	if strings.HasPrefix(address, "bad") {
		rec.SetError("lookup page unreachable")
	}
	return rec, nil
}

func addresses(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%d Main St", i+1)
	}
	return out
}

func newTestRunner(f *addressLookup, concurrency int) *Runner[string, models.ScrapeRecord] {
	return NewRunner("test", concurrency, func(a string) string { return a }, f.lookup)
}

func keysOf(t *testing.T, path string) map[string]int {
	t.Helper()
	recs, err := store.Records[models.ScrapeRecord](path)
	require.NoError(t, err)
	keys := map[string]int{}
	for _, r := range recs {
		keys[r.Key()]++
	}
	return keys
}

func TestRun_ConcurrencyBound(t *testing.T) {
	f := &addressLookup{delay: 20 * time.Millisecond}
	r := newTestRunner(f, 2)

	recs, err := r.Run(context.Background(), addresses(10), "")
	require.NoError(t, err)
	assert.Len(t, recs, 10)
	assert.EqualValues(t, 10, f.calls.Load())
	assert.LessOrEqual(t, f.maxSeen.Load(), int64(2))
}

func TestRun_IdempotentResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "councils.jsonl")
	items := addresses(6)

	f := &addressLookup{}
	_, err := newTestRunner(f, 3).Run(context.Background(), items, path)
	require.NoError(t, err)
	first := keysOf(t, path)
	assert.EqualValues(t, 6, f.calls.Load())

	again := &addressLookup{}
	recs, err := newTestRunner(again, 3).Run(context.Background(), items, path)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.EqualValues(t, 0, again.calls.Load())
	assert.Equal(t, first, keysOf(t, path))
}

func TestRun_ResumesPartialLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "councils.jsonl")
	items := addresses(5)

	l := store.NewLog(path)
	require.NoError(t, l.Append(models.ScrapeRecord{Address: items[0]}))
	require.NoError(t, l.Append(models.ScrapeRecord{Address: items[3]}))

	f := &addressLookup{}
	recs, err := newTestRunner(f, 2).Run(context.Background(), items, path)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.EqualValues(t, 3, f.calls.Load())

	keys := keysOf(t, path)
	assert.Len(t, keys, 5)
	for _, n := range keys {
		assert.Equal(t, 1, n)
	}
}

func TestRun_ResumesAfterTruncatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "councils.jsonl")
	items := addresses(3)
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"address":"`+items[0]+`","has_error":false}`+"\n"+`{"address":"`+items[1]+`","addr`), 0o644))

	f := &addressLookup{}
	recs, err := newTestRunner(f, 2).Run(context.Background(), items, path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, map[string]int{items[0]: 1, items[1]: 1, items[2]: 1}, keysOf(t, path))

	again := &addressLookup{}
	recs, err = newTestRunner(again, 2).Run(context.Background(), items, path)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.EqualValues(t, 0, again.calls.Load())
}

func TestRun_DuplicateItemsAreLookedUpOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "councils.jsonl")
	items := []string{"1 Main St", "2 Main St", "1 Main St", "1 Main St"}

	f := &addressLookup{}
	recs, err := newTestRunner(f, 2).Run(context.Background(), items, path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, map[string]int{"1 Main St": 1, "2 Main St": 1}, keysOf(t, path))
}

func TestRun_RecordErrorsDoNotAbort(t *testing.T) {
	f := &addressLookup{}
	r := newTestRunner(f, 2)
	var summary models.BatchSummary
	r.IsFailed = func(rec models.ScrapeRecord) bool { return rec.HasError }
	r.OnComplete = func(s models.BatchSummary) { summary = s }

	recs, err := r.Run(context.Background(), []string{"1 Main St", "bad 2", "3 Main St"}, "")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_WorkerFailureAbortsBatch(t *testing.T) {
	f := &addressLookup{failOn: "3 Main St", delay: 5 * time.Millisecond}
	r := newTestRunner(f, 2)
	completed := false
	r.OnComplete = func(models.BatchSummary) { completed = true }

	_, err := r.Run(context.Background(), addresses(20), "")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeWorkerFailure))
	assert.Contains(t, err.Error(), "selector panic")
	assert.False(t, completed)
}

func TestRun_CorruptLogFailsBeforeAnyLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "councils.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n{}\n"), 0o644))

	f := &addressLookup{}
	_, err := newTestRunner(f, 2).Run(context.Background(), addresses(3), path)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeStorage))
	assert.EqualValues(t, 0, f.calls.Load())
}

func writeRaw(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestRetry_OnlyFlaggedRecordsAreRefetched(t *testing.T) {
	dir := t.TempDir()
	prevPath := filepath.Join(dir, "prev.jsonl")
	newPath := filepath.Join(dir, "new.jsonl")

	carried := []string{
		`{"org_id":"1","address":"1 Main St","scraped_text":"Council Name A","has_error":false,"error_message":""}`,
		`{"org_id":"3",  "address":"3 Main St","scraped_text":"Council Name C"}`,
		`{"org_id":"5","address":"","has_error":true,"error_message":"address is null or empty"}`,
	}
	writeRaw(t, prevPath,
		carried[0],
		`{"org_id":"2","address":"2 Main St","scraped_text":"No results found. Check the address"}`,
		carried[1],
		`{"org_id":"4","address":"4 Main St","has_error":true,"error_message":"timeout"}`,
		carried[2],
	)

	f := &addressLookup{}
	r := NewRunner("councils", 2,
		func(rec models.ScrapeRecord) string { return rec.Key() },
		func(ctx context.Context, rec models.ScrapeRecord) (models.ScrapeRecord, error) {
			fresh, err := f.lookup(ctx, rec.Address)
			fresh.OrgID = rec.OrgID
			return fresh, err
		})

	recs, err := r.Retry(context.Background(), prevPath, newPath,
		models.ScrapeRecord.NeedsRetry,
		func(rec models.ScrapeRecord) models.ScrapeRecord { return rec })
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.EqualValues(t, 2, f.calls.Load())

	entries, err := store.ReadAll[models.ScrapeRecord](newPath)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	var rawLines []string
	fresh := map[string]string{}
	for _, e := range entries {
		rawLines = append(rawLines, string(e.Raw))
		if strings.HasPrefix(e.Record.ScrapedText, "Council Name Fresh") {
			fresh[e.Record.OrgID] = e.Record.ScrapedText
		}
	}
	for _, line := range carried {
		assert.Contains(t, rawLines, line)
	}
	assert.Equal(t, map[string]string{
		"2": "Council Name Fresh 2 Main St",
		"4": "Council Name Fresh 4 Main St",
	}, fresh)
}

func TestRetry_SkipsKeysAlreadyInNewLog(t *testing.T) {
	dir := t.TempDir()
	prevPath := filepath.Join(dir, "prev.jsonl")
	newPath := filepath.Join(dir, "new.jsonl")

	writeRaw(t, prevPath,
		`{"org_id":"1","address":"1 Main St","scraped_text":"No results found."}`,
		`{"org_id":"2","address":"2 Main St","scraped_text":"No results found."}`,
	)
	writeRaw(t, newPath, `{"org_id":"1","address":"1 Main St","scraped_text":"Council Name Done"}`)

	f := &addressLookup{}
	r := NewRunner("councils", 2,
		func(rec models.ScrapeRecord) string { return rec.Key() },
		func(ctx context.Context, rec models.ScrapeRecord) (models.ScrapeRecord, error) {
			fresh, err := f.lookup(ctx, rec.Address)
			fresh.OrgID = rec.OrgID
			return fresh, err
		})

	_, err := r.Retry(context.Background(), prevPath, newPath,
		models.ScrapeRecord.NeedsRetry,
		func(rec models.ScrapeRecord) models.ScrapeRecord { return rec })
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls.Load())

	data, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
	assert.Equal(t, map[string]int{"1": 1, "2": 1}, keysOf(t, newPath))
}

func TestRetry_MissingPreviousLog(t *testing.T) {
	f := &addressLookup{}
	r := newTestRunner(f, 1)
	_, err := r.Retry(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), filepath.Join(t.TempDir(), "new.jsonl"),
		models.ScrapeRecord.NeedsRetry,
		func(rec models.ScrapeRecord) string { return rec.Address })
	assert.True(t, models.IsCode(err, models.ErrCodeStorage))
}

func TestRun_ConcurrentAppendsAreWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	f := &addressLookup{}

	var mu sync.Mutex
	seen := map[string]bool{}
	r := NewRunner("test", 8, func(a string) string { return a },
		func(ctx context.Context, a string) (models.ScrapeRecord, error) {
			mu.Lock()
			seen[a] = true
			mu.Unlock()
			return f.lookup(ctx, a)
		})

	_, err := r.Run(context.Background(), addresses(40), path)
	require.NoError(t, err)
	assert.Len(t, seen, 40)
	assert.Len(t, keysOf(t, path), 40)
}
