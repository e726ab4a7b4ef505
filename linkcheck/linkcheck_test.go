package linkcheck

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
	"github.com/use-agent/harvest/tabular"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*models.FetchResponse
	calls map[string]int
}

func newFakeFetcher(pages map[string]*models.FetchResponse) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: map[string]int{}}
}

func (f *fakeFetcher) Dispatch(ctx context.Context, u string) (*models.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "fetch canceled", err)
	}
	if err := models.ValidateURL(u); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[u]++
	if resp, ok := f.pages[u]; ok {
		out := *resp
		out.URL = u
		return &out, nil
	}
	return &models.FetchResponse{URL: u, StatusCode: 404, ErrorName: "NOT_FOUND", ErrorMessage: "Not Found", Engine: "chromedp"}, nil
}

func ok(body string) *models.FetchResponse {
	return &models.FetchResponse{StatusCode: 200, Body: body, Engine: "http"}
}

func TestCheckURL(t *testing.T) {
	f := newFakeFetcher(map[string]*models.FetchResponse{
		"https://org.test/1": ok(`<a href="https://b.test">b</a><a href="/rel">r</a><a href="https://a.test">a</a>`),
		"https://a.test":     ok("<p>a</p>"),
	})
	c := New(f, nil, 2)

	res, err := c.CheckURL(context.Background(), "https://org.test/1")
	require.NoError(t, err)
	require.Len(t, res.Responses, 3)

	assert.Equal(t, "https://org.test/1", res.Responses[0].URL)
	assert.Equal(t, "https://a.test", res.Responses[1].URL)
	assert.Equal(t, 200, res.Responses[1].StatusCode)
	assert.Equal(t, "https://b.test", res.Responses[2].URL)
	assert.Equal(t, 404, res.Responses[2].StatusCode)
	for _, r := range res.Responses {
		assert.Equal(t, "https://org.test/1", r.BaseURL)
		assert.Empty(t, r.Body)
	}
}

func TestCheckURL_BaseNotOK(t *testing.T) {
	f := newFakeFetcher(nil)
	res, err := New(f, nil, 1).CheckURL(context.Background(), "https://gone.test")
	require.NoError(t, err)
	require.Len(t, res.Responses, 1)
	assert.Equal(t, "NOT_FOUND", res.Responses[0].ErrorName)
	assert.Equal(t, 1, f.calls["https://gone.test"])
}

func TestCheckURL_EmptyPage(t *testing.T) {
	f := newFakeFetcher(map[string]*models.FetchResponse{"https://blank.test": ok("")})
	res, err := New(f, nil, 1).CheckURL(context.Background(), "https://blank.test")
	require.NoError(t, err)
	assert.Len(t, res.Responses, 1)
}

func TestCheckURL_CachesChildFetches(t *testing.T) {
	body := `<a href="https://shared.test">s</a>`
	f := newFakeFetcher(map[string]*models.FetchResponse{
		"https://org.test/1":  ok(body),
		"https://org.test/2":  ok(body),
		"https://shared.test": ok("shared"),
	})
	c := cache.New(10, time.Hour)
	defer c.Close()
	checker := New(f, c, 1)

	for _, u := range []string{"https://org.test/1", "https://org.test/2"} {
		res, err := checker.CheckURL(context.Background(), u)
		require.NoError(t, err)
		require.Len(t, res.Responses, 2)
		assert.Equal(t, u, res.Responses[1].BaseURL)
	}
	assert.Equal(t, 1, f.calls["https://shared.test"])
}

func TestCheckURL_MalformedLinkIsReportedNotFatal(t *testing.T) {
	f := newFakeFetcher(map[string]*models.FetchResponse{
		"https://org.test/1": ok(`<a href="http:/broken">x</a><a href="https://a.test">a</a>`),
		"https://a.test":     ok("<p>a</p>"),
	})

	res, err := New(f, nil, 1).CheckURL(context.Background(), "https://org.test/1")
	require.NoError(t, err)
	require.Len(t, res.Responses, 3)
	assert.Equal(t, "http:/broken", res.Responses[1].URL)
	assert.Equal(t, models.StatusInternalError, res.Responses[1].StatusCode)
	assert.Equal(t, models.ErrCodeInvalidInput, res.Responses[1].ErrorName)
	assert.Equal(t, "https://org.test/1", res.Responses[1].BaseURL)
	assert.Equal(t, "https://a.test", res.Responses[2].URL)
	assert.Equal(t, 200, res.Responses[2].StatusCode)
}

func TestCheckURL_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newFakeFetcher(nil), nil, 1).CheckURL(ctx, "https://a.test")
	assert.True(t, models.IsCode(err, models.ErrCodeTimeout))
}

func TestCheckURLs(t *testing.T) {
	f := newFakeFetcher(map[string]*models.FetchResponse{
		"https://org.test/1": ok(`<a href="https://a.test">a</a>`),
		"https://org.test/2": ok(`nothing`),
		"https://a.test":     ok("a"),
	})
	c := New(f, nil, 2)
	var summary models.BatchSummary
	c.OnComplete = func(s models.BatchSummary) { summary = s }

	path := filepath.Join(t.TempDir(), "links.jsonl")
	bases := []string{"https://org.test/1", "https://org.test/2", "https://org.test/3"}
	rows, err := c.CheckURLs(context.Background(), bases, path)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	logged, err := store.Records[models.LinkCheckResult](path)
	require.NoError(t, err)
	assert.Len(t, logged, 3)

	rows, err = c.CheckURLs(context.Background(), bases, path)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, f.calls["https://org.test/1"])
}

func TestOrgURLs(t *testing.T) {
	rows := []tabular.CUExportRow{{ID: "1"}, {ID: "22"}}
	got := OrgURLs(rows, func(id string) string { return "https://sacommunity.test/org/" + id })
	assert.Equal(t, []string{"https://sacommunity.test/org/1", "https://sacommunity.test/org/22"}, got)
}
