// Package council looks up the local council of an organisation's address
// on the state council map, and the address and council an organisation
// lists on its SA Community page.
package council

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/use-agent/harvest/batch"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/tabular"
)

// Locators on the council lookup page and the SA Community org page.
const (
	resultsXPath   = `//*[@id="resultsPanel"]`
	noResultsXPath = `//*[@id="noResults"]/calcite-tip/div/div`
	addressXPath   = `//*[@id="content-area"]/div/div[1]/div[2]/div[2]/div/div[1]/div[1]/div[2]`

	councilPrefix = "Council Name"
	wardPrefix    = "Electoral Ward"
	councilLabel  = "Council:"

	blankAddressMessage = "address is null or empty"
)

// placeholders are texts the results panel shows before the lookup settles.
var placeholders = []string{"Results:1", "", "Loading..."}

// TextExtractor reads rendered text from a page. *scraper.Extractor
// implements it.
type TextExtractor interface {
	Extract(ctx context.Context, req *models.FetchRequest) (string, error)
}

// Lookup is the outcome of one council-by-address lookup.
type Lookup struct {
	Address      string
	Council      string
	Ward         string
	Text         string
	HasError     bool
	ErrorMessage string
}

// Service runs council and address lookups.
type Service struct {
	extractor   TextExtractor
	http        *resty.Client
	cfg         config.CouncilConfig
	headless    bool
	concurrency int

	// OnComplete is passed to every batch the service runs.
	OnComplete func(models.BatchSummary)
}

// Options configures a Service.
type Options struct {
	Council     config.CouncilConfig
	Headless    bool
	Concurrency int
	HTTPTimeout time.Duration
	UserAgent   string
}

// NewService creates a Service.
func NewService(x TextExtractor, opts Options) *Service {
	client := resty.New()
	if opts.HTTPTimeout > 0 {
		client.SetTimeout(opts.HTTPTimeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Service{
		extractor:   x,
		http:        client,
		cfg:         opts.Council,
		headless:    opts.Headless,
		concurrency: opts.Concurrency,
	}
}

// LookupURL returns the council map URL that searches for address.
func (s *Service) LookupURL(address string) string {
	return fmt.Sprintf("%s?appid=%s&find=%s", s.cfg.LookupURL, s.cfg.AppID, url.QueryEscape(address))
}

// FindCouncilByAddress searches the council map for address. Lookup
// failures are reported in the result; only a blank address or a canceled
// context is returned as an error.
func (s *Service) FindCouncilByAddress(ctx context.Context, address string) (Lookup, error) {
	if strings.TrimSpace(address) == "" {
		return Lookup{}, models.NewScrapeError(models.ErrCodeInvalidInput, "address is required", nil)
	}

	res := Lookup{Address: address}
	slog.Info("council: fetching council", "address", address)

	text, err := s.extractor.Extract(ctx, &models.FetchRequest{
		URL:              s.LookupURL(address),
		Headless:         s.headless,
		Exclude:          placeholders,
		Timeout:          s.cfg.Timeout,
		ContentLocator:   resultsXPath,
		NoContentLocator: noResultsXPath,
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		slog.Error("council: lookup failed", "address", address, "error", err)
		res.HasError = true
		res.ErrorMessage = err.Error()
		return res, nil
	}

	res.Text = text
	if text != "" {
		lines := strings.Split(text, "\n")
		res.Council = valueAfterPrefix(lines, councilPrefix)
		res.Ward = valueAfterPrefix(lines, wardPrefix)
	}
	return res, nil
}

// valueAfterPrefix returns the first line starting with prefix, with the
// prefix removed.
func valueAfterPrefix(lines []string, prefix string) string {
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// Record builds the unscraped record for one export row.
func Record(row tabular.CUExportRow) models.ScrapeRecord {
	return models.ScrapeRecord{
		OrgID:             row.ID,
		Address:           row.Address(),
		Council:           row.Council,
		ElectorateState:   row.ElectorateState,
		ElectorateFederal: row.ElectorateFederal,
	}
}

// scrape fills the scraped fields of rec. Blank addresses are recorded as
// failures without a lookup.
func (s *Service) scrape(ctx context.Context, rec models.ScrapeRecord) (models.ScrapeRecord, error) {
	address := strings.TrimSpace(rec.Address)
	if address == "" {
		rec.SetError(blankAddressMessage)
		return rec, nil
	}

	l, err := s.FindCouncilByAddress(ctx, address)
	if err != nil {
		return rec, err
	}
	rec.HasError = l.HasError
	rec.ErrorMessage = l.ErrorMessage
	rec.CouncilScraped = l.Council
	rec.ElectorateStateScraped = l.Ward
	rec.IsCouncilCorrect = rec.Council == l.Council
	rec.ScrapedText = l.Text
	return rec, nil
}

func (s *Service) councilRunner() *batch.Runner[models.ScrapeRecord, models.ScrapeRecord] {
	r := batch.NewRunner("councils", s.concurrency, models.ScrapeRecord.Key, s.scrape)
	r.IsFailed = func(rec models.ScrapeRecord) bool { return rec.HasError }
	r.OnComplete = s.OnComplete
	return r
}

// ScrapeCouncils looks up the council of every export row. With a log
// path, rows already in the log are skipped and new records are appended.
func (s *Service) ScrapeCouncils(ctx context.Context, rows []tabular.CUExportRow, logPath string) ([]models.ScrapeRecord, error) {
	items := make([]models.ScrapeRecord, len(rows))
	for i, row := range rows {
		items[i] = Record(row)
	}
	return s.councilRunner().Run(ctx, items, logPath)
}

// RetryCouncils writes newPath from the records in prevPath, looking up
// again the ones that found no results or failed for a real address.
func (s *Service) RetryCouncils(ctx context.Context, prevPath, newPath string) ([]models.ScrapeRecord, error) {
	return s.councilRunner().Retry(ctx, prevPath, newPath, models.ScrapeRecord.NeedsRetry,
		func(rec models.ScrapeRecord) models.ScrapeRecord { return rec })
}

// FindAddress reads the address shown on an SA Community org page.
func (s *Service) FindAddress(ctx context.Context, pageURL string) (string, error) {
	return s.extractor.Extract(ctx, &models.FetchRequest{
		URL:            pageURL,
		Headless:       s.headless,
		Timeout:        s.cfg.Timeout,
		ContentLocator: addressXPath,
	})
}

// CouncilFromSACommunity returns the council an SA Community org page
// lists after its "Council:" label, or "" when there is none. The page
// layout varies, so the label is located by text rather than by path.
func (s *Service) CouncilFromSACommunity(ctx context.Context, pageURL string) (string, error) {
	if err := models.ValidateURL(pageURL); err != nil {
		return "", err
	}
	res, err := s.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeNavigation, "fetch "+pageURL, err)
	}
	return councilFromHTML(res.Body())
}

func councilFromHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeInternal, "parse page", err)
	}
	div := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Children().Length() == 0 && strings.Contains(s.Text(), councilLabel)
	}).First()
	if div.Length() == 0 {
		return "", nil
	}
	text := div.Text()
	return strings.TrimSpace(text[strings.Index(text, councilLabel)+len(councilLabel):]), nil
}

// FindAddresses reads the address and council of every SA Community page
// in urls. Unlike council lookups, a failure on any page aborts the batch.
func (s *Service) FindAddresses(ctx context.Context, urls []string, logPath string) ([]models.ScrapeRecord, error) {
	r := batch.NewRunner("addresses", s.concurrency,
		func(u string) string { return u },
		func(ctx context.Context, u string) (models.ScrapeRecord, error) {
			addr, err := s.FindAddress(ctx, u)
			if err != nil {
				return models.ScrapeRecord{}, fmt.Errorf("find address: %w", err)
			}
			council, err := s.CouncilFromSACommunity(ctx, u)
			if err != nil {
				return models.ScrapeRecord{}, fmt.Errorf("find council: %w", err)
			}
			return models.ScrapeRecord{URL: u, Address: addr, CouncilInSACommunity: council}, nil
		})
	r.OnComplete = s.OnComplete
	return r.Run(ctx, urls, logPath)
}

// OrgURL returns the SA Community page of an organisation id.
func (s *Service) OrgURL(id string) string {
	return strings.TrimRight(s.cfg.SACommunityURL, "/") + "/org/" + url.PathEscape(strings.TrimSpace(id))
}
