package cleaner

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
)

// ExtractLinks returns the set of absolute http(s) links found in anchor
// hrefs. Values are kept exactly as written in the document: no
// resolution, normalization, or trimming, so "https://a.test" and
// "https://a.test/" are two links.
func ExtractLinks(rawHTML string) (map[string]struct{}, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "html is required", nil)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "failed to parse html", err)
	}

	links := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if !strings.HasPrefix(strings.TrimSpace(href), "http") {
			return
		}
		links[href] = struct{}{}
	})
	return links, nil
}

// SortedLinks returns the links in lexical order.
func SortedLinks(links map[string]struct{}) []string {
	out := make([]string, 0, len(links))
	for l := range links {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
