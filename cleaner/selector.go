package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/harvest/models"
)

// SelectText returns the trimmed text of every element matching the CSS
// selector, in document order. Empty texts are dropped.
func SelectText(rawHTML, selector string) ([]string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid css selector "+selector, err)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "failed to parse html", err)
	}

	var out []string
	for _, node := range cascadia.QueryAll(doc, sel) {
		if t := strings.TrimSpace(nodeText(node)); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// SelectHTML returns the concatenated outer HTML of every element matching
// the CSS selector, or "" when nothing matches.
func SelectHTML(rawHTML, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "invalid css selector "+selector, err)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, node := range cascadia.QueryAll(doc, sel) {
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// nodeText concatenates the text nodes under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
