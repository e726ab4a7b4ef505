package cleaner

import (
	"net/url"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// markdown is goroutine-safe and shared by every caller.
var markdown = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(
			table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
		),
	),
)

// ToMarkdown converts a fetched page to Markdown. Relative links are
// resolved against the host of pageURL.
func ToMarkdown(rawHTML, pageURL string) (string, error) {
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		return markdown.ConvertString(rawHTML, converter.WithDomain(u.Scheme+"://"+u.Host))
	}
	return markdown.ConvertString(rawHTML)
}
