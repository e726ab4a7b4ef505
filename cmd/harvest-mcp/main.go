// Command harvest-mcp exposes a running harvest server to MCP clients over
// stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/harvest/models"
)

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")

	if err := server.ServeStdio(newServer(newClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiURL, apiKey string) *resty.Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetTimeout(11 * time.Minute).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	return c
}

func newServer(client *resty.Client) *server.MCPServer {
	s := server.NewMCPServer(
		"harvest",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("fetch_page",
		mcp.WithDescription("Fetch a web page, falling back from plain HTTP to a headless browser when the site blocks simple clients. Returns the status and the page content."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to fetch"),
		),
		mcp.WithString("output_format",
			mcp.Description("'html' (default) or 'markdown'"),
			mcp.Enum("html", "markdown"),
		),
	), handleFetchPage(client))

	s.AddTool(mcp.NewTool("extract_links",
		mcp.WithDescription("List the distinct absolute http(s) links on a page, sorted."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to read links from"),
		),
	), handleExtractLinks(client))

	s.AddTool(mcp.NewTool("extract_text",
		mcp.WithDescription("Load a page in a browser and wait until an element holds real text, then return that text. Use for pages that fill in results with JavaScript."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to load"),
		),
		mcp.WithString("locator",
			mcp.Required(),
			mcp.Description("XPath of the element whose text is wanted"),
		),
		mcp.WithString("no_content_locator",
			mcp.Description("XPath of an element that signals the page has nothing to show"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait for the text (default: 60, max: 600)"),
		),
	), handleExtractText(client))

	return s
}

// post sends payload to path and decodes the reply into out. Non-2xx
// replies are decoded too; the caller inspects the success flag.
func post(ctx context.Context, client *resty.Client, path string, payload, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(out).
		SetError(out).
		Post(path)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 429 {
		return fmt.Errorf("API returned %s", resp.Status())
	}
	return nil
}

func errorText(fallback string, d *models.ErrorDetail) string {
	if d == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

func handleFetchPage(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		payload := models.PageRequest{
			URL:          url,
			OutputFormat: request.GetString("output_format", ""),
		}

		var out models.PageResponse
		if err := post(ctx, client, "/api/v1/fetch", payload, &out); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if out.Error != nil {
			return mcp.NewToolResultError(errorText("fetch failed", out.Error)), nil
		}
		if !out.Success {
			return mcp.NewToolResultError(fmt.Sprintf("%s returned %d %s: %s (via %s)",
				out.URL, out.StatusCode, out.ErrorName, out.ErrorMessage, out.EngineUsed)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Source: %s\nStatus: %d (via %s)\n\n%s",
			out.URL, out.StatusCode, out.EngineUsed, out.Content)), nil
	}
}

func handleExtractLinks(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		var out models.LinksResponse
		if err := post(ctx, client, "/api/v1/links", models.LinksRequest{URL: url}, &out); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !out.Success {
			return mcp.NewToolResultError(errorText("link extraction failed", out.Error)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d links:\n\n", out.Total)
		for _, l := range out.Links {
			sb.WriteString(l + "\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleExtractText(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		locator, err := request.RequireString("locator")
		if err != nil {
			return mcp.NewToolResultError("locator is required"), nil
		}
		payload := models.ExtractRequest{
			URL:              url,
			Locator:          locator,
			NoContentLocator: request.GetString("no_content_locator", ""),
			Timeout:          int(request.GetFloat("timeout", 0)),
		}

		var out models.ExtractResponse
		if err := post(ctx, client, "/api/v1/extract", payload, &out); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !out.Success {
			return mcp.NewToolResultError(errorText("extraction failed", out.Error)), nil
		}
		return mcp.NewToolResultText(out.Text), nil
	}
}
