// Package web provides the remote-text fetch tool.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"slmassist/internal/logging"
	"slmassist/internal/tools"
)

// FetchTimeout is the hard bound on a fetch. The tool must return within
// this window even against an unreachable host.
const FetchTimeout = 5 * time.Second

const (
	maxBodyBytes = 2 << 20 // 2MB read limit
	maxChars     = 50000
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// FetchTool returns a tool that retrieves remote text over HTTP. HTML
// responses are reduced to readable text; plain text passes through.
// Output is bounded.
func FetchTool() *tools.Tool {
	return FetchToolWithTimeout(FetchTimeout)
}

// FetchToolWithTimeout is FetchTool with an explicit timeout, for tests.
func FetchToolWithTimeout(timeout time.Duration) *tools.Tool {
	client := &http.Client{Timeout: timeout}
	return &tools.Tool{
		Name:        "fetch",
		Description: "Fetch remote text over HTTP",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeFetch(ctx, client, timeout, args)
		},
		Schema: tools.Schema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {Type: "string", Description: "The URL to fetch"},
			},
		},
	}
}

// Register adds the fetch tool to a registry.
func Register(reg *tools.Registry) {
	reg.MustRegister(FetchTool())
}

func executeFetch(ctx context.Context, client *http.Client, timeout time.Duration, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	logging.ToolsDebug("fetch: url=%s timeout=%v", url, timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "slmassist/1.0")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	result := string(body)
	if strings.Contains(contentType, "text/html") {
		result, err = htmlToText(result)
		if err != nil {
			return "", fmt.Errorf("failed to extract text: %w", err)
		}
	}

	if len(result) > maxChars {
		result = result[:maxChars] + "\n\n[...truncated...]"
	}

	logging.Tools("fetch completed: %s (%d chars)", url, len(result))
	return result, nil
}

// htmlToText reduces an HTML document to its readable text content.
func htmlToText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	extractText(doc, &sb, 0)

	result := multiNewlinePattern.ReplaceAllString(sb.String(), "\n\n")
	result = multiSpacePattern.ReplaceAllString(result, " ")
	lines := strings.Split(result, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
			return
		case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}
}
