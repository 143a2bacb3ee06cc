// Package webtext fetches a web page and extracts its readable text,
// feeding the summarize command.
package webtext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	maxFetchBytes  = 2 << 20 // 2 MB
	maxOutputChars = 8000
	fetchTimeout   = 15 * time.Second
)

// skipTags is the set of HTML elements whose subtrees are skipped during text extraction.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"aside":    true,
	"svg":      true,
	"iframe":   true,
}

// Fetch downloads url and returns its readable text content, bounded to
// a size a summarization prompt can carry.
func Fetch(ctx context.Context, url string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Kiri/1.0 (Discord Bot)")
	req.Header.Set("Accept", "text/html")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch URL: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	text := ExtractText(string(body))
	if len(text) > maxOutputChars {
		text = text[:maxOutputChars]
	}
	if text == "" {
		return "", fmt.Errorf("no readable text content found")
	}
	return text, nil
}

// ExtractText parses HTML and returns visible text, skipping non-content elements.
func ExtractText(htmlContent string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlContent))
	var sb strings.Builder
	var skipStack []string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(collapseWhitespace(sb.String()))

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if skipTags[tag] {
				skipStack = append(skipStack, tag)
			}

		case html.SelfClosingTagToken:
			// Self-closing skip tags (e.g. <svg/>) open and close immediately,
			// so they never go onto the stack.

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if skipTags[tag] && len(skipStack) > 0 {
				// Pop the last matching entry from the stack.
				for i := len(skipStack) - 1; i >= 0; i-- {
					if skipStack[i] == tag {
						skipStack = append(skipStack[:i], skipStack[i+1:]...)
						break
					}
				}
			}
			// Insert newline after block-level elements for readability.
			if isBlockTag(tag) && len(skipStack) == 0 {
				sb.WriteByte('\n')
			}

		case html.TextToken:
			if len(skipStack) == 0 {
				text := strings.TrimSpace(tokenizer.Token().Data)
				if text != "" {
					sb.WriteString(text)
					sb.WriteByte(' ')
				}
			}
		}
	}
}

// isBlockTag reports whether the tag is a block-level element that should
// produce a line break in extracted text.
func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "blockquote", "pre", "section", "article",
		"header", "main":
		return true
	}
	return false
}

// collapseWhitespace reduces runs of whitespace to a single space per line
// and collapses multiple blank lines into at most one.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var result []string
	blankCount := 0
	for _, line := range lines {
		trimmed := strings.Join(strings.Fields(line), " ")
		if trimmed == "" {
			blankCount++
			if blankCount <= 1 {
				result = append(result, "")
			}
			continue
		}
		blankCount = 0
		result = append(result, trimmed)
	}
	return strings.Join(result, "\n")
}
