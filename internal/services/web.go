package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const maxWebBodyBytes = 5 * 1024 * 1024

// WebExtractService fetches a page and extracts its readable article text.
// Readability is tried first; when it cannot find an article node the raw
// HTML is tag-stripped instead. "No text" is an empty result, not an error.
type WebExtractService struct {
	httpClient *http.Client
}

func NewWebExtractService() *WebExtractService {
	return &WebExtractService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *WebExtractService) Extract(ctx context.Context, rawURL string) (text, title string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch %s: http %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}

	htmlStr := string(body)
	title = extractHTMLTitle(htmlStr)

	parsedURL, _ := urlpkg.Parse(rawURL)
	article, rerr := readability.FromReader(strings.NewReader(htmlStr), parsedURL)
	if rerr == nil {
		if article.Title != "" {
			title = article.Title
		}
		if cleaned := CleanText(article.TextContent); cleaned != "" {
			return cleaned, title, nil
		}
	}

	return StripHTML(htmlStr), title, nil
}

var (
	htmlTitlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptStylePat    = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	htmlEntityNumeric = regexp.MustCompile(`&#\d+;`)
)

func extractHTMLTitle(htmlStr string) string {
	if m := htmlTitlePattern.FindStringSubmatch(htmlStr); len(m) > 1 {
		return CleanText(unescapeXMLEntities(m[1]))
	}
	return ""
}

// StripHTML is the crude fallback: drop script/style blocks, then every tag,
// then collapse whitespace.
func StripHTML(htmlStr string) string {
	s := scriptStylePat.ReplaceAllString(htmlStr, " ")
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = unescapeXMLEntities(s)
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = htmlEntityNumeric.ReplaceAllString(s, " ")
	return CleanText(s)
}
