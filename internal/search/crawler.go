package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"deepresearch/internal/errors"
	"deepresearch/internal/logging"
)

const (
	crawlTimeout    = 20 * time.Second
	maxPageBytes    = 5 << 20
	maxExtractChars = 15000
	crawlUserAgent  = "Mozilla/5.0 (compatible; deepresearch/1.0)"
)

// Crawler fetches pages for search hits that arrive without inline content
// and extracts their readable text.
type Crawler struct {
	httpClient *http.Client
	logger     logging.Logger
}

// NewCrawler creates a crawler with sane timeouts.
func NewCrawler(logger logging.Logger) *Crawler {
	return &Crawler{
		httpClient: &http.Client{Timeout: crawlTimeout},
		logger:     logging.OrNop(logger),
	}
}

// Fetch downloads a page and returns its extracted text.
func (c *Crawler) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errors.NewPermanentError(err, fmt.Sprintf("bad crawl url %q", pageURL))
	}
	req.Header.Set("User-Agent", crawlUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransientError(err, fmt.Sprintf("crawl failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.FromHTTPStatus(resp.StatusCode, "crawl", "")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text") {
		return "", errors.NewPermanentError(
			fmt.Errorf("unsupported content type %q", contentType), "page is not text")
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	text, err := extractText(body)
	if err != nil {
		return "", errors.NewTransientError(err, "failed to parse page")
	}
	c.logger.Debug("crawled %s: %d chars", pageURL, len(text))
	return text, nil
}

// extractText pulls readable content out of an HTML document: headings,
// paragraphs, and list items, with boilerplate containers removed.
func extractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer, aside, form, iframe").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if b.Len() >= maxExtractChars {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			b.WriteString("- ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	})

	text := strings.TrimSpace(b.String())
	if len(text) > maxExtractChars {
		text = text[:maxExtractChars]
	}
	if text == "" {
		// Fall back to the whole body for pages without semantic markup.
		text = strings.TrimSpace(doc.Find("body").Text())
		if len(text) > maxExtractChars {
			text = text[:maxExtractChars]
		}
	}
	return text, nil
}
