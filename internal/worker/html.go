package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// maxCrawlBytes bounds how much of a page we read. Visibility signals live
// in the head and the first screens of content.
const maxCrawlBytes = 2 << 20

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Re       = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	metaDescRe = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
	schemaRe   = regexp.MustCompile(`"@type"\s*:\s*"([^"]+)"`)
	tagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptRe   = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// pageContent is what one crawl extracted from a page.
type pageContent struct {
	Title           *string
	H1Text          *string
	MetaDescription *string
	SchemaTypes     []string
	Text            string
	WordCount       int
	LastModified    *time.Time
}

// crawl fetches a URL and extracts the structure signals assistants key on.
func (w *Workers) crawl(ctx context.Context, pageURL string) (*pageContent, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		pageURL = "https://" + pageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "ColumbusBot/1.0 (+https://columbushq.com/bot)")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCrawlBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	content := parseHTML(string(body))

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			utc := t.UTC()
			content.LastModified = &utc
		}
	}

	return content, nil
}

func parseHTML(html string) *pageContent {
	c := &pageContent{SchemaTypes: []string{}}

	if m := titleRe.FindStringSubmatch(html); m != nil {
		t := cleanText(m[1])
		if t != "" {
			c.Title = &t
		}
	}
	if m := h1Re.FindStringSubmatch(html); m != nil {
		t := cleanText(m[1])
		if t != "" {
			c.H1Text = &t
		}
	}
	if m := metaDescRe.FindStringSubmatch(html); m != nil {
		t := cleanText(m[1])
		if t != "" {
			c.MetaDescription = &t
		}
	}

	seen := make(map[string]bool)
	for _, m := range schemaRe.FindAllStringSubmatch(html, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			c.SchemaTypes = append(c.SchemaTypes, m[1])
		}
	}

	c.Text = cleanText(scriptRe.ReplaceAllString(html, " "))
	if c.Text != "" {
		c.WordCount = len(strings.Fields(c.Text))
	}

	return c
}

func cleanText(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
