// Package metadata harvests per-tab page metadata (description, keywords,
// og:type, headings, a body preview) to sharpen classification. It is
// strictly best-effort: any failure is swallowed and the tab keeps empty
// metadata.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
	"golang.org/x/net/html"
)

const (
	maxBodyBytes   = 1 << 20 // 1 MB is plenty for head + preview
	previewLen     = 300
	defaultWorkers = 4
	fetchTimeout   = 15 * time.Second
)

var skipPrefixes = []string{"about:", "moz-extension:", "chrome:", "chrome-extension:", "file:", "resource:", "data:"}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Extractor fetches pages and fills Tab.Meta.
type Extractor struct {
	Client  *http.Client
	Workers int
}

// Enrich fetches metadata for every tab with a bounded fan-out. Extraction
// is read-only and order-independent, so tabs are processed concurrently;
// errors are logged and leave the tab's metadata empty.
func (e *Extractor) Enrich(ctx context.Context, tabs []*types.Tab) {
	workers := e.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, tab := range tabs {
		wg.Add(1)
		sem <- struct{}{}
		go func(t *types.Tab) {
			defer wg.Done()
			defer func() { <-sem }()
			meta, err := e.Extract(ctx, t.URL)
			if err != nil {
				applog.Info("metadata.skip", "url", t.URL, "reason", err.Error())
				return
			}
			t.Meta = meta
		}(tab)
	}
	wg.Wait()
}

// Extract fetches one URL and pulls out its metadata.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (types.PageMetadata, error) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(rawURL, prefix) {
			return types.PageMetadata{}, fmt.Errorf("non-HTTP URL")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.PageMetadata{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return types.PageMetadata{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.PageMetadata{}, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.PageMetadata{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	meta := parseHead(body)

	// Readability supplies what the meta tags don't: an excerpt and a
	// text preview of the main content.
	if u, err := url.Parse(rawURL); err == nil {
		if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil {
			if meta.Description == "" {
				meta.Description = article.Excerpt
			}
			if meta.BodyPreview == "" {
				meta.BodyPreview = preview(article.TextContent)
			}
		}
	}

	return meta, nil
}

// parseHead walks the HTML for meta tags and the first h1.
func parseHead(body []byte) types.PageMetadata {
	var meta types.PageMetadata

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return meta
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				name, property, content := attrs(n)
				switch {
				case name == "description" && meta.Description == "":
					meta.Description = content
				case name == "keywords" && meta.Keywords == "":
					meta.Keywords = content
				case property == "og:type" && meta.OGType == "":
					meta.OGType = content
				case property == "og:description" && meta.Description == "":
					meta.Description = content
				}
			case "h1":
				if meta.MainHeading == "" {
					meta.MainHeading = strings.TrimSpace(textOf(n))
				}
			case "script", "div":
				if itemType := attrVal(n, "itemtype"); itemType != "" && meta.SchemaType == "" {
					meta.SchemaType = schemaName(itemType)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

func attrs(n *html.Node) (name, property, content string) {
	for _, a := range n.Attr {
		switch a.Key {
		case "name":
			name = strings.ToLower(a.Val)
		case "property":
			property = strings.ToLower(a.Val)
		case "content":
			content = a.Val
		}
	}
	return
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// schemaName reduces "https://schema.org/NewsArticle" to "NewsArticle".
func schemaName(itemType string) string {
	if i := strings.LastIndex(itemType, "/"); i >= 0 {
		return itemType[i+1:]
	}
	return itemType
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > previewLen {
		text = text[:previewLen]
	}
	return text
}
