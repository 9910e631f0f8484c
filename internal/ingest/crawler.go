package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/studyhall/ragchat/internal/log"
)

// Crawl limits. The textbook site is small, these are safety rails.
const (
	defaultMaxPages   = 500
	crawlDepth        = 5
	crawlParallelism  = 2
	crawlDelay        = 200 * time.Millisecond
	minExtractedRunes = 80
)

// CrawlConfig bounds a docs-site crawl.
type CrawlConfig struct {
	StartURL string
	MaxPages int
}

// Crawl walks a docs site from the start URL, staying on its host, and
// extracts the main content of each page. Readability does the extraction;
// pages it cannot handle fall back to a selector-based scrape.
func Crawl(cfg CrawlConfig, logger log.Logger) ([]Document, error) {
	start, err := url.Parse(cfg.StartURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q", cfg.StartURL)
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	c := colly.NewCollector(
		colly.AllowedDomains(start.Hostname()),
		colly.MaxDepth(crawlDepth),
		colly.Async(true),
	)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: crawlParallelism,
		Delay:       crawlDelay,
	}); err != nil {
		return nil, fmt.Errorf("configuring crawl limits: %w", err)
	}

	var (
		mu    sync.Mutex
		docs  []Document
		pages int
	)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		mu.Lock()
		full := pages >= maxPages
		mu.Unlock()
		if full {
			return
		}
		_ = e.Request.Visit(e.Attr("href"))
	})

	c.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}

		doc, ok := extractPage(r.Body, r.Request.URL)
		if !ok {
			logger.Debug("no extractable content", "url", r.Request.URL)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if pages >= maxPages {
			return
		}
		pages++
		docs = append(docs, doc)
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Warn("crawl request failed", "url", r.Request.URL, "error", err)
	})

	if err := c.Visit(cfg.StartURL); err != nil {
		return nil, fmt.Errorf("starting crawl at %s: %w", cfg.StartURL, err)
	}
	c.Wait()

	logger.Info("crawl finished", "start", cfg.StartURL, "documents", len(docs))
	return docs, nil
}

// extractPage pulls the main content out of one HTML page.
func extractPage(body []byte, pageURL *url.URL) (Document, bool) {
	title, text := "", ""

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		title = article.Title
		text = strings.TrimSpace(article.TextContent)
	}

	if len([]rune(text)) < minExtractedRunes {
		title2, text2 := extractWithSelectors(body)
		if title == "" {
			title = title2
		}
		text = text2
	}
	if len([]rune(text)) < minExtractedRunes {
		return Document{}, false
	}

	return Document{
		ChapterID:    chapterIDFromURL(pageURL),
		ChapterTitle: title,
		Text:         text,
	}, true
}

// extractWithSelectors is the fallback for pages readability rejects. Docs
// sites keep prose under main or article elements.
func extractWithSelectors(body []byte) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("h1").First().Text())
	for _, sel := range []string{"main", "article", "body"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return title, spaceRunsRe.ReplaceAllString(t, " ")
		}
	}
	return title, ""
}

// chapterIDFromURL maps a docs URL path onto a chapter id, reusing the
// filename convention. "/docs/module-2/1.3-sensors" yields "1.3".
func chapterIDFromURL(u *url.URL) string {
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return "index"
	}
	if id := ChapterIDFromPath(p); id != "" {
		return id
	}
	return path.Base(p)
}
