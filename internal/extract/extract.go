// Package extract pulls visible text, titles, and candidate links out of
// fetched HTML.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content is the textual payload of a page.
type Content struct {
	Title string
	Text  string
}

// Page strips script, style, and noscript nodes, then returns the page
// title and the remaining visible text with whitespace collapsed to one
// phrase per line.
func Page(body []byte) (Content, error) {
	if len(body) == 0 {
		return Content{}, fmt.Errorf("page body empty")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Content{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script,style,noscript").Remove()
	text := collapseText(doc.Text())

	return Content{Title: title, Text: text}, nil
}

// collapseText trims each line, splits runs of double spaces into
// separate phrases, and drops empty chunks.
func collapseText(raw string) string {
	var chunks []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, phrase := range strings.Split(line, "  ") {
			phrase = strings.TrimSpace(phrase)
			if phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

// Links returns candidate absolute URLs found in a[href] attributes,
// resolved against base with fragments stripped. javascript: and
// mailto: pseudo-links are ignored, duplicates are dropped, and at most
// max links are returned (0 means no limit).
func Links(body []byte, base *url.URL, max int) []*url.URL {
	if len(body) == 0 || base == nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []*url.URL

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}

		u, err := base.Parse(href)
		if err != nil {
			return true
		}
		u.Fragment = ""

		key := u.String()
		if _, exists := seen[key]; exists {
			return true
		}
		seen[key] = struct{}{}
		links = append(links, u)
		return max <= 0 || len(links) < max
	})

	return links
}
