// Package extract turns fetched bodies into analyzable text: HTML to
// prose with outbound links, PDF to plain text, both passed through
// Unicode normalization so downstream matching sees one spelling of
// every character.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Page is the distilled content of an HTML document.
type Page struct {
	Title string
	Text  string
	Links []string
}

// skipTags subtrees contribute no prose and are dropped entirely.
var skipTags = map[string]bool{
	"head": true, "script": true, "style": true, "noscript": true,
	"iframe": true, "svg": true, "nav": true, "header": true,
	"footer": true, "aside": true, "form": true, "button": true,
	"select": true,
}

// blockTags mark paragraph boundaries in the text walk.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"td": true, "th": true, "blockquote": true, "figcaption": true,
	"pre": true, "br": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true,
}

// HTML parses an HTML body, walks the DOM once for text with paragraph
// boundaries preserved as newlines, and resolves every anchor href
// against baseURL. Links are deduplicated in document order.
func HTML(baseURL string, body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	var page Page
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var b strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &b)
	}
	page.Text = Normalize(b.String())

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return
		}
		ref.Fragment = ""
		link := ref.String()
		if !seen[link] {
			seen[link] = true
			page.Links = append(page.Links, link)
		}
	})
	return page, nil
}

// collectText appends the text content of n, inserting newlines around
// block elements so paragraph structure survives extraction.
func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skipTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if block {
		b.WriteByte('\n')
	}
}

// Normalize applies NFKC normalization, collapses whitespace runs
// within lines, and limits consecutive blank lines to one. NFKC folds
// typographic variants (ligatures, non-breaking spaces, full-width
// digits) into the plain forms the matchers expect.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
