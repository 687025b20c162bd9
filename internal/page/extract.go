package page

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/contentrelay/internal/content"
)

// boilerplateSelectors are removed before any text is read.
const boilerplateSelectors = "script, style, noscript, template, iframe, svg, canvas, " +
	"nav, header, footer, aside, form, button, " +
	"[role='navigation'], [role='banner'], [role='contentinfo'], [role='complementary'], [aria-hidden='true'], " +
	".ad, .ads, .advert, .advertisement, .ad-container, .ad-slot, [id^='google_ads'], [data-ad], " +
	".social-share, .share-buttons, .sharing, .social-links, .share-bar, " +
	".cookie-banner, .cookie-consent, .cookie-notice, #cookie-banner, #onetrust-consent-sdk, .gdpr, " +
	".newsletter, .subscribe, .related-posts, .comments, #comments, .sidebar"

// blockElements force a line break in extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "blockquote": true, "pre": true,
	"table": true, "tr": true, "br": true, "hr": true, "figure": true, "figcaption": true,
	"dd": true, "dt": true, "dl": true,
}

var (
	horizontalSpaceRE = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLinesRE      = regexp.MustCompile(`\n{3,}`)
)

// Extraction is what Extract reads out of a rendered document.
type Extraction struct {
	Text     string
	HTML     string
	Markdown string
	Metadata content.PageMetadata
}

// Extract strips boilerplate from doc and returns the main content using the
// profile's selectors, falling back to the whole body.
func Extract(doc string, profile Profile, minContentChars int) (Extraction, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse html: %w", err)
	}

	// Metadata lives in <head>, some of which is removed below.
	meta := extractMetadata(d)

	d.Find(boilerplateSelectors).Remove()

	node := selectContent(d, profile.Selectors, minContentChars)
	text := NormalizeWhitespace(nodeText(node))

	fragment, err := goquery.OuterHtml(node)
	if err != nil {
		return Extraction{}, fmt.Errorf("render content html: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return Extraction{}, fmt.Errorf("converting HTML to markdown: %w", err)
	}

	return Extraction{
		Text:     text,
		HTML:     fragment,
		Markdown: strings.TrimSpace(markdown),
		Metadata: meta,
	}, nil
}

func selectContent(d *goquery.Document, selectors []string, minChars int) *goquery.Selection {
	for _, sel := range selectors {
		var found *goquery.Selection
		d.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(NormalizeWhitespace(nodeText(s))) > minChars {
				found = s
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	if body := d.Find("body").First(); body.Length() > 0 {
		return body
	}
	return d.Selection
}

// nodeText renders text with line breaks between block elements.
func nodeText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if blockElements[n.Data] {
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return sb.String()
}

// NormalizeWhitespace collapses runs of spaces, trims every line, and keeps at
// most one blank line between paragraphs.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpaceRE.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRE.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func extractMetadata(d *goquery.Document) content.PageMetadata {
	lang, _ := d.Find("html").First().Attr("lang")
	return content.PageMetadata{
		Title:       firstNonEmpty(metaContent(d, "og:title"), metaContent(d, "twitter:title"), d.Find("title").First().Text()),
		Author:      firstNonEmpty(metaContent(d, "author"), metaContent(d, "article:author"), metaContent(d, "twitter:creator")),
		PublishDate: firstNonEmpty(metaContent(d, "article:published_time"), metaContent(d, "datePublished"), metaContent(d, "pubdate"), metaContent(d, "date")),
		Description: firstNonEmpty(metaContent(d, "description"), metaContent(d, "og:description"), metaContent(d, "twitter:description")),
		SiteName:    metaContent(d, "og:site_name"),
		Language:    strings.TrimSpace(lang),
	}
}

// metaContent reads <meta content> keyed by name, property or itemprop.
func metaContent(d *goquery.Document, key string) string {
	var value string
	d.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"name", "property", "itemprop"} {
			if v, ok := s.Attr(attr); ok && strings.EqualFold(v, key) {
				if c, ok := s.Attr("content"); ok && strings.TrimSpace(c) != "" {
					value = strings.TrimSpace(c)
					return false
				}
			}
		}
		return true
	})
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
