package social

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/contentrelay/internal/content"
)

// loginPrompts appear on the origin site's sign-in wall.
var loginPrompts = []string{
	"sign in to x",
	"log in to x",
	"sign in to twitter",
	"log in to twitter",
	"sign up now",
	"don't miss what's happening",
	"don’t miss what’s happening",
}

var leadingCountRE = regexp.MustCompile(`^([\d.,]*\d)([KkMmBb])?\b`)

const nitterDateLayout = "Jan 2, 2006 · 3:04 PM MST"

// parsedPost is the markup-level view of a post before it is tied to a PostRef.
type parsedPost struct {
	Text       string
	Handle     string
	AuthorName string
	Timestamp  string
	Engagement content.Engagement
	Media      []string
}

// parseNitter reads the main post from a Nitter-style mirror page. base
// resolves relative media links.
func parseNitter(doc, base string) (parsedPost, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return parsedPost{}, err
	}
	main := d.Find(".main-tweet").First()
	if main.Length() == 0 {
		if msg := strings.TrimSpace(d.Find(".error-panel").Text()); msg != "" {
			return parsedPost{}, errors.New(strings.ToLower(msg))
		}
		return parsedPost{}, errors.New("post container not found on mirror")
	}

	post := parsedPost{
		Text:       cleanText(main.Find(".tweet-content").First().Text()),
		AuthorName: cleanText(main.Find(".fullname").First().Text()),
		Handle:     strings.TrimPrefix(cleanText(main.Find(".username").First().Text()), "@"),
	}
	if title, ok := main.Find(".tweet-date a").First().Attr("title"); ok {
		post.Timestamp = normalizeNitterDate(title)
	}

	main.Find(".tweet-stats .tweet-stat").Each(func(_ int, s *goquery.Selection) {
		n := parseCount(s.Text())
		switch {
		case s.Find(".icon-comment").Length() > 0:
			post.Engagement.Replies = n
		case s.Find(".icon-retweet").Length() > 0:
			post.Engagement.Reposts = n
		case s.Find(".icon-quote").Length() > 0:
			post.Engagement.Quotes = n
		case s.Find(".icon-heart").Length() > 0:
			post.Engagement.Likes = n
		case s.Find(".icon-views, .icon-play").Length() > 0:
			post.Engagement.Views = n
		}
	})

	seen := map[string]bool{}
	main.Find(".attachments .attachment, .attachments .gallery-gif").Each(func(_ int, s *goquery.Selection) {
		ref := mediaRef(s)
		if ref == "" {
			return
		}
		abs := resolve(base, ref)
		if !seen[abs] {
			seen[abs] = true
			post.Media = append(post.Media, abs)
		}
	})
	return post, nil
}

// parseOrigin reads the post matching postID from the origin site's markup.
func parseOrigin(doc, postID string) (parsedPost, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return parsedPost{}, err
	}
	articles := d.Find(`article[data-testid="tweet"]`)
	if articles.Length() == 0 {
		if isLoginWall(d.Text()) {
			return parsedPost{}, content.Errorf(content.ErrTypeBlocked, "login required to view post")
		}
		return parsedPost{}, errors.New("post container not found")
	}
	article := articles.First()
	articles.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find(`a[href*="/status/`+postID+`"]`).Length() > 0 {
			article = s
			return false
		}
		return true
	})

	post := parsedPost{
		Text: cleanText(article.Find(`[data-testid="tweetText"]`).First().Text()),
	}
	article.Find(`[data-testid="User-Name"] span`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := cleanText(s.Text())
		switch {
		case strings.HasPrefix(text, "@") && post.Handle == "":
			post.Handle = strings.TrimPrefix(text, "@")
		case text != "" && post.AuthorName == "" && !strings.HasPrefix(text, "@"):
			post.AuthorName = text
		}
		return post.Handle == "" || post.AuthorName == ""
	})
	if ts, ok := article.Find("time[datetime]").First().Attr("datetime"); ok {
		post.Timestamp = ts
	}

	post.Engagement.Replies = ariaCount(article, `[data-testid="reply"]`)
	post.Engagement.Reposts = ariaCount(article, `[data-testid="retweet"]`)
	post.Engagement.Likes = ariaCount(article, `[data-testid="like"], [data-testid="unlike"]`)
	post.Engagement.Views = ariaCount(article, `a[href$="/analytics"]`)

	article.Find(`[data-testid="tweetPhoto"] img, video`).Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "poster"} {
			if v, ok := s.Attr(attr); ok && v != "" {
				post.Media = append(post.Media, v)
				return
			}
		}
	})
	return post, nil
}

// mediaRef prefers the full-size link over the inline thumbnail.
func mediaRef(s *goquery.Selection) string {
	candidates := []struct{ selector, attr string }{
		{"a.still-image", "href"},
		{"source", "src"},
		{"video", "src"},
		{"video", "poster"},
		{"img", "src"},
	}
	for _, c := range candidates {
		if v, ok := s.Find(c.selector).First().Attr(c.attr); ok && v != "" {
			return v
		}
	}
	return ""
}

func isLoginWall(text string) bool {
	lower := strings.ToLower(text)
	for _, prompt := range loginPrompts {
		if strings.Contains(lower, prompt) {
			return true
		}
	}
	return false
}

func ariaCount(s *goquery.Selection, selector string) int64 {
	label, ok := s.Find(selector).First().Attr("aria-label")
	if !ok {
		return 0
	}
	return parseCount(label)
}

// parseCount reads counts such as "1,234", "1.2K" or "3M" from the start of s.
// A suffix letter counts only when it ends the word.
func parseCount(s string) int64 {
	m := leadingCountRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	if raw == "" {
		return 0
	}
	multiplier := 1.0
	switch strings.ToUpper(m[2]) {
	case "K":
		multiplier = 1e3
	case "M":
		multiplier = 1e6
	case "B":
		multiplier = 1e9
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(f*multiplier + 0.5)
}

func normalizeNitterDate(title string) string {
	if t, err := time.Parse(nitterDateLayout, strings.TrimSpace(title)); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return strings.TrimSpace(title)
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
