package page

import "strings"

// Profile tunes extraction for a family of sites.
type Profile struct {
	Name string
	// Selectors are tried in order; the first with enough text wins.
	Selectors    []string
	WaitSelector string
	Scroll       bool
}

var genericProfile = Profile{
	Name: "generic",
	Selectors: []string{
		"article", "main article", "[role='main'] article", "main", "[role='main']",
		".post-content", ".entry-content", ".article-content", ".article-body", "#content", ".content",
	},
	WaitSelector: "body",
}

// profiles is matched by hostname substring in order.
var profiles = []struct {
	match   string
	profile Profile
}{
	{"medium.com", Profile{
		Name:         "medium",
		Selectors:    []string{"article", "section[data-field='body']", ".postArticle-content"},
		WaitSelector: "article",
		Scroll:       true,
	}},
	{"substack.com", Profile{
		Name:         "substack",
		Selectors:    []string{".available-content", ".body.markup", "article"},
		WaitSelector: ".available-content",
	}},
	{"nytimes.com", Profile{
		Name:         "nytimes",
		Selectors:    []string{"section[name='articleBody']", "article"},
		WaitSelector: "article",
		Scroll:       true,
	}},
	{"theguardian.com", Profile{
		Name:         "guardian",
		Selectors:    []string{"#maincontent", ".article-body-commercial-selector", "article"},
		WaitSelector: "article",
	}},
	{"bbc.co", Profile{
		Name:         "bbc",
		Selectors:    []string{"article", "[data-component='text-block']", "main"},
		WaitSelector: "article",
	}},
	{"reuters.com", Profile{
		Name:         "reuters",
		Selectors:    []string{"[data-testid='ArticleBody']", "article", ".article-body__content"},
		WaitSelector: "article",
	}},
	{"wikipedia.org", Profile{
		Name:         "wikipedia",
		Selectors:    []string{"#mw-content-text .mw-parser-output", "#mw-content-text", "#content"},
		WaitSelector: "#mw-content-text",
	}},
	{"github.com", Profile{
		Name:         "github",
		Selectors:    []string{"article.markdown-body", ".markdown-body", "[data-testid='readme']", "main"},
		WaitSelector: "main",
	}},
	{"dev.to", Profile{
		Name:         "devto",
		Selectors:    []string{"#article-body", ".crayons-article__body", "article"},
		WaitSelector: "#article-body",
	}},
	{"hashnode", Profile{
		Name:         "hashnode",
		Selectors:    []string{"#post-content-wrapper", ".prose", "article"},
		WaitSelector: "article",
		Scroll:       true,
	}},
	{"ghost.io", Profile{
		Name:         "ghost",
		Selectors:    []string{".gh-content", ".post-content", "article"},
		WaitSelector: "article",
	}},
	{"wordpress.com", Profile{
		Name:         "wordpress",
		Selectors:    []string{".entry-content", ".post-content", "article"},
		WaitSelector: "article",
	}},
	{"blogspot.com", Profile{
		Name:         "blogger",
		Selectors:    []string{".post-body", ".entry-content", "article"},
		WaitSelector: ".post-body",
	}},
	{"reddit.com", Profile{
		Name:         "reddit",
		Selectors:    []string{"shreddit-post", "[data-test-id='post-content']", "[slot='text-body']", "main"},
		WaitSelector: "shreddit-post",
		Scroll:       true,
	}},
}

// ProfileFor returns the profile for hostname, ignoring a leading "www.".
func ProfileFor(hostname string) Profile {
	host := strings.TrimPrefix(strings.ToLower(hostname), "www.")
	for _, p := range profiles {
		if strings.Contains(host, p.match) {
			return p.profile
		}
	}
	return genericProfile
}
