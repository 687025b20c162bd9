package social

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/content"
)

// ErrInvalidPostURL is wrapped by every ParsePostURL failure.
var ErrInvalidPostURL = errors.New("invalid post url")

// CanonicalHost is the host every post URL is normalised to.
const CanonicalHost = "x.com"

// DefaultMirrors are read-only front-ends tried before the origin site.
var DefaultMirrors = []string{"https://nitter.net", "https://xcancel.com", "https://nitter.poast.org"}

var originHosts = []string{
	"x.com", "www.x.com", "mobile.x.com",
	"twitter.com", "www.twitter.com", "mobile.twitter.com",
}

var postPathRE = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status(?:es)?/(\d{1,25})(?:/.*)?$`)

// PostRef identifies a single post.
type PostRef struct {
	Handle string
	PostID string
}

// CanonicalURL returns https://x.com/<handle>/status/<id>.
func (r PostRef) CanonicalURL() string {
	return "https://" + CanonicalHost + r.path()
}

// CacheKey is independent of which accepted host the caller used and of the
// handle's letter case.
func (r PostRef) CacheKey() string {
	return cache.Key(content.KindSocial, map[string]string{
		"handle": strings.ToLower(r.Handle),
		"id":     r.PostID,
	})
}

// URLOn returns the post URL on another front-end, given its base URL.
func (r PostRef) URLOn(base string) string {
	return strings.TrimRight(base, "/") + r.path()
}

func (r PostRef) path() string {
	return "/" + r.Handle + "/status/" + r.PostID
}

// ParsePostURL validates raw against the origin hosts and DefaultMirrors.
func ParsePostURL(raw string) (PostRef, error) {
	return parsePostURL(raw, allowedHosts(DefaultMirrors))
}

func allowedHosts(mirrors []string) map[string]bool {
	hosts := make(map[string]bool, len(originHosts)+len(mirrors))
	for _, h := range originHosts {
		hosts[h] = true
	}
	for _, m := range mirrors {
		if u, err := url.Parse(m); err == nil && u.Hostname() != "" {
			hosts[strings.ToLower(u.Hostname())] = true
		}
	}
	return hosts
}

func parsePostURL(raw string, hosts map[string]bool) (PostRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return PostRef{}, invalid(raw, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return PostRef{}, invalid(raw, "scheme must be http or https")
	}
	host := strings.ToLower(u.Hostname())
	if !hosts[host] {
		return PostRef{}, invalid(raw, fmt.Sprintf("host %q is not supported", host))
	}
	m := postPathRE.FindStringSubmatch(u.Path)
	if m == nil {
		return PostRef{}, invalid(raw, "path must look like /<handle>/status/<id>")
	}
	return PostRef{Handle: m[1], PostID: m[2]}, nil
}

func invalid(raw, reason string) error {
	return content.NewError(content.ErrTypeInvalidURL, fmt.Errorf("%w %q: %s", ErrInvalidPostURL, raw, reason))
}
