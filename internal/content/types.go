// Package content defines the result envelopes and error vocabulary shared by
// every fetcher. A result carries either its payload or a classified failure,
// never both and never neither; use the constructors to build them.
package content

import "time"

// Source and method tags shared across fetchers.
const (
	SourceCache   = "cache"
	MethodBrowser = "browser"
)

// Cache content types.
const (
	KindTranscript = "transcript"
	KindPage       = "page"
	KindSocial     = "social"
)

// Failure is the error half of a result envelope.
type Failure struct {
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"errorType"`
}

func newFailure(err error, kind ErrorType) *Failure {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if kind == "" {
		kind = ErrTypeUnknown
	}
	return &Failure{Error: msg, ErrorType: kind}
}

// TranscriptSegment is a single timed caption cue. Start and Duration are seconds.
type TranscriptSegment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Transcript is the success payload of a transcript fetch.
type Transcript struct {
	VideoID   string              `json:"videoId"`
	Language  string              `json:"language"`
	Segments  []TranscriptSegment `json:"segments"`
	FullText  string              `json:"fullText"`
	WordCount int                 `json:"wordCount"`
	Source    string              `json:"source"`
	Automatic bool                `json:"automatic"`
	ElapsedMs int64               `json:"elapsedMs"`
}

// TranscriptResult is the envelope returned by the transcript fetcher.
type TranscriptResult struct {
	Success bool `json:"success"`
	*Transcript
	*Failure
}

// TranscriptOK wraps a successful transcript.
func TranscriptOK(t *Transcript) TranscriptResult {
	return TranscriptResult{Success: true, Transcript: t}
}

// TranscriptFailed wraps a classified transcript failure.
func TranscriptFailed(err error, kind ErrorType) TranscriptResult {
	return TranscriptResult{Failure: newFailure(err, kind)}
}

// PageMetadata is read from meta tags of the rendered document.
type PageMetadata struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishDate string `json:"publishDate,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Page is the success payload of a generic page fetch.
type Page struct {
	URL       string       `json:"url"`
	FinalURL  string       `json:"finalUrl,omitempty"`
	Text      string       `json:"text"`
	HTML      string       `json:"html"`
	Markdown  string       `json:"markdown,omitempty"`
	Metadata  PageMetadata `json:"metadata"`
	WordCount int          `json:"wordCount"`
	Profile   string       `json:"profile"`
	Method    string       `json:"method"`
	ElapsedMs int64        `json:"elapsedMs"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// PageResult is the envelope returned by the page fetcher.
type PageResult struct {
	Success bool `json:"success"`
	*Page
	*Failure
}

// PageOK wraps a successful page extraction.
func PageOK(p *Page) PageResult {
	return PageResult{Success: true, Page: p}
}

// PageFailed wraps a classified page failure.
func PageFailed(err error, kind ErrorType) PageResult {
	return PageResult{Failure: newFailure(err, kind)}
}

// Engagement holds the public counters of a post. Missing counters stay zero.
type Engagement struct {
	Replies int64 `json:"replies"`
	Reposts int64 `json:"reposts"`
	Quotes  int64 `json:"quotes"`
	Likes   int64 `json:"likes"`
	Views   int64 `json:"views"`
}

// SocialPost is the success payload of a social-post fetch.
type SocialPost struct {
	URL        string     `json:"url"`
	PostID     string     `json:"postId"`
	Handle     string     `json:"handle"`
	AuthorName string     `json:"authorName,omitempty"`
	Text       string     `json:"text"`
	Timestamp  string     `json:"timestamp,omitempty"`
	Engagement Engagement `json:"engagement"`
	Media      []string   `json:"media,omitempty"`
	Source     string     `json:"source"`
	ElapsedMs  int64      `json:"elapsedMs"`
}

// SocialPostResult is the envelope returned by the social-post fetcher.
type SocialPostResult struct {
	Success bool `json:"success"`
	*SocialPost
	*Failure
}

// SocialPostOK wraps a successfully extracted post.
func SocialPostOK(p *SocialPost) SocialPostResult {
	return SocialPostResult{Success: true, SocialPost: p}
}

// SocialPostFailed wraps a classified social-post failure.
func SocialPostFailed(err error, kind ErrorType) SocialPostResult {
	return SocialPostResult{Failure: newFailure(err, kind)}
}
