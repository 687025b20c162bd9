package transcript

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/contentrelay/internal/content"
)

// SourceTimedText tags transcripts read from the watch page caption tracks.
const SourceTimedText = "timedtext"

const (
	defaultWatchBaseURL = "https://www.youtube.com"
	playerResponseMark  = "ytInitialPlayerResponse = "
)

// TimedTextConfig configures the watch-page backend.
type TimedTextConfig struct {
	// BaseURL is the scheme and host serving /watch; overridable for tests.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// TimedTextBackend scrapes the watch page for caption tracks and downloads the
// chosen one as srv3 timed-text XML.
type TimedTextBackend struct {
	cfg       TimedTextConfig
	collector *colly.Collector
}

// NewTimedTextBackend builds the backend.
func NewTimedTextBackend(cfg TimedTextConfig) *TimedTextBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWatchBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &TimedTextBackend{cfg: cfg, collector: c}
}

// Name implements Backend.
func (b *TimedTextBackend) Name() string { return SourceTimedText }

// Attempt implements Backend.
func (b *TimedTextBackend) Attempt(ctx context.Context, videoID, lang string) (*content.Transcript, error) {
	watchURL := b.cfg.BaseURL + "/watch?v=" + url.QueryEscape(videoID)
	page, err := b.get(ctx, watchURL)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	player, err := parsePlayerResponse(page)
	if err != nil {
		return nil, err
	}
	if err := player.playabilityError(); err != nil {
		return nil, err
	}
	if player.Captions == nil || len(player.Captions.Tracklist.Tracks) == 0 {
		return nil, content.Errorf(content.ErrTypeTranscriptsDisabled, "transcripts are disabled for video %s", videoID)
	}

	track, ok := pickCaptionTrack(player.Captions.Tracklist.Tracks, lang)
	if !ok {
		return nil, content.Errorf(content.ErrTypeTranscriptNotFound, "no transcript for language %q", lang)
	}

	trackURL, err := srv3URL(track.BaseURL, b.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	body, err := b.get(ctx, trackURL)
	if err != nil {
		return nil, fmt.Errorf("caption track: %w", err)
	}
	segments, err := ParseTimedText(body)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, content.Errorf(content.ErrTypeTranscriptNotFound, "caption track for %s has no transcript text", videoID)
	}
	return assemble(videoID, track.LanguageCode, segments, track.Kind == "asr", SourceTimedText), nil
}

// get performs one GET with the shared collector.
func (b *TimedTextBackend) get(ctx context.Context, target string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := b.collector.Clone()
	collector.AllowURLRevisit = true
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timedtext fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", target, err)
		}
		return body, nil
	}
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		Tracklist struct {
			Tracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

func (p *playerResponse) playabilityError() error {
	if p.PlayabilityStatus == nil {
		return nil
	}
	status, reason := p.PlayabilityStatus.Status, p.PlayabilityStatus.Reason
	switch status {
	case "", "OK":
		return nil
	}
	err := fmt.Errorf("video not playable (%s): %s", status, reason)
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "not a bot"):
		return content.NewError(content.ErrTypeBlocked, err)
	case status == "ERROR" && content.ClassifyTranscript(err) == content.ErrTypeUnknown:
		return content.NewError(content.ErrTypeVideoNotFound, err)
	}
	return content.NewError(content.ClassifyTranscript(err), err)
}

func parsePlayerResponse(page []byte) (*playerResponse, error) {
	idx := strings.Index(string(page), playerResponseMark)
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	raw := extractJSONObject(page[idx+len(playerResponseMark):])
	if raw == nil {
		return nil, errors.New("unterminated ytInitialPlayerResponse")
	}
	var resp playerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &resp, nil
}

// extractJSONObject returns the balanced {...} object at the start of data.
func extractJSONObject(data []byte) []byte {
	start := -1
	for i, c := range data {
		if c == '{' {
			start = i
			break
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return nil
		}
	}
	if start < 0 {
		return nil
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return data[start : i+1]
			}
		}
	}
	return nil
}

// pickCaptionTrack prefers a manual track over an auto-generated ("asr") one,
// and an exact language match over a regional variant of it. Tracks that need
// a proof-of-origin token cannot be fetched outside a browser and are skipped.
func pickCaptionTrack(tracks []captionTrack, lang string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !strings.Contains(t.BaseURL, "&exp=xpe") {
			usable = append(usable, t)
		}
	}
	matchers := []func(captionTrack) bool{
		func(t captionTrack) bool { return t.Kind != "asr" && t.LanguageCode == lang },
		func(t captionTrack) bool { return t.Kind != "asr" && isVariant(t.LanguageCode, lang) },
		func(t captionTrack) bool { return t.Kind == "asr" && t.LanguageCode == lang },
		func(t captionTrack) bool { return t.Kind == "asr" && isVariant(t.LanguageCode, lang) },
	}
	for _, match := range matchers {
		for _, t := range usable {
			if match(t) {
				return t, true
			}
		}
	}
	return captionTrack{}, false
}

func isVariant(code, lang string) bool {
	return strings.HasPrefix(code, lang+"-")
}

// srv3URL forces the srv3 timed-text format on a caption track URL.
func srv3URL(raw, base string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse caption url: %w", err)
	}
	if !u.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		u = baseURL.ResolveReference(u)
	}
	q := u.Query()
	q.Set("fmt", "srv3")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type timedTextDoc struct {
	Paragraphs []struct {
		T     int64  `xml:"t,attr"`
		D     int64  `xml:"d,attr"`
		Inner string `xml:",innerxml"`
	} `xml:"body>p"`
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Inner string  `xml:",innerxml"`
	} `xml:"text"`
}

// ParseTimedText decodes srv3 timed-text XML, whose t and d attributes are
// milliseconds, into segments measured in seconds. The legacy format with
// start and dur in seconds is accepted as well.
func ParseTimedText(data []byte) ([]content.TranscriptSegment, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse timed text: %w", err)
	}
	segments := make([]content.TranscriptSegment, 0, len(doc.Paragraphs)+len(doc.Texts))
	for _, p := range doc.Paragraphs {
		text := cleanTimedText(p.Inner)
		if text == "" {
			continue
		}
		segments = append(segments, content.TranscriptSegment{
			Start:    msToSeconds(p.T),
			Duration: msToSeconds(p.D),
			Text:     text,
		})
	}
	for _, t := range doc.Texts {
		text := cleanTimedText(t.Inner)
		if text == "" {
			continue
		}
		segments = append(segments, content.TranscriptSegment{
			Start:    roundMs(t.Start),
			Duration: roundMs(t.Dur),
			Text:     text,
		})
	}
	return segments, nil
}

func cleanTimedText(inner string) string {
	text := markupTagRE.ReplaceAllString(inner, "")
	// Inner XML is still escaped once, and captions are escaped again upstream.
	text = html.UnescapeString(html.UnescapeString(text))
	return strings.Join(strings.Fields(text), " ")
}

func roundMs(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
