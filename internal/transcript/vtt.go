package transcript

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/contentrelay/internal/content"
)

var (
	cueLineRE      = regexp.MustCompile(`^((?:\d+:)?\d{1,2}:\d{2}[.,]\d{3})\s*-->\s*((?:\d+:)?\d{1,2}:\d{2}[.,]\d{3})`)
	markupTagRE    = regexp.MustCompile(`<[^>]*>`)
	speakerLabelRE = regexp.MustCompile(`^\[[^\]]*\]\s*`)
	cueIDRE        = regexp.MustCompile(`^\d+$`)
)

// ParseVTT converts a WebVTT document into ordered segments, one per cue. A
// cue timing line flushes the text accumulated since the previous one; the
// last block is flushed at end of input. Everything before the first timing
// line is header.
func ParseVTT(doc string) []content.TranscriptSegment {
	var (
		segments   []content.TranscriptSegment
		startMs    int64
		endMs      int64
		inCue      bool
		inNote     bool
		blockStart = true
		pendingID  string
		lines      []string
	)

	appendText := func(line string) {
		if text := cleanCueText(line); text != "" {
			lines = append(lines, text)
		}
	}
	// A numeric line opening a block is a cue id only if a timing line follows.
	releasePending := func() {
		if pendingID != "" {
			appendText(pendingID)
			pendingID = ""
		}
	}
	flush := func() {
		if !inCue {
			return
		}
		text := strings.Join(lines, " ")
		lines = lines[:0]
		if text == "" {
			return
		}
		segments = append(segments, content.TranscriptSegment{
			Start:    msToSeconds(startMs),
			Duration: msToSeconds(endMs - startMs),
			Text:     text,
		})
	}

	for _, raw := range strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if m := cueLineRE.FindStringSubmatch(line); m != nil {
			pendingID = ""
			flush()
			startMs, _ = parseTimestamp(m[1])
			endMs, _ = parseTimestamp(m[2])
			inCue, inNote, blockStart = true, false, false
			continue
		}
		if line == "" {
			inNote = false
			blockStart = true
			continue
		}
		if !inCue || inNote {
			continue
		}
		if blockStart && isNoteStart(line) {
			releasePending()
			inNote = true
			continue
		}
		if blockStart && pendingID == "" && cueIDRE.MatchString(line) {
			pendingID = line
			continue
		}
		releasePending()
		blockStart = false
		appendText(line)
	}
	releasePending()
	flush()
	return segments
}

// MergeRepeats collapses consecutive segments with identical text into one
// spanning both. Automatic captions repeat rolling lines this way.
func MergeRepeats(segments []content.TranscriptSegment) []content.TranscriptSegment {
	if len(segments) == 0 {
		return segments
	}
	merged := make([]content.TranscriptSegment, 0, len(segments))
	for _, seg := range segments {
		if n := len(merged); n > 0 && merged[n-1].Text == seg.Text {
			prev := &merged[n-1]
			prev.Duration = seg.Start + seg.Duration - prev.Start
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

func isNoteStart(line string) bool {
	return line == "NOTE" || strings.HasPrefix(line, "NOTE ") || strings.HasPrefix(line, "NOTE\t")
}

func cleanCueText(line string) string {
	text := markupTagRE.ReplaceAllString(line, "")
	text = html.UnescapeString(text)
	text = speakerLabelRE.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.Join(strings.Fields(text), " ")
}

// parseTimestamp reads HH:MM:SS.mmm or MM:SS.mmm into milliseconds.
func parseTimestamp(ts string) (int64, bool) {
	ts = strings.Replace(ts, ",", ".", 1)
	clock, frac, ok := strings.Cut(ts, ".")
	if !ok {
		return 0, false
	}
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + n
	}
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return total*1000 + ms, true
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}

// assemble fills the derived fields shared by every backend.
func assemble(videoID, lang string, segments []content.TranscriptSegment, automatic bool, source string) *content.Transcript {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		texts = append(texts, s.Text)
	}
	full := strings.Join(texts, " ")
	return &content.Transcript{
		VideoID:   videoID,
		Language:  lang,
		Segments:  segments,
		FullText:  full,
		WordCount: content.CountWords(full),
		Source:    source,
		Automatic: automatic,
	}
}
