package transcript

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/contentrelay/internal/content"
)

// SourceYTDLP tags transcripts downloaded by yt-dlp.
const SourceYTDLP = "yt-dlp"

// CommandRunner runs an external program and returns its captured output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// YTDLPConfig configures the subprocess backend.
type YTDLPConfig struct {
	Binary  string
	Timeout time.Duration
	// WatchBaseURL prefixes /watch?v= when building the video URL.
	WatchBaseURL string
}

// YTDLPBackend lists and downloads caption tracks with yt-dlp.
type YTDLPBackend struct {
	cfg    YTDLPConfig
	runner CommandRunner
}

// NewYTDLPBackend builds the backend. A nil runner uses ExecRunner.
func NewYTDLPBackend(cfg YTDLPConfig, runner CommandRunner) *YTDLPBackend {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.WatchBaseURL == "" {
		cfg.WatchBaseURL = defaultWatchBaseURL
	}
	cfg.WatchBaseURL = strings.TrimRight(cfg.WatchBaseURL, "/")
	if runner == nil {
		runner = ExecRunner{}
	}
	return &YTDLPBackend{cfg: cfg, runner: runner}
}

// Name implements Backend.
func (b *YTDLPBackend) Name() string { return SourceYTDLP }

// Attempt implements Backend.
func (b *YTDLPBackend) Attempt(ctx context.Context, videoID, lang string) (*content.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	videoURL := b.cfg.WatchBaseURL + "/watch?v=" + videoID
	tracks, err := b.listTracks(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	code, automatic, ok := tracks.pick(lang)
	if !ok {
		if tracks.empty() {
			return nil, content.Errorf(content.ErrTypeTranscriptNotFound, "video %s has no subtitles", videoID)
		}
		return nil, content.Errorf(content.ErrTypeTranscriptNotFound, "no subtitles for language %q", lang)
	}

	segments, err := b.download(ctx, videoURL, code, automatic)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, content.Errorf(content.ErrTypeTranscriptNotFound, "downloaded subtitles for %s are empty", videoID)
	}
	return assemble(videoID, code, segments, automatic, SourceYTDLP), nil
}

type trackList struct {
	manual    []string
	automatic []string
}

func (t trackList) empty() bool {
	return len(t.manual) == 0 && len(t.automatic) == 0
}

// pick prefers a manual track, exact language before regional variant.
func (t trackList) pick(lang string) (string, bool, bool) {
	for _, set := range []struct {
		codes     []string
		automatic bool
	}{{t.manual, false}, {t.automatic, true}} {
		for _, code := range set.codes {
			if code == lang {
				return code, set.automatic, true
			}
		}
		for _, code := range set.codes {
			if isVariant(code, lang) {
				return code, set.automatic, true
			}
		}
	}
	return "", false, false
}

func (b *YTDLPBackend) listTracks(ctx context.Context, videoURL string) (trackList, error) {
	stdout, stderr, err := b.runner.Run(ctx, b.cfg.Binary, "--list-subs", "--skip-download", "--no-warnings", videoURL)
	if err != nil {
		return trackList{}, b.commandError(ctx, "list subtitles", err, stderr)
	}
	return parseSubtitleList(stdout), nil
}

// parseSubtitleList reads the language tables printed by --list-subs.
func parseSubtitleList(out []byte) trackList {
	var (
		tracks  trackList
		section *[]string
	)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.Contains(line, "Available automatic captions"):
			section = &tracks.automatic
			continue
		case strings.Contains(line, "Available subtitles"):
			section = &tracks.manual
			continue
		case strings.Contains(line, "has no subtitles"), strings.Contains(line, "has no automatic captions"):
			section = nil
			continue
		}
		if section == nil || line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "Language") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		*section = append(*section, fields[0])
	}
	return tracks
}

func (b *YTDLPBackend) download(ctx context.Context, videoURL, code string, automatic bool) ([]content.TranscriptSegment, error) {
	dir, err := os.MkdirTemp("", "contentrelay-subs-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	writeFlag := "--write-subs"
	if automatic {
		writeFlag = "--write-auto-subs"
	}
	_, stderr, err := b.runner.Run(ctx, b.cfg.Binary,
		"--skip-download",
		writeFlag,
		"--sub-langs", code,
		"--sub-format", "vtt",
		"--no-warnings",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		videoURL,
	)
	if err != nil {
		return nil, b.commandError(ctx, "download subtitles", err, stderr)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.vtt"))
	if err != nil {
		return nil, fmt.Errorf("list subtitle files: %w", err)
	}
	if len(files) == 0 {
		return nil, content.Errorf(content.ErrTypeTranscriptNotFound, "no subtitles downloaded for language %q", code)
	}
	sort.Strings(files)
	data, err := os.ReadFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	segments := ParseVTT(string(data))
	if automatic {
		segments = MergeRepeats(segments)
	}
	return segments, nil
}

// commandError classifies a failed invocation from its stderr.
func (b *YTDLPBackend) commandError(ctx context.Context, op string, err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return content.NewError(content.ErrTypeUnknown, fmt.Errorf("%s: %s not installed: %w", op, b.cfg.Binary, err))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return content.NewError(content.ErrTypeTimeout, fmt.Errorf("%s: %w", op, err))
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	wrapped := fmt.Errorf("%s: %s", op, msg)
	return content.NewError(content.ClassifyTranscript(wrapped), wrapped)
}
