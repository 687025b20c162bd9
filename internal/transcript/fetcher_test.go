package transcript

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/clock"
	"github.com/JakeFAU/contentrelay/internal/content"
)

type stubBackend struct {
	name  string
	calls atomic.Int32
	fn    func(videoID, lang string) (*content.Transcript, error)
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Attempt(_ context.Context, videoID, lang string) (*content.Transcript, error) {
	s.calls.Add(1)
	return s.fn(videoID, lang)
}

func okBackend(name string) *stubBackend {
	return &stubBackend{name: name, fn: func(videoID, lang string) (*content.Transcript, error) {
		return assemble(videoID, lang, []content.TranscriptSegment{{Start: 0, Duration: 1, Text: "hello there"}}, false, name), nil
	}}
}

func failingBackend(name string, err error) *stubBackend {
	return &stubBackend{name: name, fn: func(string, string) (*content.Transcript, error) { return nil, err }}
}

func newCache() *cache.Cache[any] {
	return cache.New[any](cache.Config{MaxSize: 10, TTL: time.Hour}, clock.NewManual(time.Unix(0, 0)))
}

func TestFetchUsesPrimaryAndCaches(t *testing.T) {
	t.Parallel()

	primary := okBackend(SourceYTDLP)
	fallback := okBackend(SourceTimedText)
	c := newCache()
	f := New(c, nil, []Backend{primary, fallback})

	res := f.Fetch(context.Background(), "abc", "")
	require.True(t, res.Success)
	require.Nil(t, res.Failure)
	assert.Equal(t, SourceYTDLP, res.Source)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, 2, res.WordCount)
	assert.Equal(t, int32(0), fallback.calls.Load())
	assert.True(t, c.Has(CacheKey("abc", "en")))

	hit := f.Fetch(context.Background(), "abc", "en")
	require.True(t, hit.Success)
	assert.Equal(t, content.SourceCache, hit.Source)
	assert.Zero(t, hit.ElapsedMs)
	assert.Equal(t, int32(1), primary.calls.Load())

	// The cached entry keeps its original source.
	again := f.Fetch(context.Background(), "abc", "en")
	assert.Equal(t, content.SourceCache, again.Source)
}

func TestFetchFallsBackOnRetryableFailure(t *testing.T) {
	t.Parallel()

	primary := failingBackend(SourceYTDLP, errors.New("HTTP Error 429: Too Many Requests"))
	fallback := okBackend(SourceTimedText)
	f := New(newCache(), nil, []Backend{primary, fallback})

	res := f.Fetch(context.Background(), "abc", "en")
	require.True(t, res.Success)
	assert.Equal(t, SourceTimedText, res.Source)
	assert.Equal(t, int32(1), fallback.calls.Load())
}

func TestFetchStopsOnPermanentFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want content.ErrorType
	}{
		{"private", errors.New("ERROR: Private video"), content.ErrTypePrivateVideo},
		{"unavailable", errors.New("ERROR: Video unavailable"), content.ErrTypeVideoNotFound},
		{"disabled", errors.New("Transcripts are disabled for this video"), content.ErrTypeTranscriptsDisabled},
		{"no captions", content.Errorf(content.ErrTypeTranscriptNotFound, "nothing"), content.ErrTypeTranscriptNotFound},
		{"age", errors.New("Sign in to confirm your age"), content.ErrTypeAgeRestricted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fallback := okBackend(SourceTimedText)
			c := newCache()
			f := New(c, nil, []Backend{failingBackend(SourceYTDLP, tt.err), fallback})

			res := f.Fetch(context.Background(), "abc", "en")
			require.False(t, res.Success)
			require.NotNil(t, res.Failure)
			assert.Nil(t, res.Transcript)
			assert.Equal(t, tt.want, res.ErrorType)
			assert.Equal(t, int32(0), fallback.calls.Load())
			assert.Zero(t, c.Stats().Size)
		})
	}
}

func TestFetchReportsLastFailure(t *testing.T) {
	t.Parallel()

	f := New(newCache(), nil, []Backend{
		failingBackend(SourceYTDLP, errors.New("connection reset by peer")),
		failingBackend(SourceTimedText, errors.New("status 503: Service Unavailable")),
	})

	res := f.Fetch(context.Background(), "abc", "en")
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeServer, res.ErrorType)
	assert.Contains(t, res.Error, "503")
}

func TestFetchValidatesInput(t *testing.T) {
	t.Parallel()

	f := New(newCache(), nil, nil, WithDefaultLanguage("de"))

	res := f.Fetch(context.Background(), "  ", "")
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeVideoNotFound, res.ErrorType)

	res = f.Fetch(context.Background(), "abc", "")
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeUnknown, res.ErrorType)
}

func TestCacheKeyIsLanguageSpecific(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "transcript:lang=en&videoId=abc", CacheKey("abc", "en"))
	assert.NotEqual(t, CacheKey("abc", "en"), CacheKey("abc", "fr"))
}
