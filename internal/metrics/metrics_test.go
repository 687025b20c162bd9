package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || fetchTotal == nil || cacheEventsTotal == nil ||
		browserActiveContexts == nil || rateLimitRejectionsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	before := testutil.ToFloat64(fetchCounter("page", "blocked"))
	ObserveFetch("page", "BLOCKED", 150*time.Millisecond)
	if got := testutil.ToFloat64(fetchCounter("page", "blocked")); got != before+1 {
		t.Errorf("expected fetch counter to increase by 1, got %f -> %f", before, got)
	}
}

func TestObserveCache(t *testing.T) {
	Init()
	hits := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("transcript", "hit"))
	misses := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("transcript", "miss"))

	ObserveCache("transcript", true)
	ObserveCache("transcript", false)
	ObserveCache("transcript", false)

	if got := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("transcript", "hit")); got != hits+1 {
		t.Errorf("hit counter = %f, want %f", got, hits+1)
	}
	if got := testutil.ToFloat64(cacheEventsTotal.WithLabelValues("transcript", "miss")); got != misses+2 {
		t.Errorf("miss counter = %f, want %f", got, misses+2)
	}
}

func TestBrowserGauges(t *testing.T) {
	SetBrowserActiveContexts(3)
	if got := testutil.ToFloat64(browserActiveContexts); got != 3 {
		t.Errorf("active contexts = %f, want 3", got)
	}
	SetBrowserActiveContexts(0)

	timeouts := testutil.ToFloat64(browserAcquireTimeouts)
	ObserveAcquireWait(time.Second, true)
	ObserveAcquireWait(time.Millisecond, false)
	if got := testutil.ToFloat64(browserAcquireTimeouts); got != timeouts+1 {
		t.Errorf("acquire timeouts = %f, want %f", got, timeouts+1)
	}
}

func fetchCounter(kind, outcome string) prometheus.Counter {
	Init()
	return fetchTotal.WithLabelValues(kind, outcome)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
