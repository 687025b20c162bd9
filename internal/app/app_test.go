package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/app"
	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/browser/browsertest"
	"github.com/JakeFAU/contentrelay/internal/config"
)

var article = `<html><head><title>Relay</title></head><body><article><p>` +
	strings.Repeat("relay ", 80) + `</p></article></body></html>`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Page.SettleDelay = 0
	cfg.Page.ScrollDelay = 0
	cfg.Browser.PollInterval = 5 * time.Millisecond
	cfg.Browser.AcquireTimeout = time.Second
	return cfg
}

func TestNewWiresServices(t *testing.T) {
	t.Parallel()

	launcher := browsertest.NewLauncher(browsertest.StaticSite(map[string]string{
		"https://example.com/a": article,
	}))
	a, err := app.New(testConfig(t), zap.NewNop(), app.WithLauncher(launcher))
	require.NoError(t, err)

	assert.Equal(t, browser.StatusStopped, a.Pool.Status().Status)
	assert.Zero(t, launcher.Launches(), "browser must start lazily")

	req := httptest.NewRequest(http.MethodPost, "/v1/pages", strings.NewReader(`{"url":"https://example.com/a"}`))
	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"title":"Relay"`)
	assert.Equal(t, 1, a.Cache.Stats().Size)
	assert.Equal(t, browser.StatusReady, a.Pool.Status().Status)

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, browser.StatusStopped, a.Pool.Status().Status)
	assert.Zero(t, launcher.OpenContexts())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Browser.MaxContexts = 0

	_, err := app.New(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.max_contexts")
}
