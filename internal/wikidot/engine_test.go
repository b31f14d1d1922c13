package wikidot_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/telemetry"
	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

// captureSink is a telemetry.Sink that records every message it receives,
// for assertions on what an Engine run reported.
type captureSink struct {
	mu   sync.Mutex
	msgs []telemetry.Message
}

func (c *captureSink) Send(_ context.Context, msg telemetry.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSink) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Type
	}
	return out
}

func newTestSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>`+"http://"+r.Host+`/hello</loc><lastmod>2024-01-01</lastmod></url>
</urlset>`)
	})

	mux.HandleFunc("/system:recent-changes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "wikidot_token7=tok; Path=/")
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/hello/noredirect/true", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body>
<div id="page-title">Hello</div>
<div class="page-tags"></div>
<div class="page-rate-widget-box"><span class="number">3</span></div>
<div id="breadcrumbs"></div>
<script>WIKIDOT.page.pageId = 99;</script>
</body></html>`)
	})

	mux.HandleFunc("/ajax-module-connector.php", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		var body string
		switch r.FormValue("moduleName") {
		case "history/PageRevisionListModule":
			if r.FormValue("page") == "1" {
				body = `<table><tr class="revision-row" data-global-revision="500">
					<td class="rev-version">1</td>
				</tr></table>`
			}
		case "history/PageSourceModule":
			body = `<div class="page-source">hello revision text</div>`
		case "forum/ForumStartModule", "pagerate/WhoRatedPageModule",
			"edit/PageEditModule", "files/PageFilesModule":
			body = ""
		}
		_, _ = fmt.Fprintf(w, `{"status":"ok","body":%q}`, body)
	})

	return httptest.NewServer(mux)
}

func TestEngineRunArchivesNewPage(t *testing.T) {
	srv := newTestSiteServer(t)
	defer srv.Close()

	dir := t.TempDir()
	sink := &captureSink{}
	var lock sync.Mutex

	engine, errE := wikidot.NewEngine(wikidot.SiteConfig{
		Tag:         "test",
		Name:        "test",
		BaseURL:     srv.URL,
		Dir:         dir,
		MaximumJobs: 2,
		UserAgent:   "test-agent",
	}, &lock, nil, nil, sink, zerolog.Nop())
	require.NoError(t, errE)

	errE = engine.Run(context.Background())
	require.NoError(t, errE)

	assert.Contains(t, sink.types(), "FinishSuccess")
	assert.Contains(t, sink.types(), "PageDone")

	data, err := os.ReadFile(filepath.Join(dir, "meta", "pages", "hello.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Hello"`)

	revisionBody, err := os.ReadFile(filepath.Join(dir, "pages", "hello", "1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello revision text", string(revisionBody))
}

func TestEngineRunDryRunPerformsNoFetch(t *testing.T) {
	srv := newTestSiteServer(t)
	defer srv.Close()

	dir := t.TempDir()
	var lock sync.Mutex

	engine, errE := wikidot.NewEngine(wikidot.SiteConfig{
		Tag:         "test",
		Name:        "test",
		BaseURL:     srv.URL,
		Dir:         dir,
		MaximumJobs: 2,
		UserAgent:   "test-agent",
		DryRun:      true,
	}, &lock, nil, nil, nil, zerolog.Nop())
	require.NoError(t, errE)

	errE = engine.Run(context.Background())
	require.NoError(t, errE)

	_, err := os.Stat(filepath.Join(dir, "meta", "pages", "hello.json"))
	assert.True(t, os.IsNotExist(err))
}
