package wikidot_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/cookiejar"
	"github.com/x10102/wikicomma-sub000/internal/httpclient"
	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

func TestDrainPendingFilesDownloadsAndClearsQueue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/local--files/hello/pic.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	store := wikidot.NewSiteStore(dir)
	store.PendingFiles.Update(func([]int) []int { return []int{7} })
	store.FileMap.Update(func(m map[int]wikidot.FileMapEntry) map[int]wikidot.FileMapEntry {
		if m == nil {
			m = map[int]wikidot.FileMapEntry{}
		}
		m[7] = wikidot.FileMapEntry{URL: srv.URL + "/local--files/hello/pic.png", Relative: "hello/pic.png"}
		return m
	})
	store.PageIDMap.Update(func(m map[int]string) map[int]string {
		if m == nil {
			m = map[int]string{}
		}
		m[42] = "hello"
		return m
	})

	client := httpclient.New(2, nil, cookiejar.New(), "test-agent")
	errE := wikidot.DrainPendingFiles(context.Background(), client, nil, store)
	require.NoError(t, errE)

	data, err := os.ReadFile(filepath.Join(store.PageFilesDir("hello"), "7"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
	assert.Empty(t, store.PendingFiles.Get())
}

func TestDrainPendingRevisionsDropsEphemeralNamespace(t *testing.T) {
	dir := t.TempDir()
	store := wikidot.NewSiteStore(dir)
	store.PendingRevisions.Update(func(m map[int]int) map[int]int {
		if m == nil {
			m = map[int]int{}
		}
		m[9001] = 5
		return m
	})
	store.PageIDMap.Update(func(m map[int]string) map[int]string {
		if m == nil {
			m = map[int]string{}
		}
		m[5] = "nav:side"
		return m
	})

	errE := wikidot.DrainPendingRevisions(context.Background(), nil, store)
	require.NoError(t, errE)
	assert.Empty(t, store.PendingRevisions.Get())
}

func TestDrainPendingRevisionsFetchesKnownPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system:recent-changes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "wikidot_token7=tok; Path=/")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ajax-module-connector.php", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"status":"ok","body":"<div class=\"page-source\">hello world</div>"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	store := wikidot.NewSiteStore(dir)
	store.PendingRevisions.Update(func(m map[int]int) map[int]int {
		if m == nil {
			m = map[int]int{}
		}
		m[1001] = 42
		return m
	})
	store.PageIDMap.Update(func(m map[int]string) map[int]string {
		if m == nil {
			m = map[int]string{}
		}
		m[42] = "hello"
		return m
	})
	store.Page("hello").Update(func(p wikidot.PageMeta) wikidot.PageMeta {
		p.Revisions = []wikidot.PageRevision{{Revision: 3, GlobalRevision: 1001}}
		return p
	})

	jar := cookiejar.New()
	httpClient := httpclient.New(2, nil, jar, "test-agent")
	wdClient := wikidot.NewClient(httpClient, jar, srv.URL)

	errE := wikidot.DrainPendingRevisions(context.Background(), wdClient, store)
	require.NoError(t, errE)
	assert.Empty(t, store.PendingRevisions.Get())

	data, err := os.ReadFile(filepath.Join(store.PageRevisionsDir("hello"), "3.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}
