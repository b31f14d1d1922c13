package wikidot_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/cookiejar"
	"github.com/x10102/wikicomma-sub000/internal/httpclient"
	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

const indexBody = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-1.xml</loc></sitemap>
</sitemapindex>`

const leafBody = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/</loc></url>
  <url><loc>%s/hello</loc><lastmod>2024-01-02T03:04:05Z</lastmod></url>
  <url><loc>%s/forum/c-1/p/1</loc></url>
  <url><loc>%s/nav:side</loc></url>
</urlset>`

func TestResolveSiteMapFollowsIndexAndFilters(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, indexBody, srv.URL)
	})
	mux.HandleFunc("/sitemap-1.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, leafBody, srv.URL, srv.URL, srv.URL, srv.URL)
	})

	client := httpclient.New(2, nil, cookiejar.New(), "test-agent")
	var lock sync.Mutex

	entries, errE := wikidot.ResolveSiteMap(context.Background(), client, &lock, srv.URL, wikidot.Blacklist{"nav:*"})
	require.NoError(t, errE)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["hello"])
	assert.False(t, names[""])
	assert.False(t, names["forum/c-1/p/1"])
	assert.False(t, names["nav:side"])
}
