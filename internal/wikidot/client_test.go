package wikidot_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/cookiejar"
	"github.com/x10102/wikicomma-sub000/internal/httpclient"
	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

func TestEnsureTokenFetchesFrontPageWhenCookieAbsent(t *testing.T) {
	var frontPageHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/system:recent-changes", func(w http.ResponseWriter, r *http.Request) {
		frontPageHits.Add(1)
		w.Header().Set("Set-Cookie", "wikidot_token7=abc123; Path=/")
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar := cookiejar.New()
	client := httpclient.New(2, nil, jar, "test-agent")
	c := wikidot.NewClient(client, jar, srv.URL)

	tok, errE := c.EnsureToken(context.Background())
	require.NoError(t, errE)
	assert.Equal(t, "abc123", tok)
	assert.EqualValues(t, 1, frontPageHits.Load())

	tok2, errE := c.EnsureToken(context.Background())
	require.NoError(t, errE)
	assert.Equal(t, "abc123", tok2)
	assert.EqualValues(t, 1, frontPageHits.Load())
}

func TestCallReturnsBodyOnOkStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system:recent-changes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "wikidot_token7=tok; Path=/")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ajax-module-connector.php", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"status":"ok","body":"<div>hi</div>"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar := cookiejar.New()
	client := httpclient.New(2, nil, jar, "test-agent")
	c := wikidot.NewClient(client, jar, srv.URL)

	body, errE := c.Call(context.Background(), "some/Module", map[string]string{"page_id": "1"}, false)
	require.NoError(t, errE)
	assert.Equal(t, "<div>hi</div>", body)
}

func TestCallSoftModeSwallowsNonOkStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system:recent-changes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "wikidot_token7=tok; Path=/")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ajax-module-connector.php", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"status":"not_ok","message":"nope"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar := cookiejar.New()
	client := httpclient.New(2, nil, jar, "test-agent")
	c := wikidot.NewClient(client, jar, srv.URL)

	body, errE := c.Call(context.Background(), "some/Module", nil, true)
	require.NoError(t, errE)
	assert.Empty(t, body)
}

func TestCallHardModePropagatesNonOkStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/system:recent-changes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "wikidot_token7=tok; Path=/")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ajax-module-connector.php", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"status":"not_ok","message":"nope"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	jar := cookiejar.New()
	client := httpclient.New(2, nil, jar, "test-agent")
	c := wikidot.NewClient(client, jar, srv.URL)

	_, errE := c.Call(context.Background(), "some/Module", nil, false)
	require.Error(t, errE)
}
