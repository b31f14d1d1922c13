package wikidot

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/httpclient"
)

// maxSitemapDepth bounds <sitemapindex> recursion so a misbehaving or
// cyclic remote sitemap cannot recurse forever.
const maxSitemapDepth = 5

// ResolveSiteMap fetches and recursively resolves baseURL+"/sitemap.xml",
// returning one SiteMapEntry per page name, per spec.md §4.8 step 3.
// Forum URLs, blacklisted names, and the empty root are dropped; URLs on a
// different host than expected contribute only their path. lock is the
// cross-site "sitemap lock" (spec.md §5): it is held for the entire
// recursive resolution so two sites never burst the remote simultaneously.
func ResolveSiteMap(ctx context.Context, client *httpclient.Client, lock *sync.Mutex, baseURL string, blacklist Blacklist) ([]SiteMapEntry, errors.E) {
	lock.Lock()
	defer lock.Unlock()

	seen := map[string]bool{}
	byName := map[string]SiteMapEntry{}

	if errE := resolveOne(ctx, client, baseURL+"/sitemap.xml", blacklist, 0, seen, byName); errE != nil {
		return nil, errE
	}

	entries := make([]SiteMapEntry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	return entries, nil
}

func resolveOne(ctx context.Context, client *httpclient.Client, sitemapURL string, blacklist Blacklist, depth int, seen map[string]bool, out map[string]SiteMapEntry) errors.E {
	if depth > maxSitemapDepth || seen[sitemapURL] {
		return nil
	}
	seen[sitemapURL] = true

	resp, errE := client.Get(ctx, sitemapURL, httpclient.Options{FollowRedirects: true})
	if errE != nil {
		return errE
	}

	if bytes.Contains(resp.Body, []byte("<sitemapindex")) {
		var subURLs []string
		err := sitemap.ParseIndex(bytes.NewReader(resp.Body), func(e sitemap.Entry) error {
			subURLs = append(subURLs, e.GetLocation())
			return nil
		})
		if err != nil {
			errE := errors.WithStack(ErrMalformedSitemap)
			errors.Details(errE)["url"] = sitemapURL
			errors.Details(errE)["cause"] = err.Error()
			return errE
		}
		for _, sub := range subURLs {
			if errE := resolveOne(ctx, client, sub, blacklist, depth+1, seen, out); errE != nil {
				return errE
			}
		}
		return nil
	}

	err := sitemap.Parse(bytes.NewReader(resp.Body), func(e sitemap.Entry) error {
		name, ok := pageNameFromURL(e.GetLocation())
		if !ok || blacklist.Matches(name) {
			return nil
		}
		entry := SiteMapEntry{Name: name}
		if mod := e.GetLastModified(); !mod.IsZero() {
			t := mod.UTC()
			entry.LastMod = &t
		}
		out[name] = entry
		return nil
	})
	if err != nil {
		errE := errors.WithStack(ErrMalformedSitemap)
		errors.Details(errE)["url"] = sitemapURL
		errors.Details(errE)["cause"] = err.Error()
		return errE
	}
	return nil
}

// pageNameFromURL converts a sitemap <loc> entry into an on-disk page
// name: the path with leading/trailing slashes trimmed, regardless of
// which host the URL carries (per spec.md §4.8 step 3's "for URLs on a
// different host than expected, use their path" rule — the path is all
// that is ever kept, on any host). Forum URLs (the documented
// /forum/... endpoints) and the empty root are rejected.
func pageNameFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "", false
	}
	if strings.HasPrefix(name, "forum/") {
		return "", false
	}
	return name, true
}
