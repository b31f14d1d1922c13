package wikidot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/httpclient"
)

// ephemeralNamespaces holds the page-name prefixes whose revisions are
// dropped from PendingRevisions on repeated failure rather than retried
// forever, per spec.md §4.8 step 9 ("nav:", "tech:" namespaces).
var ephemeralNamespaces = []string{"nav:", "tech:"}

func isEphemeralNamespace(name string) bool {
	for _, prefix := range ephemeralNamespaces {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DrainPendingFiles attempts to fetch the bytes of every file id in
// store.PendingFiles, per spec.md §4.8 step 8: ensure a FileMap record
// exists (re-fetching file metadata when missing), resolve the owning
// page, download, and on success remove the id from PendingFiles.
func DrainPendingFiles(ctx context.Context, client *httpclient.Client, wdClient *Client, store *SiteStore) errors.E {
	ids := store.PendingFiles.Get()
	fileMap := store.FileMap.Get()
	pageIDMap := store.PageIDMap.Get()

	for _, fileID := range ids {
		entry, ok := fileMap[fileID]
		if !ok {
			refetched, errE := refetchFileMeta(ctx, wdClient, fileID)
			if errE != nil || refetched == nil {
				continue // retried next run
			}
			entry = *refetched
			store.FileMap.Update(func(m map[int]FileMapEntry) map[int]FileMapEntry {
				if m == nil {
					m = map[int]FileMapEntry{}
				}
				m[fileID] = entry
				return m
			})
			fileMap[fileID] = entry
		}

		pageName, pageFound := findOwningPage(store, pageIDMap, entry)
		if !pageFound {
			continue
		}

		resp, errE := client.Get(ctx, entry.URL, httpclient.Options{FollowRedirects: true})
		if errE != nil {
			continue
		}

		dest := filepath.Join(store.PageFilesDir(NormalizeName(pageName)), strconv.Itoa(fileID))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.WithStack(err)
		}
		if err := os.WriteFile(dest, resp.Body, 0o644); err != nil {
			return errors.WithStack(err)
		}

		store.PendingFiles.Update(func(list []int) []int {
			return removeInt(list, fileID)
		})
	}
	return store.PendingFiles.Sync()
}

// refetchFileMeta calls files/FileInformationWinModule to rebuild a
// missing FileMap entry, extracting the download URL from the returned
// fragment's file link. Returns (nil, nil) when the module call itself
// succeeds but carries no recoverable URL, which callers treat the same
// as "try again next run".
func refetchFileMeta(ctx context.Context, client *Client, fileID int) (*FileMapEntry, errors.E) {
	if client == nil {
		return nil, nil
	}
	body, errE := client.Call(ctx, "files/FileInformationWinModule", map[string]string{
		"fileId": strconv.Itoa(fileID),
	}, true)
	if errE != nil || body == "" {
		return nil, errE
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	href, ok := doc.Find("a.file-download, a[href*='local--files']").First().Attr("href")
	if !ok || href == "" {
		return nil, nil
	}
	relative := strings.TrimPrefix(href, "/local--files/")
	fullURL := href
	if strings.HasPrefix(href, "/") {
		fullURL = client.BaseURL + href
	}
	return &FileMapEntry{URL: fullURL, Relative: relative}, nil
}

// findOwningPage locates the page name a file's relative path belongs to,
// by matching FileMap's recorded relative path against every known page
// directory. This is a best-effort scan since the remote gives no direct
// file-id→page-name mapping outside of FileInformationWinModule.
func findOwningPage(_ *SiteStore, pageIDMap map[int]string, entry FileMapEntry) (string, bool) {
	for _, name := range pageIDMap {
		if strings.HasPrefix(entry.Relative, NormalizeName(name)+"/") {
			return name, true
		}
	}
	return "", false
}

// DrainPendingRevisions retries every (global_revision, page_id) pair in
// store.PendingRevisions, per spec.md §4.8 step 9: locate the owning page
// via PageIDMap, find its matching PageRevision, retry the body fetch.
// Pages in ephemeral namespaces still get one fetch attempt; only a failed
// (or unfindable) attempt drops them from the queue outright instead of
// being kept for another run, since their revisions are never expected to
// stay fetchable.
func DrainPendingRevisions(ctx context.Context, client *Client, store *SiteStore) errors.E {
	pending := store.PendingRevisions.Get()
	pageIDMap := store.PageIDMap.Get()

	for globalRevision, pageID := range pending {
		name, ok := pageIDMap[pageID]
		if !ok {
			store.PendingRevisions.Update(func(m map[int]int) map[int]int {
				delete(m, globalRevision)
				return m
			})
			continue
		}

		normName := NormalizeName(name)
		pageDoc := store.Page(normName)
		meta := pageDoc.Get()

		var revision *PageRevision
		for i := range meta.Revisions {
			if meta.Revisions[i].GlobalRevision == globalRevision {
				revision = &meta.Revisions[i]
				break
			}
		}
		if revision == nil {
			if isEphemeralNamespace(name) {
				store.PendingRevisions.Update(func(m map[int]int) map[int]int {
					delete(m, globalRevision)
					return m
				})
			}
			continue
		}

		body, errE := FetchRevisionBody(ctx, client, pageID, revision.Revision)
		if errE != nil {
			if isEphemeralNamespace(name) {
				store.PendingRevisions.Update(func(m map[int]int) map[int]int {
					delete(m, globalRevision)
					return m
				})
			}
			continue
		}

		path := filepath.Join(store.PageRevisionsDir(normName), fmt.Sprintf("%d.txt", revision.Revision))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.WithStack(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return errors.WithStack(err)
		}

		store.PendingRevisions.Update(func(m map[int]int) map[int]int {
			delete(m, globalRevision)
			return m
		})
	}
	return store.PendingRevisions.Sync()
}

func removeInt(list []int, v int) []int {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
