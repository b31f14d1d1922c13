package wikidot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/archive"
	"github.com/x10102/wikicomma-sub000/internal/cookiejar"
	"github.com/x10102/wikicomma-sub000/internal/httpclient"
	"github.com/x10102/wikicomma-sub000/internal/ratelimit"
	"github.com/x10102/wikicomma-sub000/internal/telemetry"
	"github.com/x10102/wikicomma-sub000/internal/wikiuser"
	"github.com/x10102/wikicomma-sub000/internal/workerpool"
)

// cacheValidFor is how long a resolved user profile is considered fresh
// before the resolver refetches it.
const cacheValidFor = 7 * 24 * time.Hour

// revisionFanOut bounds how many revision bodies are fetched concurrently
// for a single page, per spec.md §9's "bound promise-tree recursion"
// redesign flag: enforced with errgroup.SetLimit in fetchRevisionBodies
// rather than left unbounded.
const revisionFanOut = 4

// forumPagingRate throttles forum category/thread paging independently of
// the shared rate-limit bucket, the same layered-limiter shape
// internal/wikipedia.ListAllPages uses in the reference corpus.
const forumPagingRate = 2 * time.Second

// SiteConfig is everything one site's Engine needs, assembled by the
// process runner from one parsed Config (root config.go).
type SiteConfig struct {
	Tag         string // telemetry tag, usually the wiki's short name
	Name        string
	BaseURL     string // e.g. "https://example.wikidot.com"
	Dir         string // this site's directory under base_directory
	Blacklist   Blacklist
	MaximumJobs int
	DelayMs     int
	UserAgent   string
	HTTPProxy   string
	SOCKSProxy  string
	DryRun      bool
}

// Engine runs the full incremental crawl state machine for one site, per
// spec.md §4.8.
type Engine struct {
	cfg SiteConfig
	log zerolog.Logger

	store    *SiteStore
	http     *httpclient.Client
	wd       *Client
	users    *wikiuser.Resolver
	pool     *workerpool.Pool
	archiver *archive.Compressor
	sink     telemetry.Sink

	sitemapLock  *sync.Mutex
	forumLimiter *rate.Limiter
}

// NewEngine wires together one site's storage, HTTP client, user resolver
// and worker pool. sitemapLock is shared by every Engine the process runner
// constructs from the same Config, per spec.md §5's cross-site
// coordination requirement.
func NewEngine(cfg SiteConfig, sitemapLock *sync.Mutex, bucket *ratelimit.Bucket, archiver *archive.Compressor, sink telemetry.Sink, log zerolog.Logger) (*Engine, errors.E) {
	store := NewSiteStore(cfg.Dir)

	jar := cookiejarFor(store)

	httpClient := httpclient.New(cfg.MaximumJobs, bucket, jar, cfg.UserAgent)
	httpClient.SOCKSProxy = cfg.SOCKSProxy
	if cfg.HTTPProxy != "" {
		if u, err := parseProxyURL(cfg.HTTPProxy); err == nil {
			httpClient.HTTPProxy = u
		}
	}

	wdClient := NewClient(httpClient, jar, cfg.BaseURL)

	users, errE := wikiuser.NewResolver(httpClient, store.UsersDir(), cacheValidFor)
	if errE != nil {
		return nil, errE
	}

	delay := time.Duration(cfg.DelayMs) * time.Millisecond
	pool := workerpool.New(delay, cfg.MaximumJobs)

	return &Engine{
		cfg:          cfg,
		log:          log.With().Str("site", cfg.Name).Logger(),
		store:        store,
		http:         httpClient,
		wd:           wdClient,
		users:        users,
		pool:         pool,
		archiver:     archiver,
		sink:         sink,
		sitemapLock:  sitemapLock,
		forumLimiter: rate.NewLimiter(rate.Every(forumPagingRate), 1),
	}, nil
}

func (e *Engine) send(ctx context.Context, msg telemetry.Message) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Send(ctx, msg); err != nil {
		e.log.Warn().Err(err).Msg("telemetry send failed")
	}
}

// Run executes the ten-step crawl for this site once: init, page-id map
// rebuild, sitemap fetch, deletions, per-page scan (with its revision-body
// fan-out), forums, postponed files, postponed revisions, and a final
// compaction sweep. It returns the first fatal error encountered; pages and
// threads that individually fail are reported as telemetry
// ErrorNonfatal rather than aborting the run; failed pages are counted as
// postponed in the PagesMain progress message but are not written to
// PendingPages.
func (e *Engine) Run(ctx context.Context) errors.E {
	e.send(ctx, telemetry.Handshake(e.cfg.Tag))

	if errE := e.init(ctx); errE != nil {
		e.send(ctx, telemetry.ErrorFatal(e.cfg.Tag, telemetry.ErrorKindClientOffline, e.cfg.Name, errE.Error()))
		return errE
	}

	e.rebuildPageIDMap()

	e.send(ctx, telemetry.Progress(e.cfg.Tag, telemetry.StatusBuildingSitemap, nil, nil))
	siteMap, errE := ResolveSiteMap(ctx, e.http, e.sitemapLock, e.cfg.BaseURL, e.cfg.Blacklist)
	if errE != nil {
		e.send(ctx, telemetry.ErrorFatal(e.cfg.Tag, telemetry.ErrorKindMalformedSitemap, e.cfg.Name, errE.Error()))
		return errE
	}

	if e.cfg.DryRun {
		e.reportDryRun(siteMap)
		return nil
	}

	e.applyDeletions(siteMap)

	total := len(siteMap)
	e.send(ctx, telemetry.Preflight(e.cfg.Tag, total))

	var done, postponed atomic.Int64
	for _, entry := range siteMap {
		entry := entry
		e.pool.Add(func(ctx context.Context) errors.E {
			if errE := e.scanPage(ctx, entry); errE != nil {
				postponed.Add(1)
				e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindWikidotInternal, entry.Name, errE.Error()))
				return nil
			}
			done.Add(1)
			e.send(ctx, telemetry.PageDone(e.cfg.Tag))
			return nil
		})
	}
	workers := e.cfg.MaximumJobs
	if workers <= 0 {
		workers = 1
	}
	_ = e.pool.Run(ctx, workers)
	doneN, postponedN := int(done.Load()), int(postponed.Load())
	e.send(ctx, telemetry.Progress(e.cfg.Tag, telemetry.StatusPagesMain, &doneN, &postponedN))

	if errE := e.scanForums(ctx); errE != nil {
		e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindForumListFetch, e.cfg.Name, errE.Error()))
	}

	e.send(ctx, telemetry.Progress(e.cfg.Tag, telemetry.StatusFilesPending, nil, nil))
	if errE := DrainPendingFiles(ctx, e.http, e.wd, e.store); errE != nil {
		e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindFileFetch, e.cfg.Name, errE.Error()))
	}

	e.send(ctx, telemetry.Progress(e.cfg.Tag, telemetry.StatusPagesPending, nil, nil))
	if errE := DrainPendingRevisions(ctx, e.wd, e.store); errE != nil {
		e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindWikidotInternal, e.cfg.Name, errE.Error()))
	}

	e.send(ctx, telemetry.Progress(e.cfg.Tag, telemetry.StatusCompressing, nil, nil))
	e.compact(ctx)

	if errE := e.store.Sync(); errE != nil {
		return errE
	}
	if errE := e.users.Sync(); errE != nil {
		return errE
	}
	if errE := e.saveCookies(); errE != nil {
		return errE
	}

	e.send(ctx, telemetry.FinishSuccess(e.cfg.Tag))
	return nil
}

// init seeds the cookie jar from disk (if present) and ensures a
// wikidot_token7 is available, replaying any pending user lookups left over
// from a previous run in the background.
func (e *Engine) init(ctx context.Context) errors.E {
	e.users.ReplayPending(ctx)
	if _, errE := e.wd.EnsureToken(ctx); errE != nil {
		return errE
	}
	return nil
}

// rebuildPageIDMap walks every persisted page-metadata file and
// reconstructs PageIDMap (page_id -> page name as stored in the metadata,
// not normalised) from it, so a PageIDMap
// corrupted or lost between runs is recoverable from the per-page files
// that remain the source of truth.
func (e *Engine) rebuildPageIDMap() {
	dir := filepath.Join(e.cfg.Dir, "meta", "pages")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	rebuilt := map[int]string{}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		normName := trimJSONSuffix(ent.Name())
		meta := e.store.Page(normName).Get()
		if meta.PageID != 0 {
			rebuilt[meta.PageID] = meta.Name
		}
	}
	if len(rebuilt) > 0 {
		e.store.PageIDMap.Update(func(map[int]string) map[int]string { return rebuilt })
	}
}

func trimJSONSuffix(name string) string {
	const suffix = ".json"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// applyDeletions removes every page recorded in the previous SiteMap but
// absent from the freshly resolved one, per spec.md §4.8 step 4's
// markPageRemoved, and updates the persisted SiteMap/PageIDMap to match.
func (e *Engine) applyDeletions(fresh []SiteMapEntry) {
	previous := e.store.SiteMap.Get()
	freshByName := make(map[string]SiteMapEntry, len(fresh))
	for _, entry := range fresh {
		freshByName[entry.Name] = entry
	}

	for name := range previous {
		if _, still := freshByName[name]; still {
			continue
		}
		normName := NormalizeName(name)
		if errE := e.store.DeletePage(normName); errE != nil {
			e.log.Warn().Err(errE).Str("page", name).Msg("failed to remove deleted page")
			continue
		}
		e.store.PageIDMap.Update(func(m map[int]string) map[int]string {
			for id, n := range m {
				if n == name {
					delete(m, id)
				}
			}
			return m
		})
	}

	e.store.SiteMap.Update(func(map[string]SiteMapEntry) map[string]SiteMapEntry { return freshByName })
}

func (e *Engine) reportDryRun(siteMap []SiteMapEntry) {
	previous := e.store.SiteMap.Get()
	newPages := 0
	for _, entry := range siteMap {
		if _, known := previous[entry.Name]; !known {
			newPages++
		}
	}
	e.log.Info().
		Int("total_pages", len(siteMap)).
		Int("new_pages", newPages).
		Msg("dry run: no fetches performed")
}

// scanPage fetches a page's current info, decides whether anything changed,
// refreshes votes/lock/files when it did, and fans out over any new
// revisions bounded by revisionFanOut, per spec.md §4.8 step 5/6. A page is
// skipped entirely (aside from keeping PageIDMap current) when its prior
// sitemap_update equals the sitemap's lastmod and its metadata file still
// exists on disk, per spec.md §4.8 step 5.
func (e *Engine) scanPage(ctx context.Context, entry SiteMapEntry) errors.E {
	normName := NormalizeName(entry.Name)
	pageDoc := e.store.Page(normName)
	local := pageDoc.Get()

	if entry.LastMod != nil && local.SitemapUpdate == entry.LastMod.Format(time.RFC3339) {
		if _, err := os.Stat(e.store.PagePath(normName)); err == nil {
			e.store.PageIDMap.Update(func(m map[int]string) map[int]string {
				if m == nil {
					m = map[int]string{}
				}
				m[local.PageID] = entry.Name
				return m
			})
			return nil
		}
	}

	info, errE := FetchPageInfo(ctx, e.http, e.cfg.BaseURL, entry.Name)
	if errE != nil {
		if errors.Is(errE, ErrPageNotFound) {
			return e.store.DeletePage(normName)
		}
		return errE
	}

	// A page_id change under the same name means the remote name was
	// reassigned to a different page; the old page's revisions/files/votes
	// must not be mixed into the new page's history, so wipe them first.
	if local.PageID != 0 && local.PageID != info.PageID {
		if errE := e.store.DeletePage(normName); errE != nil {
			return errE
		}
		pageDoc = e.store.Page(normName)
		local = PageMeta{}
	}
	localMax := local.MaxRevision()

	pageDoc.Update(func(p PageMeta) PageMeta {
		p.Name = entry.Name
		p.PageID = info.PageID
		p.Title = info.Title
		p.Tags = info.Tags
		p.Rating = info.Rating
		p.Parent = info.Parent
		p.Version = PageMetadataVersion
		if entry.LastMod != nil {
			p.SitemapUpdate = entry.LastMod.Format(time.RFC3339)
		}
		return p
	})

	e.store.PageIDMap.Update(func(m map[int]string) map[int]string {
		if m == nil {
			m = map[int]string{}
		}
		m[info.PageID] = entry.Name
		return m
	})

	if voters, errE := FetchVoters(ctx, e.wd, info.PageID); errE == nil {
		pageDoc.Update(func(p PageMeta) PageMeta { p.Votings = voters; return p })
	} else {
		e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindVoteFetch, entry.Name, errE.Error()))
	}

	if locked, errE := FetchLockStatus(ctx, e.wd, info.PageID); errE == nil {
		pageDoc.Update(func(p PageMeta) PageMeta { p.IsLocked = locked; return p })
	} else {
		e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindLockStatusFetch, entry.Name, errE.Error()))
	}

	if files, errE := FetchFiles(ctx, e.wd, info.PageID); errE == nil {
		pageDoc.Update(func(p PageMeta) PageMeta { p.Files = files; return p })
		e.queuePendingFiles(files)
	} else {
		e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindFileMetaFetch, entry.Name, errE.Error()))
	}

	// Persist metadata before fetching revision bodies, so a crash mid-fetch
	// doesn't lose the title/tags/rating/parent/voters/lock/files already
	// retrieved, per spec.md §4.8 step 5.
	if errE := pageDoc.Sync(); errE != nil {
		return errE
	}

	newRevisions, errE := FetchNewRevisions(ctx, e.wd, info.PageID, localMax)
	if errE != nil {
		return errE
	}
	if len(newRevisions) == 0 {
		return nil
	}

	if errE := e.fetchRevisionBodies(ctx, normName, info.PageID, newRevisions); errE != nil {
		return errE
	}

	pageDoc.Update(func(p PageMeta) PageMeta {
		p.Revisions = append(newRevisions, p.Revisions...)
		return p
	})
	return pageDoc.Sync()
}

// fetchRevisionBodies downloads the text of every new revision, bounded to
// revisionFanOut concurrent fetches via errgroup.SetLimit — the pool-borrow
// shape spec.md §9 calls for instead of unbounded recursive fan-out.
// Revisions whose body fetch fails are recorded in PendingRevisions for a
// later drain pass rather than aborting the whole page.
func (e *Engine) fetchRevisionBodies(ctx context.Context, normName string, pageID int, revisions []PageRevision) errors.E {
	dir := e.store.PageRevisionsDir(normName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(revisionFanOut)

	for _, rev := range revisions {
		rev := rev
		g.Go(func() error {
			body, errE := FetchRevisionBody(gctx, e.wd, pageID, rev.Revision)
			if errE != nil {
				e.store.PendingRevisions.Update(func(m map[int]int) map[int]int {
					if m == nil {
						m = map[int]int{}
					}
					m[rev.GlobalRevision] = pageID
					return m
				})
				return nil
			}
			path := filepath.Join(dir, fmt.Sprintf("%d.txt", rev.Revision))
			return os.WriteFile(path, []byte(body), 0o644)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// queuePendingFiles appends any file id not yet recorded in FileMap to
// PendingFiles, so the postponed-files drain (step 8) can download it.
func (e *Engine) queuePendingFiles(files []FileMeta) {
	fileMap := e.store.FileMap.Get()
	var newIDs []int
	for _, f := range files {
		if f.FileID == 0 {
			continue
		}
		if _, known := fileMap[f.FileID]; known {
			continue
		}
		if f.URL != "" {
			e.store.FileMap.Update(func(m map[int]FileMapEntry) map[int]FileMapEntry {
				if m == nil {
					m = map[int]FileMapEntry{}
				}
				m[f.FileID] = FileMapEntry{URL: f.URL, Relative: f.Name}
				return m
			})
			continue
		}
		newIDs = append(newIDs, f.FileID)
	}
	if len(newIDs) == 0 {
		return
	}
	e.store.PendingFiles.Update(func(list []int) []int {
		for _, id := range newIDs {
			found := false
			for _, existing := range list {
				if existing == id {
					found = true
					break
				}
			}
			if !found {
				list = append(list, id)
			}
		}
		return list
	})
}

// scanForums walks every forum category, refetching thread pages only for
// categories ShouldFetchCategory flags (new, stale schema version, not fully
// scanned, or a moved last-post marker), and
// within a category refetching only the threads ShouldFetchThread flags,
// per spec.md §4.8 step 7. Category/thread paging is throttled by
// forumLimiter on top of the shared rate-limit bucket.
func (e *Engine) scanForums(ctx context.Context) errors.E {
	categories, errE := FetchForumCategories(ctx, e.wd)
	if errE != nil {
		return errE
	}

	for _, remote := range categories {
		if err := e.forumLimiter.Wait(ctx); err != nil {
			return errors.WithStack(err)
		}

		catDoc := e.store.Category(remote.ID)
		local := catDoc.Get()
		hadLocal := local.ID != 0

		if !ShouldFetchCategory(remote, local, hadLocal) {
			continue
		}

		if errE := e.scanCategoryThreads(ctx, remote); errE != nil {
			e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindForumListFetch, remote.Title, errE.Error()))
			continue
		}

		catDoc.Update(func(c ForumCategory) ForumCategory {
			remote.FullScan = true
			remote.Version = ForumMetadataVersion
			return remote
		})
		if errE := catDoc.Sync(); errE != nil {
			return errE
		}
	}
	return nil
}

func (e *Engine) scanCategoryThreads(ctx context.Context, category ForumCategory) errors.E {
	for page := 1; ; page++ {
		if err := e.forumLimiter.Wait(ctx); err != nil {
			return errors.WithStack(err)
		}
		threads, errE := FetchThreadPage(ctx, e.wd, category.ID, page)
		if errE != nil {
			return errE
		}
		if len(threads) == 0 {
			break
		}

		for _, remote := range threads {
			threadDoc := e.store.Thread(category.ID, remote.ID)
			local := threadDoc.Get()
			var localPtr *ForumThread
			if local.ID != 0 {
				localPtr = &local
			}
			if !ShouldFetchThread(remote, localPtr) {
				continue
			}

			posts, errE := FetchThreadPosts(ctx, e.wd, remote.ID)
			if errE != nil {
				e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindForumPostFetch, remote.Title, errE.Error()))
				continue
			}
			e.fetchPostRevisions(ctx, category.ID, remote.ID, posts)

			threadDoc.Update(func(ForumThread) ForumThread {
				remote.Version = ForumMetadataVersion
				remote.Posts = posts
				return remote
			})
			if errE := threadDoc.Sync(); errE != nil {
				return errE
			}

			if remote.PostsNum != CountPosts(posts) {
				e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindForumCountMismatch, remote.Title, "post count mismatch after fetch"))
			}
		}
	}
	return nil
}

// fetchPostRevisions persists the latest body of every post in the tree,
// writing each post's bodies under SiteStore.PostDir(category, thread,
// post). A post's revision list (and each revision's body) is only
// retrieved when the post carries a lastEdit marker, per spec.md §4.8 step
// 7 — an unedited post has exactly one body, the one latest.html already
// captures, so there is nothing a revision list would add.
func (e *Engine) fetchPostRevisions(ctx context.Context, categoryID, threadID int, posts []LocalForumPost) {
	for i := range posts {
		post := &posts[i]
		dir := e.store.PostDir(categoryID, threadID, post.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			e.log.Warn().Err(err).Int("post", post.ID).Msg("failed to create post directory")
			continue
		}

		if latest, errE := FetchPostLatestBody(ctx, e.wd, post.ID); errE == nil {
			_ = os.WriteFile(filepath.Join(dir, "latest.html"), []byte(latest), 0o644)
		}

		if post.LastEdit != nil {
			revisions, errE := FetchPostRevisions(ctx, e.wd, post.ID)
			if errE != nil {
				e.send(ctx, telemetry.ErrorNonfatal(e.cfg.Tag, telemetry.ErrorKindForumPostFetch, post.Title, errE.Error()))
			} else {
				post.Revisions = revisions
				for _, rev := range revisions {
					body, errE := FetchPostRevisionBody(ctx, e.wd, rev.ID)
					if errE != nil {
						continue
					}
					_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.html", rev.ID)), []byte(body), 0o644)
				}
			}
		}

		e.fetchPostRevisions(ctx, categoryID, threadID, post.Children)
	}
}

// compact archives every page/thread whose loose revision/post files are no
// longer the most recent write target — in practice, every one seen during
// this run — into its .7z container via the configured Compressor, then
// removes the loose directory. Archive list()/add() is idempotent on a
// byte-identical file, so re-running compaction on an already-compacted
// page is always safe.
func (e *Engine) compact(ctx context.Context) {
	if e.archiver == nil {
		return
	}

	pagesDir := filepath.Join(e.cfg.Dir, "pages")
	entries, err := os.ReadDir(pagesDir)
	if err != nil {
		return
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		normName := ent.Name()
		e.compactDir(ctx, filepath.Join(pagesDir, normName), e.store.PageArchivePath(normName))
	}

	forumDir := filepath.Join(e.cfg.Dir, "forum")
	categoryDirs, err := os.ReadDir(forumDir)
	if err != nil {
		return
	}
	for _, catDir := range categoryDirs {
		if !catDir.IsDir() {
			continue
		}
		threadDirs, err := os.ReadDir(filepath.Join(forumDir, catDir.Name()))
		if err != nil {
			continue
		}
		for _, threadDir := range threadDirs {
			if !threadDir.IsDir() {
				continue
			}
			dir := filepath.Join(forumDir, catDir.Name(), threadDir.Name())
			archivePath := filepath.Join(forumDir, catDir.Name(), threadDir.Name()+".7z")
			e.compactDir(ctx, dir, archivePath)
		}
	}
}

func (e *Engine) compactDir(ctx context.Context, dir, archivePath string) {
	files, err := os.ReadDir(dir)
	if err != nil || len(files) == 0 {
		return
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}

	if errE := e.archiver.Add(ctx, archivePath, names, archive.AddOptions{WorkDir: dir}); errE != nil {
		e.log.Warn().Err(errE).Str("dir", dir).Msg("compaction failed, leaving loose files in place")
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		e.log.Warn().Err(err).Str("dir", dir).Msg("failed to remove compacted directory")
	}
}

// cookiejarFor loads a site's persisted cookie jar from disk, starting with
// an empty jar when none has been saved yet (first run).
func cookiejarFor(store *SiteStore) *cookiejar.Jar {
	jar := cookiejar.New()
	data, err := os.ReadFile(store.CookiesPath())
	if err != nil {
		return jar
	}
	_ = jar.Deserialize(data)
	return jar
}

func parseProxyURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

func (e *Engine) saveCookies() errors.E {
	data, err := e.wd.Jar.Serialize()
	if err != nil {
		return errors.WithStack(err)
	}
	path := e.store.CookiesPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
