package wikidot

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/docstore"
)

// SiteStore owns every durable JSON document for one site, laid out under
// baseDir exactly as documented in spec.md §6's on-disk layout. Per-page
// and per-thread documents are created lazily (spec.md §4.5's "first use
// lazily reads the file"), one docstore.Document per file, so concurrent
// tasks touching different pages never contend on the same mutex.
type SiteStore struct {
	dir string

	SiteMap          *docstore.Document[map[string]SiteMapEntry]
	PendingPages     *docstore.Document[[]string]
	PendingFiles     *docstore.Document[[]int]
	PendingRevisions *docstore.Document[map[int]int] // global_revision -> page_id
	FileMap          *docstore.Document[map[int]FileMapEntry]
	PageIDMap        *docstore.Document[map[int]string]

	mu         sync.Mutex
	pages      map[string]*docstore.Document[PageMeta]
	categories map[int]*docstore.Document[ForumCategory]
	threads    map[string]*docstore.Document[ForumThread]
}

// NewSiteStore creates a SiteStore rooted at dir (a site's own directory
// under base_directory/<wiki>/).
func NewSiteStore(dir string) *SiteStore {
	return &SiteStore{
		dir:              dir,
		SiteMap:          docstore.New[map[string]SiteMapEntry](filepath.Join(dir, "meta", "sitemap.json"), nil),
		PendingPages:     docstore.New[[]string](filepath.Join(dir, "meta", "pending_pages.json"), nil),
		PendingFiles:     docstore.New[[]int](filepath.Join(dir, "meta", "pending_files.json"), nil),
		PendingRevisions: docstore.New[map[int]int](filepath.Join(dir, "meta", "pending_revisions.json"), nil),
		FileMap:          docstore.New[map[int]FileMapEntry](filepath.Join(dir, "meta", "file_map.json"), nil),
		PageIDMap:        docstore.New[map[int]string](filepath.Join(dir, "meta", "page_id_map.json"), nil),
		pages:            map[string]*docstore.Document[PageMeta]{},
		categories:       map[int]*docstore.Document[ForumCategory]{},
		threads:          map[string]*docstore.Document[ForumThread]{},
	}
}

// PagePath returns the on-disk path of a page's metadata JSON file.
func (s *SiteStore) PagePath(normName string) string {
	return filepath.Join(s.dir, "meta", "pages", normName+".json")
}

// PageArchivePath returns the on-disk path of a page's compacted archive.
func (s *SiteStore) PageArchivePath(normName string) string {
	return filepath.Join(s.dir, "pages", normName+".7z")
}

// PageRevisionsDir returns the directory holding a page's uncompacted
// raw revision text files.
func (s *SiteStore) PageRevisionsDir(normName string) string {
	return filepath.Join(s.dir, "pages", normName)
}

// PageFilesDir returns the directory holding a page's downloaded files.
func (s *SiteStore) PageFilesDir(normName string) string {
	return filepath.Join(s.dir, "files", normName)
}

// Page returns (creating if necessary) the durable document for a page's
// metadata, keyed by its normalised name.
func (s *SiteStore) Page(normName string) *docstore.Document[PageMeta] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.pages[normName]; ok {
		return d
	}
	d := docstore.New[PageMeta](s.PagePath(normName), nil)
	s.pages[normName] = d
	return d
}

// DeletePage removes every on-disk trace of a page: its metadata JSON,
// compacted archive, raw revision folder, and files folder, per spec.md
// §4.8 step 4's markPageRemoved.
func (s *SiteStore) DeletePage(normName string) errors.E {
	s.mu.Lock()
	delete(s.pages, normName)
	s.mu.Unlock()

	paths := []string{
		s.PagePath(normName),
		s.PageArchivePath(normName),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.WithStack(err)
		}
	}
	for _, dir := range []string{s.PageRevisionsDir(normName), s.PageFilesDir(normName)} {
		if err := os.RemoveAll(dir); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// CategoryPath returns the on-disk path of a forum category's metadata.
func (s *SiteStore) CategoryPath(id int) string {
	return filepath.Join(s.dir, "meta", "forum", "category", strconv.Itoa(id)+".json")
}

// Category returns (creating if necessary) the durable document for a
// forum category.
func (s *SiteStore) Category(id int) *docstore.Document[ForumCategory] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.categories[id]; ok {
		return d
	}
	d := docstore.New[ForumCategory](s.CategoryPath(id), nil)
	s.categories[id] = d
	return d
}

// ThreadPath returns the on-disk path of a thread's metadata.
func (s *SiteStore) ThreadPath(categoryID, threadID int) string {
	return filepath.Join(s.dir, "meta", "forum", strconv.Itoa(categoryID), strconv.Itoa(threadID)+".json")
}

// ThreadArchivePath returns the on-disk path of a thread's compacted
// archive.
func (s *SiteStore) ThreadArchivePath(categoryID, threadID int) string {
	return filepath.Join(s.dir, "forum", strconv.Itoa(categoryID), strconv.Itoa(threadID)+".7z")
}

// ThreadDir returns the directory holding a thread's uncompacted post
// bodies.
func (s *SiteStore) ThreadDir(categoryID, threadID int) string {
	return filepath.Join(s.dir, "forum", strconv.Itoa(categoryID), strconv.Itoa(threadID))
}

// PostDir returns the directory holding one post's revision bodies inside
// an uncompacted thread directory.
func (s *SiteStore) PostDir(categoryID, threadID, postID int) string {
	return filepath.Join(s.ThreadDir(categoryID, threadID), strconv.Itoa(postID))
}

// Thread returns (creating if necessary) the durable document for a
// forum thread.
func (s *SiteStore) Thread(categoryID, threadID int) *docstore.Document[ForumThread] {
	key := strconv.Itoa(categoryID) + "/" + strconv.Itoa(threadID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.threads[key]; ok {
		return d
	}
	d := docstore.New[ForumThread](s.ThreadPath(categoryID, threadID), nil)
	s.threads[key] = d
	return d
}

// CookiesPath returns the path of the site's serialised cookie jar.
func (s *SiteStore) CookiesPath() string {
	return filepath.Join(s.dir, "http_cookies.json")
}

// UsersDir returns the directory the site's user resolver stores its
// bucketed cache and pending list under.
func (s *SiteStore) UsersDir() string {
	return filepath.Join(s.dir, "_users")
}

// Sync flushes every top-level document and every page/category/thread
// document opened so far. Individual per-entity documents opened during a
// run are also synced directly by their owning task as soon as they
// change; this is the sweep a full-run shutdown calls to catch stragglers.
func (s *SiteStore) Sync() errors.E {
	docs := []interface{ Sync() errors.E }{
		s.SiteMap, s.PendingPages, s.PendingFiles, s.PendingRevisions, s.FileMap, s.PageIDMap,
	}
	for _, d := range docs {
		if errE := d.Sync(); errE != nil {
			return errE
		}
	}

	s.mu.Lock()
	pages := make([]*docstore.Document[PageMeta], 0, len(s.pages))
	for _, d := range s.pages {
		pages = append(pages, d)
	}
	categories := make([]*docstore.Document[ForumCategory], 0, len(s.categories))
	for _, d := range s.categories {
		categories = append(categories, d)
	}
	threads := make([]*docstore.Document[ForumThread], 0, len(s.threads))
	for _, d := range s.threads {
		threads = append(threads, d)
	}
	s.mu.Unlock()

	for _, d := range pages {
		if errE := d.Sync(); errE != nil {
			return errE
		}
	}
	for _, d := range categories {
		if errE := d.Sync(); errE != nil {
			return errE
		}
	}
	for _, d := range threads {
		if errE := d.Sync(); errE != nil {
			return errE
		}
	}
	return nil
}

