package wikiuser

import (
	"fmt"
	"path/filepath"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/docstore"
)

// bucketDoc is the on-disk shape of one `_users/<bucket>.json` file: a
// mapping from user id to the cached profile.
type bucketDoc map[int]User

// Store is the bucketed on-disk user store: one JSON document per bucket of
// 2^13 consecutive user ids, with in-memory username→id and id→User
// indexes rebuilt lazily as buckets are touched.
type Store struct {
	dir string

	mu       sync.Mutex
	buckets  map[int]*docstore.Document[bucketDoc]
	byUser   map[int]User
	byName   map[string]int
	indexed  map[int]bool
}

// NewStore creates a Store rooted at dir (the site's `_users` directory).
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		buckets: map[int]*docstore.Document[bucketDoc]{},
		byUser:  map[int]User{},
		byName:  map[string]int{},
		indexed: map[int]bool{},
	}
}

func (s *Store) bucketDoc(b int) *docstore.Document[bucketDoc] {
	if doc, ok := s.buckets[b]; ok {
		return doc
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%d.json", b))
	doc := docstore.New[bucketDoc](path, nil)
	s.buckets[b] = doc
	return doc
}

// ensureIndexed loads bucket b's document into the in-memory indexes, once.
func (s *Store) ensureIndexed(b int) {
	if s.indexed[b] {
		return
	}
	s.indexed[b] = true
	doc := s.bucketDoc(b)
	for id, u := range doc.Get() {
		s.byUser[id] = u
		s.byName[u.Username] = id
	}
}

// ByID returns the cached user for id, if present.
func (s *Store) ByID(id int) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureIndexed(bucket(id))
	u, ok := s.byUser[id]
	return u, ok
}

// ByUsername returns the cached user for username, if present. It only
// finds users whose bucket has already been indexed in this process (by an
// earlier ByID or Put on that bucket); for any other username it reports a
// miss, and the resolver then falls back to ByID or a remote fetch.
func (s *Store) ByUsername(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return User{}, false
	}
	u, ok := s.byUser[id]
	return u, ok
}

// Put stores u, updating both in-memory indexes and marking its bucket
// document dirty for the next flush.
func (s *Store) Put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := bucket(u.UserID)
	s.ensureIndexed(b)
	s.byUser[u.UserID] = u
	s.byName[u.Username] = u.UserID

	doc := s.bucketDoc(b)
	doc.Update(func(bd bucketDoc) bucketDoc {
		if bd == nil {
			bd = bucketDoc{}
		}
		bd[u.UserID] = u
		return bd
	})
}

// Sync flushes every touched bucket document to disk.
func (s *Store) Sync() errors.E {
	s.mu.Lock()
	docs := make([]*docstore.Document[bucketDoc], 0, len(s.buckets))
	for _, doc := range s.buckets {
		docs = append(docs, doc)
	}
	s.mu.Unlock()

	for _, doc := range docs {
		if errE := doc.Sync(); errE != nil {
			return errE
		}
	}
	return nil
}
