package wikiuser

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/docstore"
	"github.com/x10102/wikicomma-sub000/internal/httpclient"
)

const hotCacheSize = 4096

// cache is a hashicorp/golang-lru cache that counts misses, the same
// pattern the reference corpus's internal/es.Cache uses for document
// lookups, specialised here to cache User values by username.
type cache struct {
	*lru.Cache[string, User]
	missCount atomic.Uint64
}

func newCache(size int) (*cache, errors.E) {
	c, err := lru.New[string, User](size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &cache{Cache: c}, nil
}

func (c *cache) Get(key string) (User, bool) {
	v, ok := c.Cache.Get(key)
	if !ok {
		c.missCount.Add(1)
	}
	return v, ok
}

// Resolver resolves usernames to cached or freshly-fetched profiles,
// deduplicating concurrent lookups of the same username via singleflight,
// per spec.md §4.7's "at most one in-flight fetch" contract.
type Resolver struct {
	client       *httpclient.Client
	store        *Store
	hot          *cache
	flight       singleflight.Group
	cacheValidFor time.Duration
	profileURL   func(username string) string

	mu          sync.Mutex
	notExist    map[string]struct{}
	pending     *docstore.Document[[]string]
}

// NewResolver creates a Resolver. dir is the site's `_users` directory
// (backing the bucketed Store and the pending-list document).
func NewResolver(client *httpclient.Client, dir string, cacheValidFor time.Duration) (*Resolver, errors.E) {
	hot, errE := newCache(hotCacheSize)
	if errE != nil {
		return nil, errE
	}
	return &Resolver{
		client:        client,
		store:         NewStore(dir),
		hot:           hot,
		cacheValidFor: cacheValidFor,
		profileURL: func(username string) string {
			return "https://www.wikidot.com/user:info/" + url.PathEscape(username)
		},
		notExist: map[string]struct{}{},
		pending:  docstore.New[[]string](dir+"/pending.json", nil),
	}, nil
}

// ReplayPending asynchronously resolves every username left over from a
// prior run's pending list, per spec.md's "replays pending items
// asynchronously" on init.
func (r *Resolver) ReplayPending(ctx context.Context) {
	pending := r.pending.Get()
	go func() {
		for _, username := range pending {
			_, _ = r.Resolve(ctx, 0, username) //nolint:errcheck
		}
	}()
}

// Resolve returns the cached profile for username, fetching it remotely if
// absent or stale. userID, when known, seeds the result if the remote page
// cannot be parsed for an id (and is otherwise informational).
func (r *Resolver) Resolve(ctx context.Context, userID int, username string) (*User, errors.E) {
	r.mu.Lock()
	if _, dead := r.notExist[username]; dead {
		r.mu.Unlock()
		return nil, errors.WithMessage(ErrUserDoesNotExist, username)
	}
	r.mu.Unlock()

	if u, ok := r.hot.Get(username); ok && time.Since(u.FetchedAt) < r.cacheValidFor {
		return &u, nil
	}
	if u, ok := r.store.ByUsername(username); ok && time.Since(u.FetchedAt) < r.cacheValidFor {
		r.hot.Add(username, u)
		return &u, nil
	}
	if userID != 0 {
		if u, ok := r.store.ByID(userID); ok && time.Since(u.FetchedAt) < r.cacheValidFor {
			r.hot.Add(username, u)
			return &u, nil
		}
	}

	r.markPending(username)

	result, err, _ := r.flight.Do(username, func() (interface{}, error) {
		u, errE := r.fetch(ctx, userID, username)
		if errE != nil {
			return nil, errE
		}
		return u, nil
	})
	if err != nil {
		if errors.Is(err, ErrUserDoesNotExist) {
			r.mu.Lock()
			r.notExist[username] = struct{}{}
			r.mu.Unlock()
			r.clearPending(username)
		}
		errE, ok := err.(errors.E) //nolint:errorlint
		if !ok {
			errE = errors.WithStack(err)
		}
		return nil, errE
	}

	u := result.(User) //nolint:forcetypeassert
	r.store.Put(u)
	r.hot.Add(username, u)
	r.clearPending(username)
	return &u, nil
}

func (r *Resolver) fetch(ctx context.Context, userID int, username string) (User, error) {
	resp, errE := r.client.Get(ctx, r.profileURL(username), httpclient.Options{FollowRedirects: true})
	if errE != nil {
		return User{}, errE
	}

	u, errE := ParseProfile(resp.Body, username, userID)
	if errE != nil {
		return User{}, errE
	}
	u.FetchedAt = time.Now()
	return *u, nil
}

func (r *Resolver) markPending(username string) {
	r.pending.Update(func(list []string) []string {
		for _, v := range list {
			if v == username {
				return list
			}
		}
		return append(list, username)
	})
}

func (r *Resolver) clearPending(username string) {
	r.pending.Update(func(list []string) []string {
		out := list[:0]
		for _, v := range list {
			if v != username {
				out = append(out, v)
			}
		}
		return out
	})
}

// Sync flushes the pending list and the bucketed store to disk.
func (r *Resolver) Sync() errors.E {
	if errE := r.pending.Sync(); errE != nil {
		return errE
	}
	return r.store.Sync()
}

