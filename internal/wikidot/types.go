// Package wikidot implements the site engine from spec.md §4.8: the
// per-site crawl state machine over a Wikidot-like hosted wiki platform,
// plus its supporting types (on-disk metadata shapes, the
// ajax-module-connector.php client, sitemap resolution, and the page/forum
// fetch logic). Grounded throughout on the reference corpus's
// internal/mediawiki (REST pagination, revision fetch, incremental sync
// loop) and internal/indexer (HTML extraction, download plumbing),
// generalised from MediaWiki's wire protocol to Wikidot's
// ajax-module-connector.php POST surface.
package wikidot

import "time"

// PageMetadataVersion is bumped whenever PageMeta's on-disk schema changes
// in a way that requires a full refetch of affected pages.
const PageMetadataVersion = 1

// ForumMetadataVersion is the schema version for ForumCategory/ForumThread.
const ForumMetadataVersion = 1

// Voter is one vote on a page; UserID is nil for an anonymous/removed voter.
type Voter struct {
	UserID *int `json:"user_id"`
	Value  bool `json:"value"`
}

// PageRevision is one entry in a page's revision history.
type PageRevision struct {
	Revision       int        `json:"revision"`
	GlobalRevision int        `json:"global_revision"`
	Author         *int       `json:"author"`
	Stamp          *time.Time `json:"stamp,omitempty"`
	Flags          string     `json:"flags,omitempty"`
	Commentary     string     `json:"commentary,omitempty"`
}

// FileMeta describes one file attached to a page.
type FileMeta struct {
	FileID          int    `json:"file_id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	Size            string `json:"size"`
	SizeBytes       int64  `json:"size_bytes"`
	Mime            string `json:"mime"`
	ContentType     string `json:"content_type"`
	Author          string `json:"author"`
	Stamp           *time.Time `json:"stamp,omitempty"`
	InternalVersion int    `json:"internal_version"`
}

// PageMeta is the full persisted record for one page.
type PageMeta struct {
	Name          string         `json:"name"`
	PageID        int            `json:"page_id"`
	Rating        int            `json:"rating,omitempty"`
	Version       int            `json:"version"`
	ForumThread   int            `json:"forum_thread,omitempty"`
	Tags          []string       `json:"tags"`
	Title         string         `json:"title,omitempty"`
	Parent        string         `json:"parent,omitempty"`
	IsLocked      bool           `json:"is_locked,omitempty"`
	SitemapUpdate string         `json:"sitemap_update,omitempty"`
	Revisions     []PageRevision `json:"revisions"`
	Files         []FileMeta     `json:"files"`
	Votings       []Voter        `json:"votings"`
}

// MaxRevision returns the highest `revision` counter present, or 0 if empty.
func (p *PageMeta) MaxRevision() int {
	max := 0
	for _, r := range p.Revisions {
		if r.Revision > max {
			max = r.Revision
		}
	}
	return max
}

// LocalPostRevision is one archived edit of a forum post.
type LocalPostRevision struct {
	ID     int       `json:"id"`
	Author string    `json:"author"`
	Stamp  time.Time `json:"stamp"`
	Title  string    `json:"title"`
}

// LocalForumPost is one post in a thread, with nested replies.
type LocalForumPost struct {
	ID         int                 `json:"id"`
	Title      string              `json:"title"`
	Poster     string              `json:"poster"`
	Stamp      time.Time           `json:"stamp"`
	LastEdit   *time.Time          `json:"lastEdit,omitempty"`
	LastEditBy string              `json:"lastEditBy,omitempty"`
	Revisions  []LocalPostRevision `json:"revisions"`
	Children   []LocalForumPost    `json:"children"`
}

// CountPosts returns the number of posts in the tree rooted at posts,
// counting every node including nested replies.
func CountPosts(posts []LocalForumPost) int {
	n := 0
	for _, p := range posts {
		n++
		n += CountPosts(p.Children)
	}
	return n
}

// ForumCategory is the local record of one forum category's scan state.
type ForumCategory struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Posts       int        `json:"posts"`
	Threads     int        `json:"threads"`
	Last        *time.Time `json:"last,omitempty"`
	LastUser    string     `json:"lastUser,omitempty"`
	FullScan    bool       `json:"full_scan"`
	LastPage    int        `json:"last_page"`
	Version     int        `json:"version"`
}

// ForumThread is the local record of one thread, including its post tree.
type ForumThread struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Started     time.Time        `json:"started"`
	StartedUser string           `json:"startedUser"`
	Last        *time.Time       `json:"last,omitempty"`
	LastUser    string           `json:"lastUser,omitempty"`
	PostsNum    int              `json:"postsNum"`
	Sticky      bool             `json:"sticky"`
	IsLocked    bool             `json:"isLocked"`
	Version     int              `json:"version"`
	Posts       []LocalForumPost `json:"posts"`
}

// SiteMapEntry is one page's sitemap record.
type SiteMapEntry struct {
	Name       string     `json:"name"`
	LastMod    *time.Time `json:"last_modified,omitempty"`
}

// FileMapEntry records where a downloaded file's bytes live on disk.
type FileMapEntry struct {
	URL      string `json:"url"`
	Relative string `json:"relative"`
}
