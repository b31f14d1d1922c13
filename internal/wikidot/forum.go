package wikidot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/httpclient"
)

// FetchForumCategories lists the site's forum categories via the documented
// GET endpoint /forum/start/hidden/show (spec.md §6; this is a plain page
// fetch, not an ajax-module-connector.php call, since no moduleName for it
// is listed in spec.md:140).
func FetchForumCategories(ctx context.Context, client *Client) ([]ForumCategory, errors.E) {
	resp, errE := client.HTTP.Get(ctx, client.BaseURL+"/forum/start/hidden/show", httpclient.Options{FollowRedirects: true})
	if errE != nil {
		return nil, errors.WithMessage(ErrForumListFetch, errE.Error())
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, errors.WithMessage(ErrForumListFetch, err.Error())
	}

	var categories []ForumCategory
	doc.Find("tr.category-row").Each(func(_ int, row *goquery.Selection) {
		idStr, _ := row.Attr("data-category-id")
		id, convErr := strconv.Atoi(idStr)
		if convErr != nil {
			return
		}
		posts, _ := strconv.Atoi(strings.TrimSpace(row.Find(".posts").Text()))
		threads, _ := strconv.Atoi(strings.TrimSpace(row.Find(".threads").Text()))
		categories = append(categories, ForumCategory{
			ID:          id,
			Title:       strings.TrimSpace(row.Find(".title").Text()),
			Description: strings.TrimSpace(row.Find(".description").Text()),
			Posts:       posts,
			Threads:     threads,
			LastUser:    strings.TrimSpace(row.Find(".lastUser").Text()),
			Last:        parseUnixAttr(row.Find(".odate")),
		})
	})
	return categories, nil
}

// ShouldFetchCategory decides whether a category needs a thread-page scan,
// per spec.md §4.8 step 7: skip only when the last-post timestamp matches
// the local record and the category was already fully scanned at the
// current schema version.
func ShouldFetchCategory(remote ForumCategory, local ForumCategory, hadLocal bool) bool {
	if !hadLocal {
		return true
	}
	if local.Version != ForumMetadataVersion {
		return true
	}
	if !local.FullScan {
		return true
	}
	return !sameTimestamp(remote.Last, local.Last)
}

// FetchThreadPage lists page number page (1-indexed) of the threads in
// categoryID, via the documented GET endpoint
// /forum/c-<id>/p/<page> (spec.md §6; not an ajax-module-connector.php
// call, since no moduleName for it is listed in spec.md:140).
func FetchThreadPage(ctx context.Context, client *Client, categoryID, page int) ([]ForumThread, errors.E) {
	target := fmt.Sprintf("%s/forum/c-%d/p/%d", client.BaseURL, categoryID, page)
	resp, errE := client.HTTP.Get(ctx, target, httpclient.Options{FollowRedirects: true})
	if errE != nil {
		return nil, errE
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var threads []ForumThread
	doc.Find("tr.thread-row").Each(func(_ int, row *goquery.Selection) {
		idStr, _ := row.Attr("data-thread-id")
		id, convErr := strconv.Atoi(idStr)
		if convErr != nil {
			return
		}
		postsNum, _ := strconv.Atoi(strings.TrimSpace(row.Find(".posts").Text()))
		threads = append(threads, ForumThread{
			ID:          id,
			Title:       strings.TrimSpace(row.Find(".title").Text()),
			Description: strings.TrimSpace(row.Find(".description").Text()),
			StartedUser: strings.TrimSpace(row.Find(".startedUser").Text()),
			LastUser:    strings.TrimSpace(row.Find(".lastUser").Text()),
			PostsNum:    postsNum,
			Sticky:      row.HasClass("sticky"),
			IsLocked:    row.HasClass("locked"),
			Last:        parseUnixAttr(row.Find(".odate")),
		})
	})
	return threads, nil
}

// ShouldFetchThread decides whether a thread needs a full post-tree
// refetch: it is missing locally, its last-post timestamp has drifted, its
// post count no longer matches the locally persisted post tree, or its
// schema version is stale.
func ShouldFetchThread(remote ForumThread, local *ForumThread) bool {
	if local == nil {
		return true
	}
	if local.Version != ForumMetadataVersion {
		return true
	}
	if !sameTimestamp(remote.Last, local.Last) {
		return true
	}
	if remote.PostsNum != CountPosts(local.Posts) {
		return true
	}
	return false
}

// FetchThreadPosts retrieves the full post tree for a thread via
// forum/ForumViewThreadPostsModule.
func FetchThreadPosts(ctx context.Context, client *Client, threadID int) ([]LocalForumPost, errors.E) {
	body, errE := client.Call(ctx, "forum/ForumViewThreadPostsModule", map[string]string{
		"t": strconv.Itoa(threadID),
	}, false)
	if errE != nil {
		return nil, errE
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	roots := doc.Find("div.post-container").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("div.post-container").Length() == 0
	})

	var posts []LocalForumPost
	roots.Each(func(_ int, s *goquery.Selection) {
		posts = append(posts, parsePostContainer(s))
	})
	return posts, nil
}

func parsePostContainer(container *goquery.Selection) LocalForumPost {
	post := container.ChildrenFiltered("div.post").First()
	idStr, _ := post.Attr("data-post-id")
	id, _ := strconv.Atoi(idStr)

	lastEdit := parseUnixAttr(post.Find(".changes .odate"))

	p := LocalForumPost{
		ID:         id,
		Title:      strings.TrimSpace(post.Find(".title").Text()),
		Poster:     strings.TrimSpace(post.Find(".printuser").First().Text()),
		LastEdit:   lastEdit,
		LastEditBy: strings.TrimSpace(post.Find(".changes .printuser").Text()),
	}
	if t := parseUnixAttr(post.Find(".odate").First()); t != nil {
		p.Stamp = *t
	}

	container.ChildrenFiltered("div.content").ChildrenFiltered("div.post-container").Each(func(_ int, child *goquery.Selection) {
		p.Children = append(p.Children, parsePostContainer(child))
	})

	return p
}

// FetchPostRevisions retrieves the revision list for one post via
// forum/sub/ForumPostRevisionsModule.
func FetchPostRevisions(ctx context.Context, client *Client, postID int) ([]LocalPostRevision, errors.E) {
	body, errE := client.Call(ctx, "forum/sub/ForumPostRevisionsModule", map[string]string{
		"postId": strconv.Itoa(postID),
	}, false)
	if errE != nil {
		return nil, errE
	}
	if body == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var revisions []LocalPostRevision
	doc.Find("tr.revision-row").Each(func(_ int, row *goquery.Selection) {
		idStr, _ := row.Attr("data-revision-id")
		id, convErr := strconv.Atoi(idStr)
		if convErr != nil {
			return
		}
		r := LocalPostRevision{
			ID:     id,
			Author: strings.TrimSpace(row.Find(".printuser").Text()),
			Title:  strings.TrimSpace(row.Find(".title").Text()),
		}
		if t := parseUnixAttr(row.Find(".odate")); t != nil {
			r.Stamp = *t
		}
		revisions = append(revisions, r)
	})
	return revisions, nil
}

// FetchPostRevisionBody fetches the archived text of one post revision via
// forum/sub/ForumPostRevisionModule.
func FetchPostRevisionBody(ctx context.Context, client *Client, revisionID int) (string, errors.E) {
	body, errE := client.Call(ctx, "forum/sub/ForumPostRevisionModule", map[string]string{
		"revisionId": strconv.Itoa(revisionID),
	}, false)
	if errE != nil {
		return "", errE
	}
	return body, nil
}

// FetchPostLatestBody fetches a post's current body via
// forum/sub/ForumNewPostFormModule, used to seed "latest.html" whenever a
// post is first seen (spec.md §4.8's tie-break: the latest endpoint may
// differ from the latest revision-list entry, so both are stored).
func FetchPostLatestBody(ctx context.Context, client *Client, postID int) (string, errors.E) {
	body, errE := client.Call(ctx, "forum/sub/ForumNewPostFormModule", map[string]string{
		"postId": strconv.Itoa(postID),
	}, false)
	if errE != nil {
		return "", errE
	}
	return body, nil
}

func parseUnixAttr(sel *goquery.Selection) *time.Time {
	v, ok := sel.Attr("data-unix")
	if !ok {
		return nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func sameTimestamp(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
