package wikidot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/foolin/pagser"

	"gitlab.com/tozd/go/errors"

	"github.com/x10102/wikicomma-sub000/internal/httpclient"
)

// defaultPagination is the page size every paginated module on the remote
// uses; revision listing terminates on a zero-length page, never a short
// one, per spec.md §4.8's boundary note.
const defaultPagination = 20

var pageIDRe = regexp.MustCompile(`WIKIDOT\.page\.pageId\s*=\s*(\d+)`)
var userInfoOnclickRe = regexp.MustCompile(`userInfo\s*\(\s*(\d+)`)

// pageInfoDoc is the declarative pagser extraction of a page-info page's
// title, tags and rating, the same split the reference corpus's
// internal/indexer.ExtractData models: pagser for the bulk, a regular
// expression over the raw body (extractPageID below) for the one field
// pagser's declarative tags cannot
// reach (a numeric id buried in an inline script).
type pageInfoDoc struct {
	Title  string   `pagser:"#page-title->text()"`
	Tags   []string `pagser:".page-tags a->text()"`
	Rating int      `pagser:".page-rate-widget-box .number->text()"`
	Parent string   `pagser:"#breadcrumbs a:last-of-type->text()"`
}

// PageInfo is the result of fetching and parsing a page's info page.
type PageInfo struct {
	PageID int
	Title  string
	Tags   []string
	Rating int
	Parent string
}

// FetchPageInfo fetches baseURL/<name>/noredirect/true and extracts the
// fields spec.md §4.8 step 5 refreshes on every scan: rating, tags, title,
// parent. Returns ErrPageNotFound when the fetched page carries no page id;
// an HTTP error status such as 404 is returned as the client's HTTP error,
// not as ErrPageNotFound.
func FetchPageInfo(ctx context.Context, client *httpclient.Client, baseURL, name string) (*PageInfo, errors.E) {
	target := fmt.Sprintf("%s/%s/noredirect/true?_ts=%d", baseURL, name, time.Now().UnixMilli())
	resp, errE := client.Get(ctx, target, httpclient.Options{FollowRedirects: true})
	if errE != nil {
		return nil, errE
	}

	if resp.Status == 404 {
		return nil, errors.WithMessage(ErrPageNotFound, name)
	}

	config := pagser.DefaultConfig()
	config.CastError = false
	p, err := pagser.NewWithConfig(config)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var doc pageInfoDoc
	if err := p.ParseReader(&doc, strings.NewReader(string(resp.Body))); err != nil {
		return nil, errors.WithStack(err)
	}

	pageID := extractPageID(resp.Body)
	if pageID == 0 {
		return nil, errors.WithMessage(ErrPageNotFound, name)
	}

	return &PageInfo{
		PageID: pageID,
		Title:  strings.TrimSpace(doc.Title),
		Tags:   cleanStrings(doc.Tags),
		Rating: doc.Rating,
		Parent: strings.TrimSpace(doc.Parent),
	}, nil
}

func extractPageID(body []byte) int {
	m := pageIDRe.FindSubmatch(body)
	if m == nil {
		return 0
	}
	id, _ := strconv.Atoi(string(m[1]))
	return id
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FetchVoters calls pagerate/WhoRatedPageModule and extracts one Voter per
// listed user; a voter row whose username link carries no resolvable
// onclick user id is recorded with a nil UserID, per the Open Question
// decision to keep null-user votes rather than drop them.
func FetchVoters(ctx context.Context, client *Client, pageID int) ([]Voter, errors.E) {
	body, errE := client.Call(ctx, "pagerate/WhoRatedPageModule", map[string]string{
		"pageId": strconv.Itoa(pageID),
	}, false)
	if errE != nil {
		return nil, errE
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var voters []Voter
	doc.Find(".printuser").Each(func(_ int, sel *goquery.Selection) {
		value := !sel.Parent().HasClass("minus")
		var userID *int
		if onclick, ok := sel.Attr("onclick"); ok {
			if m := userInfoOnclickRe.FindStringSubmatch(onclick); m != nil {
				id, _ := strconv.Atoi(m[1])
				userID = &id
			}
		}
		voters = append(voters, Voter{UserID: userID, Value: value})
	})
	return voters, nil
}

// FetchLockStatus reports whether the page is currently edit-locked. The
// remote surfaces this as a structural marker on the edit module response
// rather than a dedicated status field, so a soft call is used and the
// body is inspected for the lock marker; a soft-mode failure (no edit
// module available at all) is treated as unlocked.
func FetchLockStatus(ctx context.Context, client *Client, pageID int) (bool, errors.E) {
	body, errE := client.Call(ctx, "edit/PageEditModule", map[string]string{
		"page_id": strconv.Itoa(pageID),
		"mode":    "page",
	}, true)
	if errE != nil {
		return false, errE
	}
	return strings.Contains(body, "page-lock") || strings.Contains(body, "locked_by"), nil
}

// FetchFiles calls files/PageFilesModule and returns the page's attached
// files' metadata (byte content is fetched separately by the engine's
// postponed-files drain, per spec.md §4.8 step 8).
func FetchFiles(ctx context.Context, client *Client, pageID int) ([]FileMeta, errors.E) {
	body, errE := client.Call(ctx, "files/PageFilesModule", map[string]string{
		"page_id": strconv.Itoa(pageID),
	}, true)
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

	var files []FileMeta
	doc.Find("tr.file-row").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a.file-name")
		name := strings.TrimSpace(link.Text())
		if name == "" {
			return
		}
		href, _ := link.Attr("href")
		fileID := 0
		if onclick, ok := row.Find("[onclick]").Attr("onclick"); ok {
			if m := regexp.MustCompile(`(\d+)`).FindStringSubmatch(onclick); m != nil {
				fileID, _ = strconv.Atoi(m[1])
			}
		}
		files = append(files, FileMeta{
			FileID: fileID,
			Name:   name,
			URL:    href,
			Size:   strings.TrimSpace(row.Find(".odate, .size").Text()),
		})
	})
	return files, nil
}

// FetchRevisionListPage fetches one page (1-indexed) of history/
// PageRevisionListModule for pageID, returning its entries in the order
// the remote lists them (newest first).
func FetchRevisionListPage(ctx context.Context, client *Client, pageID, pageNum int) ([]PageRevision, errors.E) {
	body, errE := client.Call(ctx, "history/PageRevisionListModule", map[string]string{
		"page_id": strconv.Itoa(pageID),
		"page":    strconv.Itoa(pageNum),
		"perpage": strconv.Itoa(defaultPagination),
	}, false)
	if errE != nil {
		return nil, errE
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var revisions []PageRevision
	doc.Find("tr.revision-row").Each(func(_ int, row *goquery.Selection) {
		revStr := strings.TrimSpace(row.Find(".rev-version").Text())
		revision, convErr := strconv.Atoi(revStr)
		if convErr != nil {
			return
		}
		globalStr, _ := row.Attr("data-global-revision")
		global, _ := strconv.Atoi(globalStr)

		var author *int
		if onclick, ok := row.Find("[onclick]").Attr("onclick"); ok {
			if m := userInfoOnclickRe.FindStringSubmatch(onclick); m != nil {
				id, _ := strconv.Atoi(m[1])
				author = &id
			}
		}

		var stamp *time.Time
		if odate, ok := row.Find(".odate").Attr("data-unix"); ok {
			if sec, convErr := strconv.ParseInt(odate, 10, 64); convErr == nil {
				t := time.Unix(sec, 0).UTC()
				stamp = &t
			}
		}

		revisions = append(revisions, PageRevision{
			Revision:       revision,
			GlobalRevision: global,
			Author:         author,
			Stamp:          stamp,
			Flags:          strings.TrimSpace(row.Find(".rev-flags").Text()),
			Commentary:     strings.TrimSpace(row.Find(".com").Text()),
		})
	})
	return revisions, nil
}

// FetchNewRevisions pages through history/PageRevisionListModule starting
// at page 1, collecting every revision with Revision > localMax (or all
// of them, when localMax is 0, i.e. a page with no local history yet).
// Pagination stops at the first zero-length page (never on a short page,
// per spec.md §8's boundary test), or early after the first page that
// holds an entry at or below localMax — safe because PageMeta.revisions is
// invariantly ordered newest-first with strictly decreasing Revision.
func FetchNewRevisions(ctx context.Context, client *Client, pageID, localMax int) ([]PageRevision, errors.E) {
	var all []PageRevision
	for page := 1; ; page++ {
		entries, errE := FetchRevisionListPage(ctx, client, pageID, page)
		if errE != nil {
			return nil, errE
		}
		if len(entries) == 0 {
			break
		}
		sawOld := false
		for _, e := range entries {
			if localMax > 0 && e.Revision <= localMax {
				sawOld = true
				continue
			}
			all = append(all, e)
		}
		if sawOld {
			break
		}
	}
	return all, nil
}

// FetchRevisionBody fetches history/PageSourceModule for one revision and
// normalises its text: entities and newlines are preserved verbatim except
// for a literal non-breaking space, replaced with a normal space, per
// spec.md §4.8's tie-break note.
func FetchRevisionBody(ctx context.Context, client *Client, pageID, revision int) (string, errors.E) {
	body, errE := client.Call(ctx, "history/PageSourceModule", map[string]string{
		"page_id":  strconv.Itoa(pageID),
		"revision": strconv.Itoa(revision),
	}, false)
	if errE != nil {
		return "", errE
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", errors.WithStack(err)
	}
	text := doc.Find(".page-source").Text()
	if text == "" {
		text = body
	}
	return strings.ReplaceAll(text, "\u00a0", " "), nil
}
