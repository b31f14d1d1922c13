package wikiuser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gitlab.com/tozd/go/errors"
)

// ErrUserDoesNotExist is the distinguished terminal error from spec.md §4.7:
// once observed for a username, the failure is cached in memory for the
// process lifetime and the pending entry is dropped.
var ErrUserDoesNotExist = errors.Base("user does not exist")

var userInfoCallRe = regexp.MustCompile(`userInfo\s*\(\s*(\d+)`)

// labelFields maps a definition-list label (matched case-insensitively,
// surrounding space and one trailing colon stripped) to the User field it
// fills.
var labelFields = map[string]func(u *User, value string){
	"real name":          func(u *User, v string) { u.RealName = v },
	"gender":             func(u *User, v string) { u.Gender = v },
	"birthday":           func(u *User, v string) { u.Birthday = v },
	"from":               func(u *User, v string) { u.From = v },
	"website":            func(u *User, v string) { u.Website = v },
	"wikidot user since": func(u *User, v string) { u.WikidotUserSince = v },
	"bio":                func(u *User, v string) { u.Bio = v },
	"account type":       func(u *User, v string) { u.AccountType = v },
	"activity":           func(u *User, v string) { u.Activity = parseActivity(v) },
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ":")
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseProfile extracts a User from a rendered user-info page's HTML.
// username and fallbackUserID are supplied by the caller (the username is already
// known; the numeric id, when not discoverable on the page, is left as
// given so a caller-supplied id survives a page missing its contact button).
func ParseProfile(html []byte, username string, fallbackUserID int) (*User, errors.E) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if isNotExistPage(doc) {
		return nil, errors.WithMessage(ErrUserDoesNotExist, username)
	}

	u := &User{
		Username: username,
		UserID:   fallbackUserID,
		Activity: ActivityUnknown,
	}

	u.FullName = strings.TrimSpace(doc.Find("div.profile-title, h1.profile-title").First().Text())
	if u.FullName == "" {
		u.FullName = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find("dl.grid dt, dl.form-body dt, dl dt").Each(func(_ int, dt *goquery.Selection) {
		label := normalizeLabel(dt.Text())
		apply, ok := labelFields[label]
		if !ok {
			return
		}
		dd := dt.Next()
		if dd.Length() == 0 {
			return
		}
		apply(u, strings.TrimSpace(dd.Text()))
	})

	if id, ok := extractUserID(doc); ok {
		u.UserID = id
	}

	return u, nil
}

func isNotExistPage(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	return strings.Contains(text, "user does not exist") || strings.Contains(text, "no such user")
}

// extractUserID looks for the numeric id embedded in a contact/flag
// button's onclick handler (the common case), falling back to any element
// carrying a data-id attribute (seen on some profile page skins).
func extractUserID(doc *goquery.Document) (int, bool) {
	var found int
	var ok bool

	doc.Find("a, span, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		onclick, exists := s.Attr("onclick")
		if !exists {
			return true
		}
		m := userInfoCallRe.FindStringSubmatch(onclick)
		if m == nil {
			return true
		}
		if id, err := strconv.Atoi(m[1]); err == nil {
			found, ok = id, true
			return false
		}
		return true
	})
	if ok {
		return found, true
	}

	doc.Find("[data-id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, exists := s.Attr("data-id")
		if !exists {
			return true
		}
		if id, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			found, ok = id, true
			return false
		}
		return true
	})
	return found, ok
}
