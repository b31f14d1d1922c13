package wikidot

import "gitlab.com/tozd/go/errors"

// ErrPageNotFound is returned when a fetched info page carries no page id
// (for instance a "page does not exist" placeholder). An HTTP 404 from the
// info page is not mapped to it.
var ErrPageNotFound = errors.Base("page does not exist")

// ErrMalformedSitemap is returned when a sitemap or sitemap index cannot be
// parsed as XML at all (as opposed to merely listing zero usable URLs).
var ErrMalformedSitemap = errors.Base("malformed sitemap")

// ErrForumListFetch is returned by FetchForumCategories when the forum
// categories listing cannot be fetched or parsed; scanForums passes it up
// and Engine.Run reports it as nonfatal and carries on without forum data,
// per spec.md §4.8 step 7.
var ErrForumListFetch = errors.Base("forum category list fetch failed")
