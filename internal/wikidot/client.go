package wikidot

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/field-eng-powertools/notify"

	"gitlab.com/tozd/go/errors"
	"gitlab.com/tozd/go/x"

	"github.com/x10102/wikicomma-sub000/internal/cookiejar"
	"github.com/x10102/wikicomma-sub000/internal/httpclient"
)

// tokenCooldown is how long a single refresher sleeps before refetching the
// wikidot_token7 cookie after a wrong_token7 response, per spec.md §4.8.
const tokenCooldown = 30 * time.Second

// errWrongToken is returned by call when the remote rejects the form token.
// Client.Call refreshes the token and retries once on it; if the retry is
// rejected as well, Call returns this error to its caller.
var errWrongToken = errors.Base("wikidot_token7 rejected by remote")

// ErrSoftFailure wraps a non-ok, non-token-invalidation module response.
// Client.Call returns it when soft is false; in soft mode Call returns an
// empty body and a nil error instead.
type ErrSoftFailure struct {
	Message string
}

func (e *ErrSoftFailure) Error() string { return "module call failed: " + e.Message }

// moduleResponse is the shape of every ajax-module-connector.php reply.
type moduleResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Body    string `json:"body"`
}

// Client is the ajax-module-connector.php caller for one site, owning the
// token-refresh latch shared by every concurrent module call.
type Client struct {
	HTTP    *httpclient.Client
	Jar     *cookiejar.Jar
	BaseURL string // e.g. "https://example.wikidot.com"

	mu         sync.Mutex
	refreshing bool
	tokenVar   *notify.Var[string]
}

// NewClient creates a Client for baseURL (trailing slash already removed).
func NewClient(http *httpclient.Client, jar *cookiejar.Jar, baseURL string) *Client {
	return &Client{
		HTTP:     http,
		Jar:      jar,
		BaseURL:  baseURL,
		tokenVar: notify.VarOf(""),
	}
}

// EnsureToken returns the current wikidot_token7, fetching the front page
// to seed it (per spec.md's Init step 1) if no cookie is present yet.
func (c *Client) EnsureToken(ctx context.Context) (string, errors.E) {
	if tok, _ := c.tokenVar.Get(); tok != "" {
		return tok, nil
	}
	if cookie, ok := c.Jar.Find("wikidot_token7", hostOf(c.BaseURL)); ok {
		c.tokenVar.Set(cookie.Value)
		return cookie.Value, nil
	}
	return c.refreshToken(ctx, false)
}

func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// refreshToken fetches a fresh token. Only one concurrent caller actually
// performs the fetch (after the cooldown sleep); the rest wait on the
// shared notify.Var latch and read back whatever token the refresher set.
func (c *Client) refreshToken(ctx context.Context, cooldown bool) (string, errors.E) {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		_, updated := c.tokenVar.Get()
		select {
		case <-updated:
		case <-ctx.Done():
			return "", errors.WithStack(ctx.Err())
		}
		tok, _ := c.tokenVar.Get()
		return tok, nil
	}
	c.refreshing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	if cooldown {
		select {
		case <-time.After(tokenCooldown):
		case <-ctx.Done():
			return "", errors.WithStack(ctx.Err())
		}
	}

	if _, errE := c.HTTP.Get(ctx, c.BaseURL+"/system:recent-changes", httpclient.Options{FollowRedirects: true}); errE != nil {
		return "", errE
	}

	cookie, ok := c.Jar.Find("wikidot_token7", hostOf(c.BaseURL))
	if !ok {
		return "", errors.New("front page response carried no wikidot_token7 cookie")
	}
	c.tokenVar.Set(cookie.Value)
	return cookie.Value, nil
}

// Call invokes moduleName with params, retrying once (with a token
// refresh) on wrong_token7. soft suppresses the error for a non-ok,
// non-token-invalidation status: Call then returns an empty body and a nil
// error.
func (c *Client) Call(ctx context.Context, moduleName string, params map[string]string, soft bool) (string, errors.E) {
	token, errE := c.EnsureToken(ctx)
	if errE != nil {
		return "", errE
	}

	body, errE := c.call(ctx, moduleName, params, token)
	if errE != nil {
		if errors.Is(errE, errWrongToken) {
			newToken, errE2 := c.refreshToken(ctx, true)
			if errE2 != nil {
				return "", errE2
			}
			body, errE = c.call(ctx, moduleName, params, newToken)
			if errE == nil {
				return body, nil
			}
		}
		var softErr *ErrSoftFailure
		if soft && errors.As(errE, &softErr) {
			return "", nil
		}
		return "", errE
	}
	return body, nil
}

func (c *Client) call(ctx context.Context, moduleName string, params map[string]string, token string) (string, errors.E) {
	form := url.Values{}
	form.Set("wikidot_token7", token)
	form.Set("moduleName", moduleName)
	for k, v := range params {
		form.Set(k, v)
	}

	resp, errE := c.HTTP.Post(ctx, c.BaseURL+"/ajax-module-connector.php", httpclient.Options{
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Cookie":       "wikidot_token7=" + token,
		},
		Body: []byte(form.Encode()),
	})
	if errE != nil {
		return "", errE
	}

	var parsed moduleResponse
	if errE := x.Unmarshal(resp.Body, &parsed); errE != nil {
		return "", errE
	}

	switch parsed.Status {
	case "ok":
		return parsed.Body, nil
	case "wrong_token7":
		return "", errors.WithStack(errWrongToken)
	default:
		return "", errors.WithStack(&ErrSoftFailure{Message: fmt.Sprintf("%s: %s", parsed.Status, parsed.Message)})
	}
}

