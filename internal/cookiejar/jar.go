// Package cookiejar implements an in-memory cookie store with
// attribute-aware matching and lossless serialisation, mirroring the
// Set-Cookie dialect the remote wiki platform speaks (case-insensitive
// attribute names, max-age=0 meaning "expire now").
package cookiejar

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Cookie is a single stored cookie.
type Cookie struct {
	Name    string     `json:"name"`
	Value   string     `json:"value"`
	Path    string     `json:"path,omitempty"`
	Domain  string     `json:"domain,omitempty"`
	Expires *time.Time `json:"expires,omitempty"`
	Secure  bool       `json:"secure,omitempty"`
}

type key struct {
	name, domain, path string
}

func (c Cookie) key() key {
	return key{name: c.Name, domain: c.Domain, path: c.Path}
}

func (c Cookie) expired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

// Jar is a set of cookies, keyed by (name, domain, path).
type Jar struct {
	mu      sync.Mutex
	cookies map[key]Cookie
}

// New creates an empty cookie jar.
func New() *Jar {
	return &Jar{cookies: map[key]Cookie{}}
}

// Put parses a Set-Cookie-style header value and stores the resulting
// cookie, replacing any existing cookie with the same (name, domain, path).
// defaultDomain is used when the header carries no domain attribute.
func (j *Jar) Put(header, defaultDomain string) error {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return errors.New("empty Set-Cookie header")
	}

	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 {
		return errors.Errorf("malformed cookie pair %q", parts[0])
	}

	c := Cookie{
		Name:   strings.TrimSpace(nameValue[0]),
		Value:  strings.TrimSpace(nameValue[1]),
		Domain: defaultDomain,
		Path:   "/",
	}

	now := time.Now()
	for _, raw := range parts[1:] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		attrParts := strings.SplitN(raw, "=", 2)
		attrName := strings.ToLower(strings.TrimSpace(attrParts[0]))
		var attrValue string
		if len(attrParts) == 2 {
			attrValue = strings.TrimSpace(attrParts[1])
		}

		switch attrName {
		case "expires":
			if t, err := time.Parse(time.RFC1123, attrValue); err == nil {
				c.Expires = &t
			}
		case "domain":
			if attrValue != "" {
				c.Domain = strings.TrimPrefix(attrValue, ".")
			}
		case "path":
			if attrValue != "" {
				c.Path = attrValue
			}
		case "max-age":
			seconds, err := strconv.Atoi(attrValue)
			if err != nil {
				continue
			}
			if seconds <= 0 {
				expired := now.Add(-time.Second)
				c.Expires = &expired
			} else {
				expires := now.Add(time.Duration(seconds) * time.Second)
				c.Expires = &expires
			}
		case "secure":
			c.Secure = true
		case "httponly":
			// Not relevant to a non-browser client; recorded nowhere.
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[c.key()] = c
	return nil
}

// Get returns every stored cookie applicable to u: matching domain suffix,
// path prefix, secure flag (only for https targets), and not expired.
func (j *Jar) Get(u *url.URL) []Cookie {
	now := time.Now()
	host := u.Hostname()
	secure := u.Scheme == "https"

	j.mu.Lock()
	defer j.mu.Unlock()

	var matches []Cookie
	for _, c := range j.cookies {
		if c.expired(now) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if c.Domain != "" && !domainMatches(host, c.Domain) {
			continue
		}
		if c.Path != "" && !strings.HasPrefix(u.Path, c.Path) && u.Path != "" {
			if !(c.Path == "/" && u.Path == "") {
				continue
			}
		}
		matches = append(matches, c)
	}
	return matches
}

func domainMatches(host, cookieDomain string) bool {
	host = strings.ToLower(host)
	cookieDomain = strings.ToLower(cookieDomain)
	return host == cookieDomain || strings.HasSuffix(host, "."+cookieDomain)
}

// Header renders the cookies applicable to u as a single Cookie header value.
func (j *Jar) Header(u *url.URL) string {
	matches := j.Get(u)
	parts := make([]string, 0, len(matches))
	for _, c := range matches {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Serialize dumps every stored cookie (including expired ones, so a
// round-trip preserves exactly what was stored) as JSON.
func (j *Jar) Serialize() ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	list := make([]Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		list = append(list, c)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Deserialize replaces the jar's contents with the cookies encoded in data.
func (j *Jar) Deserialize(data []byte) error {
	var list []Cookie
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.WithStack(err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[key]Cookie, len(list))
	for _, c := range list {
		j.cookies[c.key()] = c
	}
	return nil
}

// Find returns the stored cookie with the given name for the given host, if any.
func (j *Jar) Find(name, host string) (Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for k, c := range j.cookies {
		if k.name == name && domainMatches(host, k.domain) {
			return c, true
		}
	}
	return Cookie{}, false
}
