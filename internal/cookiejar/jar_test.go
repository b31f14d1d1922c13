package cookiejar_test

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/cookiejar"
)

func TestPutAndGet(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("wikidot_token7=abc123; Path=/; Domain=example.com", "example.com"))

	u, err := url.Parse("https://example.com/some/page")
	require.NoError(t, err)

	cookies := j.Get(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "wikidot_token7", cookies[0].Name)
	assert.Equal(t, "abc123", cookies[0].Value)
}

func TestMaxAgeZeroExpiresImmediately(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("a=b; Max-Age=0", "example.com"))

	u, _ := url.Parse("http://example.com/")
	assert.Empty(t, j.Get(u))
}

func TestMaxAgeNegativeExpires(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("a=b; Max-Age=-10", "example.com"))

	u, _ := url.Parse("http://example.com/")
	assert.Empty(t, j.Get(u))
}

func TestSecureCookieNotSentOverHTTP(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("a=b; Secure", "example.com"))

	httpURL, _ := url.Parse("http://example.com/")
	assert.Empty(t, j.Get(httpURL))

	httpsURL, _ := url.Parse("https://example.com/")
	assert.Len(t, j.Get(httpsURL), 1)
}

func TestReplaceOnIdenticalKey(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("a=first; Domain=example.com; Path=/", "example.com"))
	require.NoError(t, j.Put("a=second; Domain=example.com; Path=/", "example.com"))

	u, _ := url.Parse("http://example.com/")
	cookies := j.Get(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "second", cookies[0].Value)
}

func TestSerializeRoundTrip(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("a=b; Domain=example.com; Path=/x", "example.com"))
	require.NoError(t, j.Put("c=d; Domain=example.com; Path=/; Expires="+time.Now().Add(time.Hour).UTC().Format(time.RFC1123), "example.com"))

	data, err := j.Serialize()
	require.NoError(t, err)

	j2 := cookiejar.New()
	require.NoError(t, j2.Deserialize(data))

	data2, err := j2.Serialize()
	require.NoError(t, err)

	// Both serializations contain the same set of cookies (key order may
	// differ in the encoded JSON array, but content round-trips losslessly).
	var first, second []cookiejar.Cookie
	require.NoError(t, json.Unmarshal(data, &first))
	require.NoError(t, json.Unmarshal(data2, &second))
	assert.ElementsMatch(t, first, second)
}

func TestDomainSuffixMatch(t *testing.T) {
	j := cookiejar.New()
	require.NoError(t, j.Put("a=b; Domain=example.com; Path=/", "example.com"))

	u, _ := url.Parse("http://sub.example.com/")
	assert.Len(t, j.Get(u), 1)

	u2, _ := url.Parse("http://notexample.com/")
	assert.Empty(t, j.Get(u2))
}
