package wikiuser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/wikiuser"
)

const sampleProfile = `
<html>
<head><title>boothby (user)</title></head>
<body>
<div class="profile-title">boothby</div>
<a onclick="WIKIDOT.page.listeners.userInfo(1234); return false;">details</a>
<dl class="grid">
  <dt>Real name:</dt><dd>Boothby Example</dd>
  <dt>From:</dt><dd>Nowhere</dd>
  <dt>Wikidot User since:</dt><dd>03 Jan 2008</dd>
  <dt>Activity:</dt><dd>Very High</dd>
</dl>
</body>
</html>
`

const notExistProfile = `
<html><body><p>User does not exist.</p></body></html>
`

func TestParseProfileExtractsFields(t *testing.T) {
	u, errE := wikiuser.ParseProfile([]byte(sampleProfile), "boothby", 0)
	require.NoError(t, errE)
	assert.Equal(t, "boothby", u.FullName)
	assert.Equal(t, "Boothby Example", u.RealName)
	assert.Equal(t, "Nowhere", u.From)
	assert.Equal(t, "03 Jan 2008", u.WikidotUserSince)
	assert.Equal(t, wikiuser.ActivityVeryHigh, u.Activity)
	assert.Equal(t, 1234, u.UserID)
}

func TestParseProfileDetectsNotExist(t *testing.T) {
	_, errE := wikiuser.ParseProfile([]byte(notExistProfile), "ghost", 0)
	require.Error(t, errE)
	assert.ErrorIs(t, errE, wikiuser.ErrUserDoesNotExist)
}

func TestParseProfileFallsBackToGivenUserID(t *testing.T) {
	u, errE := wikiuser.ParseProfile([]byte(`<html><body><div class="profile-title">x</div></body></html>`), "x", 99)
	require.NoError(t, errE)
	assert.Equal(t, 99, u.UserID)
}
