package wikidot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

func TestBlacklistMatchesExactName(t *testing.T) {
	b := wikidot.Blacklist{"nav:side", "tech:footer"}
	assert.True(t, b.Matches("nav:side"))
	assert.False(t, b.Matches("nav:top"))
}

func TestBlacklistMatchesGlob(t *testing.T) {
	b := wikidot.Blacklist{"nav:*"}
	assert.True(t, b.Matches("nav:side"))
	assert.True(t, b.Matches("nav:top"))
	assert.False(t, b.Matches("main"))
}
