package wikidot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

func TestNormalizeNameReplacesColon(t *testing.T) {
	assert.Equal(t, "nav_side", wikidot.NormalizeName("nav:side"))
	assert.Equal(t, "plain", wikidot.NormalizeName("plain"))
}

func TestNormalizeNameIsIdempotent(t *testing.T) {
	once := wikidot.NormalizeName("a:b:c")
	twice := wikidot.NormalizeName(once)
	assert.Equal(t, once, twice)
}

func TestEncodeDecodeFileNameRoundTrips(t *testing.T) {
	names := []string{
		`weird:name`,
		`back\slash`,
		`star*mark`,
		`quote"mark`,
		`less<than`,
		`greater>than`,
		`pipe|char`,
		`slash/inside`,
		`percent%sign`,
		`..`,
		`.`,
	}
	for _, name := range names {
		encoded := wikidot.EncodeFileName(name)
		assert.Equal(t, name, wikidot.DecodeFileName(encoded), "round-trip for %q", name)
	}
}

func TestEncodeFileNameNeverContainsUnsafeChars(t *testing.T) {
	encoded := wikidot.EncodeFileName(`a/b\c*d?e"f<g>h|i`)
	for _, unsafe := range []string{"/", "\\", "*", "?", "\"", "<", ">", "|"} {
		assert.NotContains(t, encoded, unsafe)
	}
}
