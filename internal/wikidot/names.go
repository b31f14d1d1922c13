package wikidot

import "strings"

// substitutions is the fixed percent-encoding table for filesystem-unsafe
// characters in a page or file name, per spec.md's invariant that
// "filesystem-unsafe characters in file names are percent-encoded via a
// fixed substitution table" and must round-trip.
var substitutions = []struct {
	char    string
	escaped string
}{
	{"%", "%25"}, // must come first so later substitutions' own % survive round-trip
	{"\\", "%5C"},
	{"*", "%2A"},
	{"?", "%3F"},
	{"\"", "%22"},
	{"<", "%3C"},
	{">", "%3E"},
	{"|", "%7C"},
	{"/", "%2F"},
}

// dotEscape neutralises the two directory-traversal tokens "." and "..":
// EncodeFileName percent-encodes every dot in a name that consists solely
// of dots, so a bare "%2E%2E" can never be interpreted as "this directory"
// or "parent directory" when used as a path component on its own (a
// revision/files/thread folder name, not suffixed with anything).
const dotEscape = "%2E"

// NormalizeName converts a remote page name to its on-disk form: every
// `:` becomes `_`, matching the "nav:side" → "nav_side" convention the
// remote platform's category-prefixed names need for a flat filesystem,
// and the result is run through EncodeFileName so every path built from a
// page name is safe against traversal and reserved characters, per
// spec.md §8's "never resolve outside the page's own folder" invariant.
func NormalizeName(name string) string {
	return EncodeFileName(strings.ReplaceAll(name, ":", "_"))
}

// EncodeFileName percent-encodes filesystem-unsafe characters in name using
// the fixed substitution table, so the result never escapes the page's own
// folder regardless of what the remote calls the file.
func EncodeFileName(name string) string {
	out := name
	for _, s := range substitutions {
		out = strings.ReplaceAll(out, s.char, s.escaped)
	}
	if out != "" && strings.Trim(out, ".") == "" {
		out = strings.ReplaceAll(out, ".", dotEscape)
	}
	return out
}

// DecodeFileName reverses EncodeFileName.
func DecodeFileName(encoded string) string {
	out := strings.ReplaceAll(encoded, dotEscape, ".")
	for i := len(substitutions) - 1; i >= 0; i-- {
		s := substitutions[i]
		out = strings.ReplaceAll(out, s.escaped, s.char)
	}
	return out
}
