package wikidot

import "path"

// Blacklist filters page names per SPEC_FULL.md's supplemented "blacklist
// globbing" feature: an entry matches either by exact equality or as a
// path.Match shell-style glob (e.g. "nav:*"), generalising spec.md §6's
// plain "page names to skip" list.
type Blacklist []string

// Matches reports whether name should be skipped.
func (b Blacklist) Matches(name string) bool {
	for _, pattern := range b {
		if pattern == name {
			return true
		}
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
