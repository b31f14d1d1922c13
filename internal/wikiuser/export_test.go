package wikiuser

// SetProfileURLFuncForTest overrides the profile URL builder so tests can
// point a Resolver at an httptest.Server instead of the real wikidot.com host.
func SetProfileURLFuncForTest(r *Resolver, f func(username string) string) {
	r.profileURL = f
}
