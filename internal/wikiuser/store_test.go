package wikiuser_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/wikiuser"
)

func TestStorePutAndByIDRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := wikiuser.NewStore(dir)

	u := wikiuser.User{UserID: 9001, Username: "alice", FetchedAt: time.Now()}
	store.Put(u)

	got, ok := store.ByID(9001)
	assert.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	got, ok = store.ByUsername("alice")
	assert.True(t, ok)
	assert.Equal(t, 9001, got.UserID)

	require.NoError(t, store.Sync())
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store := wikiuser.NewStore(dir)
	store.Put(wikiuser.User{UserID: 42, Username: "bob", FetchedAt: time.Now()})
	require.NoError(t, store.Sync())

	reopened := wikiuser.NewStore(dir)
	got, ok := reopened.ByID(42)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Username)
}
