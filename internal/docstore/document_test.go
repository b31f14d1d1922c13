package docstore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/docstore"
)

type payload struct {
	Count int `json:"count"`
}

func TestLazyFirstReadAndUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	doc := docstore.New[payload](path, nil)
	assert.Equal(t, payload{}, doc.Get())

	doc.Update(func(p payload) payload {
		p.Count++
		return p
	})
	require.NoError(t, doc.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk payload
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 1, onDisk.Count)
}

func TestSyncNoOpWhenNotDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	doc := docstore.New[payload](path, nil)
	require.NoError(t, doc.Sync())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadErrorLeavesDocumentEmptyButLoaded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	doc := docstore.New[payload](path, nil)
	assert.Equal(t, payload{}, doc.Get())
}

func TestFixerMigratesLegacyPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"legacyCount": 3}`), 0o644))

	fixer := func(data []byte) ([]byte, error) {
		var legacy struct {
			LegacyCount int `json:"legacyCount"`
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, err
		}
		return json.Marshal(payload{Count: legacy.LegacyCount})
	}

	doc := docstore.New[payload](path, fixer)
	assert.Equal(t, payload{Count: 3}, doc.Get())
}

func TestStartTimerFlushesPeriodically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	doc := docstore.New[payload](path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	doc.StartTimer(ctx, 10*time.Millisecond)

	doc.Update(func(p payload) payload {
		p.Count = 42
		return p
	})

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, doc.Stop())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk payload
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 42, onDisk.Count)
}
