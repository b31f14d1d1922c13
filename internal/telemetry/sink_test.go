package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x10102/wikicomma-sub000/internal/telemetry"
)

func TestWriterSinkEmitsOneLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	sink := telemetry.NewWriterSink(&buf)

	require.NoError(t, sink.Send(context.Background(), telemetry.Handshake("site-a")))
	total := 3
	require.NoError(t, sink.Send(context.Background(), telemetry.Preflight("site-a", total)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first telemetry.Message
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Handshake", first.Type)
	assert.Equal(t, "site-a", first.Tag)

	var second telemetry.Message
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "Preflight", second.Type)
	require.NotNil(t, second.Total)
	assert.Equal(t, 3, *second.Total)
}

func TestProgressCarriesDoneAndPostponed(t *testing.T) {
	done, postponed := 5, 2
	msg := telemetry.Progress("site-a", telemetry.StatusPagesMain, &done, &postponed)
	assert.Equal(t, telemetry.StatusPagesMain, msg.Status)
	require.NotNil(t, msg.Done)
	require.NotNil(t, msg.Postponed)
	assert.Equal(t, 5, *msg.Done)
	assert.Equal(t, 2, *msg.Postponed)
}

func TestErrorFatalIncludesKindAndName(t *testing.T) {
	msg := telemetry.ErrorFatal("site-a", telemetry.ErrorKindGivingUp, "some-page", "boom")
	assert.Equal(t, "ErrorFatal", msg.Type)
	assert.Equal(t, telemetry.ErrorKindGivingUp, msg.ErrorKind)
	assert.Equal(t, "some-page", msg.Name)
	assert.Equal(t, "boom", msg.ErrorStr)
}

func TestNopSinkNeverErrors(t *testing.T) {
	var sink telemetry.NopSink
	assert.NoError(t, sink.Send(context.Background(), telemetry.PageDone("site-a")))
}
