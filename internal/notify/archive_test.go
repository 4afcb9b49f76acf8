package notify

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/dwitter/apiserver/internal/storage"
	"github.com/dwitter/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveKey(t *testing.T) {
	event := newEvent("hello")
	event.ID = "abc"

	assert.Equal(t, "events/tweets/2026-03-04/abc.json", ArchiveKey(event))
}

func TestArchiveSink_WritesEnvelope(t *testing.T) {
	backend := storage.NewMemoryStorage("archive")
	sink := NewArchiveSink(storage.NewStorage(backend))
	event := newEvent("hello")

	require.NoError(t, sink.Deliver(context.Background(), event))

	rc, err := backend.Get(context.Background(), ArchiveKey(event))
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	var stored types.Event
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, event.ID, stored.ID)
	assert.Equal(t, "hello", stored.Data.Text)
	assert.Equal(t, "archive", sink.Name())
}
