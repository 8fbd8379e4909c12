package gcs

import (
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "reports"})
	require.Error(t, err)
	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "reports", Prefix: "/ingest/"})
	require.NoError(t, err)
	require.Equal(t, "ingest/2026/12/run.json", store.ObjectName("/2026/12/run.json"))

	bare, err := New(&storage.Client{}, Config{Bucket: "reports"})
	require.NoError(t, err)
	require.Equal(t, "2026/12/run.json", bare.ObjectName("2026/12/run.json"))
}
