package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *SnapshotStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()

	_, err = New(client, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	body := "1,google.com\n2,youtube.com\n"
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "tranco/top-1m.csv", r.URL.Query().Get("name"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(data), body)
		fmt.Fprintln(w, `{"name": "tranco/top-1m.csv", "bucket": "test-bucket"}`)
	}))

	uri, err := store.PutObject(context.Background(), "tranco/top-1m.csv", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/tranco/top-1m.csv", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.PutObject(context.Background(), "tranco/top-1m.csv", strings.NewReader("1,google.com\n"))
	require.Error(t, err)
}

func TestEmptyNames(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.Open(context.Background(), " ")
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "", strings.NewReader(""))
	require.Error(t, err)
}
