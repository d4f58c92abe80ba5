package artifactstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/logger"
)

func TestHTTPStorePutThenFetch(t *testing.T) {
	blobs := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, "/v1/artifacts/")
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			blobs[hash] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			body, ok := blobs[hash]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
		}
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "", time.Second, logger.Nop(), 0)

	err := store.Put(context.Background(), "h1", strings.NewReader("payload"), 7)
	require.NoError(t, err)

	rc, ok, err := store.Fetch(context.Background(), "h1")
	require.NoError(t, err)
	require.True(t, ok)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestHTTPStoreFetchMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "", time.Second, logger.Nop(), 0)
	_, ok, err := store.Fetch(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
