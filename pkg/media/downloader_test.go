package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSavesAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/photo.jpg", r.URL.Path)
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewHTTPDownloader(dir, nil)

	path, err := d.Fetch(context.Background(), srv.URL+"/files/photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_photo.jpg"), "got %s", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestFetchDistinctURLsSameBaseName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(t.TempDir(), nil)

	a, err := d.Fetch(context.Background(), srv.URL+"/a/img.png")
	require.NoError(t, err)
	b, err := d.Fetch(context.Background(), srv.URL+"/b/img.png")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewHTTPDownloader(dir, nil)
	ctx := context.Background()

	t.Run("http error status", func(t *testing.T) {
		_, err := d.Fetch(ctx, srv.URL+"/gone.png")
		assert.ErrorContains(t, err, "unexpected status")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := d.Fetch(ctx, "ftp://example.com/file.bin")
		assert.ErrorContains(t, err, "scheme")
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := d.Fetch(ctx, "http://127.0.0.1:1/file.bin")
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := d.Fetch(cancelled, srv.URL+"/file.bin")
		assert.Error(t, err)
	})

	// No partial files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalNameSanitizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(t.TempDir(), nil)

	path, err := d.Fetch(context.Background(), srv.URL+"/a%3Ab%3Fc.txt")
	require.NoError(t, err)
	base := filepath.Base(path)
	assert.NotContains(t, base, ":")
	assert.NotContains(t, base, "?")

	path, err = d.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_attachment"), "got %s", path)
}
