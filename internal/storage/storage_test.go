package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/hugh/taskeasy/internal/storage"
	"github.com/hugh/taskeasy/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	key := storage.NewKey("attachments/abc", "My Report (final).pdf")
	assert.Regexp(t, regexp.MustCompile(`^attachments/abc/\d{13}-[0-9a-f]{8}-My_Report__final_.pdf$`), key)

	t.Run("unique under repeated calls", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			k := storage.NewKey("x", "same.txt")
			require.False(t, seen[k], "duplicate key %s", k)
			seen[k] = true
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		assert.NotContains(t, storage.NewKey("", "a.txt"), "/")
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\notes.txt`, "notes.txt"},
		{"héllo wörld.md", "h__llo_w__rld.md"},
		{"", "file"},
		{"/", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.SanitizeFilename(tt.in))
		})
	}

	long := strings.Repeat("a", 150) + ".png"
	got := storage.SanitizeFilename(long)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasSuffix(got, ".png"))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := storage.NewLocalStore(root, "/uploads")
	require.NoError(t, err)

	obj, err := store.Put(ctx, "wiki/p1/page.html", strings.NewReader("<p>hi</p>"), 9, "text/html")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/wiki/p1/page.html", obj.URL)
	assert.Equal(t, int64(9), obj.Size)

	data, err := os.ReadFile(filepath.Join(root, "wiki", "p1", "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(data))

	t.Run("overwrite", func(t *testing.T) {
		_, err := store.Put(ctx, "wiki/p1/page.html", strings.NewReader("v2"), 2, "text/html")
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(root, "wiki", "p1", "page.html"))
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
	})

	t.Run("rejects escaping keys", func(t *testing.T) {
		for _, key := range []string{"", "../x", "/abs", "a/../../x", "a//b"} {
			_, err := store.Put(ctx, key, strings.NewReader("x"), 1, "text/plain")
			assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
		}
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "wiki/p1/page.html"))
		assert.ErrorIs(t, store.Delete(ctx, "wiki/p1/page.html"), storage.ErrNotFound)
	})
}

func TestNew(t *testing.T) {
	store, err := storage.New(context.Background(), &config.StorageConfig{
		Backend:    "local",
		UploadDir:  t.TempDir(),
		PublicPath: "/files",
	})
	require.NoError(t, err)
	assert.Equal(t, "/files/a/b.txt", store.URL("a/b.txt"))

	_, err = storage.New(context.Background(), &config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}

type flakyStore struct {
	deleted []string
	fail    map[string]error
}

func (f *flakyStore) Put(context.Context, string, io.Reader, int64, string) (storage.Object, error) {
	return storage.Object{}, nil
}

func (f *flakyStore) Delete(_ context.Context, key string) error {
	if err := f.fail[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *flakyStore) URL(key string) string { return key }

func TestDeleteAll(t *testing.T) {
	boom := errors.New("boom")
	store := &flakyStore{fail: map[string]error{
		"b": boom,
		"c": storage.ErrNotFound,
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := storage.DeleteAll(context.Background(), store, []string{"a", "b", "", "c", "d"}, log)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{"a", "d"}, store.deleted)

	assert.NoError(t, storage.DeleteAll(context.Background(), store, []string{"a"}, log))
}
