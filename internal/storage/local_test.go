package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: dir}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s, dir
}

func TestLocalPutGet(t *testing.T) {
	s, dir := newTestLocal(t)
	ctx := context.Background()
	key := "projects/p1/versions/v1.json"

	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"a":1}`), PutOptions{}))

	_, err := os.Stat(filepath.Join(dir, "projects", "p1", "versions", "v1.json"))
	require.NoError(t, err)

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, string(data))
	assert.Equal(t, key, info.Key)
	assert.Equal(t, int64(7), info.Size)
	assert.Equal(t, ContentTypeJSON, info.ContentType)
	assert.False(t, info.LastModified.IsZero())
}

func TestLocalOverwrite(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()
	key := "reports/a.txt"

	require.NoError(t, s.Put(ctx, key, strings.NewReader("first"), PutOptions{}))

	err := s.Put(ctx, key, strings.NewReader("second"), PutOptions{})
	assert.True(t, IsKeyExists(err))

	require.NoError(t, s.Put(ctx, key, strings.NewReader("third"), PutOptions{Overwrite: true}))
	rc, _, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "third", string(data))
}

func TestLocalTooLarge(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()

	err := s.Put(ctx, "big.txt", strings.NewReader("0123456789"), PutOptions{MaxSize: 4})
	assert.ErrorIs(t, err, ErrTooLarge)

	exists, err := s.Exists(ctx, "big.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Put(ctx, "fits.txt", strings.NewReader("0123"), PutOptions{MaxSize: 4}))
}

func TestLocalDeleteAndExists(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()
	key := "a/b.txt"

	require.NoError(t, s.Put(ctx, key, strings.NewReader("x"), PutOptions{}))
	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = s.Get(ctx, key)
	assert.True(t, IsNotFound(err))
}

func TestLocalInvalidKeys(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../escape.txt", "a/../../b", "a//b", "./a"} {
		t.Run(key, func(t *testing.T) {
			err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestLocalCanceledContext(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, "a.txt", strings.NewReader("x"), PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("0f8c6d2e-5c1a-4b7e-9a7d-2b1f0c3e4d5a")

	assert.Equal(t, "projects/plant%2F1/versions/"+id.String()+".json", VersionKey("plant/1", id))
	assert.Equal(t, "projects/p1/reports/"+id.String()+"/override_report.txt", ReportKey("p1", id, KindOverrideReport))
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.json": ContentTypeJSON,
		"a.TXT":  ContentTypeText,
		"a":      "application/octet-stream",
	}
	for key, want := range tests {
		assert.Equal(t, want, contentTypeFor(key), key)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("ftp", LocalConfig{}, R2Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
