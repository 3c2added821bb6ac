// Package storage archives design artifacts (version documents, calculation
// transcripts, override reports) in object storage.
//
// LocalStorage writes under a directory and is meant for development and
// tests. R2Storage writes to a Cloudflare R2 bucket through the S3 API.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage is a flat key/value object store.
type Storage interface {
	// Put stores data at key. Unless opts.Overwrite is set, an existing
	// object at key yields ErrKeyExists.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object at key; the caller closes the reader.
	// A missing key yields ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is derived from the key extension when empty.
	ContentType string
	// MaxSize rejects larger payloads with ErrTooLarge. Zero means no limit.
	MaxSize   int64
	Overwrite bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	BasePath string // e.g. "./storage"
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Region defaults to "auto".
	Region string
	// Endpoint overrides the account endpoint (S3-compatible test servers).
	Endpoint string
}

// Storage providers
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// New creates the storage backend for provider.
func New(provider string, local LocalConfig, r2 R2Config, logger *slog.Logger) (Storage, error) {
	switch provider {
	case ProviderLocal:
		return NewLocalStorage(local, logger)
	case ProviderR2:
		return NewR2Storage(r2, logger)
	}
	return nil, fmt.Errorf("unknown storage provider %q", provider)
}

// =============================================================================
// Artifact kinds and keys
// =============================================================================

// Artifact kinds recorded in version output metadata.
const (
	KindVersionDocument   = "version_document"
	KindCalculationReport = "calculation_report"
	KindOverrideReport    = "override_report"
)

// Content types of archived artifacts.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// VersionKey is the key of a version document.
// Format: projects/{projectID}/versions/{versionID}.json
func VersionKey(projectID string, versionID uuid.UUID) string {
	return fmt.Sprintf("projects/%s/versions/%s.json", url.PathEscape(projectID), versionID)
}

// ReportKey is the key of a text report produced for a calculation log.
// Format: projects/{projectID}/reports/{logID}/{kind}.txt
func ReportKey(projectID string, logID uuid.UUID, kind string) string {
	return fmt.Sprintf("projects/%s/reports/%s/%s.txt", url.PathEscape(projectID), logID, kind)
}

// validateKey rejects empty keys, absolute keys and path traversal.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// contentTypeFor derives a content type from the key extension.
func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return ContentTypeJSON
	case ".txt":
		return ContentTypeText
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
