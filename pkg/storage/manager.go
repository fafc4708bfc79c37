package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	errs "catlux/pkg/errors"
	"catlux/pkg/logger"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// Manager stores fetched documents in a blob bucket. A plain path opens a
// local directory; anything with a scheme (mem://, file://) is handed to
// blob.OpenBucket.
type Manager struct {
	bucket   *blob.Bucket
	location string
	logger   logger.Logger
}

// Open opens the destination at location, creating a local directory if needed
func Open(ctx context.Context, location string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	var (
		bucket *blob.Bucket
		err    error
	)
	if strings.Contains(location, "://") {
		bucket, err = blob.OpenBucket(ctx, location)
	} else {
		if err := os.MkdirAll(location, 0755); err != nil {
			return nil, &errs.StorageUnavailableError{Location: location, Err: err}
		}
		bucket, err = fileblob.OpenBucket(location, &fileblob.Options{
			CreateDir: true,
			NoTempDir: true,
			Metadata:  fileblob.MetadataDontWrite,
		})
	}
	if err != nil {
		return nil, &errs.StorageUnavailableError{Location: location, Err: err}
	}

	return New(bucket, location, log), nil
}

// New wraps an already opened bucket
func New(bucket *blob.Bucket, location string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{bucket: bucket, location: location, logger: log}
}

// Location returns where documents are written
func (m *Manager) Location() string {
	return m.location
}

// Accessible verifies the destination can be listed
func (m *Manager) Accessible(ctx context.Context) error {
	ok, err := m.bucket.IsAccessible(ctx)
	if err == nil && !ok {
		err = errors.New("bucket is not accessible")
	}
	if err != nil {
		return &errs.StorageUnavailableError{Location: m.location, Err: err}
	}

	iter := m.bucket.List(nil)
	if _, err := iter.Next(ctx); err != nil && err != io.EOF {
		return &errs.StorageUnavailableError{Location: m.location, Err: err}
	}
	return nil
}

// Exists reports whether name is already stored
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := m.bucket.Exists(ctx, name)
	if err != nil {
		return false, &errs.StorageError{Op: "stat", Key: name, Err: err}
	}
	return ok, nil
}

// WriteAtomic stores data under name. The object only becomes visible once
// the whole payload has been written.
func (m *Manager) WriteAtomic(ctx context.Context, name string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: contentType(name)}
	if err := m.bucket.WriteAll(ctx, name, data, opts); err != nil {
		return &errs.StorageError{Op: "write", Key: name, Err: err}
	}

	m.logger.DebugWithFields("Document stored", map[string]interface{}{
		"key":   name,
		"bytes": len(data),
	})
	return nil
}

// ReadAll returns the stored object. A missing object yields a StorageError
// whose cause carries gcerrors.NotFound.
func (m *Manager) ReadAll(ctx context.Context, name string) ([]byte, error) {
	data, err := m.bucket.ReadAll(ctx, name)
	if err != nil {
		return nil, &errs.StorageError{Op: "read", Key: name, Err: err}
	}
	return data, nil
}

// Delete removes name. Removing a missing object is not an error.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.bucket.Delete(ctx, name); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return &errs.StorageError{Op: "delete", Key: name, Err: err}
	}
	return nil
}

// Close releases the bucket
func (m *Manager) Close() error {
	return m.bucket.Close()
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// DestinationFor returns where documents of a category are stored. With
// derive set, the last two path segments of the category URL (class and
// subject) become nested folders under root. Bucket URLs are used as given.
func DestinationFor(root, categoryURL string, derive bool) (string, error) {
	if !derive || strings.Contains(root, "://") {
		return root, nil
	}

	u, err := url.Parse(categoryURL)
	if err != nil {
		return "", fmt.Errorf("parse category URL: %w", err)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", fmt.Errorf("category URL %q needs at least two path segments (class and subject)", categoryURL)
	}

	class, subject := segments[len(segments)-2], segments[len(segments)-1]
	return filepath.Join(root, class, subject), nil
}
