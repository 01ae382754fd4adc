// Package archive stores extracted filing text in Cloud Storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"DocketWatch/internal/ports"
)

// GCSArchive writes each object once; a second write of the same name is a no-op.
type GCSArchive struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

var _ ports.Archive = (*GCSArchive)(nil)

// NewGCSArchive connects with application default credentials.
func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket cannot be empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSArchive{client: client, bucket: client.Bucket(bucket), prefix: "extracted"}, nil
}

// Put uploads content under prefix/name.txt unless the object already exists.
func (a *GCSArchive) Put(ctx context.Context, name, content string) error {
	object := ObjectName(a.prefix, name)
	writer := a.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("finalize %s: %w", object, err)
	}
	return nil
}

// Close releases the storage client.
func (a *GCSArchive) Close() error {
	return a.client.Close()
}

// ObjectName maps a filing key such as "11-42/F1" onto a safe object path.
func ObjectName(prefix, name string) string {
	clean := strings.Trim(path.Clean("/"+name), "/")
	if clean == "" {
		clean = "unnamed"
	}
	return path.Join(prefix, clean+".txt")
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
