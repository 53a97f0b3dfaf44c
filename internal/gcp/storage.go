package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// ErrObjectNotFound is returned when the object to read or move does not exist.
var ErrObjectNotFound = errors.New("object not found")

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GCSBlobStore reads and relocates export files in Cloud Storage.
type GCSBlobStore struct {
	client *storage.Client
}

// NewGCSBlobStore wraps an existing storage client.
func NewGCSBlobStore(client *storage.Client) *GCSBlobStore {
	return &GCSBlobStore{client: client}
}

// Open returns a streaming reader for gs://bucket/object.
func (s *GCSBlobStore) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	return reader, nil
}

// Move relocates src to dst within bucket by copying and then deleting the
// source. The delete is pinned to the generation that was copied, so an object
// re-uploaded under the same name in the meantime is left alone.
func (s *GCSBlobStore) Move(ctx context.Context, bucket, src, dst string) error {
	if src == dst {
		return fmt.Errorf("refusing to move gs://%s/%s onto itself", bucket, src)
	}
	bkt := s.client.Bucket(bucket)

	attrs, err := bkt.Object(src).Attrs(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("gs://%s/%s: %w", bucket, src, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to stat gs://%s/%s: %w", bucket, src, err)
	}
	srcObj := bkt.Object(src).If(storage.Conditions{GenerationMatch: attrs.Generation})

	if _, err := bkt.Object(dst).CopierFrom(srcObj).Run(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("gs://%s/%s: %w", bucket, src, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to copy gs://%s/%s to %s: %w", bucket, src, dst, err)
	}

	if err := srcObj.Delete(ctx); err != nil {
		if isPreconditionFailed(err) {
			slog.Warn("Source was replaced during move; leaving the new upload in place.",
				"gcsBucket", bucket, "gcsObject", src, "copiedGeneration", attrs.Generation)
			return nil
		}
		return fmt.Errorf("failed to delete gs://%s/%s after copy: %w", bucket, src, err)
	}
	return nil
}

// ObjectInfo is the subset of object attributes the sweeper needs.
type ObjectInfo struct {
	Name    string
	Updated time.Time
}

// List returns the objects under prefix, sorted by name. Folder placeholder
// objects (names ending in "/") are skipped.
func (s *GCSBlobStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name", "Updated"}); err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}
	it := s.client.Bucket(bucket).Objects(ctx, query)

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{Name: attrs.Name, Updated: attrs.Updated})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
