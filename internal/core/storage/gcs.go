package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore stores objects in Google Cloud Storage.
// Objects are expected to be publicly readable through bucket-level IAM.
type GCSStore struct {
	client        *gcs.Client
	publicBaseURL string
}

// NewGCSStore constructs a GCSStore backed by the provided client.
// publicBaseURL defaults to https://storage.googleapis.com when empty.
func NewGCSStore(client *gcs.Client, publicBaseURL string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("gcs storage: client is required")
	}
	if strings.TrimSpace(publicBaseURL) == "" {
		publicBaseURL = "https://storage.googleapis.com"
	}
	return &GCSStore{client: client, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Upload writes the object with a DoesNotExist precondition
func (s *GCSStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := validateObject(bucket, key); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: data cannot be empty", ErrInvalidObject)
	}

	obj := s.client.Bucket(bucket).Object(key).If(gcs.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", classifyWriteError(bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", classifyWriteError(bucket, key, err)
	}

	return s.PublicURL(bucket, key)
}

// PublicURL returns {publicBaseURL}/{bucket}/{key}
func (s *GCSStore) PublicURL(bucket, key string) (string, error) {
	return joinPublicURL(s.publicBaseURL, bucket, key)
}

// Delete removes each key; objects that are already gone are skipped
func (s *GCSStore) Delete(ctx context.Context, bucket string, keys []string) error {
	if strings.TrimSpace(bucket) == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidObject)
	}

	var errs []error
	for _, key := range keys {
		err := s.client.Bucket(bucket).Object(key).Delete(ctx)
		if err == nil || errors.Is(err, gcs.ErrObjectNotExist) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, errors.Join(errs...))
	}
	return nil
}

func classifyWriteError(bucket, key string, err error) error {
	if isPreconditionFailed(err) {
		return fmt.Errorf("%w: %s/%s", ErrObjectExists, bucket, key)
	}
	return fmt.Errorf("%w: %v", ErrUploadFailed, err)
}

// isPreconditionFailed reports whether err is the 412 returned for a DoesNotExist violation
func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}
