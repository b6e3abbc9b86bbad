// Package storage provides object storage backends for generated images.
//
// Two backends implement Store:
//   - SupabaseStore: Supabase Storage REST API
//   - GCSStore: Google Cloud Storage
//
// Uploads never overwrite an existing object. Public URLs follow
// {publicBaseURL}/{bucket}/{key} for both backends.
package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrObjectExists is returned when an upload targets a key that already exists.
	ErrObjectExists = errors.New("object already exists")

	// ErrPublicURLUnavailable is returned when a public URL cannot be produced for an object.
	ErrPublicURLUnavailable = errors.New("public URL unavailable")

	// ErrUploadFailed is returned when the backend rejects or fails an upload.
	ErrUploadFailed = errors.New("object upload failed")

	// ErrDeleteFailed is returned when the backend fails to delete objects.
	ErrDeleteFailed = errors.New("object delete failed")

	// ErrInvalidObject is returned for empty bucket names, keys or payloads.
	ErrInvalidObject = errors.New("invalid object")
)

// Store is the object storage contract used by the image rehoster.
type Store interface {
	// Upload writes data under bucket/key without overwriting and returns the public URL.
	// Returns ErrObjectExists when the key is already taken.
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)

	// PublicURL returns the public URL of bucket/key.
	PublicURL(bucket, key string) (string, error)

	// Delete removes the given keys from bucket. Missing keys are not an error.
	Delete(ctx context.Context, bucket string, keys []string) error
}

// joinPublicURL builds {base}/{bucket}/{key}
func joinPublicURL(base, bucket, key string) (string, error) {
	base = strings.TrimRight(base, "/")
	if base == "" || bucket == "" || key == "" {
		return "", ErrPublicURLUnavailable
	}
	return base + "/" + bucket + "/" + strings.TrimLeft(key, "/"), nil
}

func validateObject(bucket, key string) error {
	if strings.TrimSpace(bucket) == "" {
		return errors.Join(ErrInvalidObject, errors.New("bucket is required"))
	}
	if strings.TrimSpace(key) == "" {
		return errors.Join(ErrInvalidObject, errors.New("key is required"))
	}
	return nil
}
