// Package rehost copies externally generated images into owned object storage.
package rehost

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"go.uber.org/zap"

	"Postgen/internal/core/storage"
)

// Destination identifies where a rehosted image belongs.
type Destination struct {
	PostID        string
	VariantNumber int
}

// Rehoster downloads foreign images and uploads them into the owned bucket.
// URLs that already point into the owned bucket are returned unchanged.
type Rehoster struct {
	store       storage.Store
	fetcher     Fetcher
	now         func() time.Time
	logger      *zap.Logger
	bucket      string
	ownedPrefix string
}

// NewRehoster creates a Rehoster writing into bucket.
// ownedPrefix is the public URL prefix of the bucket, e.g. {publicBaseURL}/{bucket}/.
func NewRehoster(store storage.Store, fetcher Fetcher, bucket, ownedPrefix string, logger *zap.Logger) (*Rehoster, error) {
	if store == nil || fetcher == nil {
		return nil, fmt.Errorf("%w: store and fetcher are required", ErrNilDependency)
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("rehost: bucket is required")
	}
	if strings.TrimSpace(ownedPrefix) == "" {
		return nil, errors.New("rehost: owned prefix is required")
	}
	if !strings.HasSuffix(ownedPrefix, "/") {
		ownedPrefix += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rehoster{
		store:       store,
		fetcher:     fetcher,
		now:         time.Now,
		logger:      logger.Named("rehost"),
		bucket:      bucket,
		ownedPrefix: ownedPrefix,
	}, nil
}

// IsOwned reports whether imageURL already lives in the owned bucket.
func (r *Rehoster) IsOwned(imageURL string) bool {
	return strings.HasPrefix(imageURL, r.ownedPrefix)
}

// Rehost returns the owned public URL for sourceURL, uploading a copy if needed.
func (r *Rehoster) Rehost(ctx context.Context, sourceURL string, dest Destination) (string, error) {
	if r.IsOwned(sourceURL) {
		return sourceURL, nil
	}
	if strings.TrimSpace(sourceURL) == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidSource)
	}
	if dest.PostID == "" || dest.VariantNumber <= 0 {
		return "", fmt.Errorf("rehost: invalid destination %+v", dest)
	}

	img, err := r.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	ext := extensionFor(img.ContentType)
	key := ObjectKey(dest, r.now(), ext)

	publicURL, err := r.store.Upload(ctx, r.bucket, key, img.Data, contentTypeFor(ext))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrObjectExists):
			return "", fmt.Errorf("%w: %s", ErrUploadConflict, key)
		case errors.Is(err, storage.ErrPublicURLUnavailable):
			return "", fmt.Errorf("%w: %s", ErrPublicURLUnavailable, key)
		default:
			return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
	}
	if publicURL == "" {
		return "", fmt.Errorf("%w: %s", ErrPublicURLUnavailable, key)
	}

	r.logger.Debug("[REHOST] Image rehosted",
		zap.String("post_id", dest.PostID),
		zap.Int("variant_number", dest.VariantNumber),
		zap.String("key", key),
		zap.Int("bytes", len(img.Data)))

	return publicURL, nil
}

// Release deletes the owned objects behind imageURLs. Foreign URLs are ignored.
func (r *Rehoster) Release(ctx context.Context, imageURLs []string) error {
	keys := make([]string, 0, len(imageURLs))
	for _, u := range imageURLs {
		if !r.IsOwned(u) {
			continue
		}
		if key := strings.TrimPrefix(u, r.ownedPrefix); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return r.store.Delete(ctx, r.bucket, keys)
}

// ObjectKey builds {postId}/{variantNumber}-{unixMillis}.{ext}
func ObjectKey(dest Destination, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%d-%d.%s", dest.PostID, dest.VariantNumber, at.UnixMilli(), ext)
}

// extensionFor maps a declared Content-Type to a file extension, defaulting to png.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.Contains(mediaType, "jpeg"), strings.Contains(mediaType, "jpg"):
		return "jpg"
	case strings.Contains(mediaType, "webp"):
		return "webp"
	case strings.Contains(mediaType, "png"):
		return "png"
	default:
		return "png"
	}
}

func contentTypeFor(ext string) string {
	switch ext {
	case "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
