package rehost

import "errors"

var (
	// ErrFetchFailed is returned when downloading a source image fails or returns a non-2xx status.
	ErrFetchFailed = errors.New("failed to fetch source image")

	// ErrFetchTimeout is returned when downloading a source image exceeds the timeout or is cancelled.
	ErrFetchTimeout = errors.New("source image fetch timed out")

	// ErrImageTooLarge is returned when the source image exceeds the maximum allowed size.
	ErrImageTooLarge = errors.New("source image exceeds size limit")

	// ErrUploadConflict is returned when the destination key already exists in storage.
	// It is surfaced to the caller and never retried.
	ErrUploadConflict = errors.New("destination object already exists")

	// ErrUploadFailed is returned when storage rejects the upload for any other reason.
	ErrUploadFailed = errors.New("failed to upload image")

	// ErrPublicURLUnavailable is returned when storage cannot produce a public URL for the upload.
	ErrPublicURLUnavailable = errors.New("public URL unavailable")

	// ErrInvalidSource is returned for empty or malformed source URLs.
	ErrInvalidSource = errors.New("invalid source image URL")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)

// IsFetchError reports whether err came from downloading the source image.
func IsFetchError(err error) bool {
	return errors.Is(err, ErrFetchFailed) || errors.Is(err, ErrFetchTimeout) || errors.Is(err, ErrImageTooLarge)
}
