package storage

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestNewGCSStore_RequiresClient(t *testing.T) {
	store, err := NewGCSStore(nil, "")
	require.Error(t, err)
	assert.Nil(t, store)
}

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		err     error
		want    error
		notWant error
		name    string
	}{
		{
			name:    "precondition failed means the object exists",
			err:     &googleapi.Error{Code: http.StatusPreconditionFailed, Message: "conditionNotMet"},
			want:    ErrObjectExists,
			notWant: ErrUploadFailed,
		},
		{
			name:    "wrapped precondition failure",
			err:     fmt.Errorf("writer close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed}),
			want:    ErrObjectExists,
			notWant: ErrUploadFailed,
		},
		{
			name:    "forbidden is an upload failure",
			err:     &googleapi.Error{Code: http.StatusForbidden},
			want:    ErrUploadFailed,
			notWant: ErrObjectExists,
		},
		{
			name:    "transport error is an upload failure",
			err:     errors.New("connection reset by peer"),
			want:    ErrUploadFailed,
			notWant: ErrObjectExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyWriteError("variant-images", "post/1-1.png", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.NotErrorIs(t, got, tt.notWant)
		})
	}
}

func TestJoinPublicURL(t *testing.T) {
	got, err := joinPublicURL("https://storage.googleapis.com/", "variant-images", "/post/1-1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/variant-images/post/1-1.png", got)

	_, err = joinPublicURL("", "variant-images", "post/1-1.png")
	assert.ErrorIs(t, err, ErrPublicURLUnavailable)
}
