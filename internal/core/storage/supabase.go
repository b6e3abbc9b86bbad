package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SupabaseStore talks to the Supabase Storage REST API with a service role key.
type SupabaseStore struct {
	client        *http.Client
	baseURL       string
	serviceKey    string
	publicBaseURL string
}

// NewSupabaseStore creates a store for the Supabase project at baseURL.
// publicBaseURL defaults to {baseURL}/storage/v1/object/public when empty.
func NewSupabaseStore(baseURL, serviceKey, publicBaseURL string, timeout time.Duration) (*SupabaseStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("supabase storage: base URL is required")
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("supabase storage: service key is required")
	}
	if publicBaseURL == "" {
		publicBaseURL = baseURL + "/storage/v1/object/public"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SupabaseStore{
		client:        &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		serviceKey:    serviceKey,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// supabaseError is the error body returned by the storage API.
// statusCode is a string in older API versions.
type supabaseError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// Upload POSTs the object with x-upsert disabled
func (s *SupabaseStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := validateObject(bucket, key); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: data cannot be empty", ErrInvalidObject)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := s.baseURL + "/storage/v1/object/" + escapePath(bucket) + "/" + escapePath(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrUploadFailed, err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	req.Header.Set("Cache-Control", "max-age=3600")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return s.PublicURL(bucket, key)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if isDuplicate(resp.StatusCode, body) {
		return "", fmt.Errorf("%w: %s/%s", ErrObjectExists, bucket, key)
	}
	return "", fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, summarizeError(body))
}

// PublicURL returns {publicBaseURL}/{bucket}/{key}
func (s *SupabaseStore) PublicURL(bucket, key string) (string, error) {
	return joinPublicURL(s.publicBaseURL, bucket, key)
}

// Delete removes keys with a single prefixes request
func (s *SupabaseStore) Delete(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if strings.TrimSpace(bucket) == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidObject)
	}

	payload, err := json.Marshal(map[string][]string{"prefixes": keys})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request: %v", ErrDeleteFailed, err)
	}

	endpoint := s.baseURL + "/storage/v1/object/" + escapePath(bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrDeleteFailed, err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrDeleteFailed, resp.StatusCode, summarizeError(body))
	}
	return nil
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
}

// isDuplicate recognises both the 409 status and the legacy 400 body with statusCode "409"
func isDuplicate(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	var apiErr supabaseError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return false
	}
	return apiErr.StatusCode == "409" || strings.EqualFold(apiErr.Error, "Duplicate")
}

func summarizeError(body []byte) string {
	var apiErr supabaseError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(body))
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
