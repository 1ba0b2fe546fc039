package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BlobStore is where uploaded document files live. Paths are
// tenant-scoped keys like "<tenant>/<document>.pdf".
type BlobStore interface {
	Upload(ctx context.Context, path string, data io.Reader, contentType string) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// HTTPStore talks to a supabase-compatible object storage API, bound to a
// single bucket.
type HTTPStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

func NewHTTPStore(baseURL, serviceKey, bucket string) *HTTPStore {
	return &HTTPStore{
		baseURL:    baseURL + "/storage/v1",
		serviceKey: serviceKey,
		bucket:     bucket,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *HTTPStore) objectURL(path string) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)
}

func (s *HTTPStore) Upload(ctx context.Context, path string, data io.Reader, contentType string) error {
	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, data); err != nil {
		return fmt.Errorf("read upload data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(path), buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload %s failed (%d): %s", path, resp.StatusCode, body)
	}
	return nil
}

func (s *HTTPStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s failed (%d)", path, resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *HTTPStore) Delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(path), nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("delete %s failed (%d)", path, resp.StatusCode)
	}
	return nil
}
