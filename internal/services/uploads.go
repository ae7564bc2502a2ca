package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// File Store
// Uploads user-provided source files (documents, transcripts, audio) to an
// object-storage gateway and hands back a public URL for the resource list.
// ---------------------------------------------------------------------------

const (
	// Generous per-attempt timeout for large document/audio uploads
	uploadTimeout = 180 * time.Second

	maxUploadRetries = 4
	baseRetryDelay   = 1 * time.Second
	maxRetryDelay    = 30 * time.Second
)

// FileUploader stores a named file and returns its public URL.
type FileUploader interface {
	UploadResource(ctx context.Context, filename string, data []byte, contentType string) (string, error)
}

type FileStore struct {
	url        string
	serviceKey string
	bucket     string
	client     *http.Client
}

var _ FileUploader = (*FileStore)(nil)

func NewFileStore(url, serviceKey, bucket string) *FileStore {
	return &FileStore{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// UploadResource stores the file under a fresh collision-free path and
// returns its public URL.
func (s *FileStore) UploadResource(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file %q", filename)
	}

	path := fmt.Sprintf("uploads/%s%s", uuid.NewString(), filepath.Ext(filename))
	if err := s.upload(ctx, path, data, contentType); err != nil {
		return "", err
	}

	return s.PublicURL(path), nil
}

// upload PUTs the object with retries and exponential backoff.
func (s *FileStore) upload(ctx context.Context, path string, data []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, path)

	var lastErr error
	for attempt := 0; attempt <= maxUploadRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[FileStore] upload retry %d/%d for %s (waiting %v)...", attempt, maxUploadRetries, path, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, "PUT", endpoint, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create upload request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("upload failed: %w", err)
			if isRetryableError(err) {
				log.Printf("[FileStore] upload attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return lastErr
		}

		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			if attempt > 0 {
				log.Printf("[FileStore] upload succeeded on attempt %d for %s", attempt+1, path)
			}
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d", resp.StatusCode)

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[FileStore] upload attempt %d returned status %d (retryable)", attempt+1, resp.StatusCode)
			continue
		}

		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxUploadRetries+1, lastErr)
}

// PublicURL returns the public URL for a stored object.
func (s *FileStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.bucket, path)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
