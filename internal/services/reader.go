package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Content Reader Service
// Fetches a web page through a Jina-style reader gateway and returns its
// content as markdown. The gateway answers text/plain on success and a JSON
// error envelope on failure.
// ---------------------------------------------------------------------------

// ContentReader converts a URL into markdown source material.
type ContentReader interface {
	ReadToMarkdown(ctx context.Context, rawURL string) (string, error)
}

type Reader struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ ContentReader = (*Reader)(nil)

func NewReader(baseURL, apiKey string) *Reader {
	return &Reader{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type readerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ReadToMarkdown fetches rawURL through the reader gateway.
// Fails with a descriptive error when the source is unreachable or empty.
func (r *Reader) ReadToMarkdown(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("empty URL")
	}

	endpoint := fmt.Sprintf("%s/jina/reader/%s", r.baseURL, url.QueryEscape(rawURL))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create reader request: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reader request failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read reader response: %w", err)
	}

	// The gateway reports failures as a JSON envelope instead of text
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var readerErr readerError
		if json.Unmarshal(body, &readerErr) == nil && (readerErr.Error != "" || readerErr.Message != "") {
			return "", fmt.Errorf("reader rejected %s: %s%s", rawURL, readerErr.Error, readerErr.Message)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader returned status %d for %s", resp.StatusCode, rawURL)
	}

	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", fmt.Errorf("reader returned empty content for %s", rawURL)
	}

	log.Printf("[Reader] fetched %s (%d bytes)", rawURL, len(content))

	return content, nil
}
