package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/podforge/podforge/internal/models"
)

// ---------------------------------------------------------------------------
// Podcast Backend Service
// Client for the remote asynchronous generation backend: dialogue-script
// jobs, audio-synthesis jobs, status polling, cancellation, and the SSE
// progress stream.
// ---------------------------------------------------------------------------

// StreamEvent is one named server-sent event from the progress stream.
type StreamEvent struct {
	Name string
	Data []byte
}

// PodcastBackend is the async generation contract consumed by the workflow.
type PodcastBackend interface {
	SubmitPodcast(ctx context.Context, req *models.PodcastRequest) (string, error)
	SubmitDialogue(ctx context.Context, req *models.DialogueRequest) (string, error)
	Status(ctx context.Context, taskID string) (*models.TaskStatusResponse, error)
	Cancel(taskID string)
	OpenStream(ctx context.Context, taskID string) (<-chan StreamEvent, error)
}

type PodcastClient struct {
	baseURL string
	apiKey  string
	client  *http.Client

	// Long timeout for the stream connection; status/submit use httpTimeout.
	streamClient *http.Client
}

var _ PodcastBackend = (*PodcastClient)(nil)

const podcastHTTPTimeout = 30 * time.Second

func NewPodcastClient(baseURL, apiKey string) *PodcastClient {
	return &PodcastClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		client:       &http.Client{Timeout: podcastHTTPTimeout},
		streamClient: &http.Client{}, // no timeout: the stream lives as long as the job
	}
}

// SubmitPodcast submits an audio-synthesis job and returns its task id.
func (c *PodcastClient) SubmitPodcast(ctx context.Context, req *models.PodcastRequest) (string, error) {
	return c.submit(ctx, c.baseURL+"/podcast/async/generate", req)
}

// SubmitDialogue submits a script-generation job and returns its task id.
func (c *PodcastClient) SubmitDialogue(ctx context.Context, req *models.DialogueRequest) (string, error) {
	return c.submit(ctx, c.baseURL+"/podcast/async/text", req)
}

func (c *PodcastClient) submit(ctx context.Context, endpoint string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("submission returned status %d: %s", resp.StatusCode, truncateString(string(respBody), 200))
	}

	var parsed models.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse submission response: %w", err)
	}
	if parsed.TaskID == "" {
		return "", fmt.Errorf("submission response has no task_id")
	}

	log.Printf("[Podcast] submitted task %s", parsed.TaskID)

	return parsed.TaskID, nil
}

// Status fetches the current state of an outstanding task.
func (c *PodcastClient) Status(ctx context.Context, taskID string) (*models.TaskStatusResponse, error) {
	endpoint := fmt.Sprintf("%s/podcast/async/status/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status returned %d: %s", resp.StatusCode, truncateString(string(respBody), 200))
	}

	var parsed models.TaskStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return &parsed, nil
}

// Cancel notifies the backend to abandon a task. Fire-and-forget: local
// state has already been reconciled by the time this runs, so failures are
// logged and swallowed.
func (c *PodcastClient) Cancel(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/podcast/async/cancel/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, nil)
	if err != nil {
		log.Printf("[Podcast] cancel request for %s not created: %v", taskID, err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[Podcast] cancel notify for %s failed: %v", taskID, err)
		return
	}
	resp.Body.Close()

	log.Printf("[Podcast] cancel notified for %s (status %d)", taskID, resp.StatusCode)
}

// OpenStream subscribes to the server-sent progress stream for a task.
// The returned channel closes when the stream ends or ctx is cancelled.
func (c *PodcastClient) OpenStream(ctx context.Context, taskID string) (<-chan StreamEvent, error) {
	endpoint := fmt.Sprintf("%s/podcast/async/stream/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, truncateString(string(body), 200))
	}

	events := make(chan StreamEvent, 8)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		var eventName string
		var data bytes.Buffer

		flush := func() {
			if data.Len() == 0 {
				return
			}
			ev := StreamEvent{Name: eventName, Data: append([]byte(nil), data.Bytes()...)}
			eventName = ""
			data.Reset()
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				flush()
			case strings.HasPrefix(line, "event:"):
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
			// comment lines (":") and unknown fields are ignored
		}
		flush()

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Printf("[Podcast] stream for %s ended with error: %v", taskID, err)
		}
	}()

	return events, nil
}
