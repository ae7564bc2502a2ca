package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
)

// ---------------------------------------------------------------------------
// Voice Catalog
// Fetches the provider → voices map from the backend so the audio-settings
// stage can offer per-speaker voice selection.
// ---------------------------------------------------------------------------

// VoiceCatalog lists available synthesis voices grouped by provider.
type VoiceCatalog interface {
	ListVoices(ctx context.Context, lang string) (map[string][]RemoteVoice, error)
}

// RemoteVoice is re-exported through models.RemoteSpeaker at the API layer;
// kept separate here so the wire shape can drift without touching the model.
type RemoteVoice struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
	Sample      string `json:"sample"`
}

var _ VoiceCatalog = (*PodcastClient)(nil)

// ListVoices fetches the voice catalog for a UI language.
func (c *PodcastClient) ListVoices(ctx context.Context, lang string) (map[string][]RemoteVoice, error) {
	endpoint := c.baseURL + "/voice/model"
	if lang != "" {
		endpoint += "?lang=" + url.QueryEscape(lang)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voice catalog returned status %d: %s", resp.StatusCode, truncateString(string(body), 200))
	}

	var catalog map[string][]RemoteVoice
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("voice catalog is empty")
	}

	total := 0
	for _, voices := range catalog {
		total += len(voices)
	}
	log.Printf("[Voices] catalog loaded: %d providers, %d voices (lang=%s)", len(catalog), total, lang)

	return catalog, nil
}
