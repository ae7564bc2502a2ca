package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/podforge/podforge/internal/models"
)

// ---------------------------------------------------------------------------
// Web Search Service
// Fans a query out across the configured search providers and merges the
// hits into one deduplicated list. Providers sit behind the same gateway as
// the rest of the backend.
// ---------------------------------------------------------------------------

type SearchProvider string

const (
	ProviderTavily     SearchProvider = "tavily"
	ProviderBochaai    SearchProvider = "bochaai"
	ProviderGoogle     SearchProvider = "google"
	ProviderBing       SearchProvider = "bing"
	ProviderBaidu      SearchProvider = "baidu"
	ProviderDuckDuckGo SearchProvider = "duckduckgo"
)

// defaultProviderOrder is tried front to back when the caller does not pick.
var defaultProviderOrder = []SearchProvider{
	ProviderTavily,
	ProviderBochaai,
	ProviderGoogle,
	ProviderBing,
	ProviderBaidu,
	ProviderDuckDuckGo,
}

// Searcher runs a web search across one or more providers.
type Searcher interface {
	Search(ctx context.Context, query string, providers []SearchProvider, maxResults int) ([]models.SearchResult, error)
}

type SearchService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Searcher = (*SearchService)(nil)

func NewSearchService(baseURL, apiKey string) *SearchService {
	return &SearchService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Search queries the given providers concurrently and merges their hits,
// deduplicated by URL, preserving provider order. With no providers given it
// walks the default order sequentially until one succeeds.
func (s *SearchService) Search(ctx context.Context, query string, providers []SearchProvider, maxResults int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	if len(providers) == 0 {
		return s.searchFirstAvailable(ctx, query, maxResults)
	}

	results := make([][]models.SearchResult, len(providers))
	var mu sync.Mutex
	var failures []string

	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range providers {
		g.Go(func() error {
			hits, err := s.searchOne(gctx, provider, query, maxResults)
			if err != nil {
				// A failing provider must not sink the whole fan-out
				log.Printf("[Search] provider %s failed: %v", provider, err)
				mu.Lock()
				failures = append(failures, string(provider))
				mu.Unlock()
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(failures) == len(providers) {
		return nil, fmt.Errorf("all search providers failed: %s", strings.Join(failures, ", "))
	}

	merged := mergeResults(results, maxResults)
	log.Printf("[Search] query %q: %d hits from %d providers (%d failed)", query, len(merged), len(providers), len(failures))

	return merged, nil
}

func (s *SearchService) searchFirstAvailable(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	var lastErr error
	for _, provider := range defaultProviderOrder {
		hits, err := s.searchOne(ctx, provider, query, maxResults)
		if err != nil {
			log.Printf("[Search] provider %s failed, trying next: %v", provider, err)
			lastErr = err
			continue
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("no search provider succeeded: %w", lastErr)
	}
	return nil, fmt.Errorf("no search provider returned results")
}

func (s *SearchService) searchOne(ctx context.Context, provider SearchProvider, query string, maxResults int) ([]models.SearchResult, error) {
	switch provider {
	case ProviderTavily:
		return s.searchTavily(ctx, query, maxResults)
	case ProviderBochaai:
		return s.searchBochaai(ctx, query, maxResults)
	case ProviderGoogle, ProviderBing, ProviderBaidu, ProviderDuckDuckGo:
		return s.searchEngine(ctx, string(provider), query, maxResults)
	default:
		return nil, fmt.Errorf("unknown search provider %q", provider)
	}
}

// mergeResults flattens per-provider hit lists, dropping URLs already seen.
func mergeResults(results [][]models.SearchResult, maxResults int) []models.SearchResult {
	seen := make(map[string]bool)
	merged := make([]models.SearchResult, 0, maxResults)
	for _, hits := range results {
		for _, hit := range hits {
			if hit.URL == "" || seen[hit.URL] {
				continue
			}
			seen[hit.URL] = true
			merged = append(merged, hit)
			if len(merged) >= maxResults {
				return merged
			}
		}
	}
	return merged
}

// --- Tavily ---

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *SearchService) searchTavily(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	payload := map[string]interface{}{
		"query":       query,
		"max_results": maxResults,
	}

	var parsed tavilyResponse
	if err := s.postJSON(ctx, s.baseURL+"/tavily/search", payload, &parsed); err != nil {
		return nil, err
	}

	hits := make([]models.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, models.SearchResult{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Content,
			Provider: string(ProviderTavily),
		})
	}
	return hits, nil
}

// --- Bochaai ---

type bochaaiResponse struct {
	Data struct {
		WebPages struct {
			Value []struct {
				Name          string `json:"name"`
				URL           string `json:"url"`
				Snippet       string `json:"snippet"`
				SiteName      string `json:"siteName"`
				DatePublished string `json:"datePublished"`
			} `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

func (s *SearchService) searchBochaai(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	payload := map[string]interface{}{
		"query":   query,
		"count":   maxResults,
		"summary": true,
	}

	var parsed bochaaiResponse
	if err := s.postJSON(ctx, s.baseURL+"/bochaai/v1/web-search", payload, &parsed); err != nil {
		return nil, err
	}

	hits := make([]models.SearchResult, 0, len(parsed.Data.WebPages.Value))
	for _, r := range parsed.Data.WebPages.Value {
		hits = append(hits, models.SearchResult{
			Title:         r.Name,
			URL:           r.URL,
			Snippet:       r.Snippet,
			SiteName:      r.SiteName,
			DatePublished: r.DatePublished,
			Provider:      string(ProviderBochaai),
		})
	}
	return hits, nil
}

// --- SearchAPI engines (google / bing / baidu / duckduckgo) ---

type engineResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Source  string `json:"source"`
		Date    string `json:"date"`
	} `json:"organic_results"`
}

func (s *SearchService) searchEngine(ctx context.Context, engine, query string, maxResults int) ([]models.SearchResult, error) {
	params := url.Values{}
	params.Set("engine", engine)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", maxResults))

	endpoint := s.baseURL + "/searchapi/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", engine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s search returned status %d: %s", engine, resp.StatusCode, truncateString(string(body), 200))
	}

	var parsed engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s search response: %w", engine, err)
	}

	hits := make([]models.SearchResult, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		hits = append(hits, models.SearchResult{
			Title:         r.Title,
			URL:           r.Link,
			Snippet:       r.Snippet,
			SiteName:      r.Source,
			DatePublished: r.Date,
			Provider:      engine,
		})
	}
	return hits, nil
}

func (s *SearchService) postJSON(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("search returned status %d: %s", resp.StatusCode, truncateString(string(respBody), 200))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse search response: %w", err)
	}
	return nil
}
