package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/podforge/podforge/internal/models"
)

func TestMergeResultsDedupesByURLPreservingOrder(t *testing.T) {
	results := [][]models.SearchResult{
		{
			{Title: "A", URL: "https://a.test", Provider: "tavily"},
			{Title: "B", URL: "https://b.test", Provider: "tavily"},
		},
		{
			{Title: "A again", URL: "https://a.test", Provider: "bochaai"},
			{Title: "C", URL: "https://c.test", Provider: "bochaai"},
		},
	}

	merged := mergeResults(results, 10)
	if len(merged) != 3 {
		t.Fatalf("expected 3 deduped hits, got %d", len(merged))
	}
	// The first provider wins the duplicate.
	if merged[0].Provider != "tavily" || merged[0].URL != "https://a.test" {
		t.Errorf("unexpected first hit %+v", merged[0])
	}
	if merged[2].URL != "https://c.test" {
		t.Errorf("unexpected last hit %+v", merged[2])
	}
}

func TestMergeResultsHonorsCap(t *testing.T) {
	results := [][]models.SearchResult{{
		{URL: "https://1.test"},
		{URL: "https://2.test"},
		{URL: "https://3.test"},
	}}

	if got := len(mergeResults(results, 2)); got != 2 {
		t.Errorf("expected cap of 2, got %d", got)
	}
}

func TestSearchSurvivesOneFailingProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tavily/search":
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		case "/bochaai/v1/web-search":
			_, _ = w.Write([]byte(`{"data":{"webPages":{"value":[
				{"name":"Hit","url":"https://hit.test","snippet":"snippet","siteName":"Site"}
			]}}}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := NewSearchService(srv.URL, "secret")
	hits, err := svc.Search(context.Background(), "query", []SearchProvider{ProviderTavily, ProviderBochaai}, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(hits) != 1 || hits[0].URL != "https://hit.test" || hits[0].Provider != "bochaai" {
		t.Errorf("unexpected hits %+v", hits)
	}
}

func TestSearchFailsWhenAllProvidersFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewSearchService(srv.URL, "secret")
	if _, err := svc.Search(context.Background(), "query", []SearchProvider{ProviderTavily, ProviderBochaai}, 5); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := NewSearchService("http://unused", "secret")
	if _, err := svc.Search(context.Background(), "  ", nil, 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestEngineSearchParsesOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/searchapi/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("engine"); got != "google" {
			t.Errorf("expected engine=google, got %q", got)
		}
		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"Result","link":"https://r.test","snippet":"text","source":"r.test","date":"2026-01-01"}
		]}`))
	}))
	defer srv.Close()

	svc := NewSearchService(srv.URL, "secret")
	hits, err := svc.Search(context.Background(), "query", []SearchProvider{ProviderGoogle}, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Provider != "google" || hits[0].DatePublished != "2026-01-01" {
		t.Errorf("unexpected hits %+v", hits)
	}
}
