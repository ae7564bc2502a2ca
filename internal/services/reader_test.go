package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestReaderReturnsMarkdown(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("# Title\n\nBody text.\n"))
	}))
	defer srv.Close()

	reader := NewReader(srv.URL, "secret")
	content, err := reader.ReadToMarkdown(context.Background(), "https://example.com/article?x=1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if content != "# Title\n\nBody text." {
		t.Errorf("unexpected content %q", content)
	}
	if !strings.HasPrefix(gotPath, "/jina/reader/") {
		t.Errorf("unexpected path %q", gotPath)
	}
	// The source URL travels as a single escaped path segment.
	if !strings.Contains(gotPath, url.QueryEscape("https://example.com/article?x=1")) {
		t.Errorf("expected escaped URL in path, got %q", gotPath)
	}
}

func TestReaderSurfacesJSONErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"fetch_failed","message":"upstream timed out"}`))
	}))
	defer srv.Close()

	reader := NewReader(srv.URL, "secret")
	_, err := reader.ReadToMarkdown(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("expected error for JSON envelope")
	}
	if !strings.Contains(err.Error(), "fetch_failed") {
		t.Errorf("expected envelope detail in error, got %v", err)
	}
}

func TestReaderRejectsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("   \n  "))
	}))
	defer srv.Close()

	reader := NewReader(srv.URL, "secret")
	if _, err := reader.ReadToMarkdown(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestReaderRejectsEmptyURL(t *testing.T) {
	reader := NewReader("http://unused", "secret")
	if _, err := reader.ReadToMarkdown(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank URL")
	}
}
