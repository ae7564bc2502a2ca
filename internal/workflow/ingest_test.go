package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/podforge/podforge/internal/models"
)

// cancellingReader cancels the batch context after its first fetch.
type cancellingReader struct {
	inner  *fakeReader
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingReader) ReadToMarkdown(ctx context.Context, rawURL string) (string, error) {
	content, err := c.inner.ReadToMarkdown(ctx, rawURL)
	c.once.Do(c.cancel)
	return content, err
}

func TestIngestDedupesAndCommitsPartialBatch(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	state.AddResource(models.Resource{Type: models.ResourceTypeText, Content: "seed"})

	reader := newFakeReader(map[string]string{
		"https://a.test": "# A",
	})
	ing := NewIngestor(state, reader)

	report, err := ing.Ingest(ctx, []string{"https://a.test", "https://a.test", "https://b.test"})

	var partial *PartialIngestError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialIngestError, got %v", err)
	}
	if len(partial.Failures) != 1 || partial.Failures[0].URL != "https://b.test" {
		t.Errorf("expected b.test in failure ledger, got %+v", partial.Failures)
	}

	if len(report.Succeeded) != 1 || report.Succeeded[0] != "https://a.test" {
		t.Errorf("expected a.test in success ledger, got %v", report.Succeeded)
	}

	// One new resource on top of the seed: duplicates collapsed, failure skipped.
	resources := state.Resources()
	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}
	added := resources[1]
	if added.URL != "https://a.test" || added.Content != "# A" || added.Type != models.ResourceTypeSearch {
		t.Errorf("unexpected ingested resource: %+v", added)
	}

	// a.test fetched once despite appearing twice in the input.
	if got := reader.fetchedURLs(); len(got) != 2 {
		t.Errorf("expected 2 fetches (a.test once, b.test once), got %v", got)
	}
}

func TestIngestSkipsURLsAlreadyPresent(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	state.AddResource(models.Resource{Type: models.ResourceTypeURL, URL: "https://a.test", Content: "old"})

	reader := newFakeReader(map[string]string{"https://a.test": "new"})
	ing := NewIngestor(state, reader)

	report, err := ing.Ingest(ctx, []string{"https://a.test"})
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(report.Succeeded) != 0 || len(report.Failed) != 0 {
		t.Errorf("expected empty ledgers for a fully-deduped batch, got %+v", report)
	}
	if len(reader.fetchedURLs()) != 0 {
		t.Error("expected no fetches for already-present URL")
	}
	if len(state.Resources()) != 1 {
		t.Errorf("expected resource collection untouched, got %d", len(state.Resources()))
	}
}

func TestIngestIsStrictlySequential(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	reader := newFakeReader(map[string]string{
		"https://1.test": "one",
		"https://2.test": "two",
		"https://3.test": "three",
	})
	ing := NewIngestor(state, reader)

	var steps []IngestProgress
	ing.OnProgress = func(p IngestProgress) { steps = append(steps, p) }

	if _, err := ing.Ingest(ctx, []string{"https://1.test", "https://2.test", "https://3.test"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	// Progress must be monotonic: 0,1,2,3 of 3.
	if len(steps) != 4 {
		t.Fatalf("expected 4 progress steps, got %d", len(steps))
	}
	for i, p := range steps {
		if p.Current != i || p.Total != 3 {
			t.Errorf("step %d: expected %d/3, got %d/%d", i, i, p.Current, p.Total)
		}
	}

	// Fetch order follows input order.
	fetched := reader.fetchedURLs()
	want := []string{"https://1.test", "https://2.test", "https://3.test"}
	for i := range want {
		if fetched[i] != want[i] {
			t.Errorf("fetch %d: expected %s, got %s", i, want[i], fetched[i])
		}
	}
}

func TestIngestCarriesSearchHitMetadata(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	state.SetSearchResults([]models.SearchResult{
		{Title: "Article A", URL: "https://a.test", Snippet: "about A", Provider: "tavily"},
	})

	reader := newFakeReader(map[string]string{"https://a.test": "# A"})
	ing := NewIngestor(state, reader)

	if _, err := ing.Ingest(ctx, []string{"https://a.test"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	res := state.Resources()[0]
	if res.Title != "Article A" {
		t.Errorf("expected title from search hit, got %q", res.Title)
	}
	if res.Meta == nil || res.Meta.Provider != "tavily" || res.Meta.SearchDescription != "about A" {
		t.Errorf("expected metadata from search hit, got %+v", res.Meta)
	}
}

func TestIngestLedgerClearsAfterGracePeriod(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	reader := newFakeReader(map[string]string{"https://a.test": "# A"})
	ing := NewIngestor(state, reader)
	ing.grace = 20 * time.Millisecond

	if _, err := ing.Ingest(ctx, []string{"https://a.test"}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	_, report := ing.Progress()
	if report == nil || len(report.Succeeded) != 1 {
		t.Fatalf("expected ledger visible right after the batch, got %+v", report)
	}

	waitFor(t, "ledger to clear", func() bool {
		progress, report := ing.Progress()
		return report == nil && progress.Total == 0
	})
}

func TestIngestCancellationClearsTransientState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := NewState()
	inner := newFakeReader(map[string]string{
		"https://a.test": "# A",
		"https://b.test": "# B",
	})
	ing := NewIngestor(state, &cancellingReader{inner: inner, cancel: cancel})
	ing.grace = 20 * time.Millisecond

	report, err := ing.Ingest(ctx, []string{"https://a.test", "https://b.test"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}

	// The item fetched before the cancel is still committed.
	if len(report.Succeeded) != 1 || len(state.Resources()) != 1 {
		t.Errorf("expected one committed resource, got report=%+v resources=%d", report, len(state.Resources()))
	}

	progress, _ := ing.Progress()
	if progress.Active {
		t.Error("expected ledger inactive after cancellation")
	}
	waitFor(t, "ledger to clear after cancellation", func() bool {
		p, rep := ing.Progress()
		return rep == nil && p.Total == 0
	})
}

func TestIngestNeverDuplicatesURLs(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	reader := newFakeReader(map[string]string{
		"https://a.test": "# A",
		"https://b.test": "# B",
	})
	ing := NewIngestor(state, reader)

	if _, err := ing.Ingest(ctx, []string{"https://a.test", "https://b.test"}); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if _, err := ing.Ingest(ctx, []string{"https://b.test", "https://a.test"}); err != nil {
		t.Fatalf("second batch failed: %v", err)
	}

	seen := make(map[string]int)
	for _, res := range state.Resources() {
		seen[res.URL]++
	}
	for url, count := range seen {
		if count > 1 {
			t.Errorf("URL %s appears %d times", url, count)
		}
	}
}
