package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/podforge/podforge/internal/models"
	"github.com/podforge/podforge/internal/services"
)

// ingestGracePeriod keeps the final tally visible before the transient
// progress/ledger state is cleared.
const ingestGracePeriod = 5 * time.Second

// IngestProgress is the monotonic per-batch progress counter.
type IngestProgress struct {
	Current int  `json:"current"`
	Total   int  `json:"total"`
	Active  bool `json:"active"`
}

// IngestFailure records one URL that could not be fetched.
type IngestFailure struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// IngestReport is the success/failure ledger of one ingestion batch.
type IngestReport struct {
	Succeeded []string        `json:"succeeded"`
	Failed    []IngestFailure `json:"failed"`
}

// PartialIngestError aggregates the failed items of a batch that still
// committed its successes. Non-fatal by design: callers surface it, they do
// not roll back.
type PartialIngestError struct {
	Failures []IngestFailure
}

func (e *PartialIngestError) Error() string {
	titles := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		if f.Title != "" {
			titles[i] = f.Title
		} else {
			titles[i] = f.URL
		}
	}
	return fmt.Sprintf("failed to ingest %d item(s): %s", len(e.Failures), strings.Join(titles, ", "))
}

// Ingestor fetches and normalizes batches of URLs into resources.
type Ingestor struct {
	state  *State
	reader services.ContentReader
	grace  time.Duration

	// OnProgress, when set, receives every progress step. Point-to-point:
	// one listener, no broadcast.
	OnProgress func(IngestProgress)

	mu         sync.Mutex
	progress   IngestProgress
	report     *IngestReport
	clearTimer *time.Timer
}

func NewIngestor(state *State, reader services.ContentReader) *Ingestor {
	return &Ingestor{
		state:  state,
		reader: reader,
		grace:  ingestGracePeriod,
	}
}

// Ingest fetches the given URLs one at a time and commits the successful
// resources as a single batch. Already-present URLs are skipped, duplicates
// within the batch collapse, and an empty candidate set is a silent no-op.
// Failures never abort the batch; they come back aggregated in a
// *PartialIngestError alongside the committed successes.
func (g *Ingestor) Ingest(ctx context.Context, urls []string) (*IngestReport, error) {
	existing := g.state.ResourceURLs()

	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" || existing[u] || seen[u] {
			continue
		}
		seen[u] = true
		unique = append(unique, u)
	}

	if len(unique) == 0 {
		return &IngestReport{Succeeded: []string{}, Failed: []IngestFailure{}}, nil
	}

	report := &IngestReport{Succeeded: []string{}, Failed: []IngestFailure{}}
	g.setProgress(IngestProgress{Current: 0, Total: len(unique), Active: true})

	// Strictly sequential: keeps progress monotonic and deterministic, and a
	// slow fetch cannot race the others for the same counter.
	batch := make([]models.Resource, 0, len(unique))
	for i, u := range unique {
		if err := ctx.Err(); err != nil {
			// Commit whatever was fetched and park the ledger; a cancelled
			// batch must not leave the progress state stuck active.
			g.state.AppendResources(batch)
			g.finish(report)
			return report, fmt.Errorf("ingestion cancelled: %w", err)
		}

		title := u
		var meta *models.ResourceMeta
		if hit, ok := g.state.SearchResultFor(u); ok {
			title = hit.Title
			meta = &models.ResourceMeta{
				Provider:          hit.Provider,
				SearchDescription: hit.Snippet,
			}
		}

		content, err := g.reader.ReadToMarkdown(ctx, u)
		if err != nil {
			log.Printf("[Ingest] fetch failed for %s: %v", u, err)
			report.Failed = append(report.Failed, IngestFailure{URL: u, Title: title, Reason: err.Error()})
		} else {
			batch = append(batch, models.Resource{
				Type:    models.ResourceTypeSearch,
				Content: content,
				URL:     u,
				Title:   title,
				Meta:    meta,
			})
			report.Succeeded = append(report.Succeeded, u)
		}

		g.setProgress(IngestProgress{Current: i + 1, Total: len(unique), Active: true})
	}

	// One commit for the whole batch, never incremental appends.
	g.state.AppendResources(batch)

	log.Printf("[Ingest] batch done: %d succeeded, %d failed of %d", len(report.Succeeded), len(report.Failed), len(unique))

	g.finish(report)

	if len(report.Failed) > 0 {
		return report, &PartialIngestError{Failures: report.Failed}
	}
	return report, nil
}

// Progress returns the current counter and the last batch's ledger, until
// the grace period clears them.
func (g *Ingestor) Progress() (IngestProgress, *IngestReport) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var report *IngestReport
	if g.report != nil {
		copied := *g.report
		report = &copied
	}
	return g.progress, report
}

func (g *Ingestor) setProgress(p IngestProgress) {
	g.mu.Lock()
	g.progress = p
	listener := g.OnProgress
	g.mu.Unlock()

	if listener != nil {
		listener(p)
	}
}

// finish parks the ledger for the grace period, then resets the transient
// state so the next batch starts clean.
func (g *Ingestor) finish(report *IngestReport) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.progress.Active = false
	g.report = report

	if g.clearTimer != nil {
		g.clearTimer.Stop()
	}
	g.clearTimer = time.AfterFunc(g.grace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.progress = IngestProgress{}
		g.report = nil
	})
}
