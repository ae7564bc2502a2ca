package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/podforge/podforge/internal/history"
	"github.com/podforge/podforge/internal/models"
	"github.com/podforge/podforge/internal/services"
	"github.com/podforge/podforge/internal/session"
	"github.com/podforge/podforge/internal/workflow"
)

const maxUploadBytes = 32 << 20 // 32 MB multipart limit

// Deps bundles the external collaborators handed to the handler from main.
type Deps struct {
	Sessions         session.Store
	History          *history.Store
	Reader           services.ContentReader
	Searcher         services.Searcher
	Keywords         services.KeywordGenerator
	Transformer      services.DialogueTransformer
	Backend          services.PodcastBackend
	Voices           services.VoiceCatalog
	Uploads          services.FileUploader
	Transport        workflow.TransportMode
	SearchMaxResults int
	DefaultLang      string
	DefaultModelName string
}

// Handler owns the live workflow instances and routes requests to them.
type Handler struct {
	deps Deps

	mu        sync.Mutex
	workflows map[string]*workflow.Workflow
}

func NewHandler(deps Deps) *Handler {
	if deps.SearchMaxResults <= 0 {
		deps.SearchMaxResults = 10
	}
	return &Handler{
		deps:      deps,
		workflows: make(map[string]*workflow.Workflow),
	}
}

// Shutdown stops background tracking on every live instance. Remote jobs are
// left running so a later resume can pick them back up.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, wf := range h.workflows {
		wf.Shutdown()
	}
}

func (h *Handler) workflowDeps() workflow.Deps {
	return workflow.Deps{
		Sessions:         h.deps.Sessions,
		Reader:           h.deps.Reader,
		Transformer:      h.deps.Transformer,
		Backend:          h.deps.Backend,
		History:          h.deps.History,
		Transport:        h.deps.Transport,
		DefaultLang:      h.deps.DefaultLang,
		DefaultModelName: h.deps.DefaultModelName,
	}
}

// lookup fetches the workflow for the {id} URL parameter, or responds 404.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*workflow.Workflow, bool) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	wf, ok := h.workflows[id]
	h.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, "Workflow not found")
		return nil, false
	}
	return wf, true
}

// statusPayload is the shared response shape for workflow reads.
func statusPayload(wf *workflow.Workflow) map[string]interface{} {
	progress, report := wf.Ingestor.Progress()

	payload := map[string]interface{}{
		"id":       wf.ID,
		"snapshot": wf.State.Snapshot(),
		"generation": map[string]interface{}{
			"taskId":     wf.Tracker.TaskID(),
			"generating": wf.Tracker.Generating(),
		},
		"scriptGeneration": map[string]interface{}{
			"taskId":     wf.Dialogue.TaskID(),
			"generating": wf.Dialogue.Generating(),
		},
	}
	if progress.Total > 0 || report != nil {
		payload["ingest"] = map[string]interface{}{
			"progress": progress,
			"report":   report,
		}
	}
	return payload
}

// --- workflows ---

// CreateWorkflow handles POST /v1/workflows. An existing id re-attaches to
// the live instance; a fresh instance restores its persisted stage and
// re-attaches to any outstanding jobs.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	h.mu.Lock()
	wf, exists := h.workflows[req.ID]
	if !exists {
		wf = workflow.New(req.ID, h.workflowDeps())
		h.workflows[req.ID] = wf
	}
	h.mu.Unlock()

	if !exists {
		if err := wf.Resume(r.Context()); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to resume workflow")
			return
		}
	}

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	respondJSON(w, status, statusPayload(wf))
}

// GetWorkflow handles GET /v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, statusPayload(wf))
}

// DeleteWorkflow handles DELETE /v1/workflows/{id}. Background tracking is
// stopped; persisted session state is kept so the id can be resumed later.
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	wf, ok := h.workflows[id]
	delete(h.workflows, id)
	h.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	wf.Shutdown()
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// --- stepper ---

// StepNext handles POST /v1/workflows/{id}/step/next
func (h *Handler) StepNext(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stage": wf.Stepper.Next(r.Context())})
}

// StepPrev handles POST /v1/workflows/{id}/step/prev. Leaving the final stage
// discards the generated artifact; the client confirms before calling.
func (h *Handler) StepPrev(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stage": wf.Stepper.Prev(r.Context())})
}

// StepGoTo handles POST /v1/workflows/{id}/step/goto. A jump past the
// reachable frontier is a no-op and returns the unchanged stage.
func (h *Handler) StepGoTo(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Stage workflow.Stage `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Stage.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown stage")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"stage": wf.Stepper.GoTo(r.Context(), req.Stage)})
}

// --- resources ---

// ListResources handles GET /v1/workflows/{id}/resources
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wf.State.Resources())
}

// AddResource handles POST /v1/workflows/{id}/resources
func (h *Handler) AddResource(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var res models.Resource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if res.Type == "" {
		respondError(w, http.StatusBadRequest, "Resource type is required")
		return
	}
	if res.Content == "" && res.URL == "" {
		respondError(w, http.StatusBadRequest, "Resource content or url is required")
		return
	}

	res.ID = ""
	id := wf.State.AddResource(res)
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateResource handles PUT /v1/workflows/{id}/resources/{resourceId}
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var res models.Resource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res.ID = chi.URLParam(r, "resourceId")

	if err := wf.State.UpdateResource(res); err != nil {
		respondError(w, http.StatusNotFound, "Resource not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteResource handles DELETE /v1/workflows/{id}/resources/{resourceId}
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := wf.State.RemoveResource(chi.URLParam(r, "resourceId")); err != nil {
		respondError(w, http.StatusNotFound, "Resource not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// MoveResource handles POST /v1/workflows/{id}/resources/{resourceId}/move
func (h *Handler) MoveResource(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := wf.State.MoveResource(chi.URLParam(r, "resourceId"), req.Index); err != nil {
		respondError(w, http.StatusNotFound, "Resource not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

// UploadResource handles POST /v1/workflows/{id}/resources/upload. The file
// lands in object storage; the resource carries its public URL and raw text.
func (h *Handler) UploadResource(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	publicURL, err := h.deps.Uploads.UploadResource(r.Context(), header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to store upload")
		return
	}

	id := wf.State.AddResource(models.Resource{
		Type:    models.ResourceTypeFile,
		Title:   header.Filename,
		URL:     publicURL,
		Content: string(data),
	})
	respondJSON(w, http.StatusCreated, map[string]string{"id": id, "url": publicURL})
}

// --- resource draft ---

// SaveDraft handles PUT /v1/workflows/{id}/draft. The draft is an opaque
// client-side form blob; file payloads are excluded on the client.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(body) == 0 {
		respondError(w, http.StatusBadRequest, "Draft body is required")
		return
	}

	if err := wf.SaveDraft(r.Context(), string(body)); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to persist draft")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// GetDraft handles GET /v1/workflows/{id}/draft
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	draft, found, err := wf.Draft(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read draft")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "No draft saved")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(draft))
}

// DeleteDraft handles DELETE /v1/workflows/{id}/draft
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := wf.ClearDraft(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear draft")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// --- search and ingestion ---

// SearchWeb handles POST /v1/workflows/{id}/search. Results replace the
// workflow's current search hits so ingestion can carry their metadata.
func (h *Handler) SearchWeb(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Query      string   `json:"query"`
		Providers  []string `json:"providers"`
		MaxResults int      `json:"maxResults"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.MaxResults <= 0 || req.MaxResults > h.deps.SearchMaxResults {
		req.MaxResults = h.deps.SearchMaxResults
	}

	providers := make([]services.SearchProvider, 0, len(req.Providers))
	for _, p := range req.Providers {
		providers = append(providers, services.SearchProvider(p))
	}

	results, err := h.deps.Searcher.Search(r.Context(), req.Query, providers, req.MaxResults)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Search failed")
		return
	}

	wf.State.SetSearchResults(results)
	respondJSON(w, http.StatusOK, results)
}

// GenerateKeywords handles POST /v1/workflows/{id}/keywords
func (h *Handler) GenerateKeywords(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookup(w, r); !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Description == "" {
		respondError(w, http.StatusBadRequest, "Description is required")
		return
	}

	keywords, err := h.deps.Keywords.GenerateSearchKeywords(r.Context(), req.Description)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Keyword generation failed")
		return
	}
	respondJSON(w, http.StatusOK, keywords)
}

// Ingest handles POST /v1/workflows/{id}/ingest. URLs outside the current
// search results need an explicit confirmation flag before they are fetched.
// Partial failures are reported alongside the committed successes.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		URLs      []string `json:"urls"`
		Confirmed bool     `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "At least one URL is required")
		return
	}

	if !req.Confirmed {
		known := make(map[string]bool)
		for _, hit := range wf.State.SearchResults() {
			known[hit.URL] = true
		}
		var unknown []string
		for _, u := range req.URLs {
			if !known[u] {
				unknown = append(unknown, u)
			}
		}
		if len(unknown) > 0 {
			respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":                "URLs outside the current search results require confirmation",
				"unknownUrls":          unknown,
				"confirmationRequired": true,
			})
			return
		}
	}

	report, err := wf.Ingestor.Ingest(r.Context(), req.URLs)

	var partial *workflow.PartialIngestError
	if err != nil && !errors.As(err, &partial) {
		respondError(w, http.StatusInternalServerError, "Ingestion failed")
		return
	}

	payload := map[string]interface{}{"report": report}
	if partial != nil {
		payload["failures"] = partial.Failures
	}
	respondJSON(w, http.StatusOK, payload)
}

// IngestProgress handles GET /v1/workflows/{id}/ingest/progress
func (h *Handler) IngestProgress(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	progress, report := wf.Ingestor.Progress()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"progress": progress,
		"report":   report,
	})
}

// --- dialogues ---

// ListDialogues handles GET /v1/workflows/{id}/dialogues
func (h *Handler) ListDialogues(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dialogues": wf.State.Dialogues(),
		"speakers":  wf.State.Speakers(),
	})
}

// AddDialogue handles POST /v1/workflows/{id}/dialogues
func (h *Handler) AddDialogue(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var item models.DialogueItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item.ID = ""
	id := wf.State.AddDialogue(item)
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateDialogue handles PUT /v1/workflows/{id}/dialogues/{itemId}. Content
// and speaker updates are independent; either may be omitted.
func (h *Handler) UpdateDialogue(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Content *string `json:"content"`
		Speaker *int    `json:"speaker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	itemID := chi.URLParam(r, "itemId")
	if req.Content != nil {
		if err := wf.State.UpdateDialogueContent(itemID, *req.Content); err != nil {
			respondError(w, http.StatusNotFound, "Dialogue not found")
			return
		}
	}
	if req.Speaker != nil {
		if err := wf.State.SetDialogueSpeaker(itemID, *req.Speaker); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteDialogue handles DELETE /v1/workflows/{id}/dialogues/{itemId}
func (h *Handler) DeleteDialogue(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := wf.State.RemoveDialogue(chi.URLParam(r, "itemId")); err != nil {
		respondError(w, http.StatusNotFound, "Dialogue not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// MoveDialogue handles POST /v1/workflows/{id}/dialogues/{itemId}/move
func (h *Handler) MoveDialogue(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := wf.State.MoveDialogue(chi.URLParam(r, "itemId"), req.Index); err != nil {
		respondError(w, http.StatusNotFound, "Dialogue not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

// GenerateDialogue handles POST /v1/workflows/{id}/dialogues/generate
func (h *Handler) GenerateDialogue(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	err := wf.Dialogue.Generate(r.Context())
	switch {
	case errors.Is(err, workflow.ErrNoResources):
		respondError(w, http.StatusBadRequest, "Add at least one resource first")
	case errors.Is(err, workflow.ErrGenerationInProgress):
		respondError(w, http.StatusConflict, "A script generation task is already running")
	case err != nil:
		respondError(w, http.StatusBadGateway, "Failed to submit script generation")
	default:
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": wf.Dialogue.TaskID()})
	}
}

// CancelDialogue handles POST /v1/workflows/{id}/dialogues/generate/cancel
func (h *Handler) CancelDialogue(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wf.Dialogue.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// DialogueStatus handles GET /v1/workflows/{id}/dialogues/status
func (h *Handler) DialogueStatus(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"taskId":     wf.Dialogue.TaskID(),
		"generating": wf.Dialogue.Generating(),
	})
}

// --- batch optimization ---

// Optimize handles POST /v1/workflows/{id}/optimize
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		IDs          []string                   `json:"ids"`
		Instruction  models.OptimizeInstruction `json:"instruction"`
		CustomPrompt string                     `json:"customPrompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	preview, err := wf.Optimizer.Optimize(r.Context(), req.IDs, req.Instruction, req.CustomPrompt)
	switch {
	case errors.Is(err, workflow.ErrInvalidInstruction),
		errors.Is(err, workflow.ErrEmptyCustomPrompt),
		errors.Is(err, workflow.ErrNoSelection):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrMalformedResponse):
		respondError(w, http.StatusBadGateway, "Optimization returned no usable records")
	case err != nil:
		respondError(w, http.StatusBadGateway, "Optimization failed")
	default:
		respondJSON(w, http.StatusOK, preview)
	}
}

// OptimizePreview handles GET /v1/workflows/{id}/optimize/preview
func (h *Handler) OptimizePreview(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wf.Optimizer.Preview())
}

// OptimizeApply handles POST /v1/workflows/{id}/optimize/apply. The optional
// edits map overrides proposed values with user-tuned text.
func (h *Handler) OptimizeApply(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Edits map[string]string `json:"edits"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"renamed": wf.Optimizer.Apply(req.Edits)})
}

// OptimizeCancel handles POST /v1/workflows/{id}/optimize/cancel
func (h *Handler) OptimizeCancel(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wf.Optimizer.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- audio settings ---

// ListVoices handles GET /v1/workflows/{id}/voices?lang=. The fetched catalog
// is cached on the workflow state for the settings UI.
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	catalog, err := h.deps.Voices.ListVoices(r.Context(), r.URL.Query().Get("lang"))
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to fetch voice catalog")
		return
	}

	converted := make(map[string][]models.RemoteSpeaker, len(catalog))
	for provider, voices := range catalog {
		speakers := make([]models.RemoteSpeaker, len(voices))
		for i, v := range voices {
			speakers[i] = models.RemoteSpeaker{
				Name:        v.Name,
				DisplayName: v.DisplayName,
				Gender:      v.Gender,
				Sample:      v.Sample,
			}
		}
		converted[provider] = speakers
	}

	wf.State.SetVoiceCatalog(converted)
	respondJSON(w, http.StatusOK, converted)
}

// UpdateSettings handles PUT /v1/workflows/{id}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var opts workflow.GenerationOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	wf.State.UpdateOptions(opts)
	respondJSON(w, http.StatusOK, wf.State.Options())
}

// UpdateSpeaker handles PUT /v1/workflows/{id}/speakers/{slot}
func (h *Handler) UpdateSpeaker(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid speaker slot")
		return
	}

	var assignment models.SpeakerAssignment
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	assignment.ID = slot

	if err := wf.State.UpdateSpeaker(assignment); err != nil {
		respondError(w, http.StatusNotFound, "Speaker slot not found")
		return
	}
	respondJSON(w, http.StatusOK, wf.State.Speakers())
}

// --- podcast generation ---

// Generate handles POST /v1/workflows/{id}/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	err := wf.Tracker.Submit(r.Context())
	switch {
	case errors.Is(err, workflow.ErrNothingToGenerate):
		respondError(w, http.StatusBadRequest, "Generate a script first")
	case errors.Is(err, workflow.ErrGenerationInProgress):
		respondError(w, http.StatusConflict, "A generation task is already running")
	case err != nil:
		respondError(w, http.StatusBadGateway, "Failed to submit generation")
	default:
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": wf.Tracker.TaskID()})
	}
}

// GenerateCancel handles POST /v1/workflows/{id}/generate/cancel. The local
// task clears immediately; the remote side is notified best-effort.
func (h *Handler) GenerateCancel(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wf.Tracker.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GenerateStatus handles GET /v1/workflows/{id}/generate/status
func (h *Handler) GenerateStatus(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	title, mp3 := wf.State.Artifact()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"taskId":     wf.Tracker.TaskID(),
		"generating": wf.Tracker.Generating(),
		"stage":      wf.Stepper.Current(),
		"title":      title,
		"mp3":        mp3,
	})
}

// GenerateEvents handles GET /v1/workflows/{id}/generate/events: a
// server-sent event stream of progress frames for the outstanding task.
// The stream closes on the final frame or when the client disconnects.
func (h *Handler) GenerateEvents(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := make(chan workflow.ProgressFrame, 8)
	wf.Tracker.SetProgressListener(func(f workflow.ProgressFrame) {
		select {
		case frames <- f:
		default: // slow client, the next frame supersedes the dropped one
		}
	})
	defer wf.Tracker.SetProgressListener(nil)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame := <-frames:
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if frame.Progress >= 100 {
				return
			}
		}
	}
}

// Notices handles GET /v1/workflows/{id}/notices: drains queued background
// error notices for display.
func (h *Handler) Notices(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notices": wf.Notifier.Drain()})
}

// --- history ---

// ListHistory handles GET /v1/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.History.GetAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// DeleteHistory handles DELETE /v1/history/{entryId}
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid history id")
		return
	}

	if err := h.deps.History.Remove(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "History entry not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to remove history entry")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// --- helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
