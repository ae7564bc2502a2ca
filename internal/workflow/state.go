package workflow

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/podforge/podforge/internal/models"
)

// Default generation options applied to a fresh workflow.
const (
	DefaultSpeakerNums = 2
	DefaultLang        = "en"
	DefaultBgmVolume   = -10
	DefaultBgmPrompt   = "calm ambient instrumental, soft, unobtrusive"
)

// GenerationOptions is the user-tunable configuration feeding both the
// script-generation and audio-synthesis submissions.
type GenerationOptions struct {
	SpeakerNums      int      `json:"speakerNums"`
	Lang             string   `json:"lang"`
	ModelName        string   `json:"modelName"`
	UseSpeakerName   bool     `json:"useSpeakerName"`
	SpeakerNames     []string `json:"speakerNames,omitempty"`
	GenDialogPrompt  string   `json:"genDialogPrompt,omitempty"`
	IsExtract        bool     `json:"isExtract"`
	IsLongGenerating bool     `json:"isLongGenerating"`
	AudienceChoice   string   `json:"audienceChoice,omitempty"`
	UseBgm           bool     `json:"useBgm"`
	AutoGenBgm       bool     `json:"autoGenBgm"`
	BgmPrompt        string   `json:"bgmPrompt,omitempty"`
	BgmVolume        int      `json:"bgmVolume"`
}

// Snapshot is a read-only copy of the full workflow state for API responses.
type Snapshot struct {
	Stage         Stage                      `json:"stage"`
	Resources     []models.Resource          `json:"resources"`
	SearchResults []models.SearchResult      `json:"searchResults,omitempty"`
	Dialogues     []models.DialogueItem      `json:"dialogues"`
	Speakers      []models.SpeakerAssignment `json:"speakers"`
	Options       GenerationOptions          `json:"options"`
	Title         string                     `json:"title,omitempty"`
	MP3           string                     `json:"mp3,omitempty"`
}

// State is the single owner of the workflow's mutable collections. All
// mutations go through typed command methods; batch operations commit in one
// critical section so readers never observe a half-updated collection.
type State struct {
	mu sync.RWMutex

	stage         Stage
	resources     []models.Resource
	searchResults []models.SearchResult
	dialogues     []models.DialogueItem
	speakers      []models.SpeakerAssignment
	options       GenerationOptions
	title         string
	mp3           string
	voiceCatalog  map[string][]models.RemoteSpeaker
}

func NewState() *State {
	return &State{
		stage: StageAssetsSelection,
		options: GenerationOptions{
			SpeakerNums: DefaultSpeakerNums,
			Lang:        DefaultLang,
			BgmVolume:   DefaultBgmVolume,
		},
	}
}

// --- stage (mutated only by the Stepper) ---

func (s *State) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

func (s *State) setStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
}

// --- resources ---

// AddResource appends one resource, assigning a fresh id when absent, and
// returns the id.
func (s *State) AddResource(res models.Resource) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	s.resources = append(s.resources, res)
	return res.ID
}

// AppendResources commits a batch of resources in one update. Missing ids
// are assigned.
func (s *State) AppendResources(batch []models.Resource) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
	}
	s.resources = append(s.resources, batch...)
}

func (s *State) UpdateResource(res models.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.resources {
		if s.resources[i].ID == res.ID {
			s.resources[i] = res
			return nil
		}
	}
	return fmt.Errorf("resource %s not found", res.ID)
}

func (s *State) RemoveResource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.resources {
		if s.resources[i].ID == id {
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("resource %s not found", id)
}

// MoveResource places the resource at a new position, shifting the rest.
func (s *State) MoveResource(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := -1
	for i := range s.resources {
		if s.resources[i].ID == id {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("resource %s not found", id)
	}
	if index < 0 {
		index = 0
	}
	if index >= len(s.resources) {
		index = len(s.resources) - 1
	}

	res := s.resources[from]
	s.resources = append(s.resources[:from], s.resources[from+1:]...)
	s.resources = append(s.resources[:index], append([]models.Resource{res}, s.resources[index:]...)...)
	return nil
}

func (s *State) Resources() []models.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Resource(nil), s.resources...)
}

// ResourceURLs returns the set of URLs already present, for ingestion dedupe.
func (s *State) ResourceURLs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make(map[string]bool, len(s.resources))
	for _, res := range s.resources {
		if res.URL != "" {
			urls[res.URL] = true
		}
	}
	return urls
}

func (s *State) SetSearchResults(results []models.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchResults = append([]models.SearchResult(nil), results...)
}

func (s *State) SearchResults() []models.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SearchResult(nil), s.searchResults...)
}

// SearchResultFor looks up the originating search hit for a URL so ingestion
// can carry its title and metadata onto the new resource.
func (s *State) SearchResultFor(url string) (models.SearchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, hit := range s.searchResults {
		if hit.URL == url {
			return hit, true
		}
	}
	return models.SearchResult{}, false
}

// --- dialogues ---

// ReplaceDialogues swaps in a whole new script atomically, assigning fresh
// ids, and re-syncs speaker assignments to the new distinct-speaker count.
func (s *State) ReplaceDialogues(items []models.DialogueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make([]models.DialogueItem, len(items))
	for i, item := range items {
		item.ID = uuid.NewString()
		replaced[i] = item
	}
	s.dialogues = replaced
	s.syncSpeakersLocked()
}

func (s *State) AddDialogue(item models.DialogueItem) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Speaker < 1 {
		item.Speaker = 1
	}
	s.dialogues = append(s.dialogues, item)
	s.syncSpeakersLocked()
	return item.ID
}

func (s *State) UpdateDialogueContent(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.dialogues {
		if s.dialogues[i].ID == id {
			s.dialogues[i].Content = content
			return nil
		}
	}
	return fmt.Errorf("dialogue %s not found", id)
}

func (s *State) SetDialogueSpeaker(id string, speaker int) error {
	if speaker < 1 {
		return fmt.Errorf("speaker must be positive, got %d", speaker)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.dialogues {
		if s.dialogues[i].ID == id {
			s.dialogues[i].Speaker = speaker
			s.syncSpeakersLocked()
			return nil
		}
	}
	return fmt.Errorf("dialogue %s not found", id)
}

func (s *State) RemoveDialogue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.dialogues {
		if s.dialogues[i].ID == id {
			s.dialogues = append(s.dialogues[:i], s.dialogues[i+1:]...)
			s.syncSpeakersLocked()
			return nil
		}
	}
	return fmt.Errorf("dialogue %s not found", id)
}

func (s *State) MoveDialogue(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := -1
	for i := range s.dialogues {
		if s.dialogues[i].ID == id {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("dialogue %s not found", id)
	}
	if index < 0 {
		index = 0
	}
	if index >= len(s.dialogues) {
		index = len(s.dialogues) - 1
	}

	item := s.dialogues[from]
	s.dialogues = append(s.dialogues[:from], s.dialogues[from+1:]...)
	s.dialogues = append(s.dialogues[:index], append([]models.DialogueItem{item}, s.dialogues[index:]...)...)
	return nil
}

// ApplyDialogueEdits replaces content for the given ids in one commit, each
// edited item receiving a fresh id. Returns the old → new id mapping.
func (s *State) ApplyDialogueEdits(replacements map[string]string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	renamed := make(map[string]string, len(replacements))
	for i := range s.dialogues {
		content, ok := replacements[s.dialogues[i].ID]
		if !ok {
			continue
		}
		newID := uuid.NewString()
		renamed[s.dialogues[i].ID] = newID
		s.dialogues[i].ID = newID
		s.dialogues[i].Content = content
	}
	return renamed
}

func (s *State) Dialogues() []models.DialogueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DialogueItem(nil), s.dialogues...)
}

// --- speaker assignments ---

func (s *State) Speakers() []models.SpeakerAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SpeakerAssignment(nil), s.speakers...)
}

// UpdateSpeaker customizes one voice slot. The slot must exist; slots are
// only created by the resolver.
func (s *State) UpdateSpeaker(assignment models.SpeakerAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.speakers {
		if s.speakers[i].ID == assignment.ID {
			s.speakers[i] = assignment
			return nil
		}
	}
	return fmt.Errorf("speaker slot %d not found", assignment.ID)
}

// DistinctSpeakerCount counts the distinct speaker tags used by the script.
func (s *State) DistinctSpeakerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distinctSpeakerCountLocked()
}

func (s *State) distinctSpeakerCountLocked() int {
	seen := make(map[int]bool)
	for _, item := range s.dialogues {
		seen[item.Speaker] = true
	}
	return len(seen)
}

// --- options ---

func (s *State) Options() GenerationOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opts := s.options
	opts.SpeakerNames = append([]string(nil), s.options.SpeakerNames...)
	return opts
}

// SetOptionDefaults overrides the initial language and synthesis model of a
// fresh instance. Empty values keep the built-in defaults.
func (s *State) SetOptionDefaults(lang, modelName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lang != "" {
		s.options.Lang = lang
	}
	if modelName != "" {
		s.options.ModelName = modelName
	}
}

// UpdateOptions replaces the generation options atomically, clamping
// out-of-range values to their defaults.
func (s *State) UpdateOptions(opts GenerationOptions) {
	if opts.SpeakerNums < 1 || opts.SpeakerNums > 4 {
		opts.SpeakerNums = DefaultSpeakerNums
	}
	if opts.Lang == "" {
		opts.Lang = DefaultLang
	}
	opts.SpeakerNames = append([]string(nil), opts.SpeakerNames...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = opts
}

func (s *State) setSpeakerNums(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 1 && n <= 4 {
		s.options.SpeakerNums = n
	}
}

// --- artifact ---

func (s *State) SetArtifact(title, mp3 string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
	s.mp3 = mp3
}

func (s *State) ClearArtifact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = ""
	s.mp3 = ""
}

func (s *State) Artifact() (title, mp3 string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title, s.mp3
}

// --- voice catalog ---

func (s *State) SetVoiceCatalog(catalog map[string][]models.RemoteSpeaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceCatalog = catalog
}

func (s *State) VoiceCatalog() map[string][]models.RemoteSpeaker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string][]models.RemoteSpeaker, len(s.voiceCatalog))
	for provider, voices := range s.voiceCatalog {
		copied[provider] = append([]models.RemoteSpeaker(nil), voices...)
	}
	return copied
}

// --- completeness predicates (reachability gate inputs) ---

func (s *State) HasResources() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resources) > 0
}

// HasDialogue reports a complete script: non-empty, with no blank lines.
func (s *State) HasDialogue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.dialogues) == 0 {
		return false
	}
	for _, item := range s.dialogues {
		if item.Content == "" {
			return false
		}
	}
	return true
}

func (s *State) HasAudio() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mp3 != ""
}

// Snapshot returns a deep read-only copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opts := s.options
	opts.SpeakerNames = append([]string(nil), s.options.SpeakerNames...)

	return Snapshot{
		Stage:         s.stage,
		Resources:     append([]models.Resource(nil), s.resources...),
		SearchResults: append([]models.SearchResult(nil), s.searchResults...),
		Dialogues:     append([]models.DialogueItem(nil), s.dialogues...),
		Speakers:      append([]models.SpeakerAssignment(nil), s.speakers...),
		Options:       opts,
		Title:         s.title,
		MP3:           s.mp3,
	}
}
