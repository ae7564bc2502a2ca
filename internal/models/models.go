package models

import (
	"time"
)

// Enums

// ResourceType classifies a unit of source material feeding script generation.
type ResourceType string

const (
	ResourceTypeText   ResourceType = "text"
	ResourceTypeURL    ResourceType = "url"
	ResourceTypeFile   ResourceType = "file"
	ResourceTypeSearch ResourceType = "search"
)

// TaskStatus is the remote backend's view of an asynchronous generation job.
type TaskStatus string

const (
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusFail       TaskStatus = "fail"
)

// OptimizeInstruction selects the rewrite applied by batch optimization.
// Custom requires a non-empty free-text prompt.
type OptimizeInstruction string

const (
	OptimizeToneConsistency OptimizeInstruction = "tone_consistency"
	OptimizeMakeConcise     OptimizeInstruction = "make_concise"
	OptimizeFixAll          OptimizeInstruction = "fix_all"
	OptimizeCustom          OptimizeInstruction = "custom"
)

// Valid reports whether the instruction is one of the supported rewrites.
func (i OptimizeInstruction) Valid() bool {
	switch i {
	case OptimizeToneConsistency, OptimizeMakeConcise, OptimizeFixAll, OptimizeCustom:
		return true
	}
	return false
}

// Models

// ResourceMeta carries provenance for search-derived resources.
type ResourceMeta struct {
	Provider          string   `json:"provider,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	SearchDescription string   `json:"searchDescription,omitempty"`
}

// Resource is one ingestible item of source material. Order within the
// collection is significant and user-reorderable.
type Resource struct {
	ID      string        `json:"id"`
	Type    ResourceType  `json:"type"`
	Content string        `json:"content"`
	URL     string        `json:"url,omitempty"`
	Title   string        `json:"title,omitempty"`
	Meta    *ResourceMeta `json:"meta,omitempty"`
}

// DialogueItem is one speaker-tagged utterance of the generated script.
// Speaker numbers are 1-based and drawn from a contiguous range.
type DialogueItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Speaker int    `json:"speaker"`
}

// SpeakerAssignment maps a dialogue speaker number to a synthesis voice.
type SpeakerAssignment struct {
	ID       int     `json:"id"`
	Provider string  `json:"provider"`
	Speaker  string  `json:"speaker"`
	Speed    float64 `json:"speed"`
}

// SearchResult is one hit returned by a web-search provider.
type SearchResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet,omitempty"`
	SiteName      string `json:"siteName,omitempty"`
	DatePublished string `json:"datePublished,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// RemoteSpeaker is one entry of the backend voice catalog, grouped by provider.
type RemoteSpeaker struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Sample      string `json:"sample,omitempty"`
}

// KeywordSet is the categorized output of search-keyword expansion.
type KeywordSet struct {
	MainKeywords     []string `json:"mainKeywords"`
	RelatedPhrases   []string `json:"relatedPhrases"`
	TechnicalTerms   []string `json:"technicalTerms"`
	AlternativeTerms []string `json:"alternativeTerms"`
}

// HistoryEntry is one finished podcast persisted to durable history.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	MP3       string    `json:"mp3"`
	CreatedAt time.Time `json:"created_at"`
}

// Remote task payloads

// Utterance is the wire form of one dialogue line in a generation request.
type Utterance struct {
	Content string `json:"content"`
	Speaker int    `json:"speaker"`
}

// PodcastRequest is the submission payload for the audio-generation job.
type PodcastRequest struct {
	Speakers   []SpeakerAssignment `json:"speakers"`
	Contents   []Utterance         `json:"contents"`
	UseBgm     bool                `json:"useBgm"`
	AutoGenBgm bool                `json:"autoGenBgm"`
	BgmPrompt  string              `json:"bgmPrompt"`
	BgmVolume  int                 `json:"bgmVolume"`
	UILang     string              `json:"uiLang"`
	ModelName  string              `json:"modelName"`
}

// DialogueRequest is the submission payload for the script-generation job.
type DialogueRequest struct {
	Resources      []string `json:"resources"`
	SpeakerNums    int      `json:"speakerNums"`
	Names          []string `json:"names,omitempty"`
	Lang           string   `json:"lang"`
	ModelName      string   `json:"modelName"`
	IsExtract      bool     `json:"isExtract"`
	CustomPrompt   string   `json:"customPrompt,omitempty"`
	Version        string   `json:"version,omitempty"`
	AudienceChoice string   `json:"audience_choice,omitempty"`
}

// StatusError is the structured error carried by a failed task.
type StatusError struct {
	ErrCode int    `json:"err_code"`
	Message string `json:"message,omitempty"`
}

// StatusResult is the progress/result payload of a status response or
// stream frame. Content and Title are only meaningful once Progress is 100.
type StatusResult struct {
	Progress    int          `json:"progress"`
	Description string       `json:"description,omitempty"`
	Content     string       `json:"content,omitempty"`
	Title       string       `json:"title,omitempty"`
	Error       *StatusError `json:"error,omitempty"`
}

// TaskStatusResponse is the envelope returned by the status endpoint.
type TaskStatusResponse struct {
	Status TaskStatus    `json:"status"`
	Result *StatusResult `json:"result,omitempty"`
}

// SubmitResponse is the envelope returned by both async submission endpoints.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// PreviewEntry pairs an item's snapshot with its proposed replacement.
// Optimized stays nil while the remote response omitted the item.
type PreviewEntry struct {
	Original  string  `json:"original"`
	Optimized *string `json:"optimized,omitempty"`
}
