package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// Dialogue Transform Service
// Applies an AI rewrite to a batch of dialogue lines via an OpenAI-compatible
// chat completion in JSON mode. Records come back untyped so the caller can
// validate each entry's shape and decide what to drop.
// ---------------------------------------------------------------------------

// TransformItem is one dialogue line serialized for the rewrite call.
type TransformItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Speaker int    `json:"speaker"`
}

// DialogueTransformer rewrites a batch of dialogue lines per an instruction.
type DialogueTransformer interface {
	OptimizeDialogues(ctx context.Context, items []TransformItem, instruction, customPrompt string) ([]json.RawMessage, error)
}

type Transformer struct {
	client *openai.Client
	model  string
}

var _ DialogueTransformer = (*Transformer)(nil)

func NewTransformer(apiKey, baseURL, model string) *Transformer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-5-mini"
	}
	return &Transformer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// instructionDirectives maps the fixed transform types to prompt directives.
var instructionDirectives = map[string]string{
	"tone_consistency": "Rewrite each line so the tone is consistent across all speakers while keeping each line's meaning.",
	"make_concise":     "Rewrite each line to be as concise as possible without losing information.",
	"fix_all":          "Fix grammar, punctuation, awkward phrasing, and factual slips in each line.",
}

// OptimizeDialogues sends the selected lines plus the transform instruction
// and returns the remote records unparsed, one raw JSON value per record.
func (t *Transformer) OptimizeDialogues(ctx context.Context, items []TransformItem, instruction, customPrompt string) ([]json.RawMessage, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to optimize")
	}

	directive, ok := instructionDirectives[instruction]
	if !ok {
		if customPrompt == "" {
			return nil, fmt.Errorf("unknown transform instruction %q", instruction)
		}
		directive = customPrompt
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}

	systemPrompt := `You are a podcast script editor. You receive a JSON array of dialogue lines, each {"id", "content", "speaker"}. Apply the user's instruction to every line. Respond with a JSON object {"items": [...]} where each element keeps its original "id" and "speaker" and carries the rewritten "content". Do not add, remove, or reorder lines.`

	userPrompt := fmt.Sprintf("Instruction: %s\n\nDialogue lines:\n%s", directive, string(itemsJSON))

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("transform request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from transform model")
	}

	rawContent := resp.Choices[0].Message.Content

	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(rawContent), &envelope); err != nil {
		log.Printf("[Transform] parse failed: %v", err)
		log.Printf("[Transform] raw response: %s", truncateString(rawContent, 2000))
		return nil, fmt.Errorf("failed to parse transform response: %w", err)
	}

	log.Printf("[Transform] instruction=%s: %d items in, %d records back", instruction, len(items), len(envelope.Items))

	return envelope.Items, nil
}

// truncateString limits a string to maxLen characters for log output
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
