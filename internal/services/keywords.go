package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/podforge/podforge/internal/models"
)

// ---------------------------------------------------------------------------
// Search Keyword Service
// Expands a free-text topic description into categorized search keywords
// using Gemini with a JSON response schema.
// ---------------------------------------------------------------------------

const defaultKeywordModel = "gemini-2.0-flash"

// KeywordGenerator expands a topic description into search keywords.
type KeywordGenerator interface {
	GenerateSearchKeywords(ctx context.Context, description string) (*models.KeywordSet, error)
}

type KeywordService struct {
	apiKey string
	model  string
}

var _ KeywordGenerator = (*KeywordService)(nil)

func NewKeywordService(apiKey, model string) *KeywordService {
	if model == "" {
		model = defaultKeywordModel
	}
	return &KeywordService{
		apiKey: apiKey,
		model:  model,
	}
}

// GenerateSearchKeywords asks Gemini for categorized keyword lists covering
// the description. At least one main keyword is required for a valid result.
func (s *KeywordService) GenerateSearchKeywords(ctx context.Context, description string) (*models.KeywordSet, error) {
	if description == "" {
		return nil, fmt.Errorf("empty description")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	prompt := fmt.Sprintf(`Generate web-search keywords for researching the following podcast topic.

Topic description:
%s

Respond with a JSON object:
{
  "mainKeywords": [3-5 core search phrases],
  "relatedPhrases": [3-5 adjacent phrasings],
  "technicalTerms": [domain jargon worth searching, may be empty],
  "alternativeTerms": [synonyms and reformulations, may be empty]
}

Keywords must be in the same language as the description.`, description)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("keyword generation failed: %w", err)
	}

	rawContent := resp.Text()
	if rawContent == "" {
		return nil, fmt.Errorf("empty keyword response")
	}

	var keywords models.KeywordSet
	if err := json.Unmarshal([]byte(rawContent), &keywords); err != nil {
		log.Printf("[Keywords] parse failed: %v", err)
		log.Printf("[Keywords] raw response: %s", truncateString(rawContent, 2000))
		return nil, fmt.Errorf("failed to parse keyword response: %w", err)
	}

	if len(keywords.MainKeywords) == 0 {
		log.Printf("[Keywords] response has no main keywords: %s", truncateString(rawContent, 2000))
		return nil, fmt.Errorf("keyword response has no main keywords")
	}

	log.Printf("[Keywords] generated %d main, %d related, %d technical, %d alternative",
		len(keywords.MainKeywords), len(keywords.RelatedPhrases), len(keywords.TechnicalTerms), len(keywords.AlternativeTerms))

	return &keywords, nil
}
