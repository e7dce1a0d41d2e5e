package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/citylore/server/internal/metrics"
)

const llmTimeout = 60 * time.Second

// extractionPrompt is fixed: the model returns a single JSON object or
// the whole extraction is discarded.
const extractionPrompt = `You are extracting a single cultural event from text recognized on a poster or flyer.
Respond with ONLY a JSON object, no prose, with exactly these keys (use null or "" when unknown):
{
  "title": "", "description": "", "start_date": "YYYY-MM-DD", "end_date": "",
  "start_time": "HH:MM", "end_time": "", "start_location": "", "end_location": "",
  "event_type": "one of: event, exhibition, music, performance, workshop, class, tour, festival, market",
  "city": "", "is_online": false, "is_registration_required": false, "registration_url": "",
  "social_media_platform": "", "social_media_handle": "", "social_media_page_name": "",
  "social_media_posted_by": "", "social_media_url": ""
}
Poster text:
`

// LLMExtraction is the raw parsed model output, before normalization.
type LLMExtraction struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	StartLocation string `json:"start_location"`
	EndLocation   string `json:"end_location"`
	EventType     string `json:"event_type"`
	City          string `json:"city"`

	IsOnline               bool   `json:"is_online"`
	IsRegistrationRequired bool   `json:"is_registration_required"`
	RegistrationURL        string `json:"registration_url"`

	SocialMediaPlatform string `json:"social_media_platform"`
	SocialMediaHandle   string `json:"social_media_handle"`
	SocialMediaPageName string `json:"social_media_page_name"`
	SocialMediaPostedBy string `json:"social_media_posted_by"`
	SocialMediaURL      string `json:"social_media_url"`
}

// LLMClient wraps the chat-completion API used for poster extraction.
type LLMClient struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewLLMClient builds a client. baseURL overrides the API endpoint for
// tests and self-hosted gateways.
func NewLLMClient(apiKey, model, baseURL string, logger zerolog.Logger) *LLMClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4
	}
	return &LLMClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Extract sends the OCR text and parses the JSON reply. A reply that is
// not JSON, even after substring salvage, returns an error.
func (c *LLMClient) Extract(ctx context.Context, ocrText string) (*LLMExtraction, error) {
	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: extractionPrompt + ocrText},
		},
	})
	if err != nil {
		metrics.LLMExtractionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("llm extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMExtractionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("llm extraction returned no choices")
	}

	content := resp.Choices[0].Message.Content
	extraction, err := parseExtraction(content)
	if err != nil {
		metrics.LLMExtractionsTotal.WithLabelValues("bad_json").Inc()
		c.logger.Warn().Str("content", truncateForLog(content)).Msg("llm returned non-JSON output")
		return nil, err
	}
	metrics.LLMExtractionsTotal.WithLabelValues("ok").Inc()
	return extraction, nil
}

// parseExtraction parses content as JSON, salvaging the substring
// between the first '{' and the last '}' when the model added prose.
func parseExtraction(content string) (*LLMExtraction, error) {
	var extraction LLMExtraction
	if err := json.Unmarshal([]byte(content), &extraction); err == nil {
		return &extraction, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in llm output")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &extraction); err != nil {
		return nil, fmt.Errorf("parsing llm output: %w", err)
	}
	return &extraction, nil
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
