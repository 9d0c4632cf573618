package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/msourial/platefull/pkg/config"
	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

const systemPrompt = `You classify messages sent to a restaurant ordering assistant.
Reply with one JSON object and nothing else, using these keys:
  intent: one of order_item, show_menu, view_order, checkout, dietary_recommendation, recommendation, unknown
  item: the menu item the customer wants, or "multiple_options" when several items fit
  quantity: integer, omit when not stated
  category: menu category mentioned, if any
  special_instructions: preparation notes; when item is "multiple_options" put a JSON array of the candidate item names here
  candidates: array of item names when the request is ambiguous
  recommendations: array of {"name", "reasons"} when suggesting dishes
  follow_up_questions: array of short questions to ask next
  message: a short friendly reply to show the customer
Only use item names from the provided menu.`

// NewOpenAIModel builds the langchaingo OpenAI client used by LLMResolver.
func NewOpenAIModel(cfg config.OpenAIConfig) (*openai.LLM, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return llm, nil
}

// LLMResolver asks a chat model to classify the message as JSON.
type LLMResolver struct {
	model       llms.Model
	temperature float64
	timeout     time.Duration
}

// NewLLMResolver wraps a langchaingo model.
func NewLLMResolver(model llms.Model, cfg config.OpenAIConfig) (*LLMResolver, error) {
	if model == nil {
		return nil, fmt.Errorf("llm model required")
	}
	return &LLMResolver{model: model, temperature: cfg.Temperature, timeout: cfg.Timeout}, nil
}

// Resolve implements Resolver.
func (r *LLMResolver) Resolve(ctx context.Context, req Request) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	convo, err := json.Marshal(req.Context)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode conversation context")
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Conversation context: %s\nCustomer message: %s", convo, req.Text)),
	}

	resp, err := r.model.GenerateContent(ctx, messages,
		llms.WithTemperature(r.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "intent resolver unavailable")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "intent resolver returned no choices")
	}

	var out Response
	if err := json.Unmarshal([]byte(extractJSON(resp.Choices[0].Content)), &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode intent resolver reply")
	}
	return &out, nil
}

// extractJSON trims code fences or prose some models wrap around the object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return content
	}
	return content[start : end+1]
}

// Unavailable is the resolver used when no model is configured. Commands,
// contextual answers and dietary rules still resolve; anything that reaches
// the model fails as a dependency error.
type Unavailable struct{}

// Resolve implements Resolver.
func (Unavailable) Resolve(context.Context, Request) (*Response, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "no intent model configured")
}
