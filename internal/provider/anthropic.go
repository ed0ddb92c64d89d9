package provider

import (
	"context"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

const defaultAnthropicMaxTokens = 4096

type anthropicAdapter struct {
	id        string
	model     string
	maxTokens int
	apiKey    string
	locality  Locality
	tags      []string
	client    anthropic.Client
}

func newAnthropicAdapter(spec Spec) *anthropicAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(spec.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: spec.Timeout}),
	}
	if spec.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(spec.Endpoint))
	}

	return &anthropicAdapter{
		id:        spec.ID,
		model:     spec.ModelName,
		maxTokens: defaultAnthropicMaxTokens,
		apiKey:    spec.APIKey,
		locality:  spec.Locality,
		tags:      spec.Tags,
		client:    anthropic.NewClient(opts...),
	}
}

func (a *anthropicAdapter) ID() string         { return a.id }
func (a *anthropicAdapter) Locality() Locality { return a.locality }
func (a *anthropicAdapter) Tags() []string     { return a.tags }
func (a *anthropicAdapter) Close() error       { return nil }

func (a *anthropicAdapter) Generate(ctx context.Context, prompt string, params Params) (GenerateResult, error) {
	maxTokens := int64(a.maxTokens)
	if params.MaxTokens > 0 {
		maxTokens = int64(params.MaxTokens)
	}

	msgParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if params.Temperature > 0 {
		msgParams.Temperature = anthropic.Float(params.Temperature)
	}

	L_trace("anthropic: request prepared", "id", a.id, "model", a.model)

	message, err := a.client.Messages.New(ctx, msgParams)
	if err != nil {
		return GenerateResult{}, classifyAnthropicError(err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if len(text) < effectiveMinChars(params) {
		return GenerateResult{}, NewEmptyResponseError()
	}

	return GenerateResult{
		Text:      text,
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
	}, nil
}

func (a *anthropicAdapter) HealthProbe(ctx context.Context) (Health, error) {
	if a.apiKey == "" {
		return Health{State: HealthDown, Reason: "no api key configured"}, nil
	}
	return Health{State: HealthHealthy}, nil
}

// classifyAnthropicError maps the SDK's error surface (an *anthropic.Error
// carrying a StatusCode, or a bare transport error) onto the closed
// ErrorKind set, following the same status-first then phrase-match
// approach as the OpenAI-compatible adapter.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return NewAuthError(err)
		}
		if apiErr.StatusCode != 0 {
			return NewHTTPStatusError(apiErr.StatusCode, apiErr.Error())
		}
	}
	return ClassifyTransportError(err)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	if apiErr, ok := err.(*anthropic.Error); ok {
		*target = apiErr
		return true
	}
	return false
}
