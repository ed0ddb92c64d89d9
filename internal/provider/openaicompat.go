package provider

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

type openAICompatAdapter struct {
	id       string
	model    string
	locality Locality
	tags     []string
	client   *openai.Client
}

func newOpenAICompatAdapter(spec Spec) *openAICompatAdapter {
	baseURL := spec.Endpoint
	if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
		baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}

	apiKey := spec.APIKey
	if apiKey == "" {
		apiKey = "not-needed" // local servers (LM Studio, llama.cpp's OpenAI shim) often don't check it
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.HTTPClient = &http.Client{Timeout: spec.Timeout}

	return &openAICompatAdapter{
		id:       spec.ID,
		model:    spec.ModelName,
		locality: spec.Locality,
		tags:     spec.Tags,
		client:   openai.NewClientWithConfig(config),
	}
}

func (a *openAICompatAdapter) ID() string         { return a.id }
func (a *openAICompatAdapter) Locality() Locality { return a.locality }
func (a *openAICompatAdapter) Tags() []string     { return a.tags }
func (a *openAICompatAdapter) Close() error       { return nil }

func (a *openAICompatAdapter) Generate(ctx context.Context, prompt string, params Params) (GenerateResult, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature > 0 {
		req.Temperature = float32(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}

	L_trace("openai-compatible: request prepared", "id", a.id, "model", a.model)

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GenerateResult{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, NewEmptyResponseError()
	}

	text := resp.Choices[0].Message.Content
	if len(text) < effectiveMinChars(params) {
		return GenerateResult{}, NewEmptyResponseError()
	}

	return GenerateResult{
		Text:      text,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

func (a *openAICompatAdapter) HealthProbe(ctx context.Context) (Health, error) {
	ctx, cancel := withProbeDeadline(ctx)
	defer cancel()

	if _, err := a.client.ListModels(ctx); err != nil {
		return Health{State: HealthDown, Reason: err.Error()}, nil
	}
	return Health{State: HealthHealthy}, nil
}

// classifyOpenAIError maps a go-openai error (which may be an
// *openai.APIError carrying a status code, or a bare transport error) onto
// the closed ErrorKind set.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 || looksLikeAuthFailure(apiErr.Message) {
			return NewAuthError(err)
		}
		if apiErr.HTTPStatusCode != 0 {
			return NewHTTPStatusError(apiErr.HTTPStatusCode, apiErr.Message)
		}
	}
	return ClassifyTransportError(err)
}

func asAPIError(err error, target **openai.APIError) bool {
	if apiErr, ok := err.(*openai.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}
