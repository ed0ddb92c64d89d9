package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type googleAdapter struct {
	id       string
	model    string
	apiKey   string
	baseURL  string
	locality Locality
	tags     []string
	client   *http.Client
}

func newGoogleAdapter(spec Spec, client *http.Client) *googleAdapter {
	baseURL := spec.Endpoint
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &googleAdapter{
		id:       spec.ID,
		model:    spec.ModelName,
		apiKey:   spec.APIKey,
		baseURL:  baseURL,
		locality: spec.Locality,
		tags:     spec.Tags,
		client:   client,
	}
}

func (a *googleAdapter) ID() string         { return a.id }
func (a *googleAdapter) Locality() Locality { return a.locality }
func (a *googleAdapter) Tags() []string     { return a.tags }
func (a *googleAdapter) Close() error       { return nil }

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *googleAdapter) Generate(ctx context.Context, prompt string, params Params) (GenerateResult, error) {
	reqPayload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if params.Temperature > 0 || params.MaxTokens > 0 {
		cfg := &geminiGenerationConfig{}
		if params.Temperature > 0 {
			t := float32(params.Temperature)
			cfg.Temperature = &t
		}
		if params.MaxTokens > 0 {
			cfg.MaxOutputTokens = &params.MaxTokens
		}
		reqPayload.GenerationConfig = cfg
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, url.QueryEscape(a.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	L_trace("google: request prepared", "id", a.id, "model", a.model)

	resp, err := a.client.Do(req)
	if err != nil {
		return GenerateResult{}, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return GenerateResult{}, ClassifyHTTPStatus(resp.StatusCode, string(raw))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("unmarshal response: %w", err))
	}
	if parsed.Error != nil {
		if parsed.Error.Code == 401 || parsed.Error.Code == 403 {
			return GenerateResult{}, NewAuthError(fmt.Errorf("%s", parsed.Error.Message))
		}
		return GenerateResult{}, NewHTTPStatusError(parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return GenerateResult{}, NewEmptyResponseError()
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if len(text) < effectiveMinChars(params) {
		return GenerateResult{}, NewEmptyResponseError()
	}

	result := GenerateResult{Text: text}
	if parsed.UsageMetadata != nil {
		result.TokensIn = parsed.UsageMetadata.PromptTokenCount
		result.TokensOut = parsed.UsageMetadata.CandidatesTokenCount
	}
	return result, nil
}

// HealthProbe for cloud providers checks only that the key is configured
// and non-empty, per §4.1 — this adapter is only ever constructed once
// Build has already confirmed a.apiKey is non-empty, so this always
// reports healthy; it exists to satisfy the Adapter contract uniformly.
func (a *googleAdapter) HealthProbe(ctx context.Context) (Health, error) {
	if a.apiKey == "" {
		return Health{State: HealthDown, Reason: "no api key configured"}, nil
	}
	return Health{State: HealthHealthy}, nil
}
