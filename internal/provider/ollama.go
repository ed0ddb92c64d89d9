package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

type ollamaAdapter struct {
	id       string
	endpoint string
	model    string
	locality Locality
	tags     []string
	client   *http.Client
}

func newOllamaAdapter(spec Spec, client *http.Client) *ollamaAdapter {
	return &ollamaAdapter{
		id:       spec.ID,
		endpoint: spec.Endpoint,
		model:    spec.ModelName,
		locality: spec.Locality,
		tags:     spec.Tags,
		client:   client,
	}
}

func (a *ollamaAdapter) ID() string         { return a.id }
func (a *ollamaAdapter) Locality() Locality { return a.locality }
func (a *ollamaAdapter) Tags() []string     { return a.tags }
func (a *ollamaAdapter) Close() error       { return nil }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
	Stream  bool           `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (a *ollamaAdapter) Generate(ctx context.Context, prompt string, params Params) (GenerateResult, error) {
	options := map[string]any{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}

	reqBody := ollamaGenerateRequest{
		Model:   a.model,
		Prompt:  prompt,
		Options: options,
		Stream:  false,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("marshal request: %w", err))
	}

	url := a.endpoint + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	L_trace("ollama: request prepared", "id", a.id, "url", url, "model", a.model)

	resp, err := a.client.Do(req)
	if err != nil {
		return GenerateResult{}, ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return GenerateResult{}, ClassifyHTTPStatus(resp.StatusCode, string(body))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("unmarshal response: %w", err))
	}

	if len(parsed.Response) < effectiveMinChars(params) {
		return GenerateResult{}, NewEmptyResponseError()
	}

	return GenerateResult{
		Text:      parsed.Response,
		TokensIn:  estimateTokens(prompt),
		TokensOut: estimateTokens(parsed.Response),
	}, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (a *ollamaAdapter) HealthProbe(ctx context.Context) (Health, error) {
	ctx, cancel := withProbeDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/api/tags", nil)
	if err != nil {
		return Health{State: HealthDown, Reason: err.Error()}, nil
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Health{State: HealthDown, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{State: HealthDown, Reason: fmt.Sprintf("status %d", resp.StatusCode)}, nil
	}

	var parsed ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Health{State: HealthDegraded, Reason: "unparseable /api/tags response"}, nil
	}
	if len(parsed.Models) == 0 {
		return Health{State: HealthDegraded, Reason: "no models reported"}, nil
	}
	return Health{State: HealthHealthy}, nil
}

// estimateTokens is a coarse ~4-chars-per-token heuristic used only for the
// telemetry fields on Attempt; it is never used for truncation decisions.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
