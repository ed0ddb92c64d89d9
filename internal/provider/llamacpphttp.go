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

type llamaCppHTTPAdapter struct {
	id       string
	endpoint string
	locality Locality
	tags     []string
	client   *http.Client
}

func newLlamaCppHTTPAdapter(spec Spec, client *http.Client) *llamaCppHTTPAdapter {
	return &llamaCppHTTPAdapter{
		id:       spec.ID,
		endpoint: spec.Endpoint,
		locality: spec.Locality,
		tags:     spec.Tags,
		client:   client,
	}
}

func (a *llamaCppHTTPAdapter) ID() string         { return a.id }
func (a *llamaCppHTTPAdapter) Locality() Locality { return a.locality }
func (a *llamaCppHTTPAdapter) Tags() []string     { return a.tags }
func (a *llamaCppHTTPAdapter) Close() error       { return nil }

// completionRequest follows the llama-server native /completion API field
// naming (n_predict, temperature, cache_prompt, ...), trimmed to the
// sampling parameters the core actually plumbs through Params.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	NPredict    int     `json:"n_predict,omitempty"`
	Stream      bool    `json:"stream"`
	CachePrompt bool    `json:"cache_prompt,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
}

func (a *llamaCppHTTPAdapter) Generate(ctx context.Context, prompt string, params Params) (GenerateResult, error) {
	reqBody := completionRequest{
		Prompt:      prompt,
		Temperature: params.Temperature,
		NPredict:    params.MaxTokens,
		Stream:      false,
		CachePrompt: true,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("marshal request: %w", err))
	}

	url := a.endpoint + "/completion"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	L_trace("llamacpp-http: request prepared", "id", a.id, "url", url)

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

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResult{}, NewProtocolError(fmt.Errorf("unmarshal response: %w", err))
	}
	if len(parsed.Content) < effectiveMinChars(params) {
		return GenerateResult{}, NewEmptyResponseError()
	}

	return GenerateResult{
		Text:      parsed.Content,
		TokensIn:  estimateTokens(prompt),
		TokensOut: estimateTokens(parsed.Content),
	}, nil
}

type healthResponse struct {
	Status string `json:"status"`
}

func (a *llamaCppHTTPAdapter) HealthProbe(ctx context.Context) (Health, error) {
	ctx, cancel := withProbeDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/health", nil)
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

	var parsed healthResponse
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed.Status != "" && parsed.Status != "ok" {
		return Health{State: HealthDegraded, Reason: parsed.Status}, nil
	}
	return Health{State: HealthHealthy}, nil
}
