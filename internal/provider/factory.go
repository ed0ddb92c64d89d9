package provider

import (
	"fmt"
	"net/http"
	"time"
)

// BuildError is the adapter_build(model_id, reason) error kind from §7.
type BuildError struct {
	ModelID string
	Reason  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("adapter_build(%s): %s", e.ModelID, e.Reason)
}

func buildError(id, reason string) error {
	return &BuildError{ModelID: id, Reason: reason}
}

// Spec mirrors the subset of config.ModelEntry the factory needs, so this
// package has no import-time dependency on internal/config (registry.go is
// the only place both are imported together).
type Spec struct {
	ID           string
	ProviderKind string
	Endpoint     string
	ModelName    string
	ModelPath    string
	APIKey       string
	Tags         []string
	Locality     Locality
	Timeout      time.Duration
}

// Build validates spec against the kind<->field matrix of §4.1 and
// constructs the matching Adapter. Construction validation happens here,
// at registry build time, so a bad config entry fails fast rather than on
// first use.
func Build(spec Spec) (Adapter, error) {
	if spec.Timeout <= 0 {
		spec.Timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: spec.Timeout}

	switch spec.ProviderKind {
	case "ollama":
		if spec.Endpoint == "" || spec.ModelName == "" {
			return nil, buildError(spec.ID, "ollama requires endpoint and model_name")
		}
		return newOllamaAdapter(spec, client), nil
	case "llamacpp-http":
		if spec.Endpoint == "" {
			return nil, buildError(spec.ID, "llamacpp-http requires endpoint")
		}
		return newLlamaCppHTTPAdapter(spec, client), nil
	case "llamacpp-embedded":
		if spec.ModelPath == "" {
			return nil, buildError(spec.ID, "llamacpp-embedded requires model_path")
		}
		return newLlamaCppEmbeddedAdapter(spec)
	case "openai-compatible":
		if spec.Endpoint == "" || spec.ModelName == "" {
			return nil, buildError(spec.ID, "openai-compatible requires endpoint and model_name")
		}
		return newOpenAICompatAdapter(spec), nil
	case "google":
		if spec.ModelName == "" {
			return nil, buildError(spec.ID, "google requires model_name")
		}
		if spec.APIKey == "" {
			return nil, buildError(spec.ID, "google requires a resolvable api_key")
		}
		return newGoogleAdapter(spec, client), nil
	case "anthropic":
		if spec.ModelName == "" {
			return nil, buildError(spec.ID, "anthropic requires model_name")
		}
		if spec.APIKey == "" {
			return nil, buildError(spec.ID, "anthropic requires a resolvable api_key")
		}
		return newAnthropicAdapter(spec), nil
	default:
		return nil, buildError(spec.ID, fmt.Sprintf("unknown provider_kind %q", spec.ProviderKind))
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
