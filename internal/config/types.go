// Package config loads, validates, mutates, and atomically persists
// auraconfig.yaml, the single source of truth for models, role chains, and
// semantic-verb synonyms.
package config

import "strings"

// ProviderKind is the closed set of backend kinds a ModelEntry may name.
type ProviderKind string

const (
	KindOllama          ProviderKind = "ollama"
	KindLlamaCppHTTP    ProviderKind = "llamacpp-http"
	KindLlamaCppEmbed   ProviderKind = "llamacpp-embedded"
	KindOpenAICompat    ProviderKind = "openai-compatible"
	KindGoogle          ProviderKind = "google"
	KindAnthropic       ProviderKind = "anthropic"
)

// Locality distinguishes host-local inference from a remote third-party call.
type Locality string

const (
	LocalityLocal Locality = "local"
	LocalityCloud Locality = "cloud"
)

// ModelEntry is one configured backend.
type ModelEntry struct {
	ID           string            `yaml:"id"`
	ProviderKind ProviderKind      `yaml:"provider_kind"`
	Endpoint     string            `yaml:"endpoint,omitempty"`
	ModelName    string            `yaml:"model_name,omitempty"`
	ModelPath    string            `yaml:"model_path,omitempty"`
	APIKey       string            `yaml:"api_key,omitempty"`
	APIKeyEnv    string            `yaml:"api_key_env,omitempty"`
	Tags         []string          `yaml:"tags,omitempty"`
	Parameters   map[string]any    `yaml:"parameters,omitempty"`
	Locality     Locality          `yaml:"locality,omitempty"`
}

// HasTag reports whether the entry carries the given tag.
func (m ModelEntry) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ResolvedLocality returns Locality if set explicitly. Otherwise
// llamacpp-embedded is local and google/anthropic are cloud, whatever their
// endpoint; ollama and llamacpp-http are local, whatever their endpoint; any
// other kind (openai-compatible) is local only when its endpoint names
// localhost, 127.0.0.1, [::1] or a unix:// socket, and cloud otherwise.
func (m ModelEntry) ResolvedLocality() Locality {
	if m.Locality != "" {
		return m.Locality
	}
	switch m.ProviderKind {
	case KindLlamaCppEmbed:
		return LocalityLocal
	case KindGoogle, KindAnthropic:
		return LocalityCloud
	}
	if isLocalEndpoint(m.Endpoint) {
		return LocalityLocal
	}
	if m.ProviderKind == KindOllama || m.ProviderKind == KindLlamaCppHTTP {
		return LocalityLocal
	}
	return LocalityCloud
}

func isLocalEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	for _, sub := range []string{"localhost", "127.0.0.1", "unix://", "[::1]"} {
		if strings.Contains(endpoint, sub) {
			return true
		}
	}
	return false
}

// RoleChain is an ordered, duplicate-free sequence of ModelEntry.ID.
type RoleChain []string

// SemanticVerb maps a canonical role name to its synonym set.
type SemanticVerb map[string][]string

// SystemConfig is the root of auraconfig.yaml. LogLevel and
// DefaultTimeoutSeconds live under the document's "system" key on disk
// (see store.go's marshalOrdered and load.go's mergeYAML) rather than at
// the document root; the yaml tags below only document the Go field names
// since (de)serialization goes through hand-built yaml.Node trees, not a
// struct-tag-driven Marshal/Unmarshal of SystemConfig itself.
type SystemConfig struct {
	LogLevel              string                `yaml:"log_level"`
	DefaultTimeoutSeconds int                   `yaml:"default_timeout_seconds"`
	Models                map[string]ModelEntry `yaml:"models"`
	Roles                 map[string]RoleChain  `yaml:"roles"`
	SemanticVerbs         map[string][]string   `yaml:"semantic_verbs"`

	// DisabledPrivacyDetectors names privacy.Detector values the Privacy
	// Auditor should skip — an operator who sees too many credit-card
	// false positives from the Luhn check can turn just that detector off.
	DisabledPrivacyDetectors []string `yaml:"disabled_privacy_detectors,omitempty"`

	// unknownTopLevel preserves keys this version of the core doesn't
	// recognize, so they survive a load/save round trip untouched.
	unknownTopLevel map[string]any `yaml:"-"`

	// insertionOrder tracks the order roles were first seen in, used as
	// the final tie-break in role resolution for custom roles.
	insertionOrder []string `yaml:"-"`
}

// RequiredRoles must exist and be non-empty for the pipeline to run.
var RequiredRoles = []string{"router", "reasoning", "coding"}

// CanonicalRoleOrder is the tie-break order used by the Role Resolver when a
// synonym matches more than one canonical role.
var CanonicalRoleOrder = []string{"router", "reasoning", "coding", "summarization", "analysis"}

// Defaults returns the built-in configuration defaults, the lowest-priority
// layer in the load precedence chain (§4.2).
func Defaults() *SystemConfig {
	return &SystemConfig{
		LogLevel:              "info",
		DefaultTimeoutSeconds: 30,
		Models:                map[string]ModelEntry{},
		Roles: map[string]RoleChain{
			"router":    {},
			"reasoning": {},
			"coding":    {},
		},
		SemanticVerbs: map[string][]string{
			"router":    {"route", "dispatch"},
			"reasoning": {"reason", "think", "plan"},
			"coding":    {"code", "programming", "program"},
		},
		insertionOrder: []string{"router", "reasoning", "coding"},
	}
}

// InsertionOrder returns custom roles in the order they were first observed,
// following the three required roles.
func (c *SystemConfig) InsertionOrder() []string {
	return c.insertionOrder
}

// trackRole appends role to the insertion order the first time it is seen.
func (c *SystemConfig) trackRole(role string) {
	for _, r := range c.insertionOrder {
		if r == role {
			return
		}
	}
	c.insertionOrder = append(c.insertionOrder, role)
}
