package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

const envPrefix = "AURAROUTER_"

// applyEnvOverrides walks every AURAROUTER_-prefixed environment variable
// and writes it into cfg's tree. A variable name splits on "__" for each
// level of nesting; the final segment is parsed as JSON first (so
// AURAROUTER_SYSTEM__DEFAULT_TIMEOUT_SECONDS=45 becomes an int, and
// AURAROUTER_MODELS__LOCAL__TAGS=["private"] becomes a slice) and falls
// back to the raw string when it isn't valid JSON.
func applyEnvOverrides(cfg *SystemConfig) {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		path := strings.Split(strings.TrimPrefix(name, envPrefix), "__")
		if len(path) == 0 || path[0] == "" {
			continue
		}
		applyEnvPath(cfg, lowerAll(path), parseEnvValue(value))
	}
}

func lowerAll(path []string) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = strings.ToLower(p)
	}
	return out
}

func parseEnvValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// applyEnvPath applies a single override to the handful of top-level fields
// the core actually exposes. Deeper per-model overrides
// (AURAROUTER_MODELS__<id>__<field>) are applied to the named ModelEntry;
// system settings nest the same way (AURAROUTER_SYSTEM__LOG_LEVEL,
// AURAROUTER_SYSTEM__DEFAULT_TIMEOUT_SECONDS), matching auraconfig.yaml's
// own system: key.
func applyEnvPath(cfg *SystemConfig, path []string, value any) {
	switch path[0] {
	case "system":
		if len(path) < 2 {
			L_warn("config: env override too shallow for system", "path", strings.Join(path, "__"))
			return
		}
		applySystemOverride(cfg, path[1], value)
	case "models":
		if len(path) < 3 {
			L_warn("config: env override too shallow for models", "path", strings.Join(path, "__"))
			return
		}
		applyModelOverride(cfg, path[1], path[2:], value)
	default:
		L_trace("config: ignoring unrecognized env override", "path", strings.Join(path, "__"))
	}
}

func applySystemOverride(cfg *SystemConfig, field string, value any) {
	switch field {
	case "log_level":
		if s, ok := value.(string); ok {
			cfg.LogLevel = s
		}
	case "default_timeout_seconds":
		cfg.DefaultTimeoutSeconds = asInt(value)
	default:
		L_trace("config: ignoring unrecognized system field override", "field", field)
	}
}

func applyModelOverride(cfg *SystemConfig, id string, field []string, value any) {
	entry, ok := cfg.Models[id]
	if !ok {
		L_warn("config: env override references unknown model", "id", id)
		return
	}
	switch field[0] {
	case "endpoint":
		entry.Endpoint = asString(value)
	case "model_name":
		entry.ModelName = asString(value)
	case "model_path":
		entry.ModelPath = asString(value)
	case "api_key":
		entry.APIKey = asString(value)
	case "api_key_env":
		entry.APIKeyEnv = asString(value)
	case "tags":
		if list, ok := value.([]any); ok {
			tags := make([]string, 0, len(list))
			for _, v := range list {
				tags = append(tags, asString(v))
			}
			entry.Tags = tags
		}
	default:
		L_trace("config: ignoring unrecognized model field override", "id", id, "field", field[0])
	}
	cfg.Models[id] = entry
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}

// ResolveAPIKey consults api_key first, then falls back to the named
// environment variable in api_key_env, and finally the conventional
// per-provider env vars documented in §6 (GOOGLE_API_KEY, ANTHROPIC_API_KEY).
func ResolveAPIKey(entry ModelEntry) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	if entry.APIKeyEnv != "" {
		if v := os.Getenv(entry.APIKeyEnv); v != "" {
			return v
		}
	}
	switch entry.ProviderKind {
	case KindGoogle:
		return os.Getenv("GOOGLE_API_KEY")
	case KindAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}
