package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	. "github.com/auracoredynamics/aurarouter/internal/logging"
	"github.com/auracoredynamics/aurarouter/internal/paths"
)

// LoadResult carries the parsed config plus the path it came from, so
// callers (and Save) know where to write back.
type LoadResult struct {
	Config *SystemConfig
	Path   string
}

// ResolvePath picks the config file path: the explicit path argument, then
// AURACORE_ROUTER_CONFIG, then ./auraconfig.yaml if it exists in the
// current directory, then ~/.auracore/aurarouter/auraconfig.yaml (whether
// or not that file exists yet).
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("AURACORE_ROUTER_CONFIG"); env != "" {
		return env, nil
	}
	p, err := paths.ConfigPath()
	if err != nil {
		return "", err
	}
	if p != "" {
		return p, nil
	}
	return paths.DefaultConfigPath()
}

// Load reads auraconfig.yaml from path (resolved via ResolvePath when
// empty), merges it over the built-in defaults, applies manifest overrides
// and environment overrides in the precedence order of §4.2, validates the
// result, and returns it. A missing file is not an error by itself: the
// defaults, manifest and environment layers are validated as usual, and
// since the default router/reasoning/coding chains are empty, that
// validation fails unless the manifest fills them.
func Load(explicitPath string, manifest map[string]any) (*LoadResult, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Defaults()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := mergeYAML(cfg, raw); err != nil {
			return nil, invalid(path, err.Error())
		}
	case os.IsNotExist(err):
		L_info("config: no file found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if manifest != nil {
		mergeManifest(cfg, manifest)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, Path: path}, nil
}

// mergeYAML decodes raw YAML on top of cfg. Known top-level keys overwrite
// the corresponding field; anything else is preserved verbatim for the next
// Save (§6: "unknown top-level keys are preserved on save but ignored by
// the core").
func mergeYAML(cfg *SystemConfig, raw []byte) error {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if node, ok := doc["system"]; ok {
		var system struct {
			LogLevel              string `yaml:"log_level"`
			DefaultTimeoutSeconds int    `yaml:"default_timeout_seconds"`
		}
		system.LogLevel = cfg.LogLevel
		system.DefaultTimeoutSeconds = cfg.DefaultTimeoutSeconds
		if err := node.Decode(&system); err != nil {
			return fmt.Errorf("decode system: %w", err)
		}
		cfg.LogLevel = system.LogLevel
		cfg.DefaultTimeoutSeconds = system.DefaultTimeoutSeconds
	}
	if node, ok := doc["disabled_privacy_detectors"]; ok {
		_ = node.Decode(&cfg.DisabledPrivacyDetectors)
	}
	if node, ok := doc["models"]; ok {
		models := map[string]ModelEntry{}
		if err := node.Decode(&models); err != nil {
			return fmt.Errorf("decode models: %w", err)
		}
		for id, m := range models {
			m.ID = id
			cfg.Models[id] = m
		}
	}
	if node, ok := doc["roles"]; ok {
		roleDoc := map[string]yaml.Node{}
		if err := node.Decode(&roleDoc); err != nil {
			return fmt.Errorf("decode roles: %w", err)
		}
		for role, n := range roleDoc {
			chain, err := decodeRoleChain(n)
			if err != nil {
				return fmt.Errorf("decode roles.%s: %w", role, err)
			}
			cfg.Roles[role] = chain
			cfg.trackRole(role)
		}
	}
	if node, ok := doc["semantic_verbs"]; ok {
		verbs := map[string][]string{}
		if err := node.Decode(&verbs); err != nil {
			return fmt.Errorf("decode semantic_verbs: %w", err)
		}
		for role, syns := range verbs {
			cfg.SemanticVerbs[role] = syns
			cfg.trackRole(role)
		}
	}

	unknown := map[string]any{}
	for key, node := range doc {
		switch key {
		case "system", "models", "roles", "semantic_verbs", "disabled_privacy_detectors":
			continue
		}
		var v any
		if err := node.Decode(&v); err == nil {
			unknown[key] = v
		}
	}
	cfg.unknownTopLevel = unknown

	return nil
}

// decodeRoleChain accepts both layouts documented in §6: a flat list of ids
// (the normalized form) and the legacy {models: [ids]} mapping.
func decodeRoleChain(node yaml.Node) (RoleChain, error) {
	if node.Kind == yaml.SequenceNode {
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return nil, err
		}
		return RoleChain(ids), nil
	}
	if node.Kind == yaml.MappingNode {
		var legacy struct {
			Models []string `yaml:"models"`
		}
		if err := node.Decode(&legacy); err != nil {
			return nil, err
		}
		return RoleChain(legacy.Models), nil
	}
	return nil, fmt.Errorf("role chain must be a list or a {models: [...]} mapping")
}

// mergeManifest applies the optional grid-runtime manifest metadata, which
// sits between the YAML file and environment overrides in precedence.
// Only models and role chains are accepted from a manifest; it cannot set
// log_level or timeouts.
func mergeManifest(cfg *SystemConfig, manifest map[string]any) {
	if rawModels, ok := manifest["models"].(map[string]any); ok {
		for id, rawEntry := range rawModels {
			entryMap, ok := rawEntry.(map[string]any)
			if !ok {
				continue
			}
			entry := cfg.Models[id]
			entry.ID = id
			if v, ok := entryMap["provider_kind"].(string); ok {
				entry.ProviderKind = ProviderKind(v)
			}
			if v, ok := entryMap["endpoint"].(string); ok {
				entry.Endpoint = v
			}
			if v, ok := entryMap["model_name"].(string); ok {
				entry.ModelName = v
			}
			cfg.Models[id] = entry
		}
	}
	if rawRoles, ok := manifest["roles"].(map[string]any); ok {
		for role, rawChain := range rawRoles {
			if list, ok := rawChain.([]any); ok {
				ids := make([]string, 0, len(list))
				for _, v := range list {
					if s, ok := v.(string); ok {
						ids = append(ids, s)
					}
				}
				cfg.Roles[role] = RoleChain(ids)
				cfg.trackRole(role)
			}
		}
	}
}
