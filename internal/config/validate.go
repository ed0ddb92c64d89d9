package config

import (
	"fmt"
)

// validate runs the §4.2 validation rules (a)-(e) against cfg. It returns
// the first violation found; callers run it against a scratch copy so a
// failed validation never exposes partial state.
func validate(cfg *SystemConfig) error {
	if err := validateRoleChainsReferenceKnownModels(cfg); err != nil {
		return err
	}
	if err := validateRequiredRoles(cfg); err != nil {
		return err
	}
	if err := validateProviderFields(cfg); err != nil {
		return err
	}
	if err := validateTags(cfg); err != nil {
		return err
	}
	if err := validateChainsDuplicateFree(cfg); err != nil {
		return err
	}
	return nil
}

// (a) every id in any role chain refers to a known model.
func validateRoleChainsReferenceKnownModels(cfg *SystemConfig) error {
	for role, chain := range cfg.Roles {
		for _, id := range chain {
			if _, ok := cfg.Models[id]; !ok {
				return invalid(fmt.Sprintf("roles.%s", role),
					fmt.Sprintf("chain references unknown model %q", id))
			}
		}
	}
	return nil
}

// (b) required roles exist and are non-empty.
func validateRequiredRoles(cfg *SystemConfig) error {
	for _, role := range RequiredRoles {
		chain, ok := cfg.Roles[role]
		if !ok || len(chain) == 0 {
			return invalid(fmt.Sprintf("roles.%s", role), "required role is missing or empty")
		}
	}
	return nil
}

// (c) no provider-field contradictions per §4.1's kind<->field matrix.
func validateProviderFields(cfg *SystemConfig) error {
	for id, entry := range cfg.Models {
		path := fmt.Sprintf("models.%s", id)
		switch entry.ProviderKind {
		case KindOllama:
			if entry.Endpoint == "" || entry.ModelName == "" {
				return invalid(path, "ollama requires endpoint and model_name")
			}
		case KindLlamaCppHTTP:
			if entry.Endpoint == "" {
				return invalid(path, "llamacpp-http requires endpoint")
			}
		case KindLlamaCppEmbed:
			if entry.ModelPath == "" {
				return invalid(path, "llamacpp-embedded requires model_path")
			}
		case KindOpenAICompat:
			if entry.Endpoint == "" || entry.ModelName == "" {
				return invalid(path, "openai-compatible requires endpoint and model_name")
			}
		case KindGoogle, KindAnthropic:
			if entry.ModelName == "" {
				return invalid(path, fmt.Sprintf("%s requires model_name", entry.ProviderKind))
			}
			if entry.APIKey == "" && entry.APIKeyEnv == "" {
				return invalid(path, fmt.Sprintf("%s requires api_key or api_key_env", entry.ProviderKind))
			}
		default:
			return invalid(path, fmt.Sprintf("unknown provider_kind %q", entry.ProviderKind))
		}
	}
	return nil
}

// (d) tags are strings — the []string type already rules out non-string
// values, so this check rejects empty tags.
func validateTags(cfg *SystemConfig) error {
	for id, entry := range cfg.Models {
		for _, tag := range entry.Tags {
			if tag == "" {
				return invalid(fmt.Sprintf("models.%s.tags", id), "tag must be a non-empty string")
			}
		}
	}
	return nil
}

// (e) chains are duplicate-free.
func validateChainsDuplicateFree(cfg *SystemConfig) error {
	for role, chain := range cfg.Roles {
		seen := make(map[string]bool, len(chain))
		for _, id := range chain {
			if seen[id] {
				return invalid(fmt.Sprintf("roles.%s", role), fmt.Sprintf("duplicate model id %q in chain", id))
			}
			seen[id] = true
		}
	}
	return nil
}
