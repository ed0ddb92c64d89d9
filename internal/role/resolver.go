// Package role resolves a requested role name (possibly a synonym) to an
// ordered fallback chain of model ids (§4.4).
package role

import (
	"fmt"
	"strings"

	"github.com/auracoredynamics/aurarouter/internal/config"
)

// UnknownError is the role_unknown(name) error kind from §7.
type UnknownError struct{ Name string }

func (e *UnknownError) Error() string { return fmt.Sprintf("role_unknown(%s)", e.Name) }

// MissingError is the role_missing(name) error kind: a required role is
// absent from config at pipeline start.
type MissingError struct{ Name string }

func (e *MissingError) Error() string { return fmt.Sprintf("role_missing(%s)", e.Name) }

// Resolve normalizes requested (lowercase, trimmed) and returns the
// fallback chain for the canonical role it names, either directly or
// through a synonym in cfg.SemanticVerbs. Ties — a synonym listed under
// more than one canonical role — are broken by preferring an exact
// canonical-name match, then the order in config.CanonicalRoleOrder,
// then cfg's custom-role insertion order.
func Resolve(cfg *config.SystemConfig, requested string) (config.RoleChain, string, error) {
	normalized := strings.ToLower(strings.TrimSpace(requested))
	if normalized == "" {
		return nil, "", &UnknownError{Name: requested}
	}

	if chain, ok := cfg.Roles[normalized]; ok {
		return chain, normalized, nil
	}

	matches := synonymMatches(cfg, normalized)
	switch len(matches) {
	case 0:
		return nil, "", &UnknownError{Name: requested}
	case 1:
		return cfg.Roles[matches[0]], matches[0], nil
	default:
		canonical := tieBreak(cfg, matches)
		return cfg.Roles[canonical], canonical, nil
	}
}

// synonymMatches returns every canonical role whose synonym set contains
// normalized, case-insensitively.
func synonymMatches(cfg *config.SystemConfig, normalized string) []string {
	var matches []string
	for role, synonyms := range cfg.SemanticVerbs {
		for _, syn := range synonyms {
			if strings.ToLower(strings.TrimSpace(syn)) == normalized {
				matches = append(matches, role)
				break
			}
		}
	}
	return matches
}

// tieBreak picks one role out of candidates using the fixed order
// router, reasoning, coding, summarization, analysis, then custom roles in
// config insertion order.
func tieBreak(cfg *config.SystemConfig, candidates []string) string {
	inCandidates := func(role string) bool {
		for _, c := range candidates {
			if c == role {
				return true
			}
		}
		return false
	}

	for _, role := range config.CanonicalRoleOrder {
		if inCandidates(role) {
			return role
		}
	}
	for _, role := range cfg.InsertionOrder() {
		if inCandidates(role) {
			return role
		}
	}
	// Unreachable under well-formed config: every role in SemanticVerbs
	// is tracked in insertion order at load time. Fall back to the first
	// candidate rather than panic.
	return candidates[0]
}

// RequireRoles returns a role_missing error for the first required role
// (§3: router, reasoning, coding) that is absent or empty in cfg.
func RequireRoles(cfg *config.SystemConfig) error {
	for _, role := range config.RequiredRoles {
		chain, ok := cfg.Roles[role]
		if !ok || len(chain) == 0 {
			return &MissingError{Name: role}
		}
	}
	return nil
}
