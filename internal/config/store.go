package config

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/auracoredynamics/aurarouter/internal/atomicfile"
	. "github.com/auracoredynamics/aurarouter/internal/logging"
)

// Handle is the live, mutable configuration store a Fabric owns: an
// explicit, independently instantiable object rather than a package-global
// singleton, so more than one Fabric can run in a process without sharing
// state.
type Handle struct {
	mu       sync.Mutex
	path     string
	cfg      *SystemConfig
	onReload func(*SystemConfig)
}

// LoadConfig resolves path, loads and validates auraconfig.yaml, and
// returns a Handle ready for mutation and for handing to NewFabric.
func LoadConfig(path string, manifest map[string]any) (*Handle, error) {
	result, err := Load(path, manifest)
	if err != nil {
		return nil, err
	}
	return &Handle{path: result.Path, cfg: result.Config}, nil
}

// OnReload registers the callback invoked after a successful Save — in
// practice the Model Registry's Rebuild. Only one callback is supported;
// a Fabric sets it once at construction.
func (h *Handle) OnReload(fn func(*SystemConfig)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReload = fn
}

// Snapshot returns a read-only copy of the current config tree. Callers
// must not mutate the returned value's maps.
func (h *Handle) Snapshot() *SystemConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneConfig(h.cfg)
}

// SetModel upserts a ModelEntry under id.
func (h *Handle) SetModel(id string, entry ModelEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry.ID = id
	h.cfg.Models[id] = entry
}

// RemoveModel deletes a ModelEntry. It does not check whether any role
// chain still references it — that surfaces as a validation failure on the
// next Save, per §4.2 rule (a).
func (h *Handle) RemoveModel(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cfg.Models, id)
}

// SetRoleChain replaces role's fallback chain wholesale.
func (h *Handle) SetRoleChain(role string, ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.Roles[role] = RoleChain(ids)
	h.cfg.trackRole(role)
}

// SetSemanticVerbs replaces role's synonym set wholesale.
func (h *Handle) SetSemanticVerbs(role string, synonyms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.SemanticVerbs[role] = synonyms
}

// Save validates a scratch copy of the in-memory tree, and only on success
// commits it, writes auraconfig.yaml atomically and fires OnReload. A failed
// validation writes nothing to disk and fires nothing. The mutators above
// apply directly to the in-memory tree, so Snapshot already reflects them
// before Save is called.
func (h *Handle) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	scratch := cloneConfig(h.cfg)
	if err := validate(scratch); err != nil {
		return err
	}

	data, err := marshalOrdered(scratch)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := atomicfile.WriteWithBackup(h.path, data, 0600, atomicfile.DefaultBackupCount); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	h.cfg = scratch
	L_info("config: saved", "path", h.path)

	if h.onReload != nil {
		h.onReload(h.cfg)
	}
	return nil
}

func cloneConfig(cfg *SystemConfig) *SystemConfig {
	clone := &SystemConfig{
		LogLevel:                 cfg.LogLevel,
		DefaultTimeoutSeconds:    cfg.DefaultTimeoutSeconds,
		Models:                   make(map[string]ModelEntry, len(cfg.Models)),
		Roles:                    make(map[string]RoleChain, len(cfg.Roles)),
		SemanticVerbs:            make(map[string][]string, len(cfg.SemanticVerbs)),
		unknownTopLevel:          cfg.unknownTopLevel,
		insertionOrder:           append([]string(nil), cfg.insertionOrder...),
		DisabledPrivacyDetectors: append([]string(nil), cfg.DisabledPrivacyDetectors...),
	}
	for id, m := range cfg.Models {
		clone.Models[id] = m
	}
	for role, chain := range cfg.Roles {
		clone.Roles[role] = append(RoleChain(nil), chain...)
	}
	for role, syns := range cfg.SemanticVerbs {
		clone.SemanticVerbs[role] = append([]string(nil), syns...)
	}
	return clone
}

// marshalOrdered renders cfg as YAML with the key order system, models,
// roles, semantic_verbs required by §4.2, followed by any preserved
// unknown top-level keys.
func marshalOrdered(cfg *SystemConfig) ([]byte, error) {
	root := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	addKeyTo := func(node *yaml.Node, name string, value any) error {
		var valNode yaml.Node
		if err := valNode.Encode(value); err != nil {
			return err
		}
		keyNode := yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		node.Content = append(node.Content, &keyNode, &valNode)
		return nil
	}
	addKey := func(name string, value any) error {
		return addKeyTo(&root, name, value)
	}
	addNode := func(name string, node *yaml.Node) {
		keyNode := yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		root.Content = append(root.Content, &keyNode, node)
	}

	system := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if err := addKeyTo(&system, "log_level", cfg.LogLevel); err != nil {
		return nil, err
	}
	if err := addKeyTo(&system, "default_timeout_seconds", cfg.DefaultTimeoutSeconds); err != nil {
		return nil, err
	}
	addNode("system", &system)
	if err := addKey("models", cfg.Models); err != nil {
		return nil, err
	}

	flatRoles := make(map[string][]string, len(cfg.Roles))
	for role, chain := range cfg.Roles {
		flatRoles[role] = []string(chain)
	}
	if err := addKey("roles", flatRoles); err != nil {
		return nil, err
	}
	if err := addKey("semantic_verbs", cfg.SemanticVerbs); err != nil {
		return nil, err
	}
	if len(cfg.DisabledPrivacyDetectors) > 0 {
		if err := addKey("disabled_privacy_detectors", cfg.DisabledPrivacyDetectors); err != nil {
			return nil, err
		}
	}

	for key, value := range cfg.unknownTopLevel {
		if err := addKey(key, value); err != nil {
			return nil, err
		}
	}

	doc := yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{&root}}
	return yaml.Marshal(&doc)
}
