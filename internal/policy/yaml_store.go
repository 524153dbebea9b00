package policy

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// policyDoc is the on-disk shape of the policy source:
//
//	roles:
//	  finance:
//	    allowed_tools: [get_daily_revenue, ...]
type policyDoc struct {
	Roles map[string]struct {
		AllowedTools []string `yaml:"allowed_tools"`
	} `yaml:"roles"`
}

// YAMLStore loads the role → allowed-tool-set mapping from a YAML document.
// The mapping is loaded once at construction and replaced wholesale on
// Reload; lookups are lock-free reads under an RWMutex.
type YAMLStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	allowed map[string]map[string]struct{}
}

// NewYAMLStore reads the policy document at path. A missing or malformed
// document is a configuration error, not a per-request error.
func NewYAMLStore(path string, logger *zap.Logger) (*YAMLStore, error) {
	s := &YAMLStore{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the policy document and swaps in the new mapping.
func (s *YAMLStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("policy source not readable at %s (create a roles.yaml with a top-level roles: map): %w", s.path, err)
	}

	var doc policyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("policy source %s is not valid YAML: %w", s.path, err)
	}

	allowed := make(map[string]map[string]struct{}, len(doc.Roles))
	for role, entry := range doc.Roles {
		tools := make(map[string]struct{}, len(entry.AllowedTools))
		for _, t := range entry.AllowedTools {
			tools[t] = struct{}{}
		}
		allowed[role] = tools
	}

	s.mu.Lock()
	s.allowed = allowed
	s.mu.Unlock()

	s.logger.Info("policy mapping loaded",
		zap.String("path", s.path),
		zap.Int("roles", len(allowed)),
	)
	return nil
}

// IsAllowed reports whether role may invoke toolName. A role absent from
// the mapping has an empty tool set.
func (s *YAMLStore) IsAllowed(role, toolName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools, ok := s.allowed[role]
	if !ok {
		return false
	}
	_, ok = tools[toolName]
	return ok
}

// Enforce denies with ErrPermissionDenied unless role may invoke toolName.
func (s *YAMLStore) Enforce(role, toolName string) error {
	if !s.IsAllowed(role, toolName) {
		return fmt.Errorf("role %q is not allowed to use tool %q: %w", role, toolName, ErrPermissionDenied)
	}
	return nil
}
