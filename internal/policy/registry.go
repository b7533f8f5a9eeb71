package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds the known per-type policies, loaded from a directory of
// YAML files and seeded with the shipped defaults on first use.
type Registry struct {
	dir      string
	policies map[string]*TypePolicy
	mu       sync.RWMutex
}

func NewRegistry(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("policy dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create policy dir: %w", err)
	}
	if err := ensureDefaults(dir); err != nil {
		return nil, err
	}

	r := &Registry{
		dir:      dir,
		policies: make(map[string]*TypePolicy),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the policy for a task type, or nil if none is configured —
// callers should fall back to the global defaults in that case.
func (r *Registry) Get(taskType string) *TypePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[taskType]
	if !ok {
		return nil
	}
	clone := *p
	return &clone
}

func (r *Registry) List() []*TypePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*TypePolicy, 0, len(r.policies))
	for _, p := range r.policies {
		clone := *p
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

func (r *Registry) Reload() error {
	loaded, err := loadDir(r.dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.policies = loaded
	r.mu.Unlock()
	return nil
}

func loadDir(dir string) (map[string]*TypePolicy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	loaded := make(map[string]*TypePolicy)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if _, exists := loaded[p.Type]; exists {
			return nil, fmt.Errorf("duplicate policy for type %q", p.Type)
		}
		loaded[p.Type] = p
	}
	return loaded, nil
}

func loadFile(path string) (*TypePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %q: %w", path, err)
	}
	var p TypePolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", path, err)
	}
	if strings.TrimSpace(p.Type) == "" {
		return nil, fmt.Errorf("%s: type is required", path)
	}
	return &p, nil
}
