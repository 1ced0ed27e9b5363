package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/eddy"
)

// Options carry the provider selection and credentials used to build an
// agent. Zero values fall back to each provider's own defaults, which
// typically read the vendor's environment variables.
type Options struct {
	// Provider names the registry entry to use, e.g. "anthropic". When
	// empty, the model name is matched against each entry's matcher.
	Provider string

	// Model is the model identifier, e.g. "claude-sonnet-4-20250514".
	Model string

	// APIKey overrides the provider's environment-variable credential.
	APIKey string

	// Endpoint overrides the provider's API endpoint, for proxies and
	// compatible servers.
	Endpoint string
}

// Factory builds an agent from options.
type Factory func(opts Options) (eddy.Agent, error)

// ModelMatcher reports whether a model name belongs to a provider.
type ModelMatcher func(model string) bool

// Entry describes one registered provider.
type Entry struct {
	Name    string
	Matches ModelMatcher
	New     Factory
}

// Registry maps provider names and model-name patterns to agent factories.
type Registry struct {
	mutex   sync.RWMutex
	entries []Entry
}

// Register adds a provider entry. A later registration with the same name
// replaces the earlier one.
func (r *Registry) Register(entry Entry) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, existing := range r.entries {
		if existing.Name == entry.Name {
			r.entries[i] = entry
			return
		}
	}
	r.entries = append(r.entries, entry)
}

// New builds an agent for the given options. The provider is chosen by
// name when opts.Provider is set, otherwise by matching opts.Model
// against each entry's matcher.
func (r *Registry) New(opts Options) (eddy.Agent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if opts.Provider != "" {
		for _, entry := range r.entries {
			if entry.Name == opts.Provider {
				return entry.New(opts)
			}
		}
		return nil, fmt.Errorf("unknown provider: %q (registered: %s)",
			opts.Provider, strings.Join(r.names(), ", "))
	}
	if opts.Model != "" {
		for _, entry := range r.entries {
			if entry.Matches != nil && entry.Matches(opts.Model) {
				return entry.New(opts)
			}
		}
		return nil, fmt.Errorf("no provider matches model %q", opts.Model)
	}
	return nil, fmt.Errorf("a provider or model name is required")
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.Name)
	}
	sort.Strings(names)
	return names
}

// PrefixesMatcher matches models beginning with any of the prefixes.
func PrefixesMatcher(prefixes ...string) ModelMatcher {
	return func(model string) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(model, prefix) {
				return true
			}
		}
		return false
	}
}

var defaultRegistry = &Registry{}

// DefaultRegistry returns the registry populated by provider subpackage
// imports.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds an entry to the default registry.
func Register(entry Entry) {
	defaultRegistry.Register(entry)
}

// New builds an agent from the default registry.
func New(opts Options) (eddy.Agent, error) {
	return defaultRegistry.New(opts)
}
