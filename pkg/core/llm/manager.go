package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config routes pipeline roles to providers. Loaded from models.yaml.
type Config struct {
	ActiveProvider string                `yaml:"active_provider"`
	Roles          map[string]RoleConfig `yaml:"roles"`
}

// RoleConfig optionally overrides the provider for one role
// ("summarizer", "expert", "editorial").
type RoleConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Description string `yaml:"description"`
}

// Manager is the provider registry. Roles resolve to a provider through the
// per-role override, then the global active provider, then the first keyed one.
type Manager struct {
	config    Config
	providers map[string]Provider
}

func NewManager(config Config) *Manager {
	return &Manager{
		config: config,
		providers: map[string]Provider{
			"gemini":    &GeminiProvider{},
			"anthropic": &AnthropicProvider{},
		},
	}
}

// LoadConfig reads models.yaml; a missing file yields an empty config, which
// resolves purely by key availability.
func LoadConfig(path string) Config {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

// GetProvider resolves the provider for a role, or nil when no keyed provider
// is available (callers then use their heuristic path).
func (m *Manager) GetProvider(role string) Provider {
	if roleCfg, ok := m.config.Roles[role]; ok && roleCfg.Provider != "" {
		if p, ok := m.providers[roleCfg.Provider]; ok && p.Keyed() {
			return p
		}
	}

	if p, ok := m.providers[m.config.ActiveProvider]; ok && p.Keyed() {
		return p
	}

	// Deterministic preference order for the unconfigured case.
	for _, name := range []string{"gemini", "anthropic"} {
		if p := m.providers[name]; p.Keyed() {
			return p
		}
	}
	return nil
}

// KeyedProviders returns every keyed provider in preference order, so callers
// with a fallback ladder can try each in turn.
func (m *Manager) KeyedProviders() []Provider {
	var out []Provider
	for _, name := range []string{"gemini", "anthropic"} {
		if p := m.providers[name]; p != nil && p.Keyed() {
			out = append(out, p)
		}
	}
	return out
}

// GetProviderByName retrieves a provider instance regardless of key state.
func (m *Manager) GetProviderByName(name string) Provider {
	return m.providers[name]
}

func (m *Manager) SetGlobalProvider(name string) error {
	if _, ok := m.providers[name]; !ok {
		return fmt.Errorf("provider %s not found", name)
	}
	m.config.ActiveProvider = name
	return nil
}
