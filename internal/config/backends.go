package config

import "fmt"

// Provider identifies the kind of backend behind an identity.
type Provider string

const (
	ProviderHosted Provider = "hosted" // Gemini API via google.golang.org/genai
	ProviderLocal  Provider = "local"  // Ollama-compatible HTTP server
)

// BackendConfig describes one backend identity.
type BackendConfig struct {
	Provider Provider `yaml:"provider"`
	Model    string   `yaml:"model"`
	BaseURL  string   `yaml:"base_url"` // required for local, optional override for hosted
}

func (b BackendConfig) validate() error {
	switch b.Provider {
	case ProviderHosted:
	case ProviderLocal:
		if b.BaseURL == "" {
			return fmt.Errorf("local backend needs base_url")
		}
	default:
		return fmt.Errorf("unknown provider %q", b.Provider)
	}
	if b.Model == "" {
		return fmt.Errorf("model must be set")
	}
	return nil
}

// SpecialistConfig assigns backend identities to specialists.
// Coding specialists (CodingIDs) use Coding, everyone else Default;
// Overrides beats both.
type SpecialistConfig struct {
	Default   string            `yaml:"default"`
	Coding    string            `yaml:"coding"`
	CodingIDs []string          `yaml:"coding_ids"`
	Overrides map[string]string `yaml:"overrides"`
}

// BackendFor returns the backend identity statically assigned to a specialist.
func (c *Config) BackendFor(specialistID string) string {
	if id, ok := c.Specialists.Overrides[specialistID]; ok {
		return id
	}
	for _, coding := range c.Specialists.CodingIDs {
		if coding == specialistID {
			return c.Specialists.Coding
		}
	}
	return c.Specialists.Default
}

// Backend looks up a backend identity.
func (c *Config) Backend(id string) (BackendConfig, bool) {
	b, ok := c.Backends[id]
	return b, ok
}

// NextFallback returns the backend identity that follows current in the
// static fallback ordering, skipping current itself. Returns "" when the
// ordering offers nothing different.
func (c *Config) NextFallback(current string) string {
	start := -1
	for i, id := range c.FallbackOrder {
		if id == current {
			start = i
			break
		}
	}
	n := len(c.FallbackOrder)
	for step := 1; step <= n; step++ {
		id := c.FallbackOrder[(start+step+n)%n]
		if id != current {
			return id
		}
	}
	return ""
}
