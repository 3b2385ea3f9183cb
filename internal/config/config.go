package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
)

// DefaultConfigFile is the config file looked up in the working directory.
const DefaultConfigFile = "qrews.yaml"

// Config holds all Qrews configuration. Built once at process start by Load
// and passed by pointer into the engine, council and invoker; nothing mutates
// it afterwards.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// API key for the hosted backend. Only ever read from the environment.
	APIKey string `yaml:"-"`

	// Backend identities and which specialist talks to which
	Backends      map[string]BackendConfig `yaml:"backends"`
	Specialists   SpecialistConfig         `yaml:"specialists"`
	FallbackOrder []string                 `yaml:"fallback_order"`
	LocalBackend  string                   `yaml:"local_backend"`

	// Generation request shape
	Generation GenerationConfig `yaml:"generation"`
	Safety     SafetyConfig     `yaml:"safety"`

	// Tech council thresholds
	Council CouncilConfig `yaml:"council"`

	// Call limits
	Limits LimitsConfig `yaml:"limits"`

	// Where the record, snapshots and summary store live
	Paths PathsConfig `yaml:"paths"`

	// Engine toggles
	Workflow WorkflowConfig `yaml:"workflow"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GenerationConfig holds the sampling parameters sent with every request.
type GenerationConfig struct {
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	TopP            float32 `yaml:"top_p"`
	TopK            float32 `yaml:"top_k"`
}

// SafetyConfig holds content-safety thresholds for the hosted backend.
// Values use the hosted API's names (HARM_CATEGORY_*, BLOCK_*).
type SafetyConfig struct {
	Threshold  string   `yaml:"threshold"`
	Categories []string `yaml:"categories"`
}

// CouncilConfig holds the negotiation thresholds.
type CouncilConfig struct {
	HybridGap       float64 `yaml:"hybrid_gap"`       // top-two gap at or below which a hybrid is attempted
	ReviewThreshold float64 `yaml:"review_threshold"` // selections below this confidence need review
}

// LimitsConfig bounds outbound calls.
type LimitsConfig struct {
	CallTimeout   string `yaml:"call_timeout"`   // per-call timeout, e.g. "60s"
	MinInterval   string `yaml:"min_interval"`   // pacing between calls to one backend
	RetryAttempts int    `yaml:"retry_attempts"` // CompleteWithRetry attempts
}

// PathsConfig configures output locations.
type PathsConfig struct {
	OutputDir  string `yaml:"output_dir"`
	RecordFile string `yaml:"record_file"` // relative to OutputDir unless absolute
	SummaryDB  string `yaml:"summary_db"`  // relative to OutputDir unless absolute
}

// WorkflowConfig toggles engine behavior.
type WorkflowConfig struct {
	ParallelProposals bool   `yaml:"parallel_proposals"`
	DefaultObjective  string `yaml:"default_objective"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Qrews",
		Version: "0.3.0",

		Backends: map[string]BackendConfig{
			"gemini-flash": {Provider: ProviderHosted, Model: "gemini-2.5-flash"},
			"gemini-pro":   {Provider: ProviderHosted, Model: "gemini-2.5-pro"},
			"local": {
				Provider: ProviderLocal,
				Model:    "qwen2.5-coder:7b",
				BaseURL:  "http://localhost:11434",
			},
		},
		Specialists: SpecialistConfig{
			Default:   "gemini-flash",
			Coding:    "gemini-pro",
			CodingIDs: []string{"coder", "debugger", "tester"},
		},
		FallbackOrder: []string{"gemini-pro", "gemini-flash"},
		LocalBackend:  "local",

		Generation: GenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 8192,
			TopP:            0.95,
			TopK:            40,
		},
		Safety: SafetyConfig{
			Threshold: "BLOCK_MEDIUM_AND_ABOVE",
			Categories: []string{
				"HARM_CATEGORY_HARASSMENT",
				"HARM_CATEGORY_HATE_SPEECH",
				"HARM_CATEGORY_SEXUALLY_EXPLICIT",
				"HARM_CATEGORY_DANGEROUS_CONTENT",
			},
		},

		Council: CouncilConfig{
			HybridGap:       0.15,
			ReviewThreshold: 0.8,
		},

		Limits: LimitsConfig{
			CallTimeout:   "60s",
			MinInterval:   "100ms",
			RetryAttempts: 2,
		},

		Paths: PathsConfig{
			OutputDir:  "outputs",
			RecordFile: "project_context.json",
			SummaryDB:  "qrews_runs.db",
		},

		Workflow: WorkflowConfig{
			ParallelProposals: true,
			DefaultObjective:  "Build a task management web app with a REST API",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "outputs/qrews.log",
		},
	}
}

// Load loads configuration from a YAML file over the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Config("no .env file found, using process environment")
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		logging.Config("loaded config from %s", path)
	case os.IsNotExist(err):
		logging.Config("config %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// GEMINI_API_KEY wins over GOOGLE_API_KEY
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.APIKey = key
	}

	if local, ok := c.Backends[c.LocalBackend]; ok {
		if url := os.Getenv("QREWS_LOCAL_URL"); url != "" {
			local.BaseURL = url
		}
		if model := os.Getenv("QREWS_LOCAL_MODEL"); model != "" {
			local.Model = model
		}
		c.Backends[c.LocalBackend] = local
	}

	if dir := os.Getenv("QREWS_OUTPUT_DIR"); dir != "" {
		c.Paths.OutputDir = dir
	}
	if level := os.Getenv("QREWS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration. A missing API key is not an error
// here: the invoker reports it as a permanent auth failure per call.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("no backends configured")
	}
	for id, b := range c.Backends {
		if err := b.validate(); err != nil {
			return fmt.Errorf("backend %q: %w", id, err)
		}
	}

	for _, id := range append([]string{c.Specialists.Default, c.Specialists.Coding}, c.FallbackOrder...) {
		if _, ok := c.Backends[id]; !ok {
			return fmt.Errorf("unknown backend identity %q", id)
		}
	}
	for specialist, id := range c.Specialists.Overrides {
		if _, ok := c.Backends[id]; !ok {
			return fmt.Errorf("specialist %s assigned to unknown backend %q", specialist, id)
		}
	}

	if c.LocalBackend != "" {
		local, ok := c.Backends[c.LocalBackend]
		if !ok {
			return fmt.Errorf("local backend %q not configured", c.LocalBackend)
		}
		if local.Provider != ProviderLocal {
			return fmt.Errorf("local backend %q has provider %s", c.LocalBackend, local.Provider)
		}
	}

	g := c.Generation
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0,2]", g.Temperature)
	}
	if g.TopP < 0 || g.TopP > 1 {
		return fmt.Errorf("top_p %.2f out of range [0,1]", g.TopP)
	}
	if g.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive")
	}

	if c.Council.HybridGap < 0 || c.Council.HybridGap > 1 {
		return fmt.Errorf("council.hybrid_gap %.2f out of range [0,1]", c.Council.HybridGap)
	}
	if c.Council.ReviewThreshold < 0 || c.Council.ReviewThreshold > 1 {
		return fmt.Errorf("council.review_threshold %.2f out of range [0,1]", c.Council.ReviewThreshold)
	}

	if _, err := time.ParseDuration(c.Limits.CallTimeout); err != nil {
		return fmt.Errorf("invalid call_timeout %q: %w", c.Limits.CallTimeout, err)
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir must be set")
	}
	return nil
}

// GetCallTimeout returns the per-call timeout as a duration.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Limits.CallTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetMinInterval returns the minimum delay between calls to one backend.
func (c *Config) GetMinInterval() time.Duration {
	d, err := time.ParseDuration(c.Limits.MinInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetRetryAttempts returns the CompleteWithRetry attempt budget, clamped to [1,2].
func (c *Config) GetRetryAttempts() int {
	switch {
	case c.Limits.RetryAttempts < 1:
		return 1
	case c.Limits.RetryAttempts > 2:
		return 2
	}
	return c.Limits.RetryAttempts
}

// RecordPath returns the path of the live project record file.
func (c *Config) RecordPath() string {
	return c.resolve(c.Paths.RecordFile)
}

// SummaryDBPath returns the path of the sqlite summary store.
func (c *Config) SummaryDBPath() string {
	return c.resolve(c.Paths.SummaryDB)
}

// SnapshotPath returns outputs/<name>_<type>_context_snapshot.json.
func (c *Config) SnapshotPath(projectName, projectType string) string {
	if projectType == "" {
		projectType = "unknown"
	}
	file := fmt.Sprintf("%s_%s_context_snapshot.json", sanitize(projectName), sanitize(projectType))
	return filepath.Join(c.Paths.OutputDir, file)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.OutputDir, p)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}
