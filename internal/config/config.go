// Package config handles configuration loading and management for FluxFuzzer.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for FluxFuzzer
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Engine   EngineConfig   `yaml:"engine"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	State    StateConfig    `yaml:"state"`
	Output   OutputConfig   `yaml:"output"`
	AFL      AFLConfig      `yaml:"afl"`
}

// AFLConfig configures the coverage-guided fuzz subcommand.
type AFLConfig struct {
	InputDir      string        `yaml:"input_dir"`
	OutputDir     string        `yaml:"output_dir"`
	DictionaryPath string       `yaml:"dictionary_path"`
	Schedule      string        `yaml:"schedule"` // fast, coe, explore, lin, quad, exploit
	Timeout       time.Duration `yaml:"timeout"`
	MemLimitMB    int           `yaml:"mem_limit_mb"`
	BitmapSize    int           `yaml:"bitmap_size"`
	DeterministicStages bool    `yaml:"deterministic_stages"`
	IgnoreFinds   bool          `yaml:"ignore_finds"`
	MasterInstance string       `yaml:"master_instance"` // -M name, empty if not a parallel master
	SlaveInstance  string       `yaml:"slave_instance"`  // -S name, empty if not a parallel slave
	SyncDir        string       `yaml:"sync_dir"`
}

// TargetConfig defines the target configuration
type TargetConfig struct {
	URL       string            `yaml:"url"`
	Method    string            `yaml:"method"`
	Headers   map[string]string `yaml:"headers"`
	Body      string            `yaml:"body"`
	Wordlists []string          `yaml:"wordlists"`
}

// EngineConfig defines the request engine configuration
type EngineConfig struct {
	Workers    int           `yaml:"workers"`
	RPS        int           `yaml:"rps"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	UserAgent  string        `yaml:"user_agent"`
}

// AnalyzerConfig defines the analyzer configuration
type AnalyzerConfig struct {
	StructureThreshold int     `yaml:"structure_threshold"`
	TimeThreshold      float64 `yaml:"time_threshold"`
	BaselineSamples    int     `yaml:"baseline_samples"`
	EnableSimHash      bool    `yaml:"enable_simhash"`
	EnableTLSH         bool    `yaml:"enable_tlsh"`
}

// StateConfig defines the state management configuration
type StateConfig struct {
	EnableExtraction bool     `yaml:"enable_extraction"`
	ExtractPatterns  []string `yaml:"extract_patterns"`
	PoolTTL          int      `yaml:"pool_ttl"`
}

// OutputConfig defines the output configuration
type OutputConfig struct {
	Format       string `yaml:"format"`        // json, html, markdown
	OutputFile   string `yaml:"output_file"`
	Verbose      bool   `yaml:"verbose"`
	EnableTUI    bool   `yaml:"enable_tui"`
	QuietMode    bool   `yaml:"quiet_mode"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Method: "GET",
			Headers: map[string]string{
				"User-Agent": "FluxFuzzer/1.0",
			},
		},
		Engine: EngineConfig{
			Workers:    50,
			RPS:        100,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			UserAgent:  "FluxFuzzer/1.0",
		},
		Analyzer: AnalyzerConfig{
			StructureThreshold: 15,
			TimeThreshold:      2.5,
			BaselineSamples:    10,
			EnableSimHash:      true,
			EnableTLSH:         false,
		},
		State: StateConfig{
			EnableExtraction: true,
			PoolTTL:          3600,
		},
		Output: OutputConfig{
			Format:    "json",
			EnableTUI: true,
		},
		AFL: AFLConfig{
			Schedule:            "fast",
			Timeout:             1 * time.Second,
			MemLimitMB:          256,
			BitmapSize:          65536,
			DeterministicStages: true,
		},
	}
}

// Load reads and parses a YAML config file, starting from DefaultConfig so
// any field the file omits keeps its default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
