package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPATEnv is the environment variable consulted for the personal
// access token when the config does not name one. The token itself never
// lives in a config file.
const DefaultPATEnv = "ADO_PAT"

// Config holds application configuration.
type Config struct {
	// Organization and Project identify the work-tracking target.
	Organization string `json:"organization,omitempty"`
	Project      string `json:"project,omitempty"`

	// PATEnv names the environment variable holding the personal access
	// token. Defaults to ADO_PAT.
	PATEnv string `json:"pat_env,omitempty"`

	// HandleStore selects the query-handle backend: "memory" (default) or
	// "sqlite". The sqlite backend survives restarts but offers the same
	// expiry semantics; nothing depends on its durability.
	HandleStore string `json:"handle_store,omitempty"`

	// HandleTTLSeconds is the default lifetime of a query handle.
	HandleTTLSeconds int `json:"handle_ttl_seconds,omitempty"`

	// SweepIntervalSeconds controls the background expiry sweep.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty"`

	// BatchSize bounds concurrent in-flight mutation calls per batch.
	BatchSize int `json:"batch_size,omitempty"`

	// MaxQueryResults caps how many items one query may snapshot.
	MaxQueryResults int `json:"max_query_results,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names to disable entirely.
	// Known types: "workitem", "handle", "bulk".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PATEnv:               DefaultPATEnv,
		HandleStore:          "memory",
		HandleTTLSeconds:     3600,
		SweepIntervalSeconds: 300,
		BatchSize:            10,
		MaxQueryResults:      200,
	}
}

// HandleTTL returns the configured handle lifetime as a duration.
func (c *Config) HandleTTL() time.Duration {
	return time.Duration(c.HandleTTLSeconds) * time.Second
}

// SweepInterval returns the configured sweep interval as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// PAT reads the personal access token from the configured environment
// variable. Empty when unset.
func (c *Config) PAT() string {
	env := c.PATEnv
	if env == "" {
		env = DefaultPATEnv
	}
	return os.Getenv(env)
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.adomcp.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from both global (~/.adomcp) and repo
// (.adomcp) directories. Repo config is found by walking upward from
// startDir; it takes precedence for scalar values, arrays are merged.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest
// .adomcp/config.json. Returns empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".adomcp", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Organization = overlayString(base.Organization, overlay.Organization)
	result.Project = overlayString(base.Project, overlay.Project)
	result.PATEnv = overlayString(base.PATEnv, overlay.PATEnv)
	result.HandleStore = overlayString(base.HandleStore, overlay.HandleStore)

	result.HandleTTLSeconds = overlayInt(base.HandleTTLSeconds, overlay.HandleTTLSeconds)
	result.SweepIntervalSeconds = overlayInt(base.SweepIntervalSeconds, overlay.SweepIntervalSeconds)
	result.BatchSize = overlayInt(base.BatchSize, overlay.BatchSize)
	result.MaxQueryResults = overlayInt(base.MaxQueryResults, overlay.MaxQueryResults)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func overlayString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func overlayInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
