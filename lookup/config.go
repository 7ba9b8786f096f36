package lookup

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures the lookup service. Zero values select production
// defaults via defaults(). Passphrase, SnapshotURL and CacheDir are the
// three optional capabilities: leaving one empty disables the paginated
// source, the snapshot source, or disk persistence respectively — the
// service degrades, it never crashes.
type Config struct {
	// TrackerURL is the scraped primary endpoint (search POST and detail GET).
	TrackerURL string `yaml:"tracker_url"`

	// DataURL is the aggregator's encrypted page base. Pages live at
	// DataURL/Plates_r<rotation>_p<page>.json with metadata at
	// DataURL/Plates_meta.json.
	DataURL string `yaml:"data_url"`

	// SnapshotURL is the legacy bulk snapshot JSON. Empty disables the
	// snapshot source.
	SnapshotURL string `yaml:"snapshot_url"`

	// Passphrase decrypts aggregator pages. Empty disables the paginated
	// source.
	Passphrase string `yaml:"passphrase"`

	// CacheDir holds the persisted cache files. Empty means memory-only.
	CacheDir string `yaml:"cache_dir"`

	UserAgent string `yaml:"user_agent"`

	// Timeout is the per-attempt HTTP timeout. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`

	// RetryDelay is the fixed wait between transient attempts. Default: 2s.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxConcurrentPages caps in-flight page downloads. Default: 10.
	MaxConcurrentPages int `yaml:"max_concurrent_pages"`

	// SnapshotTTL is the snapshot cache refresh interval. Default: 3h.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

func (c *Config) defaults() {
	if c.TrackerURL == "" {
		c.TrackerURL = "https://www.stopice.net/platetracker/index.cgi"
	}
	if c.DataURL == "" {
		c.DataURL = "https://defrostmn.net/data/plates"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; platecheck/1.0)"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxConcurrentPages <= 0 {
		c.MaxConcurrentPages = 10
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 3 * time.Hour
	}
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.defaults()
	return &cfg, nil
}
