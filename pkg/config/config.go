package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the control plane configuration
type Config struct {
	DataDir    string `yaml:"dataDir"`
	Kubeconfig string `yaml:"kubeconfig"`
	APIAddr    string `yaml:"apiAddr"`

	// AllowedOrigins are browser origins accepted by the API besides localhost
	AllowedOrigins []string `yaml:"allowedOrigins"`

	Log      LogConfig      `yaml:"log"`
	Registry RegistryConfig `yaml:"registry"`
	Rollout  RolloutConfig  `yaml:"rollout"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RegistryConfig holds the credentials stamped into image pull secrets
type RegistryConfig struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// RolloutConfig holds the readiness and scaling poll settings
type RolloutConfig struct {
	CreatingInterval time.Duration `yaml:"creatingInterval"`
	CreatingTimeout  time.Duration `yaml:"creatingTimeout"`
	RunningInterval  time.Duration `yaml:"runningInterval"`
	RunningTimeout   time.Duration `yaml:"runningTimeout"`
	ScaleInterval    time.Duration `yaml:"scaleInterval"`
	ScaleTimeout     time.Duration `yaml:"scaleTimeout"`
	LogTailLines     int64         `yaml:"logTailLines"`

	// StaleAfter is how long a release may sit in_progress before the
	// reconciler fails it. It must exceed the three waits combined.
	StaleAfter time.Duration `yaml:"staleAfter"`

	// ProbeEndpoint GETs the release endpoint once it is active
	ProbeEndpoint bool `yaml:"probeEndpoint"`
	ProbeAttempts int  `yaml:"probeAttempts"`
}

// AnalyzerConfig configures the optional AI log analyzer
type AnalyzerConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ArchiveConfig configures the optional S3 log archive
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Default returns a Config with the fixed rollout timings
func Default() *Config {
	return &Config{
		DataDir: "./wharf-data",
		APIAddr: "127.0.0.1:8080",
		Log: LogConfig{
			Level: "info",
		},
		Rollout: RolloutConfig{
			CreatingInterval: 10 * time.Second,
			CreatingTimeout:  300 * time.Second,
			RunningInterval:  5 * time.Second,
			RunningTimeout:   300 * time.Second,
			ScaleInterval:    5 * time.Second,
			ScaleTimeout:     300 * time.Second,
			LogTailLines:     500,
			StaleAfter:       30 * time.Minute,
			ProbeAttempts:    3,
		},
		Analyzer: AnalyzerConfig{
			Timeout: 60 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies WHARF_*
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that poll settings are usable
func (c *Config) Validate() error {
	r := c.Rollout
	for name, d := range map[string]time.Duration{
		"creatingInterval": r.CreatingInterval,
		"creatingTimeout":  r.CreatingTimeout,
		"runningInterval":  r.RunningInterval,
		"runningTimeout":   r.RunningTimeout,
		"scaleInterval":    r.ScaleInterval,
		"scaleTimeout":     r.ScaleTimeout,
		"staleAfter":       r.StaleAfter,
	} {
		if d <= 0 {
			return fmt.Errorf("rollout.%s must be positive", name)
		}
	}
	if longest := r.CreatingTimeout + r.RunningTimeout + r.ScaleTimeout; longest >= r.StaleAfter {
		return fmt.Errorf("rollout.staleAfter (%s) must exceed the combined timeouts (%s)", r.StaleAfter, longest)
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.endpoint is set")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DataDir = envOr("WHARF_DATA_DIR", cfg.DataDir)
	cfg.Kubeconfig = envOr("WHARF_KUBECONFIG", cfg.Kubeconfig)
	cfg.APIAddr = envOr("WHARF_API_ADDR", cfg.APIAddr)
	if v := os.Getenv("WHARF_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.Log.Level = envOr("WHARF_LOG_LEVEL", cfg.Log.Level)
	if v, err := strconv.ParseBool(os.Getenv("WHARF_LOG_JSON")); err == nil {
		cfg.Log.JSON = v
	}
	if v, err := strconv.ParseBool(os.Getenv("WHARF_PROBE_ENDPOINT")); err == nil {
		cfg.Rollout.ProbeEndpoint = v
	}
	cfg.Registry.Server = envOr("WHARF_REGISTRY_SERVER", cfg.Registry.Server)
	cfg.Registry.Username = envOr("WHARF_REGISTRY_USERNAME", cfg.Registry.Username)
	cfg.Registry.Password = envOr("WHARF_REGISTRY_PASSWORD", cfg.Registry.Password)
	cfg.Analyzer.Endpoint = envOr("WHARF_ANALYZER_ENDPOINT", cfg.Analyzer.Endpoint)
	cfg.Analyzer.APIKey = envOr("WHARF_ANALYZER_API_KEY", cfg.Analyzer.APIKey)
	cfg.Archive.Endpoint = envOr("WHARF_ARCHIVE_ENDPOINT", cfg.Archive.Endpoint)
	cfg.Archive.AccessKey = envOr("WHARF_ARCHIVE_ACCESS_KEY", cfg.Archive.AccessKey)
	cfg.Archive.SecretKey = envOr("WHARF_ARCHIVE_SECRET_KEY", cfg.Archive.SecretKey)
	cfg.Archive.Bucket = envOr("WHARF_ARCHIVE_BUCKET", cfg.Archive.Bucket)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
