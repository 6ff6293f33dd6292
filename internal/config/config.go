package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

const (
	EnvAPIKey   = "YOUTUBE_API_KEY"
	EnvLogLevel = "YTSCRIBE_LOG_LEVEL"
	EnvConfig   = "YTSCRIBE_CONFIG"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Name        string        `yaml:"name"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

type YouTubeConfig struct {
	APIKey    string        `yaml:"api_key"`
	APIBase   string        `yaml:"api_base"`
	WebBase   string        `yaml:"web_base"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
}

// ClientConfig describes how the CLI spawns the server.
type ClientConfig struct {
	Command          string        `yaml:"command"`
	Args             []string      `yaml:"args"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

type Config struct {
	Log     LogConfig      `yaml:"log"`
	Server  ServerConfig   `yaml:"server"`
	YouTube YouTubeConfig  `yaml:"youtube"`
	Extract extract.Config `yaml:"extract"`
	Cache   CacheConfig    `yaml:"cache"`
	Client  ClientConfig   `yaml:"client"`
}

func Dir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ytscribe")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ResolvePath picks path, then $YTSCRIBE_CONFIG, then DefaultPath.
func ResolvePath(path string) string {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath()
	}
	return path
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Name:        "ytscribe MCP Server",
			ToolTimeout: 4 * time.Minute,
		},
		YouTube: YouTubeConfig{
			APIBase:   youtube.DefaultAPIBase,
			WebBase:   youtube.DefaultWebBase,
			Timeout:   youtube.DefaultTimeout,
			UserAgent: youtube.DefaultUserAgent,
		},
		Extract: extract.DefaultConfig(),
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(Dir(), "transcripts.db"),
			TTL:     7 * 24 * time.Hour,
		},
		Client: ClientConfig{
			Command:          "ytscribe-server",
			HandshakeTimeout: 30 * time.Second,
			RequestTimeout:   5 * time.Minute,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error. path is resolved with ResolvePath.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.YouTube.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Server.ToolTimeout < 0 {
		errs = append(errs, errors.New("server.tool_timeout must not be negative"))
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is required when the cache is enabled"))
	}
	if len(c.Extract.Strategies) == 0 {
		errs = append(errs, errors.New("extract.strategies must name at least one strategy"))
	}

	return errors.Join(errs...)
}

func (c *Config) EnsureDirectories() error {
	if !c.Cache.Enabled {
		return nil
	}
	return os.MkdirAll(filepath.Dir(c.Cache.Path), 0o700)
}
