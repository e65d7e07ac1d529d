package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything the mirror engine needs for one crawl.
type Config struct {
	URL              string            `yaml:"url" json:"url"`
	Depth            int               `yaml:"depth" json:"depth"`
	Threads          int               `yaml:"threads" json:"threads"`
	Output           string            `yaml:"output" json:"output"`
	DownloadExternal bool              `yaml:"download_external" json:"download_external"`
	RateLimit        float64           `yaml:"rate_limit" json:"rate_limit"`
	MaxRetries       int               `yaml:"max_retries" json:"max_retries"`
	RetryBackoff     Duration          `yaml:"retry_backoff" json:"retry_backoff"`
	Timeout          Duration          `yaml:"timeout" json:"timeout"`
	PerHostDelay     Duration          `yaml:"per_host_delay" json:"per_host_delay"`
	UserAgent        string            `yaml:"user_agent" json:"user_agent"`
	Headers          map[string]string `yaml:"headers" json:"headers,omitempty"`
	ProxyURL         string            `yaml:"proxy_url" json:"proxy_url,omitempty"`
	CompressFiles    bool              `yaml:"compress_files" json:"compress_files"`
	CompressFormat   string            `yaml:"compress_format" json:"compress_format"`
	Auth             AuthConfig        `yaml:"auth" json:"auth"`
	ExcludePatterns  []string          `yaml:"exclude_patterns" json:"exclude_patterns"`
	IncludePatterns  []string          `yaml:"include_patterns" json:"include_patterns"`
	MaxFileSize      int64             `yaml:"max_file_size" json:"max_file_size"`
	VerifySSL        bool              `yaml:"verify_ssl" json:"verify_ssl"`
	Sitemap          SitemapConfig     `yaml:"sitemap" json:"sitemap"`
	DB               SQLConfig         `yaml:"db" json:"db"`
	Logging          LoggingConfig     `yaml:"logging" json:"logging"`
}

// AuthConfig holds HTTP basic authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"password,omitempty"`
}

// Enabled reports whether credentials are configured.
func (a AuthConfig) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// SitemapConfig selects the reports written at the end of a crawl.
type SitemapConfig struct {
	JSON     bool `yaml:"json" json:"json"`
	HTML     bool `yaml:"html" json:"html"`
	Markdown bool `yaml:"markdown" json:"markdown"`
}

// SQLConfig describes the optional database that receives site records.
type SQLConfig struct {
	Driver          string   `yaml:"driver" json:"driver,omitempty"`
	DSN             string   `yaml:"dsn" json:"-"`
	MaxOpenConns    int      `yaml:"max_open_conns" json:"max_open_conns,omitempty"`
	MaxIdleConns    int      `yaml:"max_idle_conns" json:"max_idle_conns,omitempty"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	CreateIfMissing bool     `yaml:"create_if_missing" json:"create_if_missing"`
	AutoMigrate     bool     `yaml:"auto_migrate" json:"auto_migrate"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Structured bool   `yaml:"structured" json:"structured"`
}

const (
	CompressGzip   = "gzip"
	CompressBrotli = "brotli"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Depth:          2,
		Threads:        4,
		Output:         "cloned_site",
		RateLimit:      1.0,
		MaxRetries:     3,
		RetryBackoff:   DurationFrom(500 * time.Millisecond),
		Timeout:        DurationFrom(30 * time.Second),
		UserAgent:      defaultUserAgent,
		Headers:        map[string]string{},
		CompressFiles:  true,
		CompressFormat: CompressGzip,
		MaxFileSize:    100 * 1024 * 1024,
		VerifySSL:      true,
		Sitemap: SitemapConfig{
			JSON: true,
			HTML: true,
		},
		DB: SQLConfig{
			AutoMigrate: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML or JSON configuration file on top of the defaults. The
// result is normalised but not validated, since command line overrides are
// usually applied afterwards.
func Load(path string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("configuration file must be YAML or JSON: %s", path)
	}
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader. JSON input
// is accepted since it is a subset of YAML.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces the invariants the engine relies on.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url must be set")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q missing host", c.URL)
	}
	if c.Depth < 0 {
		return fmt.Errorf("depth must be >= 0 (got %d)", c.Depth)
	}
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be > 0 (got %d)", c.Threads)
	}
	if c.Output == "" {
		return errors.New("output must be set")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0 (got %g)", c.RateLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be > 0 (got %d)", c.MaxFileSize)
	}
	if c.Timeout.Duration < 0 || c.RetryBackoff.Duration < 0 || c.PerHostDelay.Duration < 0 {
		return errors.New("timeout, retry_backoff and per_host_delay must not be negative")
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return errors.New("user_agent must be set")
	}
	if (c.Auth.Username == "") != (c.Auth.Password == "") {
		return errors.New("auth.username and auth.password must be set together")
	}
	if c.CompressFormat != CompressGzip && c.CompressFormat != CompressBrotli {
		return fmt.Errorf("unsupported compress_format %q", c.CompressFormat)
	}
	if _, err := CompilePatterns(c.ExcludePatterns); err != nil {
		return fmt.Errorf("invalid exclude pattern: %w", err)
	}
	if _, err := CompilePatterns(c.IncludePatterns); err != nil {
		return fmt.Errorf("invalid include pattern: %w", err)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}
	if c.DB.Driver != "" {
		switch c.DB.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
		}
		if c.DB.DSN == "" {
			return errors.New("db.dsn must be set when db.driver is configured")
		}
	}
	return nil
}

// Normalise trims and canonicalises values; it is applied by Load and
// should be re-applied after command line overrides.
func (c *Config) Normalise() {
	c.normalise()
}

func (c *Config) normalise() {
	c.URL = strings.TrimSpace(c.URL)
	if c.URL != "" && !strings.Contains(c.URL, "://") {
		c.URL = "https://" + c.URL
	}
	c.Output = strings.TrimSpace(c.Output)
	c.UserAgent = strings.TrimSpace(c.UserAgent)
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)
	c.CompressFormat = strings.ToLower(strings.TrimSpace(c.CompressFormat))
	if c.CompressFormat == "" {
		c.CompressFormat = CompressGzip
	}
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.ExcludePatterns = trimEmpty(c.ExcludePatterns)
	c.IncludePatterns = trimEmpty(c.IncludePatterns)
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
}

// Redacted returns a copy safe to persist or log.
func (c Config) Redacted() Config {
	out := c
	if out.Auth.Password != "" {
		out.Auth.Password = "********"
	}
	out.DB.DSN = ""
	return out
}

// CompilePatterns compiles an ordered list of regular expressions, skipping
// blank entries.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pat, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, pat)
	}
	return compiled, nil
}

func trimEmpty(values []string) []string {
	if len(values) == 0 {
		return values
	}
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		cleaned = append(cleaned, v)
	}
	return cleaned
}
