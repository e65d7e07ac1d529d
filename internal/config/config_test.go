package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderYAML(t *testing.T) {
	t.Parallel()

	input := `
url: example.com
depth: 3
threads: 8
output: ./mirror
rate_limit: 2.5
retry_backoff: 250ms
timeout: 10
compress_format: BROTLI
exclude_patterns:
  - "\\.pdf$"
  - ""
auth:
  username: alice
  password: secret
logging:
  level: DEBUG
`
	cfg, err := LoadFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.URL != "https://example.com" {
		t.Fatalf("expected scheme to be added, got %q", cfg.URL)
	}
	if cfg.Depth != 3 || cfg.Threads != 8 {
		t.Fatalf("unexpected depth/threads: %d/%d", cfg.Depth, cfg.Threads)
	}
	if cfg.Timeout.Duration != 10*time.Second {
		t.Fatalf("numeric timeout should be seconds, got %v", cfg.Timeout.Duration)
	}
	if cfg.RetryBackoff.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected retry backoff %v", cfg.RetryBackoff.Duration)
	}
	if cfg.CompressFormat != CompressBrotli {
		t.Fatalf("compress format should be lowered, got %q", cfg.CompressFormat)
	}
	if len(cfg.ExcludePatterns) != 1 {
		t.Fatalf("blank patterns should be dropped, got %v", cfg.ExcludePatterns)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level should be lowered, got %q", cfg.Logging.Level)
	}
	if !cfg.Sitemap.JSON || cfg.MaxFileSize != 100*1024*1024 {
		t.Fatal("defaults should survive partial files")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site.json")
	body := `{"url": "http://example.com", "depth": 1, "timeout": 2.5, "sitemap": {"json": true, "html": false, "markdown": true}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Depth != 1 || cfg.Timeout.Duration != 2500*time.Millisecond {
		t.Fatalf("unexpected values: depth=%d timeout=%v", cfg.Depth, cfg.Timeout.Duration)
	}
	if cfg.Sitemap.HTML || !cfg.Sitemap.Markdown {
		t.Fatalf("unexpected sitemap selection: %+v", cfg.Sitemap)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := LoadFromReader(strings.NewReader("url: https://example.com\nmystery: 1\n")); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadRejectsExtension(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "site.toml")); err == nil {
		t.Fatal("expected unsupported extension to fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadEmptyInputUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Threads != Default().Threads {
		t.Fatalf("expected default threads, got %d", cfg.Threads)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Default()
	valid.URL = "https://example.com"

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.URL = "" }},
		{"bad scheme", func(c *Config) { c.URL = "ftp://example.com" }},
		{"negative depth", func(c *Config) { c.Depth = -1 }},
		{"zero threads", func(c *Config) { c.Threads = 0 }},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }},
		{"zero max size", func(c *Config) { c.MaxFileSize = 0 }},
		{"half auth", func(c *Config) { c.Auth.Username = "alice" }},
		{"bad format", func(c *Config) { c.CompressFormat = "zstd" }},
		{"bad pattern", func(c *Config) { c.IncludePatterns = []string{"("} }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"db without dsn", func(c *Config) { c.DB.Driver = "sqlite" }},
		{"unknown driver", func(c *Config) { c.DB.Driver = "mysql"; c.DB.DSN = "x" }},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Auth = AuthConfig{Username: "alice", Password: "hunter2"}
	cfg.DB.DSN = "postgres://user:pw@localhost/db"

	red := cfg.Redacted()
	if red.Auth.Password == "hunter2" || red.DB.DSN != "" {
		t.Fatalf("secrets leaked: %+v", red)
	}
	if cfg.Auth.Password != "hunter2" {
		t.Fatal("Redacted must not modify the receiver")
	}
}

func TestFindConfigFileExplicit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := os.WriteFile(path, []byte("depth: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(path); got != path {
		t.Fatalf("expected %q, got %q", path, got)
	}
	if got := FindConfigFile(path + ".missing"); got != "" {
		t.Fatalf("expected empty result for missing file, got %q", got)
	}
}

func TestDurationNumericAndString(t *testing.T) {
	t.Parallel()

	var d Duration
	if err := d.UnmarshalJSON([]byte(`1.5`)); err != nil || d.Duration != 1500*time.Millisecond {
		t.Fatalf("numeric json: %v %v", d.Duration, err)
	}
	if err := d.UnmarshalJSON([]byte(`"2m"`)); err != nil || d.Duration != 2*time.Minute {
		t.Fatalf("string json: %v %v", d.Duration, err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatal("expected invalid duration to fail")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "configs", "sitecloner.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.RetryBackoff.Duration != 500*time.Millisecond || cfg.MaxFileSize != 100*1024*1024 {
		t.Fatalf("unexpected example values: %+v", cfg)
	}
}
