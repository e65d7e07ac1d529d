package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"sitecloner/internal/config"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	if cmd.Use != "sitecloner <url>" || cmd.Short == "" || cmd.Version == "" {
		t.Fatalf("unexpected command metadata: %q %q %q", cmd.Use, cmd.Short, cmd.Version)
	}
	shorthands := map[string]string{"depth": "d", "threads": "t", "output": "o", "config": "c"}
	for name, short := range shorthands {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Fatalf("missing --%s", name)
		}
		if flag.Shorthand != short {
			t.Errorf("--%s shorthand = %q, want %q", name, flag.Shorthand, short)
		}
	}
	if flag := cmd.PersistentFlags().Lookup("verbose"); flag == nil || flag.Shorthand != "v" {
		t.Fatal("expected persistent -v/--verbose")
	}
	if flag := cmd.Flags().Lookup("max-file-size"); flag.DefValue != "100 MiB" {
		t.Fatalf("unexpected max-file-size default %q", flag.DefValue)
	}
}

func parseArgs(t *testing.T, args ...string) (*cobra.Command, []string) {
	t.Helper()
	cmd := NewRootCmd()
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd, cmd.Flags().Args()
}

func TestBuildConfigFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site.yaml")
	content := `
url: https://from-file.example
depth: 5
threads: 2
output: file-output
exclude_patterns: ['\.zip$']
logging:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd, args := parseArgs(t, "-c", path, "-d", "1", "--max-file-size", "5MB", "--no-compress", "-v", "https://example.com")
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if cfg.URL != "https://example.com" {
		t.Errorf("positional url should win, got %q", cfg.URL)
	}
	if cfg.Depth != 1 || cfg.Threads != 2 || cfg.Output != "file-output" {
		t.Errorf("unexpected layering: depth=%d threads=%d output=%q", cfg.Depth, cfg.Threads, cfg.Output)
	}
	if cfg.MaxFileSize != 5_000_000 {
		t.Errorf("max file size = %d", cfg.MaxFileSize)
	}
	if cfg.CompressFiles {
		t.Error("--no-compress not applied")
	}
	if len(cfg.ExcludePatterns) != 1 {
		t.Errorf("file patterns should survive, got %v", cfg.ExcludePatterns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("verbose should force debug, got %q", cfg.Logging.Level)
	}
}

func TestBuildConfigErrors(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "absent.yaml")
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing explicit config", args: []string{"-c", missing, "https://example.com"}},
		{name: "bad size", args: []string{"--max-file-size", "lots", "https://example.com"}},
		{name: "zero threads", args: []string{"-t", "0", "https://example.com"}},
		{name: "bad pattern", args: []string{"--exclude", "(", "https://example.com"}},
		{name: "half credentials", args: []string{"--auth-username", "bob", "https://example.com"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cmd, args := parseArgs(t, tc.args...)
			if _, err := buildConfig(cmd, args); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	cmd, args := parseArgs(t, "-c", missing, "https://example.com")
	if _, err := buildConfig(cmd, args); !errors.Is(err, config.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{"1024": 1024, "2KiB": 2048, "1 MB": 1_000_000}
	for raw, want := range cases {
		got, err := parseSize(raw)
		if err != nil || got != want {
			t.Errorf("parseSize(%q) = %d, %v; want %d", raw, got, err, want)
		}
	}
	if _, err := parseSize("0"); err == nil {
		t.Error("zero should be rejected")
	}
}

func TestRunMirrorsSite(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><img src="/logo.png"><a href="/gone">x</a></body></html>`))
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNG"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	out := filepath.Join(t.TempDir(), "mirror")
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{srv.URL, "-o", out, "-d", "1", "--rate-limit", "0", "--auth-username", "bob", "--auth-password", "hunter2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v\n%s", err, stderr.String())
	}

	for _, name := range []string{"config.json", "sitemap.json", "sitemap.html"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	effective, err := os.ReadFile(filepath.Join(out, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(effective), "hunter2") {
		t.Fatal("config.json must not contain the password")
	}
	if strings.Contains(stderr.String(), "hunter2") {
		t.Fatal("logs must not contain the password")
	}
	summary := stdout.String()
	if !strings.Contains(summary, "Saved 2 resources") || !strings.Contains(summary, "1 failed") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestRunRequiresURL(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-o", t.TempDir()})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without a url")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "sitecloner version ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
