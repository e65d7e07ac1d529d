package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sitecloner/internal/config"
	"sitecloner/internal/crawler"
	"sitecloner/internal/fsutil"
	"sitecloner/internal/logging"
)

// effectiveConfigFile is written to the output root before crawling.
const effectiveConfigFile = "config.json"

// NewRootCmd creates the sitecloner command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecloner <url>",
		Short: "Mirror a website for offline browsing",
		Long: `sitecloner downloads a website and the resources its pages reference
(stylesheets, scripts, images, fonts and media), rewrites references so the
copy can be browsed offline, and writes a sitemap of everything saved.

Settings are read from --config, ./sitecloner.yaml or
$XDG_CONFIG_HOME/sitecloner/config.yaml; flags given on the command line
override values from the file.

Examples:
  # Mirror two levels of links with eight workers
  sitecloner https://example.com -d 2 -t 8 -o mirror

  # Skip PDFs and include resources hosted on other domains
  sitecloner https://example.com --exclude '\.pdf$' --download-external`,
		Version:       getVersion(),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCloneCmd,
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.IntP("depth", "d", defaults.Depth, "Maximum number of links to follow from the start page")
	flags.IntP("threads", "t", defaults.Threads, "Number of concurrent download workers")
	flags.StringP("output", "o", defaults.Output, "Directory to write the mirror to")
	flags.StringP("config", "c", "", "Configuration file path (YAML or JSON)")
	flags.Bool("no-compress", false, "Do not write compressed copies of text resources")
	flags.Bool("no-verify-ssl", false, "Skip TLS certificate verification")
	flags.Float64("rate-limit", defaults.RateLimit, "Maximum requests per second across all workers (0 disables)")
	flags.String("max-file-size", humanize.IBytes(uint64(defaults.MaxFileSize)), "Largest resource to save, e.g. 100MiB or 5MB")
	flags.String("auth-username", "", "HTTP basic auth username")
	flags.String("auth-password", "", "HTTP basic auth password")
	flags.StringSlice("exclude", nil, "Regular expression of URLs to skip (repeatable)")
	flags.StringSlice("include", nil, "Regular expression of URLs to keep (repeatable)")
	flags.Bool("download-external", false, "Also save resources hosted on other domains")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCloneCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := crawler.NewEngine(*cfg, crawler.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialise engine: %w", err)
	}
	defer engine.Close()

	if err := writeEffectiveConfig(cfg); err != nil {
		return err
	}

	res, err := engine.Run(ctx)
	if res != nil {
		printSummary(cmd.OutOrStdout(), res, cfg.Output)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("crawl interrupted: %w", err)
	case err != nil:
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

// buildConfig layers the configuration file, the positional URL and the
// explicitly set flags over the defaults.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	flags := cmd.Flags()
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	switch path := config.FindConfigFile(configPath); {
	case path != "":
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	case configPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if len(args) == 1 {
		cfg.URL = args[0]
	}
	if err := applyFlags(flags, &cfg); err != nil {
		return nil, err
	}
	if verbose, err := getVerboseFlag(cmd); err == nil && verbose {
		cfg.Logging.Level = "debug"
	}

	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return &cfg, nil
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	if flags.Changed("depth") {
		if cfg.Depth, err = flags.GetInt("depth"); err != nil {
			return err
		}
	}
	if flags.Changed("threads") {
		if cfg.Threads, err = flags.GetInt("threads"); err != nil {
			return err
		}
	}
	if flags.Changed("output") {
		if cfg.Output, err = flags.GetString("output"); err != nil {
			return err
		}
	}
	if flags.Changed("rate-limit") {
		if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
			return err
		}
	}
	if flags.Changed("max-file-size") {
		raw, err := flags.GetString("max-file-size")
		if err != nil {
			return err
		}
		size, err := parseSize(raw)
		if err != nil {
			return err
		}
		cfg.MaxFileSize = size
	}
	if flags.Changed("auth-username") {
		if cfg.Auth.Username, err = flags.GetString("auth-username"); err != nil {
			return err
		}
	}
	if flags.Changed("auth-password") {
		if cfg.Auth.Password, err = flags.GetString("auth-password"); err != nil {
			return err
		}
	}
	if flags.Changed("exclude") {
		if cfg.ExcludePatterns, err = flags.GetStringSlice("exclude"); err != nil {
			return err
		}
	}
	if flags.Changed("include") {
		if cfg.IncludePatterns, err = flags.GetStringSlice("include"); err != nil {
			return err
		}
	}
	if flags.Changed("download-external") {
		if cfg.DownloadExternal, err = flags.GetBool("download-external"); err != nil {
			return err
		}
	}
	if off, _ := flags.GetBool("no-compress"); off {
		cfg.CompressFiles = false
	}
	if off, _ := flags.GetBool("no-verify-ssl"); off {
		cfg.VerifySSL = false
	}
	return nil
}

// parseSize accepts plain byte counts as well as SI and IEC units.
func parseSize(raw string) (int64, error) {
	size, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --max-file-size %q: %w", raw, err)
	}
	if size == 0 || size > math.MaxInt64 {
		return 0, fmt.Errorf("invalid --max-file-size %q: out of range", raw)
	}
	return int64(size), nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) (bool, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return cmd.Root().PersistentFlags().GetBool("verbose")
	}
	return verbose, nil
}

// writeEffectiveConfig records the settings of this run, with secrets
// removed, next to the mirror.
func writeEffectiveConfig(cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg.Redacted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode effective config: %w", err)
	}
	path := filepath.Join(cfg.Output, effectiveConfigFile)
	if err := fsutil.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write effective config: %w", err)
	}
	return nil
}
