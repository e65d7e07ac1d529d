package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the per-user configuration directory.
const AppName = "sitecloner"

// ErrConfigNotFound is returned when a configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

var localConfigNames = []string{"sitecloner.yaml", "sitecloner.yml", "sitecloner.json"}

// FindConfigFile returns the configuration file to load:
//  1. configPath, when given and present
//  2. sitecloner.{yaml,yml,json} in the working directory
//  3. config.yaml below $XDG_CONFIG_HOME/sitecloner
//
// An empty string means no file was found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}
	if cwd, err := os.Getwd(); err == nil {
		for _, name := range localConfigNames {
			candidate := filepath.Join(cwd, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	candidate := filepath.Join(UserConfigDir(), "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// UserConfigDir is the per-user configuration directory.
func UserConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}
