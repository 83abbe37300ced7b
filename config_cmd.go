package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/orderdesk/ttlcache/internal/cache"
	"github.com/orderdesk/ttlcache/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# ttlcache configuration
cache:
  # maximum number of entries; the oldest entry is evicted to make room
  max_size: 100
  # time-to-live for sets that omit one (Go duration or milliseconds)
  default_ttl: "5m"
  # how often expired entries are swept (0 disables periodic sweeps)
  cleanup_interval: "60s"

replay:
  # maximum script operations per second (0 runs unthrottled)
  pace: 0
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the ttlcache config file",
	Long:    paragraph(fmt.Sprintf("\n%s the ttlcache config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created. The cache settings are checked after editing.", keyword("Edit"))),
	Example: paragraph("ttlcache config\nttlcache config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("ttlcache", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		cfg, err := checkConfigFile(configFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote config file to: %s (max_size=%d default_ttl=%s cleanup_interval=%s)\n",
			configFile, cfg.MaxSize, cfg.DefaultTTL, cfg.CleanupInterval)
		return nil
	},
}

// ensureConfigFile resolves the config path and writes the default config
// there if nothing exists yet.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	configFile = utils.ExpandPath(configFile)

	if ext := filepath.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable create directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	log.Debug("Wrote default config", "path", configFile)
	return nil
}

// checkConfigFile reads path into a fresh viper instance and builds the cache
// settings from it.
func checkConfigFile(path string) (*cache.Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg, err := cacheConfigFrom(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
