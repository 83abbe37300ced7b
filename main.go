// Package main provides the entry point for the ttlcache CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/orderdesk/ttlcache/internal/cache"
	"github.com/orderdesk/ttlcache/internal/script"
	"github.com/orderdesk/ttlcache/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string

	rootCmd = &cobra.Command{
		Use:   "ttlcache",
		Short: "Bounded TTL cache toolkit",
		Long: paragraph(
			fmt.Sprintf("\nReplay and inspect a %s with per-entry expiry.", keyword("bounded TTL cache")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadExplicitConfig(cmd)
		},
	}
)

// loadExplicitConfig reads the file given with --config, overriding the one
// found in the default places. The config command creates the file itself,
// so a missing file is only an error for other commands.
func loadExplicitConfig(cmd *cobra.Command) error {
	if !cmd.Flags().Changed("config") {
		return nil
	}
	configFile = utils.ExpandPath(configFile)
	if cmd == configCmd {
		return nil
	}

	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	log.Debug("Using configuration file", "path", configFile)
	return nil
}

// cacheConfig builds the store configuration from the global viper instance.
func cacheConfig() (*cache.Config, error) {
	return cacheConfigFrom(viper.GetViper())
}

// cacheConfigFrom builds the store configuration from v. Durations accept Go
// duration strings or integer milliseconds.
func cacheConfigFrom(v *viper.Viper) (*cache.Config, error) {
	cfg := &cache.Config{
		MaxSize: v.GetInt("cache.max_size"),
	}

	ttl, err := script.ParseDuration(v.GetString("cache.default_ttl"))
	if err != nil {
		return nil, fmt.Errorf("cache.default_ttl: %w", err)
	}
	cfg.DefaultTTL = ttl

	interval, err := script.ParseDuration(v.GetString("cache.cleanup_interval"))
	if err != nil {
		return nil, fmt.Errorf("cache.cleanup_interval: %w", err)
	}
	cfg.CleanupInterval = interval

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache config validation failed: %w", err)
	}
	return cfg, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))

	setDefaults(viper.GetViper())

	rootCmd.AddCommand(replayCmd, configCmd, manCmd)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.max_size", cache.DefaultMaxSize)
	v.SetDefault("cache.default_ttl", cache.DefaultTTL.String())
	v.SetDefault("cache.cleanup_interval", cache.DefaultCleanupInterval.String())
	v.SetDefault("replay.pace", 0)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "ttlcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "ttlcache")}, dirs...)
	}

	if c := os.Getenv("TTLCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("ttlcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("ttlcache")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "ttlcache.yml")
}
