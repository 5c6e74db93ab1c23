// Package conf loads chain-core configuration the way copernicus's conf
// package does: command-line flags (github.com/jessevdk/go-flags) establish
// defaults, then an optional config.yaml loaded via github.com/spf13/viper
// overrides them.
package conf

import (
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
	"github.com/spf13/viper"
)

// Config holds every tunable the chain core and its LevelDB-backed storage
// need at startup.
type Config struct {
	DataDir        string `short:"b" long:"datadir" description:"directory to store block and chain-state data"`
	LevelDBCache   int    `long:"dbcache" description:"LevelDB in-memory cache size, in megabytes"`
	MaxOrphanBlocks int   `long:"maxorphanblocks" description:"maximum number of orphan blocks kept in memory"`
	MaxOrphanTxs    int   `long:"maxorphantx" description:"maximum number of orphan transactions kept in memory"`
	OrphanExpiry    int64 `long:"orphanexpiry" description:"seconds an orphan entry may sit unresolved before eviction"`
	LogLevel        string `short:"d" long:"debuglevel" description:"logging level"`
}

// Default returns the configuration a freshly-initialized node starts with.
func Default() *Config {
	return &Config{
		DataDir:         filepath.Join(".", "chaincore-data"),
		LevelDBCache:    64,
		MaxOrphanBlocks: 750,
		MaxOrphanTxs:    100,
		OrphanExpiry:    20 * 60,
		LogLevel:        "info",
	}
}

// ParseFlags overlays command-line flags onto Default(), matching the
// teacher's go-flags-first precedence.
func ParseFlags(args []string) (*Config, error) {
	cfg := Default()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadYAMLOverride reads a "config" file (yaml/json/toml, viper's usual
// search) from dir and overlays any keys it sets onto cfg, mirroring the
// teacher's NewConfig.
func LoadYAMLOverride(cfg *Config, dir string) error {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return nil
		}
		return err
	}

	if v.IsSet("datadir") {
		cfg.DataDir = v.GetString("datadir")
	}
	if v.IsSet("dbcache") {
		cfg.LevelDBCache = v.GetInt("dbcache")
	}
	if v.IsSet("maxorphanblocks") {
		cfg.MaxOrphanBlocks = v.GetInt("maxorphanblocks")
	}
	if v.IsSet("maxorphantx") {
		cfg.MaxOrphanTxs = v.GetInt("maxorphantx")
	}
	if v.IsSet("orphanexpiry") {
		cfg.OrphanExpiry = v.GetInt64("orphanexpiry")
	}
	if v.IsSet("debuglevel") {
		cfg.LogLevel = v.GetString("debuglevel")
	}
	return nil
}
