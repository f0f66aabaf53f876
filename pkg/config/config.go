// Package config resolves where the registries and proposal logs live and how
// the tools around them behave.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/binnyhq/part-namer/pkg/filelock"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PARTNAMER"

// Keys, as used in the config file and after EnvPrefix in the environment.
const (
	KeyPrefixesFile          = "prefixes_file"
	KeyMaterialsFile         = "materials_file"
	KeyPrefixProposalsFile   = "prefix_proposals_file"
	KeyMaterialProposalsFile = "material_proposals_file"
	KeyLockTimeout           = "lock_timeout"
	KeyAuditDB               = "audit_db"
	KeyListen                = "listen"
	KeyCacheTTL              = "cache_ttl"
	KeyCacheSize             = "cache_size"
)

// legacyEnv maps keys to the variables older installations set.
var legacyEnv = map[string]string{
	KeyPrefixesFile:  "BINNY_PREFIXES_FILE",
	KeyMaterialsFile: "BINNY_MATERIALS_FILE",
}

// Config holds all configuration options.
type Config struct {
	PrefixesFile          string        `mapstructure:"prefixes_file" json:"prefixes_file" yaml:"prefixes_file"`
	MaterialsFile         string        `mapstructure:"materials_file" json:"materials_file" yaml:"materials_file"`
	PrefixProposalsFile   string        `mapstructure:"prefix_proposals_file" json:"prefix_proposals_file" yaml:"prefix_proposals_file"`
	MaterialProposalsFile string        `mapstructure:"material_proposals_file" json:"material_proposals_file" yaml:"material_proposals_file"`
	LockTimeout           time.Duration `mapstructure:"lock_timeout" json:"lock_timeout" yaml:"lock_timeout"`
	AuditDB               string        `mapstructure:"audit_db" json:"audit_db" yaml:"audit_db"` // empty disables the audit trail
	Listen                string        `mapstructure:"listen" json:"listen" yaml:"listen"`

	// Server registry read cache. A zero TTL disables it.
	CacheTTL  time.Duration `mapstructure:"cache_ttl" json:"cache_ttl" yaml:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size" json:"cache_size" yaml:"cache_size"`
}

// DefaultDir returns $XDG_CONFIG_HOME/binny/part_namer, falling back to
// ~/.config/binny/part_namer.
func DefaultDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "binny", "part_namer")
}

// Defaults returns the configuration used when nothing overrides it.
// Proposal logs are left empty here; Load places them next to the prefixes
// file.
func Defaults() Config {
	dir := DefaultDir()
	return Config{
		PrefixesFile:  filepath.Join(dir, "prefixes.md"),
		MaterialsFile: filepath.Join(dir, "materials.md"),
		LockTimeout:   filelock.DefaultTimeout,
		Listen:        ":8085",
		CacheTTL:      30 * time.Second,
		CacheSize:     256,
	}
}

// Load reads configuration with this precedence, highest first: flags bound
// to v by the caller, PARTNAMER_* variables, the legacy BINNY_* variables,
// the config file, defaults. configFile may be empty, in which case
// config.yaml in DefaultDir is read if present.
func Load(v *viper.Viper, configFile string) (Config, error) {
	defaults := Defaults()
	v.SetDefault(KeyPrefixesFile, defaults.PrefixesFile)
	v.SetDefault(KeyMaterialsFile, defaults.MaterialsFile)
	v.SetDefault(KeyPrefixProposalsFile, "")
	v.SetDefault(KeyMaterialProposalsFile, "")
	v.SetDefault(KeyLockTimeout, defaults.LockTimeout)
	v.SetDefault(KeyAuditDB, "")
	v.SetDefault(KeyListen, defaults.Listen)
	v.SetDefault(KeyCacheTTL, defaults.CacheTTL)
	v.SetDefault(KeyCacheSize, defaults.CacheSize)

	for _, key := range []string{
		KeyPrefixesFile, KeyMaterialsFile, KeyPrefixProposalsFile,
		KeyMaterialProposalsFile, KeyLockTimeout, KeyAuditDB, KeyListen,
		KeyCacheTTL, KeyCacheSize,
	} {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(names...); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillProposalPaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillProposalPaths puts unset proposal logs next to the prefixes file.
func (c *Config) fillProposalPaths() {
	dir := filepath.Dir(c.PrefixesFile)
	if c.PrefixProposalsFile == "" {
		c.PrefixProposalsFile = filepath.Join(dir, "proposals_prefix.jsonl")
	}
	if c.MaterialProposalsFile == "" {
		c.MaterialProposalsFile = filepath.Join(dir, "proposals_material.jsonl")
	}
}

// Validate rejects empty paths, a non-positive lock timeout and negative
// cache settings.
func (c Config) Validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("config: %s must be positive, got %s", KeyLockTimeout, c.LockTimeout)
	}
	if c.CacheTTL < 0 || c.CacheSize < 0 {
		return fmt.Errorf("config: %s and %s must not be negative", KeyCacheTTL, KeyCacheSize)
	}
	return c.Workflow().Validate()
}

// Workflow returns the engine configuration.
func (c Config) Workflow() workflow.Config {
	return workflow.Config{
		PrefixesFile:          c.PrefixesFile,
		MaterialsFile:         c.MaterialsFile,
		PrefixProposalsFile:   c.PrefixProposalsFile,
		MaterialProposalsFile: c.MaterialProposalsFile,
		LockTimeout:           c.LockTimeout,
	}
}
