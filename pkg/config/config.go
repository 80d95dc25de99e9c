/*
Package config manages TOML config for the popmux core.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/popmux/internal/utils"
)

// Config holds the entire config structure
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Complete CompleteConfig `toml:"complete"`
	Words    WordsConfig    `toml:"words"`
	CLI      CliConfig      `toml:"cli"`
}

// ServerConfig has document server related options.
type ServerConfig struct {
	// ListenAddr is where buffer content is served; port 0 picks a
	// free port so several editor sessions can run side by side.
	ListenAddr string `toml:"listen_addr"`
}

// CompleteConfig holds match processing options.
type CompleteConfig struct {
	// InfoMaxLen is the longest info text still promoted into the
	// popup's menu column.
	InfoMaxLen int `toml:"info_max_len"`
}

// WordsConfig holds built-in buffer-word source options.
type WordsConfig struct {
	Enabled    bool `toml:"enabled"`
	MinWordLen int  `toml:"min_word_len"`
	MaxMatches int  `toml:"max_matches"`
}

// CliConfig holds debug REPL options.
type CliConfig struct {
	DefaultFiletype string `toml:"default_filetype"`
	DefaultLimit    int    `toml:"default_limit"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.GetExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", "popmux")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "popmux")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/popmux/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:0",
		},
		Complete: CompleteConfig{
			InfoMaxLen: 70,
		},
		Words: WordsConfig{
			Enabled:    true,
			MinWordLen: 3,
			MaxMatches: 50,
		},
		CLI: CliConfig{
			DefaultFiletype: "text",
			DefaultLimit:    24,
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse salvages whatever sections a broken TOML file still
// yields, defaulting the rest.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	loose, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(loose, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(loose, "complete"); ok {
		extractCompleteConfig(section, &config.Complete)
	}
	if section, ok := utils.ExtractSection(loose, "words"); ok {
		extractWordsConfig(section, &config.Words)
	}
	if section, ok := utils.ExtractSection(loose, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractString(data, "listen_addr"); ok {
		server.ListenAddr = val
	}
}

func extractCompleteConfig(data map[string]any, complete *CompleteConfig) {
	if val, ok := utils.ExtractInt64(data, "info_max_len"); ok {
		complete.InfoMaxLen = val
	}
}

func extractWordsConfig(data map[string]any, words *WordsConfig) {
	if val, ok := utils.ExtractBool(data, "enabled"); ok {
		words.Enabled = val
	}
	if val, ok := utils.ExtractInt64(data, "min_word_len"); ok {
		words.MinWordLen = val
	}
	if val, ok := utils.ExtractInt64(data, "max_matches"); ok {
		words.MaxMatches = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractString(data, "default_filetype"); ok {
		cli.DefaultFiletype = val
	}
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		cli.DefaultLimit = val
	}
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
