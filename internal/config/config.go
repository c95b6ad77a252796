package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Plex    PlexConfig    `mapstructure:"plex"`
	Backend BackendConfig `mapstructure:"backend"`
	TMDB    TMDBConfig    `mapstructure:"tmdb"`
	Trakt   TraktConfig   `mapstructure:"trakt"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	Player  PlayerConfig  `mapstructure:"player"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ClientConfig identifies this install to Plex. Identifier is generated on
// first load and persisted; every X-Plex-* header derives from this section.
type ClientConfig struct {
	Identifier string `mapstructure:"identifier"` // per-install UUID
	Product    string `mapstructure:"product"`
	Version    string `mapstructure:"version"`
	Platform   string `mapstructure:"platform"`
	Device     string `mapstructure:"device"`
	DeviceName string `mapstructure:"device_name"`
}

// PlexConfig holds streaming preferences
type PlexConfig struct {
	Protocol          string `mapstructure:"protocol"`          // "hls" or "dash"
	MaxVideoBitrate   int    `mapstructure:"max_video_bitrate"` // kbps, 0 = no cap
	VideoResolution   string `mapstructure:"video_resolution"`  // e.g. "1920x1080", empty = source
	AllowDirectPlay   bool   `mapstructure:"allow_direct_play"`
	AllowDirectStream bool   `mapstructure:"allow_direct_stream"`
}

// BackendConfig points at the optional progress-persistence backend
type BackendConfig struct {
	URL string `mapstructure:"url"` // empty disables the progress sink
}

// TMDBConfig holds TMDB API access
type TMDBConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// TraktConfig holds Trakt API access
type TraktConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// CacheConfig selects the cache backend
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`     // empty = in-memory
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// StorageConfig locates the persistent key/value store
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"` // empty = memory-only (no persistence)
}

// PlayerConfig holds external media player configuration
type PlayerConfig struct {
	Command   string   `mapstructure:"command"`
	Args      []string `mapstructure:"args"`
	StartFlag string   `mapstructure:"start_flag"` // e.g., "--start=" or "--start-time="
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Product:    "Flixor",
			Version:    "1.0",
			Platform:   runtime.GOOS,
			Device:     runtime.GOOS,
			DeviceName: hostnameOr("flixor"),
		},
		Plex: PlexConfig{
			Protocol:          "hls",
			AllowDirectPlay:   true,
			AllowDirectStream: true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataPath(),
		},
		Player: PlayerConfig{
			Command: "",
			Args:    []string{},
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "flixor", "flixor.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "flixor", "flixor.log")
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "flixor")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "flixor")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "flixor")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "flixor")
	}
}

// LoadConfig loads configuration from file and environment. A missing config
// file is not an error; defaults apply. The client identifier is generated
// and saved back on first load so the install presents a stable identity.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("FLIXOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Client.Identifier == "" {
		cfg.Client.Identifier = uuid.NewString()
		if err := SaveClientIdentifier(cfg.Client.Identifier); err != nil {
			return nil, fmt.Errorf("failed to persist client identifier: %w", err)
		}
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	viper.Set("client.identifier", cfg.Client.Identifier)
	viper.Set("client.product", cfg.Client.Product)
	viper.Set("client.version", cfg.Client.Version)
	viper.Set("client.platform", cfg.Client.Platform)
	viper.Set("client.device", cfg.Client.Device)
	viper.Set("client.device_name", cfg.Client.DeviceName)

	viper.Set("plex.protocol", cfg.Plex.Protocol)
	viper.Set("plex.max_video_bitrate", cfg.Plex.MaxVideoBitrate)
	viper.Set("plex.video_resolution", cfg.Plex.VideoResolution)
	viper.Set("plex.allow_direct_play", cfg.Plex.AllowDirectPlay)
	viper.Set("plex.allow_direct_stream", cfg.Plex.AllowDirectStream)

	viper.Set("backend.url", cfg.Backend.URL)
	viper.Set("tmdb.api_key", cfg.TMDB.APIKey)
	viper.Set("trakt.client_id", cfg.Trakt.ClientID)
	viper.Set("trakt.client_secret", cfg.Trakt.ClientSecret)

	viper.Set("cache.redis_addr", cfg.Cache.RedisAddr)
	viper.Set("cache.redis_password", cfg.Cache.RedisPassword)
	viper.Set("cache.redis_db", cfg.Cache.RedisDB)

	viper.Set("storage.data_dir", cfg.Storage.DataDir)

	viper.Set("player.command", cfg.Player.Command)
	viper.Set("player.args", cfg.Player.Args)
	viper.Set("player.start_flag", cfg.Player.StartFlag)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	return writeConfigFile()
}

// SaveClientIdentifier persists just the per-install identifier
func SaveClientIdentifier(id string) error {
	viper.Set("client.identifier", id)
	return writeConfigFile()
}

func writeConfigFile() error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
