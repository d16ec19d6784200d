package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Search   SearchConfig   `mapstructure:"search"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Indexers IndexersConfig `mapstructure:"indexers"`
	Clients  ClientsConfig  `mapstructure:"clients"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// SearchConfig holds pack-aware search strategy tuning. The three
// thresholds are missing-coverage percentages (0-100) that gate each
// pack phase.
type SearchConfig struct {
	// Missing percentage of the whole series required to try a
	// complete-series pack.
	CompleteSeriesThreshold int `mapstructure:"complete_series_threshold"`
	// Combined missing percentage required for a consecutive-season
	// range to be searched as one multi-season pack.
	MultiSeasonThreshold int `mapstructure:"multi_season_threshold"`
	// Missing percentage of a single season required to try a
	// season pack before falling back to episode searches.
	SingleSeasonThreshold int `mapstructure:"single_season_threshold"`
	// Delay between per-episode searches, in milliseconds.
	EpisodeDelayMs int `mapstructure:"episode_delay_ms"`
	// Per-index search timeout, in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Max parallel enrichment workers when scoring results.
	EnrichWorkers int `mapstructure:"enrich_workers"`
	// Quality profile used by the scheduled missing-content sweep.
	Profile string `mapstructure:"profile"`
	// Minutes between scheduled missing-content sweeps.
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

// IndexersConfig configures the searchable indexes.
type IndexersConfig struct {
	// DefinitionsDir is scanned for YAML index definitions at startup.
	DefinitionsDir string `mapstructure:"definitions_dir"`
	// Instances bind definitions to user configuration. An instance
	// whose definition is not found in DefinitionsDir is skipped with
	// a warning.
	Instances []IndexerInstance `mapstructure:"instances"`
}

// IndexerInstance is one configured index.
type IndexerInstance struct {
	Definition string            `mapstructure:"definition"`
	Name       string            `mapstructure:"name"`
	Priority   int               `mapstructure:"priority"`
	Enabled    bool              `mapstructure:"enabled"`
	Settings   map[string]string `mapstructure:"settings"`
}

// ClientsConfig configures download clients, one per protocol.
type ClientsConfig struct {
	Transmission TransmissionClientConfig `mapstructure:"transmission"`
	Sabnzbd      SabnzbdClientConfig      `mapstructure:"sabnzbd"`
}

// TransmissionClientConfig configures the torrent client.
type TransmissionClientConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	UseSSL      bool   `mapstructure:"use_ssl"`
	DownloadDir string `mapstructure:"download_dir"`
	// AddPaused submits new torrents paused.
	AddPaused bool `mapstructure:"add_paused"`
	// SeedRatioLimit stops seeding at the given ratio when positive.
	SeedRatioLimit float64 `mapstructure:"seed_ratio_limit"`
}

// SabnzbdClientConfig configures the usenet client.
type SabnzbdClientConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"api_key"`
	UseSSL  bool   `mapstructure:"use_ssl"`
	// AddPaused submits new jobs at paused priority.
	AddPaused bool `mapstructure:"add_paused"`
}

// MetadataConfig holds canonical metadata lookup configuration.
type MetadataConfig struct {
	// External-ID lookup cache TTL, in hours.
	CacheTTLHours int `mapstructure:"cache_ttl_hours"`

	TMDB TMDBConfig `mapstructure:"tmdb"`
}

// TMDBConfig holds TMDB API client configuration.
type TMDBConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// Request timeout, in seconds.
	Timeout int `mapstructure:"timeout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8484,
		},
		Database: DatabaseConfig{
			Path: "./data/cinephage.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Search: SearchConfig{
			CompleteSeriesThreshold: 60,
			MultiSeasonThreshold:    50,
			SingleSeasonThreshold:   50,
			EpisodeDelayMs:          500,
			TimeoutSeconds:          30,
			EnrichWorkers:           8,
			Profile:                 "any",
			SweepIntervalMinutes:    60,
		},
		Indexers: IndexersConfig{
			DefinitionsDir: "./definitions",
		},
		Metadata: MetadataConfig{
			CacheTTLHours: 24,
			TMDB: TMDBConfig{
				APIKey:  EmbeddedTMDBKey,
				BaseURL: "https://api.themoviedb.org/3",
				Timeout: 30,
			},
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.cinephage")
	}

	v.SetEnvPrefix("CINEPHAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; defaults + env vars are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8484)

	v.SetDefault("database.path", "./data/cinephage.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("search.complete_series_threshold", 60)
	v.SetDefault("search.multi_season_threshold", 50)
	v.SetDefault("search.single_season_threshold", 50)
	v.SetDefault("search.episode_delay_ms", 500)
	v.SetDefault("search.timeout_seconds", 30)
	v.SetDefault("search.enrich_workers", 8)
	v.SetDefault("search.profile", "any")
	v.SetDefault("search.sweep_interval_minutes", 60)

	v.SetDefault("indexers.definitions_dir", "./definitions")

	v.SetDefault("clients.transmission.enabled", false)
	v.SetDefault("clients.transmission.host", "localhost")
	v.SetDefault("clients.transmission.port", 9091)
	v.SetDefault("clients.transmission.add_paused", false)
	v.SetDefault("clients.transmission.seed_ratio_limit", 0.0)
	v.SetDefault("clients.sabnzbd.add_paused", false)
	v.SetDefault("clients.sabnzbd.enabled", false)
	v.SetDefault("clients.sabnzbd.host", "localhost")
	v.SetDefault("clients.sabnzbd.port", 8080)

	v.SetDefault("metadata.cache_ttl_hours", 24)
	v.SetDefault("metadata.tmdb.api_key", EmbeddedTMDBKey)
	v.SetDefault("metadata.tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("metadata.tmdb.timeout", 30)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
