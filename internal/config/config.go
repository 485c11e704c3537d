package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	AOI      AOIConfig      `yaml:"aoi" mapstructure:"aoi"`
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	EOG      EOGConfig      `yaml:"eog" mapstructure:"eog"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Features FeaturesConfig `yaml:"features" mapstructure:"features"`
	PostGIS  PostGISConfig  `yaml:"postgis" mapstructure:"postgis"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AOIConfig points at the pre-generated tile grid.
type AOIConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ModelConfig points at the fitted model artifact.
type ModelConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OutputConfig controls what a rollout writes.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Name    string   `yaml:"name" mapstructure:"name"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
	Plots   bool     `yaml:"plots" mapstructure:"plots"`
	HTML    bool     `yaml:"html" mapstructure:"html"`
	Report  bool     `yaml:"report" mapstructure:"report"`
}

// CacheConfig configures the local download cache.
type CacheConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// EOGConfig holds Earth Observation Group credentials and token settings.
type EOGConfig struct {
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	TokenPath    string `yaml:"token_path" mapstructure:"token_path"`
}

// SourcesConfig locates the raw datasets used for feature generation.
type SourcesConfig struct {
	OSM         OSMConfig         `yaml:"osm" mapstructure:"osm"`
	Ookla       OoklaConfig       `yaml:"ookla" mapstructure:"ookla"`
	Nightlights NightlightsConfig `yaml:"nightlights" mapstructure:"nightlights"`
}

// OSMConfig locates the Geofabrik extract. Explicit paths win over Region.
type OSMConfig struct {
	Region    string `yaml:"region" mapstructure:"region"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	POIsPath  string `yaml:"pois_path" mapstructure:"pois_path"`
	RoadsPath string `yaml:"roads_path" mapstructure:"roads_path"`
}

// OoklaConfig locates the Ookla open-data performance tiles.
type OoklaConfig struct {
	Year       int    `yaml:"year" mapstructure:"year"`
	Quarter    int    `yaml:"quarter" mapstructure:"quarter"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	FixedPath  string `yaml:"fixed_path" mapstructure:"fixed_path"`
	MobilePath string `yaml:"mobile_path" mapstructure:"mobile_path"`
}

// NightlightsConfig locates the VIIRS radiance samples.
type NightlightsConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Path        string `yaml:"path" mapstructure:"path"`
	RequireAuth bool   `yaml:"require_auth" mapstructure:"require_auth"`
}

// FeaturesConfig controls the feature catalog.
type FeaturesConfig struct {
	POIClasses  []string `yaml:"poi_classes" mapstructure:"poi_classes"`
	RoadClasses []string `yaml:"road_classes" mapstructure:"road_classes"`
	MaxNearestM float64  `yaml:"max_nearest_m" mapstructure:"max_nearest_m"`
	IndexLevel  int      `yaml:"index_level" mapstructure:"index_level"`
	CachePath   string   `yaml:"cache_path" mapstructure:"cache_path"`
}

// PostGISConfig configures the optional PostGIS sink.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// DefaultPOIClasses are the OSM fclass values turned into POI features.
var DefaultPOIClasses = []string{
	"atm", "bank", "cafe", "clinic", "fast_food",
	"hospital", "marketplace", "pharmacy", "restaurant", "school",
}

// DefaultRoadClasses are the OSM fclass values turned into road features.
var DefaultRoadClasses = []string{
	"trunk", "primary", "secondary", "tertiary", "residential", "unclassified",
}

// Output formats understood by the exporter.
var validFormats = map[string]bool{
	"geojson":   true,
	"shapefile": true,
	"gpkg":      true,
	"postgis":   true,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POVMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The EOG tooling has always read these names.
	_ = v.BindEnv("eog.username", "POVMAP_EOG_USERNAME", "EOG_USER")
	_ = v.BindEnv("eog.password", "POVMAP_EOG_PASSWORD", "EOG_PASSWORD")

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.name", "rollout")
	v.SetDefault("output.formats", []string{"geojson"})
	v.SetDefault("output.plots", true)
	v.SetDefault("output.html", true)
	v.SetDefault("output.report", true)
	v.SetDefault("cache.dir", ".cache/povmap")
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("fetch.user_agent", "povmap/1.0")
	v.SetDefault("eog.token_url", "https://eogauth.mines.edu/auth/realms/master/protocol/openid-connect/token")
	v.SetDefault("eog.client_id", "eogdata_oidc")
	v.SetDefault("eog.client_secret", "2677ad81-521b-4869-8480-6d05b9e57d48")
	v.SetDefault("eog.token_path", ".eog_creds/eog_access_token")
	v.SetDefault("sources.osm.base_url", "https://download.geofabrik.de")
	v.SetDefault("sources.ookla.year", 2019)
	v.SetDefault("sources.ookla.quarter", 1)
	v.SetDefault("sources.ookla.base_url", "https://ookla-open-data.s3.amazonaws.com")
	v.SetDefault("sources.nightlights.require_auth", true)
	v.SetDefault("features.poi_classes", DefaultPOIClasses)
	v.SetDefault("features.road_classes", DefaultRoadClasses)
	v.SetDefault("features.max_nearest_m", 10000.0)
	v.SetDefault("features.index_level", 12)
	v.SetDefault("postgis.schema", "public")
	v.SetDefault("postgis.table", "rollout_tiles")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	var errs []string

	if q := c.Sources.Ookla.Quarter; q < 1 || q > 4 {
		errs = append(errs, "sources.ookla.quarter must be between 1 and 4")
	}
	if c.Features.MaxNearestM <= 0 {
		errs = append(errs, "features.max_nearest_m must be > 0")
	}
	if l := c.Features.IndexLevel; l < 1 || l > 30 {
		errs = append(errs, "features.index_level must be between 1 and 30")
	}
	for _, f := range c.Output.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, "unknown output format "+f)
		}
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch.max_attempts must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
