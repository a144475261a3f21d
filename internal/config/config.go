package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Apify    ApifyConfig    `mapstructure:"apify"`
	Staging  StagingConfig  `mapstructure:"staging"`
	ETL      ETLConfig      `mapstructure:"etl"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"` // empty allows all origins
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	URL             string        `mapstructure:"url"`    // full postgres DSN, wins over discrete fields
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type ApifyConfig struct {
	Token   string        `mapstructure:"token"`
	BaseURL string        `mapstructure:"base_url"`
	ActorID string        `mapstructure:"actor_id"`
	Timeout time.Duration `mapstructure:"timeout"`
	Region  string        `mapstructure:"region"`
}

type StagingConfig struct {
	Path string `mapstructure:"path"`
}

type ETLConfig struct {
	Source             string        `mapstructure:"source"` // apify or staging
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	ExponentialBackoff bool          `mapstructure:"exponential_backoff"`
	SkipFailedItems    bool          `mapstructure:"skip_failed_items"`
	MinViews           int64         `mapstructure:"min_views"`
	MinLikes           int64         `mapstructure:"min_likes"`
	HotTrendsLimit     int           `mapstructure:"hot_trends_limit"`
	CategoryLimit      int           `mapstructure:"category_limit"`
	StatsRefreshLimit  int           `mapstructure:"stats_refresh_limit"`
	Categories         []string      `mapstructure:"categories"`
}

type AnalyzerConfig struct {
	Provider string        `mapstructure:"provider"` // rule or llm
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"` // OpenAI-compatible endpoint
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment-specific values
	v.BindEnv("apify.token", "APIFY_TOKEN")
	v.BindEnv("analyzer.api_key", "ANALYZER_API_KEY")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("etl.min_views", "ETL_MIN_VIEWS")
	v.BindEnv("etl.min_likes", "ETL_MIN_LIKES")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/trendplate.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor_id", "GdWCkxBtKWOsKjdch") // clockworks~tiktok-scraper
	v.SetDefault("apify.timeout", 5*time.Minute)
	v.SetDefault("apify.region", "US")

	v.SetDefault("staging.path", "./data/staging")

	v.SetDefault("etl.source", "apify")
	v.SetDefault("etl.max_retries", 3)
	v.SetDefault("etl.retry_delay", time.Second)
	v.SetDefault("etl.exponential_backoff", true)
	v.SetDefault("etl.skip_failed_items", true)
	v.SetDefault("etl.min_views", 10000)
	v.SetDefault("etl.min_likes", 500)
	v.SetDefault("etl.hot_trends_limit", 50)
	v.SetDefault("etl.category_limit", 20)
	v.SetDefault("etl.stats_refresh_limit", 100)
	v.SetDefault("etl.categories", []string{"dance", "comedy", "food", "beauty", "fitness", "education"})

	v.SetDefault("analyzer.provider", "rule")
	v.SetDefault("analyzer.model", "gpt-4o-mini")
	v.SetDefault("analyzer.base_url", "https://api.openai.com/v1")
	v.SetDefault("analyzer.timeout", 60*time.Second)

	v.SetDefault("storage.bucket", "trendplate-raw")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "raw")
}
