// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/archiver"
	"github.com/JakeFAU/board-archiver/internal/filter"
)

// PathEnv names the environment variable consulted when no config path is
// given on the command line.
const PathEnv = "CONFIG_PATH"

// Storage providers.
const (
	ProviderLocal  = "local"
	ProviderMemory = "memory"
	ProviderGCS    = "gcs"
	ProviderS3     = "s3"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Archiver ArchiverConfig `mapstructure:"archiver"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Boards   []BoardConfig  `mapstructure:"boards"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// RemoteConfig configures the board API client.
type RemoteConfig struct {
	APIURL            string  `mapstructure:"api_url"`
	MediaURL          string  `mapstructure:"media_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
}

// Timeout returns the per-request timeout.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (r RemoteConfig) BackoffInitial() time.Duration {
	return time.Duration(r.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (r RemoteConfig) BackoffMax() time.Duration {
	return time.Duration(r.BackoffMaxMs) * time.Millisecond
}

// ArchiverConfig governs the cycle loop and the permit pool.
type ArchiverConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`
	VerifyChecksums bool          `mapstructure:"verify_checksums"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Provider  string   `mapstructure:"provider"`
	BaseDir   string   `mapstructure:"base_dir"`
	GCSBucket string   `mapstructure:"gcs_bucket"`
	Prefix    string   `mapstructure:"prefix"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

// DBConfig controls access to the post repository.
type DBConfig struct {
	// Driver is inferred from DSN when empty.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ResolvedDriver returns Driver, or the driver implied by the DSN scheme.
func (d DBConfig) ResolvedDriver() string {
	if d.Driver != "" {
		return strings.ToLower(d.Driver)
	}
	dsn := strings.ToLower(d.DSN)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// BoardConfig describes one archived board. Order in the list is the order
// boards are visited within a cycle.
type BoardConfig struct {
	Name string `mapstructure:"name"`
	// FullMedia defaults to true when omitted.
	FullMedia     *bool    `mapstructure:"full_media"`
	Filters       []string `mapstructure:"filters"`
	FilterBody    bool     `mapstructure:"filter_body"`
	ReverseFilter bool     `mapstructure:"reverse_filter"`
}

// SavesFullMedia reports whether full attachments are kept for the board.
func (b BoardConfig) SavesFullMedia() bool {
	return b.FullMedia == nil || *b.FullMedia
}

// ResolvePath returns flagPath, falling back to $CONFIG_PATH.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(PathEnv)
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// Watch re-reads the file at path whenever it changes and hands every valid
// result to onChange. Invalid edits are logged and ignored.
func Watch(path string, logger *zap.Logger, onChange func(Config)) error {
	if path == "" {
		return fmt.Errorf("watch config: no config file")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config changed", zap.String("file", e.Name), zap.Int("boards", len(cfg.Boards)))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Explicit bindings replace the prefixed lookup, so both names are listed.
	if err := v.BindEnv("db.dsn", "ARCHIVER_DB_DSN", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("storage.base_dir", "ARCHIVER_STORAGE_BASE_DIR", "DATA_DIR"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("remote.api_url", "https://a.4cdn.org")
	v.SetDefault("remote.media_url", "https://i.4cdn.org")
	v.SetDefault("remote.user_agent", "board-archiver/0.1")
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("remote.requests_per_second", 1.0)
	v.SetDefault("remote.burst", 1)
	v.SetDefault("remote.max_retries", 2)
	v.SetDefault("remote.backoff_initial_ms", 500)
	v.SetDefault("remote.backoff_max_ms", 5000)
	v.SetDefault("archiver.concurrency", archiver.DefaultConcurrency)
	v.SetDefault("archiver.cycle_interval", archiver.DefaultCycleInterval)
	v.SetDefault("archiver.verify_checksums", true)
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.driver", "")
	v.SetDefault("db.dsn", "data/archive.db")
	v.SetDefault("db.table", "posts")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Remote.APIURL == "" || c.Remote.MediaURL == "" {
		return fmt.Errorf("remote.api_url and remote.media_url are required")
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote.timeout_seconds must be > 0")
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.max_retries must be >= 0")
	}
	if c.Archiver.Concurrency <= 0 {
		return fmt.Errorf("archiver.concurrency must be > 0")
	}
	if c.Archiver.CycleInterval <= 0 {
		return fmt.Errorf("archiver.cycle_interval must be > 0")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.DB.validate(); err != nil {
		return err
	}
	return validateBoards(c.Boards)
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(s.Provider) {
	case ProviderLocal:
		if s.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case ProviderMemory:
	case ProviderGCS:
		if s.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	case ProviderS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", s.Provider)
	}
	return nil
}

func (d DBConfig) validate() error {
	switch d.ResolvedDriver() {
	case DriverPostgres, DriverSQLite:
		if d.DSN == "" {
			return fmt.Errorf("db.dsn is required for the %s driver", d.ResolvedDriver())
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver %q is not supported", d.Driver)
	}
	if d.MaxConns < 0 || d.MinConns < 0 || (d.MaxConns > 0 && d.MinConns > d.MaxConns) {
		return fmt.Errorf("db.min_conns must be between 0 and db.max_conns")
	}
	return nil
}

func validateBoards(boards []BoardConfig) error {
	if len(boards) == 0 {
		return fmt.Errorf("boards must list at least one board")
	}
	seen := make(map[string]struct{}, len(boards))
	for i, b := range boards {
		if b.Name == "" {
			return fmt.Errorf("boards[%d].name is required", i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("boards[%d].name %q is listed twice", i, b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// BoardConfigs compiles the board list for the engine. Bad filter patterns
// surface as configuration errors.
func (c Config) BoardConfigs() ([]archiver.BoardConfig, error) {
	out := make([]archiver.BoardConfig, 0, len(c.Boards))
	for _, b := range c.Boards {
		f, err := filter.New(b.Filters, b.ReverseFilter, b.FilterBody)
		if err != nil {
			return nil, fmt.Errorf("board %q: %w", b.Name, err)
		}
		out = append(out, archiver.BoardConfig{
			Name:      b.Name,
			FullMedia: b.SavesFullMedia(),
			Filter:    f,
		})
	}
	if len(out) == 0 {
		return nil, archive.ErrConfiguration.New("no boards configured")
	}
	return out, nil
}
