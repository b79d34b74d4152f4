package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. ALLO_PIPELINE_MIN_MONTHS
const EnvPrefix = "ALLO"

// Config is the full application configuration
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Window    WindowConfig    `yaml:"window" envconfig:"WINDOW"`
	Filter    FilterConfig    `yaml:"filter" envconfig:"FILTER"`
	Sources   SourcesConfig   `yaml:"sources" envconfig:"SOURCES"`
	Fetch     FetchConfig     `yaml:"fetch" envconfig:"FETCH"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// PipelineConfig holds the thresholds and modes of the processing pipeline
type PipelineConfig struct {
	BufferDistance       float64 `yaml:"buffer_distance" envconfig:"BUFFER_DISTANCE" validate:"gt=0"`
	MinMonths            int     `yaml:"min_months" envconfig:"MIN_MONTHS" validate:"gte=1"`
	UsageAlloRatio       float64 `yaml:"usage_allo_ratio" envconfig:"USAGE_ALLO_RATIO" validate:"gt=0"`
	SpikeThreshold       float64 `yaml:"spike_threshold" envconfig:"SPIKE_THRESHOLD" validate:"gte=0"`
	SuppressSpikes       bool    `yaml:"suppress_spikes" envconfig:"SUPPRESS_SPIKES"`
	MeteredMode          string  `yaml:"metered_mode" envconfig:"METERED_MODE" validate:"oneof=proportional permit_level"`
	SplitMode            string  `yaml:"split_mode" envconfig:"SPLIT_MODE" validate:"oneof=exclusive inclusive"`
	DepletionConcurrency int     `yaml:"depletion_concurrency" envconfig:"DEPLETION_CONCURRENCY" validate:"gte=1"`
}

// WindowConfig is the session date range; empty bounds are open
type WindowConfig struct {
	From string `yaml:"from_date" envconfig:"FROM" validate:"omitempty,datetime=2006-01-02"`
	To   string `yaml:"to_date" envconfig:"TO" validate:"omitempty,datetime=2006-01-02"`
}

// FilterConfig selects permits and points
type FilterConfig struct {
	OnlyConsumptive      bool              `yaml:"only_consumptive" envconfig:"ONLY_CONSUMPTIVE"`
	IncludeHydroElectric bool              `yaml:"include_hydroelectric" envconfig:"INCLUDE_HYDROELECTRIC"`
	UseTypeMapping       map[string]string `yaml:"use_type_mapping" envconfig:"USE_TYPE_MAPPING"`
	PermitIDs            []string          `yaml:"permit_ids" envconfig:"PERMIT_IDS"`
	WapIDs               []string          `yaml:"wap_ids" envconfig:"WAP_IDS"`
}

// SourcesConfig selects and locates the permit source and usage store
type SourcesConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER" validate:"oneof=s3 sqlite postgres file memory"`

	Bucket      string `yaml:"bucket" envconfig:"BUCKET" validate:"required_if=Driver s3"`
	Region      string `yaml:"region" envconfig:"REGION"`
	Endpoint    string `yaml:"endpoint" envconfig:"ENDPOINT" validate:"omitempty,url"`
	PathStyle   bool   `yaml:"path_style" envconfig:"PATH_STYLE"`
	PermitsKey  string `yaml:"permits_key" envconfig:"PERMITS_KEY"`
	UsagePrefix string `yaml:"usage_prefix" envconfig:"USAGE_PREFIX"`

	PermitsPath string `yaml:"permits_path" envconfig:"PERMITS_PATH" validate:"required_if=Driver file"`
	UsageDir    string `yaml:"usage_dir" envconfig:"USAGE_DIR" validate:"required_if=Driver file"`
	SQLitePath  string `yaml:"sqlite_path" envconfig:"SQLITE_PATH" validate:"required_if=Driver sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN" validate:"required_if=Driver postgres"`
}

// FetchConfig bounds concurrent usage fetching
type FetchConfig struct {
	Concurrency int           `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"gte=1"`
	RPS         float64       `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst       int           `yaml:"burst" envconfig:"BURST" validate:"gte=1"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console stdout stderr file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_if=Output file,required_if=Output both"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int             `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration   `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// AllowedOrigins may open /api/v1/ws besides same-host pages
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// TelemetryConfig configures OpenTelemetry
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (if any), then a .env file, then ALLO_* environment variables. Later
// sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto c
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks every section against its constraints
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// findConfigFile returns ALLO_CONFIG_FILE or the first config file found in
// the usual locations
func findConfigFile() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			BufferDistance:       40000,
			MinMonths:            36,
			UsageAlloRatio:       2,
			SpikeThreshold:       2,
			SuppressSpikes:       true,
			MeteredMode:          "proportional",
			SplitMode:            "exclusive",
			DepletionConcurrency: 4,
		},
		Filter: FilterConfig{
			OnlyConsumptive: true,
		},
		Sources: SourcesConfig{
			Driver:      "file",
			Region:      "us-east-1",
			PermitsKey:  "permits/permits.json",
			UsagePrefix: "usage/",
			PermitsPath: "data/permits.json",
			UsageDir:    "data/usage",
			SQLitePath:  "data/allo.db",
		},
		Fetch: FetchConfig{
			Concurrency: 8,
			Burst:       1,
			Timeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/allo.log",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  5 * time.Minute,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "nz-allo-usage",
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
	}
}
