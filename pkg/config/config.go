package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
		// Error logs are aggregated and shipped to kafka.logs_topic when enabled.
		Collect       bool          `yaml:"collect"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
		FlushCount    int           `yaml:"flush_count" default:"100"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"http://localhost:5173\",\"http://127.0.0.1:5173\"]"`
		RateLimit       struct {
			Enabled bool    `yaml:"enabled" default:"true"`
			RPS     float64 `yaml:"rps" default:"20"`
			Burst   int     `yaml:"burst" default:"40"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled" default:"true"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"500"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	} `yaml:"backend"`
	Ingest struct {
		MaxRPSPerSensor float64 `yaml:"max_rps_per_sensor" default:"10"`
		BufferSize      int     `yaml:"buffer_size" default:"2000"`
	} `yaml:"ingest"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		ReadingsTopic string   `yaml:"readings_topic" default:"enviropulse.readings"`
		ForecastTopic string   `yaml:"forecast_topic" default:"enviropulse.forecasts"`
		LogsTopic     string   `yaml:"logs_topic" default:"enviropulse.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"enviropulse-readings"`
			StartOffset string        `yaml:"start_offset" default:"earliest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"1000"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"enviropulse.readings.dlq"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"enviropulse"`
		Table            string        `yaml:"table" default:"sensor_readings"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"enviropulse:"`
	} `yaml:"redis"`
	Forecast struct {
		Zone          string        `yaml:"zone" default:"America/Toronto"`
		LookbackHours int           `yaml:"lookback_hours" default:"72"`
		HistoryLimit  int           `yaml:"history_limit" default:"50000"`
		CacheTTL      time.Duration `yaml:"cache_ttl" default:"30s"`
		Concurrency   int           `yaml:"concurrency" default:"4"`
		Preload       bool          `yaml:"preload" default:"true"`
		PublishEvents bool          `yaml:"publish_events" default:"true"`
	} `yaml:"forecast"`
	Bundles struct {
		Backend     string `yaml:"backend" default:"file"`
		Dir         string `yaml:"dir" default:"models"`
		ObjectStore struct {
			Endpoint  string `yaml:"endpoint"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			Bucket    string `yaml:"bucket" default:"enviropulse-models"`
			Prefix    string `yaml:"prefix" default:"models"`
			Secure    bool   `yaml:"secure"`
			MaxBytes  int64  `yaml:"max_bytes" default:"16777216"`
		} `yaml:"object_store"`
	} `yaml:"bundles"`
	Dashboard struct {
		WindowHours int           `yaml:"window_hours" default:"48"`
		RowLimit    int           `yaml:"row_limit" default:"50000"`
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"60s"`
	} `yaml:"dashboard"`
}

// Load reads and parses a YAML configuration file. Unset fields take their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults first, so explicit zero values in YAML (false, 0) win.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML, then a .env file if present, and
// overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_READINGS_TOPIC"); v != "" {
		c.Kafka.ReadingsTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.Bundles.Dir = v
	}
	if v := os.Getenv("BUNDLES_BACKEND"); v != "" {
		c.Bundles.Backend = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.Bundles.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Bundles.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Bundles.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		c.Bundles.ObjectStore.Bucket = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && (!c.Kafka.Enabled || len(c.Kafka.Brokers) == 0) {
		return fmt.Errorf("backend.type 'kafka' requires kafka.enabled and kafka.brokers")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Consumer.StartOffset != "earliest" && c.Kafka.Consumer.StartOffset != "latest" {
		return fmt.Errorf("kafka.consumer.start_offset must be 'earliest' or 'latest', got '%s'", c.Kafka.Consumer.StartOffset)
	}
	if c.ClickHouse.Table == "" || c.ClickHouse.Database == "" {
		return fmt.Errorf("clickhouse.database and clickhouse.table are required")
	}
	if c.Forecast.LookbackHours < 1 {
		return fmt.Errorf("forecast.lookback_hours must be >= 1, got %d", c.Forecast.LookbackHours)
	}
	if c.Forecast.HistoryLimit < 1 {
		return fmt.Errorf("forecast.history_limit must be >= 1, got %d", c.Forecast.HistoryLimit)
	}
	switch c.Bundles.Backend {
	case "file":
		if c.Bundles.Dir == "" {
			return fmt.Errorf("bundles.dir is required for the file backend")
		}
	case "object":
		if c.Bundles.ObjectStore.Endpoint == "" || c.Bundles.ObjectStore.Bucket == "" {
			return fmt.Errorf("bundles.object_store.endpoint and bucket are required for the object backend")
		}
	default:
		return fmt.Errorf("bundles.backend must be 'file' or 'object', got '%s'", c.Bundles.Backend)
	}
	if c.Dashboard.WindowHours < 24 {
		return fmt.Errorf("dashboard.window_hours must be >= 24, got %d", c.Dashboard.WindowHours)
	}
	return nil
}

// ReadingsTable is the fully qualified readings table name.
func (c *Config) ReadingsTable() string {
	return c.ClickHouse.Database + "." + c.ClickHouse.Table
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
