package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	xutil "SignalDesk/pkg/util"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logger      LoggerConfig     `yaml:"logger"`
	Engine      EngineConfig     `yaml:"engine"`
	Sessions    []SessionConfig  `yaml:"sessions"`
	News        NewsConfig       `yaml:"news"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Finnhub     FinnhubConfig    `yaml:"finnhub"`
	Analytics   AnalyticsConfig  `yaml:"analytics"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
}

type EngineConfig struct {
	Symbols      []string      `yaml:"symbols" default:"[\"EURUSD\",\"GBPUSD\",\"USDJPY\"]"`
	Schedule     string        `yaml:"schedule" default:"@every 30s"`
	HistoryBars  int           `yaml:"history_bars" default:"250"`
	HistoryLimit int           `yaml:"history_limit" default:"1000"`
	Concurrency  int           `yaml:"concurrency" default:"4"`
	CycleTimeout time.Duration `yaml:"cycle_timeout" default:"20s"`
	Timeframe    string        `yaml:"timeframe" default:"1m"`
	DemoFallback bool          `yaml:"demo_fallback"`
	Seed         int64         `yaml:"seed" default:"1"`
	// QuoteFromHistory synthesizes the latest quote from the last bar when no
	// live quote is known for a symbol.
	QuoteFromHistory bool `yaml:"quote_from_history" default:"true"`
	// SentimentMaxAge drops sentiment readings older than this.
	SentimentMaxAge time.Duration `yaml:"sentiment_max_age" default:"1h"`
	// SinkTimeout bounds each publish to Kafka or the ClickHouse archive.
	SinkTimeout time.Duration `yaml:"sink_timeout" default:"5s"`
	// DeterministicIDs derives signal IDs from Seed so runs can be replayed.
	DeterministicIDs bool `yaml:"deterministic_ids"`
	// RunOnStart runs one signal cycle at startup instead of waiting for the first tick.
	RunOnStart bool `yaml:"run_on_start" default:"true"`
}

// SessionConfig describes a trading session. Active defaults to true.
type SessionConfig struct {
	Name     string   `yaml:"name"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Timezone string   `yaml:"timezone" default:"UTC"`
	Symbols  []string `yaml:"symbols"`
	Active   *bool    `yaml:"active" default:"true"`
}

type NewsEventConfig struct {
	Time          string `yaml:"time"`
	Currency      string `yaml:"currency"`
	Impact        string `yaml:"impact" default:"high"`
	Title         string `yaml:"title"`
	BufferMinutes int    `yaml:"buffer_minutes"`
}

type NewsConfig struct {
	DefaultBufferMinutes int               `yaml:"default_buffer_minutes" default:"15"`
	Topic                string            `yaml:"topic" default:"news-events"`
	Calendar             []NewsEventConfig `yaml:"calendar"`
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	SignalsTopic   string   `yaml:"signals_topic" default:"signals"`
	SentimentTopic string   `yaml:"sentiment_topic" default:"sentiment"`
	Compression    string   `yaml:"compression" default:"snappy"`
	RequiredAcks   int      `yaml:"required_acks" default:"-1"`
	Producer       struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"signaldesk"`
		Workers    int           `yaml:"workers" default:"1"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"default"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	BarsTable        string        `yaml:"bars_table" default:"bars"`
	SignalsTable     string        `yaml:"signals_table" default:"signals"`
	InitSchema       bool          `yaml:"init_schema" default:"true"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"signaldesk"`
}

type FinnhubConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	WebSocketURL string `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	// Symbols maps engine symbols to Finnhub stream symbols, e.g. EURUSD: OANDA:EUR_USD.
	Symbols        map[string]string `yaml:"symbols"`
	ReconnectDelay time.Duration     `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration     `yaml:"ping_interval" default:"30s"`
}

type AnalyticsConfig struct {
	PythonServiceURL string        `yaml:"python_service_url"`
	Timeout          time.Duration `yaml:"timeout" default:"3s"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" default:"5"`
	Burst     int     `yaml:"burst" default:"10"`
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, nil)
}

// LoadWithEnv is Load with environment overrides applied before validation.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, os.Getenv)
}

// Parse decodes raw YAML over the defaults. getenv may be nil.
func Parse(raw []byte, getenv func(string) string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Sessions {
		if err := defaults.Set(&c.Sessions[i]); err != nil {
			return nil, fmt.Errorf("apply defaults: %w", err)
		}
	}
	if getenv != nil {
		if err := c.applyEnv(getenv); err != nil {
			return nil, err
		}
	}
	c.Engine.Symbols = xutil.NormalizeSymbols(c.Engine.Symbols)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("SYMBOLS"); v != "" {
		c.Engine.Symbols = xutil.SplitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("DEMO_FALLBACK"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEMO_FALLBACK: %w", err)
		}
		c.Engine.DemoFallback = on
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Engine.Symbols) == 0 {
		errs = append(errs, errors.New("engine.symbols cannot be empty"))
	}
	if c.Engine.HistoryBars < 1 {
		errs = append(errs, errors.New("engine.history_bars must be positive"))
	}
	if c.Engine.HistoryLimit < 1 {
		errs = append(errs, errors.New("engine.history_limit must be positive"))
	}
	if c.Engine.SinkTimeout <= 0 {
		errs = append(errs, errors.New("engine.sink_timeout must be positive"))
	}
	if c.Engine.Concurrency < 1 {
		errs = append(errs, errors.New("engine.concurrency must be positive"))
	}
	if _, err := cron.ParseStandard(c.Engine.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("engine.schedule: %w", err))
	}
	switch c.Engine.Timeframe {
	case "1m", "5m", "15m", "1h":
	default:
		errs = append(errs, fmt.Errorf("engine.timeframe %q is not one of 1m, 5m, 15m, 1h", c.Engine.Timeframe))
	}

	seen := make(map[string]struct{}, len(c.Sessions))
	for i, s := range c.Sessions {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sessions[%d].name is required", i))
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("sessions[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = struct{}{}
		if _, err := xutil.ParseClock(s.Start); err != nil {
			errs = append(errs, fmt.Errorf("sessions[%d].start: %w", i, err))
		}
		if _, err := xutil.ParseClock(s.End); err != nil {
			errs = append(errs, fmt.Errorf("sessions[%d].end: %w", i, err))
		}
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("sessions[%d].timezone: %w", i, err))
		}
	}
	for i, ev := range c.News.Calendar {
		if _, ok := xutil.ParseTime(ev.Time); !ok {
			errs = append(errs, fmt.Errorf("news.calendar[%d].time %q is not RFC3339 or unix seconds", i, ev.Time))
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		errs = append(errs, errors.New("clickhouse.host is required when clickhouse is enabled"))
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		errs = append(errs, errors.New("finnhub.api_key is required when finnhub is enabled"))
	}
	if c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.per_second must be positive"))
	}
	return errors.Join(errs...)
}

// IsActive reports the effective Active flag.
func (s SessionConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}
