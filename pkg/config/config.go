package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Session struct {
	Label     string `yaml:"label" validate:"required"`
	Enabled   bool   `yaml:"enabled"`
	StartHour int    `yaml:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int    `yaml:"end_hour" validate:"gte=0,lte=23"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
			Topic     string        `yaml:"topic" default:"alerts"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       struct {
			Quotes     string `yaml:"quotes" default:"sessionbreak.quotes"`
			Orders     string `yaml:"orders" default:"sessionbreak.orders"`
			Executions string `yaml:"executions" default:"sessionbreak.executions"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"sessionbreak"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"sessionbreak"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"sessionbreak"`
		StateTTL time.Duration `yaml:"state_ttl" default:"72h"`
	} `yaml:"redis"`
	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbol         string        `yaml:"symbol" default:"OANDA:XAU_USD"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		BufferSize     int           `yaml:"buffer_size" default:"1024"`
		RateCapacity   int           `yaml:"rate_capacity" default:"50"`
		RateRefill     int           `yaml:"rate_refill_per_second" default:"20"`
	} `yaml:"feed"`
	Venue struct {
		Type string `yaml:"type" default:"paper" validate:"oneof=paper kafka"`
	} `yaml:"venue"`
	Instrument struct {
		PipSize    float64 `yaml:"pip_size" default:"0.01" validate:"gt=0"`
		PipValue   float64 `yaml:"pip_value" default:"1" validate:"gt=0"`
		LotSize    float64 `yaml:"lot_size" default:"100" validate:"gte=0"`
		VolumeStep float64 `yaml:"volume_step" default:"1" validate:"gt=0"`
		VolumeMin  float64 `yaml:"volume_min" default:"1" validate:"gte=0"`
		VolumeMax  float64 `yaml:"volume_max" default:"100000" validate:"gte=0"`
	} `yaml:"instrument"`
	Strategy struct {
		Symbol                  string    `yaml:"symbol" default:"XAUUSD" validate:"required"`
		Timeframe               string    `yaml:"timeframe" default:"30m" validate:"oneof=1m 5m 15m 30m 1h"`
		TimeZoneOffset          int       `yaml:"time_zone_offset" validate:"gte=-12,lte=12"`
		RiskAmount              float64   `yaml:"risk_amount" default:"1000" validate:"gt=0"`
		UseTrendFilter          bool      `yaml:"use_trend_filter" default:"true"`
		TrendPeriod             int       `yaml:"trend_period" default:"200" validate:"gte=1"`
		MoveToBreakEven         bool      `yaml:"move_to_break_even" default:"true"`
		BreakEvenMultiple       float64   `yaml:"break_even_multiple" default:"2" validate:"gt=0"`
		StopLossRatio           float64   `yaml:"stop_loss_ratio" default:"0.5" validate:"gt=0"`
		TakeProfitRatio         float64   `yaml:"take_profit_ratio" default:"3" validate:"gt=0"`
		MinRange                float64   `yaml:"min_range" validate:"gte=0"`
		MaxEntriesPerOccurrence int       `yaml:"max_entries_per_occurrence" default:"1" validate:"gte=0"`
		WarmupBars              int       `yaml:"warmup_bars" default:"500" validate:"gte=0"`
		SeriesCapacity          int       `yaml:"series_capacity" default:"2048" validate:"gte=1"`
		Sessions                []Session `yaml:"sessions" validate:"dive"`
	} `yaml:"strategy"`
}

// DefaultSessions are the two windows the robot ships with.
func DefaultSessions() []Session {
	return []Session{
		{Label: "GoldenEye", Enabled: true, StartHour: 16, EndHour: 19},
		{Label: "Area51", Enabled: true, StartHour: 0, EndHour: 2},
	}
}

var validate = validator.New()

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Strategy.Sessions) == 0 {
		c.Strategy.Sessions = DefaultSessions()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("STRATEGY_SYMBOL"); v != "" {
		c.Strategy.Symbol = v
	}
	if v := getenv("RISK_AMOUNT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_AMOUNT: %w", err)
		}
		c.Strategy.RiskAmount = f
	}
	if v := getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := getenv("VENUE_TYPE"); v != "" {
		c.Venue.Type = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	return nil
}

// Validate runs tag validation and the checks that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Strategy.Sessions))
	for _, s := range c.Strategy.Sessions {
		if seen[s.Label] {
			return fmt.Errorf("strategy.sessions: duplicate label %q", s.Label)
		}
		seen[s.Label] = true
		if s.StartHour >= s.EndHour {
			return fmt.Errorf("strategy.sessions[%s]: start_hour must be before end_hour", s.Label)
		}
	}
	if c.Instrument.VolumeMax > 0 && c.Instrument.VolumeMax < c.Instrument.VolumeMin {
		return fmt.Errorf("instrument.volume_max must be >= volume_min")
	}
	if c.Venue.Type == "kafka" {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("venue.type kafka requires kafka.brokers")
		}
		if !c.Redis.Enabled {
			return fmt.Errorf("venue.type kafka requires redis.enabled for the position book")
		}
	}
	if c.Feed.Enabled {
		if c.Feed.APIKey == "" {
			return fmt.Errorf("feed.api_key is required when feed.enabled")
		}
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("feed.enabled requires kafka.brokers")
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
