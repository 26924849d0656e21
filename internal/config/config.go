package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig       `mapstructure:"log"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	Admin      AdminConfig     `mapstructure:"admin"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Bridge     BridgeConfig    `mapstructure:"bridge"`
	Telegram   TelegramConfig  `mapstructure:"telegram"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// consumer side of `worker events`
	GroupID   string        `mapstructure:"group_id"`
	SinkBatch int           `mapstructure:"sink_batch"`
	SinkFlush time.Duration `mapstructure:"sink_flush"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// BridgeConfig points at the WhatsApp HTTP bridge (POST {base_url}{send_path}).
type BridgeConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	SendPath      string        `mapstructure:"send_path"`
	SessionPrefix string        `mapstructure:"session_prefix"`
	TimeoutMs     int           `mapstructure:"timeout_ms"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

type TelegramConfig struct {
	Token   string        `mapstructure:"token"`
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Timezone         string        `mapstructure:"timezone"`
	DefaultCheckTime string        `mapstructure:"default_check_time"`
	DefaultSendTime  string        `mapstructure:"default_send_time"`
	TemplateKind     string        `mapstructure:"template_kind"`
	SenderWorkers    int           `mapstructure:"sender_workers"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (DUEBOT_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (DUEBOT_TELEGRAM_TOKEN -> telegram.token)
	v.SetEnvPrefix("DUEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
