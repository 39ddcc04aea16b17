package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host       string `mapstructure:"host" json:"host,omitempty"`
		Port       int64  `mapstructure:"port" json:"port,omitempty"`
		BodyLimit  string `mapstructure:"body_limit" json:"body_limit,omitempty"`
		RateLimit  int    `mapstructure:"rate_limit" json:"rate_limit,omitempty"`
		RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst,omitempty"`
		LogLevel   string `mapstructure:"log_level" json:"log_level,omitempty"`
		InstanceID string `mapstructure:"instance_id" json:"instance_id,omitempty"`
		// JWTSecret enables bearer token auth on the management api when set.
		JWTSecret string `mapstructure:"jwt_secret" json:"-"`
		// AllowedOrigins may call the management api from a browser besides the api's own origin.
		AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins,omitempty"`
	} `mapstructure:"server" json:"server"`

	Relay struct {
		Prefix          string        `mapstructure:"prefix" json:"prefix,omitempty"`
		TargetHeader    string        `mapstructure:"target_header" json:"target_header,omitempty"`
		DefaultUpstream string        `mapstructure:"default_upstream" json:"default_upstream,omitempty"`
		Timeout         time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	} `mapstructure:"relay" json:"relay"`

	RPC struct {
		DefaultURL string        `mapstructure:"default_url" json:"default_url,omitempty"`
		Timeout    time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
		// RelayURL routes every call through a walletd relay instead of dialing providers directly.
		RelayURL string `mapstructure:"relay_url" json:"relay_url,omitempty"`
		Failover bool   `mapstructure:"failover" json:"failover,omitempty"`
	} `mapstructure:"rpc" json:"rpc"`

	Breaker struct {
		Timeout                int `mapstructure:"timeout" json:"timeout,omitempty"`
		MaxConcurrentRequests  int `mapstructure:"max_concurrent_requests" json:"max_concurrent_requests,omitempty"`
		RequestVolumeThreshold int `mapstructure:"request_volume_threshold" json:"request_volume_threshold,omitempty"`
		SleepWindow            int `mapstructure:"sleep_window" json:"sleep_window,omitempty"`
		ErrorPercentThreshold  int `mapstructure:"error_percent_threshold" json:"error_percent_threshold,omitempty"`
	} `mapstructure:"breaker" json:"breaker"`

	Storage struct {
		Backend string `mapstructure:"backend" json:"backend,omitempty"`
		DSN     string `mapstructure:"dsn" json:"dsn,omitempty"`
	} `mapstructure:"storage" json:"storage"`

	Redis struct {
		Host     string `mapstructure:"host" json:"host,omitempty"`
		Port     string `mapstructure:"port" json:"port,omitempty"`
		User     string `mapstructure:"user" json:"user,omitempty"`
		Password string `mapstructure:"password" json:"password,omitempty"`
		DB       int    `mapstructure:"db" json:"db,omitempty"`
	} `mapstructure:"redis" json:"redis"`

	BlockStorage struct {
		Host      string `mapstructure:"host" json:"host"`
		Region    string `mapstructure:"region" json:"region"`
		AccessKey string `mapstructure:"access_key" json:"access_key"`
		SecretKey string `mapstructure:"secret" json:"secret"`
		Bucket    string `mapstructure:"bucket" json:"bucket"`
	} `mapstructure:"block_storage" json:"block_storage"`

	Pipeline struct {
		RefreshDelay time.Duration `mapstructure:"refresh_delay" json:"refresh_delay,omitempty"`
	} `mapstructure:"pipeline" json:"pipeline"`

	Bridge struct {
		ReloadDelay time.Duration `mapstructure:"reload_delay" json:"reload_delay,omitempty"`
	} `mapstructure:"bridge" json:"bridge"`

	DApp struct {
		SessionTTL time.Duration `mapstructure:"session_ttl" json:"session_ttl,omitempty"`
	} `mapstructure:"dapp" json:"dapp"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.body_limit", "2M")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.rate_burst", 30)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("relay.prefix", "/api")
	v.SetDefault("relay.target_header", "X-RPC-Target")
	v.SetDefault("relay.default_upstream", "https://octra.network")
	v.SetDefault("relay.timeout", 30*time.Second)

	v.SetDefault("rpc.default_url", "https://octra.network")
	v.SetDefault("rpc.timeout", 15*time.Second)
	v.SetDefault("rpc.failover", true)

	v.SetDefault("breaker.timeout", 15000)
	v.SetDefault("breaker.max_concurrent_requests", 100)
	v.SetDefault("breaker.request_volume_threshold", 10)
	v.SetDefault("breaker.sleep_window", 5000)
	v.SetDefault("breaker.error_percent_threshold", 50)

	v.SetDefault("storage.backend", "redis")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")

	v.SetDefault("pipeline.refresh_delay", 3*time.Second)
	v.SetDefault("bridge.reload_delay", 100*time.Millisecond)
	v.SetDefault("dapp.session_ttl", 15*time.Minute)

	// registered so AutomaticEnv can override them
	for _, key := range []string{
		"server.instance_id", "server.jwt_secret", "rpc.relay_url", "storage.dsn", "redis.user", "redis.password",
		"block_storage.host", "block_storage.region", "block_storage.access_key",
		"block_storage.secret", "block_storage.bucket", "datadog.host", "datadog.port",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
}

// ReadConfig loads <name>.yaml from the working directory or /etc/walletd.
// A missing file is not an error; defaults and WALLETD_* environment variables still apply.
func ReadConfig(name string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/walletd")
	v.SetEnvPrefix("walletd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("fail to read config file, err: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, err: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and nothing read from disk.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
