package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/martok9803/kyc-faceauth-dev/console"
	redis "github.com/martok9803/kyc-faceauth-dev/redis"
	"github.com/martok9803/kyc-faceauth-dev/sandbox"
	"github.com/spf13/viper"
)

const envPrefix = "KYC_CONSOLE"

type Config struct {
	ServerConfig ServerConfig `mapstructure:"server_config"`

	ApiBaseUrl     string        `mapstructure:"api_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`

	StorageType         string                    `mapstructure:"storage_type"`
	WorkspaceTTL        time.Duration             `mapstructure:"workspace_ttl"`
	RedisConfig         redis.RedisConfig         `mapstructure:"redis_config"`
	RedisSentinelConfig redis.RedisSentinelConfig `mapstructure:"redis_sentinel_config"`

	SandboxConfig sandbox.Config `mapstructure:"sandbox_config"`
}

// readConfigFile loads path (JSON) on top of the defaults. Every key can be
// overridden from the environment, e.g. KYC_CONSOLE_API_BASE_URL or
// KYC_CONSOLE_SERVER_CONFIG_PORT. An empty path uses defaults and
// environment only.
func readConfigFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_config.host", "127.0.0.1")
	v.SetDefault("server_config.port", 8080)
	v.SetDefault("server_config.use_tls", false)
	v.SetDefault("server_config.tls_priv_key_path", "")
	v.SetDefault("server_config.tls_cert_path", "")

	v.SetDefault("api_base_url", "")
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("storage_type", "memory")
	v.SetDefault("workspace_ttl", console.DefaultWorkspaceTTL)
	v.SetDefault("redis_config.host", "localhost")
	v.SetDefault("redis_config.port", 6379)
	v.SetDefault("redis_config.username", "")
	v.SetDefault("redis_config.password", "")
	v.SetDefault("redis_config.db", 0)
	v.SetDefault("redis_config.namespace", "kyc-console")
	v.SetDefault("redis_sentinel_config.sentinel_host", "localhost")
	v.SetDefault("redis_sentinel_config.sentinel_port", 26379)
	v.SetDefault("redis_sentinel_config.sentinel_username", "")
	v.SetDefault("redis_sentinel_config.password", "")
	v.SetDefault("redis_sentinel_config.master_name", "")
	v.SetDefault("redis_sentinel_config.namespace", "kyc-console")

	v.SetDefault("sandbox_config.host", "127.0.0.1")
	v.SetDefault("sandbox_config.port", 8090)
	v.SetDefault("sandbox_config.public_url", "")
	v.SetDefault("sandbox_config.bucket", sandbox.DefaultBucket)
	v.SetDefault("sandbox_config.signing_key", "")
	v.SetDefault("sandbox_config.presign_expiry", sandbox.DefaultPresignExpiry)
	v.SetDefault("sandbox_config.audit_table", sandbox.DefaultAuditTable)
	v.SetDefault("sandbox_config.start_workflow", false)
}

func createWorkspaceStore(config *Config) (console.WorkspaceStore, error) {
	if config.StorageType == "redis" {
		slog.Info("Using redis workspace storage")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return console.NewRedisWorkspaceStore(client, config.RedisConfig.Namespace, config.WorkspaceTTL), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel workspace storage")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return console.NewRedisWorkspaceStore(client, config.RedisSentinelConfig.Namespace, config.WorkspaceTTL), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory workspace storage")
		return console.NewInMemoryWorkspaceStore(config.WorkspaceTTL), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}
