package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type RedisConfig struct {
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
	Username  string `json:"username,omitempty" mapstructure:"username"`
	Password  string `json:"password,omitempty" mapstructure:"password"`
	DB        int    `json:"db,omitempty" mapstructure:"db"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

type RedisSentinelConfig struct {
	SentinelHost     string `json:"sentinel_host" mapstructure:"sentinel_host"`
	SentinelPort     int    `json:"sentinel_port" mapstructure:"sentinel_port"`
	SentinelUsername string `json:"sentinel_username,omitempty" mapstructure:"sentinel_username"`
	Password         string `json:"password,omitempty" mapstructure:"password"`
	MasterName       string `json:"master_name" mapstructure:"master_name"`
	Namespace        string `json:"namespace" mapstructure:"namespace"`
}

// NewRedisClient connects to a single redis instance and pings it once.
func NewRedisClient(config *RedisConfig) (*redis.Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("failed to connect to Redis: no host configured")
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	slog.Debug("Connecting to redis", "address", addr, "db", config.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to redis", "address", addr)
	return client, nil
}

// NewRedisSentinelClient resolves the master through sentinel and pings it once.
func NewRedisSentinelClient(config *RedisSentinelConfig) (*redis.Client, error) {
	if config.MasterName == "" {
		return nil, fmt.Errorf("failed to connect to Redis through Sentinel: no master name configured")
	}

	sentinelAddr := fmt.Sprintf("%s:%d", config.SentinelHost, config.SentinelPort)
	slog.Debug("Connecting to redis through sentinel", "sentinel", sentinelAddr, "master", config.MasterName)

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:       config.MasterName,
		SentinelAddrs:    []string{sentinelAddr},
		SentinelUsername: config.SentinelUsername,
		Password:         config.Password,
	})

	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis through Sentinel: %w", err)
	}

	slog.Info("Connected to redis through sentinel", "sentinel", sentinelAddr, "master", config.MasterName)
	return client, nil
}

func ping(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
