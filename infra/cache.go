package infra

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tnqbao/gau-vm-session-service/config"
)

type RedisClient struct {
	Client *redis.Client
}

func InitRedisClient(cfg *config.EnvConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisHost + ":" + cfg.Redis.RedisPort,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	log.Println("Connected to Redis:", cfg.Redis.RedisPort+" on "+cfg.Redis.RedisHost)

	return &RedisClient{Client: client}
}

// AcquireLease sets key to token for ttl when absent. It returns false while another holder owns it.
func (r *RedisClient) AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, key, token, ttl).Result()
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}
