package ioc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	rediscache "github.com/KNICEX/paper-trader/internal/cache/redis"
	"github.com/KNICEX/paper-trader/internal/service/notification"
)

type redisConfig struct {
	Enabled  bool                    `mapstructure:"enabled"`
	Client   rediscache.ClientConfig `mapstructure:",squash"`
	PriceTTL time.Duration           `mapstructure:"price_ttl"`
	Channel  string                  `mapstructure:"channel"`
}

func loadRedisConfig() redisConfig {
	var cfg redisConfig
	if err := viper.UnmarshalKey("redis", &cfg); err != nil {
		panic(err)
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = time.Minute
	}
	return cfg
}

// InitRedis redis.enabled 为 false 或连不上时返回 nil, 引擎退化为不带缓存运行
func InitRedis() *rediscache.Client {
	cfg := loadRedisConfig()
	if !cfg.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := rediscache.New(ctx, cfg.Client)
	if err != nil {
		slog.Warn("redis unavailable, continue without cache", "addr", cfg.Client.Addr, "error", err)
		return nil
	}
	return cli
}

// FollowEvents 把 redis.channel 上其他实例发布的事件写入日志, 直到 ctx 结束
func FollowEvents(ctx context.Context) error {
	cli := InitRedis()
	if cli == nil {
		return errors.New("redis disabled or unavailable")
	}
	defer func() {
		_ = cli.Close()
	}()
	cfg := loadRedisConfig()
	return notification.Follow(ctx, rediscache.NewEventBus(cli), cfg.Channel,
		notification.NewLogNotifier(slog.Default()))
}
