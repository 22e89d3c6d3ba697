package ioc

import (
	"github.com/spf13/viper"

	"github.com/KNICEX/paper-trader/internal/service/feed"
)

// InitFeed feed.enabled 为 false 时返回 nil, 价格只走缓存和 REST
func InitFeed() *feed.Feed {
	type Config struct {
		Enabled bool        `mapstructure:"enabled"`
		Feed    feed.Config `mapstructure:",squash"`
	}

	cfg := Config{Enabled: true, Feed: feed.DefaultConfig()}
	if err := viper.UnmarshalKey("feed", &cfg); err != nil {
		panic(err)
	}
	if !cfg.Enabled {
		return nil
	}
	// 交易对由引擎加载跟踪列表时设置
	return feed.New(cfg.Feed, nil)
}
