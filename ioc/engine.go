package ioc

import (
	"log/slog"

	"github.com/adshao/go-binance/v2"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	rediscache "github.com/KNICEX/paper-trader/internal/cache/redis"
	"github.com/KNICEX/paper-trader/internal/repo"
	"github.com/KNICEX/paper-trader/internal/service/engine"
	binancesvc "github.com/KNICEX/paper-trader/internal/service/exchange/binance"
	"github.com/KNICEX/paper-trader/internal/service/notification"
)

// InitEngine 组装引擎, 返回的 cleanup 关闭 redis 连接
func InitEngine(db *gorm.DB, cli *binance.Client) (*engine.Engine, func()) {
	cfg := engine.DefaultConfig()
	if err := viper.UnmarshalKey("trading", &cfg); err != nil {
		panic(err)
	}

	opts := []engine.Option{
		engine.WithSymbolRepo(repo.NewSymbolRepo(db)),
		engine.WithDecisionRepo(repo.NewDecisionRepo(db)),
		engine.WithReviewer(InitReviewer()),
	}
	// 离线模式下不检查上架状态, 也不连推流
	offline := loadMarketSource() == marketSourceMock
	if !offline {
		opts = append(opts, engine.WithSymbolService(binancesvc.NewSymbolService(cli)))
	}

	notifiers := notification.Multi{notification.NewLogNotifier(slog.Default())}
	cleanup := func() {}
	if rdb := InitRedis(); rdb != nil {
		rcfg := loadRedisConfig()
		opts = append(opts, engine.WithPriceCache(rediscache.NewPriceCache(rdb, rcfg.PriceTTL)))
		notifiers = append(notifiers, notification.NewRedisNotifier(rediscache.NewEventBus(rdb), rcfg.Channel))
		cleanup = func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("close redis", "error", err)
			}
		}
	}
	opts = append(opts, engine.WithNotifier(notifiers))

	if !offline {
		if f := InitFeed(); f != nil {
			opts = append(opts, engine.WithFeed(f))
		}
	}

	e, err := engine.NewEngine(cfg, InitMarket(cli), InitStore(db), opts...)
	if err != nil {
		panic(err)
	}
	return e, cleanup
}
