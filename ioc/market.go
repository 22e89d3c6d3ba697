package ioc

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/spf13/viper"

	"github.com/KNICEX/paper-trader/internal/service/exchange"
	binancesvc "github.com/KNICEX/paper-trader/internal/service/exchange/binance"
	"github.com/KNICEX/paper-trader/internal/service/exchange/mock"
)

const (
	marketSourceBinance  = "binance"
	marketSourceMock     = "mock"
	marketSourceFallback = "fallback"
)

// loadMarketSource binance: 只用 REST; mock: 离线合成行情; fallback: REST 失败时使用合成行情
func loadMarketSource() string {
	viper.SetDefault("market.source", marketSourceFallback)
	return viper.GetString("market.source")
}

func InitMarket(cli *binance.Client) exchange.MarketService {
	source := loadMarketSource()
	switch source {
	case marketSourceBinance:
		return binancesvc.NewMarketService(cli)
	case marketSourceMock:
		slog.Info("using synthetic market data")
		return mock.NewSynthetic(time.Now)
	case marketSourceFallback:
		return exchange.NewFallbackMarket(binancesvc.NewMarketService(cli), mock.NewSynthetic(time.Now), slog.Default())
	default:
		panic(fmt.Errorf("unknown market source %q", source))
	}
}
