package engine

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/portfolio"
	"github.com/KNICEX/paper-trader/internal/service/strategy"
)

// DefaultUniverse 可跟踪的候选交易对
var DefaultUniverse = []string{
	"BTC/USDT", "ETH/USDT", "BNB/USDT", "ADA/USDT", "SOL/USDT",
	"DOT/USDT", "DOGE/USDT", "AVAX/USDT", "LINK/USDT", "POL/USDT",
	"XRP/USDT", "LTC/USDT", "UNI/USDT", "ATOM/USDT", "FTM/USDT",
	"NEAR/USDT", "ALGO/USDT", "VET/USDT", "ICP/USDT", "FIL/USDT",
}

type Config struct {
	Quote          string   `mapstructure:"quote"`
	InitialBalance float64  `mapstructure:"initial_balance"`
	Universe       []string `mapstructure:"universe"`
	// Tracked 首次启动时的跟踪列表, 为空时从 Universe 中随机抽取
	Tracked      []string `mapstructure:"tracked"`
	TrackedCount int      `mapstructure:"tracked_count"`

	Interval      time.Duration `mapstructure:"interval"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	KlineInterval string        `mapstructure:"kline_interval"`
	KlineLimit    int           `mapstructure:"kline_limit"`
	PriceMaxAge   time.Duration `mapstructure:"price_max_age"`

	ForceSellPercent float64 `mapstructure:"force_sell_percent"`
	// LargePositionValue 持仓价值超过该值时每个调度周期卖出 LargePositionSellPercent%, 负数关闭
	LargePositionValue       float64 `mapstructure:"large_position_value"`
	LargePositionSellPercent float64 `mapstructure:"large_position_sell_percent"`

	StrategyVersion string               `mapstructure:"strategy_version"`
	Risk            portfolio.RiskConfig `mapstructure:"risk"`
}

func DefaultConfig() Config {
	return Config{
		Quote:                    "USDT",
		InitialBalance:           10000,
		Universe:                 DefaultUniverse,
		TrackedCount:             10,
		Interval:                 20 * time.Second,
		Cooldown:                 20 * time.Second,
		KlineInterval:            string(exchange.Interval1h),
		KlineLimit:               100,
		PriceMaxAge:              time.Minute,
		ForceSellPercent:         50,
		LargePositionValue:       5000,
		LargePositionSellPercent: 60,
		StrategyVersion:          strategy.DefaultVersion,
		Risk:                     portfolio.DefaultRiskConfig(),
	}
}

// withDefaults 零值字段使用默认值, Risk 为零值时整体替换
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Quote == "" {
		c.Quote = d.Quote
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = d.InitialBalance
	}
	if len(c.Universe) == 0 {
		c.Universe = d.Universe
	}
	if c.TrackedCount <= 0 {
		c.TrackedCount = d.TrackedCount
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	if c.KlineInterval == "" {
		c.KlineInterval = d.KlineInterval
	}
	if c.KlineLimit <= 0 {
		c.KlineLimit = d.KlineLimit
	}
	if c.PriceMaxAge <= 0 {
		c.PriceMaxAge = d.PriceMaxAge
	}
	if c.ForceSellPercent <= 0 {
		c.ForceSellPercent = d.ForceSellPercent
	}
	if c.LargePositionValue == 0 {
		c.LargePositionValue = d.LargePositionValue
	}
	if c.LargePositionSellPercent <= 0 || c.LargePositionSellPercent > 100 {
		c.LargePositionSellPercent = d.LargePositionSellPercent
	}
	if c.StrategyVersion == "" {
		c.StrategyVersion = d.StrategyVersion
	}
	if c.Risk == (portfolio.RiskConfig{}) {
		c.Risk = d.Risk
	}
	return c
}

// parsePairs 解析交易对列表并去重
func parsePairs(symbols []string) ([]exchange.TradingPair, error) {
	pairs := make([]exchange.TradingPair, 0, len(symbols))
	for _, s := range symbols {
		pair, err := exchange.ParsePair(s)
		if err != nil {
			return nil, fmt.Errorf("parse symbol %q: %w", s, err)
		}
		pairs = append(pairs, pair)
	}
	return lo.Uniq(pairs), nil
}

func slashSymbols(pairs []exchange.TradingPair) []string {
	return lo.Map(pairs, func(p exchange.TradingPair, _ int) string {
		return p.ToSlashString()
	})
}
