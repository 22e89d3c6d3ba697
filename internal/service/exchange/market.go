package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketService K线与最新价来源
type MarketService interface {
	Ticker(ctx context.Context, tradingPair TradingPair) (decimal.Decimal, error)
	GetKlines(ctx context.Context, req GetKlinesReq) ([]Kline, error)
}

type GetKlinesReq struct {
	TradingPair        TradingPair
	Interval           Interval
	Limit              int // 0 表示由数据源决定
	StartTime, EndTime time.Time
}

// SymbolService 交易所当前可交易的交易对
type SymbolService interface {
	ListedPairs(ctx context.Context, candidates []TradingPair) ([]TradingPair, error)
}
