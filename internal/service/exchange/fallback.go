package exchange

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

var _ MarketService = (*FallbackMarket)(nil)

// FallbackMarket 主数据源出错时改用备用数据源, ctx 结束时不降级
type FallbackMarket struct {
	primary  MarketService
	fallback MarketService
	logger   *slog.Logger
}

func NewFallbackMarket(primary, fallback MarketService, logger *slog.Logger) *FallbackMarket {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackMarket{primary: primary, fallback: fallback, logger: logger}
}

func (m *FallbackMarket) Ticker(ctx context.Context, tradingPair TradingPair) (decimal.Decimal, error) {
	price, err := m.primary.Ticker(ctx, tradingPair)
	if err == nil || ctx.Err() != nil {
		return price, err
	}
	m.logger.Warn("ticker unavailable, using fallback market", "symbol", tradingPair, "error", err)
	return m.fallback.Ticker(ctx, tradingPair)
}

func (m *FallbackMarket) GetKlines(ctx context.Context, req GetKlinesReq) ([]Kline, error) {
	klines, err := m.primary.GetKlines(ctx, req)
	if err == nil || ctx.Err() != nil {
		return klines, err
	}
	m.logger.Warn("klines unavailable, using fallback market", "symbol", req.TradingPair, "error", err)
	return m.fallback.GetKlines(ctx, req)
}
