package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

// PriceFeed 推送行情, *feed.Feed 满足
type PriceFeed interface {
	Run(ctx context.Context) error
	Ticks() <-chan exchange.PriceTick
	Unavailable() <-chan struct{}
	Err() error
	Price(pair exchange.TradingPair, maxAge time.Duration) (decimal.Decimal, bool)
	SetPairs(pairs []exchange.TradingPair)
}

// PriceCache 跨进程共享的最新价, redis.PriceCache 满足
type PriceCache interface {
	SetTick(ctx context.Context, tick exchange.PriceTick) error
	GetPrice(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, time.Time, error)
}

// priceResolver 依次尝试推送缓存, redis 缓存, REST ticker
type priceResolver struct {
	feed   PriceFeed
	cache  PriceCache
	market exchange.MarketService
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func (r *priceResolver) Price(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error) {
	if r.feed != nil {
		if price, ok := r.feed.Price(pair, r.maxAge); ok {
			return price, nil
		}
	}
	if r.cache != nil {
		price, at, err := r.cache.GetPrice(ctx, pair)
		switch {
		case err == nil && r.now().Sub(at) <= r.maxAge:
			return price, nil
		case err == nil:
			r.logger.Debug("cached price is stale", "symbol", pair, "at", at)
		default:
			r.logger.Debug("cached price unavailable", "symbol", pair, "error", err)
		}
	}
	price, err := r.market.Ticker(ctx, pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %s: %v", domain.ErrDataUnavailable, pair, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s for %s", domain.ErrDataUnavailable, price, pair)
	}
	return price, nil
}
