package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

// PriceCache 价格存成 hash "paper:price:{BTCUSDT}", 字段 price 与 ts(纳秒)
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache ttl <= 0 时不过期
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(pair exchange.TradingPair) string {
	return "paper:price:" + pair.ToString()
}

// SetTick 写入 tick 的价格与接收时间
func (pc *PriceCache) SetTick(ctx context.Context, tick exchange.PriceTick) error {
	key := priceKey(tick.TradingPair)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": tick.Price.String(),
		"ts":    strconv.FormatInt(tick.ReceivedAt.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", tick.TradingPair, err)
	}
	return nil
}

// GetPrice 缓存中没有时返回 domain.ErrDataUnavailable
func (pc *PriceCache) GetPrice(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(pair)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", pair, err)
	}
	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("%w: no cached price for %s", domain.ErrDataUnavailable, pair)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", pair, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", pair, err)
	}
	return price, time.Unix(0, tsNano), nil
}
