// Package mock 离线运行与测试用的合成 K 线来源
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

var _ exchange.MarketService = (*MarketService)(nil)

type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
	TrendVolatile Trend = "volatile"
)

// BasePrices 合成行情的基准价, key: BTC/USDT
var BasePrices = map[string]float64{
	"BTC/USDT": 45000, "ETH/USDT": 2800, "BNB/USDT": 320, "ADA/USDT": 0.45,
	"SOL/USDT": 95, "DOT/USDT": 6.5, "DOGE/USDT": 0.08, "AVAX/USDT": 25,
	"LINK/USDT": 15, "POL/USDT": 0.7, "XRP/USDT": 0.5, "LTC/USDT": 80,
	"UNI/USDT": 6, "ATOM/USDT": 8, "FTM/USDT": 0.3, "NEAR/USDT": 2,
	"ALGO/USDT": 0.2, "VET/USDT": 0.02, "ICP/USDT": 5, "FIL/USDT": 4,
}

const (
	defaultBasePrice = 100
	syntheticCount   = 100
)

// BasePrice 未收录的交易对使用 100
func BasePrice(pair exchange.TradingPair) float64 {
	if p, ok := BasePrices[pair.ToSlashString()]; ok {
		return p
	}
	return defaultBasePrice
}

// MarketService 内存中的 K 线, key: tradingPair_interval
type MarketService struct {
	mu     sync.RWMutex
	klines map[string][]exchange.Kline
	prices map[string]decimal.Decimal

	// synthetic 非空时, 没有数据的交易对按基准价即时生成截至当前时间的 K 线
	synthetic func() time.Time
}

func NewMarketService() *MarketService {
	return &MarketService{
		klines: make(map[string][]exchange.Kline),
		prices: make(map[string]decimal.Decimal),
	}
}

// NewSynthetic 离线运行或行情接口故障时使用的合成行情
func NewSynthetic(now func() time.Time) *MarketService {
	m := NewMarketService()
	m.synthetic = now
	return m
}

// synthesize 生成截至当前时间的波动行情, 已有数据时不覆盖
func (m *MarketService) synthesize(pair exchange.TradingPair, interval exchange.Interval, count int) {
	step := interval.Duration()
	if step == 0 {
		step = time.Hour
	}
	count = max(count, syntheticCount)
	end := m.synthetic().Truncate(step)
	klines := Generate(interval, end.Add(-time.Duration(count)*step), BasePrice(pair), count, TrendVolatile)

	m.mu.Lock()
	defer m.mu.Unlock()
	key := klineKey(pair, interval)
	if _, ok := m.klines[key]; ok {
		return
	}
	m.klines[key] = klines
	if _, ok := m.prices[pair.ToString()]; !ok {
		m.prices[pair.ToString()] = klines[len(klines)-1].Close
	}
}

func klineKey(pair exchange.TradingPair, interval exchange.Interval) string {
	return pair.ToString() + "_" + interval.ToString()
}

// AddKlines 设置某交易对某周期的 K 线, 最后一根的收盘价作为最新价
func (m *MarketService) AddKlines(pair exchange.TradingPair, interval exchange.Interval, klines []exchange.Kline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klines[klineKey(pair, interval)] = klines
	if len(klines) > 0 {
		m.prices[pair.ToString()] = klines[len(klines)-1].Close
	}
}

// SetPrice 覆盖最新价
func (m *MarketService) SetPrice(pair exchange.TradingPair, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[pair.ToString()] = price
}

// GenerateKlines 生成 count 根模拟 K 线
// trend: up 每根涨 0.5%, down 每根跌 0.5%, volatile 上下波动, 其余横盘
func (m *MarketService) GenerateKlines(
	pair exchange.TradingPair,
	interval exchange.Interval,
	startTime time.Time,
	basePrice float64,
	count int,
	trend Trend,
) []exchange.Kline {
	klines := Generate(interval, startTime, basePrice, count, trend)
	m.AddKlines(pair, interval, klines)
	return klines
}

// Generate 生成 K 线但不保存
func Generate(interval exchange.Interval, startTime time.Time, basePrice float64, count int, trend Trend) []exchange.Kline {
	step := interval.Duration()
	if step == 0 {
		step = time.Hour
	}
	klines := make([]exchange.Kline, count)
	for i := 0; i < count; i++ {
		var price float64
		switch trend {
		case TrendUp:
			price = basePrice * (1 + float64(i)*0.005)
		case TrendDown:
			price = basePrice * (1 - float64(i)*0.005)
		case TrendVolatile:
			if i%2 == 0 {
				price = basePrice * (1 + float64(i%10)*0.002)
			} else {
				price = basePrice * (1 - float64(i%10)*0.002)
			}
		default:
			price = basePrice * (1 + (float64(i%5)-2)*0.001)
		}

		openTime := startTime.Add(time.Duration(i) * step)
		volume := 1000 + float64(i)*10
		klines[i] = exchange.Kline{
			OpenTime:         openTime,
			CloseTime:        openTime.Add(step),
			Open:             decimal.NewFromFloat(price * 0.999),
			Close:            decimal.NewFromFloat(price),
			High:             decimal.NewFromFloat(price * 1.005),
			Low:              decimal.NewFromFloat(price * 0.995),
			Volume:           decimal.NewFromFloat(volume),
			QuoteAssetVolume: decimal.NewFromFloat(price * volume),
		}
	}
	return klines
}

// GetKlines 按时间范围过滤后取最后 Limit 根
func (m *MarketService) GetKlines(ctx context.Context, req exchange.GetKlinesReq) ([]exchange.Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all, ok := m.klines[klineKey(req.TradingPair, req.Interval)]
	m.mu.RUnlock()
	if !ok && m.synthetic != nil {
		m.synthesize(req.TradingPair, req.Interval, req.Limit)
		m.mu.RLock()
		all, ok = m.klines[klineKey(req.TradingPair, req.Interval)]
		m.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("%w: no klines for %s %s", domain.ErrDataUnavailable, req.TradingPair, req.Interval)
	}

	result := make([]exchange.Kline, 0, len(all))
	for _, k := range all {
		if !req.StartTime.IsZero() && k.OpenTime.Before(req.StartTime) {
			continue
		}
		if !req.EndTime.IsZero() && !k.OpenTime.Before(req.EndTime) {
			continue
		}
		result = append(result, k)
	}
	if req.Limit > 0 && len(result) > req.Limit {
		result = result[len(result)-req.Limit:]
	}
	return result, nil
}

func (m *MarketService) Ticker(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	m.mu.RLock()
	price, ok := m.prices[pair.ToString()]
	m.mu.RUnlock()
	if !ok && m.synthetic != nil {
		m.synthesize(pair, exchange.Interval1h, syntheticCount)
		m.mu.RLock()
		price, ok = m.prices[pair.ToString()]
		m.mu.RUnlock()
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", domain.ErrDataUnavailable, pair)
	}
	return price, nil
}
