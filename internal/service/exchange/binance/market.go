package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

var _ exchange.MarketService = (*MarketService)(nil)

// MarketService 币安现货 K 线与最新价
type MarketService struct {
	cli *binance.Client
}

// NewMarketService 创建市场数据服务
func NewMarketService(cli *binance.Client) *MarketService {
	return &MarketService{cli: cli}
}

func (m *MarketService) convertKlines(klines []*binance.Kline) ([]exchange.Kline, error) {
	kls := make([]exchange.Kline, len(klines))
	for i, k := range klines {
		fields := [...]string{k.Open, k.Close, k.High, k.Low, k.Volume, k.QuoteAssetVolume}
		var values [len(fields)]decimal.Decimal
		for j, f := range fields {
			v, err := decimal.NewFromString(f)
			if err != nil {
				return nil, fmt.Errorf("parse kline %d field %q: %w", k.OpenTime, f, err)
			}
			values[j] = v
		}
		kls[i] = exchange.Kline{
			OpenTime:         time.UnixMilli(k.OpenTime),
			CloseTime:        time.UnixMilli(k.CloseTime),
			Open:             values[0],
			Close:            values[1],
			High:             values[2],
			Low:              values[3],
			Volume:           values[4],
			QuoteAssetVolume: values[5],
		}
	}
	return kls, nil
}

func (m *MarketService) GetKlines(ctx context.Context, req exchange.GetKlinesReq) ([]exchange.Kline, error) {
	svc := m.cli.NewKlinesService().Symbol(req.TradingPair.ToString()) // 币安 API 使用 BTCUSDT 格式，不是 BTC/USDT
	if req.Interval.ToString() != "" {
		svc.Interval(req.Interval.ToString())
	}
	if req.Limit > 0 {
		svc.Limit(req.Limit)
	}
	if !req.StartTime.IsZero() {
		svc.StartTime(req.StartTime.UnixMilli())
	}
	if !req.EndTime.IsZero() {
		svc.EndTime(req.EndTime.UnixMilli())
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s: %v", domain.ErrDataUnavailable, req.TradingPair, err)
	}
	kls, err := m.convertKlines(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	return kls, nil
}

func (m *MarketService) Ticker(ctx context.Context, tradingPair exchange.TradingPair) (decimal.Decimal, error) {
	prices, err := m.cli.NewListPricesService().Symbol(tradingPair.ToString()).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ticker %s: %v", domain.ErrDataUnavailable, tradingPair, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no ticker for %s", domain.ErrDataUnavailable, tradingPair)
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: invalid ticker price %q for %s", domain.ErrDataUnavailable, prices[0].Price, tradingPair)
	}
	return price, nil
}
