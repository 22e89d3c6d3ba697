package mock

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

var btcUsdt = exchange.TradingPair{Base: "BTC", Quote: "USDT"}

func TestGenerateTrends(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		trend Trend
		last  float64
	}{
		{trend: TrendUp, last: 100 * (1 + 9*0.005)},
		{trend: TrendDown, last: 100 * (1 - 9*0.005)},
		{trend: TrendSideways, last: 100 * (1 + 2*0.001)},
	}
	for _, tt := range tests {
		t.Run(string(tt.trend), func(t *testing.T) {
			klines := Generate(exchange.Interval1h, start, 100, 10, tt.trend)
			require.Len(t, klines, 10)
			got, _ := klines[9].Close.Float64()
			assert.InDelta(t, tt.last, got, 1e-9)
			assert.Equal(t, start.Add(9*time.Hour), klines[9].OpenTime)
			assert.Equal(t, start.Add(10*time.Hour), klines[9].CloseTime)
			assert.True(t, klines[9].High.GreaterThan(klines[9].Low))
		})
	}
}

func TestGetKlines(t *testing.T) {
	m := NewMarketService()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.GenerateKlines(btcUsdt, exchange.Interval1h, start, 100, 50, TrendUp)

	t.Run("limit 取最后几根", func(t *testing.T) {
		klines, err := m.GetKlines(context.Background(), exchange.GetKlinesReq{
			TradingPair: btcUsdt, Interval: exchange.Interval1h, Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, klines, 10)
		assert.Equal(t, start.Add(40*time.Hour), klines[0].OpenTime)
	})

	t.Run("时间范围", func(t *testing.T) {
		klines, err := m.GetKlines(context.Background(), exchange.GetKlinesReq{
			TradingPair: btcUsdt, Interval: exchange.Interval1h,
			StartTime: start.Add(5 * time.Hour), EndTime: start.Add(8 * time.Hour),
		})
		require.NoError(t, err)
		assert.Len(t, klines, 3)
	})

	t.Run("未知交易对", func(t *testing.T) {
		_, err := m.GetKlines(context.Background(), exchange.GetKlinesReq{
			TradingPair: exchange.TradingPair{Base: "ETH", Quote: "USDT"}, Interval: exchange.Interval1h,
		})
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})
}

func TestTicker(t *testing.T) {
	m := NewMarketService()
	_, err := m.Ticker(context.Background(), btcUsdt)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	klines := m.GenerateKlines(btcUsdt, exchange.Interval1h, time.Now(), 100, 5, TrendSideways)
	price, err := m.Ticker(context.Background(), btcUsdt)
	require.NoError(t, err)
	assert.True(t, klines[4].Close.Equal(price))

	m.SetPrice(btcUsdt, decimal.NewFromInt(42))
	price, err = m.Ticker(context.Background(), btcUsdt)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(price))
}

func TestSyntheticMarket(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name  string
		pair  exchange.TradingPair
		limit int
		base  float64
		want  int
	}{
		{name: "收录的交易对", pair: btcUsdt, limit: 100, base: 45000, want: 100},
		{name: "未收录的交易对", pair: exchange.TradingPair{Base: "FOO", Quote: "USDT"}, limit: 20, base: 100, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSynthetic(func() time.Time { return now })
			klines, err := m.GetKlines(ctx, exchange.GetKlinesReq{
				TradingPair: tt.pair, Interval: exchange.Interval1h, Limit: tt.limit,
			})
			require.NoError(t, err)
			require.Len(t, klines, tt.want)
			// 最后一根在当前小时之前收盘
			assert.Equal(t, now.Truncate(time.Hour), klines[len(klines)-1].CloseTime)
			for _, k := range klines {
				c, _ := k.Close.Float64()
				assert.InDelta(t, tt.base, c, tt.base*0.02)
			}

			price, err := m.Ticker(ctx, tt.pair)
			require.NoError(t, err)
			assert.True(t, klines[len(klines)-1].Close.Equal(price))
		})
	}

	t.Run("不覆盖已有数据", func(t *testing.T) {
		m := NewSynthetic(func() time.Time { return now })
		m.SetPrice(btcUsdt, decimal.NewFromInt(50100))
		price, err := m.Ticker(ctx, btcUsdt)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(50100).Equal(price))
	})

	t.Run("普通模式不生成", func(t *testing.T) {
		_, err := NewMarketService().Ticker(ctx, btcUsdt)
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})
}
