package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubMarket) Ticker(ctx context.Context, tradingPair TradingPair) (decimal.Decimal, error) {
	s.calls++
	return s.price, s.err
}

func (s *stubMarket) GetKlines(ctx context.Context, req GetKlinesReq) ([]Kline, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []Kline{{Close: s.price}}, nil
}

func TestFallbackMarket(t *testing.T) {
	btcUsdt := TradingPair{Base: "BTC", Quote: "USDT"}
	tests := []struct {
		name          string
		primaryErr    error
		cancel        bool
		want          decimal.Decimal
		wantErr       bool
		fallbackCalls int
	}{
		{name: "主数据源正常", want: decimal.NewFromInt(50000)},
		{name: "主数据源失败时降级", primaryErr: errors.New("503"), want: decimal.NewFromInt(45000), fallbackCalls: 2},
		{name: "ctx 取消时不降级", primaryErr: context.Canceled, cancel: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &stubMarket{price: decimal.NewFromInt(50000), err: tt.primaryErr}
			fallback := &stubMarket{price: decimal.NewFromInt(45000)}
			m := NewFallbackMarket(primary, fallback, nil)
			ctx, cancel := context.WithCancel(context.Background())
			if tt.cancel {
				cancel()
			} else {
				defer cancel()
			}

			price, err := m.Ticker(ctx, btcUsdt)
			klines, kerr := m.GetKlines(ctx, GetKlinesReq{TradingPair: btcUsdt, Interval: Interval1h})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, kerr)
			} else {
				require.NoError(t, err)
				require.NoError(t, kerr)
				assert.True(t, tt.want.Equal(price))
				require.Len(t, klines, 1)
				assert.True(t, tt.want.Equal(klines[0].Close))
			}
			assert.Equal(t, 2, primary.calls)
			assert.Equal(t, tt.fallbackCalls, fallback.calls)
		})
	}
}
