package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

// seriesFromCloses 每根K线 high=close+spread, low=close-spread
func seriesFromCloses(closes []float64, spread float64) Series {
	s := Series{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Time = append(s.Time, start.Add(time.Duration(i)*time.Hour))
		s.Open = append(s.Open, c)
		s.High = append(s.High, c+spread)
		s.Low = append(s.Low, c-spread)
		s.Close = append(s.Close, c)
		s.Volume = append(s.Volume, 1000)
	}
	return s
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func constant(n int, v float64) []float64 {
	return linear(n, v, 0)
}

func TestInsufficientData(t *testing.T) {
	closes := linear(10, 100, 1)
	s := seriesFromCloses(closes, 1)

	tests := []struct {
		name string
		fn   func() error
	}{
		{name: "SMA50", fn: func() error { _, err := SMA(closes, 50); return err }},
		{name: "EMA21", fn: func() error { _, err := EMA(closes, 21); return err }},
		{name: "RSI14", fn: func() error { _, err := RSI(closes, 14); return err }},
		{name: "MACD", fn: func() error { _, err := MACD(closes, 12, 26, 9); return err }},
		{name: "Bollinger", fn: func() error { _, err := Bollinger(closes, 21, 1); return err }},
		{name: "ATR10", fn: func() error { _, err := ATR(s, 10); return err }},
		{name: "Stochastic", fn: func() error { _, err := Stochastic(s, 14, 3); return err }},
		{name: "ADX", fn: func() error { _, err := ADX(s, 14); return err }},
		{name: "CCI", fn: func() error { _, err := CCI(s, 20); return err }},
		{name: "WilliamsR", fn: func() error { _, err := WilliamsR(s, 14); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInsufficientData)
		})
	}
}

func TestMovingAverages(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma, err := SMA(closes, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, sma, 1e-9)

	series, err := SMASeries(closes, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(series[1]))
	assert.InDelta(t, 2.0, series[2], 1e-9)

	ema, err := EMA(constant(30, 42), 9)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, ema, 1e-9)

	// seed=2, k=0.5: 4 -> 3, 5 -> 4
	ema, err = EMA(closes, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, ema, 1e-9)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{name: "持续上涨", closes: linear(20, 100, 1), want: 100},
		{name: "持续下跌", closes: linear(20, 100, -1), want: 0},
		{name: "横盘", closes: constant(20, 100), want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.closes, 14)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMACD(t *testing.T) {
	m, err := MACD(constant(40, 10), 12, 26, 9)
	require.NoError(t, err)
	assert.InDelta(t, 0, m.MACD, 1e-9)
	assert.InDelta(t, 0, m.Signal, 1e-9)

	m, err = MACD(linear(60, 100, 1), 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, m.MACD, 0.0)
	assert.InDelta(t, m.MACD-m.Signal, m.Histogram, 1e-9)

	_, err = MACD(linear(33, 100, 1), 12, 26, 9)
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = MACD(linear(34, 100, 1), 12, 26, 9)
	assert.NoError(t, err)
}

func TestBollinger(t *testing.T) {
	b, err := Bollinger([]float64{1, 2, 3, 4, 5}, 5, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, b.Middle, 1e-9)
	assert.InDelta(t, 3+math.Sqrt2, b.Upper, 1e-9)
	assert.InDelta(t, 3-math.Sqrt2, b.Lower, 1e-9)
}

func TestATR(t *testing.T) {
	s := seriesFromCloses(constant(6, 100), 1)
	atr, err := ATR(s, 5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, atr, 1e-9)

	_, err = ATR(seriesFromCloses(constant(5, 100), 1), 5)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// 跳空: 前收盘 100, 当根 high=111 low=109
	s = seriesFromCloses([]float64{100, 110}, 1)
	tr := TrueRange(s)
	assert.True(t, math.IsNaN(tr[0]))
	assert.InDelta(t, 11.0, tr[1], 1e-9)
}

func TestOscillators(t *testing.T) {
	t.Run("stochastic 收于最高", func(t *testing.T) {
		s := seriesFromCloses(linear(20, 100, 1), 0)
		st, err := Stochastic(s, 14, 3)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, last(st.K), 1e-9)
		assert.InDelta(t, 100.0, last(st.D), 1e-9)
	})

	t.Run("stochastic 无波动", func(t *testing.T) {
		s := seriesFromCloses(constant(20, 100), 0)
		st, err := Stochastic(s, 14, 3)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, last(st.K), 1e-9)
	})

	t.Run("cci 横盘为 0", func(t *testing.T) {
		cci, err := CCI(seriesFromCloses(constant(25, 100), 1), 20)
		require.NoError(t, err)
		assert.InDelta(t, 0, cci, 1e-9)
	})

	t.Run("cci 突破为正", func(t *testing.T) {
		closes := append(constant(24, 100), 120)
		cci, err := CCI(seriesFromCloses(closes, 1), 20)
		require.NoError(t, err)
		assert.Greater(t, cci, 150.0)
	})

	t.Run("williams 区间", func(t *testing.T) {
		wr, err := WilliamsR(seriesFromCloses(linear(20, 100, 1), 0), 14)
		require.NoError(t, err)
		assert.InDelta(t, 0, wr, 1e-9)

		wr, err = WilliamsR(seriesFromCloses(linear(20, 100, -1), 0), 14)
		require.NoError(t, err)
		assert.InDelta(t, -100, wr, 1e-9)

		wr, err = WilliamsR(seriesFromCloses(constant(20, 100), 0), 14)
		require.NoError(t, err)
		assert.InDelta(t, -50, wr, 1e-9)
	})
}

func TestADX(t *testing.T) {
	s := seriesFromCloses(linear(40, 100, 1), 1)
	res, err := ADX(s, 14)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.PlusDI, 1e-9)
	assert.InDelta(t, 0, res.MinusDI, 1e-9)
	assert.InDelta(t, 100.0, res.ADX, 1e-9)

	_, err = ADX(seriesFromCloses(linear(27, 100, 1), 1), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = ADX(seriesFromCloses(linear(28, 100, 1), 1), 14)
	assert.NoError(t, err)
}

func TestCompute(t *testing.T) {
	snap := Compute(seriesFromCloses(linear(30, 100, 1), 1))
	assert.InDelta(t, 129.0, snap.Price, 1e-9)
	assert.True(t, snap.SMA20.Ready)
	assert.False(t, snap.SMA50.Ready)
	assert.False(t, snap.MACD.Ready)
	assert.True(t, snap.ADX.Ready)
	assert.True(t, snap.ATR.Ready)
	assert.True(t, snap.BollMiddle.Ready)
	assert.True(t, snap.WilliamsR.Ready)

	empty := Compute(Series{})
	assert.False(t, empty.SMA20.Ready)
	assert.False(t, empty.RSI.Ready)
	assert.False(t, empty.ATR.Ready)
	assert.Equal(t, 0.0, empty.Price)
}

func TestFromKlines(t *testing.T) {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := FromKlines([]exchange.Kline{{
		OpenTime: open,
		Open:     decimal.NewFromFloat(1.5),
		High:     decimal.NewFromFloat(2),
		Low:      decimal.NewFromFloat(1),
		Close:    decimal.NewFromFloat(1.75),
		Volume:   decimal.NewFromInt(10),
	}})
	require.Equal(t, 1, s.Len())
	assert.Equal(t, open, s.Time[0])
	assert.InDelta(t, 1.75, s.Last(), 1e-9)
	assert.InDelta(t, 10.0, s.Volume[0], 1e-9)
}
