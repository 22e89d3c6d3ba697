package indicator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

// ErrInsufficientData 输入序列短于指标要求的最小长度
var ErrInsufficientData = errors.New("insufficient data")

// Series 按列存放的 K 线窗口, 下标 0 为最早的一根
type Series struct {
	Time   []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// FromKlines 将 decimal K线转换为 float 序列
func FromKlines(klines []exchange.Kline) Series {
	s := Series{
		Time:   make([]time.Time, len(klines)),
		Open:   make([]float64, len(klines)),
		High:   make([]float64, len(klines)),
		Low:    make([]float64, len(klines)),
		Close:  make([]float64, len(klines)),
		Volume: make([]float64, len(klines)),
	}
	for i, k := range klines {
		s.Time[i] = k.OpenTime
		s.Open[i] = k.Open.InexactFloat64()
		s.High[i] = k.High.InexactFloat64()
		s.Low[i] = k.Low.InexactFloat64()
		s.Close[i] = k.Close.InexactFloat64()
		s.Volume[i] = k.Volume.InexactFloat64()
	}
	return s
}

func (s Series) Len() int {
	return len(s.Close)
}

// Last 最新收盘价
func (s Series) Last() float64 {
	if len(s.Close) == 0 {
		return 0
	}
	return s.Close[len(s.Close)-1]
}

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%s: %w (need %d, got %d)", name, ErrInsufficientData, need, got)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func highest(values []float64) float64 {
	h := math.Inf(-1)
	for _, v := range values {
		h = math.Max(h, v)
	}
	return h
}

func lowest(values []float64) float64 {
	l := math.Inf(1)
	for _, v := range values {
		l = math.Min(l, v)
	}
	return l
}

func last(values []float64) float64 {
	return values[len(values)-1]
}
