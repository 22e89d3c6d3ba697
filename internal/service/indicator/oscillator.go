package indicator

import "math"

// StochSeries %K 与 %D(= %K 的 smooth 周期 SMA)
type StochSeries struct {
	K []float64
	D []float64
}

// Stochastic 需要 period+smooth-1 根K线
func Stochastic(s Series, period, smooth int) (StochSeries, error) {
	need := period + smooth - 1
	if period <= 0 || smooth <= 0 || s.Len() < need {
		return StochSeries{}, insufficient("stochastic", need, s.Len())
	}
	k := nanSlice(s.Len())
	for i := period - 1; i < s.Len(); i++ {
		hh := highest(s.High[i-period+1 : i+1])
		ll := lowest(s.Low[i-period+1 : i+1])
		if hh == ll {
			k[i] = 50
			continue
		}
		k[i] = 100 * (s.Close[i] - ll) / (hh - ll)
	}
	d := nanSlice(s.Len())
	for i := need - 1; i < s.Len(); i++ {
		d[i] = mean(k[i-smooth+1 : i+1])
	}
	return StochSeries{K: k, D: d}, nil
}

// CCI 商品通道指数, 常数 0.015
func CCI(s Series, period int) (float64, error) {
	if period <= 0 || s.Len() < period {
		return 0, insufficient("cci", period, s.Len())
	}
	tp := make([]float64, period)
	start := s.Len() - period
	for i := range tp {
		j := start + i
		tp[i] = (s.High[j] + s.Low[j] + s.Close[j]) / 3
	}
	m := mean(tp)
	var dev float64
	for _, v := range tp {
		dev += math.Abs(v - m)
	}
	dev /= float64(period)
	if dev == 0 {
		return 0, nil
	}
	return (last(tp) - m) / (0.015 * dev), nil
}

// WilliamsR 取值 [-100, 0]
func WilliamsR(s Series, period int) (float64, error) {
	if period <= 0 || s.Len() < period {
		return 0, insufficient("williams_r", period, s.Len())
	}
	start := s.Len() - period
	hh := highest(s.High[start:])
	ll := lowest(s.Low[start:])
	if hh == ll {
		return -50, nil
	}
	return -100 * (hh - s.Last()) / (hh - ll), nil
}
