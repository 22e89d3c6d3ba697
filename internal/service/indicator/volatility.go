package indicator

import "math"

type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger 布林带, 使用总体标准差
func Bollinger(closes []float64, period int, deviation float64) (Bands, error) {
	if period <= 0 || len(closes) < period {
		return Bands{}, insufficient("bollinger", period, len(closes))
	}
	return bollingerAt(closes, len(closes)-1, period, deviation), nil
}

func bollingerAt(closes []float64, idx, period int, deviation float64) Bands {
	window := closes[idx-period+1 : idx+1]
	m := mean(window)
	var variance float64
	for _, v := range window {
		variance += (v - m) * (v - m)
	}
	std := math.Sqrt(variance / float64(period))
	return Bands{
		Upper:  m + std*deviation,
		Middle: m,
		Lower:  m - std*deviation,
	}
}

// TrueRange 第 i 根的真实波幅, 下标 0 没有前收盘价, 为 NaN
func TrueRange(s Series) []float64 {
	out := nanSlice(s.Len())
	for i := 1; i < s.Len(); i++ {
		prevClose := s.Close[i-1]
		out[i] = math.Max(s.High[i]-s.Low[i],
			math.Max(math.Abs(s.High[i]-prevClose), math.Abs(s.Low[i]-prevClose)))
	}
	return out
}

// ATRSeries 真实波幅的 SMA, 下标 period 起有值
func ATRSeries(s Series, period int) ([]float64, error) {
	if period <= 0 || s.Len() < period+1 {
		return nil, insufficient("atr", period+1, s.Len())
	}
	tr := TrueRange(s)
	out := nanSlice(s.Len())
	for i := period; i < s.Len(); i++ {
		out[i] = mean(tr[i-period+1 : i+1])
	}
	return out, nil
}

func ATR(s Series, period int) (float64, error) {
	series, err := ATRSeries(s, period)
	if err != nil {
		return 0, err
	}
	return last(series), nil
}
