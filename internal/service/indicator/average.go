package indicator

import "math"

// SMASeries 简单移动平均, 前 period-1 个值为 NaN
func SMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, insufficient("sma", period, len(values))
	}
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		out[i] = mean(values[i-period+1 : i+1])
	}
	return out, nil
}

func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, insufficient("sma", period, len(values))
	}
	return mean(values[len(values)-period:]), nil
}

// EMASeries 指数移动平均, 以前 period 个值的 SMA 作为种子
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, insufficient("ema", period, len(values))
	}
	out := nanSlice(len(values))
	k := 2.0 / float64(period+1)
	out[period-1] = mean(values[:period])
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out, nil
}

func EMA(values []float64, period int) (float64, error) {
	series, err := EMASeries(values, period)
	if err != nil {
		return 0, err
	}
	return last(series), nil
}

// RSI Wilder 平滑的相对强弱指数
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, insufficient("rsi", period+1, len(closes))
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		up, down := math.Max(change, 0), math.Max(-change, 0)
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD 需要 slow+signal-1 根K线
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	need := slow + signal - 1
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < need {
		return MACDResult{}, insufficient("macd", need, len(closes))
	}
	fastEMA, err := EMASeries(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := EMASeries(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, fastEMA[i]-slowEMA[i])
	}
	signalLine, err := EMASeries(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	m, s := last(line), last(signalLine)
	return MACDResult{MACD: m, Signal: s, Histogram: m - s}, nil
}
