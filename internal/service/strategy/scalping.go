package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/KNICEX/paper-trader/internal/service/indicator"
)

var _ Evaluator = (*Scalping)(nil)

// Scalping EMA5/13 交叉 + 随机指标超买超卖区交叉, 放量只加强不触发
type Scalping struct {
	fastPeriod   int
	slowPeriod   int
	stochPeriod  int
	stochSmooth  int
	volumeWindow int

	crossWeight  float64
	stochWeight  float64
	minConfident float64
}

func NewScalping() *Scalping {
	return &Scalping{
		fastPeriod:   5,
		slowPeriod:   13,
		stochPeriod:  indicator.StochPeriod,
		stochSmooth:  indicator.StochSmooth,
		volumeWindow: 20,
		crossWeight:  0.4,
		stochWeight:  0.3,
		minConfident: 0.6,
	}
}

func (s *Scalping) Name() string {
	return NameScalping
}

// MinCandles 需要上一根的 %D 来判断交叉
func (s *Scalping) MinCandles() int {
	return max(s.slowPeriod+1, s.stochPeriod+s.stochSmooth)
}

func (s *Scalping) Evaluate(series indicator.Series, _ indicator.Snapshot) Signal {
	n := series.Len()
	if n < s.MinCandles() {
		return hold(s.Name(), fmt.Sprintf("insufficient data: need %d candles, got %d", s.MinCandles(), n), 0)
	}
	fast, err := indicator.EMASeries(series.Close, s.fastPeriod)
	if err != nil {
		return hold(s.Name(), err.Error(), 0)
	}
	slow, err := indicator.EMASeries(series.Close, s.slowPeriod)
	if err != nil {
		return hold(s.Name(), err.Error(), 0)
	}
	stoch, err := indicator.Stochastic(series, s.stochPeriod, s.stochSmooth)
	if err != nil {
		return hold(s.Name(), err.Error(), 0)
	}

	var buy, sell float64
	var reasons []string

	cur, prev := n-1, n-2
	switch {
	case fast[prev] <= slow[prev] && fast[cur] > slow[cur]:
		buy += s.crossWeight
		reasons = append(reasons, "ema golden cross")
	case fast[prev] >= slow[prev] && fast[cur] < slow[cur]:
		sell += s.crossWeight
		reasons = append(reasons, "ema death cross")
	}

	k, d := stoch.K[cur], stoch.D[cur]
	pk, pd := stoch.K[prev], stoch.D[prev]
	switch {
	case k < 25 && d < 25 && pk <= pd && k > d:
		buy += s.stochWeight
		reasons = append(reasons, fmt.Sprintf("stoch oversold cross k=%.1f d=%.1f", k, d))
	case k > 75 && d > 75 && pk >= pd && k < d:
		sell += s.stochWeight
		reasons = append(reasons, fmt.Sprintf("stoch overbought cross k=%.1f d=%.1f", k, d))
	}

	if buy > 0 && sell > 0 {
		return hold(s.Name(), "conflicting components: "+strings.Join(reasons, ", "), 0)
	}
	action, conf := SignalActionHold, 0.0
	if buy > 0 {
		action, conf = SignalActionBuy, buy
	} else if sell > 0 {
		action, conf = SignalActionSell, sell
	}
	if action == SignalActionHold {
		return hold(s.Name(), "no crossover", 0)
	}

	if ratio, ok := s.volumeRatio(series); ok && ratio > 2 {
		conf += math.Min(0.3, (ratio-1)*0.1)
		reasons = append(reasons, fmt.Sprintf("volume spike x%.2f", ratio))
	}
	conf = clamp01(conf)
	if conf < s.minConfident {
		return hold(s.Name(), fmt.Sprintf("weak %s %.2f: %s", action, conf, strings.Join(reasons, ", ")), conf)
	}
	return Signal{
		Strategy:   s.Name(),
		Action:     action,
		Confidence: conf,
		Reason:     strings.Join(reasons, ", "),
	}
}

// volumeRatio 当前成交量 / 之前 volumeWindow 根的均量
func (s *Scalping) volumeRatio(series indicator.Series) (float64, bool) {
	n := len(series.Volume)
	if n < s.volumeWindow+1 {
		return 0, false
	}
	var sum float64
	for _, v := range series.Volume[n-1-s.volumeWindow : n-1] {
		sum += v
	}
	avg := sum / float64(s.volumeWindow)
	if avg <= 0 {
		return 0, false
	}
	return series.Volume[n-1] / avg, true
}
