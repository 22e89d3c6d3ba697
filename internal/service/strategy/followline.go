package strategy

import (
	"fmt"

	"github.com/KNICEX/paper-trader/internal/service/indicator"
)

type bbState int

const (
	bbNeutral bbState = iota
	bbBullish
	bbBearish
)

func (b bbState) String() string {
	switch b {
	case bbBullish:
		return "BULLISH"
	case bbBearish:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

var _ Evaluator = (*FollowLine)(nil)

// FollowLine 布林带突破 + ATR 棘轮的趋势跟随线
type FollowLine struct {
	atrPeriod   int
	bbPeriod    int
	bbDeviation float64
}

func NewFollowLine() *FollowLine {
	return &FollowLine{
		atrPeriod:   indicator.ATRPeriod,
		bbPeriod:    indicator.BollingerPeriod,
		bbDeviation: indicator.BollingerDeviation,
	}
}

func (f *FollowLine) Name() string {
	return NameFollowLine
}

// MinCandles 至少要有一根前置K线作为棘轮的起点
func (f *FollowLine) MinCandles() int {
	return max(f.atrPeriod, f.bbPeriod) + 1
}

// followPoint 某根K线收盘后的跟随线状态
type followPoint struct {
	index int
	line  float64
	atr   float64
	state bbState
	trend bbState
}

// Evaluate 逐根重放整个窗口, 棘轮始终基于真实的上一根跟随线
func (f *FollowLine) Evaluate(s indicator.Series, _ indicator.Snapshot) Signal {
	if s.Len() < f.MinCandles() {
		return hold(f.Name(), fmt.Sprintf("insufficient data: need %d candles, got %d", f.MinCandles(), s.Len()), 0)
	}
	points, err := f.trace(s)
	if err != nil {
		return hold(f.Name(), err.Error(), 0)
	}
	p := points[len(points)-1]

	sig := Signal{
		Strategy:   f.Name(),
		Support:    p.line - p.atr,
		Resistance: p.line + p.atr,
	}
	switch p.state {
	case bbBullish:
		sig.Action = SignalActionBuy
		sig.Confidence = 0.6
		if p.trend == bbBullish {
			sig.Confidence = 0.8
		}
	case bbBearish:
		sig.Action = SignalActionSell
		sig.Confidence = 0.6
		if p.trend == bbBearish {
			sig.Confidence = 0.8
		}
	default:
		sig.Action = SignalActionHold
		sig.Confidence = 0.1
	}
	sig.Reason = fmt.Sprintf("bb=%s trend=%s line=%.4f atr=%.4f", p.state, p.trend, p.line, p.atr)
	return sig
}

// trace 从第一根指标就绪的K线开始逐根计算跟随线.
// 多头状态下线只升不降, 空头状态下只降不升, 区间内保持不变
func (f *FollowLine) trace(s indicator.Series) ([]followPoint, error) {
	atrs, err := indicator.ATRSeries(s, f.atrPeriod)
	if err != nil {
		return nil, err
	}

	first := max(f.atrPeriod, f.bbPeriod-1)
	points := make([]followPoint, 0, s.Len()-first)
	var (
		line    float64
		hasLine bool
		trend   = bbNeutral
	)
	for i := first; i < s.Len(); i++ {
		bands, err := indicator.Bollinger(s.Close[:i+1], f.bbPeriod, f.bbDeviation)
		if err != nil {
			return nil, err
		}
		atr := atrs[i]
		state := classify(s.Close[i], bands)

		next := line
		switch state {
		case bbBullish:
			next = s.Low[i] - atr
			if hasLine && next < line {
				next = line
			}
		case bbBearish:
			next = s.High[i] + atr
			if hasLine && next > line {
				next = line
			}
		default:
			if !hasLine {
				next = s.Close[i]
			}
		}

		if hasLine {
			if next > line {
				trend = bbBullish
			} else if next < line {
				trend = bbBearish
			}
		}
		line, hasLine = next, true
		points = append(points, followPoint{index: i, line: line, atr: atr, state: state, trend: trend})
	}
	return points, nil
}

func classify(close float64, bands indicator.Bands) bbState {
	switch {
	case close > bands.Upper:
		return bbBullish
	case close < bands.Lower:
		return bbBearish
	default:
		return bbNeutral
	}
}
