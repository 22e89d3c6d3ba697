package strategy

import (
	"fmt"

	"github.com/KNICEX/paper-trader/internal/service/indicator"
)

type TrendStrength string

const (
	TrendWeak     TrendStrength = "weak"
	TrendModerate TrendStrength = "moderate"
	TrendStrong   TrendStrength = "strong"
)

func strengthOf(adx float64) TrendStrength {
	switch {
	case adx < 20:
		return TrendWeak
	case adx < 25:
		return TrendModerate
	default:
		return TrendStrong
	}
}

var _ Evaluator = (*Momentum)(nil)

// Momentum CCI / Williams %R 给方向, ADX 方向调整置信度
type Momentum struct {
	cciLevel   float64
	wrOversold float64
	wrOverbuy  float64
	agreeMul   float64
	conflict   float64
}

func NewMomentum() *Momentum {
	return &Momentum{
		cciLevel:   150,
		wrOversold: -70,
		wrOverbuy:  -30,
		agreeMul:   1.2,
		conflict:   0.7,
	}
}

func (m *Momentum) Name() string {
	return NameMomentum
}

func (m *Momentum) Evaluate(_ indicator.Series, snap indicator.Snapshot) Signal {
	if !snap.CCI.Ready && !snap.WilliamsR.Ready {
		return hold(m.Name(), "insufficient data for cci and williams %r", 0)
	}

	var components []Signal
	if snap.CCI.Ready {
		switch cci := snap.CCI.Value; {
		case cci < -m.cciLevel:
			components = append(components, Signal{Action: SignalActionBuy, Confidence: 0.6})
		case cci > m.cciLevel:
			components = append(components, Signal{Action: SignalActionSell, Confidence: 0.6})
		}
	}
	if snap.WilliamsR.Ready {
		switch wr := snap.WilliamsR.Value; {
		case wr < m.wrOversold:
			components = append(components, Signal{Action: SignalActionBuy, Confidence: 0.5})
		case wr > m.wrOverbuy:
			components = append(components, Signal{Action: SignalActionSell, Confidence: 0.5})
		}
	}

	reason := fmt.Sprintf("cci=%.2f wr=%.2f", snap.CCI.Value, snap.WilliamsR.Value)
	if len(components) == 0 {
		return hold(m.Name(), reason, 0)
	}
	action, conf := components[0].Action, components[0].Confidence
	for _, c := range components[1:] {
		if c.Action != action {
			return hold(m.Name(), "conflicting components: "+reason, 0)
		}
		conf = max(conf, c.Confidence)
	}

	if snap.ADX.Ready {
		var adxDir SignalAction
		switch {
		case snap.PlusDI.Value > snap.MinusDI.Value:
			adxDir = SignalActionBuy
		case snap.PlusDI.Value < snap.MinusDI.Value:
			adxDir = SignalActionSell
		}
		if adxDir == action {
			conf *= m.agreeMul
		} else if adxDir != "" {
			conf *= m.conflict
		}
		reason += fmt.Sprintf(" adx=%.2f(%s) di+=%.2f di-=%.2f",
			snap.ADX.Value, strengthOf(snap.ADX.Value), snap.PlusDI.Value, snap.MinusDI.Value)
	}

	return Signal{
		Strategy:   m.Name(),
		Action:     action,
		Confidence: clamp01(conf),
		Reason:     reason,
	}
}
