package strategy

// Weights 策略名 -> 投票权重
type Weights map[string]float64

// DefaultWeights 四策略融合权重
var DefaultWeights = Weights{
	NameFollowLine:    0.30,
	NameScalping:      0.25,
	NameVolumeProfile: 0.25,
	NameMomentum:      0.20,
}

// FusionThreshold 买卖强度需要超过该值才会给出方向
const FusionThreshold = 0.5

// Fuse 加权投票. 只有非 HOLD 的策略计入权重, 结果与输入一一对应, 没有随机性.
// HOLD 的置信度取两个方向强度的较大者, 仅供观察.
func Fuse(signals []Signal, weights Weights) Decision {
	var buyScore, sellScore, totalWeight float64
	for _, sig := range signals {
		w := weights[sig.Strategy]
		if w <= 0 {
			continue
		}
		switch sig.Action {
		case SignalActionBuy:
			buyScore += clamp01(sig.Confidence) * w
			totalWeight += w
		case SignalActionSell:
			sellScore += clamp01(sig.Confidence) * w
			totalWeight += w
		}
	}

	d := Decision{
		Action:    SignalActionHold,
		Breakdown: append([]Signal(nil), signals...),
	}
	if totalWeight > 0 {
		d.BuyStrength = buyScore / totalWeight
		d.SellStrength = sellScore / totalWeight
	}

	switch {
	case d.BuyStrength > d.SellStrength && d.BuyStrength > FusionThreshold:
		d.Action, d.Confidence = SignalActionBuy, d.BuyStrength
	case d.SellStrength > d.BuyStrength && d.SellStrength > FusionThreshold:
		d.Action, d.Confidence = SignalActionSell, d.SellStrength
	default:
		d.Confidence = max(d.BuyStrength, d.SellStrength)
	}
	d.Support, d.Resistance = levels(signals)
	return d
}

// levels 优先取跟随线的支撑阻力, 否则取成交量分布的
func levels(signals []Signal) (support, resistance float64) {
	for _, name := range []string{NameFollowLine, NameVolumeProfile} {
		for _, sig := range signals {
			if sig.Strategy != name {
				continue
			}
			if support <= 0 && sig.Support > 0 {
				support = sig.Support
			}
			if resistance <= 0 && sig.Resistance > 0 {
				resistance = sig.Resistance
			}
		}
	}
	return support, resistance
}
