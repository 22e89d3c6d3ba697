package strategy

import (
	"github.com/KNICEX/paper-trader/internal/service/indicator"
)

type SignalAction string

const (
	SignalActionBuy  SignalAction = "BUY"
	SignalActionSell SignalAction = "SELL"
	SignalActionHold SignalAction = "HOLD"
)

const (
	NameFollowLine    = "followline"
	NameScalping      = "scalping"
	NameVolumeProfile = "volume_profile"
	NameMomentum      = "momentum"
)

// Signal 单个策略的输出
type Signal struct {
	Strategy   string       `json:"strategy"`
	Action     SignalAction `json:"action"`
	Confidence float64      `json:"confidence"` // [0, 1]
	Reason     string       `json:"reason"`

	// 0 表示该策略没有给出
	Support    float64 `json:"support,omitempty"`
	Resistance float64 `json:"resistance,omitempty"`
}

// Decision 融合后的决策
type Decision struct {
	Action       SignalAction `json:"action"`
	Confidence   float64      `json:"confidence"`
	BuyStrength  float64      `json:"buy_strength"`
	SellStrength float64      `json:"sell_strength"`
	Breakdown    []Signal     `json:"breakdown"`
	Support      float64      `json:"support,omitempty"`
	Resistance   float64      `json:"resistance,omitempty"`
}

// Evaluator 策略评估器, 必须是输入的纯函数
type Evaluator interface {
	Name() string
	Evaluate(series indicator.Series, snap indicator.Snapshot) Signal
}

func hold(name, reason string, confidence float64) Signal {
	return Signal{
		Strategy:   name,
		Action:     SignalActionHold,
		Confidence: confidence,
		Reason:     reason,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
