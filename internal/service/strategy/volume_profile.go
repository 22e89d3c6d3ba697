package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/KNICEX/paper-trader/internal/service/indicator"
)

var _ Evaluator = (*VolumeProfile)(nil)

// VolumeProfile 成交量分布: POC 与高成交量区间作为支撑阻力
type VolumeProfile struct {
	lookback   int
	minCandles int
	zones      int
	zoneDist   float64
	pocDist    float64
}

func NewVolumeProfile() *VolumeProfile {
	return &VolumeProfile{
		lookback:   100,
		minCandles: 20,
		zones:      5,
		zoneDist:   0.01,
		pocDist:    0.005,
	}
}

func (v *VolumeProfile) Name() string {
	return NameVolumeProfile
}

type volumeBucket struct {
	Price  float64
	Volume float64
}

// Profile 按成交量降序排列的价格桶
func (v *VolumeProfile) Profile(s indicator.Series) []volumeBucket {
	start := max(0, s.Len()-v.lookback)
	byPrice := make(map[float64]float64)
	for i := start; i < s.Len(); i++ {
		byPrice[roundSignificant(s.Close[i], 3)] += s.Volume[i]
	}
	buckets := lo.MapToSlice(byPrice, func(price, volume float64) volumeBucket {
		return volumeBucket{Price: price, Volume: volume}
	})
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Volume != buckets[j].Volume {
			return buckets[i].Volume > buckets[j].Volume
		}
		return buckets[i].Price < buckets[j].Price
	})
	return buckets
}

func (v *VolumeProfile) Evaluate(s indicator.Series, _ indicator.Snapshot) Signal {
	if s.Len() < v.minCandles {
		return hold(v.Name(), fmt.Sprintf("insufficient data: need %d candles, got %d", v.minCandles, s.Len()), 0)
	}
	price := s.Last()
	if price <= 0 {
		return hold(v.Name(), "non-positive price", 0)
	}

	buckets := v.Profile(s)
	poc := buckets[0].Price
	zones := lo.Map(buckets[:min(v.zones, len(buckets))], func(b volumeBucket, _ int) float64 {
		return b.Price
	})

	below := lo.Filter(zones, func(z float64, _ int) bool { return z <= price })
	above := lo.Filter(zones, func(z float64, _ int) bool { return z > price })

	sig := Signal{Strategy: v.Name(), Action: SignalActionHold}
	supDist, resDist := math.Inf(1), math.Inf(1)
	if len(below) > 0 {
		sig.Support = lo.Max(below)
		supDist = (price - sig.Support) / price
	}
	if len(above) > 0 {
		sig.Resistance = lo.Min(above)
		resDist = (sig.Resistance - price) / price
	}

	switch {
	case supDist <= v.zoneDist && supDist <= resDist:
		sig.Action = SignalActionBuy
		sig.Confidence = 0.7
	case resDist <= v.zoneDist:
		sig.Action = SignalActionSell
		sig.Confidence = 0.7
	}

	nearPOC := math.Abs(price-poc)/price <= v.pocDist
	if sig.Action != SignalActionHold && nearPOC {
		sig.Confidence = clamp01(sig.Confidence + 0.2)
	}
	sig.Reason = fmt.Sprintf("poc=%.4f support=%.4f resistance=%.4f near_poc=%t", poc, sig.Support, sig.Resistance, nearPOC)
	return sig
}

// roundSignificant 保留 digits 位有效数字
func roundSignificant(x float64, digits int) float64 {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	exp := int(math.Ceil(math.Log10(math.Abs(x))))
	shift := digits - exp
	if shift >= 0 {
		p := math.Pow10(shift)
		return math.Round(x*p) / p
	}
	p := math.Pow10(-shift)
	return math.Round(x/p) * p
}
