package indicator

// Reading 单个指标读数, Ready=false 表示数据不足
type Reading struct {
	Value float64
	Ready bool
}

func ready(v float64, err error) Reading {
	if err != nil {
		return Reading{}
	}
	return Reading{Value: v, Ready: true}
}

// Snapshot 某一时刻的全部指标
type Snapshot struct {
	Price float64

	SMA20 Reading
	SMA50 Reading
	EMA5  Reading
	EMA9  Reading
	EMA13 Reading
	EMA21 Reading
	RSI   Reading

	MACD       Reading
	MACDSignal Reading
	MACDHist   Reading

	BollUpper  Reading
	BollMiddle Reading
	BollLower  Reading

	ATR Reading

	StochK Reading
	StochD Reading

	ADX     Reading
	PlusDI  Reading
	MinusDI Reading

	CCI       Reading
	WilliamsR Reading
}

const (
	BollingerPeriod    = 21
	BollingerDeviation = 1.0
	ATRPeriod          = 5
	StochPeriod        = 14
	StochSmooth        = 3
	ADXPeriod          = 14
	CCIPeriod          = 20
	WilliamsRPeriod    = 14
)

// Compute 计算快照, 数据不足的指标 Ready=false, 不返回错误
func Compute(s Series) Snapshot {
	snap := Snapshot{Price: s.Last()}
	closes := s.Close

	snap.SMA20 = ready(SMA(closes, 20))
	snap.SMA50 = ready(SMA(closes, 50))
	snap.EMA5 = ready(EMA(closes, 5))
	snap.EMA9 = ready(EMA(closes, 9))
	snap.EMA13 = ready(EMA(closes, 13))
	snap.EMA21 = ready(EMA(closes, 21))
	snap.RSI = ready(RSI(closes, 14))

	if m, err := MACD(closes, 12, 26, 9); err == nil {
		snap.MACD = Reading{Value: m.MACD, Ready: true}
		snap.MACDSignal = Reading{Value: m.Signal, Ready: true}
		snap.MACDHist = Reading{Value: m.Histogram, Ready: true}
	}

	if b, err := Bollinger(closes, BollingerPeriod, BollingerDeviation); err == nil {
		snap.BollUpper = Reading{Value: b.Upper, Ready: true}
		snap.BollMiddle = Reading{Value: b.Middle, Ready: true}
		snap.BollLower = Reading{Value: b.Lower, Ready: true}
	}

	snap.ATR = ready(ATR(s, ATRPeriod))

	if st, err := Stochastic(s, StochPeriod, StochSmooth); err == nil {
		snap.StochK = Reading{Value: last(st.K), Ready: true}
		snap.StochD = Reading{Value: last(st.D), Ready: true}
	}

	if a, err := ADX(s, ADXPeriod); err == nil {
		snap.ADX = Reading{Value: a.ADX, Ready: true}
		snap.PlusDI = Reading{Value: a.PlusDI, Ready: true}
		snap.MinusDI = Reading{Value: a.MinusDI, Ready: true}
	}

	snap.CCI = ready(CCI(s, CCIPeriod))
	snap.WilliamsR = ready(WilliamsR(s, WilliamsRPeriod))
	return snap
}
