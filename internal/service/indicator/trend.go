package indicator

import "math"

type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX Wilder 平滑的平均趋向指数, 需要 2*period 根K线
func ADX(s Series, period int) (ADXResult, error) {
	need := 2 * period
	if period <= 0 || s.Len() < need {
		return ADXResult{}, insufficient("adx", need, s.Len())
	}
	n := s.Len()
	tr := TrueRange(s)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := s.High[i] - s.High[i-1]
		down := s.Low[i-1] - s.Low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	p := float64(period)
	var res ADXResult
	var dxSum, adx float64
	for i := period; i < n; i++ {
		if i > period {
			smTR = smTR - smTR/p + tr[i]
			smPlus = smPlus - smPlus/p + plusDM[i]
			smMinus = smMinus - smMinus/p + minusDM[i]
		}
		var plusDI, minusDI, dx float64
		if smTR > 0 {
			plusDI = 100 * smPlus / smTR
			minusDI = 100 * smMinus / smTR
		}
		if sum := plusDI + minusDI; sum > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}

		// 前 period 个 DX 取平均作为首个 ADX
		switch k := i - period; {
		case k < period-1:
			dxSum += dx
		case k == period-1:
			dxSum += dx
			adx = dxSum / p
		default:
			adx = (adx*(p-1) + dx) / p
		}
		res = ADXResult{PlusDI: plusDI, MinusDI: minusDI}
	}
	res.ADX = adx
	return res, nil
}
