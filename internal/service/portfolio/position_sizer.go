package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/strategy"
	"github.com/KNICEX/paper-trader/pkg/decimalx"
)

// 数量精度
const amountPlaces = 8

var _ PositionSizer = (*TieredPositionSizer)(nil)

// TieredPositionSizer 按置信度分档决定买入资金比例
type TieredPositionSizer struct {
	account    Account
	riskConfig RiskConfig
}

func NewTieredPositionSizer(account Account) *TieredPositionSizer {
	return &TieredPositionSizer{
		account:    account,
		riskConfig: DefaultRiskConfig(),
	}
}

// Initialize 校验并替换风控配置
func (s *TieredPositionSizer) Initialize(riskConfig RiskConfig) error {
	if riskConfig.ConfidenceThreshold < 0 || riskConfig.ConfidenceThreshold > 1 {
		return fmt.Errorf("ConfidenceThreshold 必须在 [0, 1] 之间，当前值: %f", riskConfig.ConfidenceThreshold)
	}
	if riskConfig.MinQuoteBalance < 0 || riskConfig.MinNotional < 0 {
		return fmt.Errorf("MinQuoteBalance/MinNotional 不能为负，当前值: %f/%f",
			riskConfig.MinQuoteBalance, riskConfig.MinNotional)
	}
	if riskConfig.MaxExposure <= 0 {
		return fmt.Errorf("MaxExposure 必须大于 0，当前值: %f", riskConfig.MaxExposure)
	}
	if riskConfig.StopLossPct <= 0 || riskConfig.StopLossPct >= 100 {
		return fmt.Errorf("StopLossPct 必须在 (0, 100) 之间，当前值: %f", riskConfig.StopLossPct)
	}
	if riskConfig.TakeProfitPct <= 0 {
		return fmt.Errorf("TakeProfitPct 必须大于 0，当前值: %f", riskConfig.TakeProfitPct)
	}
	if riskConfig.SellRatio <= 0 || riskConfig.SellRatio > 1 {
		return fmt.Errorf("SellRatio 必须在 (0, 1] 之间，当前值: %f", riskConfig.SellRatio)
	}
	s.riskConfig = riskConfig
	return nil
}

func (s *TieredPositionSizer) RiskConfig() RiskConfig {
	return s.riskConfig
}

// HandleDecision 对决策做风控检查并计算下单数量
func (s *TieredPositionSizer) HandleDecision(pair exchange.TradingPair, decision strategy.Decision, price decimal.Decimal) (HandleDecisionResult, error) {
	result := HandleDecisionResult{}

	// 1. 观望信号不下单
	if decision.Action == strategy.SignalActionHold {
		result.Reason = "信号为观望，无需下单"
		return result, nil
	}

	// 2. 置信度必须超过阈值
	if decision.Confidence <= s.riskConfig.ConfidenceThreshold {
		result.Reason = fmt.Sprintf("置信度 %.2f 未超过阈值 %.2f", decision.Confidence, s.riskConfig.ConfidenceThreshold)
		return result, nil
	}

	if !price.IsPositive() {
		return result, fmt.Errorf("%w: no valid price for %s", domain.ErrDataUnavailable, pair)
	}

	switch decision.Action {
	case strategy.SignalActionBuy:
		return s.sizeBuy(pair, decision, price), nil
	case strategy.SignalActionSell:
		return s.sizeSell(pair, price), nil
	default:
		result.Reason = fmt.Sprintf("不支持的信号类型: %s", decision.Action)
		return result, nil
	}
}

func (s *TieredPositionSizer) sizeBuy(pair exchange.TradingPair, decision strategy.Decision, price decimal.Decimal) HandleDecisionResult {
	result := HandleDecisionResult{}

	// 3. 计价资产余额下限
	quote := s.account.Balance(pair.Quote)
	if quote.LessThan(decimal.NewFromFloat(s.riskConfig.MinQuoteBalance)) {
		result.Reason = fmt.Sprintf("%s 余额 %s 低于最小值 %.2f", pair.Quote, quote, s.riskConfig.MinQuoteBalance)
		return result
	}

	// 4. 置信度分档
	notional := decimalx.Percent(quote, TierPercent(decision.Confidence))

	// 5. 单资产持仓上限
	exposure := s.account.Balance(pair.Base).Mul(price)
	room := decimal.NewFromFloat(s.riskConfig.MaxExposure).Sub(exposure)
	if !room.IsPositive() {
		result.Reason = fmt.Sprintf("%s 持仓价值 %s 已达到上限 %.2f", pair.Base, exposure.StringFixed(2), s.riskConfig.MaxExposure)
		return result
	}
	notional = decimal.Min(notional, room)

	// 6. 最小成交额
	if notional.LessThan(decimal.NewFromFloat(s.riskConfig.MinNotional)) {
		result.Reason = fmt.Sprintf("成交额 %s 低于最小值 %.2f", notional.StringFixed(2), s.riskConfig.MinNotional)
		return result
	}

	amount := notional.Div(price).Truncate(amountPlaces)
	if !amount.IsPositive() {
		result.Reason = "数量精度不足"
		return result
	}

	stopLoss, takeProfit := BracketLevels(price, decision.Support, decision.Resistance,
		s.riskConfig.StopLossPct, s.riskConfig.TakeProfitPct)
	result.Plan = TradePlan{
		TradingPair: pair,
		Side:        ledger.SideBuy,
		Amount:      amount,
		Price:       price,
		Notional:    amount.Mul(price),
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
	}
	result.Validated = true
	result.Reason = fmt.Sprintf("通过风控检查 - 置信度: %.2f, 资金比例: %.0f%%, 成交额: %s",
		decision.Confidence, TierPercent(decision.Confidence), result.Plan.Notional.StringFixed(2))
	return result
}

func (s *TieredPositionSizer) sizeSell(pair exchange.TradingPair, price decimal.Decimal) HandleDecisionResult {
	result := HandleDecisionResult{}
	held := s.account.Balance(pair.Base)
	if !held.IsPositive() {
		result.Reason = fmt.Sprintf("没有 %s 持仓", pair.Base)
		return result
	}
	amount := held.Mul(decimal.NewFromFloat(s.riskConfig.SellRatio)).Truncate(amountPlaces)
	if !amount.IsPositive() {
		result.Reason = "数量精度不足"
		return result
	}
	result.Plan = TradePlan{
		TradingPair: pair,
		Side:        ledger.SideSell,
		Amount:      amount,
		Price:       price,
		Notional:    amount.Mul(price),
	}
	result.Validated = true
	result.Reason = fmt.Sprintf("卖出 %.0f%% 持仓", s.riskConfig.SellRatio*100)
	return result
}

// TierPercent 置信度对应的买入资金百分比
func TierPercent(confidence float64) float64 {
	switch {
	case confidence >= 0.8:
		return 15
	case confidence >= 0.65:
		return 12
	default:
		return 8
	}
}

// BracketLevels 止损取低于现价的支撑位, 否则现价下方 slPct%;
// 止盈取高于现价的阻力位, 否则现价上方 tpPct%
func BracketLevels(price decimal.Decimal, support, resistance, slPct, tpPct float64) (stopLoss, takeProfit decimal.Decimal) {
	sup := decimal.NewFromFloat(support)
	if support > 0 && sup.LessThan(price) {
		stopLoss = sup
	} else {
		stopLoss = price.Sub(decimalx.Percent(price, slPct))
	}
	res := decimal.NewFromFloat(resistance)
	if resistance > 0 && res.GreaterThan(price) {
		takeProfit = res
	} else {
		takeProfit = price.Add(decimalx.Percent(price, tpPct))
	}
	return stopLoss, takeProfit
}
