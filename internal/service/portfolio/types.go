package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/strategy"
)

type RiskConfig struct {
	// 置信度阈值 [0, 1]
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	// 计价资产余额低于该值时不再买入
	MinQuoteBalance float64 `mapstructure:"min_quote_balance"`

	// 单资产最大持仓价值(计价资产)
	MaxExposure float64 `mapstructure:"max_exposure"`

	// 成交额低于该值的买单跳过
	MinNotional float64 `mapstructure:"min_notional"`

	// 止损/止盈默认百分比, 策略未给出支撑阻力时使用
	StopLossPct   float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct float64 `mapstructure:"take_profit_pct"`

	// 卖出信号卖出持仓的比例 (0, 1]
	SellRatio float64 `mapstructure:"sell_ratio"`
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		ConfidenceThreshold: 0.5,
		MinQuoteBalance:     30,
		MaxExposure:         3000,
		MinNotional:         10,
		StopLossPct:         5,
		TakeProfitPct:       10,
		SellRatio:           0.7,
	}
}

// Account 仓位计算需要的账户读能力, *ledger.Ledger 满足
type Account interface {
	Balance(asset string) decimal.Decimal
}

type PositionSizer interface {
	Initialize(riskConfig RiskConfig) error
	// 根据融合决策计算下单数量与止盈止损
	HandleDecision(pair exchange.TradingPair, decision strategy.Decision, price decimal.Decimal) (HandleDecisionResult, error)
}

type HandleDecisionResult struct {
	Plan      TradePlan
	Validated bool   // 是否通过风控
	Reason    string // 风控理由
}

// TradePlan 通过风控后的下单计划, 止盈止损仅买单有值
type TradePlan struct {
	TradingPair exchange.TradingPair
	Side        ledger.Side
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Notional    decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfit  decimal.Decimal
}
