package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeSource 成交来源
type TradeSource string

const (
	SourceManual        TradeSource = "manual"
	SourceStrategy      TradeSource = "strategy"
	SourceStopLoss      TradeSource = "stop_loss"
	SourceTakeProfit    TradeSource = "take_profit"
	SourceForceSell     TradeSource = "force_sell"
	SourceRebalance     TradeSource = "rebalance"
	SourcePositionLimit TradeSource = "position_limit"
)

// TradeRecord 成交记录, 写入后不再修改
type TradeRecord struct {
	Id        string          `json:"id"`
	Symbol    string          `json:"symbol"` // BTC/USDT
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    TradeSource     `json:"source,omitempty"`
}

// Notional 成交额
func (t TradeRecord) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}

// Position 非计价资产的持仓
type Position struct {
	Asset       string          `json:"asset"`
	Symbol      string          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	AverageCost decimal.Decimal `json:"average_cost"`
}
