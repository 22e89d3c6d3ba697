package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindStopLoss   Kind = "STOP_LOSS"
	KindTakeProfit Kind = "TAKE_PROFIT"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExecuted  Status = "EXECUTED"
	StatusCancelled Status = "CANCELLED"
)

// Order 止损/止盈单. 状态只能 ACTIVE -> EXECUTED 或 ACTIVE -> CANCELLED
type Order struct {
	Id            string              `json:"id"`
	Symbol        string              `json:"symbol"` // BTC/USDT
	Kind          Kind                `json:"kind"`
	TriggerPrice  decimal.Decimal     `json:"trigger_price"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        Status              `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	ExecutedAt    *time.Time          `json:"executed_at,omitempty"`
	ExecutedPrice decimal.NullDecimal `json:"executed_price"`
	CancelReason  string              `json:"cancel_reason,omitempty"`
}

func (o Order) IsActive() bool {
	return o.Status == StatusActive
}

// Triggered 止损: price <= trigger, 止盈: price >= trigger
func (o Order) Triggered(price decimal.Decimal) bool {
	switch o.Kind {
	case KindStopLoss:
		return price.LessThanOrEqual(o.TriggerPrice)
	case KindTakeProfit:
		return price.GreaterThanOrEqual(o.TriggerPrice)
	default:
		return false
	}
}
