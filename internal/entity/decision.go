package entity

import (
	"time"
)

// Decision 调度器产生的融合决策记录
type Decision struct {
	Id           int64  `gorm:"primaryKey;autoIncrement"`
	BaseSymbol   string `gorm:"index"`
	QuoteSymbol  string `gorm:"index"`
	Price        string
	Action       string `gorm:"index"`
	Confidence   float64
	BuyStrength  float64
	SellStrength float64
	Reason       string
	Status       int       `gorm:"index"` // 0:跳过, 1:已下单, 2:下单失败
	CreatedAt    time.Time `gorm:"index"`
}

const (
	DecisionStatusSkipped  = 0
	DecisionStatusExecuted = 1
	DecisionStatusFailed   = 2
)
