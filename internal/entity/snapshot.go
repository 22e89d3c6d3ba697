package entity

import (
	"time"
)

// 快照相关的表, 每次保存整体替换

type Balance struct {
	Asset  string `gorm:"primaryKey"`
	Amount string
}

type Trade struct {
	Seq       int64  `gorm:"primaryKey"` // 账本中的顺序
	Id        string `gorm:"uniqueIndex"`
	Symbol    string `gorm:"index"`
	Side      string
	Amount    string
	Price     string
	Source    string
	Timestamp time.Time `gorm:"index"`
}

type Order struct {
	Seq           int64  `gorm:"primaryKey"`
	Id            string `gorm:"uniqueIndex"`
	Symbol        string `gorm:"index"`
	Kind          string
	TriggerPrice  string
	Amount        string
	Status        string `gorm:"index"`
	CreatedAt     time.Time
	ExecutedAt    *time.Time
	ExecutedPrice string // 空表示未成交
	CancelReason  string
}

// EngineState 单行表, Id 固定为 1
type EngineState struct {
	Id             int64 `gorm:"primaryKey"`
	Version        int
	TradingEnabled bool
	TrackedSymbols string // 逗号分隔的 BTC/USDT
	LastUpdate     time.Time
}

const EngineStateId = 1
