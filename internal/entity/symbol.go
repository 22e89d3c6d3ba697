package entity

import (
	"time"
)

// Symbol 交易对, Mark 标记是否在跟踪列表中
type Symbol struct {
	Id        int64  `gorm:"primaryKey"`
	Base      string `gorm:"uniqueIndex:symbol_idx"`
	Quote     string `gorm:"uniqueIndex:symbol_idx"`
	Mark      string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	MarkTracked = "tracked"
	MarkIgnore  = "ignore"
)
