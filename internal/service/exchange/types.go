package exchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair 交易对
type TradingPair struct {
	Base  string
	Quote string
}

// 常见 Quote 列表
var knownQuotes = []string{"USDT", "BUSD", "USDC", "BTC", "ETH"}

func SplitSymbol(s string) (string, string) {
	s = strings.ToUpper(s)
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q
		}
	}
	// fallback
	return s, ""
}

// ParsePair 解析 "BTC/USDT" 或 "BTCUSDT"
func ParsePair(s string) (TradingPair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if base, quote, ok := strings.Cut(s, "/"); ok {
		if base == "" || quote == "" {
			return TradingPair{}, fmt.Errorf("invalid trading pair %q", s)
		}
		return TradingPair{Base: base, Quote: quote}, nil
	}
	base, quote := SplitSymbol(s)
	if base == "" || quote == "" {
		return TradingPair{}, fmt.Errorf("invalid trading pair %q", s)
	}
	return TradingPair{Base: base, Quote: quote}, nil
}

func (s TradingPair) IsZero() bool {
	return s.Base == "" || s.Quote == ""
}

func (s TradingPair) ToString() string {
	return fmt.Sprintf("%s%s", s.Base, s.Quote)
}

func (s TradingPair) ToSlashString() string {
	return fmt.Sprintf("%s/%s", s.Base, s.Quote)
}

func (s TradingPair) String() string {
	return s.ToSlashString()
}

type Interval string

func (i Interval) ToString() string {
	return string(i)
}

// Duration K线周期长度, 未知周期返回 0
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

type Kline struct {
	OpenTime         time.Time
	CloseTime        time.Time
	Open             decimal.Decimal
	Close            decimal.Decimal
	High             decimal.Decimal
	Low              decimal.Decimal
	Volume           decimal.Decimal // 成交量
	QuoteAssetVolume decimal.Decimal // 成交额
}

// PriceTick 24h ticker 推送
type PriceTick struct {
	TradingPair TradingPair
	Price       decimal.Decimal
	Change24h   decimal.Decimal // 百分比
	Volume      decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Timestamp   time.Time // 交易所事件时间
	ReceivedAt  time.Time
}
