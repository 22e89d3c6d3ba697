package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

const DefaultQuote = "USDT"

// DefaultInitialBalance 未配置时的初始资金
var DefaultInitialBalance = decimal.NewFromInt(10000)

type costBasis struct {
	amount decimal.Decimal
	total  decimal.Decimal
}

func (c costBasis) average() decimal.Decimal {
	if !c.amount.IsPositive() {
		return decimal.Zero
	}
	return c.total.Div(c.amount)
}

// Ledger 虚拟账本. 所有写操作串行执行, 余额永不为负.
type Ledger struct {
	quote   string
	initial map[string]decimal.Decimal
	now     func() time.Time

	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	costs    map[string]costBasis
	trades   []TradeRecord
}

type Option func(*Ledger)

// WithClock 注入时钟, 用于测试
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithInitialBalances 覆盖初始余额
func WithInitialBalances(balances map[string]decimal.Decimal) Option {
	return func(l *Ledger) {
		l.initial = lo.Assign(balances)
	}
}

func NewLedger(quote string, opts ...Option) *Ledger {
	if quote == "" {
		quote = DefaultQuote
	}
	l := &Ledger{
		quote:   quote,
		initial: map[string]decimal.Decimal{quote: DefaultInitialBalance},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.Reset()
	return l
}

// Quote 计价资产
func (l *Ledger) Quote() string {
	return l.quote
}

// InitialQuoteBalance 初始计价资产余额, 用于计算盈亏
func (l *Ledger) InitialQuoteBalance() decimal.Decimal {
	return l.initial[l.quote]
}

type TradeReq struct {
	TradingPair exchange.TradingPair
	Side        Side
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Source      TradeSource
}

// ExecuteTrade 原子地修改两侧余额并追加成交记录
func (l *Ledger) ExecuteTrade(req TradeReq) (TradeRecord, error) {
	if req.TradingPair.IsZero() {
		return TradeRecord{}, fmt.Errorf("%w: empty trading pair", domain.ErrInvalidOrder)
	}
	if !req.Amount.IsPositive() || !req.Price.IsPositive() {
		return TradeRecord{}, fmt.Errorf("%w: amount %s and price %s must be positive",
			domain.ErrInvalidOrder, req.Amount, req.Price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	base, quote := req.TradingPair.Base, req.TradingPair.Quote
	notional := req.Amount.Mul(req.Price)

	switch req.Side {
	case SideBuy:
		if available := l.balances[quote]; available.LessThan(notional) {
			return TradeRecord{}, fmt.Errorf("%w: need %s %s, have %s",
				domain.ErrInsufficientFunds, notional, quote, available)
		}
		l.balances[quote] = l.balances[quote].Sub(notional)
		l.balances[base] = l.balances[base].Add(req.Amount)
	case SideSell:
		if held := l.balances[base]; held.LessThan(req.Amount) {
			return TradeRecord{}, fmt.Errorf("%w: need %s %s, have %s",
				domain.ErrInsufficientHoldings, req.Amount, base, held)
		}
		l.balances[base] = l.balances[base].Sub(req.Amount)
		l.balances[quote] = l.balances[quote].Add(notional)
	default:
		return TradeRecord{}, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)
	}

	record := TradeRecord{
		Id:        uuid.NewString(),
		Symbol:    req.TradingPair.ToSlashString(),
		Side:      req.Side,
		Amount:    req.Amount,
		Price:     req.Price,
		Timestamp: l.now(),
		Source:    req.Source,
	}
	l.trades = append(l.trades, record)
	l.applyCost(base, record)
	return record, nil
}

func (l *Ledger) applyCost(asset string, t TradeRecord) {
	c := l.costs[asset]
	switch t.Side {
	case SideBuy:
		c.amount = c.amount.Add(t.Amount)
		c.total = c.total.Add(t.Notional())
	case SideSell:
		if !c.amount.IsPositive() {
			return
		}
		sold := decimal.Min(t.Amount, c.amount)
		remaining := c.amount.Sub(sold)
		c.total = c.total.Mul(remaining).Div(c.amount)
		c.amount = remaining
	}
	l.costs[asset] = c
}

// AddBalance 直接增加某资产余额, 不产生成交记录
func (l *Ledger) AddBalance(asset string, amount decimal.Decimal) error {
	if asset == "" || !amount.IsPositive() {
		return fmt.Errorf("%w: add %s to %q", domain.ErrInvalidOrder, amount, asset)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[asset] = l.balances[asset].Add(amount)
	return nil
}

func (l *Ledger) Balance(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[asset]
}

// Balances 余额副本, 清仓后的资产保留为 0
func (l *Ledger) Balances() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.Assign(l.balances)
}

// TradeHistory 最近 limit 条成交, 按时间正序; limit <= 0 返回全部
func (l *Ledger) TradeHistory(limit int) []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.trades) > limit {
		start = len(l.trades) - limit
	}
	return append([]TradeRecord(nil), l.trades[start:]...)
}

// TradeCount 成交总数
func (l *Ledger) TradeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// OpenPositions 所有非零的非计价资产, 按资产名排序
func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make([]Position, 0, len(l.balances))
	for asset, amount := range l.balances {
		if asset == l.quote || !amount.IsPositive() {
			continue
		}
		positions = append(positions, Position{
			Asset:       asset,
			Symbol:      exchange.TradingPair{Base: asset, Quote: l.quote}.ToSlashString(),
			Amount:      amount,
			AverageCost: l.costs[asset].average(),
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Asset < positions[j].Asset
	})
	return positions
}

// Reset 恢复初始余额并清空成交
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = lo.Assign(l.initial)
	l.costs = make(map[string]costBasis)
	l.trades = nil
}

// Restore 从快照恢复, 通过重放成交重建持仓成本
func (l *Ledger) Restore(balances map[string]decimal.Decimal, trades []TradeRecord) error {
	for asset, amount := range balances {
		if amount.IsNegative() {
			return fmt.Errorf("%w: negative balance %s for %s", domain.ErrPersistenceFailure, amount, asset)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = lo.Assign(balances)
	l.trades = append([]TradeRecord(nil), trades...)
	l.costs = make(map[string]costBasis)
	for _, t := range l.trades {
		pair, err := exchange.ParsePair(t.Symbol)
		if err != nil {
			continue
		}
		l.applyCost(pair.Base, t)
	}
	return nil
}
