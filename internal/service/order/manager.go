package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
)

// DefaultMaxTerminal 保留的已结束订单上限
const DefaultMaxTerminal = 1000

// Ledger 订单执行所需的账本能力
type Ledger interface {
	Balance(asset string) decimal.Decimal
	ExecuteTrade(req ledger.TradeReq) (ledger.TradeRecord, error)
}

// PriceSource 触发检查时的价格来源
type PriceSource interface {
	Price(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error)
}

// Transition 一次状态变化, Trade 仅在 EXECUTED 时有值
type Transition struct {
	Order Order
	Trade *ledger.TradeRecord
}

type Manager struct {
	ledger      Ledger
	now         func() time.Time
	maxTerminal int
	logger      *slog.Logger

	mu     sync.RWMutex
	orders []*Order // 按创建顺序
	byId   map[string]*Order
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithMaxTerminal(n int) Option {
	return func(m *Manager) {
		m.maxTerminal = n
	}
}

func NewManager(l Ledger, opts ...Option) *Manager {
	m := &Manager{
		ledger:      l,
		now:         time.Now,
		maxTerminal: DefaultMaxTerminal,
		logger:      slog.With("component", "order"),
		byId:        make(map[string]*Order),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) CreateStopLoss(pair exchange.TradingPair, trigger, amount decimal.Decimal) (Order, error) {
	return m.create(pair, KindStopLoss, trigger, amount)
}

func (m *Manager) CreateTakeProfit(pair exchange.TradingPair, trigger, amount decimal.Decimal) (Order, error) {
	return m.create(pair, KindTakeProfit, trigger, amount)
}

func (m *Manager) create(pair exchange.TradingPair, kind Kind, trigger, amount decimal.Decimal) (Order, error) {
	if pair.IsZero() {
		return Order{}, fmt.Errorf("%w: empty trading pair", domain.ErrInvalidOrder)
	}
	if !trigger.IsPositive() {
		return Order{}, fmt.Errorf("%w: trigger price %s must be positive", domain.ErrInvalidOrder, trigger)
	}
	if !amount.IsPositive() {
		return Order{}, fmt.Errorf("%w: amount %s must be positive", domain.ErrInvalidOrder, amount)
	}
	if held := m.ledger.Balance(pair.Base); amount.GreaterThan(held) {
		return Order{}, fmt.Errorf("%w: amount %s exceeds holdings %s %s",
			domain.ErrInvalidOrder, amount, held, pair.Base)
	}

	prefix := "sl_"
	if kind == KindTakeProfit {
		prefix = "tp_"
	}
	o := &Order{
		Id:           prefix + uuid.NewString(),
		Symbol:       pair.ToSlashString(),
		Kind:         kind,
		TriggerPrice: trigger,
		Amount:       amount,
		Status:       StatusActive,
		CreatedAt:    m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	m.byId[o.Id] = o
	m.logger.Info("order created", "id", o.Id, "symbol", o.Symbol, "kind", kind,
		"trigger", trigger.String(), "amount", amount.String())
	return *o, nil
}

// Quote 一个交易对的当前价
type Quote struct {
	TradingPair exchange.TradingPair
	Price       decimal.Decimal
}

// Check 对所有活跃订单做一次触发检查
func (m *Manager) Check(ctx context.Context, prices PriceSource) ([]Transition, error) {
	quotes, err := m.ResolvePrices(ctx, prices)
	return m.CheckQuotes(quotes), err
}

// ResolvePrices 为有活跃订单的交易对各取一次价格, 不持有锁. 取价失败的交易对跳过, 返回第一个错误.
func (m *Manager) ResolvePrices(ctx context.Context, prices PriceSource) ([]Quote, error) {
	symbols := lo.Uniq(lo.Map(m.Active(), func(o Order, _ int) string {
		return o.Symbol
	}))

	var quotes []Quote
	var firstErr error
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return quotes, err
		}
		pair, err := exchange.ParsePair(symbol)
		if err != nil {
			continue
		}
		price, err := prices.Price(ctx, pair)
		if err != nil {
			m.logger.Warn("skip order check, price unavailable", "symbol", symbol, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("price for %s: %w", symbol, err)
			}
			continue
		}
		quotes = append(quotes, Quote{TradingPair: pair, Price: price})
	}
	return quotes, firstErr
}

// CheckQuotes 用已取到的价格检查活跃订单
func (m *Manager) CheckQuotes(quotes []Quote) []Transition {
	var transitions []Transition
	for _, q := range quotes {
		transitions = append(transitions, m.CheckPrice(q.TradingPair, q.Price)...)
	}
	return transitions
}

// CheckPrice 用一个推送价格检查该交易对的活跃订单
func (m *Manager) CheckPrice(pair exchange.TradingPair, price decimal.Decimal) []Transition {
	if !price.IsPositive() {
		return nil
	}
	symbol := pair.ToSlashString()

	m.mu.Lock()
	defer m.mu.Unlock()

	var transitions []Transition
	for _, o := range m.orders {
		if !o.IsActive() || o.Symbol != symbol || !o.Triggered(price) {
			continue
		}
		transitions = append(transitions, m.execute(pair, o, price))
	}
	m.prune()
	return transitions
}

// execute 调用方持有 m.mu
func (m *Manager) execute(pair exchange.TradingPair, o *Order, price decimal.Decimal) Transition {
	if held := m.ledger.Balance(pair.Base); held.LessThan(o.Amount) {
		m.cancel(o, fmt.Sprintf("holdings %s below order amount %s at trigger", held, o.Amount))
		return Transition{Order: *o}
	}

	source := ledger.SourceStopLoss
	if o.Kind == KindTakeProfit {
		source = ledger.SourceTakeProfit
	}
	trade, err := m.ledger.ExecuteTrade(ledger.TradeReq{
		TradingPair: pair,
		Side:        ledger.SideSell,
		Amount:      o.Amount,
		Price:       price,
		Source:      source,
	})
	if err != nil {
		m.cancel(o, fmt.Sprintf("execution failed: %v", err))
		return Transition{Order: *o}
	}

	executedAt := m.now()
	o.Status = StatusExecuted
	o.ExecutedAt = &executedAt
	o.ExecutedPrice = decimal.NewNullDecimal(price)
	m.logger.Info("order executed", "id", o.Id, "symbol", o.Symbol, "kind", o.Kind,
		"price", price.String(), "amount", o.Amount.String())
	return Transition{Order: *o, Trade: &trade}
}

// cancel 调用方持有 m.mu
func (m *Manager) cancel(o *Order, reason string) {
	o.Status = StatusCancelled
	o.CancelReason = reason
	m.logger.Info("order cancelled", "id", o.Id, "symbol", o.Symbol, "reason", reason)
}

// CleanupInvalid 取消数量已超过当前持仓的活跃订单
func (m *Manager) CleanupInvalid() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var transitions []Transition
	for _, o := range m.orders {
		if !o.IsActive() {
			continue
		}
		pair, err := exchange.ParsePair(o.Symbol)
		if err != nil {
			m.cancel(o, "invalid symbol")
			transitions = append(transitions, Transition{Order: *o})
			continue
		}
		if held := m.ledger.Balance(pair.Base); o.Amount.GreaterThan(held) {
			m.cancel(o, fmt.Sprintf("amount %s exceeds holdings %s", o.Amount, held))
			transitions = append(transitions, Transition{Order: *o})
		}
	}
	m.prune()
	return transitions
}

// Cancel 幂等; 订单不存在或已结束时返回 found=false
func (m *Manager) Cancel(id string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byId[id]
	if !ok || !o.IsActive() {
		return Order{}, false
	}
	m.cancel(o, "cancelled by request")
	return *o, true
}

func (m *Manager) Get(id string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.byId[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (m *Manager) Active() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.FilterMap(m.orders, func(o *Order, _ int) (Order, bool) {
		return *o, o.IsActive()
	})
}

// All 全部订单(含已结束), 按创建顺序
func (m *Manager) All() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(m.orders, func(o *Order, _ int) Order {
		return *o
	})
}

// Restore 用快照中的订单替换当前状态
func (m *Manager) Restore(orders []Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = make([]*Order, 0, len(orders))
	m.byId = make(map[string]*Order, len(orders))
	for _, o := range orders {
		m.orders = append(m.orders, &o)
		m.byId[o.Id] = &o
	}
}

func (m *Manager) Reset() {
	m.Restore(nil)
}

// prune 已结束订单超过上限时丢弃最早的, 调用方持有 m.mu
func (m *Manager) prune() {
	if m.maxTerminal <= 0 {
		return
	}
	terminal := lo.CountBy(m.orders, func(o *Order) bool { return !o.IsActive() })
	if terminal <= m.maxTerminal {
		return
	}
	drop := terminal - m.maxTerminal
	kept := m.orders[:0]
	for _, o := range m.orders {
		if drop > 0 && !o.IsActive() {
			delete(m.byId, o.Id)
			drop--
			continue
		}
		kept = append(kept, o)
	}
	m.orders = kept
}
