package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/entity"
	"github.com/KNICEX/paper-trader/internal/repo"
	"github.com/KNICEX/paper-trader/internal/schedule"
	"github.com/KNICEX/paper-trader/internal/service/analytics"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/notification"
	"github.com/KNICEX/paper-trader/internal/service/order"
	"github.com/KNICEX/paper-trader/internal/service/persist"
	"github.com/KNICEX/paper-trader/internal/service/portfolio"
	"github.com/KNICEX/paper-trader/internal/service/strategy"
)

// Engine 模拟交易引擎. 所有复合写操作在 writeMu 内串行执行.
type Engine struct {
	cfg      Config
	universe []exchange.TradingPair

	market       exchange.MarketService
	symbols      exchange.SymbolService
	feed         PriceFeed
	cache        PriceCache
	store        persist.Store
	notifier     notification.Notifier
	reviewer     analytics.Reviewer
	symbolRepo   repo.SymbolRepo
	decisionRepo repo.DecisionRepo

	strategies *strategy.Set
	sizer      *portfolio.TieredPositionSizer
	ledger     *ledger.Ledger
	orders     *order.Manager
	analyzer   *analytics.Analyzer
	prices     *priceResolver
	runner     *schedule.Runner

	now    func() time.Time
	logger *slog.Logger

	writeMu   sync.Mutex
	lastTrade map[string]time.Time // key: BTC/USDT

	trading   atomic.Bool
	trackedMu sync.RWMutex
	tracked   []exchange.TradingPair
}

type Option func(*Engine)

func WithFeed(f PriceFeed) Option {
	return func(e *Engine) {
		e.feed = f
	}
}

func WithPriceCache(c PriceCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithSymbolService 重新生成跟踪列表时过滤掉交易所未上架的交易对
func WithSymbolService(s exchange.SymbolService) Option {
	return func(e *Engine) {
		e.symbols = s
	}
}

func WithNotifier(n notification.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithReviewer(r analytics.Reviewer) Option {
	return func(e *Engine) {
		e.reviewer = r
	}
}

func WithSymbolRepo(r repo.SymbolRepo) Option {
	return func(e *Engine) {
		e.symbolRepo = r
	}
}

func WithDecisionRepo(r repo.DecisionRepo) Option {
	return func(e *Engine) {
		e.decisionRepo = r
	}
}

// WithStrategySet 覆盖按版本创建的策略组合
func WithStrategySet(set *strategy.Set) Option {
	return func(e *Engine) {
		e.strategies = set
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(cfg Config, market exchange.MarketService, store persist.Store, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if market == nil || store == nil {
		return nil, errors.New("engine: market service and store are required")
	}
	universe, err := parsePairs(cfg.Universe)
	if err != nil {
		return nil, fmt.Errorf("engine: universe: %w", err)
	}
	set, err := strategy.NewSet(cfg.StrategyVersion)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		universe:   universe,
		market:     market,
		store:      store,
		notifier:   notification.NewLogNotifier(nil),
		reviewer:   analytics.RuleReviewer{},
		strategies: set,
		now:        time.Now,
		logger:     slog.With("component", "engine"),
		lastTrade:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ledger = ledger.NewLedger(cfg.Quote,
		ledger.WithClock(e.now),
		ledger.WithInitialBalances(map[string]decimal.Decimal{
			cfg.Quote: decimal.NewFromFloat(cfg.InitialBalance),
		}),
	)
	e.orders = order.NewManager(e.ledger, order.WithClock(e.now))
	e.sizer = portfolio.NewTieredPositionSizer(e.ledger)
	if err := e.sizer.Initialize(cfg.Risk); err != nil {
		return nil, fmt.Errorf("engine: risk config: %w", err)
	}
	e.prices = &priceResolver{
		feed:   e.feed,
		cache:  e.cache,
		market: market,
		maxAge: cfg.PriceMaxAge,
		now:    e.now,
		logger: e.logger,
	}
	e.analyzer = analytics.NewAnalyzer(e.ledger, e.prices)
	e.runner = schedule.NewRunner(&decisionTask{engine: e}, cfg.Interval)
	return e, nil
}

// Load 从存储恢复状态; 没有快照时使用初始余额并生成跟踪列表
func (e *Engine) Load(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap, err := e.store.Load(ctx)
	if errors.Is(err, persist.ErrNoSnapshot) {
		e.logger.Info("no snapshot found, starting from defaults",
			"quote", e.cfg.Quote, "initial_balance", e.cfg.InitialBalance)
		e.ledger.Reset()
		e.orders.Reset()
		tracked, err := e.initialTracked(ctx)
		if err != nil {
			return err
		}
		e.setTracked(tracked)
		return e.persistLocked(ctx)
	}
	if err != nil {
		return err
	}

	if err := e.ledger.Restore(snap.Balances, snap.Trades); err != nil {
		return err
	}
	e.orders.Restore(snap.Orders)
	e.trading.Store(snap.TradingEnabled)
	tracked, err := parsePairs(snap.TrackedSymbols)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	if len(tracked) == 0 {
		if tracked, err = e.initialTracked(ctx); err != nil {
			return err
		}
	}
	e.setTracked(tracked)
	e.logger.Info("snapshot restored",
		"trades", len(snap.Trades), "orders", len(snap.Orders),
		"trading", snap.TradingEnabled, "last_update", snap.LastUpdate)
	return nil
}

func (e *Engine) initialTracked(ctx context.Context) ([]exchange.TradingPair, error) {
	if len(e.cfg.Tracked) > 0 {
		return parsePairs(e.cfg.Tracked)
	}
	return e.sampleTracked(ctx), nil
}

// ========== 查询 ==========

// Balance 余额, 总价值与盈亏
func (e *Engine) Balance(ctx context.Context) analytics.BalanceReport {
	return e.analyzer.BalanceReport(ctx)
}

func (e *Engine) OpenPositions() []ledger.Position {
	return e.ledger.OpenPositions()
}

// TradeHistory 最近 limit 条成交, limit <= 0 返回全部
func (e *Engine) TradeHistory(limit int) []ledger.TradeRecord {
	return e.ledger.TradeHistory(limit)
}

func (e *Engine) ActiveOrders() []order.Order {
	return e.orders.Active()
}

func (e *Engine) RiskAnalysis(ctx context.Context) analytics.RiskAnalysis {
	return e.analyzer.RiskAnalysis(ctx)
}

// PerformanceReport 绩效报告与文字评估
func (e *Engine) PerformanceReport(ctx context.Context) (analytics.Report, string) {
	report := e.analyzer.PerformanceReport(ctx)
	review, err := e.reviewer.Review(ctx, report)
	if err != nil {
		e.logger.Warn("review performance report", "error", err)
	}
	return report, review
}

func (e *Engine) TrackedSymbols() []exchange.TradingPair {
	e.trackedMu.RLock()
	defer e.trackedMu.RUnlock()
	return append([]exchange.TradingPair(nil), e.tracked...)
}

func (e *Engine) IsTradingRunning() bool {
	return e.trading.Load()
}

// ========== 交易开关 ==========

func (e *Engine) StartTrading(ctx context.Context) {
	e.setTrading(ctx, true)
}

func (e *Engine) StopTrading(ctx context.Context) {
	e.setTrading(ctx, false)
}

func (e *Engine) setTrading(ctx context.Context, enabled bool) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.trading.Swap(enabled) == enabled {
		return
	}
	_ = e.persistLocked(ctx)
	e.logger.Info("trading toggled", "enabled", enabled)
	e.notify(ctx, notification.Event{
		Type:    notification.EventTradingToggled,
		Message: fmt.Sprintf("trading enabled: %t", enabled),
		Data:    map[string]any{"enabled": enabled},
	})
}

// ========== 交易 ==========

// ExecuteManualTrade 手动成交; price 无效时使用当前价
func (e *Engine) ExecuteManualTrade(ctx context.Context, symbol string, side ledger.Side, amount decimal.Decimal, price decimal.NullDecimal) (ledger.TradeRecord, error) {
	pair, err := exchange.ParsePair(symbol)
	if err != nil {
		return ledger.TradeRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	p := price.Decimal
	if !price.Valid {
		if p, err = e.prices.Price(ctx, pair); err != nil {
			return ledger.TradeRecord{}, err
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.tradeLocked(ctx, ledger.TradeReq{
		TradingPair: pair,
		Side:        side,
		Amount:      amount,
		Price:       p,
		Source:      ledger.SourceManual,
	})
}

// tradeLocked 调用方持有 writeMu
func (e *Engine) tradeLocked(ctx context.Context, req ledger.TradeReq) (ledger.TradeRecord, error) {
	record, err := e.ledger.ExecuteTrade(req)
	if err != nil {
		return ledger.TradeRecord{}, err
	}
	e.lastTrade[record.Symbol] = record.Timestamp
	e.logger.Info("trade executed",
		"symbol", record.Symbol, "side", record.Side, "amount", record.Amount,
		"price", record.Price, "source", record.Source)
	_ = e.persistLocked(ctx)
	e.notify(ctx, notification.Event{
		Type:    notification.EventTradeExecuted,
		Symbol:  record.Symbol,
		Message: fmt.Sprintf("%s %s %s @ %s", record.Side, record.Amount, record.Symbol, record.Price),
		Data: map[string]any{
			"id":     record.Id,
			"side":   record.Side,
			"amount": record.Amount.String(),
			"price":  record.Price.String(),
			"source": record.Source,
		},
	})
	return record, nil
}

// AddBalance 直接增加资产余额
func (e *Engine) AddBalance(ctx context.Context, asset string, amount decimal.Decimal) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.ledger.AddBalance(asset, amount); err != nil {
		return err
	}
	_ = e.persistLocked(ctx)
	return nil
}

// ResetBalance 恢复初始余额, 清空成交与订单
func (e *Engine) ResetBalance(ctx context.Context) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.ledger.Reset()
	e.orders.Reset()
	clear(e.lastTrade)
	e.logger.Info("balance reset")
	_ = e.persistLocked(ctx)
}

// ========== 止损止盈 ==========

func (e *Engine) CreateStopLossOrder(ctx context.Context, symbol string, trigger, amount decimal.Decimal) (order.Order, error) {
	return e.createOrder(ctx, symbol, order.KindStopLoss, trigger, amount)
}

func (e *Engine) CreateTakeProfitOrder(ctx context.Context, symbol string, trigger, amount decimal.Decimal) (order.Order, error) {
	return e.createOrder(ctx, symbol, order.KindTakeProfit, trigger, amount)
}

func (e *Engine) createOrder(ctx context.Context, symbol string, kind order.Kind, trigger, amount decimal.Decimal) (order.Order, error) {
	pair, err := exchange.ParsePair(symbol)
	if err != nil {
		return order.Order{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	o, err := e.createOrderLocked(pair, kind, trigger, amount)
	if err != nil {
		return order.Order{}, err
	}
	_ = e.persistLocked(ctx)
	return o, nil
}

func (e *Engine) createOrderLocked(pair exchange.TradingPair, kind order.Kind, trigger, amount decimal.Decimal) (order.Order, error) {
	if kind == order.KindTakeProfit {
		return e.orders.CreateTakeProfit(pair, trigger, amount)
	}
	return e.orders.CreateStopLoss(pair, trigger, amount)
}

// SetAutoStopLossTakeProfit 按买入价的百分比同时挂止损和止盈, 百分比 <= 0 时使用风控配置
func (e *Engine) SetAutoStopLossTakeProfit(ctx context.Context, symbol string, buyPrice, amount decimal.Decimal, slPct, tpPct float64) (stopLoss, takeProfit order.Order, err error) {
	pair, err := exchange.ParsePair(symbol)
	if err != nil {
		return order.Order{}, order.Order{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	if !buyPrice.IsPositive() {
		return order.Order{}, order.Order{}, fmt.Errorf("%w: buy price %s must be positive", domain.ErrInvalidOrder, buyPrice)
	}
	if slPct <= 0 {
		slPct = e.cfg.Risk.StopLossPct
	}
	if tpPct <= 0 {
		tpPct = e.cfg.Risk.TakeProfitPct
	}
	slPrice, tpPrice := portfolio.BracketLevels(buyPrice, 0, 0, slPct, tpPct)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	stopLoss, takeProfit, err = e.bracketLocked(pair, slPrice, tpPrice, amount)
	if err != nil {
		return order.Order{}, order.Order{}, err
	}
	_ = e.persistLocked(ctx)
	return stopLoss, takeProfit, nil
}

// bracketLocked 止盈创建失败时撤销已创建的止损
func (e *Engine) bracketLocked(pair exchange.TradingPair, slPrice, tpPrice, amount decimal.Decimal) (order.Order, order.Order, error) {
	sl, err := e.orders.CreateStopLoss(pair, slPrice, amount)
	if err != nil {
		return order.Order{}, order.Order{}, err
	}
	tp, err := e.orders.CreateTakeProfit(pair, tpPrice, amount)
	if err != nil {
		e.orders.Cancel(sl.Id)
		return order.Order{}, order.Order{}, err
	}
	return sl, tp, nil
}

// CancelOrder 已结束或不存在的订单返回 false
func (e *Engine) CancelOrder(ctx context.Context, id string) (order.Order, bool) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	o, found := e.orders.Cancel(id)
	if !found {
		return order.Order{}, false
	}
	_ = e.persistLocked(ctx)
	e.notifyOrder(ctx, order.Transition{Order: o})
	return o, true
}

// CheckOrders 用当前价检查所有活动订单. 取价在 writeMu 之外进行.
func (e *Engine) CheckOrders(ctx context.Context) ([]order.Transition, error) {
	quotes, err := e.orders.ResolvePrices(ctx, e.prices)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	transitions := e.orders.CheckQuotes(quotes)
	e.afterTransitionsLocked(ctx, transitions)
	return transitions, err
}

// CleanupInvalidOrders 撤销数量超过持仓的活动订单
func (e *Engine) CleanupInvalidOrders(ctx context.Context) []order.Transition {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	transitions := e.orders.CleanupInvalid()
	e.afterTransitionsLocked(ctx, transitions)
	return transitions
}

// checkTick 推送价格触发的订单检查
func (e *Engine) checkTick(ctx context.Context, tick exchange.PriceTick) []order.Transition {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	transitions := e.orders.CheckPrice(tick.TradingPair, tick.Price)
	e.afterTransitionsLocked(ctx, transitions)
	return transitions
}

func (e *Engine) afterTransitionsLocked(ctx context.Context, transitions []order.Transition) {
	if len(transitions) == 0 {
		return
	}
	for _, t := range transitions {
		if t.Trade != nil {
			e.lastTrade[t.Trade.Symbol] = t.Trade.Timestamp
		}
	}
	_ = e.persistLocked(ctx)
	for _, t := range transitions {
		e.notifyOrder(ctx, t)
	}
}

// ========== 组合维护 ==========

// ForceSellPosition 按当前价卖出 pct% 持仓, pct <= 0 时使用默认比例
func (e *Engine) ForceSellPosition(ctx context.Context, symbol string, pct float64) (ledger.TradeRecord, error) {
	pair, err := exchange.ParsePair(symbol)
	if err != nil {
		return ledger.TradeRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}
	if pct <= 0 {
		pct = e.cfg.ForceSellPercent
	}
	if pct > 100 {
		return ledger.TradeRecord{}, fmt.Errorf("%w: sell percent %.2f exceeds 100", domain.ErrInvalidOrder, pct)
	}
	held := e.ledger.Balance(pair.Base)
	if !held.IsPositive() {
		return ledger.TradeRecord{}, fmt.Errorf("%w: no %s position", domain.ErrInsufficientHoldings, pair.Base)
	}
	price, err := e.prices.Price(ctx, pair)
	if err != nil {
		return ledger.TradeRecord{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	// 持仓可能在取价期间变化
	amount := e.ledger.Balance(pair.Base).Mul(decimal.NewFromFloat(pct / 100)).Truncate(8)
	return e.tradeLocked(ctx, ledger.TradeReq{
		TradingPair: pair,
		Side:        ledger.SideSell,
		Amount:      amount,
		Price:       price,
		Source:      ledger.SourceForceSell,
	})
}

const (
	rebalanceQuoteFloor = 20  // 计价资产占比低于该百分比时再平衡
	rebalanceTopN       = 3   // 只处理价值最大的几个持仓
	rebalanceMinValue   = 200 // 持仓价值下限
	rebalanceSellRatio  = 0.3
)

type RebalanceResult struct {
	QuotePercent float64              `json:"quote_percent"`
	Rebalanced   bool                 `json:"rebalanced"`
	QuoteBefore  decimal.Decimal      `json:"quote_before"`
	QuoteAfter   decimal.Decimal      `json:"quote_after"`
	Trades       []ledger.TradeRecord `json:"trades"`
}

// RebalancePortfolio 计价资产占比过低时卖出最大几个持仓的一部分
func (e *Engine) RebalancePortfolio(ctx context.Context) (RebalanceResult, error) {
	v := e.analyzer.Valuate(ctx)
	risk := analytics.AnalyzeRisk(v)
	result := RebalanceResult{
		QuotePercent: risk.QuotePercent,
		QuoteBefore:  v.QuoteBalance,
		QuoteAfter:   v.QuoteBalance,
	}
	if !v.TotalValue.IsPositive() || risk.QuotePercent >= rebalanceQuoteFloor {
		return result, nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	result.Rebalanced = true
	var errs []error
	for _, h := range lo.Slice(v.Holdings, 0, rebalanceTopN) {
		if !h.Value.GreaterThan(decimal.NewFromInt(rebalanceMinValue)) {
			continue
		}
		pair, err := exchange.ParsePair(h.Symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		amount := decimal.Min(h.Amount, e.ledger.Balance(pair.Base)).
			Mul(decimal.NewFromFloat(rebalanceSellRatio)).Truncate(8)
		record, err := e.tradeLocked(ctx, ledger.TradeReq{
			TradingPair: pair,
			Side:        ledger.SideSell,
			Amount:      amount,
			Price:       h.Price,
			Source:      ledger.SourceRebalance,
		})
		if err != nil {
			e.logger.Warn("rebalance sell failed", "symbol", h.Symbol, "error", err)
			errs = append(errs, err)
			continue
		}
		result.Trades = append(result.Trades, record)
	}
	result.QuoteAfter = e.ledger.Balance(e.cfg.Quote)
	return result, errors.Join(errs...)
}

// SellLargePositions 价值超过 LargePositionValue 的持仓按 LargePositionSellPercent% 减仓
func (e *Engine) SellLargePositions(ctx context.Context) ([]ledger.TradeRecord, error) {
	if e.cfg.LargePositionValue < 0 {
		return nil, nil
	}
	limit := decimal.NewFromFloat(e.cfg.LargePositionValue)
	large := lo.Filter(e.analyzer.Valuate(ctx).Holdings, func(h analytics.Holding, _ int) bool {
		return h.Value.GreaterThan(limit)
	})
	if len(large) == 0 {
		return nil, nil
	}
	ratio := decimal.NewFromFloat(e.cfg.LargePositionSellPercent / 100)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	var (
		trades []ledger.TradeRecord
		errs   []error
	)
	for _, h := range large {
		pair, err := exchange.ParsePair(h.Symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		amount := decimal.Min(h.Amount, e.ledger.Balance(pair.Base)).Mul(ratio).Truncate(8)
		record, err := e.tradeLocked(ctx, ledger.TradeReq{
			TradingPair: pair,
			Side:        ledger.SideSell,
			Amount:      amount,
			Price:       h.Price,
			Source:      ledger.SourcePositionLimit,
		})
		if err != nil {
			e.logger.Warn("sell large position failed", "symbol", h.Symbol, "error", err)
			errs = append(errs, err)
			continue
		}
		e.logger.Info("sold part of large position",
			"symbol", h.Symbol, "value", h.Value, "amount", amount, "price", h.Price)
		trades = append(trades, record)
	}
	return trades, errors.Join(errs...)
}

// RegenerateTrackedSymbols 从候选列表中重新抽取跟踪的交易对
func (e *Engine) RegenerateTrackedSymbols(ctx context.Context) ([]exchange.TradingPair, error) {
	tracked := e.sampleTracked(ctx)
	if len(tracked) == 0 {
		return nil, fmt.Errorf("%w: no listed symbols in universe", domain.ErrDataUnavailable)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.setTracked(tracked)
	if e.symbolRepo != nil {
		rows := lo.Map(tracked, func(p exchange.TradingPair, _ int) entity.Symbol {
			return entity.Symbol{Base: p.Base, Quote: p.Quote}
		})
		if err := e.symbolRepo.ReplaceTracked(ctx, rows); err != nil {
			e.logger.Warn("save tracked symbols", "error", err)
		}
	}
	_ = e.persistLocked(ctx)
	e.logger.Info("tracked symbols regenerated", "symbols", slashSymbols(tracked))
	return tracked, nil
}

// sampleTracked 交易所检查失败时退回完整候选列表
func (e *Engine) sampleTracked(ctx context.Context) []exchange.TradingPair {
	candidates := e.universe
	if e.symbols != nil {
		listed, err := e.symbols.ListedPairs(ctx, e.universe)
		if err != nil {
			e.logger.Warn("list exchange symbols, using full universe", "error", err)
		} else {
			candidates = listed
		}
	}
	return lo.Samples(candidates, e.cfg.TrackedCount)
}

func (e *Engine) setTracked(pairs []exchange.TradingPair) {
	e.trackedMu.Lock()
	e.tracked = pairs
	e.trackedMu.Unlock()
	if e.feed != nil {
		e.feed.SetPairs(pairs)
	}
}

// ========== 运行 ==========

// Run 运行行情推送, 推送消费者与调度器, 直到 ctx 结束
func (e *Engine) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	if e.feed != nil {
		eg.Go(func() error {
			err := e.feed.Run(ctx)
			if errors.Is(err, domain.ErrFeedUnavailable) {
				// 推送不可用时调度器继续使用 REST 价格
				return nil
			}
			return err
		})
		eg.Go(func() error {
			return e.consumeTicks(ctx)
		})
	}
	eg.Go(func() error {
		return e.runner.Run(ctx)
	})
	return eg.Wait()
}

func (e *Engine) consumeTicks(ctx context.Context) error {
	unavailable := e.feed.Unavailable()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-unavailable:
			unavailable = nil
			e.logger.Error("price feed unavailable, falling back to REST prices", "error", e.feed.Err())
			e.notify(ctx, notification.Event{
				Type:    notification.EventFeedUnavailable,
				Message: "price feed unavailable",
			})
		case tick, ok := <-e.feed.Ticks():
			if !ok {
				return nil
			}
			if e.cache != nil {
				if err := e.cache.SetTick(ctx, tick); err != nil {
					e.logger.Debug("mirror tick to cache", "symbol", tick.TradingPair, "error", err)
				}
			}
			e.checkTick(ctx, tick)
		}
	}
}

// Close 停止调度器并写入最后一次快照
func (e *Engine) Close(ctx context.Context) error {
	e.runner.Stop()
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.persistLocked(ctx)
}

// ========== 持久化与通知 ==========

func (e *Engine) snapshotLocked() persist.Snapshot {
	return persist.Snapshot{
		Version:        persist.Version,
		Balances:       e.ledger.Balances(),
		Trades:         e.ledger.TradeHistory(0),
		Orders:         e.orders.All(),
		TradingEnabled: e.trading.Load(),
		TrackedSymbols: slashSymbols(e.TrackedSymbols()),
		LastUpdate:     e.now(),
	}
}

// persistLocked 失败只记录日志, 不回滚内存状态
func (e *Engine) persistLocked(ctx context.Context) error {
	if err := e.store.Save(ctx, e.snapshotLocked()); err != nil {
		if !errors.Is(err, domain.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
		}
		e.logger.Error("save snapshot", "error", err)
		return err
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, event notification.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("notify", "type", event.Type, "error", err)
	}
}

func (e *Engine) notifyOrder(ctx context.Context, t order.Transition) {
	o := t.Order
	event := notification.Event{
		Symbol: o.Symbol,
		Data: map[string]any{
			"id":      o.Id,
			"kind":    o.Kind,
			"trigger": o.TriggerPrice.String(),
			"amount":  o.Amount.String(),
		},
	}
	switch o.Status {
	case order.StatusExecuted:
		event.Type = notification.EventOrderExecuted
		event.Message = fmt.Sprintf("%s %s executed at %s", o.Kind, o.Symbol, o.ExecutedPrice.Decimal)
	case order.StatusCancelled:
		event.Type = notification.EventOrderCancelled
		event.Message = fmt.Sprintf("%s %s cancelled: %s", o.Kind, o.Symbol, o.CancelReason)
	default:
		return
	}
	e.notify(ctx, event)
}
