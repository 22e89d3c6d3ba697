package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/entity"
	"github.com/KNICEX/paper-trader/internal/schedule"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/indicator"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/order"
	"github.com/KNICEX/paper-trader/internal/service/strategy"
)

var _ schedule.Task = (*decisionTask)(nil)

// decisionTask 调度器每个 tick 的工作
type decisionTask struct {
	engine *Engine
}

func (t *decisionTask) Name() string {
	return "strategy-scheduler"
}

func (t *decisionTask) Run(ctx context.Context) error {
	e := t.engine
	if _, err := e.CheckOrders(ctx); err != nil {
		e.logger.Warn("check orders", "error", err)
	}
	e.CleanupInvalidOrders(ctx)

	if !e.IsTradingRunning() {
		return nil
	}
	if _, err := e.SellLargePositions(ctx); err != nil {
		e.logger.Warn("sell large positions", "error", err)
	}
	for _, pair := range e.TrackedSymbols() {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := e.EvaluateSymbol(ctx, pair)
		if err != nil {
			e.logger.Warn("evaluate symbol", "symbol", pair, "error", err)
			continue
		}
		if outcome.Trade != nil {
			e.logger.Info("strategy trade",
				"symbol", pair, "action", outcome.Decision.Action,
				"confidence", outcome.Decision.Confidence, "reason", outcome.Reason)
		}
	}
	return nil
}

// Outcome 单个交易对一次评估的结果
type Outcome struct {
	TradingPair exchange.TradingPair
	Decision    strategy.Decision
	Price       decimal.Decimal
	Trade       *ledger.TradeRecord
	Orders      []order.Order // 买入后挂的止损止盈
	Reason      string
}

// Signal 某交易对当前的融合信号
type Signal struct {
	TradingPair exchange.TradingPair `json:"trading_pair"`
	Decision    strategy.Decision    `json:"decision"`
	Price       decimal.Decimal      `json:"price"`
}

// CurrentSignals 评估所有跟踪交易对的当前信号, 只读, 不下单
func (e *Engine) CurrentSignals(ctx context.Context) ([]Signal, error) {
	var (
		signals []Signal
		errs    []error
	)
	for _, pair := range e.TrackedSymbols() {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		decision, klines, err := e.decide(ctx, pair)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair, err))
			continue
		}
		price, err := e.prices.Price(ctx, pair)
		if err != nil {
			price = klines[len(klines)-1].Close
		}
		signals = append(signals, Signal{TradingPair: pair, Decision: decision, Price: price})
	}
	return signals, errors.Join(errs...)
}

// decide 拉取 K 线并融合策略信号
func (e *Engine) decide(ctx context.Context, pair exchange.TradingPair) (strategy.Decision, []exchange.Kline, error) {
	klines, err := e.market.GetKlines(ctx, exchange.GetKlinesReq{
		TradingPair: pair,
		Interval:    exchange.Interval(e.cfg.KlineInterval),
		Limit:       e.cfg.KlineLimit,
	})
	if err != nil {
		return strategy.Decision{}, nil, err
	}
	if len(klines) == 0 {
		return strategy.Decision{}, nil, fmt.Errorf("no klines for %s", pair)
	}
	return e.strategies.Evaluate(indicator.FromKlines(klines)), klines, nil
}

// EvaluateSymbol 拉取 K 线, 融合策略信号, 满足条件时下单
func (e *Engine) EvaluateSymbol(ctx context.Context, pair exchange.TradingPair) (Outcome, error) {
	out := Outcome{TradingPair: pair}
	decision, klines, err := e.decide(ctx, pair)
	if err != nil {
		return out, err
	}
	out.Decision = decision

	price, err := e.prices.Price(ctx, pair)
	if err != nil {
		e.logger.Debug("use last close as price", "symbol", pair, "error", err)
		price = klines[len(klines)-1].Close
	}
	out.Price = price

	status := entity.DecisionStatusSkipped
	defer func() {
		e.recordDecision(ctx, out, status)
	}()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if last, ok := e.lastTrade[pair.ToSlashString()]; ok && e.now().Sub(last) < e.cfg.Cooldown {
		out.Reason = fmt.Sprintf("cooldown, last trade %s ago", e.now().Sub(last).Truncate(time.Second))
		return out, nil
	}

	result, err := e.sizer.HandleDecision(pair, out.Decision, price)
	if err != nil {
		status = entity.DecisionStatusFailed
		return out, err
	}
	out.Reason = result.Reason
	if !result.Validated {
		return out, nil
	}

	plan := result.Plan
	record, err := e.tradeLocked(ctx, ledger.TradeReq{
		TradingPair: pair,
		Side:        plan.Side,
		Amount:      plan.Amount,
		Price:       plan.Price,
		Source:      ledger.SourceStrategy,
	})
	if err != nil {
		status = entity.DecisionStatusFailed
		return out, err
	}
	status = entity.DecisionStatusExecuted
	out.Trade = &record

	if plan.Side == ledger.SideBuy {
		sl, tp, err := e.bracketLocked(pair, plan.StopLoss, plan.TakeProfit, plan.Amount)
		if err != nil {
			e.logger.Warn("create bracket", "symbol", pair, "error", err)
			return out, nil
		}
		out.Orders = []order.Order{sl, tp}
		_ = e.persistLocked(ctx)
	}
	return out, nil
}

func (e *Engine) recordDecision(ctx context.Context, out Outcome, status int) {
	if e.decisionRepo == nil {
		return
	}
	_, err := e.decisionRepo.Create(ctx, entity.Decision{
		BaseSymbol:   out.TradingPair.Base,
		QuoteSymbol:  out.TradingPair.Quote,
		Price:        out.Price.String(),
		Action:       string(out.Decision.Action),
		Confidence:   out.Decision.Confidence,
		BuyStrength:  out.Decision.BuyStrength,
		SellStrength: out.Decision.SellStrength,
		Reason:       out.Reason,
		Status:       status,
		CreatedAt:    e.now(),
	})
	if err != nil {
		e.logger.Warn("record decision", "symbol", out.TradingPair, "error", err)
	}
}
