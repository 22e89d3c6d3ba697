package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/service/exchange"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/pkg/decimalx"
)

// RecentTradeCount 绩效报告中展示的最近成交数
const RecentTradeCount = 5

// Account 分析需要的账本读能力, *ledger.Ledger 满足
type Account interface {
	Quote() string
	InitialQuoteBalance() decimal.Decimal
	Balances() map[string]decimal.Decimal
	TradeHistory(limit int) []ledger.TradeRecord
	TradeCount() int
	OpenPositions() []ledger.Position
}

type PriceSource interface {
	Price(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error)
}

type Analyzer struct {
	account Account
	prices  PriceSource
	now     func() time.Time
	logger  *slog.Logger
}

func NewAnalyzer(account Account, prices PriceSource) *Analyzer {
	return &Analyzer{
		account: account,
		prices:  prices,
		now:     time.Now,
		logger:  slog.With("component", "analytics"),
	}
}

// ========== 报告结构 ==========

// Holding 按现价估值的持仓
type Holding struct {
	Asset       string          `json:"asset"`
	Symbol      string          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Price       decimal.Decimal `json:"price"`
	Value       decimal.Decimal `json:"value"`
	Percent     float64         `json:"percent"` // 占总价值
}

// Valuation 账户估值
type Valuation struct {
	QuoteBalance decimal.Decimal `json:"quote_balance"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Holdings     []Holding       `json:"holdings"`
	Unpriced     []string        `json:"unpriced,omitempty"` // 取不到价格, 未计入总价值
}

type BalanceReport struct {
	Balances     map[string]decimal.Decimal `json:"balances"`
	QuoteBalance decimal.Decimal            `json:"quote_balance"`
	TotalValue   decimal.Decimal            `json:"total_value"`
	PnL          decimal.Decimal            `json:"pnl"`
	SuccessRate  float64                    `json:"success_rate"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type RiskAnalysis struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	QuotePercent    float64         `json:"quote_percent"`
	Diversification float64         `json:"diversification"`
	Level           RiskLevel       `json:"level"`
	Recommendation  string          `json:"recommendation"`
}

// Report 绩效报告
type Report struct {
	TotalValue    decimal.Decimal            `json:"total_value"`
	Profit        decimal.Decimal            `json:"profit"`
	ProfitPercent float64                    `json:"profit_percent"`
	TotalTrades   int                        `json:"total_trades"`
	SuccessRate   float64                    `json:"success_rate"`
	Balances      map[string]decimal.Decimal `json:"balances"`
	Holdings      []Holding                  `json:"holdings"`
	Risk          RiskAnalysis               `json:"risk"`
	RecentTrades  []ledger.TradeRecord       `json:"recent_trades"`
	GeneratedAt   time.Time                  `json:"generated_at"`
}

func (r Report) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

// ========== 计算 ==========

// Valuate 计价资产 + 持仓按现价估值; 取不到价格的资产记入 Unpriced
func (a *Analyzer) Valuate(ctx context.Context) Valuation {
	quote := a.account.Quote()
	balances := a.account.Balances()
	v := Valuation{QuoteBalance: balances[quote]}
	total := v.QuoteBalance

	for _, p := range a.account.OpenPositions() {
		pair := exchange.TradingPair{Base: p.Asset, Quote: quote}
		price, err := a.prices.Price(ctx, pair)
		if err != nil {
			a.logger.Warn("skip holding valuation", "symbol", pair, "error", err)
			v.Unpriced = append(v.Unpriced, p.Asset)
			continue
		}
		value := p.Amount.Mul(price)
		total = total.Add(value)
		v.Holdings = append(v.Holdings, Holding{
			Asset:       p.Asset,
			Symbol:      p.Symbol,
			Amount:      p.Amount,
			AverageCost: p.AverageCost,
			Price:       price,
			Value:       value,
		})
	}
	v.TotalValue = total
	for i := range v.Holdings {
		v.Holdings[i].Percent = decimalx.Ratio(v.Holdings[i].Value, total, 0)
	}
	sort.SliceStable(v.Holdings, func(i, j int) bool {
		return v.Holdings[i].Value.GreaterThan(v.Holdings[j].Value)
	})
	return v
}

func (a *Analyzer) BalanceReport(ctx context.Context) BalanceReport {
	v := a.Valuate(ctx)
	return BalanceReport{
		Balances:     a.account.Balances(),
		QuoteBalance: v.QuoteBalance,
		TotalValue:   v.TotalValue,
		PnL:          v.TotalValue.Sub(a.account.InitialQuoteBalance()),
		SuccessRate:  SuccessRate(a.account.TradeHistory(0)),
		GeneratedAt:  a.now(),
	}
}

func (a *Analyzer) RiskAnalysis(ctx context.Context) RiskAnalysis {
	return AnalyzeRisk(a.Valuate(ctx))
}

func (a *Analyzer) PerformanceReport(ctx context.Context) Report {
	v := a.Valuate(ctx)
	initial := a.account.InitialQuoteBalance()
	profit := v.TotalValue.Sub(initial)
	return Report{
		TotalValue:    v.TotalValue,
		Profit:        profit,
		ProfitPercent: decimalx.Ratio(profit, initial, 0),
		TotalTrades:   a.account.TradeCount(),
		SuccessRate:   SuccessRate(a.account.TradeHistory(0)),
		Balances:      a.account.Balances(),
		Holdings:      v.Holdings,
		Risk:          AnalyzeRisk(v),
		RecentTrades:  a.account.TradeHistory(RecentTradeCount),
		GeneratedAt:   a.now(),
	}
}

// AnalyzeRisk 计价资产占比 > 80% 为低风险, > 50% 为中风险, 否则高风险
func AnalyzeRisk(v Valuation) RiskAnalysis {
	quotePct := decimalx.Ratio(v.QuoteBalance, v.TotalValue, 100)
	r := RiskAnalysis{
		TotalValue:      v.TotalValue,
		QuotePercent:    quotePct,
		Diversification: 100 - quotePct,
	}
	switch {
	case quotePct > 80:
		r.Level = RiskLow
		r.Recommendation = "increase diversification"
	case quotePct > 50:
		r.Level = RiskMedium
		r.Recommendation = "risk level acceptable"
	default:
		r.Level = RiskHigh
		r.Recommendation = "risk level acceptable"
	}
	return r
}

// SuccessRate 按平均成本配对买卖, 返回盈利卖出的百分比(四舍五入). 没有可配对的卖出时为 0.
func SuccessRate(trades []ledger.TradeRecord) float64 {
	type basis struct {
		amount decimal.Decimal
		cost   decimal.Decimal
	}
	books := make(map[string]basis)
	var closed []bool

	for _, t := range trades {
		pair, err := exchange.ParsePair(t.Symbol)
		if err != nil {
			continue
		}
		b := books[pair.Base]
		switch t.Side {
		case ledger.SideBuy:
			b.amount = b.amount.Add(t.Amount)
			b.cost = b.cost.Add(t.Notional())
		case ledger.SideSell:
			if !b.amount.IsPositive() {
				continue
			}
			avg := b.cost.Div(b.amount)
			profit := t.Notional().Sub(t.Amount.Mul(avg))
			closed = append(closed, profit.IsPositive())

			remaining := b.amount.Sub(t.Amount)
			if remaining.IsPositive() {
				b.cost = b.cost.Mul(remaining).Div(b.amount)
				b.amount = remaining
			} else {
				b = basis{}
			}
		}
		books[pair.Base] = b
	}

	if len(closed) == 0 {
		return 0
	}
	wins := lo.Count(closed, true)
	return math.Round(float64(wins) / float64(len(closed)) * 100)
}
