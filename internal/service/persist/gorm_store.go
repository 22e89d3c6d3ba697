package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/entity"
	"github.com/KNICEX/paper-trader/internal/repo"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/order"
)

var _ Store = (*GormStore)(nil)

// GormStore 快照拆成 balances/trades/orders/engine_state 表, 一个事务内整体替换
type GormStore struct {
	repo repo.SnapshotRepo
}

func NewGormStore(r repo.SnapshotRepo) *GormStore {
	return &GormStore{repo: r}
}

func (s *GormStore) Load(ctx context.Context) (Snapshot, error) {
	rows, found, err := s.repo.Load(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: load rows: %v", domain.ErrPersistenceFailure, err)
	}
	if !found {
		return Snapshot{}, ErrNoSnapshot
	}
	snap, err := fromRows(rows)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *GormStore) Save(ctx context.Context, snap Snapshot) error {
	if err := s.repo.Replace(ctx, toRows(snap)); err != nil {
		return fmt.Errorf("%w: replace rows: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

func toRows(snap Snapshot) repo.SnapshotRows {
	return repo.SnapshotRows{
		State: entity.EngineState{
			Id:             entity.EngineStateId,
			Version:        snap.Version,
			TradingEnabled: snap.TradingEnabled,
			TrackedSymbols: strings.Join(snap.TrackedSymbols, ","),
			LastUpdate:     snap.LastUpdate,
		},
		Balances: lo.MapToSlice(snap.Balances, func(asset string, amount decimal.Decimal) entity.Balance {
			return entity.Balance{Asset: asset, Amount: amount.String()}
		}),
		Trades: lo.Map(snap.Trades, func(t ledger.TradeRecord, i int) entity.Trade {
			return entity.Trade{
				Seq:       int64(i + 1),
				Id:        t.Id,
				Symbol:    t.Symbol,
				Side:      string(t.Side),
				Amount:    t.Amount.String(),
				Price:     t.Price.String(),
				Source:    string(t.Source),
				Timestamp: t.Timestamp,
			}
		}),
		Orders: lo.Map(snap.Orders, func(o order.Order, i int) entity.Order {
			row := entity.Order{
				Seq:          int64(i + 1),
				Id:           o.Id,
				Symbol:       o.Symbol,
				Kind:         string(o.Kind),
				TriggerPrice: o.TriggerPrice.String(),
				Amount:       o.Amount.String(),
				Status:       string(o.Status),
				CreatedAt:    o.CreatedAt,
				ExecutedAt:   o.ExecutedAt,
				CancelReason: o.CancelReason,
			}
			if o.ExecutedPrice.Valid {
				row.ExecutedPrice = o.ExecutedPrice.Decimal.String()
			}
			return row
		}),
	}
}

func fromRows(rows repo.SnapshotRows) (Snapshot, error) {
	snap := Snapshot{
		Version:        rows.State.Version,
		TradingEnabled: rows.State.TradingEnabled,
		LastUpdate:     rows.State.LastUpdate,
		Balances:       make(map[string]decimal.Decimal, len(rows.Balances)),
	}
	if rows.State.TrackedSymbols != "" {
		snap.TrackedSymbols = strings.Split(rows.State.TrackedSymbols, ",")
	}

	for _, b := range rows.Balances {
		amount, err := decimal.NewFromString(b.Amount)
		if err != nil {
			return Snapshot{}, fmt.Errorf("balance %s: %w", b.Asset, err)
		}
		snap.Balances[b.Asset] = amount
	}

	for _, t := range rows.Trades {
		amount, err := decimal.NewFromString(t.Amount)
		if err != nil {
			return Snapshot{}, fmt.Errorf("trade %s amount: %w", t.Id, err)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return Snapshot{}, fmt.Errorf("trade %s price: %w", t.Id, err)
		}
		snap.Trades = append(snap.Trades, ledger.TradeRecord{
			Id:        t.Id,
			Symbol:    t.Symbol,
			Side:      ledger.Side(t.Side),
			Amount:    amount,
			Price:     price,
			Timestamp: t.Timestamp,
			Source:    ledger.TradeSource(t.Source),
		})
	}

	for _, row := range rows.Orders {
		trigger, err := decimal.NewFromString(row.TriggerPrice)
		if err != nil {
			return Snapshot{}, fmt.Errorf("order %s trigger: %w", row.Id, err)
		}
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return Snapshot{}, fmt.Errorf("order %s amount: %w", row.Id, err)
		}
		o := order.Order{
			Id:           row.Id,
			Symbol:       row.Symbol,
			Kind:         order.Kind(row.Kind),
			TriggerPrice: trigger,
			Amount:       amount,
			Status:       order.Status(row.Status),
			CreatedAt:    row.CreatedAt,
			ExecutedAt:   row.ExecutedAt,
			CancelReason: row.CancelReason,
		}
		if row.ExecutedPrice != "" {
			executed, err := decimal.NewFromString(row.ExecutedPrice)
			if err != nil {
				return Snapshot{}, fmt.Errorf("order %s executed price: %w", row.Id, err)
			}
			o.ExecutedPrice = decimal.NewNullDecimal(executed)
		}
		snap.Orders = append(snap.Orders, o)
	}
	return snap, nil
}
