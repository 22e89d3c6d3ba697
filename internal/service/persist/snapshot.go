package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/order"
)

// Version 当前快照格式版本
const Version = 1

// ErrNoSnapshot 存储中还没有快照
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot 引擎可恢复状态的完整副本
type Snapshot struct {
	Version        int                        `json:"version"`
	Balances       map[string]decimal.Decimal `json:"balances"`
	Trades         []ledger.TradeRecord       `json:"trades"`
	Orders         []order.Order              `json:"orders"`
	TradingEnabled bool                       `json:"trading_enabled"`
	TrackedSymbols []string                   `json:"tracked_symbols"`
	LastUpdate     time.Time                  `json:"last_update"`
}

// Store 快照存储. Save 必须原子: 读者要么看到旧快照, 要么看到新快照.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Validate 检查版本与余额
func (s Snapshot) Validate() error {
	if s.Version != Version {
		return fmt.Errorf("%w: unsupported snapshot version %d, want %d",
			domain.ErrPersistenceFailure, s.Version, Version)
	}
	negative := lo.PickBy(s.Balances, func(_ string, amount decimal.Decimal) bool {
		return amount.IsNegative()
	})
	if len(negative) > 0 {
		return fmt.Errorf("%w: negative balances %v", domain.ErrPersistenceFailure, lo.Keys(negative))
	}
	return nil
}
