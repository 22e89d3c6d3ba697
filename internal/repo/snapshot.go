package repo

import (
	"context"
	"errors"

	"github.com/KNICEX/paper-trader/internal/entity"
	"gorm.io/gorm"
)

// SnapshotRows 一次完整快照对应的所有行
type SnapshotRows struct {
	State    entity.EngineState
	Balances []entity.Balance
	Trades   []entity.Trade
	Orders   []entity.Order
}

type SnapshotRepo interface {
	// Replace 在一个事务中整体替换快照
	Replace(ctx context.Context, rows SnapshotRows) error
	// Load 没有快照时 found 为 false
	Load(ctx context.Context) (rows SnapshotRows, found bool, err error)
}

type snapshotRepo struct {
	db *gorm.DB
}

func NewSnapshotRepo(db *gorm.DB) SnapshotRepo {
	return &snapshotRepo{
		db: db,
	}
}

func (r *snapshotRepo) Replace(ctx context.Context, rows SnapshotRows) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&entity.Balance{}, &entity.Trade{}, &entity.Order{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		if len(rows.Balances) > 0 {
			if err := tx.CreateInBatches(&rows.Balances, 200).Error; err != nil {
				return err
			}
		}
		if len(rows.Trades) > 0 {
			if err := tx.CreateInBatches(&rows.Trades, 200).Error; err != nil {
				return err
			}
		}
		if len(rows.Orders) > 0 {
			if err := tx.CreateInBatches(&rows.Orders, 200).Error; err != nil {
				return err
			}
		}
		rows.State.Id = entity.EngineStateId
		return tx.Save(&rows.State).Error
	})
}

func (r *snapshotRepo) Load(ctx context.Context) (SnapshotRows, bool, error) {
	var rows SnapshotRows
	db := r.db.WithContext(ctx)
	err := db.Where("id = ?", entity.EngineStateId).First(&rows.State).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SnapshotRows{}, false, nil
	}
	if err != nil {
		return SnapshotRows{}, false, err
	}
	if err = db.Order("asset").Find(&rows.Balances).Error; err != nil {
		return SnapshotRows{}, false, err
	}
	if err = db.Order("seq").Find(&rows.Trades).Error; err != nil {
		return SnapshotRows{}, false, err
	}
	if err = db.Order("seq").Find(&rows.Orders).Error; err != nil {
		return SnapshotRows{}, false, err
	}
	return rows, true, nil
}
