package repo

import (
	"context"

	"github.com/KNICEX/paper-trader/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SymbolRepo interface {
	FindByMark(ctx context.Context, mark string) ([]entity.Symbol, error)
	FindByBaseAndQuote(ctx context.Context, base, quote string) (entity.Symbol, error)
	// ReplaceTracked 清除原有跟踪标记, 并把 symbols 标记为跟踪
	ReplaceTracked(ctx context.Context, symbols []entity.Symbol) error
}

type symbolRepo struct {
	db *gorm.DB
}

func NewSymbolRepo(db *gorm.DB) SymbolRepo {
	return &symbolRepo{
		db: db,
	}
}

func (repo *symbolRepo) FindByMark(ctx context.Context, mark string) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	err := repo.db.WithContext(ctx).Where("mark = ?", mark).Order("id").Find(&symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

func (repo *symbolRepo) FindByBaseAndQuote(ctx context.Context, base, quote string) (entity.Symbol, error) {
	var symbol entity.Symbol
	err := repo.db.WithContext(ctx).Where("base = ? AND quote = ?", base, quote).First(&symbol).Error
	if err != nil {
		return entity.Symbol{}, err
	}
	return symbol, nil
}

func (repo *symbolRepo) ReplaceTracked(ctx context.Context, symbols []entity.Symbol) error {
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&entity.Symbol{}).Where("mark = ?", entity.MarkTracked).Update("mark", "").Error
		if err != nil {
			return err
		}
		for _, s := range symbols {
			s.Id = 0
			s.Mark = entity.MarkTracked
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "base"}, {Name: "quote"}},
				DoUpdates: clause.AssignmentColumns([]string{"mark", "updated_at"}),
			}).Create(&s).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
