package repo

import (
	"context"

	"github.com/KNICEX/paper-trader/internal/entity"
	"gorm.io/gorm"
)

type DecisionRepo interface {
	Create(ctx context.Context, decision entity.Decision) (int64, error)
	FindRecent(ctx context.Context, limit int) ([]entity.Decision, error)
	FindByStatus(ctx context.Context, status int) ([]entity.Decision, error)
}

type decisionRepo struct {
	db *gorm.DB
}

func NewDecisionRepo(db *gorm.DB) DecisionRepo {
	return &decisionRepo{
		db: db,
	}
}

func (r *decisionRepo) Create(ctx context.Context, decision entity.Decision) (int64, error) {
	err := r.db.WithContext(ctx).Create(&decision).Error
	if err != nil {
		return 0, err
	}
	return decision.Id, nil
}

// FindRecent 最近 limit 条, 新的在前
func (r *decisionRepo) FindRecent(ctx context.Context, limit int) ([]entity.Decision, error) {
	var decisions []entity.Decision
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}

func (r *decisionRepo) FindByStatus(ctx context.Context, status int) ([]entity.Decision, error) {
	var decisions []entity.Decision
	err := r.db.WithContext(ctx).Where("status = ?", status).Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}
