package repo

import (
	"github.com/KNICEX/paper-trader/internal/entity"
	"gorm.io/gorm"
)

func InitTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Symbol{},
		&entity.Decision{},
		&entity.Balance{},
		&entity.Trade{},
		&entity.Order{},
		&entity.EngineState{},
	)
}
