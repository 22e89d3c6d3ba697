package ioc

import (
	"fmt"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/KNICEX/paper-trader/internal/repo"
	"github.com/KNICEX/paper-trader/internal/service/persist"
)

// InitStore 按 persist.backend 选择快照存储: file | db | s3
func InitStore(db *gorm.DB) persist.Store {
	type Config struct {
		Backend string `mapstructure:"backend"`
		Path    string `mapstructure:"path"`
	}

	var cfg Config
	if err := viper.UnmarshalKey("persist", &cfg); err != nil {
		panic(err)
	}

	switch cfg.Backend {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = "paper_trader_state.json"
		}
		return persist.NewFileStore(path)
	case "db":
		return persist.NewGormStore(repo.NewSnapshotRepo(db))
	case "s3":
		s3Cfg := loadS3Config()
		return persist.NewS3Store(InitS3Cli(s3Cfg), s3Cfg.Bucket, s3Cfg.Key)
	default:
		panic(fmt.Errorf("unknown persist backend %q", cfg.Backend))
	}
}
