package ioc

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitConfig 读取配置文件, 环境变量 PAPER_XXX_YYY 覆盖 xxx.yyy
func InitConfig(file string) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	viper.SetConfigFile(file)
	viper.SetEnvPrefix("PAPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
}
