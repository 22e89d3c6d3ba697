package ioc

import (
	"context"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"github.com/KNICEX/paper-trader/internal/service/analytics"
	"github.com/KNICEX/paper-trader/internal/service/llm/gemini"
)

type geminiConfig struct {
	ApiKey      []string `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature float32  `mapstructure:"temperature"`
}

func loadGeminiConfig() geminiConfig {
	var cfg geminiConfig
	if err := viper.UnmarshalKey("llm.gemini", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func InitGeminiCli() *genai.Client {
	cfg := loadGeminiConfig()
	if len(cfg.ApiKey) == 0 {
		panic("no gemini api key set")
	}

	cli, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.ApiKey[0]))
	if err != nil {
		panic(err)
	}
	return cli
}

// InitReviewer 配置了 gemini key 时用大模型点评, 否则用规则点评
func InitReviewer() analytics.Reviewer {
	cfg := loadGeminiConfig()
	if len(cfg.ApiKey) == 0 {
		slog.Info("no gemini api key, use rule reviewer")
		return analytics.RuleReviewer{}
	}

	// WithModel 需要放在最前面
	opts := []gemini.Option{gemini.WithModel(cfg.Model)}
	if cfg.Temperature > 0 {
		opts = append(opts, gemini.WithTemperature(cfg.Temperature))
	}
	opts = append(opts, gemini.WithSystemInstruction(analytics.ReviewInstruction))
	return analytics.NewLLMReviewer(gemini.NewService(InitGeminiCli(), opts...))
}
