package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KNICEX/paper-trader/internal/service/llm"
)

// Reviewer 把绩效报告转成简短的文字评估
type Reviewer interface {
	Review(ctx context.Context, report Report) (string, error)
}

var (
	_ Reviewer = RuleReviewer{}
	_ Reviewer = (*LLMReviewer)(nil)
)

// RuleReviewer 基于阈值的评估, 不依赖外部服务
type RuleReviewer struct{}

func (RuleReviewer) Review(ctx context.Context, r Report) (string, error) {
	var lines []string
	switch {
	case r.Profit.IsPositive():
		lines = append(lines, fmt.Sprintf("Portfolio is up %.2f%% (%s).", r.ProfitPercent, r.Profit.StringFixed(2)))
	case r.Profit.IsNegative():
		lines = append(lines, fmt.Sprintf("Portfolio is down %.2f%% (%s).", -r.ProfitPercent, r.Profit.StringFixed(2)))
	default:
		lines = append(lines, "Portfolio is flat.")
	}

	if r.TotalTrades == 0 {
		lines = append(lines, "No trades yet.")
	} else {
		lines = append(lines, fmt.Sprintf("%d trades, success rate %.0f%%.", r.TotalTrades, r.SuccessRate))
		if r.SuccessRate < 40 {
			lines = append(lines, "Success rate is low; consider raising the confidence threshold.")
		}
	}

	lines = append(lines, fmt.Sprintf("Risk %s with %.1f%% in quote; %s.", r.Risk.Level, r.Risk.QuotePercent, r.Risk.Recommendation))
	return strings.Join(lines, " "), nil
}

// LLMReviewer 调用大模型生成评估, 失败时退回 fallback
type LLMReviewer struct {
	svc      llm.Service
	fallback Reviewer
	logger   *slog.Logger
}

func NewLLMReviewer(svc llm.Service) *LLMReviewer {
	return &LLMReviewer{
		svc:      svc,
		fallback: RuleReviewer{},
		logger:   slog.With("component", "reviewer"),
	}
}

// ReviewInstruction 作为模型的系统提示词
const ReviewInstruction = `You are reviewing a simulated (paper) crypto trading account.
Give a short assessment (at most 5 sentences) of performance and risk, and one concrete suggestion.
Do not give financial advice beyond the simulation.`

const reviewPrompt = `Report (JSON):
%s`

func (r *LLMReviewer) Review(ctx context.Context, report Report) (string, error) {
	answer, err := r.svc.AskOnce(ctx, llm.Question{Content: fmt.Sprintf(reviewPrompt, report.String())})
	if err == nil && strings.TrimSpace(answer.Content) != "" {
		r.logger.Debug("llm review done", "input_tokens", answer.InputToken, "output_tokens", answer.OutputToken)
		return strings.TrimSpace(answer.Content), nil
	}
	if err == nil {
		err = fmt.Errorf("empty answer")
	}
	r.logger.Warn("llm review failed, using rule reviewer", "error", err)
	return r.fallback.Review(ctx, report)
}
