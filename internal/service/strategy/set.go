package strategy

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/KNICEX/paper-trader/internal/service/indicator"
)

const (
	VersionV1 = "v1"
	VersionV2 = "v2"

	DefaultVersion = VersionV2
)

// Set 按版本组合的一组评估器
type Set struct {
	version    string
	evaluators []Evaluator
	weights    Weights
}

// NewSet v1: 仅跟随线; v2: 四策略融合
func NewSet(version string) (*Set, error) {
	switch version {
	case VersionV1:
		return &Set{
			version:    VersionV1,
			evaluators: []Evaluator{NewFollowLine()},
			weights:    Weights{NameFollowLine: 1},
		}, nil
	case VersionV2, "":
		return &Set{
			version: VersionV2,
			evaluators: []Evaluator{
				NewFollowLine(),
				NewScalping(),
				NewVolumeProfile(),
				NewMomentum(),
			},
			weights: DefaultWeights,
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy version %q", version)
	}
}

func (s *Set) Version() string {
	return s.version
}

func (s *Set) Names() []string {
	return lo.Map(s.evaluators, func(e Evaluator, _ int) string {
		return e.Name()
	})
}

// Evaluate 计算指标快照并融合所有评估器的信号
func (s *Set) Evaluate(series indicator.Series) Decision {
	snap := indicator.Compute(series)
	signals := lo.Map(s.evaluators, func(e Evaluator, _ int) Signal {
		return e.Evaluate(series, snap)
	})
	return Fuse(signals, s.weights)
}

// NewCustomSet 使用自定义评估器与权重
func NewCustomSet(version string, weights Weights, evaluators ...Evaluator) *Set {
	return &Set{
		version:    version,
		evaluators: evaluators,
		weights:    weights,
	}
}
