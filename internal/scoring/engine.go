package scoring

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/apkshield/apkshield-go/internal/domain"
)

// 阈值与解释条数缺省值，可由配置覆盖
const (
	DefaultSafeThreshold     = 3.0
	DefaultHighRiskThreshold = 7.0
	DefaultTopFeatures       = 5
)

// Options 评分引擎配置
type Options struct {
	ModelPath         string  // 为空时使用内嵌缺省模型
	SafeThreshold     float64 // 低于该分数判 Safe
	HighRiskThreshold float64 // 不低于该分数判 HighRisk
	TopFeatures       int     // 解释条目数
}

// Outcome 一次评分的完整产出
type Outcome struct {
	Probability          float64
	Score                float64
	Verdict              domain.Verdict
	Explanation          []domain.Contribution
	ExplanationAvailable bool
	ModelVersion         string
}

// loadedModel 模型与校准表的不可变快照，整体原子替换
type loadedModel struct {
	model Model
	cal   *calibrator
}

// Engine 风险评分引擎
// 模型热加载通过原子指针交换实现，评分路径无锁
type Engine struct {
	logger  *logrus.Logger
	opts    Options
	current atomic.Pointer[loadedModel]
}

// NewEngine 创建引擎并加载初始模型，加载失败返回 ErrModelUnavailable
func NewEngine(logger *logrus.Logger, opts Options) (*Engine, error) {
	if opts.SafeThreshold <= 0 {
		opts.SafeThreshold = DefaultSafeThreshold
	}
	if opts.HighRiskThreshold <= 0 {
		opts.HighRiskThreshold = DefaultHighRiskThreshold
	}
	if opts.HighRiskThreshold <= opts.SafeThreshold {
		return nil, fmt.Errorf("%w: thresholds invalid (%v, %v)",
			ErrModelUnavailable, opts.SafeThreshold, opts.HighRiskThreshold)
	}
	if opts.TopFeatures <= 0 {
		opts.TopFeatures = DefaultTopFeatures
	}

	e := &Engine{logger: logger, opts: opts}
	if err := e.Reload(opts.ModelPath); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload 从指定路径重新加载模型并原子替换，失败时保留旧模型
func (e *Engine) Reload(path string) error {
	art, err := loadArtifact(path)
	if err != nil {
		return err
	}
	cal, err := newCalibrator(art.Calibration)
	if err != nil {
		return err
	}
	lm := &loadedModel{
		model: &linearModel{
			version:       art.ModelVersion,
			schemaVersion: art.SchemaVersion,
			bias:          art.Bias,
			weights:       art.Weights,
		},
		cal: cal,
	}
	e.current.Store(lm)
	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"model_version":  art.ModelVersion,
			"schema_version": art.SchemaVersion,
			"weights":        len(art.Weights),
		}).Info("评分模型已加载")
	}
	return nil
}

// ModelVersion 当前模型版本，未加载时为空串
func (e *Engine) ModelVersion() string {
	if lm := e.current.Load(); lm != nil {
		return lm.model.Version()
	}
	return ""
}

// Score 对特征向量评分
// 形状不匹配返回 ErrSchemaMismatch，模型缺失返回 ErrModelUnavailable，
// 两者都是硬错误：绝不回落到默认分数
func (e *Engine) Score(fv *domain.FeatureVector) (*Outcome, error) {
	lm := e.current.Load()
	if lm == nil {
		return nil, ErrModelUnavailable
	}

	raw, err := lm.model.Predict(fv)
	if err != nil {
		return nil, err
	}
	calibrated := lm.cal.apply(raw)
	score := calibrated * 10

	out := &Outcome{
		Probability:  calibrated,
		Score:        score,
		Verdict:      e.verdict(score),
		ModelVersion: lm.model.Version(),
	}

	// 解释失败不影响分数：结果显式标记解释不可用
	contribs, err := lm.model.Explain(fv)
	if err == nil {
		if len(contribs) > e.opts.TopFeatures {
			contribs = contribs[:e.opts.TopFeatures]
		}
		out.Explanation = contribs
		out.ExplanationAvailable = true
	} else if e.logger != nil {
		e.logger.WithError(err).Warn("特征贡献分解失败，解释标记为不可用")
	}
	return out, nil
}

func (e *Engine) verdict(score float64) domain.Verdict {
	switch {
	case score < e.opts.SafeThreshold:
		return domain.VerdictSafe
	case score < e.opts.HighRiskThreshold:
		return domain.VerdictSuspicious
	default:
		return domain.VerdictHighRisk
	}
}
