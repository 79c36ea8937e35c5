package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/apkshield/apkshield-go/internal/domain"
)

var (
	// ErrSchemaMismatch 特征向量形状与模型期望不一致，拒绝评分
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrModelUnavailable 模型产物缺失或无法加载，评分硬失败
	ErrModelUnavailable = errors.New("scoring model unavailable")
)

// Model 评分模型契约：内部结构对调用方不透明
// 只暴露预测概率和逐特征贡献分解两个操作
type Model interface {
	Version() string
	SchemaVersion() string
	Predict(fv *domain.FeatureVector) (float64, error)
	Explain(fv *domain.FeatureVector) ([]domain.Contribution, error)
}

// linearModel 逻辑回归模型：p = σ(bias + Σ wᵢ·xᵢ)
// 贡献分解取加性项 wᵢ·xᵢ，按绝对值排序即为解释
type linearModel struct {
	version       string
	schemaVersion string
	bias          float64
	weights       map[string]float64
}

func (m *linearModel) Version() string       { return m.version }
func (m *linearModel) SchemaVersion() string { return m.schemaVersion }

func (m *linearModel) Predict(fv *domain.FeatureVector) (float64, error) {
	if err := m.checkSchema(fv); err != nil {
		return 0, err
	}
	// 固定求和顺序，浮点累加结果与 map 遍历顺序无关
	z := m.bias
	for _, name := range m.sortedNames() {
		v, _ := fv.Get(name)
		z += m.weights[name] * v
	}
	return sigmoid(z), nil
}

func (m *linearModel) sortedNames() []string {
	names := make([]string, 0, len(m.weights))
	for name := range m.weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *linearModel) Explain(fv *domain.FeatureVector) ([]domain.Contribution, error) {
	if err := m.checkSchema(fv); err != nil {
		return nil, err
	}
	out := make([]domain.Contribution, 0, len(m.weights))
	for name, w := range m.weights {
		v, _ := fv.Get(name)
		out = append(out, domain.Contribution{
			Feature: name,
			Weight:  w * v,
			Value:   v,
		})
	}
	// 绝对贡献降序，同值按名字定序保证输出稳定
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Weight), math.Abs(out[j].Weight)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature < out[j].Feature
	})
	return out, nil
}

func (m *linearModel) checkSchema(fv *domain.FeatureVector) error {
	if fv == nil || fv.SchemaVersion != m.schemaVersion {
		got := "<nil>"
		if fv != nil {
			got = fv.SchemaVersion
		}
		return fmt.Errorf("%w: model expects %s, vector is %s", ErrSchemaMismatch, m.schemaVersion, got)
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
