package scoring

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// modelArtifact 训练侧导出的模型产物
// 产物是评分的唯一事实来源：权重、偏置和校准表都来自它
type modelArtifact struct {
	SchemaVersion string             `json:"schema_version"`
	ModelVersion  string             `json:"model_version"`
	Bias          float64            `json:"bias"`
	Weights       map[string]float64 `json:"weights"`
	Calibration   []calibrationPoint `json:"calibration"`
}

//go:embed default_model.json
var defaultModelJSON []byte

// loadArtifact 从文件加载模型产物，path 为空时使用内嵌缺省模型
func loadArtifact(path string) (*modelArtifact, error) {
	data := defaultModelJSON
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		data = b
	}

	var art modelArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrModelUnavailable, err)
	}
	if art.SchemaVersion == "" || art.ModelVersion == "" || len(art.Weights) == 0 {
		return nil, fmt.Errorf("%w: artifact missing required fields", ErrModelUnavailable)
	}
	return &art, nil
}
