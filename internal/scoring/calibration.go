package scoring

import (
	"fmt"
	"sort"
)

// calibrationPoint 等渗回归表中的一个节点
type calibrationPoint struct {
	Raw        float64 `json:"raw"`
	Calibrated float64 `json:"calibrated"`
}

// calibrator 单调分段线性校准映射
// 表必须在 raw 和 calibrated 两个维度上同时非降，否则拒绝加载
type calibrator struct {
	points []calibrationPoint
}

// newCalibrator 校验并构建校准器；空表退化为恒等映射
func newCalibrator(points []calibrationPoint) (*calibrator, error) {
	if len(points) == 0 {
		return &calibrator{}, nil
	}
	sorted := make([]calibrationPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Raw < sorted[j].Raw })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Calibrated < sorted[i-1].Calibrated {
			return nil, fmt.Errorf("%w: calibration table not monotonic at raw=%v",
				ErrModelUnavailable, sorted[i].Raw)
		}
	}
	for _, p := range sorted {
		if p.Raw < 0 || p.Raw > 1 || p.Calibrated < 0 || p.Calibrated > 1 {
			return nil, fmt.Errorf("%w: calibration point out of [0,1]: %+v",
				ErrModelUnavailable, p)
		}
	}
	return &calibrator{points: sorted}, nil
}

// apply 对原始概率做分段线性插值，端点外取端点值
func (c *calibrator) apply(raw float64) float64 {
	if len(c.points) == 0 {
		return raw
	}
	if raw <= c.points[0].Raw {
		return c.points[0].Calibrated
	}
	last := c.points[len(c.points)-1]
	if raw >= last.Raw {
		return last.Calibrated
	}
	idx := sort.Search(len(c.points), func(i int) bool { return c.points[i].Raw >= raw })
	lo, hi := c.points[idx-1], c.points[idx]
	if hi.Raw == lo.Raw {
		return lo.Calibrated
	}
	t := (raw - lo.Raw) / (hi.Raw - lo.Raw)
	return lo.Calibrated + t*(hi.Calibrated-lo.Calibrated)
}
