package model

import (
	"kinetic/types"
)

// ContinuousSet 连续时间域
// 离散后持有有限元边界、配置点与全部时间点
type ContinuousSet struct {
	Name   string
	Lo, Hi float64

	disc   bool
	scheme string
	ncp    int
	fes    []float64 // 有限元边界，长度 nfe+1
	taus   []float64 // 单位元配置点（不含 0）
	points []float64 // 全部时间点（升序）
}

// Discretized 是否已离散
func (s *ContinuousSet) Discretized() bool { return s.disc }

// Scheme 离散格式
func (s *ContinuousSet) Scheme() string { return s.scheme }

// NCP 每个有限元的配置点数
func (s *ContinuousSet) NCP() int { return s.ncp }

// NFE 有限元数量
func (s *ContinuousSet) NFE() int {
	if !s.disc {
		return 0
	}
	return len(s.fes) - 1
}

// Points 全部时间点
func (s *ContinuousSet) Points() []float64 { return s.points }

// FiniteElements 有限元边界
func (s *ContinuousSet) FiniteElements() []float64 { return s.fes }

// SetBounds 重标定时间域边界并丢弃离散信息，变量与约束需随后重建
func (s *ContinuousSet) SetBounds(lo, hi float64) {
	s.Lo, s.Hi = lo, hi
	s.disc = false
	s.fes = nil
	s.taus = nil
	s.points = nil
	s.ncp = 0
	s.scheme = ""
}

// TimeAt 第 fe 个有限元第 j 个配置点对应的时间（j=0 为锚点）
// 返回全精度时间：数值计算不丢精度，查表键在 PointKey 处统一舍入
func (s *ContinuousSet) TimeAt(fe, j int) float64 {
	if j == 0 {
		return s.fes[fe]
	}
	h := s.fes[fe+1] - s.fes[fe]
	return s.fes[fe] + s.taus[j-1]*h
}

// ElementOf 由时间定位 (有限元, 配置点)
// 元边界处归属左侧元的末配置点；域起点返回 (0,0)
func (s *ContinuousSet) ElementOf(t float64) (fe, cp int, err error) {
	if !s.disc {
		return 0, 0, types.Configf("continuous set %s is not discretized", s.Name)
	}
	rt := types.RoundTime(t)
	if rt == types.RoundTime(s.fes[0]) {
		return 0, 0, nil
	}
	nfe := len(s.fes) - 1
	for i := 0; i < nfe; i++ {
		lo := types.RoundTime(s.fes[i])
		hi := types.RoundTime(s.fes[i+1])
		if rt <= lo || rt > hi {
			continue
		}
		for j := 1; j <= s.ncp; j++ {
			if types.RoundTime(s.TimeAt(i, j)) == rt {
				return i, j, nil
			}
		}
		return 0, 0, types.Configf("time %g is not a collocation point of %s", t, s.Name)
	}
	return 0, 0, types.Configf("time %g outside of %s [%g,%g]", t, s.Name, s.Lo, s.Hi)
}
