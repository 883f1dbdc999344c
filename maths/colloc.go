// Package maths 提供配置点离散所需的数值核心：
// Radau 配置点表与 Lagrange 插值导数矩阵。
package maths

import (
	"errors"
	"fmt"
)

// radauTables Radau IIA 配置点表（单位区间，含右端点 1）
// 点的数量 ncp 支持 1 到 5
var radauTables = map[int][]float64{
	1: {1.0},
	2: {0.333333333333333, 1.0},
	3: {0.155051025721682, 0.644948974278318, 1.0},
	4: {0.088587959512704, 0.409466864440735, 0.787659461760847, 1.0},
	5: {0.057104196114518, 0.276843013638124, 0.583590432368917, 0.860240135656219, 1.0},
}

// RadauPoints 返回单位区间上的 ncp 个 Radau 配置点（不含左端点 0）
func RadauPoints(ncp int) ([]float64, error) {
	tau, ok := radauTables[ncp]
	if ok {
		out := make([]float64, ncp)
		copy(out, tau)
		return out, nil
	}
	return nil, fmt.Errorf("radau points: unsupported ncp=%d (want 1..5)", ncp)
}

// LagrangeDerivMatrix 计算 Lagrange 基函数导数矩阵
// nodes 为单位元上全部插值节点（含锚点 0），返回 adot，
// 其中 adot[k][j] = dL_k/dτ 在 nodes[j] 处的取值
func LagrangeDerivMatrix(nodes []float64) ([][]float64, error) {
	n := len(nodes)
	if n < 2 {
		return nil, errors.New("lagrange deriv: need at least two nodes")
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if nodes[i] == nodes[j] {
				return nil, errors.New("lagrange deriv: duplicate nodes")
			}
		}
	}
	adot := make([][]float64, n)
	for k := 0; k < n; k++ {
		adot[k] = make([]float64, n)
		for j := 0; j < n; j++ {
			// L_k'(x_j) = Σ_{m≠k} 1/(x_k-x_m) · Π_{i≠k,m} (x_j-x_i)/(x_k-x_i)
			sum := 0.0
			for m := 0; m < n; m++ {
				if m == k {
					continue
				}
				term := 1.0 / (nodes[k] - nodes[m])
				for i := 0; i < n; i++ {
					if i == k || i == m {
						continue
					}
					term *= (nodes[j] - nodes[i]) / (nodes[k] - nodes[i])
				}
				sum += term
			}
			adot[k][j] = sum
		}
	}
	return adot, nil
}
