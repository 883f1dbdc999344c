// Package solve 定义非线性求解器边界与默认实现：
// 求解器对外只是黑盒——输入模型与一份配置，输出终止状态并把解写回变量单元。
package solve

import (
	"kinetic/model"
	"kinetic/types"
)

// Status 求解终止状态
type Status int

const (
	Optimal    Status = iota // 收敛
	NotOptimal               // 未收敛（迭代上限或发散震荡）
	Singular                 // 雅可比奇异
)

// String 状态文本
func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case NotOptimal:
		return "not optimal"
	case Singular:
		return "singular"
	}
	return "unknown"
}

// Options 单次求解配置
// 按值传入每次调用，重试策略表现为一组有序的配置覆盖，
// 不存在共享可变的选项字典
type Options struct {
	MaxIter    int     // 最大迭代次数
	Tol        float64 // 残差收敛容差
	BoundPush  float64 // 初始点推离边界距离（相对量）
	BoundRelax float64 // 边界放松系数（相对量）
	Resto      bool    // 恢复阶段提示：以保守阻尼起步
	Verbose    bool    // 输出迭代轨迹

	// 阻尼Newton-Raphson参数
	Damping    float64 // 初始阻尼因子
	MinDamping float64 // 最小阻尼因子
	MaxDamping float64 // 最大阻尼因子
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		MaxIter:    types.MaxIterations,
		Tol:        types.Tolerance,
		BoundPush:  types.DefaultBoundPush,
		BoundRelax: types.DefaultBoundRelax,
		Damping:    1.0,
		MinDamping: 1e-3,
		MaxDamping: 1.0,
	}
}

// Result 求解结果
type Result struct {
	Status     Status
	Iterations int
	Residual   float64 // 终止时的最大残差
}

// Solver 非线性求解器边界（黑盒）
// 求解后变量单元持有解值；结构性失败（维度不符等）以 error 返回
type Solver interface {
	Solve(m *model.Model, opt Options) (Result, error)
}
