package types

// 默认求解参数常量定义
var (
	Tolerance           = 1e-10 // 牛顿迭代收敛容差
	MaxIterations       = 60    // 单次求解最大迭代次数
	MaxOscillationCount = 25    // 最大震荡次数
	DefaultBoundPush    = 1e-2  // 初始点推离边界距离
	DefaultBoundRelax   = 0.0   // 默认边界放松系数
	TimeEpsilon         = 1e-6  // 时间点舍入精度（六位小数）
)

// 离散格式常量定义
const (
	SchemeLagrangeRadau = "LAGRANGE-RADAU" // Radau 配置点格式
)

// VarNames 模型变量命名约定
// 约定：Z 为浓度、X 为补充状态、V 为体积索引
type VarNames struct {
	Concentration string // 浓度变量名
	State         string // 状态变量名
	Volume        string // 体积状态的索引名
}

// DefaultVarNames 默认命名约定
func DefaultVarNames() VarNames {
	return VarNames{Concentration: "Z", State: "X", Volume: "V"}
}
