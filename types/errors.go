package types

import "fmt"

// ConfigError 配置错误：缺少时间域、字典格式错误、索引类型非法等
// 在构造阶段同步抛出，保证不会在畸形模型上启动推进
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// Configf 构造配置错误
func Configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ConsistencyError 一致性错误：变量数与方程数不一致
// 在第一次求解之前抛出
type ConsistencyError struct {
	NVar int // 变量数
	NEqn int // 方程数
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent problem: n=%d, m=%d", e.NVar, e.NEqn)
}

// ConvergenceError 收敛错误：某个有限元三次求解全部失败，推进中止
type ConvergenceError struct {
	Element  int // 失败的有限元编号
	Attempts int // 已尝试次数
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("element %d unsuccessful after %d attempts", e.Element, e.Attempts)
}
