package types

import (
	"math"
	"strconv"
	"strings"
)

// Tuple 非时间索引元组（例如组分名），长度可以大于一
type Tuple []string

// T 构造索引元组
func T(parts ...string) Tuple { return Tuple(parts) }

// Key 元组的规范化键
func (k Tuple) Key() string { return strings.Join(k, ",") }

// Equal 元组比较
func (k Tuple) Equal(o Tuple) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// VK 变量实例的配置键：变量名 + 非时间索引键
// 用于初值、参数值等字典的查表键
type VK struct {
	Name  string
	Index string
}

// RoundTime 时间点舍入到六位小数，保证浮点时间键一致
func RoundTime(t float64) float64 {
	return math.Round(t*1e6) / 1e6
}

// PointKey 变量实例的规范化键：舍入时间 + 索引键
func PointKey(t float64, k Tuple) string {
	return strconv.FormatFloat(RoundTime(t), 'f', 6, 64) + "|" + k.Key()
}

// BareKey 不含时间的实例键（用于 weird 变量）
func BareKey(k Tuple) string { return "|" + k.Key() }
