// Package expr 提供约束方程使用的表达式树：
// 带标签的节点变体、数值求值、前向微分以及按对象标识替换子表达式。
package expr

import (
	"fmt"
	"math"
	"strings"
)

// Node 表达式树节点
type Node interface {
	node()
}

// Const 常量叶子
type Const struct {
	Value float64
}

// Leaf 标量单元叶子：变量或参数的一个实例
// 模型中的变量数据直接持有 *Leaf，约束表达式按指针引用同一单元，
// 因此按对象标识定位叶子即可完成替换（见 Replace）
type Leaf struct {
	Name  string  // 调试名，例如 Z[0.155051,A]
	Value float64 // 当前值
	Fixed bool    // 固定标记，固定单元不参与求解
	Stale bool    // 过期标记，从未被赋值或求解
	Lower float64 // 下界
	Upper float64 // 上界
}

// NewLeaf 创建无界叶子
func NewLeaf(name string) *Leaf {
	return &Leaf{
		Name:  name,
		Stale: true,
		Lower: math.Inf(-1),
		Upper: math.Inf(1),
	}
}

// Set 赋值并清除过期标记
func (l *Leaf) Set(v float64) {
	l.Value = v
	l.Stale = false
}

// Fix 固定当前值
func (l *Leaf) Fix() { l.Fixed = true }

// Unfix 解除固定
func (l *Leaf) Unfix() { l.Fixed = false }

// SetBounds 设置上下界
func (l *Leaf) SetBounds(lo, hi float64) {
	l.Lower, l.Upper = lo, hi
}

// 二元与一元运算节点
type (
	// Add 加法
	Add struct{ X, Y Node }
	// Sub 减法
	Sub struct{ X, Y Node }
	// Mul 乘法
	Mul struct{ X, Y Node }
	// Div 除法
	Div struct{ X, Y Node }
	// Neg 取负
	Neg struct{ X Node }
	// Pow 常数幂
	Pow struct {
		X Node
		N float64
	}
	// Exp 指数函数
	Exp struct{ X Node }
	// Log 自然对数
	Log struct{ X Node }
)

func (*Const) node() {}
func (*Leaf) node()  {}
func (*Add) node()   {}
func (*Sub) node()   {}
func (*Mul) node()   {}
func (*Div) node()   {}
func (*Neg) node()   {}
func (*Pow) node()   {}
func (*Exp) node()   {}
func (*Log) node()   {}

// 便捷构造函数
func Num(v float64) *Const         { return &Const{Value: v} }
func Plus(x, y Node) Node          { return &Add{X: x, Y: y} }
func Minus(x, y Node) Node         { return &Sub{X: x, Y: y} }
func Times(x, y Node) Node         { return &Mul{X: x, Y: y} }
func Over(x, y Node) Node          { return &Div{X: x, Y: y} }
func Negate(x Node) Node           { return &Neg{X: x} }
func Power(x Node, n float64) Node { return &Pow{X: x, N: n} }

// Sum 多项求和，空项返回常量零
func Sum(terms ...Node) Node {
	if len(terms) == 0 {
		return Num(0)
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = &Add{X: acc, Y: t}
	}
	return acc
}

// Eval 递归求值
func Eval(n Node) float64 {
	switch e := n.(type) {
	case *Const:
		return e.Value
	case *Leaf:
		return e.Value
	case *Add:
		return Eval(e.X) + Eval(e.Y)
	case *Sub:
		return Eval(e.X) - Eval(e.Y)
	case *Mul:
		return Eval(e.X) * Eval(e.Y)
	case *Div:
		return Eval(e.X) / Eval(e.Y)
	case *Neg:
		return -Eval(e.X)
	case *Pow:
		return math.Pow(Eval(e.X), e.N)
	case *Exp:
		return math.Exp(Eval(e.X))
	case *Log:
		return math.Log(Eval(e.X))
	}
	panic(fmt.Sprintf("expr: unknown node %T", n))
}

// EvalDiff 前向模式求值：返回表达式值及对 seed 叶子的偏导
func EvalDiff(n Node, seed *Leaf) (v, d float64) {
	switch e := n.(type) {
	case *Const:
		return e.Value, 0
	case *Leaf:
		if e == seed {
			return e.Value, 1
		}
		return e.Value, 0
	case *Add:
		xv, xd := EvalDiff(e.X, seed)
		yv, yd := EvalDiff(e.Y, seed)
		return xv + yv, xd + yd
	case *Sub:
		xv, xd := EvalDiff(e.X, seed)
		yv, yd := EvalDiff(e.Y, seed)
		return xv - yv, xd - yd
	case *Mul:
		xv, xd := EvalDiff(e.X, seed)
		yv, yd := EvalDiff(e.Y, seed)
		return xv * yv, xd*yv + xv*yd
	case *Div:
		xv, xd := EvalDiff(e.X, seed)
		yv, yd := EvalDiff(e.Y, seed)
		return xv / yv, (xd*yv - xv*yd) / (yv * yv)
	case *Neg:
		xv, xd := EvalDiff(e.X, seed)
		return -xv, -xd
	case *Pow:
		xv, xd := EvalDiff(e.X, seed)
		return math.Pow(xv, e.N), e.N * math.Pow(xv, e.N-1) * xd
	case *Exp:
		xv, xd := EvalDiff(e.X, seed)
		ev := math.Exp(xv)
		return ev, ev * xd
	case *Log:
		xv, xd := EvalDiff(e.X, seed)
		return math.Log(xv), xd / xv
	}
	panic(fmt.Sprintf("expr: unknown node %T", n))
}

// Leaves 深度优先遍历全部叶子
func Leaves(n Node, f func(*Leaf)) {
	switch e := n.(type) {
	case *Const:
	case *Leaf:
		f(e)
	case *Add:
		Leaves(e.X, f)
		Leaves(e.Y, f)
	case *Sub:
		Leaves(e.X, f)
		Leaves(e.Y, f)
	case *Mul:
		Leaves(e.X, f)
		Leaves(e.Y, f)
	case *Div:
		Leaves(e.X, f)
		Leaves(e.Y, f)
	case *Neg:
		Leaves(e.X, f)
	case *Pow:
		Leaves(e.X, f)
	case *Exp:
		Leaves(e.X, f)
	case *Log:
		Leaves(e.X, f)
	}
}

// Replace 按对象标识替换子表达式
// 后序深度优先重建树：命中 old（指针相等）的位置换成 repl，其余结构保持原样
func Replace(root, old, repl Node) Node {
	if root == old {
		return repl
	}
	switch e := root.(type) {
	case *Const, *Leaf:
		return root
	case *Add:
		return &Add{X: Replace(e.X, old, repl), Y: Replace(e.Y, old, repl)}
	case *Sub:
		return &Sub{X: Replace(e.X, old, repl), Y: Replace(e.Y, old, repl)}
	case *Mul:
		return &Mul{X: Replace(e.X, old, repl), Y: Replace(e.Y, old, repl)}
	case *Div:
		return &Div{X: Replace(e.X, old, repl), Y: Replace(e.Y, old, repl)}
	case *Neg:
		return &Neg{X: Replace(e.X, old, repl)}
	case *Pow:
		return &Pow{X: Replace(e.X, old, repl), N: e.N}
	case *Exp:
		return &Exp{X: Replace(e.X, old, repl)}
	case *Log:
		return &Log{X: Replace(e.X, old, repl)}
	}
	panic(fmt.Sprintf("expr: unknown node %T", root))
}

// Contains 判断树中是否含有指定节点（按对象标识）
func Contains(root, target Node) bool {
	if root == target {
		return true
	}
	switch e := root.(type) {
	case *Add:
		return Contains(e.X, target) || Contains(e.Y, target)
	case *Sub:
		return Contains(e.X, target) || Contains(e.Y, target)
	case *Mul:
		return Contains(e.X, target) || Contains(e.Y, target)
	case *Div:
		return Contains(e.X, target) || Contains(e.Y, target)
	case *Neg:
		return Contains(e.X, target)
	case *Pow:
		return Contains(e.X, target)
	case *Exp:
		return Contains(e.X, target)
	case *Log:
		return Contains(e.X, target)
	}
	return false
}

// String 表达式文本形式，用于调试与结构文件
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch e := n.(type) {
	case *Const:
		fmt.Fprintf(b, "%g", e.Value)
	case *Leaf:
		b.WriteString(e.Name)
	case *Add:
		b.WriteByte('(')
		write(b, e.X)
		b.WriteString(" + ")
		write(b, e.Y)
		b.WriteByte(')')
	case *Sub:
		b.WriteByte('(')
		write(b, e.X)
		b.WriteString(" - ")
		write(b, e.Y)
		b.WriteByte(')')
	case *Mul:
		b.WriteByte('(')
		write(b, e.X)
		b.WriteString("*")
		write(b, e.Y)
		b.WriteByte(')')
	case *Div:
		b.WriteByte('(')
		write(b, e.X)
		b.WriteString("/")
		write(b, e.Y)
		b.WriteByte(')')
	case *Neg:
		b.WriteString("-(")
		write(b, e.X)
		b.WriteByte(')')
	case *Pow:
		write(b, e.X)
		fmt.Fprintf(b, "^%g", e.N)
	case *Exp:
		b.WriteString("exp(")
		write(b, e.X)
		b.WriteByte(')')
	case *Log:
		b.WriteString("log(")
		write(b, e.X)
		b.WriteByte(')')
	}
}
