// Package model 实现微分代数(DAE)模型的数据结构：
// 变量、参数与约束按 (时间, 其余索引) 键存储，持有唯一的连续时间域，
// 支持深拷贝、时间域重标定与配置点离散。
package model

import (
	"fmt"
	"math"

	"kinetic/expr"
	"kinetic/types"
)

// Role 约束角色标签
// 离散方程通过显式角色识别，不依赖约束名后缀
type Role int

const (
	RoleGeneric Role = iota // 普通约束
	RoleInitial             // 初值约束
	RoleDiscEq              // 配置点离散方程
	RoleAux                 // 辅助约束（替换记录等）
)

// Rule 约束生成规则：对每个 (时间, 索引) 返回方程表达式（含义为 expr == 0）
// 返回 nil 表示该索引处跳过
type Rule func(m *Model, t float64, k types.Tuple) expr.Node

// Model 微分代数模型
type Model struct {
	Name string
	Time *ContinuousSet // 唯一连续时间域，可为 nil

	vars     map[string]*Var
	varOrder []string

	cons     map[string]*Constraint
	conOrder []string

	derivs     map[string]string // 导数变量名 -> 状态变量名
	derivOrder []string
}

// New 创建空模型
func New(name string) *Model {
	return &Model{
		Name:   name,
		vars:   make(map[string]*Var),
		cons:   make(map[string]*Constraint),
		derivs: make(map[string]string),
	}
}

// AddContinuousSet 声明连续时间域，模型只允许一个
func (m *Model) AddContinuousSet(name string, lo, hi float64) (*ContinuousSet, error) {
	if m.Time != nil {
		return nil, types.Configf("model %s already has continuous set %s", m.Name, m.Time.Name)
	}
	if hi <= lo {
		return nil, types.Configf("continuous set %s: empty interval [%g,%g]", name, lo, hi)
	}
	m.Time = &ContinuousSet{Name: name, Lo: lo, Hi: hi}
	return m.Time, nil
}

// Var 模型变量：索引元组到标量单元的映射
// IsParam 为真时单元默认固定（参数不参与求解，除非显式解除固定）
type Var struct {
	Name    string
	WrtTime bool          // 是否按时间索引
	Rem     []types.Tuple // 非时间索引集合，nil 表示没有
	IsParam bool
	Mutable bool // 可变参数（如元长度 h_i）

	init   float64
	lb, ub float64

	data  map[string]*expr.Leaf
	order []string
}

// AddVar 添加变量，已离散的模型立即物化全部单元
func (m *Model) AddVar(name string, wrtTime bool, rem []types.Tuple) (*Var, error) {
	v, err := m.addVar(name, wrtTime, rem)
	if err != nil {
		return nil, err
	}
	if m.discretized() {
		v.materialize(m.Time.Points())
	}
	return v, nil
}

// AddParam 添加参数（默认固定），已离散的模型立即物化
func (m *Model) AddParam(name string, wrtTime bool, rem []types.Tuple, init float64) (*Var, error) {
	v, err := m.addVar(name, wrtTime, rem)
	if err != nil {
		return nil, err
	}
	v.IsParam = true
	v.init = init
	if m.discretized() {
		v.materialize(m.Time.Points())
	}
	return v, nil
}

func (m *Model) addVar(name string, wrtTime bool, rem []types.Tuple) (*Var, error) {
	if _, ok := m.vars[name]; ok {
		return nil, types.Configf("variable %s already declared", name)
	}
	if wrtTime && m.Time == nil {
		return nil, types.Configf("variable %s indexed by time but model has no continuous set", name)
	}
	v := &Var{
		Name:    name,
		WrtTime: wrtTime,
		Rem:     rem,
		lb:      math.Inf(-1),
		ub:      math.Inf(1),
		data:    make(map[string]*expr.Leaf),
	}
	m.vars[name] = v
	m.varOrder = append(m.varOrder, name)
	return v, nil
}

// AddDerivative 为状态变量声明导数变量 d<name>dt，形状与状态一致
func (m *Model) AddDerivative(stateName string) (*Var, error) {
	st := m.Var(stateName)
	if st == nil {
		return nil, types.Configf("derivative of unknown variable %s", stateName)
	}
	if !st.WrtTime {
		return nil, types.Configf("derivative of %s: not indexed by time", stateName)
	}
	dname := "d" + stateName + "dt"
	dv, err := m.AddVar(dname, true, st.Rem)
	if err != nil {
		return nil, err
	}
	m.derivs[dname] = stateName
	m.derivOrder = append(m.derivOrder, dname)
	return dv, nil
}

// SetInit 设置默认初值（物化时写入每个单元）
func (v *Var) SetInit(x float64) *Var {
	v.init = x
	return v
}

// SetDefaultBounds 设置默认上下界，并应用到已物化单元
func (v *Var) SetDefaultBounds(lo, hi float64) *Var {
	v.lb, v.ub = lo, hi
	for _, key := range v.order {
		v.data[key].SetBounds(lo, hi)
	}
	return v
}

// At 按时间与索引查找单元，不存在返回 nil
func (v *Var) At(t float64, k ...string) *expr.Leaf {
	return v.data[types.PointKey(t, types.Tuple(k))]
}

// AtTuple 同 At，但索引以元组给出
func (v *Var) AtTuple(t float64, k types.Tuple) *expr.Leaf {
	return v.data[types.PointKey(t, k)]
}

// AtBare 查找不含时间索引的单元（weird 变量与标量）
func (v *Var) AtBare(k types.Tuple) *expr.Leaf {
	return v.data[types.BareKey(k)]
}

// AtKey 按规范化键直接查找单元
func (v *Var) AtKey(key string) *expr.Leaf { return v.data[key] }

// Each 按声明顺序遍历全部单元
func (v *Var) Each(f func(key string, l *expr.Leaf)) {
	for _, key := range v.order {
		f(key, v.data[key])
	}
}

// Len 单元数量
func (v *Var) Len() int { return len(v.order) }

// materialize 重建全部单元（丢弃旧值）
func (v *Var) materialize(points []float64) {
	v.data = make(map[string]*expr.Leaf)
	v.order = v.order[:0]
	rems := v.Rem
	if len(rems) == 0 {
		rems = []types.Tuple{nil}
	}
	add := func(key, name string) {
		l := expr.NewLeaf(name)
		l.Value = v.init
		l.SetBounds(v.lb, v.ub)
		if v.IsParam {
			l.Fixed = true
			l.Stale = false
		}
		v.data[key] = l
		v.order = append(v.order, key)
	}
	if !v.WrtTime {
		for _, k := range rems {
			add(types.BareKey(k), fmt.Sprintf("%s[%s]", v.Name, k.Key()))
		}
		return
	}
	for _, t := range points {
		for _, k := range rems {
			add(types.PointKey(t, k), fmt.Sprintf("%s[%g,%s]", v.Name, t, k.Key()))
		}
	}
}

// Var 按名查找变量，不存在返回 nil
func (m *Model) Var(name string) *Var { return m.vars[name] }

// Vars 按声明顺序遍历变量
func (m *Model) Vars(f func(*Var)) {
	for _, n := range m.varOrder {
		f(m.vars[n])
	}
}

// Derivatives 按声明顺序遍历 (导数变量名, 状态变量名)
func (m *Model) Derivatives(f func(deriv, state string)) {
	for _, d := range m.derivOrder {
		f(d, m.derivs[d])
	}
}

// StateOf 导数变量对应的状态变量名，非导数变量返回空串
func (m *Model) StateOf(deriv string) string { return m.derivs[deriv] }

func (m *Model) discretized() bool {
	return m.Time != nil && m.Time.Discretized()
}
