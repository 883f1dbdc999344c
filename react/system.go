// Package react 提供反应动力学体系的声明式构建器：
// 组分、动力学参数与速率表达式声明完毕后生成 ODE 模型，
// 目标模型与参考模型共用同一份声明。
package react

import (
	"kinetic/expr"
	"kinetic/model"
	"kinetic/types"
)

// paramVarName 动力学参数变量名
const paramVarName = "P"

// Refs 速率规则可引用的模型量
type Refs struct {
	m     *model.Model
	t     float64
	names types.VarNames
}

// Z 组分浓度
func (r Refs) Z(comp string) expr.Node {
	return r.m.Var(r.names.Concentration).At(r.t, comp)
}

// P 动力学参数
func (r Refs) P(name string) expr.Node {
	return r.m.Var(paramVarName).AtBare(types.T(name))
}

// X 补充状态（如体积）
func (r Refs) X(name string) expr.Node {
	return r.m.Var(r.names.State).At(r.t, name)
}

// Rate 组分的生成速率表达式
type Rate func(r Refs) expr.Node

// System 反应体系声明
type System struct {
	Name   string
	Lo, Hi float64

	names  types.VarNames
	comps  []string
	z0     map[string]float64
	params []string
	p0     map[string]float64
	rates  map[string]Rate

	volume bool
	v0     float64
}

// NewSystem 在时间域 [lo,hi] 上声明一个体系
func NewSystem(name string, lo, hi float64) *System {
	return &System{
		Name:  name,
		Lo:    lo,
		Hi:    hi,
		names: types.DefaultVarNames(),
		z0:    make(map[string]float64),
		p0:    make(map[string]float64),
		rates: make(map[string]Rate),
	}
}

// SetNames 覆盖默认变量命名
func (s *System) SetNames(n types.VarNames) *System {
	s.names = n
	return s
}

// Names 当前的变量命名约定
func (s *System) Names() types.VarNames { return s.names }

// AddComponent 登记组分及其初始浓度
func (s *System) AddComponent(name string, init float64) *System {
	s.comps = append(s.comps, name)
	s.z0[name] = init
	return s
}

// AddParameter 登记动力学参数及其值
func (s *System) AddParameter(name string, value float64) *System {
	s.params = append(s.params, name)
	s.p0[name] = value
	return s
}

// SetRate 设置组分的速率规则
func (s *System) SetRate(comp string, r Rate) *System {
	s.rates[comp] = r
	return s
}

// WithVolume 加入体积状态（分批投料时需要），dV/dt == 0
func (s *System) WithVolume(init float64) *System {
	s.volume = true
	s.v0 = init
	return s
}

// Build 生成未离散的模型：浓度变量、导数、参数、ODE 与初值约束
func (s *System) Build() (*model.Model, error) {
	if len(s.comps) == 0 {
		return nil, types.Configf("system %s has no components", s.Name)
	}
	for _, c := range s.comps {
		if s.rates[c] == nil {
			return nil, types.Configf("component %s has no rate expression", c)
		}
	}

	m := model.New(s.Name)
	if _, err := m.AddContinuousSet("t", s.Lo, s.Hi); err != nil {
		return nil, err
	}

	comps := make([]types.Tuple, len(s.comps))
	for i, c := range s.comps {
		comps[i] = types.T(c)
	}
	zv, err := m.AddVar(s.names.Concentration, true, comps)
	if err != nil {
		return nil, err
	}
	zv.SetDefaultBounds(0, 1e12)
	if _, err := m.AddDerivative(s.names.Concentration); err != nil {
		return nil, err
	}

	if len(s.params) > 0 {
		ps := make([]types.Tuple, len(s.params))
		for i, p := range s.params {
			ps[i] = types.T(p)
		}
		pv, err := m.AddVar(paramVarName, false, ps)
		if err != nil {
			return nil, err
		}
		pv.SetDefaultBounds(0, 1e12)
	}

	if s.volume {
		if _, err := m.AddVar(s.names.State, true, []types.Tuple{types.T(s.names.Volume)}); err != nil {
			return nil, err
		}
		if _, err := m.AddDerivative(s.names.State); err != nil {
			return nil, err
		}
	}

	// ODE 在含锚点的全部时间点成立：锚点处的方程确定导数初值，
	// 状态初值由 init_conditions 给出
	sys := s
	_, err = m.AddConstraint("odes", true, comps,
		func(m *model.Model, t float64, k types.Tuple) expr.Node {
			r := Refs{m: m, t: t, names: sys.names}
			dv := m.Var("d"+sys.names.Concentration+"dt").AtTuple(t, k)
			return expr.Minus(dv, sys.rates[k[0]](r))
		})
	if err != nil {
		return nil, err
	}

	if s.volume {
		_, err = m.AddConstraint("vol_odes", true, []types.Tuple{types.T(s.names.Volume)},
			func(m *model.Model, t float64, k types.Tuple) expr.Node {
				return m.Var("d"+sys.names.State+"dt").AtTuple(t, k)
			})
		if err != nil {
			return nil, err
		}
	}

	// 初值约束覆盖全部微分状态：单元组键是组分，双元组键是补充状态
	icRems := append([]types.Tuple(nil), comps...)
	if s.volume {
		icRems = append(icRems, types.T(s.names.State, s.names.Volume))
	}
	ic, err := m.AddConstraint("init_conditions", false, icRems,
		func(m *model.Model, _ float64, k types.Tuple) expr.Node {
			t0 := types.RoundTime(m.Time.Lo)
			if len(k) == 2 {
				x := m.Var(k[0]).At(t0, k[1])
				return expr.Minus(x, expr.Num(sys.v0))
			}
			z := m.Var(sys.names.Concentration).AtTuple(t0, k)
			return expr.Minus(z, expr.Num(sys.z0[k[0]]))
		})
	if err != nil {
		return nil, err
	}
	ic.Role = model.RoleInitial

	return m, nil
}

// BuildTarget 生成完全离散的目标模型并写入初值猜测
func (s *System) BuildTarget(nfe, ncp int) (*model.Model, error) {
	m, err := s.Build()
	if err != nil {
		return nil, err
	}
	if err := m.Discretize(nfe, ncp, types.SchemeLagrangeRadau); err != nil {
		return nil, err
	}
	zv := m.Var(s.names.Concentration)
	for _, c := range s.comps {
		zv.At(types.RoundTime(s.Lo), c).Set(s.z0[c])
	}
	if s.volume {
		xv := m.Var(s.names.State)
		xv.Each(func(_ string, l *expr.Leaf) { l.Set(s.v0) })
	}
	return m, nil
}

// InitialConditions 初值字典，直接可喂给初始化器
func (s *System) InitialConditions() map[types.VK]float64 {
	out := make(map[types.VK]float64, len(s.comps)+1)
	for _, c := range s.comps {
		out[types.VK{Name: s.names.Concentration, Index: c}] = s.z0[c]
	}
	if s.volume {
		out[types.VK{Name: s.names.State, Index: s.names.Volume}] = s.v0
	}
	return out
}

// ParamValues 参数值字典
func (s *System) ParamValues() map[types.VK]float64 {
	out := make(map[types.VK]float64, len(s.params))
	for _, p := range s.params {
		out[types.VK{Name: paramVarName, Index: p}] = s.p0[p]
	}
	return out
}
