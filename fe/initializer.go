// Package fe 实现按有限元逐步推进的初始化器：
// 把参考模型的时间域归一化到 [0,1] 并以单个有限元离散，
// 逐个目标有限元缩放求解，再把解补写回目标模型，
// 末配置点的状态循环为下一元的初值。
package fe

import (
	"math"
	"sort"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/solve"
	"kinetic/types"
)

// hiName 元长度参数名：归一化模型上每个配置点一个值
const hiName = "h_i"

// Config 初始化器配置（进程内调用契约，无 CLI 表面）
type Config struct {
	InitConName string                   // 需要移除的初值约束名，空串表示没有
	ParamNames  []string                 // 需要固定的参数变量名
	ParamValues map[types.VK]float64     // 参数值字典 {变量名, 索引键} -> 值
	Inputs      []string                 // 仅按时间索引的输入变量（固定变量）
	InputsSub   map[string][]types.Tuple // 多重索引输入变量及其索引
	Names       types.VarNames           // 变量命名约定，零值取默认
}

// Initializer 推进式初始化器
// 持有目标模型（调用方所有，仅经 patch 写入）与参考模型（私有工作副本）
type Initializer struct {
	tgt *model.Model // 目标模型：整个时间域的完全离散
	ref *model.Model // 参考模型：[0,1] 上单元离散，循环复用

	solver solve.Solver
	tiers  []solve.Options // 三级重试配置覆盖

	names  types.VarNames
	feList []float64 // 元长度表，不可变
	nfe    int
	ncp    int

	dvsNames     []string                 // 微分状态变量名
	dvarNames    map[string]string        // 状态名 -> 导数变量名
	remaining    map[string][]types.Tuple // 微分变量的其余索引集合，nil 表示仅时间
	remainingAlg map[string][]types.Tuple // 代数变量的其余索引集合
	weirdVars    []string                 // 不按时间索引的变量

	inputs    []string
	inputsSub map[string][]types.Tuple

	jump   bool
	dosing []dosingEntry
	conNum int // 替换命名计数，单调递增防止重名
}

type dosingEntry struct {
	VarName string
	Point   DosingPoint
}

// New 构造初始化器
// 归一化、增广、分类、参数与初值固定、输入固定与一致性检查全部在此完成；
// 配置或一致性错误同步抛出，保证不会在畸形模型上开始推进。
func New(tgt, src *model.Model, cfg Config, solver solve.Solver) (*Initializer, error) {
	if solver == nil {
		solver = solve.NewNewton()
	}
	names := cfg.Names
	if names == (types.VarNames{}) {
		names = types.DefaultVarNames()
	}
	if tgt == nil || tgt.Time == nil || !tgt.Time.Discretized() {
		return nil, types.Configf("target model must be discretized over a continuous time set")
	}
	if src == nil || src.Time == nil {
		return nil, types.Configf("no continuous index set")
	}

	iz := &Initializer{
		tgt:          tgt,
		solver:       solver,
		names:        names,
		ncp:          tgt.Time.NCP(),
		dvarNames:    make(map[string]string),
		remaining:    make(map[string][]types.Tuple),
		remainingAlg: make(map[string][]types.Tuple),
		inputs:       cfg.Inputs,
		inputsSub:    cfg.InputsSub,
	}

	// 元长度表：由目标模型的元边界导出，构造后不再改变
	fes := tgt.Time.FiniteElements()
	iz.feList = make([]float64, len(fes)-1)
	for i := 0; i+1 < len(fes); i++ {
		iz.feList[i] = fes[i+1] - fes[i]
	}
	iz.nfe = len(iz.feList)

	// 归一化：克隆参考模型，时间域改为 [0,1]，单元重新离散
	iz.ref = src.Clone()
	iz.ref.Time.SetBounds(0, 1)
	if err := iz.ref.Discretize(1, iz.ncp, tgt.Time.Scheme()); err != nil {
		return nil, err
	}

	iz.classify()
	if err := iz.augment(); err != nil {
		return nil, err
	}

	if cfg.InitConName != "" {
		if iz.ref.Con(cfg.InitConName) == nil {
			return nil, types.Configf("initial constraint %s not found", cfg.InitConName)
		}
		// 初值约束删除，改用 fix 表达初值
		iz.ref.DelConstraint(cfg.InitConName)
	}

	if err := iz.fixParams(cfg); err != nil {
		return nil, err
	}
	iz.fixInitialStates()
	if err := iz.fixInputs(cfg); err != nil {
		return nil, err
	}

	// 一致性闸门：任何求解之前变量数必须等于方程数
	n, m, err := model.ReconcileCounts(iz.ref)
	if err != nil {
		return nil, err
	}
	if n != m {
		return nil, &types.ConsistencyError{NVar: n, NEqn: m}
	}

	iz.tiers = retryTiers()
	return iz, nil
}

// retryTiers 三级重试策略：有序的配置覆盖列表
func retryTiers() []solve.Options {
	t1 := solve.DefaultOptions()
	t1.BoundPush = 1e-2

	t2 := t1
	t2.Resto = true

	t3 := t1
	t3.Resto = false
	t3.BoundRelax = 1e-5
	t3.Verbose = true

	return []solve.Options{t1, t2, t3}
}

// classify 变量分类
// 微分变量由 RoleDiscEq 约束的显式标签识别；
// 其余按时间索引的变量为代数变量；完全不含时间索引的记为 weird
func (iz *Initializer) classify() {
	iz.ref.Cons(func(c *model.Constraint) {
		if c.Role == model.RoleDiscEq {
			iz.dvsNames = append(iz.dvsNames, c.Of)
			iz.dvarNames[c.Of] = c.Deriv
		}
	})
	isDiff := make(map[string]bool, len(iz.dvsNames))
	for _, n := range iz.dvsNames {
		isDiff[n] = true
		iz.remaining[n] = iz.ref.Var(n).Rem
	}
	iz.ref.Vars(func(v *model.Var) {
		if isDiff[v.Name] {
			return
		}
		if !v.WrtTime {
			iz.weirdVars = append(iz.weirdVars, v.Name)
			return
		}
		iz.remainingAlg[v.Name] = v.Rem
	})
}

// augment 引入元长度参数 h_i 并改写离散方程
// 每个非锚点 t 处的新方程为 原方程体 + (1-h_i[t])·dv[t] == 0，
// 展开即 Σ adot·v == h_i·dv：同一个单元模型可表示任意宽度的元
func (iz *Initializer) augment() error {
	hi, err := iz.ref.AddParam(hiName, true, nil, 1.0)
	if err != nil {
		return err
	}
	hi.Mutable = true
	type pair struct{ deriv, state, conName string }
	var pairs []pair
	iz.ref.Cons(func(c *model.Constraint) {
		if c.Role == model.RoleDiscEq {
			pairs = append(pairs, pair{c.Deriv, c.Of, c.Name})
		}
	})
	for _, p := range pairs {
		orig := iz.ref.Con(p.conName)
		dv := iz.ref.Var(p.deriv)
		aug, err := iz.ref.AddConstraintList(p.deriv + "_deq_aug")
		if err != nil {
			return err
		}
		aug.Role = model.RoleDiscEq
		aug.Of = p.state
		aug.Deriv = p.deriv
		rems := dv.Rem
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for j := 1; j <= iz.ncp; j++ {
			t := iz.ref.Time.TimeAt(0, j)
			hLeaf := hi.AtTuple(t, nil)
			for _, k := range rems {
				it := orig.ItemAt(t, k)
				if it == nil {
					continue
				}
				e := expr.Plus(it.Expr,
					expr.Times(expr.Minus(expr.Num(1), hLeaf), dv.AtTuple(t, k)))
				aug.SetItemAt(t, k, e)
			}
		}
		iz.ref.DelConstraint(p.conName)
	}
	return nil
}

// fixParams 按配置字典固定参数值，缺键视为配置错误
func (iz *Initializer) fixParams(cfg Config) error {
	if len(cfg.ParamNames) == 0 {
		return nil
	}
	if cfg.ParamValues == nil {
		return types.Configf("param values must be provided in a dictionary")
	}
	for _, pname := range cfg.ParamNames {
		v := iz.ref.Var(pname)
		if v == nil {
			return types.Configf("unknown parameter %s", pname)
		}
		rems := v.Rem
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for _, k := range rems {
			val, ok := cfg.ParamValues[types.VK{Name: pname, Index: k.Key()}]
			if !ok {
				return types.Configf("missing a key of the param values: %s[%s]", pname, k.Key())
			}
			if v.WrtTime {
				for _, t := range iz.ref.Time.Points() {
					l := v.AtTuple(t, k)
					l.Set(val)
					l.Fix()
				}
				continue
			}
			l := v.AtBare(k)
			l.Set(val)
			l.Fix()
		}
	}
	return nil
}

// fixInitialStates 固定全部微分状态在 t=0 的单元
func (iz *Initializer) fixInitialStates() {
	for _, name := range iz.dvsNames {
		v := iz.ref.Var(name)
		rems := iz.remaining[name]
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for _, k := range rems {
			v.AtTuple(0, k).Fix()
		}
	}
}

// fixInputs 固定输入变量（输入必须是按时间索引的固定变量）
func (iz *Initializer) fixInputs(cfg Config) error {
	for _, name := range cfg.Inputs {
		v := iz.ref.Var(name)
		if v == nil || !v.WrtTime {
			return types.Configf("input %s is not indexed by time", name)
		}
		v.Each(func(_ string, l *expr.Leaf) { l.Fix() })
	}
	for name, keys := range cfg.InputsSub {
		v := iz.ref.Var(name)
		if v == nil || !v.WrtTime {
			return types.Configf("input %s is not indexed by time", name)
		}
		for _, k := range keys {
			for _, t := range iz.ref.Time.Points() {
				l := v.AtTuple(t, k)
				if l == nil {
					return types.Configf("%v is not a valid index of %s", k, name)
				}
				l.Fix()
			}
		}
	}
	return nil
}

// LoadInitialConditions 写入微分状态的初值
// 每个时间点都写入同一初值作为求解初猜，t=0 处固定
func (iz *Initializer) LoadInitialConditions(init map[types.VK]float64) error {
	if init == nil {
		return types.Configf("initial conditions must be a dictionary")
	}
	for _, name := range iz.dvsNames {
		v := iz.ref.Var(name)
		rems := iz.remaining[name]
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for _, k := range rems {
			val, ok := init[types.VK{Name: name, Index: k.Key()}]
			if !ok {
				return types.Configf("missing initial condition for %s[%s]", name, k.Key())
			}
			for _, t := range iz.ref.Time.Points() {
				v.AtTuple(t, k).Set(val)
			}
			l0 := v.AtTuple(0, k)
			if !l0.Fixed {
				l0.Fix()
			}
		}
	}
	return nil
}

// ElementLengths 元长度表（只读副本）
func (iz *Initializer) ElementLengths() []float64 {
	return append([]float64(nil), iz.feList...)
}

// NFE 目标有限元数量
func (iz *Initializer) NFE() int { return iz.nfe }

// Reference 参考模型（测试与调试用途）
func (iz *Initializer) Reference() *model.Model { return iz.ref }

// sortedDosing 事件按变量名与登记顺序稳定排列
func sortedDosing(points map[string][]DosingPoint) []dosingEntry {
	names := make([]string, 0, len(points))
	for n := range points {
		names = append(names, n)
	}
	sort.Strings(names)
	var out []dosingEntry
	for _, n := range names {
		for _, p := range points[n] {
			out = append(out, dosingEntry{VarName: n, Point: p})
		}
	}
	return out
}

// isNaN 值检查的简写
func isNaN(x float64) bool { return math.IsNaN(x) }
