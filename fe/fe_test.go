package fe

import (
	"errors"
	"math"
	"testing"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/react"
	"kinetic/solve"
	"kinetic/types"
)

// fakeSolver 记录每次调用的配置并按脚本返回状态
type fakeSolver struct {
	opts   []solve.Options
	script []solve.Status // 逐次返回的状态，耗尽后返回 Optimal
}

func (f *fakeSolver) Solve(_ *model.Model, opt solve.Options) (solve.Result, error) {
	f.opts = append(f.opts, opt)
	st := solve.Optimal
	if n := len(f.opts) - 1; n < len(f.script) {
		st = f.script[n]
	}
	return solve.Result{Status: st}, nil
}

// abcSystem A -> B -> C 连串反应
func abcSystem() *react.System {
	sys := react.NewSystem("abc", 0, 10)
	sys.AddComponent("A", 1.0)
	sys.AddComponent("B", 0.0)
	sys.AddComponent("C", 0.0)
	sys.AddParameter("k1", 2.0)
	sys.AddParameter("k2", 0.2)
	sys.SetRate("A", func(r react.Refs) expr.Node {
		return expr.Negate(expr.Times(r.P("k1"), r.Z("A")))
	})
	sys.SetRate("B", func(r react.Refs) expr.Node {
		return expr.Minus(expr.Times(r.P("k1"), r.Z("A")), expr.Times(r.P("k2"), r.Z("B")))
	})
	sys.SetRate("C", func(r react.Refs) expr.Node {
		return expr.Times(r.P("k2"), r.Z("B"))
	})
	return sys
}

// newABC 构建初始化器（可注入求解器）
func newABC(t *testing.T, solver solve.Solver) (*react.System, *model.Model, *Initializer) {
	t.Helper()
	sys := abcSystem()
	tgt, err := sys.BuildTarget(5, 3)
	if err != nil {
		t.Fatalf("构建目标模型失败: %s", err)
	}
	src, err := sys.Build()
	if err != nil {
		t.Fatalf("构建源模型失败: %s", err)
	}
	iz, err := New(tgt, src, Config{
		InitConName: "init_conditions",
		ParamNames:  []string{"P"},
		ParamValues: sys.ParamValues(),
	}, solver)
	if err != nil {
		t.Fatalf("构建初始化器失败: %s", err)
	}
	if err := iz.LoadInitialConditions(sys.InitialConditions()); err != nil {
		t.Fatalf("载入初值失败: %s", err)
	}
	return sys, tgt, iz
}

func TestElementLengths(t *testing.T) {
	_, _, iz := newABC(t, &fakeSolver{})
	if iz.NFE() != 5 {
		t.Fatalf("元数量不正确: %d", iz.NFE())
	}
	sum := 0.0
	for _, h := range iz.ElementLengths() {
		sum += h
	}
	if math.Abs(sum-10) > 1e-6 {
		t.Errorf("元长度之和不正确: 期望 10, 实际 %v", sum)
	}
}

func TestConsistencyGate(t *testing.T) {
	sys := abcSystem()
	tgt, err := sys.BuildTarget(5, 3)
	if err != nil {
		t.Fatalf("构建目标模型失败: %s", err)
	}
	src, err := sys.Build()
	if err != nil {
		t.Fatalf("构建源模型失败: %s", err)
	}
	// 不删除初值约束：初值既被固定又有方程，变量数小于方程数
	fs := &fakeSolver{}
	_, err = New(tgt, src, Config{
		ParamNames:  []string{"P"},
		ParamValues: sys.ParamValues(),
	}, fs)
	var ce *types.ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("应当返回一致性错误, 实际 %v", err)
	}
	if ce.NVar >= ce.NEqn {
		t.Errorf("计数关系不正确: n=%d m=%d", ce.NVar, ce.NEqn)
	}
	if len(fs.opts) != 0 {
		t.Errorf("一致性检查失败后不应调用求解器: %d 次", len(fs.opts))
	}
}

func TestAdjustH(t *testing.T) {
	_, _, iz := newABC(t, &fakeSolver{})
	iz.adjustH(2)
	hi := iz.ref.Var(hiName)
	want := iz.feList[2]
	hi.Each(func(key string, l *expr.Leaf) {
		if l.Value != want {
			t.Errorf("元长度未写入 %s: 期望 %v, 实际 %v", key, want, l.Value)
		}
	})
	// 重复调用不改变结果
	iz.adjustH(2)
	hi.Each(func(_ string, l *expr.Leaf) {
		if l.Value != want {
			t.Errorf("重复调整后元长度变化: %v", l.Value)
		}
	})
}

func TestRetryTiers(t *testing.T) {
	fs := &fakeSolver{script: []solve.Status{solve.NotOptimal, solve.NotOptimal, solve.Optimal}}
	_, _, iz := newABC(t, fs)
	if err := iz.Run(); err != nil {
		t.Fatalf("推进失败: %s", err)
	}
	// 元 0 消耗三级配置，其余每元一次
	if len(fs.opts) != 3+4 {
		t.Fatalf("求解次数不正确: %d", len(fs.opts))
	}
	if fs.opts[0].BoundPush != 1e-2 || fs.opts[0].Resto {
		t.Errorf("第一级配置不正确: %+v", fs.opts[0])
	}
	if !fs.opts[1].Resto {
		t.Errorf("第二级应启用恢复阶段")
	}
	if fs.opts[2].Resto || fs.opts[2].BoundRelax != 1e-5 || !fs.opts[2].Verbose {
		t.Errorf("第三级配置不正确: %+v", fs.opts[2])
	}
	// 第三级使用后放松系数收紧
	if iz.tiers[2].BoundRelax != 1e-8 {
		t.Errorf("第三级放松系数未收紧: %v", iz.tiers[2].BoundRelax)
	}
}

func TestConvergenceError(t *testing.T) {
	fs := &fakeSolver{script: []solve.Status{
		solve.NotOptimal, solve.NotOptimal, solve.NotOptimal,
	}}
	_, _, iz := newABC(t, fs)
	err := iz.Run()
	var ce *types.ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("应当返回收敛错误, 实际 %v", err)
	}
	if ce.Element != 0 || ce.Attempts != 3 {
		t.Errorf("错误内容不正确: element=%d attempts=%d", ce.Element, ce.Attempts)
	}
	if len(fs.opts) != 3 {
		t.Errorf("失败后不应推进后续元: %d 次求解", len(fs.opts))
	}
}

func TestLoadInitialConditionsMissing(t *testing.T) {
	sys := abcSystem()
	tgt, _ := sys.BuildTarget(5, 3)
	src, _ := sys.Build()
	iz, err := New(tgt, src, Config{
		InitConName: "init_conditions",
		ParamNames:  []string{"P"},
		ParamValues: sys.ParamValues(),
	}, &fakeSolver{})
	if err != nil {
		t.Fatalf("构建初始化器失败: %s", err)
	}
	err = iz.LoadInitialConditions(map[types.VK]float64{
		{Name: "Z", Index: "A"}: 1.0,
	})
	var cfg *types.ConfigError
	if !errors.As(err, &cfg) {
		t.Errorf("缺失初值应当返回配置错误, 实际 %v", err)
	}
}

func TestMissingParamValue(t *testing.T) {
	sys := abcSystem()
	tgt, _ := sys.BuildTarget(5, 3)
	src, _ := sys.Build()
	_, err := New(tgt, src, Config{
		InitConName: "init_conditions",
		ParamNames:  []string{"P"},
		ParamValues: map[types.VK]float64{{Name: "P", Index: "k1"}: 2.0},
	}, &fakeSolver{})
	var cfg *types.ConfigError
	if !errors.As(err, &cfg) {
		t.Errorf("缺失参数值应当返回配置错误, 实际 %v", err)
	}
}

func TestBounds(t *testing.T) {
	_, _, iz := newABC(t, &fakeSolver{})
	err := iz.CreateBounds(map[string]map[string][2]float64{
		"Z": {"A": {0, 5}},
	})
	if err != nil {
		t.Fatalf("设置边界失败: %s", err)
	}
	zv := iz.ref.Var("Z")
	zv.Each(func(key string, l *expr.Leaf) {
		if keyIndex(key) != "A" {
			return
		}
		if l.Lower != 0 || l.Upper != 5 {
			t.Errorf("边界未写入 %s: [%v,%v]", key, l.Lower, l.Upper)
		}
	})
	if err := iz.CreateBounds(map[string]map[string][2]float64{"W": {"": {0, 1}}}); err == nil {
		t.Errorf("未知变量应当返回错误")
	}

	iz.ClearBounds()
	zv.Each(func(key string, l *expr.Leaf) {
		if !math.IsInf(l.Lower, -1) || !math.IsInf(l.Upper, 1) {
			t.Errorf("边界未清除 %s: [%v,%v]", key, l.Lower, l.Upper)
		}
	})
}

func TestMarchForward(t *testing.T) {
	sys, tgt, iz := newABC(t, nil)
	if err := iz.Run(); err != nil {
		t.Fatalf("推进失败: %s", err)
	}
	_ = sys

	zv := tgt.Var("Z")
	// 末端浓度对照解析解 A(10) = exp(-k1*10)
	if got := zv.At(10, "A").Value; math.Abs(got-math.Exp(-20)) > 1e-4 {
		t.Errorf("A(10) 不正确: 期望 %v, 实际 %v", math.Exp(-20), got)
	}
	// 质量守恒：A+B+C 在每个时间点为 1
	for _, tt := range tgt.Time.Points() {
		sum := zv.At(tt, "A").Value + zv.At(tt, "B").Value + zv.At(tt, "C").Value
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("质量不守恒 t=%v: %v", tt, sum)
		}
	}
	// A 单调下降
	prev := math.Inf(1)
	for _, tt := range tgt.Time.Points() {
		v := zv.At(tt, "A").Value
		if v > prev+1e-9 {
			t.Errorf("A 在 t=%v 处上升: %v -> %v", tt, prev, v)
		}
		prev = v
	}
	// B 对照解析解 B(t) = k1/(k2-k1)*(exp(-k1 t)-exp(-k2 t))
	for _, tt := range []float64{2, 6, 10} {
		want := 2.0 / (0.2 - 2.0) * (math.Exp(-2*tt) - math.Exp(-0.2*tt))
		if got := zv.At(tt, "B").Value; math.Abs(got-want) > 1e-4 {
			t.Errorf("B(%v) 不正确: 期望 %v, 实际 %v", tt, want, got)
		}
	}

	// 连续性：循环后的初值等于目标模型末边界的补写值
	for _, comp := range []string{"A", "B", "C"} {
		ic := iz.ref.Var("Z").At(0, comp)
		if !ic.Fixed {
			t.Errorf("循环初值未固定: %s", comp)
		}
		if got := zv.At(10, comp).Value; math.Abs(ic.Value-got) > 1e-9 {
			t.Errorf("循环初值与边界值不一致 %s: %v vs %v", comp, ic.Value, got)
		}
	}
}

func TestDosing(t *testing.T) {
	// 恒浓度体系 + 体积状态：t=1 处注入 1 体积、浓度 3 的 A
	sys := react.NewSystem("dose", 0, 2)
	sys.AddComponent("A", 1.0)
	sys.SetRate("A", func(react.Refs) expr.Node { return expr.Num(0) })
	sys.WithVolume(1.0)

	tgt, err := sys.BuildTarget(4, 2)
	if err != nil {
		t.Fatalf("构建目标模型失败: %s", err)
	}
	src, err := sys.Build()
	if err != nil {
		t.Fatalf("构建源模型失败: %s", err)
	}
	iz, err := New(tgt, src, Config{InitConName: "init_conditions"}, nil)
	if err != nil {
		t.Fatalf("构建初始化器失败: %s", err)
	}
	if err := iz.LoadInitialConditions(sys.InitialConditions()); err != nil {
		t.Fatalf("载入初值失败: %s", err)
	}

	// 非元边界时刻应当被拒绝
	err = iz.LoadDosingPoints(map[string][]DosingPoint{
		"Z": {{Time: 0.6, Component: "A", Conc: 3, Vol: 1}},
	})
	if err == nil {
		t.Fatalf("非边界投料时刻应当返回错误")
	}
	// 末端边界之后没有元可施加跃变
	err = iz.LoadDosingPoints(map[string][]DosingPoint{
		"Z": {{Time: 2, Component: "A", Conc: 3, Vol: 1}},
	})
	if err == nil {
		t.Fatalf("末端投料时刻应当返回错误")
	}
	// 组分不在变量索引集合中应当在登记时被拒绝
	err = iz.LoadDosingPoints(map[string][]DosingPoint{
		"Z": {{Time: 1, Component: "B", Conc: 3, Vol: 1}},
	})
	var cfg *types.ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("未知投料组分应当返回配置错误, 实际 %v", err)
	}

	err = iz.LoadDosingPoints(map[string][]DosingPoint{
		"Z": {{Time: 1, Component: "A", Conc: 3, Vol: 1}},
	})
	if err != nil {
		t.Fatalf("登记投料失败: %s", err)
	}
	if err := iz.Run(); err != nil {
		t.Fatalf("推进失败: %s", err)
	}

	// 跃变幅度：(1*1 + 3*1)/(1+1) - 1 = 1
	dp := tgt.Var("Z_jumpdelta0_A")
	if dp == nil {
		t.Fatalf("跃变参数未创建")
	}
	if got := dp.AtBare(nil).Value; math.Abs(got-1) > 1e-8 {
		t.Errorf("跃变幅度不正确: 期望 1, 实际 %v", got)
	}
	// 哑变量承载跃变后的值：1 + 1 = 2
	dummy := tgt.Var("Z_dummy_0")
	if dummy == nil {
		t.Fatalf("哑变量未创建")
	}
	if got := dummy.AtBare(nil).Value; math.Abs(got-2) > 1e-8 {
		t.Errorf("哑变量值不正确: 期望 2, 实际 %v", got)
	}
	// 体积跃变：ΔV = 1
	vp := tgt.Var("X_jumpdelta1_V")
	if vp == nil {
		t.Fatalf("体积跃变参数未创建")
	}
	if got := vp.AtBare(nil).Value; math.Abs(got-1) > 1e-8 {
		t.Errorf("体积跃变幅度不正确: %v", got)
	}

	// 受影响元的离散方程被停用并替换为哑变量版本
	disc := tgt.Con("dZdt_disc_eq")
	dl := dummy.AtBare(nil)
	anchor := tgt.Var("Z").At(1, "A")
	for kcp := 1; kcp <= 2; kcp++ {
		tt := tgt.Time.TimeAt(2, kcp)
		it := disc.ItemAt(tt, types.T("A"))
		if it == nil {
			t.Fatalf("离散方程实例缺失 t=%v", tt)
		}
		if it.Active {
			t.Errorf("受影响元的离散方程未停用 t=%v", tt)
		}
	}
	clist := tgt.Con("Z_dummy_eq_0_A")
	if clist == nil {
		t.Fatalf("替换约束列表未创建")
	}
	if clist.Len() != 2 {
		t.Fatalf("替换约束数量不正确: %d", clist.Len())
	}
	clist.Each(func(_ string, it *model.ConItem) {
		if !expr.Contains(it.Expr, dl) {
			t.Errorf("替换约束未引用哑变量")
		}
		if expr.Contains(it.Expr, anchor) {
			t.Errorf("替换约束仍引用锚点单元")
		}
	})
	// 跃变代数式：dummy - Z(1,A) - delta == 0
	jc := tgt.Con("jumpdelta_expr0_A")
	if jc == nil {
		t.Fatalf("跃变约束未创建")
	}
	jc.Each(func(_ string, it *model.ConItem) {
		if got := expr.Eval(it.Expr); math.Abs(got) > 1e-8 {
			t.Errorf("跃变约束残差不为零: %v", got)
		}
	})
}
