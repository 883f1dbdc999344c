package solve

import (
	"math"
	"testing"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/types"
)

// scalarModel 空壳模型：离散后手工放置标量变量与方程
func scalarModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New("scalar")
	if _, err := m.AddContinuousSet("t", 0, 1); err != nil {
		t.Fatalf("创建时间域失败: %s", err)
	}
	if err := m.Discretize(1, 1, types.SchemeLagrangeRadau); err != nil {
		t.Fatalf("离散失败: %s", err)
	}
	return m
}

func TestNewtonSolve(t *testing.T) {
	m := scalarModel(t)
	xv, _ := m.AddVar("x", false, nil)
	yv, _ := m.AddVar("y", false, nil)
	x := xv.AtBare(nil)
	y := yv.AtBare(nil)
	x.Set(1)
	y.Set(1)

	// x^2 = 4, x*y = 6
	m.AddScalarConstraint("c1", expr.Minus(expr.Power(x, 2), expr.Num(4)))
	m.AddScalarConstraint("c2", expr.Minus(expr.Times(x, y), expr.Num(6)))

	res, err := NewNewton().Solve(m, DefaultOptions())
	if err != nil {
		t.Fatalf("求解失败: %s", err)
	}
	if res.Status != Optimal {
		t.Fatalf("求解状态不正确: %s", res.Status)
	}
	if math.Abs(x.Value-2) > 1e-8 || math.Abs(y.Value-3) > 1e-8 {
		t.Errorf("解不正确: x=%v y=%v", x.Value, y.Value)
	}
	if x.Stale || y.Stale {
		t.Errorf("收敛后过期标记未清除")
	}
}

func TestNewtonBoundRelax(t *testing.T) {
	m := scalarModel(t)
	xv, _ := m.AddVar("x", false, nil)
	x := xv.AtBare(nil)
	x.Set(1)
	x.SetBounds(0, 4.9)
	m.AddScalarConstraint("c", expr.Minus(x, expr.Num(5)))

	// 不放松：解被边界夹住，无法收敛
	opt := DefaultOptions()
	opt.MaxIter = 20
	res, err := NewNewton().Solve(m, opt)
	if err != nil {
		t.Fatalf("求解失败: %s", err)
	}
	if res.Status == Optimal {
		t.Fatalf("边界内不应收敛到 5, x=%v", x.Value)
	}

	// 放松边界后可达
	opt.BoundRelax = 0.1
	x.Set(1)
	res, err = NewNewton().Solve(m, opt)
	if err != nil {
		t.Fatalf("求解失败: %s", err)
	}
	if res.Status != Optimal || math.Abs(x.Value-5) > 1e-8 {
		t.Errorf("放松后应收敛到 5: status=%s x=%v", res.Status, x.Value)
	}
}

func TestNewtonBoundPush(t *testing.T) {
	m := scalarModel(t)
	xv, _ := m.AddVar("x", false, nil)
	x := xv.AtBare(nil)
	x.SetBounds(0, 100)
	x.Set(0) // 初始点贴着下界

	// log(x) = 0：x=0 起步会得到 -Inf，推离边界后正常收敛到 1
	m.AddScalarConstraint("c", &expr.Log{X: x})

	opt := DefaultOptions()
	opt.BoundPush = 1e-2
	res, err := NewNewton().Solve(m, opt)
	if err != nil {
		t.Fatalf("求解失败: %s", err)
	}
	if res.Status != Optimal || math.Abs(x.Value-1) > 1e-8 {
		t.Errorf("应收敛到 1: status=%s x=%v", res.Status, x.Value)
	}
}

func TestNewtonNotSquare(t *testing.T) {
	m := scalarModel(t)
	xv, _ := m.AddVar("x", false, nil)
	x := xv.AtBare(nil)
	x.Set(1)
	m.AddScalarConstraint("c1", expr.Minus(x, expr.Num(1)))
	m.AddScalarConstraint("c2", expr.Minus(x, expr.Num(2)))

	if _, err := NewNewton().Solve(m, DefaultOptions()); err == nil {
		t.Errorf("非方系统应当返回错误")
	}
}

func TestNewtonSingular(t *testing.T) {
	m := scalarModel(t)
	xv, _ := m.AddVar("x", false, nil)
	yv, _ := m.AddVar("y", false, nil)
	x := xv.AtBare(nil)
	y := yv.AtBare(nil)
	x.Set(1)
	y.Set(1)

	// 两条线性相关的方程：雅可比奇异
	m.AddScalarConstraint("c1", expr.Minus(expr.Plus(x, y), expr.Num(1)))
	m.AddScalarConstraint("c2", expr.Minus(expr.Plus(x, y), expr.Num(2)))

	res, err := NewNewton().Solve(m, DefaultOptions())
	if err != nil {
		t.Fatalf("奇异系统不应返回结构错误: %s", err)
	}
	if res.Status == Optimal {
		t.Errorf("奇异系统不应收敛")
	}
}
