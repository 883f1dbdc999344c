package solve

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/types"
)

// Newton 阻尼Newton-Raphson求解器
// 对模型中全部未固定单元与激活方程组装方阵系统 F(x)=0，
// 稠密雅可比经 gonum LU 分解求步长，阻尼因子随残差变化自适应调整
type Newton struct{}

// NewNewton 创建求解器
func NewNewton() *Newton { return &Newton{} }

// system 一次求解的装配结果
type system struct {
	cols []*expr.Leaf       // 未固定单元（求解列）
	col  map[*expr.Leaf]int // 单元到列号
	rows []expr.Node        // 激活方程
	dep  [][]*expr.Leaf     // 每行出现的未固定单元
}

// assemble 装配求解系统
func assemble(m *model.Model) (*system, error) {
	s := &system{col: make(map[*expr.Leaf]int)}
	m.Vars(func(v *model.Var) {
		v.Each(func(_ string, l *expr.Leaf) {
			if !l.Fixed {
				s.col[l] = len(s.cols)
				s.cols = append(s.cols, l)
			}
		})
	})
	m.Cons(func(c *model.Constraint) {
		c.Each(func(_ string, it *model.ConItem) {
			if !it.Active {
				return
			}
			seen := make(map[*expr.Leaf]bool)
			var dep []*expr.Leaf
			expr.Leaves(it.Expr, func(l *expr.Leaf) {
				if !l.Fixed && !seen[l] {
					seen[l] = true
					dep = append(dep, l)
				}
			})
			s.rows = append(s.rows, it.Expr)
			s.dep = append(s.dep, dep)
		})
	})
	if len(s.cols) != len(s.rows) {
		return nil, fmt.Errorf("newton: system is not square: n=%d m=%d", len(s.cols), len(s.rows))
	}
	if len(s.cols) == 0 {
		return nil, fmt.Errorf("newton: empty system")
	}
	return s, nil
}

// Solve 求解模型
func (nw *Newton) Solve(m *model.Model, opt Options) (Result, error) {
	if opt.MaxIter <= 0 {
		opt.MaxIter = types.MaxIterations
	}
	if opt.Tol <= 0 {
		opt.Tol = types.Tolerance
	}
	if opt.Damping <= 0 {
		opt.Damping = 1.0
	}
	if opt.MinDamping <= 0 {
		opt.MinDamping = 1e-3
	}
	if opt.MaxDamping <= 0 {
		opt.MaxDamping = 1.0
	}

	sys, err := assemble(m)
	if err != nil {
		return Result{Status: NotOptimal}, err
	}
	n := len(sys.cols)

	// 放松后的有效边界
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i, l := range sys.cols {
		lo[i], hi[i] = relaxBounds(l, opt.BoundRelax)
	}

	// 初始点推离边界（对应 bound_push）
	for i, l := range sys.cols {
		x := l.Value
		if !math.IsInf(l.Lower, -1) {
			push := opt.BoundPush * math.Max(1, math.Abs(l.Lower))
			if x < l.Lower+push {
				x = l.Lower + push
			}
		}
		if !math.IsInf(l.Upper, 1) {
			push := opt.BoundPush * math.Max(1, math.Abs(l.Upper))
			if x > l.Upper-push {
				x = l.Upper - push
			}
		}
		l.Value = clamp(x, lo[i], hi[i])
	}

	damping := opt.Damping
	if opt.Resto {
		// 恢复阶段提示：保守起步
		damping = math.Max(opt.MinDamping, 0.25*opt.Damping)
	}

	F := mat.NewVecDense(n, nil)
	J := mat.NewDense(n, n, nil)
	dx := mat.NewVecDense(n, nil)
	var lu mat.LU

	oscillation := 0
	prevRes := math.Inf(1)
	res := math.Inf(1)

	for iter := 0; iter < opt.MaxIter; iter++ {
		// 组装残差与雅可比
		J.Zero()
		res = 0
		for i, row := range sys.rows {
			F.SetVec(i, expr.Eval(row))
			if r := math.Abs(F.AtVec(i)); r > res {
				res = r
			}
			for _, l := range sys.dep[i] {
				_, d := expr.EvalDiff(row, l)
				J.Set(i, sys.col[l], d)
			}
		}
		if opt.Verbose {
			log.Printf("newton: iter=%d 残差=%.3e 阻尼=%.3f", iter, res, damping)
		}
		if res < opt.Tol {
			markSolved(sys)
			return Result{Status: Optimal, Iterations: iter, Residual: res}, nil
		}

		// 残差震荡时收紧阻尼，平稳下降时放宽
		switch {
		case res > prevRes*10:
			damping = math.Max(opt.MinDamping, damping*0.1)
			oscillation++
		case res > prevRes:
			damping = math.Max(opt.MinDamping, damping*0.5)
			oscillation++
		case res < prevRes*0.5:
			damping = math.Min(opt.MaxDamping, damping*1.2)
			oscillation = 0
		}
		if oscillation > types.MaxOscillationCount {
			if opt.Verbose {
				log.Printf("newton: 发散振荡 iter=%d res=%.3e", iter, res)
			}
			return Result{Status: NotOptimal, Iterations: iter, Residual: res}, nil
		}
		prevRes = res

		// 求解 J·dx = -F
		lu.Factorize(J)
		if err := lu.SolveVecTo(dx, false, F); err != nil {
			if opt.Verbose {
				log.Printf("newton: 矩阵求解失败: %v", err)
			}
			return Result{Status: Singular, Iterations: iter, Residual: res}, nil
		}
		for i, l := range sys.cols {
			l.Value = clamp(l.Value-damping*dx.AtVec(i), lo[i], hi[i])
		}
	}

	// 迭代耗尽后残差已达容差则仍视为收敛
	res = 0
	for _, row := range sys.rows {
		if r := math.Abs(expr.Eval(row)); r > res {
			res = r
		}
	}
	status := NotOptimal
	if res < opt.Tol {
		status = Optimal
	}
	if status == Optimal {
		markSolved(sys)
	}
	return Result{Status: status, Iterations: opt.MaxIter, Residual: res}, nil
}

// markSolved 清除解单元的过期标记
func markSolved(sys *system) {
	for _, l := range sys.cols {
		l.Stale = false
	}
}

// relaxBounds 依放松系数扩展边界（对应 bound_relax_factor）
func relaxBounds(l *expr.Leaf, relax float64) (lo, hi float64) {
	lo, hi = l.Lower, l.Upper
	if relax <= 0 {
		return lo, hi
	}
	if !math.IsInf(lo, -1) {
		lo -= relax * math.Max(1, math.Abs(lo))
	}
	if !math.IsInf(hi, 1) {
		hi += relax * math.Max(1, math.Abs(hi))
	}
	return lo, hi
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
