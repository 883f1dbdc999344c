package fe

import (
	"log"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/solve"
	"kinetic/types"
)

// Run 依次推进全部有限元 0..N-1
// 串行执行：每个元必须求解、补写并循环初值之后才能进入下一个元
func (iz *Initializer) Run() error {
	for fe := 0; fe < iz.nfe; fe++ {
		if err := iz.marchForward(fe); err != nil {
			return err
		}
	}
	return nil
}

// marchForward 推进一个有限元
// 调整元长度、载入输入、分级求解、补写目标模型、循环初值
func (iz *Initializer) marchForward(fe int) error {
	iz.adjustH(fe)
	if len(iz.inputs) > 0 || len(iz.inputsSub) > 0 {
		iz.loadInput(fe)
	}

	// 分级重试：依次应用配置覆盖，三次均不收敛视为致命
	attempts := 0
	optimal := false
	for i := range iz.tiers {
		attempts++
		res, err := iz.solver.Solve(iz.ref, iz.tiers[i])
		if i == len(iz.tiers)-1 {
			// 第三次求解后收紧放松系数，供后续元使用
			iz.tiers[i].BoundRelax = 1e-8
		}
		if err != nil {
			return err
		}
		if res.Status == solve.Optimal {
			optimal = true
			break
		}
	}
	if !optimal {
		return &types.ConvergenceError{Element: fe, Attempts: attempts}
	}

	if err := iz.patch(fe); err != nil {
		return err
	}
	return iz.cycleICs()
}

// adjustH 把归一化模型的元长度参数设为当前元宽度
// 每个配置点一个值，重复调用同一 fe 不改变结果
func (iz *Initializer) adjustH(fe int) {
	hi := iz.ref.Var(hiName)
	for _, t := range iz.ref.Time.Points() {
		hi.AtTuple(t, nil).Set(iz.feList[fe])
	}
}

// loadInput 把目标模型当前元的输入值载入归一化模型
// 按配置点位置对齐，不按绝对时间
func (iz *Initializer) loadInput(fe int) {
	for _, name := range iz.inputs {
		iz.copyInput(fe, name, nil)
	}
	for name, keys := range iz.inputsSub {
		for _, k := range keys {
			iz.copyInput(fe, name, k)
		}
	}
}

func (iz *Initializer) copyInput(fe int, name string, k types.Tuple) {
	src := iz.tgt.Var(name)
	dst := iz.ref.Var(name)
	if src == nil || dst == nil {
		log.Printf("fe: input %s 缺失，跳过", name)
		return
	}
	for j := 0; j <= iz.ncp; j++ {
		tT := iz.tgt.Time.TimeAt(fe, j)
		tS := iz.ref.Time.TimeAt(0, j)
		sl := src.AtTuple(tT, k)
		dl := dst.AtTuple(tS, k)
		if sl == nil || dl == nil {
			log.Printf("fe: input %s[%g,%s] 缺失，跳过", name, tT, k.Key())
			continue
		}
		dl.Set(sl.Value)
	}
}

// patch 把归一化模型在本元的解写入目标模型的真实时间点
// 固定或过期的单元视为外部控制，跳过不写；读取失败记录后跳过
func (iz *Initializer) patch(fe int) error {
	iz.ref.Vars(func(v *model.Var) {
		if v.IsParam {
			return
		}
		tv := iz.tgt.Var(v.Name)
		if tv == nil {
			return
		}
		if !v.WrtTime {
			// weird 变量：逐值复制
			v.Each(func(key string, sl *expr.Leaf) {
				if sl.Stale || sl.Fixed {
					return
				}
				if isNaN(sl.Value) {
					log.Printf("fe: error at %s, %s", v.Name, key)
					return
				}
				if tl := tv.AtKey(key); tl != nil && !tl.Fixed {
					tl.Set(sl.Value)
				}
			})
			return
		}
		rems, ok := iz.remaining[v.Name]
		if !ok {
			rems = iz.remainingAlg[v.Name]
		}
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for j := 0; j <= iz.ncp; j++ {
			tT := iz.tgt.Time.TimeAt(fe, j)
			tS := iz.ref.Time.TimeAt(0, j)
			for _, k := range rems {
				sl := v.AtTuple(tS, k)
				if sl == nil || sl.Stale || sl.Fixed {
					continue
				}
				if isNaN(sl.Value) {
					log.Printf("fe: error at %s, (%g,%s)", v.Name, tS, k.Key())
					continue
				}
				tl := tv.AtTuple(tT, k)
				if tl == nil {
					log.Printf("fe: target %s has no cell at (%g,%s)", v.Name, tT, k.Key())
					continue
				}
				if tl.Fixed {
					continue
				}
				tl.Set(sl.Value)
			}
		}
	})

	if iz.jump {
		return iz.injectJumps(fe)
	}
	return nil
}

// cycleICs 循环初值
// 归一化模型末配置点的微分状态写入 t=0 并固定，作为下一元的初值；
// 读到非数视为致命错误，避免污染后续全部元
func (iz *Initializer) cycleICs() error {
	tLast := iz.ref.Time.TimeAt(0, iz.ncp)
	for _, name := range iz.dvsNames {
		v := iz.ref.Var(name)
		rems := iz.remaining[name]
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for _, k := range rems {
			sl := v.AtTuple(tLast, k)
			if sl == nil || isNaN(sl.Value) {
				return types.Configf("cycle: invalid value at %s[%g,%s]", name, tLast, k.Key())
			}
			l0 := v.AtTuple(0, k)
			l0.Set(sl.Value)
			if !l0.Fixed {
				l0.Fix()
			}
		}
	}
	return nil
}
