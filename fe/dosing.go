package fe

import (
	"fmt"
	"log"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/types"
)

// DosingPoint 投料事件：某时刻向体系注入一定体积的组分溶液
type DosingPoint struct {
	Time      float64 // 事件时刻，必须落在元边界上
	Component string  // 注入的组分索引
	Conc      float64 // 注入液浓度
	Vol       float64 // 注入体积
}

// LoadDosingPoints 登记投料事件
// 事件时刻必须是目标模型的元边界，且其后至少还有一个元；
// 推进到事件所在元之后时由 patch 注入跃变
func (iz *Initializer) LoadDosingPoints(points map[string][]DosingPoint) error {
	if len(points) == 0 {
		return nil
	}
	for name, ps := range points {
		v := iz.tgt.Var(name)
		if v == nil || !v.WrtTime {
			return types.Configf("dosing variable %s is not indexed by time", name)
		}
		for _, p := range ps {
			if !hasComponent(v, p.Component) {
				return types.Configf("dosing component %s is not indexed in %s", p.Component, name)
			}
			jfe, cp, err := iz.tgt.Time.ElementOf(p.Time)
			if err != nil {
				return err
			}
			if cp != iz.ncp && !(jfe == 0 && cp == 0) {
				return types.Configf("dosing time %g is not an element boundary", p.Time)
			}
			if jfe+1 >= iz.nfe {
				return types.Configf("dosing time %g leaves no element to apply the jump", p.Time)
			}
		}
	}
	iz.jump = true
	iz.dosing = sortedDosing(points)
	return nil
}

// hasComponent 变量的单元素索引集合里是否含有该组分
func hasComponent(v *model.Var, comp string) bool {
	for _, k := range v.Rem {
		if len(k) == 1 && k[0] == comp {
			return true
		}
	}
	return false
}

// injectJumps 注入当前元起点处的所有跃变
// 事件在元 jfe 末端发生时，受影响的是元 jfe+1 的全部配置点
func (iz *Initializer) injectJumps(fe int) error {
	for _, d := range iz.dosing {
		jfe, _, err := iz.tgt.Time.ElementOf(d.Point.Time)
		if err != nil {
			return err
		}
		if jfe+1 != fe {
			continue
		}
		if err := iz.applyJump(jfe, d); err != nil {
			return err
		}
	}
	return nil
}

// applyJump 以哑变量替换把浓度与体积的阶跃编入目标模型
// 摩尔守恒求出跃变幅度，锚点状态替换为 哑变量 = 状态(t事件) + Δ
func (iz *Initializer) applyJump(jumpFE int, d dosingEntry) error {
	tEvent := iz.tgt.Time.TimeAt(jumpFE, iz.ncp)
	deltas, err := iz.concentrationCalc(tEvent, d)
	if err != nil {
		return err
	}

	for _, mc := range iz.makeCompList(d.VarName) {
		delta, ok := deltas[mc.comp]
		if !ok {
			continue
		}
		mv := iz.tgt.Var(mc.varName)
		anchor := mv.At(tEvent, mc.comp)
		if anchor == nil {
			log.Printf("fe: dosing anchor %s[%g,%s] 缺失，跳过", mc.varName, tEvent, mc.comp)
			continue
		}

		// 哑变量承载跃变后的值，替换后续元方程里的锚点引用
		dummy, err := iz.tgt.AddVar(fmt.Sprintf("%s_dummy_%d", mc.varName, iz.conNum), false, nil)
		if err != nil {
			return err
		}
		dl := dummy.AtBare(nil)
		dl.Set(anchor.Value + delta)

		dp, err := iz.tgt.AddParam(fmt.Sprintf("%s_jumpdelta%d_%s", mc.varName, iz.conNum, mc.comp),
			false, nil, delta)
		if err != nil {
			return err
		}
		jc, err := iz.tgt.AddScalarConstraint(fmt.Sprintf("jumpdelta_expr%d_%s", iz.conNum, mc.comp),
			expr.Minus(expr.Minus(dl, anchor), dp.AtBare(nil)))
		if err != nil {
			return err
		}
		jc.Role = model.RoleAux

		clist, err := iz.tgt.AddConstraintList(
			fmt.Sprintf("%s_dummy_eq_%d_%s", mc.varName, iz.conNum, mc.comp))
		if err != nil {
			return err
		}
		clist.Role = model.RoleAux

		// 受影响元的离散方程：停用原式，锚点叶换为哑变量后重新登记
		disc := iz.tgt.Con(iz.discConName(mc.varName))
		if disc == nil {
			return types.Configf("no discretization equation for %s", mc.varName)
		}
		for kcp := 1; kcp <= iz.ncp; kcp++ {
			t := iz.tgt.Time.TimeAt(jumpFE+1, kcp)
			it := disc.ItemAt(t, types.T(mc.comp))
			if it == nil {
				continue
			}
			it.Active = false
			clist.Add(expr.Replace(it.Expr, anchor, dl))
		}
		iz.conNum++
	}
	return nil
}

// compTarget 跃变作用的变量与索引
type compTarget struct {
	varName string
	comp    string
}

// makeCompList 受跃变影响的 (变量, 索引) 列表：全部组分加体积状态
func (iz *Initializer) makeCompList(concName string) []compTarget {
	var out []compTarget
	if cv := iz.tgt.Var(concName); cv != nil {
		for _, k := range cv.Rem {
			if len(k) == 1 {
				out = append(out, compTarget{concName, k[0]})
			}
		}
	}
	if sv := iz.tgt.Var(iz.names.State); sv != nil {
		for _, k := range sv.Rem {
			if len(k) == 1 && k[0] == iz.names.Volume {
				out = append(out, compTarget{iz.names.State, iz.names.Volume})
			}
		}
	}
	return out
}

// concentrationCalc 摩尔与体积守恒求跃变幅度
// 事件时刻读取各组分浓度与体积，注入后
// c_new = (c_old·V + c_in·ΔV)/(V+ΔV)，Δc = c_new − c_old，ΔV 直接叠加
func (iz *Initializer) concentrationCalc(tEvent float64, d dosingEntry) (map[string]float64, error) {
	cv := iz.tgt.Var(d.VarName)
	if cv == nil {
		return nil, types.Configf("dosing variable %s not found", d.VarName)
	}
	sv := iz.tgt.Var(iz.names.State)
	if sv == nil {
		return nil, types.Configf("no state variable %s for the volume balance", iz.names.State)
	}
	vl := sv.At(tEvent, iz.names.Volume)
	if vl == nil {
		return nil, types.Configf("no volume state %s[%s] at t=%g", iz.names.State, iz.names.Volume, tEvent)
	}
	vol := vl.Value
	if vol <= 0 || isNaN(vol) {
		return nil, types.Configf("invalid volume %g at dosing time %g", vol, tEvent)
	}

	moles := make(map[string]float64)
	conc := make(map[string]float64)
	for _, k := range cv.Rem {
		if len(k) != 1 {
			continue
		}
		l := cv.AtTuple(tEvent, k)
		if l == nil || isNaN(l.Value) {
			return nil, types.Configf("invalid concentration %s[%s] at dosing time %g", d.VarName, k.Key(), tEvent)
		}
		conc[k[0]] = l.Value
		moles[k[0]] = l.Value * vol
	}
	moles[d.Point.Component] += d.Point.Conc * d.Point.Vol
	newVol := vol + d.Point.Vol

	deltas := make(map[string]float64, len(conc)+1)
	for c, m := range moles {
		deltas[c] = m/newVol - conc[c]
	}
	deltas[iz.names.Volume] = d.Point.Vol
	return deltas, nil
}

// discConName 目标模型中某状态变量离散方程的约束名
func (iz *Initializer) discConName(state string) string {
	var name string
	iz.tgt.Cons(func(c *model.Constraint) {
		if c.Role == model.RoleDiscEq && c.Of == state {
			name = c.Name
		}
	})
	return name
}
