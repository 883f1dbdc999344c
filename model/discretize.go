package model

import (
	"kinetic/expr"
	"kinetic/maths"
	"kinetic/types"
)

// Discretize 以 nfe 个等宽有限元、每元 ncp 个配置点离散模型
// 重建全部变量单元，按规则重建约束实例，并为每个导数变量生成离散方程
// d<v>dt_disc_eq（角色 RoleDiscEq）。手工约束（Rule 为空）会被丢弃。
func (m *Model) Discretize(nfe, ncp int, scheme string) error {
	if m.Time == nil {
		return types.Configf("model %s has no continuous set", m.Name)
	}
	if scheme != types.SchemeLagrangeRadau {
		return types.Configf("unsupported discretization scheme %q", scheme)
	}
	if nfe < 1 {
		return types.Configf("discretize: nfe=%d must be at least 1", nfe)
	}
	tau, err := maths.RadauPoints(ncp)
	if err != nil {
		return err
	}

	s := m.Time
	s.scheme = scheme
	s.ncp = ncp
	s.taus = tau
	s.fes = make([]float64, nfe+1)
	h := (s.Hi - s.Lo) / float64(nfe)
	for i := 0; i <= nfe; i++ {
		s.fes[i] = s.Lo + float64(i)*h
	}
	s.disc = true

	// 时间点：域起点加每元的 ncp 个配置点（Radau 右端点即元边界）
	// 全精度存储，键一致性由 PointKey 的六位舍入保证
	s.points = s.points[:0]
	s.points = append(s.points, s.Lo)
	for fe := 0; fe < nfe; fe++ {
		for j := 1; j <= ncp; j++ {
			s.points = append(s.points, s.TimeAt(fe, j))
		}
	}

	// 重建变量单元
	for _, name := range m.varOrder {
		m.vars[name].materialize(s.points)
	}

	// 丢弃手工约束，按规则重建其余约束
	var manual []string
	for _, name := range m.conOrder {
		if m.cons[name].Rule == nil && m.cons[name].Role != RoleDiscEq {
			manual = append(manual, name)
		}
	}
	for _, name := range manual {
		m.DelConstraint(name)
	}
	for _, name := range m.conOrder {
		m.cons[name].construct(m)
	}

	return m.buildDiscEquations()
}

// buildDiscEquations 为每个导数变量生成配置点离散方程
// 每个非锚点 t_ij 处：Σ_k adot[k][j]·v[t_ik]/h_i - dv[t_ij] == 0
func (m *Model) buildDiscEquations() error {
	s := m.Time
	nodes := append([]float64{0}, s.taus...)
	adot, err := maths.LagrangeDerivMatrix(nodes)
	if err != nil {
		return err
	}
	for _, dname := range m.derivOrder {
		state := m.vars[m.derivs[dname]]
		dv := m.vars[dname]
		cname := dname + "_disc_eq"
		m.DelConstraint(cname)
		c, err := m.addCon(cname)
		if err != nil {
			return err
		}
		c.Role = RoleDiscEq
		c.Of = state.Name
		c.Deriv = dname
		c.WrtTime = true
		c.Rem = state.Rem

		rems := state.Rem
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for fe := 0; fe < s.NFE(); fe++ {
			h := s.fes[fe+1] - s.fes[fe]
			for j := 1; j <= s.ncp; j++ {
				t := s.TimeAt(fe, j)
				for _, k := range rems {
					terms := make([]expr.Node, 0, s.ncp+1)
					for kcp := 0; kcp <= s.ncp; kcp++ {
						tk := s.TimeAt(fe, kcp)
						terms = append(terms,
							expr.Times(expr.Num(adot[kcp][j]/h), state.AtTuple(tk, k)))
					}
					body := expr.Minus(expr.Sum(terms...), dv.AtTuple(t, k))
					c.SetItemAt(t, k, body)
				}
			}
		}
	}
	return nil
}
