package model

import (
	"kinetic/expr"
	"kinetic/types"
)

// Clone 深拷贝模型
// 变量单元逐个复制（值、固定、过期、上下界），约束表达式沿叶子映射重建，
// 拷贝后两个模型互不共享任何可变状态。
func (m *Model) Clone() *Model {
	n := New(m.Name)
	if m.Time != nil {
		s := *m.Time
		s.fes = append([]float64(nil), m.Time.fes...)
		s.taus = append([]float64(nil), m.Time.taus...)
		s.points = append([]float64(nil), m.Time.points...)
		n.Time = &s
	}

	// 旧叶子到新叶子的映射，用于约束表达式重建
	leafMap := make(map[*expr.Leaf]*expr.Leaf)

	for _, name := range m.varOrder {
		v := m.vars[name]
		nv := &Var{
			Name:    v.Name,
			WrtTime: v.WrtTime,
			Rem:     cloneTuples(v.Rem),
			IsParam: v.IsParam,
			Mutable: v.Mutable,
			init:    v.init,
			lb:      v.lb,
			ub:      v.ub,
			data:    make(map[string]*expr.Leaf, len(v.data)),
		}
		for _, key := range v.order {
			old := v.data[key]
			l := &expr.Leaf{
				Name:  old.Name,
				Value: old.Value,
				Fixed: old.Fixed,
				Stale: old.Stale,
				Lower: old.Lower,
				Upper: old.Upper,
			}
			nv.data[key] = l
			nv.order = append(nv.order, key)
			leafMap[old] = l
		}
		n.vars[name] = nv
		n.varOrder = append(n.varOrder, name)
	}

	n.derivOrder = append([]string(nil), m.derivOrder...)
	for d, s := range m.derivs {
		n.derivs[d] = s
	}

	for _, name := range m.conOrder {
		c := m.cons[name]
		nc := &Constraint{
			Name:    c.Name,
			Role:    c.Role,
			Of:      c.Of,
			Deriv:   c.Deriv,
			WrtTime: c.WrtTime,
			Rem:     cloneTuples(c.Rem),
			Rule:    c.Rule,
			items:   make(map[string]*ConItem, len(c.items)),
			auxN:    c.auxN,
		}
		for _, key := range c.order {
			it := c.items[key]
			nc.items[key] = &ConItem{Expr: cloneExpr(it.Expr, leafMap), Active: it.Active}
			nc.order = append(nc.order, key)
		}
		n.cons[name] = nc
		n.conOrder = append(n.conOrder, name)
	}
	return n
}

func cloneTuples(in []types.Tuple) []types.Tuple {
	if in == nil {
		return nil
	}
	out := make([]types.Tuple, len(in))
	for i, k := range in {
		out[i] = append(types.Tuple(nil), k...)
	}
	return out
}

// cloneExpr 沿叶子映射重建表达式树，常量复制，未知叶子保持原指针
func cloneExpr(n expr.Node, leafMap map[*expr.Leaf]*expr.Leaf) expr.Node {
	switch e := n.(type) {
	case *expr.Const:
		return &expr.Const{Value: e.Value}
	case *expr.Leaf:
		if nl, ok := leafMap[e]; ok {
			return nl
		}
		return e
	case *expr.Add:
		return &expr.Add{X: cloneExpr(e.X, leafMap), Y: cloneExpr(e.Y, leafMap)}
	case *expr.Sub:
		return &expr.Sub{X: cloneExpr(e.X, leafMap), Y: cloneExpr(e.Y, leafMap)}
	case *expr.Mul:
		return &expr.Mul{X: cloneExpr(e.X, leafMap), Y: cloneExpr(e.Y, leafMap)}
	case *expr.Div:
		return &expr.Div{X: cloneExpr(e.X, leafMap), Y: cloneExpr(e.Y, leafMap)}
	case *expr.Neg:
		return &expr.Neg{X: cloneExpr(e.X, leafMap)}
	case *expr.Pow:
		return &expr.Pow{X: cloneExpr(e.X, leafMap), N: e.N}
	case *expr.Exp:
		return &expr.Exp{X: cloneExpr(e.X, leafMap)}
	case *expr.Log:
		return &expr.Log{X: cloneExpr(e.X, leafMap)}
	}
	return n
}
