package model

import (
	"fmt"

	"kinetic/expr"
	"kinetic/types"
)

// ConItem 约束在某个索引处的实例
type ConItem struct {
	Expr   expr.Node
	Active bool
}

// Constraint 约束：索引元组到方程实例的映射
// Rule 非空的约束由规则生成，可随离散重建；Rule 为空的约束手工填充
type Constraint struct {
	Name    string
	Role    Role
	Of      string // RoleDiscEq 时为状态变量名
	Deriv   string // RoleDiscEq 时为导数变量名
	WrtTime bool
	Rem     []types.Tuple
	Rule    Rule

	items map[string]*ConItem
	order []string

	auxN int // 手工列表的编号计数
}

// AddConstraint 添加规则约束，已离散的模型立即物化
func (m *Model) AddConstraint(name string, wrtTime bool, rem []types.Tuple, rule Rule) (*Constraint, error) {
	c, err := m.addCon(name)
	if err != nil {
		return nil, err
	}
	c.WrtTime = wrtTime
	c.Rem = rem
	c.Rule = rule
	if m.discretized() {
		c.construct(m)
	}
	return c, nil
}

// AddConstraintList 添加手工约束列表，条目由调用方逐条追加
func (m *Model) AddConstraintList(name string) (*Constraint, error) {
	c, err := m.addCon(name)
	if err != nil {
		return nil, err
	}
	c.Role = RoleAux
	return c, nil
}

// AddScalarConstraint 添加单条手工约束
func (m *Model) AddScalarConstraint(name string, e expr.Node) (*Constraint, error) {
	c, err := m.addCon(name)
	if err != nil {
		return nil, err
	}
	c.setItem("|", e)
	return c, nil
}

func (m *Model) addCon(name string) (*Constraint, error) {
	if _, ok := m.cons[name]; ok {
		return nil, types.Configf("constraint %s already declared", name)
	}
	c := &Constraint{Name: name, items: make(map[string]*ConItem)}
	m.cons[name] = c
	m.conOrder = append(m.conOrder, name)
	return c, nil
}

// Con 按名查找约束，不存在返回 nil
func (m *Model) Con(name string) *Constraint { return m.cons[name] }

// Cons 按声明顺序遍历约束
func (m *Model) Cons(f func(*Constraint)) {
	for _, n := range m.conOrder {
		f(m.cons[n])
	}
}

// DelConstraint 删除约束
func (m *Model) DelConstraint(name string) {
	if _, ok := m.cons[name]; !ok {
		return
	}
	delete(m.cons, name)
	for i, n := range m.conOrder {
		if n == name {
			m.conOrder = append(m.conOrder[:i], m.conOrder[i+1:]...)
			break
		}
	}
}

// construct 依据规则在全部索引处物化方程实例
func (c *Constraint) construct(m *Model) {
	if c.Rule == nil {
		return
	}
	c.items = make(map[string]*ConItem)
	c.order = c.order[:0]
	rems := c.Rem
	if len(rems) == 0 {
		rems = []types.Tuple{nil}
	}
	if !c.WrtTime {
		for _, k := range rems {
			if e := c.Rule(m, 0, k); e != nil {
				c.setItem(types.BareKey(k), e)
			}
		}
		return
	}
	for _, t := range m.Time.Points() {
		for _, k := range rems {
			if e := c.Rule(m, t, k); e != nil {
				c.setItem(types.PointKey(t, k), e)
			}
		}
	}
}

func (c *Constraint) setItem(key string, e expr.Node) {
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = &ConItem{Expr: e, Active: true}
}

// SetItemAt 在指定索引处手工放置方程实例
func (c *Constraint) SetItemAt(t float64, k types.Tuple, e expr.Node) {
	c.setItem(types.PointKey(t, k), e)
}

// Add 向手工列表追加方程实例
func (c *Constraint) Add(e expr.Node) {
	c.setItem(fmt.Sprintf("|#%d", c.auxN), e)
	c.auxN++
}

// ItemAt 查找指定时间与索引处的实例，不存在返回 nil
func (c *Constraint) ItemAt(t float64, k types.Tuple) *ConItem {
	return c.items[types.PointKey(t, k)]
}

// Each 按生成顺序遍历实例
func (c *Constraint) Each(f func(key string, it *ConItem)) {
	for _, key := range c.order {
		f(key, c.items[key])
	}
}

// Len 实例数量
func (c *Constraint) Len() int { return len(c.order) }
