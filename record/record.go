// Package record 记录并展示模型的时间序列：
// JSON 输出、网页曲线与 PNG 图各一种渲染方式。
package record

import (
	"encoding/json"
	"io"
	"log"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/types"
)

// Record 记录历史状态
type Record struct {
	Components []string    // 浓度序列名
	States     []string    // 补充状态序列名
	DerivStr   []string    // 导数序列名
	Time       []float64   // 时间列
	Conc       [][]float64 // 浓度列
	State      [][]float64 // 状态列
	Deriv      [][]float64 // 导数列

	names types.VarNames
}

// Init 初始化序列名
func (list *Record) Init(m *model.Model, names types.VarNames) {
	if names == (types.VarNames{}) {
		names = types.DefaultVarNames()
	}
	list.names = names
	if zv := m.Var(names.Concentration); zv != nil {
		for _, k := range zv.Rem {
			list.Components = append(list.Components, k.Key())
		}
	}
	if xv := m.Var(names.State); xv != nil {
		for _, k := range xv.Rem {
			list.States = append(list.States, k.Key())
		}
	}
	m.Derivatives(func(deriv, _ string) {
		dv := m.Var(deriv)
		rems := dv.Rem
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for _, k := range rems {
			list.DerivStr = append(list.DerivStr, deriv+"["+k.Key()+"]")
		}
	})
}

// Update 记录一个时间点
func (list *Record) Update(m *model.Model, t float64) {
	list.Time = append(list.Time, t)
	list.Conc = append(list.Conc, readRow(m.Var(list.names.Concentration), t, list.Components))
	list.State = append(list.State, readRow(m.Var(list.names.State), t, list.States))

	var drow []float64
	m.Derivatives(func(deriv, _ string) {
		dv := m.Var(deriv)
		rems := dv.Rem
		if len(rems) == 0 {
			rems = []types.Tuple{nil}
		}
		for _, k := range rems {
			drow = append(drow, leafValue(dv.AtTuple(t, k)))
		}
	})
	list.Deriv = append(list.Deriv, drow)
}

// Capture 记录全部时间点
func (list *Record) Capture(m *model.Model) {
	for _, t := range m.Time.Points() {
		list.Update(m, t)
	}
}

// Render 格式和输出内容
func (list *Record) Render(w io.Writer) error { return json.NewEncoder(w).Encode(list) }

func (list *Record) Error(err error) { log.Println(err) }

func readRow(v *model.Var, t float64, keys []string) []float64 {
	if v == nil {
		return nil
	}
	row := make([]float64, len(keys))
	for i, key := range keys {
		row[i] = leafValue(v.At(t, key))
	}
	return row
}

func leafValue(l *expr.Leaf) float64 {
	if l == nil {
		return 0
	}
	return l.Value
}
