package fe

import (
	"math"

	"kinetic/expr"
	"kinetic/model"
	"kinetic/types"
)

// CreateBounds 为参考模型的变量设置上下界
// 外层键是变量名，内层键是非时间索引（空串表示仅时间索引）
func (iz *Initializer) CreateBounds(bounds map[string]map[string][2]float64) error {
	for name, byKey := range bounds {
		v := iz.ref.Var(name)
		if v == nil {
			return types.Configf("bounds for unknown variable %s", name)
		}
		for key, b := range byKey {
			found := false
			v.Each(func(cellKey string, l *expr.Leaf) {
				if keyIndex(cellKey) != key {
					return
				}
				l.SetBounds(b[0], b[1])
				found = true
			})
			if !found {
				return types.Configf("bounds for %s: no cell with index %q", name, key)
			}
		}
	}
	return nil
}

// ClearBounds 清除参考模型全部变量的上下界
func (iz *Initializer) ClearBounds() {
	iz.ref.Vars(func(v *model.Var) {
		v.Each(func(_ string, l *expr.Leaf) {
			l.SetBounds(math.Inf(-1), math.Inf(1))
		})
	})
}

// keyIndex 取规范化键中的非时间索引部分
func keyIndex(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[i+1:]
		}
	}
	return key
}
