package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"kinetic/expr"
)

// WriteStruct 将模型写成求解器中立的结构文件
// 第一行为头部，第二行为数据行 "<n_vars> <n_constraints>"，
// 之后逐行列出未固定单元与激活方程（调试用途，计数探针只读第二行）。
func (m *Model) WriteStruct(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "g0 1 1 0\t# problem %s\n", m.Name)

	var leaves []*expr.Leaf
	m.Vars(func(v *Var) {
		v.Each(func(_ string, l *expr.Leaf) {
			if !l.Fixed {
				leaves = append(leaves, l)
			}
		})
	})
	var rows []string
	m.Cons(func(c *Constraint) {
		c.Each(func(key string, it *ConItem) {
			if it.Active {
				rows = append(rows, c.Name+"["+key+"]")
			}
		})
	})

	fmt.Fprintf(bw, " %d %d\n", len(leaves), len(rows))
	for i, l := range leaves {
		fmt.Fprintf(bw, "v%d\t%s\n", i, l.Name)
	}
	for i, r := range rows {
		fmt.Fprintf(bw, "c%d\t%s\n", i, r)
	}
	return bw.Flush()
}

// ReconcileCounts 统计模型的变量数与方程数
// 将模型写入结构文件后读回第一条数据行解析 (n, m)。
func ReconcileCounts(m *Model) (nvar, meqn int, err error) {
	path := filepath.Join(os.TempDir(), m.Name+"_reconciled.stf")
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("structural file: %w", err)
	}
	if err := m.WriteStruct(f); err != nil {
		f.Close()
		return 0, 0, fmt.Errorf("structural file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, 0, fmt.Errorf("structural file: %w", err)
	}

	rf, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("structural file: %w", err)
	}
	defer rf.Close()
	return parseCounts(rf)
}

// parseCounts 解析结构文件的计数行
func parseCounts(r io.Reader) (nvar, meqn int, err error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return 0, 0, fmt.Errorf("structural file: missing header line")
	}
	if !sc.Scan() {
		return 0, 0, fmt.Errorf("structural file: missing counts line")
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("structural file: malformed counts line %q", sc.Text())
	}
	nvar, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("structural file: bad variable count: %w", err)
	}
	meqn, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("structural file: bad constraint count: %w", err)
	}
	return nvar, meqn, nil
}
