package record

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"kinetic/expr"
	"kinetic/react"
)

func TestRecordCapture(t *testing.T) {
	sys := react.NewSystem("ab", 0, 1)
	sys.AddComponent("A", 1.0)
	sys.AddComponent("B", 0.0)
	sys.AddParameter("k1", 1.0)
	sys.SetRate("A", func(r react.Refs) expr.Node {
		return expr.Negate(expr.Times(r.P("k1"), r.Z("A")))
	})
	sys.SetRate("B", func(r react.Refs) expr.Node {
		return expr.Times(r.P("k1"), r.Z("A"))
	})
	m, err := sys.BuildTarget(2, 2)
	if err != nil {
		t.Fatalf("构建模型失败: %s", err)
	}

	rec := &Record{}
	rec.Init(m, sys.Names())
	rec.Capture(m)

	if len(rec.Components) != 2 {
		t.Fatalf("组分序列数量不正确: %d", len(rec.Components))
	}
	if len(rec.Time) != 5 {
		t.Fatalf("时间点数量不正确: %d", len(rec.Time))
	}
	if len(rec.Conc) != 5 || len(rec.Conc[0]) != 2 {
		t.Fatalf("浓度列形状不正确: %d x %d", len(rec.Conc), len(rec.Conc[0]))
	}
	// 锚点初值
	if rec.Conc[0][0] != 1 {
		t.Errorf("锚点浓度不正确: %v", rec.Conc[0][0])
	}

	var buf bytes.Buffer
	if err := rec.Render(&buf); err != nil {
		t.Fatalf("JSON 输出失败: %s", err)
	}
	var back Record
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("JSON 解析失败: %s", err)
	}
	if len(back.Time) != 5 {
		t.Errorf("回读时间点数量不正确: %d", len(back.Time))
	}
}

func TestChartsRender(t *testing.T) {
	sys := react.NewSystem("ab", 0, 1)
	sys.AddComponent("A", 1.0)
	sys.AddParameter("k1", 1.0)
	sys.SetRate("A", func(r react.Refs) expr.Node {
		return expr.Negate(expr.Times(r.P("k1"), r.Z("A")))
	})
	m, err := sys.BuildTarget(2, 2)
	if err != nil {
		t.Fatalf("构建模型失败: %s", err)
	}

	c := &Charts{}
	c.Init(m, sys.Names())
	c.Capture(m)

	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		t.Fatalf("网页输出失败: %s", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("浓度曲线")) {
		t.Errorf("输出缺少浓度曲线标题")
	}

	path := filepath.Join(t.TempDir(), "ab.png")
	if err := c.SavePNG(path); err != nil {
		t.Fatalf("PNG 输出失败: %s", err)
	}
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		t.Errorf("PNG 文件未生成: %v", err)
	}
}
