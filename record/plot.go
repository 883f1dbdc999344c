package record

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"kinetic/types"
)

// SavePNG 把浓度曲线输出为 PNG 图片
func (list *Record) SavePNG(path string) error {
	p := plot.New()
	p.Title.Text = "浓度曲线"
	p.X.Label.Text = "t"
	p.Y.Label.Text = list.names.Concentration
	p.Add(plotter.NewGrid())

	for i, name := range list.Components {
		xys := make(plotter.XYs, len(list.Time))
		for j, t := range list.Time {
			xys[j].X = t
			if i < len(list.Conc[j]) {
				xys[j].Y = list.Conc[j][i]
			}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	if len(list.Components) == 0 {
		return types.Configf("no component series recorded")
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
