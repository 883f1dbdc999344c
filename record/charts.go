package record

import (
	"io"
	"log"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// Charts 曲线绘制
type Charts struct {
	Record
}

// Render 格式化
func (c *Charts) Render(w io.Writer) error {
	lineZ := c.newLine("浓度曲线", "组分浓度随时间变化曲线")
	lineX := c.newLine("状态曲线", "补充状态随时间变化曲线")
	lineD := c.newLine("导数曲线", "状态导数随时间变化曲线")

	c.fill(lineZ, c.Components, c.Conc)
	c.fill(lineX, c.States, c.State)
	c.fill(lineD, c.DerivStr, c.Deriv)

	page := components.NewPage()
	page.AddCharts(
		lineZ,
		lineX,
		lineD,
	)
	return page.Render(w)
}

// newLine 初始化界面
func (c *Charts) newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(true),
	)
	return line
}

// fill 按列填充序列数据
func (c *Charts) fill(line *charts.Line, names []string, rows [][]float64) {
	if len(names) == 0 || len(rows) == 0 {
		return
	}
	line.SetXAxis(c.Time)
	items := make([][]opts.LineData, 0)
	series := make([]charts.SingleSeries, 0)
	for i := range names {
		items = append(items, make([]opts.LineData, len(c.Time)))
		series = append(series, charts.SingleSeries{
			Name: names[i],
			Data: items[i],
			Type: types.ChartLine,
		})
		series[i].InitSeriesDefaultOpts(line.BaseConfiguration)
	}
	for i, row := range rows {
		for x, v := range row {
			if x < len(items) {
				items[x][i].Value = v
			}
		}
	}
	line.MultiSeries = series
}

// Handler 发布到网页面
func (c *Charts) Handler(w http.ResponseWriter, _ *http.Request) {
	c.Render(w)
}

func (c *Charts) Error(err error) { log.Println(err) }
