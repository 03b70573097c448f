package temps

import (
	"fmt"
	"image/color"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const minutesPerDay = 24 * 60

// RenderPlot draws the day's samples to a PNG at path: one thick black line
// per CPU package and a thin gray line per core.
func RenderPlot(samples [][]float64, cpus, cores int, day time.Time, path string) error {
	p := plot.New()
	p.Title.Text = "CPU and core temperatures for " + day.Format("2006-01-02")
	p.X.Label.Text = "Hour"
	p.Y.Label.Text = "Temperature"
	p.X.Min = 0
	p.X.Max = minutesPerDay
	p.X.Tick.Marker = hourTicks()

	for cpu := 0; cpu < cpus; cpu++ {
		base := 3 + (cores+1)*cpu
		if err := addSeries(p, samples, base, color.Black, vg.Points(2)); err != nil {
			return err
		}
		for core := 0; core < cores; core++ {
			if err := addSeries(p, samples, base+1+core, color.Gray{Y: 0x80}, vg.Points(1)); err != nil {
				return err
			}
		}
	}

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

func hourTicks() plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, 0, 24)
	for h := 0; h < 24; h++ {
		ticks = append(ticks, plot.Tick{Value: float64(h * 60), Label: strconv.Itoa(h)})
	}
	return ticks
}

// series pairs the tot_min column with column col, skipping short rows.
func series(samples [][]float64, col int) plotter.XYs {
	var xys plotter.XYs
	for _, row := range samples {
		if len(row) <= col || len(row) < 3 {
			continue
		}
		xys = append(xys, plotter.XY{X: row[2], Y: row[col]})
	}
	return xys
}

func addSeries(p *plot.Plot, samples [][]float64, col int, c color.Color, width vg.Length) error {
	xys := series(samples, col)
	if len(xys) == 0 {
		return nil
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("plot column %d: %w", col, err)
	}
	line.Color = c
	line.Width = width
	p.Add(line)
	return nil
}
