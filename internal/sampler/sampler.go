// Package sampler acquires short fixed-length traces of a measurement
// parameter and renders them for shift checks.
package sampler

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"spectroctl/internal/controls"
)

// A trace is 100 readings at 0.1 s spacing, nominally 10 s. The x-axis is
// drawn over that nominal window, not wall-clock corrected.
const (
	DefaultCount    = 100
	DefaultInterval = 100 * time.Millisecond
	windowSeconds   = 10.0
)

// Collector polls one parameter at a fixed interval.
type Collector struct {
	Client   controls.ParameterClient
	Count    int
	Interval time.Duration
}

// New returns a collector with the standard 100-sample, 0.1 s trace shape.
func New(client controls.ParameterClient) *Collector {
	return &Collector{Client: client, Count: DefaultCount, Interval: DefaultInterval}
}

// Collect reads the parameter exactly Count times, sleeping Interval between
// reads, and returns the ordered trace. Any read failure aborts the trace.
func (c *Collector) Collect(ctx context.Context, param string) (Series, error) {
	readings := make([]float64, 0, c.Count)
	for i := 0; i < c.Count; i++ {
		v, err := c.Client.GetParameter(ctx, param)
		if err != nil {
			return Series{}, fmt.Errorf("sample %d/%d of %s: %w", i+1, c.Count, param, err)
		}
		f, ok := v.AsFloat()
		if !ok {
			return Series{}, fmt.Errorf("sample %d/%d of %s: non-numeric reading", i+1, c.Count, param)
		}
		readings = append(readings, f)

		if i < c.Count-1 && c.Interval > 0 {
			t := time.NewTimer(c.Interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return Series{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	return Series{Param: param, Readings: readings}, nil
}

// Series is one ordered measurement trace.
type Series struct {
	Param    string
	Readings []float64
}

// Mean returns the arithmetic mean of the trace, 0 for an empty trace.
func (s Series) Mean() float64 {
	if len(s.Readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range s.Readings {
		sum += r
	}
	return sum / float64(len(s.Readings))
}

// RenderPNG draws the trace over the nominal 0-10 s window with a horizontal
// mean-reference line and labeled axes. A positive yBand pins the y-range to
// mean +/- yBand amps. The image format follows the file extension.
func (s Series) RenderPNG(path string, yBand float64) error {
	if len(s.Readings) == 0 {
		return fmt.Errorf("render %s: empty trace", s.Param)
	}
	mean := s.Mean()

	den := float64(len(s.Readings) - 1)
	if den == 0 {
		den = 1
	}
	pts := make(plotter.XYs, len(s.Readings))
	for i, r := range s.Readings {
		pts[i].X = windowSeconds * float64(i) / den
		pts[i].Y = r
	}

	p := plot.New()
	p.Title.Text = s.Param
	p.X.Label.Text = "Time [s]"
	p.Y.Label.Text = "Current [A]"
	p.X.Min = 0
	p.X.Max = windowSeconds
	if yBand > 0 {
		p.Y.Min = mean - yBand
		p.Y.Max = mean + yBand
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("build trace plot: %w", err)
	}
	p.Add(line, points)

	meanLine, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: mean},
		{X: windowSeconds, Y: mean},
	})
	if err != nil {
		return fmt.Errorf("build mean line: %w", err)
	}
	meanLine.LineStyle.Color = color.RGBA{R: 0xcc, A: 0xff}
	meanLine.LineStyle.Width = vg.Points(1.5)
	p.Add(meanLine)
	p.Legend.Add(fmt.Sprintf("mean %.3f A", mean), meanLine)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
