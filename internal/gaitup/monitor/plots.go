package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

// PlotChannel builds a gonum plot with one line per device for channel c.
// It returns nil when no device has samples on c.
func PlotChannel(series []*gaitup.DeviceTimeSeries, c gaitup.Channel, maxPoints int) (*plot.Plot, error) {
	if !anySamples(series, c) {
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %d devices", c, len(series))
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = Unit(c)

	colors := generateColors(len(series))
	for i, s := range series {
		pts := ChannelPoints(s, c, maxPoints)
		if len(pts) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(pts))
		for j, pt := range pts {
			xys[j] = plotter.XY{X: pt.T, Y: pt.V}
		}

		if c == gaitup.ChannelButton {
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, err
			}
			sc.Color = colors[i]
			p.Add(sc)
			p.Legend.Add(seriesLabel(s), sc)
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(seriesLabel(s), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePNGs writes one PNG per channel into dir and returns the written paths.
// Channels without samples are skipped.
func SavePNGs(dir string, series []*gaitup.DeviceTimeSeries, channels []gaitup.Channel, maxPoints int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	var paths []string
	for _, c := range channels {
		p, err := PlotChannel(series, c, maxPoints)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", c, err)
		}
		if p == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s.png", c))
		if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save %s plot: %w", c, err)
		}
		paths = append(paths, path)
	}
	monitoring.Logf("wrote %d plots to %s", len(paths), dir)
	return paths, nil
}

// generateColors creates a palette of distinct colors, one per device.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
