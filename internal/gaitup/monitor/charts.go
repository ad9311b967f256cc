package monitor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gaitsync/internal/gaitup"
)

// DefaultAssetsHost serves the echarts javascript bundle.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNothingToChart is returned by RenderPage when none of the requested
// channels holds samples.
var ErrNothingToChart = errors.New("no samples to chart")

// ChartOptions controls HTML chart rendering.
type ChartOptions struct {
	Title      string
	MaxPoints  int // per device and channel; defaults to 4000
	AssetsHost string
}

func (o ChartOptions) withDefaults() ChartOptions {
	if o.MaxPoints <= 0 {
		o.MaxPoints = 4000
	}
	if o.AssetsHost == "" {
		o.AssetsHost = DefaultAssetsHost
	}
	return o
}

// seriesLabel names a device in legends.
func seriesLabel(s *gaitup.DeviceTimeSeries) string {
	if s.Source != "" {
		return fmt.Sprintf("%d (%s)", s.Config.DeviceID, s.Source)
	}
	return fmt.Sprintf("%d", s.Config.DeviceID)
}

// ChannelChart builds a line chart with one line per device for channel c.
func ChannelChart(series []*gaitup.DeviceTimeSeries, c gaitup.Channel, o ChartOptions) *charts.Line {
	o = o.withDefaults()
	title := o.Title
	if title == "" {
		title = c.String()
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("channel=%s devices=%d", c, len(series))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: Unit(c), Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
	)

	for _, s := range series {
		pts := ChannelPoints(s, c, o.MaxPoints)
		data := make([]opts.LineData, len(pts))
		for i, p := range pts {
			data[i] = opts.LineData{Value: []interface{}{p.T, p.V}}
		}
		line.AddSeries(seriesLabel(s), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(c == gaitup.ChannelButton)}),
		)
	}
	return line
}

// RenderPage writes an HTML page holding one chart per channel that has
// samples on at least one device.
func RenderPage(w io.Writer, series []*gaitup.DeviceTimeSeries, channels []gaitup.Channel, o ChartOptions) error {
	o = o.withDefaults()
	page := components.NewPage()
	page.SetAssetsHost(o.AssetsHost)

	added := 0
	for _, c := range channels {
		if !anySamples(series, c) {
			continue
		}
		co := o
		co.Title = strings.TrimSpace(o.Title + " " + c.String())
		page.AddCharts(ChannelChart(series, c, co))
		added++
	}
	if added == 0 {
		return fmt.Errorf("%w on channels %v", ErrNothingToChart, channels)
	}
	return page.Render(w)
}

func anySamples(series []*gaitup.DeviceTimeSeries, c gaitup.Channel) bool {
	for _, s := range series {
		if s.Len(c) > 0 {
			return true
		}
	}
	return false
}
