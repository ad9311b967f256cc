// Package monitor renders decoded and synchronized series for visual
// inspection: interactive HTML charts with go-echarts and static PNG plots
// with gonum/plot.
package monitor

import (
	"math"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/timeutil"
)

// Point is one plotted value at a time in seconds.
type Point struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// Unit returns the axis label for the value plotted for c.
func Unit(c gaitup.Channel) string {
	switch c {
	case gaitup.ChannelAccel:
		return "|a| (g)"
	case gaitup.ChannelGyro:
		return "|ω| (deg/s)"
	case gaitup.ChannelBaro:
		return "pressure (hPa)"
	case gaitup.ChannelRadio:
		return "master counter (s)"
	default:
		return "event"
	}
}

// ChannelPoints returns the plotted values of one channel, downsampled by
// stride so that at most maxPoints are returned (0 means no limit). Inertial
// channels plot the vector magnitude.
func ChannelPoints(s *gaitup.DeviceTimeSeries, c gaitup.Channel, maxPoints int) []Point {
	n := s.Len(c)
	if n == 0 {
		return nil
	}
	stride := 1
	if maxPoints > 0 && n > maxPoints {
		stride = int(math.Ceil(float64(n) / float64(maxPoints)))
	}

	freq := s.Config.BaseFrequency
	at := func(t int64) float64 { return timeutil.TicksToSeconds(t, freq) }

	out := make([]Point, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		var p Point
		switch c {
		case gaitup.ChannelAccel:
			v := s.Accel[i]
			p = Point{at(v.Time), math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)}
		case gaitup.ChannelGyro:
			v := s.Gyro[i]
			p = Point{at(v.Time), math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)}
		case gaitup.ChannelBaro:
			p = Point{at(s.Baro[i].Time), s.Baro[i].Pressure}
		case gaitup.ChannelButton:
			p = Point{at(s.Button[i].Time), 1}
		case gaitup.ChannelRadio:
			p = Point{at(s.Radio[i].Time), s.Radio[i].Value}
		case gaitup.ChannelBLE:
			p = Point{at(s.BLE[i].Time), s.BLE[i].Value}
		}
		out = append(out, p)
	}
	return out
}
