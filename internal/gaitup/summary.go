package gaitup

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ChannelSummary describes one non-empty channel of a series. Mean and StdDev
// are computed over the vector magnitude for inertial channels, the pressure
// for the barometer and the scaled value for radio samples.
type ChannelSummary struct {
	Channel string  `json:"channel"`
	Count   int     `json:"count"`
	Start   int64   `json:"start"`
	End     int64   `json:"end"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
}

// Summary returns a ChannelSummary for every channel holding samples.
func (s *DeviceTimeSeries) Summary() []ChannelSummary {
	var out []ChannelSummary
	if len(s.Accel) > 0 {
		out = append(out, inertialSummary(ChannelAccel, s.Accel))
	}
	if len(s.Gyro) > 0 {
		out = append(out, inertialSummary(ChannelGyro, s.Gyro))
	}
	if n := len(s.Baro); n > 0 {
		values := make([]float64, n)
		for i, v := range s.Baro {
			values[i] = v.Pressure
		}
		out = append(out, summarise(ChannelBaro, s.Baro[0].Time, s.Baro[n-1].Time, values))
	}
	if n := len(s.Button); n > 0 {
		out = append(out, ChannelSummary{
			Channel: ChannelButton.String(),
			Count:   n,
			Start:   s.Button[0].Time,
			End:     s.Button[n-1].Time,
		})
	}
	if n := len(s.Radio); n > 0 {
		values := make([]float64, n)
		for i, v := range s.Radio {
			values[i] = v.Value
		}
		out = append(out, summarise(ChannelRadio, s.Radio[0].Time, s.Radio[n-1].Time, values))
	}
	if n := len(s.BLE); n > 0 {
		values := make([]float64, n)
		for i, v := range s.BLE {
			values[i] = v.Value
		}
		out = append(out, summarise(ChannelBLE, s.BLE[0].Time, s.BLE[n-1].Time, values))
	}
	return out
}

func inertialSummary(c Channel, samples []InertialSample) ChannelSummary {
	values := make([]float64, len(samples))
	for i, v := range samples {
		values[i] = math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	}
	return summarise(c, samples[0].Time, samples[len(samples)-1].Time, values)
}

func summarise(c Channel, start, end int64, values []float64) ChannelSummary {
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}
	return ChannelSummary{
		Channel: c.String(),
		Count:   len(values),
		Start:   start,
		End:     end,
		Mean:    mean,
		StdDev:  std,
	}
}

// CountMismatch records a channel whose decoded sample count differs from the
// count announced in the configuration preamble.
type CountMismatch struct {
	Channel  Channel
	Expected uint32
	Got      int
}

func (m CountMismatch) String() string {
	return fmt.Sprintf("%s: expected %d samples, decoded %d", m.Channel, m.Expected, m.Got)
}

// CheckExpectedCounts compares decoded sample counts against the expected
// counts of active channels. Channels that announced no count are skipped.
func (s *DeviceTimeSeries) CheckExpectedCounts() []CountMismatch {
	var out []CountMismatch
	check := func(c Channel, active bool, expected uint32) {
		if !active || expected == 0 {
			return
		}
		if got := s.Len(c); got != int(expected) {
			out = append(out, CountMismatch{Channel: c, Expected: expected, Got: got})
		}
	}
	check(ChannelAccel, s.Config.Accel.Active, s.Config.Accel.ExpectedSamples)
	check(ChannelGyro, s.Config.Gyro.Active, s.Config.Gyro.ExpectedSamples)
	check(ChannelBaro, s.Config.Baro.Active, s.Config.Baro.ExpectedSamples)
	return out
}
