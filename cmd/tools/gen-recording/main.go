// Command gen-recording writes a synthetic group of simultaneously worn
// devices: one radio master and several slaves whose clocks are offset from
// it, each receiving the master's beacon once per second.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
)

type genOptions struct {
	Devices       int
	Seconds       float64
	BaseFrequency uint16
	RadioChannel  uint8
	Seed          int64
}

func deviceConfig(id uint32, master bool, o genOptions, start time.Time) gaitup.SensorConfig {
	mode := uint8(1)
	if master {
		mode = 0
	}
	return gaitup.SensorConfig{
		DeviceID:      id,
		DeviceType:    1,
		BodyLocation:  uint8(id % 8),
		Version:       2,
		MajorVersion:  1,
		BaseFrequency: o.BaseFrequency,
		StartDate:     start,
		StopDate:      start.Add(time.Duration(o.Seconds * float64(time.Second))),
		Accel: gaitup.InertialConfig{
			Active: true, ID: 1, Frequency: o.BaseFrequency, ScaleCode: 3, Scale: gaitup.AccelScale(3),
			Gain: [3]float64{1, 1, 1}, PayloadLen: 6,
		},
		Gyro: gaitup.InertialConfig{
			Active: true, ID: 2, Frequency: o.BaseFrequency, ScaleCode: 2, Scale: gaitup.GyroScale(2),
			Gain: [3]float64{1, 1, 1}, PayloadLen: 6,
		},
		Baro:   gaitup.BaroConfig{Active: true, ID: 3, Frequency: 16, PayloadLen: 6},
		Button: gaitup.ButtonConfig{Active: true, ID: 4, PayloadLen: 6},
		Radio:  gaitup.RadioConfig{Active: true, ID: 5, PayloadLen: 6, Mode: mode, Channel: o.RadioChannel},
	}
}

// synthesize fills a series covering [start, start+n) local ticks. offset
// maps local time to the master's counter; beacons are only recorded by
// slaves.
func synthesize(cfg gaitup.SensorConfig, start, n, offset int64, rng *rand.Rand) *gaitup.DeviceTimeSeries {
	s := gaitup.NewDeviceTimeSeries(cfg)
	bf := int64(cfg.BaseFrequency)
	baroEvery := bf / int64(cfg.Baro.Frequency)
	if baroEvery < 1 {
		baroEvery = 1
	}
	stride := 2 * math.Pi * 0.9 / float64(bf)
	phase := rng.Float64() * 2 * math.Pi

	s.AppendButton(gaitup.ButtonSample{Time: start})
	for i := int64(0); i < n; i++ {
		t := start + i
		x := float64(i)*stride + phase
		noise := func() float64 { return rng.NormFloat64() * 0.01 }
		s.AppendAccel(gaitup.InertialSample{Time: t, X: 0.3*math.Sin(x) + noise(), Y: 0.1*math.Cos(2*x) + noise(), Z: 1 + 0.4*math.Sin(2*x) + noise()})
		s.AppendGyro(gaitup.InertialSample{Time: t, X: 120 * math.Cos(x), Y: 15 * math.Sin(2*x), Z: 5 * math.Sin(x)})
		if i%baroEvery == 0 {
			s.AppendBaro(gaitup.BaroSample{Time: t, Pressure: 1013.25 - float64(i)/float64(bf)*0.01, Temperature: 24 + rng.Float64()*0.2})
		}
		if !cfg.Radio.IsMaster() && i%bf == bf/2 {
			counter := t + offset
			s.AppendRadio(gaitup.RadioSample{Time: t, RemoteCounter: counter, Value: float64(counter) / float64(bf)})
		}
	}
	return s
}

// generate writes o.Devices recordings into dir and returns their paths.
// Device 1 is the master.
func generate(dir string, o genOptions) ([]string, error) {
	if o.Devices < 1 {
		return nil, fmt.Errorf("need at least one device, got %d", o.Devices)
	}
	if o.BaseFrequency == 0 {
		return nil, fmt.Errorf("base frequency must be positive")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(o.Seed))
	bf := int64(o.BaseFrequency)
	n := int64(o.Seconds * float64(bf))
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var paths []string
	for i := 0; i < o.Devices; i++ {
		master := i == 0
		id := uint32(1000 + i)
		localStart, offset := bf*2, int64(0)
		if !master {
			// Slaves power on shortly after the master; their clocks differ
			// from it by up to a minute.
			localStart = rng.Int63n(60 * bf)
			offset = bf*2 + rng.Int63n(bf) - localStart
		}

		cfg := deviceConfig(id, master, o, start)
		s := synthesize(cfg, localStart, n, offset, rng)

		path := filepath.Join(dir, fmt.Sprintf("device_%d.bin", id))
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		if err := parse.EncodeSeries(f, s); err != nil {
			f.Close()
			return paths, fmt.Errorf("%s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
		log.Printf("%s: device=%d master=%v start=%d offset=%d samples=%d", path, id, master, localStart, offset, len(s.Accel))
	}
	return paths, nil
}

func main() {
	dir := flag.String("o", "recordings", "output directory")
	devices := flag.Int("n", 3, "number of devices (the first is the master)")
	seconds := flag.Float64("s", 30, "recording length in seconds")
	freq := flag.Uint("f", 256, "base frequency in Hz")
	channel := flag.Uint("c", 7, "radio channel")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	paths, err := generate(*dir, genOptions{
		Devices:       *devices,
		Seconds:       *seconds,
		BaseFrequency: uint16(*freq),
		RadioChannel:  uint8(*channel),
		Seed:          *seed,
	})
	if err != nil {
		log.Fatalf("failed to generate recordings: %v", err)
	}
	log.Printf("✓ Created %d recordings in %s", len(paths), *dir)
}
