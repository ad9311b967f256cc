package gaitup

import "sort"

// InertialSample is one three-axis accelerometer or gyroscope reading.
type InertialSample struct {
	Time int64   `json:"t"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// BaroSample is one barometer reading (hPa, degrees Celsius).
type BaroSample struct {
	Time        int64   `json:"t"`
	Pressure    float64 `json:"pressure"`
	Temperature float64 `json:"temperature"`
}

// RadioSample pairs the local sample time with the counter broadcast by the
// master device. Value is the counter divided by the base frequency.
type RadioSample struct {
	Time          int64   `json:"t"`
	RemoteCounter int64   `json:"remote_counter"`
	Value         float64 `json:"value"`
}

// ButtonSample marks a button press.
type ButtonSample struct {
	Time int64 `json:"t"`
}

// BLESample is reserved; the BLE payload format is not decoded.
type BLESample struct {
	Time  int64   `json:"t"`
	Value float64 `json:"value"`
}

// DeviceTimeSeries owns every sample stream decoded from one device file.
// Samples arrive in time order and each slice stays sorted by Time.
//
// A DeviceTimeSeries is not safe for concurrent use: it is filled by a single
// decoder and only afterwards shifted and cropped by the synchronizer.
type DeviceTimeSeries struct {
	Config SensorConfig `json:"config"`
	Source string       `json:"source,omitempty"`

	Accel  []InertialSample `json:"accel"`
	Gyro   []InertialSample `json:"gyro"`
	Baro   []BaroSample     `json:"baro"`
	Button []ButtonSample   `json:"button"`
	Radio  []RadioSample    `json:"radio"`
	BLE    []BLESample      `json:"ble"`

	minTime    int64
	maxTime    int64
	hasSamples bool
}

// NewDeviceTimeSeries returns an empty series for the given configuration.
func NewDeviceTimeSeries(cfg SensorConfig) *DeviceTimeSeries {
	return &DeviceTimeSeries{Config: cfg}
}

// MinTime returns the earliest sample time across all channels, or 0 when the
// series is empty.
func (s *DeviceTimeSeries) MinTime() int64 { return s.minTime }

// MaxTime returns the latest sample time across all channels, or 0 when the
// series is empty.
func (s *DeviceTimeSeries) MaxTime() int64 { return s.maxTime }

// Empty reports whether no channel holds any sample.
func (s *DeviceTimeSeries) Empty() bool { return !s.hasSamples }

// Len returns the number of samples recorded on channel c.
func (s *DeviceTimeSeries) Len(c Channel) int {
	switch c {
	case ChannelAccel:
		return len(s.Accel)
	case ChannelGyro:
		return len(s.Gyro)
	case ChannelBaro:
		return len(s.Baro)
	case ChannelButton:
		return len(s.Button)
	case ChannelRadio:
		return len(s.Radio)
	case ChannelBLE:
		return len(s.BLE)
	}
	return 0
}

func (s *DeviceTimeSeries) observe(t int64) {
	if !s.hasSamples {
		s.minTime, s.maxTime, s.hasSamples = t, t, true
		return
	}
	if t < s.minTime {
		s.minTime = t
	}
	if t > s.maxTime {
		s.maxTime = t
	}
}

func (s *DeviceTimeSeries) AppendAccel(v InertialSample) {
	s.Accel = append(s.Accel, v)
	s.observe(v.Time)
}

func (s *DeviceTimeSeries) AppendGyro(v InertialSample) {
	s.Gyro = append(s.Gyro, v)
	s.observe(v.Time)
}

func (s *DeviceTimeSeries) AppendBaro(v BaroSample) {
	s.Baro = append(s.Baro, v)
	s.observe(v.Time)
}

func (s *DeviceTimeSeries) AppendButton(v ButtonSample) {
	s.Button = append(s.Button, v)
	s.observe(v.Time)
}

func (s *DeviceTimeSeries) AppendRadio(v RadioSample) {
	s.Radio = append(s.Radio, v)
	s.observe(v.Time)
}

func (s *DeviceTimeSeries) AppendBLE(v BLESample) {
	s.BLE = append(s.BLE, v)
	s.observe(v.Time)
}

// OffsetTime adds delta to every timestamp on every channel and recomputes the
// time bounds.
func (s *DeviceTimeSeries) OffsetTime(delta int64) {
	for i := range s.Accel {
		s.Accel[i].Time += delta
	}
	for i := range s.Gyro {
		s.Gyro[i].Time += delta
	}
	for i := range s.Baro {
		s.Baro[i].Time += delta
	}
	for i := range s.Button {
		s.Button[i].Time += delta
	}
	for i := range s.Radio {
		s.Radio[i].Time += delta
	}
	for i := range s.BLE {
		s.BLE[i].Time += delta
	}
	s.rescan()
}

// Crop keeps only samples with start <= Time <= end on every channel.
// Each channel is trimmed with two binary searches, so the cost is logarithmic
// in the channel length plus the copy-free reslice.
func (s *DeviceTimeSeries) Crop(start, end int64) {
	s.Accel = cropSorted(s.Accel, start, end, func(v InertialSample) int64 { return v.Time })
	s.Gyro = cropSorted(s.Gyro, start, end, func(v InertialSample) int64 { return v.Time })
	s.Baro = cropSorted(s.Baro, start, end, func(v BaroSample) int64 { return v.Time })
	s.Button = cropSorted(s.Button, start, end, func(v ButtonSample) int64 { return v.Time })
	s.Radio = cropSorted(s.Radio, start, end, func(v RadioSample) int64 { return v.Time })
	s.BLE = cropSorted(s.BLE, start, end, func(v BLESample) int64 { return v.Time })
	s.rescan()
}

func cropSorted[T any](samples []T, start, end int64, at func(T) int64) []T {
	if len(samples) == 0 {
		return samples
	}
	// lo: first sample not before start. hi: first sample after end.
	lo := sort.Search(len(samples), func(i int) bool { return at(samples[i]) >= start })
	hi := sort.Search(len(samples), func(i int) bool { return at(samples[i]) > end })
	if lo >= hi {
		return samples[:0]
	}
	return samples[lo:hi]
}

// rescan recomputes minTime/maxTime from the first and last sample of every
// non-empty channel.
func (s *DeviceTimeSeries) rescan() {
	s.hasSamples = false
	s.minTime, s.maxTime = 0, 0
	if n := len(s.Accel); n > 0 {
		s.observe(s.Accel[0].Time)
		s.observe(s.Accel[n-1].Time)
	}
	if n := len(s.Gyro); n > 0 {
		s.observe(s.Gyro[0].Time)
		s.observe(s.Gyro[n-1].Time)
	}
	if n := len(s.Baro); n > 0 {
		s.observe(s.Baro[0].Time)
		s.observe(s.Baro[n-1].Time)
	}
	if n := len(s.Button); n > 0 {
		s.observe(s.Button[0].Time)
		s.observe(s.Button[n-1].Time)
	}
	if n := len(s.Radio); n > 0 {
		s.observe(s.Radio[0].Time)
		s.observe(s.Radio[n-1].Time)
	}
	if n := len(s.BLE); n > 0 {
		s.observe(s.BLE[0].Time)
		s.observe(s.BLE[n-1].Time)
	}
}

// Rebuild recomputes the time bounds after the exported slices were replaced
// directly, for example when a series is loaded back from storage.
func (s *DeviceTimeSeries) Rebuild() {
	s.rescan()
}
