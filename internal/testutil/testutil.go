// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Device returns an empty series whose radio uses the given mode and channel.
// Accel, gyro, baro, button and radio are active with ids 1 to 5.
func Device(id uint32, radioMode, radioChannel uint8, baseFrequency uint16) *gaitup.DeviceTimeSeries {
	cfg := gaitup.SensorConfig{
		DeviceID:      id,
		DeviceType:    1,
		BaseFrequency: baseFrequency,
		Accel:         gaitup.InertialConfig{Active: true, ID: 1, Frequency: baseFrequency, ScaleCode: 3, Scale: 8, Gain: [3]float64{1, 1, 1}, PayloadLen: 6},
		Gyro:          gaitup.InertialConfig{Active: true, ID: 2, Frequency: baseFrequency, ScaleCode: 2, Scale: 1000, Gain: [3]float64{1, 1, 1}, PayloadLen: 6},
		Baro:          gaitup.BaroConfig{Active: true, ID: 3, Frequency: 16, PayloadLen: 6},
		Button:        gaitup.ButtonConfig{Active: true, ID: 4, PayloadLen: 6},
		Radio:         gaitup.RadioConfig{Active: true, ID: 5, PayloadLen: 6, Mode: radioMode, Channel: radioChannel},
	}
	return gaitup.NewDeviceTimeSeries(cfg)
}

// FillWalk appends accel and gyro samples every step ticks over [from, to],
// a baro sample every 16 steps and a button press at from.
func FillWalk(s *gaitup.DeviceTimeSeries, from, to, step int64) {
	s.AppendButton(gaitup.ButtonSample{Time: from})
	for i, ts := 0, from; ts <= to; i, ts = i+1, ts+step {
		phase := float64(i) / 10
		s.AppendAccel(gaitup.InertialSample{Time: ts, X: math.Sin(phase), Y: math.Cos(phase), Z: 1})
		s.AppendGyro(gaitup.InertialSample{Time: ts, X: 90 * math.Cos(phase), Y: 0, Z: -10})
		if i%16 == 0 {
			s.AppendBaro(gaitup.BaroSample{Time: ts, Pressure: 1013.25 - float64(i)/1000, Temperature: 24.5})
		}
	}
}

// MasterSlavePair returns two unsynchronized recordings on radio channel 7
// at 256 Hz. The slave clock runs 1000 ticks behind the master; the master
// covers [1000, 5000] and the slave [0, 3496].
func MasterSlavePair() (master, slave *gaitup.DeviceTimeSeries) {
	master = Device(100, 0, 7, 256)
	master.Source = "master.bin"
	FillWalk(master, 1000, 5000, 8)

	slave = Device(200, 1, 7, 256)
	slave.Source = "slave.bin"
	FillWalk(slave, 0, 3500, 8)
	slave.AppendRadio(gaitup.RadioSample{Time: 200, RemoteCounter: 1200, Value: 1200.0 / 256})
	slave.AppendRadio(gaitup.RadioSample{Time: 456, RemoteCounter: 1456, Value: 1456.0 / 256})
	return master, slave
}

// EncodeRecording renders s as a recording file body.
func EncodeRecording(t *testing.T, s *gaitup.DeviceTimeSeries) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := parse.EncodeSeries(&buf, s); err != nil {
		t.Fatalf("encode recording: %v", err)
	}
	return buf.Bytes()
}

// WriteRecording writes s into dir under its Source name and returns the path.
func WriteRecording(t *testing.T, dir string, s *gaitup.DeviceTimeSeries) string {
	t.Helper()
	path := filepath.Join(dir, s.Source)
	if err := os.WriteFile(path, EncodeRecording(t, s), 0644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}
