package gaitup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSeries(t *testing.T) *DeviceTimeSeries {
	t.Helper()
	s := NewDeviceTimeSeries(SensorConfig{DeviceID: 7})
	for i := int64(0); i < 1000; i++ {
		s.AppendAccel(InertialSample{Time: 100 + i, X: 1})
	}
	for i := int64(0); i < 500; i++ {
		s.AppendGyro(InertialSample{Time: 100 + 2*i, Z: 1})
	}
	s.AppendBaro(BaroSample{Time: 50, Pressure: 1013})
	s.AppendBaro(BaroSample{Time: 1200, Pressure: 1012})
	s.AppendButton(ButtonSample{Time: 400})
	s.AppendRadio(RadioSample{Time: 150, RemoteCounter: 9150})
	return s
}

func TestAppendTracksBounds(t *testing.T) {
	s := NewDeviceTimeSeries(SensorConfig{})
	assert.True(t, s.Empty())

	s.AppendAccel(InertialSample{Time: 10})
	s.AppendBaro(BaroSample{Time: 5})
	s.AppendRadio(RadioSample{Time: 30})

	assert.False(t, s.Empty())
	assert.Equal(t, int64(5), s.MinTime())
	assert.Equal(t, int64(30), s.MaxTime())
}

func TestOffsetTimeRescansAllChannels(t *testing.T) {
	s := makeSeries(t)
	require.Equal(t, int64(50), s.MinTime())
	require.Equal(t, int64(1200), s.MaxTime())

	s.OffsetTime(-50)

	// The extremes live on the barometer, not the accelerometer.
	assert.Equal(t, int64(0), s.MinTime())
	assert.Equal(t, int64(1150), s.MaxTime())
	assert.Equal(t, int64(50), s.Accel[0].Time)
	assert.Equal(t, int64(100), s.Radio[0].Time)
	assert.Equal(t, int64(350), s.Button[0].Time)
}

func TestCropBounds(t *testing.T) {
	s := makeSeries(t)
	s.Crop(200, 700)

	for _, c := range Channels {
		if s.Len(c) == 0 {
			continue
		}
		assert.GreaterOrEqual(t, s.MinTime(), int64(200), c.String())
		assert.LessOrEqual(t, s.MaxTime(), int64(700), c.String())
	}
	require.Len(t, s.Accel, 501)
	assert.Equal(t, int64(200), s.Accel[0].Time)
	assert.Equal(t, int64(700), s.Accel[500].Time)
	assert.Len(t, s.Gyro, 251)
	assert.Empty(t, s.Baro)
	assert.Len(t, s.Button, 1)
	assert.Empty(t, s.Radio)
	assert.Equal(t, int64(200), s.MinTime())
	assert.Equal(t, int64(700), s.MaxTime())
}

func TestCropIsIdempotent(t *testing.T) {
	s := makeSeries(t)
	s.Crop(120, 900)

	before := *s
	before.Accel = append([]InertialSample(nil), s.Accel...)
	before.Gyro = append([]InertialSample(nil), s.Gyro...)

	s.Crop(120, 900)

	if diff := cmp.Diff(before.Accel, s.Accel); diff != "" {
		t.Errorf("accel changed on second crop (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Gyro, s.Gyro); diff != "" {
		t.Errorf("gyro changed on second crop (-before +after):\n%s", diff)
	}
	assert.Equal(t, before.MinTime(), s.MinTime())
	assert.Equal(t, before.MaxTime(), s.MaxTime())
}

func TestCropOutsideRangeEmptiesSeries(t *testing.T) {
	s := makeSeries(t)
	s.Crop(5000, 6000)

	assert.True(t, s.Empty())
	for _, c := range Channels {
		assert.Zero(t, s.Len(c), c.String())
	}
}

func TestCropInclusiveEdges(t *testing.T) {
	s := NewDeviceTimeSeries(SensorConfig{})
	for _, ts := range []int64{1, 2, 2, 3, 4} {
		s.AppendButton(ButtonSample{Time: ts})
	}
	s.Crop(2, 3)
	assert.Equal(t, []ButtonSample{{2}, {2}, {3}}, s.Button)
}

func TestChannelNames(t *testing.T) {
	for _, c := range Channels {
		got, ok := ParseChannel(c.String())
		require.True(t, ok)
		assert.Equal(t, c, got)
	}
	_, ok := ParseChannel("sonar")
	assert.False(t, ok)
}

func TestScaleCodes(t *testing.T) {
	tests := []struct {
		code  uint8
		accel float64
		gyro  float64
	}{
		{0, 2, 245},
		{1, 16, 500},
		{2, 4, 1000},
		{3, 8, 2000},
		{9, 4, 1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.accel, AccelScale(tt.code), "accel code %d", tt.code)
		assert.Equal(t, tt.gyro, GyroScale(tt.code), "gyro code %d", tt.code)
	}
}
