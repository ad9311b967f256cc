package parse

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitsync/internal/gaitup"
)

// testConfig returns a fully populated configuration with every channel
// active except BLE.
func testConfig() gaitup.SensorConfig {
	return gaitup.SensorConfig{
		DeviceID:      4242,
		DeviceType:    3,
		BodyLocation:  7,
		Version:       2,
		MajorVersion:  5,
		MinorVersion:  11,
		BaseFrequency: 256,
		MeasureID:     19,
		StartDate:     time.Date(2024, time.March, 14, 9, 26, 53, 0, time.UTC),
		StopDate:      time.Date(2024, time.March, 14, 10, 2, 7, 0, time.UTC),
		Accel: gaitup.InertialConfig{
			Active: true, ID: 1, Frequency: 128, ScaleCode: 3, Scale: 8,
			Offset:          [3]float64{0.0123, -0.0456, 0.0001},
			Gain:            [3]float64{1.0021, 0.9987, 1.0003},
			PayloadLen:      6,
			ExpectedSamples: 4,
		},
		Gyro: gaitup.InertialConfig{
			Active: true, ID: 2, Frequency: 128, ScaleCode: 1, Scale: 500,
			Offset:          [3]float64{0.5, -0.25, 1.125},
			Gain:            [3]float64{1, 1, 1},
			PayloadLen:      6,
			ExpectedSamples: 2,
		},
		Baro:   gaitup.BaroConfig{Active: true, ID: 3, Frequency: 16, PayloadLen: 5, ExpectedSamples: 1},
		Button: gaitup.ButtonConfig{Active: true, ID: 4, PayloadLen: 1},
		Radio:  gaitup.RadioConfig{Active: true, ID: 5, PayloadLen: 4, Mode: 0, Channel: 12},
	}
}

func TestEncodeConfigRoundTrip(t *testing.T) {
	want := testConfig()
	want.BLE = gaitup.BLEConfig{
		Active: true, ID: 6, PayloadLen: 20,
		FirstSync: [5]byte{1, 2, 3, 4, 5}, FirstTimestamp: 1000,
		LastSync: [5]byte{6, 7, 8, 9, 10}, LastTimestamp: 99000,
	}

	c := NewBytesCursor(EncodeConfig(want))
	got, frames, err := ParseConfig(c, Options{})
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-4)); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	for _, f := range frames {
		assert.True(t, f.Valid, "frame %d.%d", f.Class, f.ID)
		assert.Nil(t, f.Raw, "frame %d.%d", f.Class, f.ID)
	}
	assert.Equal(t, int64(len(EncodeConfig(want))), c.Position())
}

func TestNextFrameConsumesSizePlusOverhead(t *testing.T) {
	for key, kind := range frameTable {
		size := frameSizes[kind]
		body := make([]byte, size)
		data := AppendFrame(nil, key.class, key.id, body)
		data = append(data, 0x00, 0x00, 0x00) // trailing payload bytes

		c := NewBytesCursor(data)
		var cfg gaitup.SensorConfig
		f, err := NextFrame(&cfg, c, Options{})
		require.NoError(t, err, "frame %d.%d", key.class, key.id)
		require.NotNil(t, f)
		assert.Equal(t, int64(size)+FrameOverhead, c.Position(), "frame %s", kind)
		assert.True(t, f.Valid)
		assert.Equal(t, kind.String(), f.Kind)
	}
}

func TestNextFrameUnknownIsPassedThrough(t *testing.T) {
	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	c := NewBytesCursor(AppendFrame(nil, 9, 77, body))

	var cfg gaitup.SensorConfig
	f, err := NextFrame(&cfg, c, Options{})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "raw", f.Kind)
	assert.Equal(t, body, f.Raw)
	assert.Equal(t, int64(len(body)+FrameOverhead), c.Position())
	assert.Equal(t, gaitup.SensorConfig{}, cfg)
}

func TestNextFrameSizeMismatchIsMalformed(t *testing.T) {
	tests := []struct {
		name      string
		class, id uint8
		size      int
	}{
		{"accel too short", 3, 2, 29},
		{"accel too long", 3, 2, 31},
		{"device info", 1, 1, 5},
		{"radio", 3, 17, 4},
		{"ble", 3, 18, 20},
		{"sample count", 3, 12, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBytesCursor(AppendFrame(nil, tt.class, tt.id, make([]byte, tt.size)))
			var cfg gaitup.SensorConfig
			_, err := NextFrame(&cfg, c, Options{})
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestNextFrameNoSyncLeavesCursor(t *testing.T) {
	data := make([]byte, 600)
	for i := range data {
		data[i] = 0x11
	}
	c := NewBytesCursor(data)
	require.NoError(t, c.Seek(10))

	var cfg gaitup.SensorConfig
	f, err := NextFrame(&cfg, c, Options{})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, int64(10), c.Position())

	// Short stream without a marker also ends cleanly.
	c = NewBytesCursor([]byte{'P'})
	f, err = NextFrame(&cfg, c, Options{})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, int64(0), c.Position())
}

func TestNextFrameSyncWindow(t *testing.T) {
	junk := make([]byte, 100)
	frame := AppendFrame(nil, 3, 21, []byte{0x00, 0x2A})
	data := append(junk, frame...)

	var cfg gaitup.SensorConfig
	f, err := NextFrame(&cfg, NewBytesCursor(data), Options{})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(100), f.Offset)
	assert.Equal(t, uint16(42), cfg.MeasureID)

	cfg = gaitup.SensorConfig{}
	f, err = NextFrame(&cfg, NewBytesCursor(data), Options{SyncWindow: 64})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Zero(t, cfg.MeasureID)
}

func TestNextFrameInvalidTrailer(t *testing.T) {
	data := AppendFrame(nil, 3, 8, []byte{0x01, 0x00})
	data[len(data)-1] = 0x00

	var cfg gaitup.SensorConfig
	f, err := NextFrame(&cfg, NewBytesCursor(data), Options{})
	require.NoError(t, err)
	assert.False(t, f.Valid)
	assert.Equal(t, uint16(256), cfg.BaseFrequency)
}

func TestNextFrameTruncated(t *testing.T) {
	data := AppendFrame(nil, 3, 2, make([]byte, 30))
	data = data[:20]

	var cfg gaitup.SensorConfig
	_, err := NextFrame(&cfg, NewBytesCursor(data), Options{})
	assert.ErrorIs(t, err, ErrUnexpectedEnd)

	// ParseConfig treats a truncated preamble as its end.
	good := AppendFrame(nil, 3, 21, []byte{0x00, 0x07})
	got, frames, err := ParseConfig(NewBytesCursor(append(good, data...)), Options{})
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, uint16(7), got.MeasureID)
}

func TestUnknownScaleCodeFallsBack(t *testing.T) {
	accel := gaitup.InertialConfig{Active: true, ID: 1, ScaleCode: 42, Gain: [3]float64{1, 1, 1}}
	gyro := gaitup.InertialConfig{Active: true, ID: 2, ScaleCode: 200, Gain: [3]float64{1, 1, 1}}
	data := AppendFrame(nil, 3, 2, encodeInertial(accel))
	data = AppendFrame(data, 3, 3, encodeInertial(gyro))

	cfg, frames, err := ParseConfig(NewBytesCursor(data), Options{})
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	assert.Equal(t, 4.0, cfg.Accel.Scale)
	assert.Equal(t, 1000.0, cfg.Gyro.Scale)
	assert.True(t, cfg.Accel.Active)
	assert.True(t, cfg.Gyro.Active)
}

func TestChannelsInactiveUntilFrameSeen(t *testing.T) {
	data := AppendFrame(nil, 1, 1, []byte{0, 0, 0, 9, 1, 2})
	cfg, _, err := ParseConfig(NewBytesCursor(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint32(9), cfg.DeviceID)
	assert.False(t, cfg.Accel.Active)
	assert.False(t, cfg.Gyro.Active)
	assert.False(t, cfg.Baro.Active)
	assert.False(t, cfg.Button.Active)
	assert.False(t, cfg.Radio.Active)
	assert.False(t, cfg.BLE.Active)
}

func TestZeroDateDecodesToZeroTime(t *testing.T) {
	data := AppendFrame(nil, 3, 0, make([]byte, 7))
	cfg, _, err := ParseConfig(NewBytesCursor(data), Options{})
	require.NoError(t, err)
	assert.True(t, cfg.StartDate.IsZero())
}
