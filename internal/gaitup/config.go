// Package gaitup holds the data model for decoded wearable inertial-sensor
// recordings: the per-device configuration read from the file preamble and the
// time series of physically scaled samples that follow it.
package gaitup

import "time"

// Channel identifies one of the sample streams a device can record.
type Channel int

const (
	ChannelAccel Channel = iota
	ChannelGyro
	ChannelBaro
	ChannelButton
	ChannelRadio
	ChannelBLE
)

// Channels lists every channel in storage order.
var Channels = []Channel{ChannelAccel, ChannelGyro, ChannelBaro, ChannelButton, ChannelRadio, ChannelBLE}

func (c Channel) String() string {
	switch c {
	case ChannelAccel:
		return "accel"
	case ChannelGyro:
		return "gyro"
	case ChannelBaro:
		return "baro"
	case ChannelButton:
		return "button"
	case ChannelRadio:
		return "radio"
	case ChannelBLE:
		return "ble"
	default:
		return "unknown"
	}
}

// ParseChannel maps a channel name back to its Channel value.
func ParseChannel(name string) (Channel, bool) {
	for _, c := range Channels {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// InertialConfig is the calibration for an accelerometer or gyroscope channel.
// Offset and Gain are stored on the device as fixed-point integers divided by
// 10000.
type InertialConfig struct {
	Active          bool       `json:"active"`
	ID              uint8      `json:"id"`
	Frequency       uint16     `json:"frequency"`
	ScaleCode       uint8      `json:"scale_code"`
	Scale           float64    `json:"scale"` // physical full-scale value (g or deg/s)
	Offset          [3]float64 `json:"offset"`
	Gain            [3]float64 `json:"gain"`
	PayloadLen      uint16     `json:"payload_len"`
	ExpectedSamples uint32     `json:"expected_samples"`
}

// BaroConfig describes the barometer channel.
type BaroConfig struct {
	Active          bool   `json:"active"`
	ID              uint8  `json:"id"`
	Frequency       uint16 `json:"frequency"`
	PayloadLen      uint16 `json:"payload_len"`
	ExpectedSamples uint32 `json:"expected_samples"`
}

// ButtonConfig describes the push-button event channel.
type ButtonConfig struct {
	Active     bool   `json:"active"`
	ID         uint8  `json:"id"`
	PayloadLen uint16 `json:"payload_len"`
}

// RadioConfig describes the inter-device radio beacon channel. A device with
// Mode 0 broadcasts the reference counter; every other mode listens on Channel.
type RadioConfig struct {
	Active     bool   `json:"active"`
	ID         uint8  `json:"id"`
	PayloadLen uint16 `json:"payload_len"`
	Mode       uint8  `json:"mode"`
	Channel    uint8  `json:"channel"`
}

// IsMaster reports whether the radio is configured as the broadcasting master.
func (r RadioConfig) IsMaster() bool {
	return r.Mode == 0
}

// BLEConfig describes the BLE beacon channel. Payload samples are not decoded.
type BLEConfig struct {
	Active         bool    `json:"active"`
	ID             uint8   `json:"id"`
	PayloadLen     uint16  `json:"payload_len"`
	FirstSync      [5]byte `json:"first_sync"`
	FirstTimestamp uint32  `json:"first_timestamp"`
	LastSync       [5]byte `json:"last_sync"`
	LastTimestamp  uint32  `json:"last_timestamp"`
}

// SensorConfig is built incrementally while the configuration preamble is
// parsed. Every channel stays inactive until its frame has been seen.
type SensorConfig struct {
	DeviceID     uint32 `json:"device_id"`
	DeviceType   uint8  `json:"device_type"`
	BodyLocation uint8  `json:"body_location"`

	Version      uint16 `json:"version"`
	MajorVersion uint16 `json:"major_version"`
	MinorVersion uint16 `json:"minor_version"`

	Accel  InertialConfig `json:"accel"`
	Gyro   InertialConfig `json:"gyro"`
	Baro   BaroConfig     `json:"baro"`
	Button ButtonConfig   `json:"button"`
	Radio  RadioConfig    `json:"radio"`
	BLE    BLEConfig      `json:"ble"`

	BaseFrequency uint16    `json:"base_frequency"`
	MeasureID     uint16    `json:"measure_id"`
	StartDate     time.Time `json:"start_date"`
	StopDate      time.Time `json:"stop_date"`
}

// AccelScale maps the accelerometer scale code to its full-scale range in g.
func AccelScale(code uint8) float64 {
	switch code {
	case 0:
		return 2
	case 1:
		return 16
	case 2:
		return 4
	case 3:
		return 8
	default:
		return 4
	}
}

// GyroScale maps the gyroscope scale code to its full-scale range in deg/s.
func GyroScale(code uint8) float64 {
	switch code {
	case 0:
		return 245
	case 1:
		return 500
	case 2:
		return 1000
	case 3:
		return 2000
	default:
		return 1000
	}
}
