package parse

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

/*
Configuration preamble layout

A recording starts with a run of variable-length frames, each describing one
aspect of the device configuration:

	'P' '5' | class u8 | id u8 | size u8 | body (size bytes) | 0xFF 0xFE

The parser scans forward (within SyncWindow bytes) for the 'P','5' marker. When
no marker is found the preamble is over and the cursor is left where the scan
started; the sector payload begins there.

The trailer is a fixed sentinel, not a checksum over the body. A frame whose
trailer does not match is kept and flagged Valid=false.
*/

const (
	SyncByte0 = 'P'
	SyncByte1 = '5'

	TrailerByte0 = 0xFF
	TrailerByte1 = 0xFE

	// DefaultSyncWindow bounds the byte scan for the next frame marker.
	DefaultSyncWindow = 512

	// FrameOverhead is the number of bytes around a frame body:
	// 2 sync + class + id + size + 2 trailer.
	FrameOverhead = 7

	// FixedPointScale converts the on-device offset and gain integers.
	FixedPointScale = 10000.0
)

type frameKind int

const (
	frameRaw frameKind = iota
	frameDeviceInfo
	frameFirmware
	frameStartDate
	frameStopDate
	frameAccel
	frameGyro
	frameBaro
	frameBaseFrequency
	frameAccelCount
	frameGyroCount
	frameBaroCount
	frameButton
	frameRadio
	frameBLE
	frameMeasureID
)

func (k frameKind) String() string {
	switch k {
	case frameDeviceInfo:
		return "device-info"
	case frameFirmware:
		return "firmware"
	case frameStartDate:
		return "start-date"
	case frameStopDate:
		return "stop-date"
	case frameAccel:
		return "accel"
	case frameGyro:
		return "gyro"
	case frameBaro:
		return "baro"
	case frameBaseFrequency:
		return "base-frequency"
	case frameAccelCount:
		return "accel-count"
	case frameGyroCount:
		return "gyro-count"
	case frameBaroCount:
		return "baro-count"
	case frameButton:
		return "button"
	case frameRadio:
		return "radio"
	case frameBLE:
		return "ble"
	case frameMeasureID:
		return "measure-id"
	default:
		return "raw"
	}
}

type frameKey struct {
	class uint8
	id    uint8
}

// frameTable maps (class, id) to the frame decoder. Pairs not listed here are
// passed through as raw frames.
var frameTable = map[frameKey]frameKind{
	{1, 1}:  frameDeviceInfo,
	{1, 2}:  frameFirmware,
	{3, 0}:  frameStartDate,
	{3, 6}:  frameStopDate,
	{3, 2}:  frameAccel,
	{3, 3}:  frameGyro,
	{3, 4}:  frameBaro,
	{3, 8}:  frameBaseFrequency,
	{3, 11}: frameAccelCount,
	{3, 12}: frameGyroCount,
	{3, 13}: frameBaroCount,
	{3, 16}: frameButton,
	{3, 17}: frameRadio,
	{3, 18}: frameBLE,
	{3, 21}: frameMeasureID,
}

// frameSizes is the exact body length each known frame kind must declare.
var frameSizes = map[frameKind]uint8{
	frameDeviceInfo:    6,
	frameFirmware:      6,
	frameStartDate:     7,
	frameStopDate:      7,
	frameAccel:         30,
	frameGyro:          30,
	frameBaro:          5,
	frameBaseFrequency: 2,
	frameAccelCount:    4,
	frameGyroCount:     4,
	frameBaroCount:     4,
	frameButton:        3,
	frameRadio:         5,
	frameBLE:           21,
	frameMeasureID:     2,
}

// Frame is one decoded preamble record.
type Frame struct {
	Offset int64 // stream offset of the sync marker
	Class  uint8
	ID     uint8
	Size   uint8
	Kind   string
	Valid  bool   // trailer matched 0xFF,0xFE
	Raw    []byte // body of frames without a decoder
}

// Options controls decoding.
type Options struct {
	// SyncWindow bounds the scan for the next frame marker. Zero means
	// DefaultSyncWindow.
	SyncWindow int
}

func (o Options) syncWindow() int {
	if o.SyncWindow <= 0 {
		return DefaultSyncWindow
	}
	return o.SyncWindow
}

// NextFrame reads the next configuration frame from c and applies it to cfg.
// It returns (nil, nil) when no frame marker is found within the sync window,
// leaving the cursor where the scan started.
func NextFrame(cfg *gaitup.SensorConfig, c *Cursor, opts Options) (*Frame, error) {
	start := c.Position()
	found, err := scanSync(c, opts.syncWindow())
	if err != nil {
		return nil, err
	}
	if !found {
		if err := c.Seek(start); err != nil {
			return nil, err
		}
		return nil, nil
	}

	f := &Frame{Offset: c.Position() - 2}
	if f.Class, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("frame header at %d: %w", f.Offset, err)
	}
	if f.ID, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("frame header at %d: %w", f.Offset, err)
	}
	if f.Size, err = c.ReadUint8(); err != nil {
		return nil, fmt.Errorf("frame header at %d: %w", f.Offset, err)
	}

	kind, known := frameTable[frameKey{f.Class, f.ID}]
	f.Kind = kind.String()
	if known && f.Size != frameSizes[kind] {
		return nil, fmt.Errorf("%w: %s frame %d.%d at offset %d declares %d bytes, expected %d",
			ErrMalformedFrame, kind, f.Class, f.ID, f.Offset, f.Size, frameSizes[kind])
	}

	body, err := c.ReadBytes(int(f.Size))
	if err != nil {
		return nil, fmt.Errorf("frame %d.%d body: %w", f.Class, f.ID, err)
	}
	if known {
		if err := decodeFrameBody(cfg, kind, body); err != nil {
			return nil, fmt.Errorf("frame %d.%d at offset %d: %w", f.Class, f.ID, f.Offset, err)
		}
	} else {
		f.Raw = body
	}

	trailer, err := c.ReadBytes(2)
	if err != nil {
		return nil, fmt.Errorf("frame %d.%d trailer: %w", f.Class, f.ID, err)
	}
	f.Valid = trailer[0] == TrailerByte0 && trailer[1] == TrailerByte1
	return f, nil
}

// scanSync consumes bytes until the 'P','5' marker has been read or window
// bytes have been examined. End of stream is reported as not found.
func scanSync(c *Cursor, window int) (bool, error) {
	var prev byte
	for i := 0; i < window; i++ {
		b, err := c.ReadUint8()
		if err != nil {
			if errors.Is(err, ErrUnexpectedEnd) {
				return false, nil
			}
			return false, err
		}
		if i > 0 && prev == SyncByte0 && b == SyncByte1 {
			return true, nil
		}
		prev = b
	}
	return false, nil
}

// decodeFrameBody applies a known frame to cfg. The body length has already
// been checked against frameSizes; the decoder must consume all of it.
func decodeFrameBody(cfg *gaitup.SensorConfig, kind frameKind, body []byte) error {
	r := NewBytesCursor(body)
	var err error
	switch kind {
	case frameDeviceInfo:
		err = decodeDeviceInfo(cfg, r)
	case frameFirmware:
		err = decodeFirmware(cfg, r)
	case frameStartDate, frameStopDate:
		var d time.Time
		if d, err = decodeDate(r); err == nil {
			if kind == frameStartDate {
				cfg.StartDate = d
			} else {
				cfg.StopDate = d
			}
		}
	case frameAccel:
		err = decodeInertial(&cfg.Accel, r, gaitup.AccelScale)
	case frameGyro:
		err = decodeInertial(&cfg.Gyro, r, gaitup.GyroScale)
	case frameBaro:
		err = decodeBaro(&cfg.Baro, r)
	case frameBaseFrequency:
		cfg.BaseFrequency, err = r.ReadUint16()
	case frameAccelCount, frameGyroCount, frameBaroCount:
		var n uint32
		if n, err = r.ReadUint32(); err == nil {
			switch kind {
			case frameAccelCount:
				cfg.Accel.ExpectedSamples = n
			case frameGyroCount:
				cfg.Gyro.ExpectedSamples = n
			case frameBaroCount:
				cfg.Baro.ExpectedSamples = n
			}
		}
	case frameButton:
		err = decodeButton(&cfg.Button, r)
	case frameRadio:
		err = decodeRadio(&cfg.Radio, r)
	case frameBLE:
		err = decodeBLE(&cfg.BLE, r)
	case frameMeasureID:
		cfg.MeasureID, err = r.ReadUint16()
	}
	if err != nil {
		if errors.Is(err, ErrUnexpectedEnd) {
			return fmt.Errorf("%w: %s body too short: %v", ErrMalformedFrame, kind, err)
		}
		return err
	}
	if consumed := r.Position(); consumed != int64(len(body)) {
		return fmt.Errorf("%w: %s decoder consumed %d of %d bytes", ErrMalformedFrame, kind, consumed, len(body))
	}
	return nil
}

func decodeDeviceInfo(cfg *gaitup.SensorConfig, r *Cursor) error {
	var err error
	if cfg.DeviceID, err = r.ReadUint32(); err != nil {
		return err
	}
	if cfg.DeviceType, err = r.ReadUint8(); err != nil {
		return err
	}
	cfg.BodyLocation, err = r.ReadUint8()
	return err
}

func decodeFirmware(cfg *gaitup.SensorConfig, r *Cursor) error {
	var err error
	if cfg.Version, err = r.ReadUint16(); err != nil {
		return err
	}
	if cfg.MajorVersion, err = r.ReadUint16(); err != nil {
		return err
	}
	cfg.MinorVersion, err = r.ReadUint16()
	return err
}

// decodeDate reads second, minute, hour, day, month and a two-byte year. An
// all-zero date (day or month unset) yields the zero time.
func decodeDate(r *Cursor) (time.Time, error) {
	b, err := r.ReadBytes(5)
	if err != nil {
		return time.Time{}, err
	}
	year, err := r.ReadUint16()
	if err != nil {
		return time.Time{}, err
	}
	second, minute, hour, day, month := b[0], b[1], b[2], b[3], b[4]
	if day == 0 || month == 0 {
		return time.Time{}, nil
	}
	return time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC), nil
}

func decodeInertial(ch *gaitup.InertialConfig, r *Cursor, scale func(uint8) float64) error {
	var err error
	if ch.ID, err = r.ReadUint8(); err != nil {
		return err
	}
	if ch.Frequency, err = r.ReadUint16(); err != nil {
		return err
	}
	if ch.ScaleCode, err = r.ReadUint8(); err != nil {
		return err
	}
	ch.Scale = scale(ch.ScaleCode)
	for i := range ch.Offset {
		v, err := r.ReadInt32()
		if err != nil {
			return err
		}
		ch.Offset[i] = float64(v) / FixedPointScale
	}
	for i := range ch.Gain {
		v, err := r.ReadInt32()
		if err != nil {
			return err
		}
		ch.Gain[i] = float64(v) / FixedPointScale
	}
	if ch.PayloadLen, err = r.ReadUint16(); err != nil {
		return err
	}
	ch.Active = true
	return nil
}

func decodeBaro(ch *gaitup.BaroConfig, r *Cursor) error {
	var err error
	if ch.ID, err = r.ReadUint8(); err != nil {
		return err
	}
	if ch.Frequency, err = r.ReadUint16(); err != nil {
		return err
	}
	if ch.PayloadLen, err = r.ReadUint16(); err != nil {
		return err
	}
	ch.Active = true
	return nil
}

func decodeButton(ch *gaitup.ButtonConfig, r *Cursor) error {
	var err error
	if ch.ID, err = r.ReadUint8(); err != nil {
		return err
	}
	if ch.PayloadLen, err = r.ReadUint16(); err != nil {
		return err
	}
	ch.Active = true
	return nil
}

func decodeRadio(ch *gaitup.RadioConfig, r *Cursor) error {
	var err error
	if ch.ID, err = r.ReadUint8(); err != nil {
		return err
	}
	if ch.PayloadLen, err = r.ReadUint16(); err != nil {
		return err
	}
	if ch.Mode, err = r.ReadUint8(); err != nil {
		return err
	}
	if ch.Channel, err = r.ReadUint8(); err != nil {
		return err
	}
	ch.Active = true
	return nil
}

func decodeBLE(ch *gaitup.BLEConfig, r *Cursor) error {
	var err error
	if ch.ID, err = r.ReadUint8(); err != nil {
		return err
	}
	if ch.PayloadLen, err = r.ReadUint16(); err != nil {
		return err
	}
	if _, err = r.ReadInto(ch.FirstSync[:]); err != nil {
		return err
	}
	if ch.FirstTimestamp, err = r.ReadUint32(); err != nil {
		return err
	}
	if _, err = r.ReadInto(ch.LastSync[:]); err != nil {
		return err
	}
	if ch.LastTimestamp, err = r.ReadUint32(); err != nil {
		return err
	}
	ch.Active = true
	return nil
}

// ParseConfig consumes the configuration preamble and returns the resulting
// SensorConfig with every frame seen. On return the cursor sits at the start
// of the sector payload.
func ParseConfig(c *Cursor, opts Options) (gaitup.SensorConfig, []Frame, error) {
	var cfg gaitup.SensorConfig
	var frames []Frame
	for {
		f, err := NextFrame(&cfg, c, opts)
		if err != nil {
			if errors.Is(err, ErrUnexpectedEnd) {
				monitoring.Logf("config preamble truncated after %d frames: %v", len(frames), err)
				break
			}
			return cfg, frames, err
		}
		if f == nil {
			break
		}
		if !f.Valid {
			monitoring.Logf("frame %d.%d (%s) at offset %d has an invalid trailer", f.Class, f.ID, f.Kind, f.Offset)
		}
		if f.Raw != nil {
			monitoring.Logf("unknown frame %d.%d at offset %d: % x", f.Class, f.ID, f.Offset, f.Raw)
		}
		frames = append(frames, *f)
	}
	return cfg, frames, nil
}
