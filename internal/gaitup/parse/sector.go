package parse

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

/*
Sector payload layout

After the preamble the file is a sequence of fixed 512-byte sectors:

	├── sector id     u32 BE  (bookkeeping only)
	├── base time     u32 BE
	└── 63 records × 8 bytes, starting at offset 8
	    ├── byte 0      sensor id (matched against active channel ids)
	    ├── byte 1      sub-timestamp, added to the base time
	    └── bytes 2..7  payload

Payload by channel:
	accel/gyro  three i16 BE at 2,4,6; (raw*scale/32768 - offset) / gain
	baro        24-bit signed little-endian pressure at 2..4 / 4096 (hPa),
	            i16 BE temperature at 5..6 / 100 (°C)
	button      byte 2, expected to be 1
	radio       i32 BE remote counter at 2..5; value = counter / base frequency
	ble         not decoded, ErrUnsupportedChannel
*/

const (
	SectorSize       = 512
	SectorHeaderSize = 8
	RecordSize       = 8
	RecordsPerSector = (SectorSize - SectorHeaderSize) / RecordSize

	InertialFullScale = 32768.0
	PressureDivisor   = 4096.0
	TemperatureDiv    = 100.0
)

// SectorDecoder appends the records of successive sectors to a
// DeviceTimeSeries, interpreting them with the series' SensorConfig.
type SectorDecoder struct {
	series *gaitup.DeviceTimeSeries
	cfg    *gaitup.SensorConfig
	buf    [SectorSize]byte

	sectors       int
	skipped       int
	lastSectorID  uint32
	warnedZeroBF  bool
	buttonAnomaly int
	zeroGain      map[gaitup.Channel]int
}

// NewSectorDecoder returns a decoder that fills series.
func NewSectorDecoder(series *gaitup.DeviceTimeSeries) *SectorDecoder {
	return &SectorDecoder{series: series, cfg: &series.Config}
}

// Sectors returns the number of complete sectors decoded so far.
func (d *SectorDecoder) Sectors() int { return d.sectors }

// SkippedRecords returns how many records matched no active channel.
func (d *SectorDecoder) SkippedRecords() int { return d.skipped }

// Next decodes one sector. It returns false once the stream is exhausted; a
// trailing partial sector is logged and dropped.
func (d *SectorDecoder) Next(c *Cursor) (bool, error) {
	n, err := c.ReadInto(d.buf[:])
	if err != nil {
		if errors.Is(err, ErrUnexpectedEnd) {
			if n > 0 {
				monitoring.Logf("dropping partial sector of %d bytes after sector %d", n, d.sectors)
			}
			return false, nil
		}
		return false, err
	}
	if err := d.decodeSector(d.buf[:]); err != nil {
		return false, fmt.Errorf("sector %d at offset %d: %w", d.sectors, c.Position()-SectorSize, err)
	}
	d.sectors++
	return true, nil
}

// Run decodes sectors until the stream is exhausted.
func (d *SectorDecoder) Run(c *Cursor) error {
	for {
		ok, err := d.Next(c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (d *SectorDecoder) decodeSector(sector []byte) error {
	id := binary.BigEndian.Uint32(sector[0:4])
	base := int64(binary.BigEndian.Uint32(sector[4:8]))
	if d.sectors > 0 && id <= d.lastSectorID {
		monitoring.Logf("sector id %d does not follow %d", id, d.lastSectorID)
	}
	d.lastSectorID = id

	for off := SectorHeaderSize; off+RecordSize <= len(sector); off += RecordSize {
		if err := d.decodeRecord(sector[off:off+RecordSize], base); err != nil {
			return fmt.Errorf("record at sector offset %d: %w", off, err)
		}
	}
	return nil
}

func (d *SectorDecoder) decodeRecord(rec []byte, base int64) error {
	sensorID := rec[0]
	t := base + int64(rec[1])
	cfg := d.cfg

	switch {
	case cfg.Accel.Active && sensorID == cfg.Accel.ID:
		if d.usable(gaitup.ChannelAccel, &cfg.Accel) {
			d.series.AppendAccel(inertialSample(rec, t, &cfg.Accel))
		}
	case cfg.Gyro.Active && sensorID == cfg.Gyro.ID:
		if d.usable(gaitup.ChannelGyro, &cfg.Gyro) {
			d.series.AppendGyro(inertialSample(rec, t, &cfg.Gyro))
		}
	case cfg.Baro.Active && sensorID == cfg.Baro.ID:
		d.series.AppendBaro(baroSample(rec, t))
	case cfg.Button.Active && sensorID == cfg.Button.ID:
		if rec[2] != 1 {
			d.buttonAnomaly++
			monitoring.Logf("button record at t=%d carries value %d, expected 1", t, rec[2])
		}
		d.series.AppendButton(gaitup.ButtonSample{Time: t})
	case cfg.Radio.Active && sensorID == cfg.Radio.ID:
		d.series.AppendRadio(d.radioSample(rec, t))
	case cfg.BLE.Active && sensorID == cfg.BLE.ID:
		return fmt.Errorf("%w: BLE record at t=%d", ErrUnsupportedChannel, t)
	default:
		d.skipped++
	}
	return nil
}

// usable reports whether records of an inertial channel can be scaled. A zero
// gain would divide by zero, so such records are dropped and the channel is
// reported once.
func (d *SectorDecoder) usable(c gaitup.Channel, ch *gaitup.InertialConfig) bool {
	if ch.Gain[0] != 0 && ch.Gain[1] != 0 && ch.Gain[2] != 0 {
		return true
	}
	if d.zeroGain == nil {
		d.zeroGain = make(map[gaitup.Channel]int)
	}
	if d.zeroGain[c] == 0 {
		monitoring.Logf("%s calibration has a zero gain %v, dropping its records", c, ch.Gain)
	}
	d.zeroGain[c]++
	return false
}

// ZeroGainDropped returns how many records of channel c were dropped because
// its calibration has a zero gain.
func (d *SectorDecoder) ZeroGainDropped(c gaitup.Channel) int { return d.zeroGain[c] }

func inertialSample(rec []byte, t int64, ch *gaitup.InertialConfig) gaitup.InertialSample {
	var axes [3]float64
	for i := range axes {
		raw := float64(int16(binary.BigEndian.Uint16(rec[2+2*i : 4+2*i])))
		axes[i] = (raw*ch.Scale/InertialFullScale - ch.Offset[i]) / ch.Gain[i]
	}
	return gaitup.InertialSample{Time: t, X: axes[0], Y: axes[1], Z: axes[2]}
}

func baroSample(rec []byte, t int64) gaitup.BaroSample {
	raw := int32(uint32(rec[2]) | uint32(rec[3])<<8 | uint32(rec[4])<<16)
	if raw&0x800000 != 0 {
		raw -= 1 << 24
	}
	temp := int16(binary.BigEndian.Uint16(rec[5:7]))
	return gaitup.BaroSample{
		Time:        t,
		Pressure:    float64(raw) / PressureDivisor,
		Temperature: float64(temp) / TemperatureDiv,
	}
}

func (d *SectorDecoder) radioSample(rec []byte, t int64) gaitup.RadioSample {
	counter := int64(int32(binary.BigEndian.Uint32(rec[2:6])))
	s := gaitup.RadioSample{Time: t, RemoteCounter: counter}
	if bf := d.cfg.BaseFrequency; bf > 0 {
		s.Value = float64(counter) / float64(bf)
	} else if !d.warnedZeroBF {
		d.warnedZeroBF = true
		monitoring.Logf("base frequency is zero, radio values left unscaled at 0")
	}
	return s
}
