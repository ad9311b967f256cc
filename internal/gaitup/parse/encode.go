package parse

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/gaitsync/internal/gaitup"
)

// paddingSensorID fills unused record slots. Devices never assign it.
const paddingSensorID = 0xFF

// AppendFrame appends one framed configuration record to dst.
func AppendFrame(dst []byte, class, id uint8, body []byte) []byte {
	dst = append(dst, SyncByte0, SyncByte1, class, id, uint8(len(body)))
	dst = append(dst, body...)
	return append(dst, TrailerByte0, TrailerByte1)
}

func fixedPoint(v float64) uint32 {
	return uint32(int32(math.Round(v * FixedPointScale)))
}

func encodeDate(t time.Time) []byte {
	b := make([]byte, 7)
	if t.IsZero() {
		return b
	}
	t = t.UTC()
	b[0], b[1], b[2] = uint8(t.Second()), uint8(t.Minute()), uint8(t.Hour())
	b[3], b[4] = uint8(t.Day()), uint8(t.Month())
	binary.BigEndian.PutUint16(b[5:], uint16(t.Year()))
	return b
}

func encodeInertial(ch gaitup.InertialConfig) []byte {
	b := make([]byte, 30)
	b[0] = ch.ID
	binary.BigEndian.PutUint16(b[1:], ch.Frequency)
	b[3] = ch.ScaleCode
	for i := 0; i < 3; i++ {
		binary.BigEndian.PutUint32(b[4+4*i:], fixedPoint(ch.Offset[i]))
		binary.BigEndian.PutUint32(b[16+4*i:], fixedPoint(ch.Gain[i]))
	}
	binary.BigEndian.PutUint16(b[28:], ch.PayloadLen)
	return b
}

func u16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func u32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

// EncodeConfig renders cfg as a configuration preamble. Only active channels
// are written, so decoding the result reproduces cfg.
func EncodeConfig(cfg gaitup.SensorConfig) []byte {
	var out []byte

	info := binary.BigEndian.AppendUint32(nil, cfg.DeviceID)
	out = AppendFrame(out, 1, 1, append(info, cfg.DeviceType, cfg.BodyLocation))

	fw := append(append(u16(cfg.Version), u16(cfg.MajorVersion)...), u16(cfg.MinorVersion)...)
	out = AppendFrame(out, 1, 2, fw)

	out = AppendFrame(out, 3, 0, encodeDate(cfg.StartDate))
	out = AppendFrame(out, 3, 8, u16(cfg.BaseFrequency))
	out = AppendFrame(out, 3, 21, u16(cfg.MeasureID))

	if cfg.Accel.Active {
		out = AppendFrame(out, 3, 2, encodeInertial(cfg.Accel))
		out = AppendFrame(out, 3, 11, u32(cfg.Accel.ExpectedSamples))
	}
	if cfg.Gyro.Active {
		out = AppendFrame(out, 3, 3, encodeInertial(cfg.Gyro))
		out = AppendFrame(out, 3, 12, u32(cfg.Gyro.ExpectedSamples))
	}
	if cfg.Baro.Active {
		b := append([]byte{cfg.Baro.ID}, u16(cfg.Baro.Frequency)...)
		out = AppendFrame(out, 3, 4, append(b, u16(cfg.Baro.PayloadLen)...))
		out = AppendFrame(out, 3, 13, u32(cfg.Baro.ExpectedSamples))
	}
	if cfg.Button.Active {
		out = AppendFrame(out, 3, 16, append([]byte{cfg.Button.ID}, u16(cfg.Button.PayloadLen)...))
	}
	if cfg.Radio.Active {
		b := append([]byte{cfg.Radio.ID}, u16(cfg.Radio.PayloadLen)...)
		out = AppendFrame(out, 3, 17, append(b, cfg.Radio.Mode, cfg.Radio.Channel))
	}
	if cfg.BLE.Active {
		b := append([]byte{cfg.BLE.ID}, u16(cfg.BLE.PayloadLen)...)
		b = append(b, cfg.BLE.FirstSync[:]...)
		b = append(b, u32(cfg.BLE.FirstTimestamp)...)
		b = append(b, cfg.BLE.LastSync[:]...)
		b = append(b, u32(cfg.BLE.LastTimestamp)...)
		out = AppendFrame(out, 3, 18, b)
	}
	out = AppendFrame(out, 3, 6, encodeDate(cfg.StopDate))
	return out
}

// InertialPayload inverts the sector conversion for one inertial reading.
// Values outside the configured full scale saturate.
func InertialPayload(ch gaitup.InertialConfig, x, y, z float64) [6]byte {
	var p [6]byte
	for i, v := range [3]float64{x, y, z} {
		raw := math.Round((v*ch.Gain[i] + ch.Offset[i]) * InertialFullScale / ch.Scale)
		raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
		binary.BigEndian.PutUint16(p[2*i:], uint16(int16(raw)))
	}
	return p
}

// BaroPayload encodes pressure (hPa) and temperature (°C).
func BaroPayload(pressure, temperature float64) [6]byte {
	var p [6]byte
	raw := int32(math.Round(pressure*PressureDivisor)) & 0xFFFFFF
	p[0], p[1], p[2] = byte(raw), byte(raw>>8), byte(raw>>16)
	binary.BigEndian.PutUint16(p[3:], uint16(int16(math.Round(temperature*TemperatureDiv))))
	return p
}

// RadioPayload encodes a received master counter.
func RadioPayload(counter int32) [6]byte {
	var p [6]byte
	binary.BigEndian.PutUint32(p[0:], uint32(counter))
	return p
}

// ButtonPayload encodes a button press.
func ButtonPayload() [6]byte {
	return [6]byte{1}
}

// SectorWriter packs time-ordered records into 512-byte sectors. A new
// sector is started whenever the current one is full or the next record is
// more than 255 ticks past the sector base time.
type SectorWriter struct {
	w      io.Writer
	buf    [SectorSize]byte
	slot   int
	open   bool
	nextID uint32
	base   int64
}

// NewSectorWriter returns a writer emitting sectors to w.
func NewSectorWriter(w io.Writer) *SectorWriter {
	return &SectorWriter{w: w}
}

// Record appends one record. Records must be written in time order.
func (sw *SectorWriter) Record(sensorID uint8, t int64, payload [6]byte) error {
	if t < 0 || t > math.MaxUint32 {
		return fmt.Errorf("record time %d out of range", t)
	}
	if sw.open && (sw.slot == RecordsPerSector || t-sw.base > math.MaxUint8) {
		if err := sw.Flush(); err != nil {
			return err
		}
	}
	if sw.open && t < sw.base {
		return fmt.Errorf("record time %d precedes sector base %d", t, sw.base)
	}
	if !sw.open {
		sw.start(t)
	}
	off := SectorHeaderSize + sw.slot*RecordSize
	sw.buf[off] = sensorID
	sw.buf[off+1] = uint8(t - sw.base)
	copy(sw.buf[off+2:off+RecordSize], payload[:])
	sw.slot++
	return nil
}

func (sw *SectorWriter) start(base int64) {
	for i := range sw.buf {
		sw.buf[i] = 0
	}
	for off := SectorHeaderSize; off < SectorSize; off += RecordSize {
		sw.buf[off] = paddingSensorID
	}
	binary.BigEndian.PutUint32(sw.buf[0:], sw.nextID)
	binary.BigEndian.PutUint32(sw.buf[4:], uint32(base))
	sw.nextID++
	sw.base = base
	sw.slot = 0
	sw.open = true
}

// Flush writes the pending sector, if any.
func (sw *SectorWriter) Flush() error {
	if !sw.open {
		return nil
	}
	sw.open = false
	if _, err := sw.w.Write(sw.buf[:]); err != nil {
		return fmt.Errorf("failed to write sector: %w", err)
	}
	return nil
}

type pendingRecord struct {
	sensorID uint8
	t        int64
	payload  [6]byte
}

// EncodeSeries writes s as a complete recording: the configuration preamble
// followed by every sample of the active channels packed into sectors in
// time order. BLE samples are not encodable and are rejected.
func EncodeSeries(w io.Writer, s *gaitup.DeviceTimeSeries) error {
	if len(s.BLE) > 0 {
		return fmt.Errorf("device %d: BLE samples cannot be encoded", s.Config.DeviceID)
	}
	if _, err := w.Write(EncodeConfig(s.Config)); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	cfg := s.Config
	recs := make([]pendingRecord, 0, len(s.Accel)+len(s.Gyro)+len(s.Baro)+len(s.Button)+len(s.Radio))
	if cfg.Accel.Active {
		for _, v := range s.Accel {
			recs = append(recs, pendingRecord{cfg.Accel.ID, v.Time, InertialPayload(cfg.Accel, v.X, v.Y, v.Z)})
		}
	}
	if cfg.Gyro.Active {
		for _, v := range s.Gyro {
			recs = append(recs, pendingRecord{cfg.Gyro.ID, v.Time, InertialPayload(cfg.Gyro, v.X, v.Y, v.Z)})
		}
	}
	if cfg.Baro.Active {
		for _, v := range s.Baro {
			recs = append(recs, pendingRecord{cfg.Baro.ID, v.Time, BaroPayload(v.Pressure, v.Temperature)})
		}
	}
	if cfg.Button.Active {
		for _, v := range s.Button {
			recs = append(recs, pendingRecord{cfg.Button.ID, v.Time, ButtonPayload()})
		}
	}
	if cfg.Radio.Active {
		for _, v := range s.Radio {
			recs = append(recs, pendingRecord{cfg.Radio.ID, v.Time, RadioPayload(int32(v.RemoteCounter))})
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].t < recs[j].t })

	sw := NewSectorWriter(w)
	for _, r := range recs {
		if err := sw.Record(r.sensorID, r.t, r.payload); err != nil {
			return fmt.Errorf("device %d: %w", cfg.DeviceID, err)
		}
	}
	return sw.Flush()
}
