// Package timesync aligns several simultaneously worn devices on a single
// timeline using the radio beacon broadcast by the master device.
//
// Every device records the master's counter whenever it receives a beacon.
// Pairing a slave's local sample time with the counter it received gives the
// offset between the two clocks. The master is shifted so its first sample
// lands at 0, each slave is shifted into the master's timeline, and every
// series is cropped to the window all devices cover.
package timesync

import (
	"errors"
	"fmt"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

var (
	// ErrNoUniqueMaster reports that zero or several devices have radio mode 0.
	ErrNoUniqueMaster = errors.New("no unique master device")

	// ErrIncompatibleDevice reports a slave whose radio mode, radio channel or
	// base frequency does not fit the master, or two devices sharing an id.
	ErrIncompatibleDevice = errors.New("incompatible device")

	// ErrNoSyncData reports a device without the data needed to align it.
	ErrNoSyncData = errors.New("no synchronization data")

	// ErrNoOverlap reports aligned recordings that share no common window.
	ErrNoOverlap = errors.New("recordings do not overlap")
)

// Plan is the master and slave split of a device group.
type Plan struct {
	Master *gaitup.DeviceTimeSeries
	Slaves []*gaitup.DeviceTimeSeries
}

// All returns the master followed by the slaves.
func (p Plan) All() []*gaitup.DeviceTimeSeries {
	return append([]*gaitup.DeviceTimeSeries{p.Master}, p.Slaves...)
}

// Result describes a completed synchronization.
type Result struct {
	Plan Plan
	// Offsets holds the shift applied to each device, keyed by device id.
	Offsets map[uint32]int64
	// CommonEnd is the end of the shared window; it starts at 0.
	CommonEnd int64
}

// Synchronizer aligns one device group. It is created by NewSynchronizer,
// which validates the group before any series is touched.
type Synchronizer struct {
	plan Plan
	done bool
}

// NewSynchronizer selects the master and checks every slave against it.
// A single series is its own master regardless of its radio configuration.
func NewSynchronizer(series ...*gaitup.DeviceTimeSeries) (*Synchronizer, error) {
	plan, err := SelectMaster(series)
	if err != nil {
		return nil, err
	}
	return &Synchronizer{plan: plan}, nil
}

// Plan returns the master/slave split chosen at registration.
func (s *Synchronizer) Plan() Plan { return s.plan }

// SelectMaster splits series into a master and slaves and validates every
// slave against the master.
func SelectMaster(series []*gaitup.DeviceTimeSeries) (Plan, error) {
	switch len(series) {
	case 0:
		return Plan{}, fmt.Errorf("%w: no devices given", ErrNoUniqueMaster)
	case 1:
		return Plan{Master: series[0]}, nil
	}

	seen := make(map[uint32]int, len(series))
	for i, s := range series {
		id := s.Config.DeviceID
		if j, dup := seen[id]; dup {
			return Plan{}, fmt.Errorf("%w: recordings %d and %d both carry device id %d",
				ErrIncompatibleDevice, j, i, id)
		}
		seen[id] = i
	}

	masterIdx := -1
	for i, s := range series {
		if !s.Config.Radio.IsMaster() {
			continue
		}
		if masterIdx >= 0 {
			return Plan{}, fmt.Errorf("%w: devices %d and %d both have radio mode 0",
				ErrNoUniqueMaster, series[masterIdx].Config.DeviceID, s.Config.DeviceID)
		}
		masterIdx = i
	}
	if masterIdx < 0 {
		return Plan{}, fmt.Errorf("%w: none of %d devices has radio mode 0", ErrNoUniqueMaster, len(series))
	}

	plan := Plan{Master: series[masterIdx]}
	for i, s := range series {
		if i == masterIdx {
			continue
		}
		if err := checkSlave(plan.Master, s); err != nil {
			return Plan{}, err
		}
		plan.Slaves = append(plan.Slaves, s)
	}
	return plan, nil
}

func checkSlave(master, slave *gaitup.DeviceTimeSeries) error {
	m, s := master.Config, slave.Config
	switch {
	case s.Radio.IsMaster():
		return fmt.Errorf("%w: device %d has master radio mode", ErrIncompatibleDevice, s.DeviceID)
	case s.Radio.Channel != m.Radio.Channel:
		return fmt.Errorf("%w: device %d listens on radio channel %d, master %d uses %d",
			ErrIncompatibleDevice, s.DeviceID, s.Radio.Channel, m.DeviceID, m.Radio.Channel)
	case s.BaseFrequency != m.BaseFrequency:
		return fmt.Errorf("%w: device %d samples at %d Hz, master %d at %d Hz",
			ErrIncompatibleDevice, s.DeviceID, s.BaseFrequency, m.DeviceID, m.BaseFrequency)
	}
	return nil
}

// SlaveOffset returns the raw clock offset of a slave: the master counter
// carried by its first radio sample minus the local time it was received at.
func SlaveOffset(slave *gaitup.DeviceTimeSeries) (int64, error) {
	if len(slave.Radio) == 0 {
		return 0, fmt.Errorf("%w: device %d recorded no radio samples", ErrNoSyncData, slave.Config.DeviceID)
	}
	first := slave.Radio[0]
	return first.RemoteCounter - first.Time, nil
}

// Synchronize shifts every series onto the master timeline and crops them to
// the common window [0, CommonEnd]. All checks run before any series is
// modified, so on error every series is left untouched.
func (s *Synchronizer) Synchronize() (*Result, error) {
	if s.done {
		return nil, errors.New("synchronizer already ran")
	}
	master := s.plan.Master
	if master.Empty() {
		return nil, fmt.Errorf("%w: master device %d recorded no samples", ErrNoSyncData, master.Config.DeviceID)
	}

	origin := master.MinTime()
	shifts := make([]int64, 0, len(s.plan.Slaves)+1)
	shifts = append(shifts, -origin)
	for _, slave := range s.plan.Slaves {
		raw, err := SlaveOffset(slave)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, raw-origin)
	}

	all := s.plan.All()
	commonEnd := all[0].MaxTime() + shifts[0]
	for i, series := range all[1:] {
		if end := series.MaxTime() + shifts[i+1]; end < commonEnd {
			commonEnd = end
		}
	}
	if commonEnd < 0 {
		return nil, fmt.Errorf("%w: shared window ends at %d", ErrNoOverlap, commonEnd)
	}

	res := &Result{Plan: s.plan, Offsets: make(map[uint32]int64, len(all)), CommonEnd: commonEnd}
	for i, series := range all {
		series.OffsetTime(shifts[i])
		series.Crop(0, commonEnd)
		res.Offsets[series.Config.DeviceID] = shifts[i]
		monitoring.Logf("device %d shifted by %d, %d..%d after crop",
			series.Config.DeviceID, shifts[i], series.MinTime(), series.MaxTime())
	}
	s.done = true
	return res, nil
}

// Synchronize is a convenience wrapper running NewSynchronizer and
// Synchronize on one group.
func Synchronize(series ...*gaitup.DeviceTimeSeries) (*Result, error) {
	s, err := NewSynchronizer(series...)
	if err != nil {
		return nil, err
	}
	return s.Synchronize()
}
