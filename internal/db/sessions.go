package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/gaitup/timesync"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Session is one stored synchronization run.
type Session struct {
	ID             string       `json:"id"`
	Label          string       `json:"label"`
	ImportedAt     time.Time    `json:"imported_at"`
	MasterDeviceID uint32       `json:"master_device_id"`
	BaseFrequency  uint16       `json:"base_frequency"`
	CommonEnd      int64        `json:"common_end"`
	Devices        []DeviceInfo `json:"devices"`
}

// DeviceInfo describes one device of a session.
type DeviceInfo struct {
	Index    int                     `json:"index"`
	DeviceID uint32                  `json:"device_id"`
	Source   string                  `json:"source"`
	Offset   int64                   `json:"offset"`
	Master   bool                    `json:"master"`
	Channels []gaitup.ChannelSummary `json:"channels,omitempty"`
}

// SaveSession stores every series of a synchronization result under a new
// session id. The whole session is written in one transaction.
func (db *DB) SaveSession(ctx context.Context, label string, res *timesync.Result) (*Session, error) {
	if res == nil || res.Plan.Master == nil {
		return nil, errors.New("nothing to save: empty synchronization result")
	}
	master := res.Plan.Master.Config
	sess := &Session{
		ID:             uuid.NewString(),
		Label:          label,
		ImportedAt:     db.clock.Now().UTC(),
		MasterDeviceID: master.DeviceID,
		BaseFrequency:  master.BaseFrequency,
		CommonEnd:      res.CommonEnd,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, label, imported_unix, master_device_id, base_frequency, common_end)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Label, unixSeconds(sess.ImportedAt), sess.MasterDeviceID, sess.BaseFrequency, sess.CommonEnd,
	); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	insertSample, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (session_id, device_index, channel, t, v1, v2, v3) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer insertSample.Close()

	for i, series := range res.Plan.All() {
		cfgJSON, err := json.Marshal(series.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config of device %d: %w", series.Config.DeviceID, err)
		}
		info := DeviceInfo{
			Index:    i,
			DeviceID: series.Config.DeviceID,
			Source:   series.Source,
			Offset:   res.Offsets[series.Config.DeviceID],
			Master:   i == 0,
			Channels: series.Summary(),
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO devices (session_id, device_index, device_id, source, offset_ticks, is_master, config_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, info.Index, info.DeviceID, info.Source, info.Offset, info.Master, string(cfgJSON),
		); err != nil {
			return nil, fmt.Errorf("failed to insert device %d: %w", info.DeviceID, err)
		}
		if err := insertSeries(ctx, insertSample, sess.ID, i, series); err != nil {
			return nil, fmt.Errorf("failed to insert samples of device %d: %w", info.DeviceID, err)
		}
		for _, cs := range info.Channels {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO channel_summaries (session_id, device_index, channel, sample_count, start_t, end_t, mean, stddev)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sess.ID, info.Index, cs.Channel, cs.Count, cs.Start, cs.End, cs.Mean, cs.StdDev,
			); err != nil {
				return nil, fmt.Errorf("failed to insert %s summary of device %d: %w", cs.Channel, info.DeviceID, err)
			}
		}
		sess.Devices = append(sess.Devices, info)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

func insertSeries(ctx context.Context, stmt *sql.Stmt, sessionID string, index int, s *gaitup.DeviceTimeSeries) error {
	insert := func(c gaitup.Channel, t int64, v1, v2, v3 any) error {
		_, err := stmt.ExecContext(ctx, sessionID, index, c.String(), t, v1, v2, v3)
		return err
	}
	for _, v := range s.Accel {
		if err := insert(gaitup.ChannelAccel, v.Time, v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, v := range s.Gyro {
		if err := insert(gaitup.ChannelGyro, v.Time, v.X, v.Y, v.Z); err != nil {
			return err
		}
	}
	for _, v := range s.Baro {
		if err := insert(gaitup.ChannelBaro, v.Time, v.Pressure, v.Temperature, nil); err != nil {
			return err
		}
	}
	for _, v := range s.Button {
		if err := insert(gaitup.ChannelButton, v.Time, nil, nil, nil); err != nil {
			return err
		}
	}
	for _, v := range s.Radio {
		if err := insert(gaitup.ChannelRadio, v.Time, v.RemoteCounter, v.Value, nil); err != nil {
			return err
		}
	}
	for _, v := range s.BLE {
		if err := insert(gaitup.ChannelBLE, v.Time, v.Value, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// ListSessions returns all sessions, newest first, without device details.
func (db *DB) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, label, imported_unix, master_device_id, base_frequency, common_end
		FROM sessions ORDER BY imported_unix DESC, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s        Session
		imported float64
	)
	if err := row.Scan(&s.ID, &s.Label, &imported, &s.MasterDeviceID, &s.BaseFrequency, &s.CommonEnd); err != nil {
		return nil, err
	}
	s.ImportedAt = fromUnixSeconds(imported)
	return &s, nil
}

// GetSession returns a session with its devices and channel summaries.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(db.QueryRowContext(ctx,
		`SELECT session_id, label, imported_unix, master_device_id, base_frequency, common_end
		FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	devices, _, err := db.devices(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		summaries, err := db.channelSummaries(ctx, id, devices[i].Index)
		if err != nil {
			return nil, err
		}
		devices[i].Channels = summaries
	}
	s.Devices = devices
	return s, nil
}

// devices returns the devices of a session, master first, with their decoded
// configurations.
func (db *DB) devices(ctx context.Context, sessionID string) ([]DeviceInfo, []gaitup.SensorConfig, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT device_index, device_id, source, offset_ticks, is_master, config_json
		FROM devices WHERE session_id = ? ORDER BY device_index`, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		infos   []DeviceInfo
		configs []gaitup.SensorConfig
	)
	for rows.Next() {
		var (
			info    DeviceInfo
			cfgJSON string
			cfg     gaitup.SensorConfig
		)
		if err := rows.Scan(&info.Index, &info.DeviceID, &info.Source, &info.Offset, &info.Master, &cfgJSON); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to decode config of device %d: %w", info.DeviceID, err)
		}
		infos = append(infos, info)
		configs = append(configs, cfg)
	}
	return infos, configs, rows.Err()
}

func (db *DB) channelSummaries(ctx context.Context, sessionID string, index int) ([]gaitup.ChannelSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT channel, sample_count, start_t, end_t, mean, stddev
		FROM channel_summaries WHERE session_id = ? AND device_index = ? ORDER BY rowid`, sessionID, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gaitup.ChannelSummary
	for rows.Next() {
		var cs gaitup.ChannelSummary
		if err := rows.Scan(&cs.Channel, &cs.Count, &cs.Start, &cs.End, &cs.Mean, &cs.StdDev); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// LoadSeries rebuilds the synchronized series of a session, master first.
func (db *DB) LoadSeries(ctx context.Context, sessionID string) ([]*gaitup.DeviceTimeSeries, error) {
	if _, err := db.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	infos, configs, err := db.devices(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]*gaitup.DeviceTimeSeries, len(infos))
	for i, info := range infos {
		s := gaitup.NewDeviceTimeSeries(configs[i])
		s.Source = info.Source
		if err := db.loadSamples(ctx, sessionID, info.Index, s); err != nil {
			return nil, fmt.Errorf("failed to load samples of device %d: %w", info.DeviceID, err)
		}
		out[i] = s
	}
	return out, nil
}

func (db *DB) loadSamples(ctx context.Context, sessionID string, index int, s *gaitup.DeviceTimeSeries) error {
	rows, err := db.QueryContext(ctx,
		`SELECT channel, t, v1, v2, v3 FROM samples
		WHERE session_id = ? AND device_index = ? ORDER BY rowid`, sessionID, index)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name       string
			t          int64
			v1, v2, v3 sql.NullFloat64
		)
		if err := rows.Scan(&name, &t, &v1, &v2, &v3); err != nil {
			return err
		}
		c, ok := gaitup.ParseChannel(name)
		if !ok {
			return fmt.Errorf("unknown channel %q", name)
		}
		switch c {
		case gaitup.ChannelAccel:
			s.AppendAccel(gaitup.InertialSample{Time: t, X: v1.Float64, Y: v2.Float64, Z: v3.Float64})
		case gaitup.ChannelGyro:
			s.AppendGyro(gaitup.InertialSample{Time: t, X: v1.Float64, Y: v2.Float64, Z: v3.Float64})
		case gaitup.ChannelBaro:
			s.AppendBaro(gaitup.BaroSample{Time: t, Pressure: v1.Float64, Temperature: v2.Float64})
		case gaitup.ChannelButton:
			s.AppendButton(gaitup.ButtonSample{Time: t})
		case gaitup.ChannelRadio:
			s.AppendRadio(gaitup.RadioSample{Time: t, RemoteCounter: int64(v1.Float64), Value: v2.Float64})
		case gaitup.ChannelBLE:
			s.AppendBLE(gaitup.BLESample{Time: t, Value: v1.Float64})
		}
	}
	return rows.Err()
}

// DeleteSession removes a session and, by cascade, its devices and samples.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}
