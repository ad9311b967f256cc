// Package export writes decoded series to JSON and per-channel CSV files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/gaitsync/internal/gaitup"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
}

// WriteJSON writes s, configuration included, as indented JSON.
func WriteJSON(w io.Writer, s *gaitup.DeviceTimeSeries) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadJSON reads a series written by WriteJSON and restores its time bounds.
func ReadJSON(r io.Reader) (*gaitup.DeviceTimeSeries, error) {
	var s gaitup.DeviceTimeSeries
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	s.Rebuild()
	return &s, nil
}

// ChannelHeader returns the CSV header row for channel c.
func ChannelHeader(c gaitup.Channel) []string {
	switch c {
	case gaitup.ChannelAccel, gaitup.ChannelGyro:
		return []string{"t", "x", "y", "z"}
	case gaitup.ChannelBaro:
		return []string{"t", "pressure", "temperature"}
	case gaitup.ChannelRadio:
		return []string{"t", "remote_counter", "value"}
	case gaitup.ChannelBLE:
		return []string{"t", "value"}
	default:
		return []string{"t"}
	}
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
func fi(v int64) string   { return strconv.FormatInt(v, 10) }

// WriteCSV writes one channel of s as CSV, times in ticks.
func WriteCSV(w io.Writer, s *gaitup.DeviceTimeSeries, c gaitup.Channel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ChannelHeader(c)); err != nil {
		return err
	}

	var row []string
	for i, n := 0, s.Len(c); i < n; i++ {
		switch c {
		case gaitup.ChannelAccel:
			v := s.Accel[i]
			row = []string{fi(v.Time), ff(v.X), ff(v.Y), ff(v.Z)}
		case gaitup.ChannelGyro:
			v := s.Gyro[i]
			row = []string{fi(v.Time), ff(v.X), ff(v.Y), ff(v.Z)}
		case gaitup.ChannelBaro:
			v := s.Baro[i]
			row = []string{fi(v.Time), ff(v.Pressure), ff(v.Temperature)}
		case gaitup.ChannelButton:
			row = []string{fi(s.Button[i].Time)}
		case gaitup.ChannelRadio:
			v := s.Radio[i]
			row = []string{fi(v.Time), fi(v.RemoteCounter), ff(v.Value)}
		case gaitup.ChannelBLE:
			v := s.BLE[i]
			row = []string{fi(v.Time), ff(v.Value)}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// safeName keeps ASCII letters, digits, '.', '_' and '-', collapsing every
// other run of characters into one underscore.
func safeName(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "._")
}

// baseName derives the output file stem for s.
func baseName(s *gaitup.DeviceTimeSeries) string {
	stem := safeName(strings.TrimSuffix(filepath.Base(s.Source), filepath.Ext(s.Source)))
	if s.Source == "" || stem == "" {
		return fmt.Sprintf("device_%d", s.Config.DeviceID)
	}
	return stem
}

// fileStems returns one output stem per series. Stems shared by several
// series get the device id appended, then the position in series if they
// still collide.
func fileStems(series []*gaitup.DeviceTimeSeries) []string {
	stems := make([]string, len(series))
	count := make(map[string]int, len(series))
	for i, s := range series {
		stems[i] = baseName(s)
		count[stems[i]]++
	}
	for i, s := range series {
		if count[stems[i]] > 1 {
			stems[i] = fmt.Sprintf("%s_%d", stems[i], s.Config.DeviceID)
		}
	}
	taken := make(map[string]int, len(series))
	for _, stem := range stems {
		taken[stem]++
	}
	for i, stem := range stems {
		if taken[stem] > 1 {
			stems[i] = fmt.Sprintf("%s_%d", stem, i)
		}
	}
	return stems
}

// Dir writes every series into dir and returns the created paths. JSON
// writes one <name>.json per device; CSV writes <name>_<channel>.csv for each
// channel holding samples. Names are unique within one call.
func Dir(dir string, series []*gaitup.DeviceTimeSeries, format Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var paths []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	stems := fileStems(series)
	for i, s := range series {
		base := stems[i]
		switch format {
		case FormatJSON:
			if err := write(base+".json", func(w io.Writer) error { return WriteJSON(w, s) }); err != nil {
				return paths, err
			}
		case FormatCSV:
			for _, c := range gaitup.Channels {
				if s.Len(c) == 0 {
					continue
				}
				err := write(fmt.Sprintf("%s_%s.csv", base, c), func(w io.Writer) error { return WriteCSV(w, s, c) })
				if err != nil {
					return paths, err
				}
			}
		default:
			return paths, fmt.Errorf("unknown export format %q", format)
		}
	}
	return paths, nil
}
