package parse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

// Recording is the result of decoding one device file.
type Recording struct {
	Series         *gaitup.DeviceTimeSeries
	Frames         []Frame
	Sectors        int
	SkippedRecords int
}

// Decode reads the configuration preamble and then every sector from r.
func Decode(r io.ReadSeeker, opts Options) (*Recording, error) {
	c := NewCursor(r)
	cfg, frames, err := ParseConfig(c, opts)
	if err != nil {
		return nil, fmt.Errorf("config preamble: %w", err)
	}

	series := gaitup.NewDeviceTimeSeries(cfg)
	dec := NewSectorDecoder(series)
	if err := dec.Run(c); err != nil {
		return nil, fmt.Errorf("device %d: %w", cfg.DeviceID, err)
	}

	for _, m := range series.CheckExpectedCounts() {
		monitoring.Logf("device %d: %s", cfg.DeviceID, m)
	}

	return &Recording{
		Series:         series,
		Frames:         frames,
		Sectors:        dec.Sectors(),
		SkippedRecords: dec.SkippedRecords(),
	}, nil
}

// DecodeBytes decodes an in-memory recording.
func DecodeBytes(data []byte, opts Options) (*Recording, error) {
	return Decode(bytes.NewReader(data), opts)
}

// DecodeFile loads path into memory and decodes it. The series Source is set
// to the file's base name.
func DecodeFile(path string, opts Options) (*Recording, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	rec, err := DecodeBytes(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Series.Source = filepath.Base(path)
	monitoring.Logf("decoded %s: device=%d frames=%d sectors=%d accel=%d gyro=%d baro=%d radio=%d button=%d",
		rec.Series.Source, rec.Series.Config.DeviceID, len(rec.Frames), rec.Sectors,
		len(rec.Series.Accel), len(rec.Series.Gyro), len(rec.Series.Baro), len(rec.Series.Radio), len(rec.Series.Button))
	return rec, nil
}

// DecodeFiles decodes every path concurrently and returns the recordings in
// input order. The first failure cancels the remaining decodes.
func DecodeFiles(ctx context.Context, paths []string, opts Options) ([]*Recording, error) {
	out := make([]*Recording, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := DecodeFile(path, opts)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SeriesOf extracts the series from a set of recordings.
func SeriesOf(recs []*Recording) []*gaitup.DeviceTimeSeries {
	out := make([]*gaitup.DeviceTimeSeries, len(recs))
	for i, r := range recs {
		out[i] = r.Series
	}
	return out
}
