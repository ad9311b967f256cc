package main

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
	"github.com/banshee-data/gaitsync/internal/gaitup/timesync"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

func TestGeneratedRecordingsSynchronize(t *testing.T) {
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)

	opts := genOptions{Devices: 3, Seconds: 4, BaseFrequency: 128, RadioChannel: 9, Seed: 42}
	paths, err := generate(t.TempDir(), opts)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	recs, err := parse.DecodeFiles(context.Background(), paths, parse.Options{})
	require.NoError(t, err)
	for _, rec := range recs {
		assert.Len(t, rec.Series.Accel, 4*128)
		assert.Equal(t, uint8(9), rec.Series.Config.Radio.Channel)
	}
	assert.Empty(t, recs[0].Series.Radio)
	assert.Len(t, recs[1].Series.Radio, 4)

	res, err := timesync.Synchronize(parse.SeriesOf(recs)...)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), res.Plan.Master.Config.DeviceID)
	assert.Equal(t, int64(4*128-1), res.CommonEnd)
	for _, s := range res.Plan.All() {
		assert.GreaterOrEqual(t, s.MinTime(), int64(0))
		assert.LessOrEqual(t, s.MaxTime(), res.CommonEnd)
	}
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	_, err := generate(t.TempDir(), genOptions{Devices: 0, BaseFrequency: 128})
	assert.Error(t, err)
	_, err = generate(t.TempDir(), genOptions{Devices: 1})
	assert.Error(t, err)
}
