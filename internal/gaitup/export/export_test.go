package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/testutil"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	s := testutil.Device(9, 1, 3, 256)
	s.AppendBaro(gaitup.BaroSample{Time: 16, Pressure: 1013.25, Temperature: 21.5})
	s.AppendRadio(gaitup.RadioSample{Time: 20, RemoteCounter: 512, Value: 2})
	s.AppendButton(gaitup.ButtonSample{Time: 3})

	tests := []struct {
		c    gaitup.Channel
		want [][]string
	}{
		{gaitup.ChannelBaro, [][]string{{"t", "pressure", "temperature"}, {"16", "1013.25", "21.5"}}},
		{gaitup.ChannelRadio, [][]string{{"t", "remote_counter", "value"}, {"20", "512", "2"}}},
		{gaitup.ChannelButton, [][]string{{"t"}, {"3"}}},
		{gaitup.ChannelAccel, [][]string{{"t", "x", "y", "z"}}},
	}
	for _, tt := range tests {
		t.Run(tt.c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCSV(&buf, s, tt.c))
			rows, err := csv.NewReader(&buf).ReadAll()
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	master, _ := testutil.MasterSlavePair()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, master))

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, master.MinTime(), got.MinTime())
	assert.Equal(t, master.MaxTime(), got.MaxTime())
	if diff := cmp.Diff(master, got, cmpopts.IgnoreUnexported(gaitup.DeviceTimeSeries{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("JSON round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSONRejectsGarbage(t *testing.T) {
	_, err := ReadJSON(bytes.NewBufferString("{"))
	assert.Error(t, err)
}

func TestDirCSV(t *testing.T) {
	master, slave := testutil.MasterSlavePair()
	dir := t.TempDir()

	paths, err := Dir(dir, []*gaitup.DeviceTimeSeries{master, slave}, FormatCSV)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"master_accel.csv", "master_gyro.csv", "master_baro.csv", "master_button.csv",
		"slave_accel.csv", "slave_gyro.csv", "slave_baro.csv", "slave_button.csv", "slave_radio.csv",
	}, names)

	data, err := os.ReadFile(filepath.Join(dir, "slave_radio.csv"))
	require.NoError(t, err)
	assert.Equal(t, "t,remote_counter,value\n200,1200,4.6875\n456,1456,5.6875\n", string(data))
}

func TestDirJSONUnnamedDevice(t *testing.T) {
	s := testutil.Device(77, 0, 1, 128)
	s.AppendButton(gaitup.ButtonSample{Time: 1})

	paths, err := Dir(t.TempDir(), []*gaitup.DeviceTimeSeries{s}, FormatJSON)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "device_77.json", filepath.Base(paths[0]))
}

func TestDirKeepsDevicesWithSameFileName(t *testing.T) {
	left := testutil.Device(11, 0, 7, 256)
	left.Source = "a/rec.bin"
	left.AppendButton(gaitup.ButtonSample{Time: 1})
	right := testutil.Device(12, 1, 7, 256)
	right.Source = "b/rec.bin"
	right.AppendButton(gaitup.ButtonSample{Time: 2})

	dir := t.TempDir()
	paths, err := Dir(dir, []*gaitup.DeviceTimeSeries{left, right}, FormatJSON)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "rec_11.json", filepath.Base(paths[0]))
	assert.Equal(t, "rec_12.json", filepath.Base(paths[1]))

	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadJSON(f)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), got.Config.DeviceID)
}

func TestFileStems(t *testing.T) {
	named := func(id uint32, source string) *gaitup.DeviceTimeSeries {
		s := testutil.Device(id, 0, 0, 1)
		s.Source = source
		return s
	}
	tests := []struct {
		name   string
		series []*gaitup.DeviceTimeSeries
		want   []string
	}{
		{"distinct", []*gaitup.DeviceTimeSeries{named(1, "x.bin"), named(2, "y.bin")}, []string{"x", "y"}},
		{"same stem", []*gaitup.DeviceTimeSeries{named(1, "a/x.bin"), named(2, "b/x.bin"), named(3, "y.bin")}, []string{"x_1", "x_2", "y"}},
		{"same stem and id", []*gaitup.DeviceTimeSeries{named(0, "a/x.bin"), named(0, "b/x.bin")}, []string{"x_0_0", "x_0_1"}},
		{"unnamed twins", []*gaitup.DeviceTimeSeries{named(0, ""), named(0, "")}, []string{"device_0_0_0", "device_0_0_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileStems(tt.series))
		})
	}
}

func TestDirUnknownFormat(t *testing.T) {
	_, err := Dir(t.TempDir(), []*gaitup.DeviceTimeSeries{testutil.Device(1, 0, 0, 1)}, Format("xml"))
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"left foot.bin", "left_foot"},
		{"../../etc/passwd", "passwd"},
		{"S1 (wrist)#2.BIN", "S1_wrist_2"},
		{"...", "device_5"},
		{"", "device_5"},
	}
	for _, tt := range tests {
		s := testutil.Device(5, 0, 0, 1)
		s.Source = tt.source
		assert.Equal(t, tt.want, baseName(s), tt.source)
	}
}
