package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gaitsync/internal/config"
	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
	"github.com/banshee-data/gaitsync/internal/gaitup/timesync"
	"github.com/banshee-data/gaitsync/internal/monitoring"
	"github.com/banshee-data/gaitsync/internal/serialdump"
	"github.com/banshee-data/gaitsync/internal/timeutil"
)

type app struct {
	out     io.Writer
	cfgFile string
	cfg     *config.Config
	open    serialdump.Opener
}

func newApp(out io.Writer) *app {
	return &app{out: out, open: serialdump.OpenSerial}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "gaitsync",
		Short:             "Decode and synchronize wearable IMU recordings",
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (json, toml or yaml)")
	root.PersistentFlags().Int("sync_window", parse.DefaultSyncWindow, "bytes scanned for the next config frame marker")
	root.PersistentFlags().Bool("quiet", false, "suppress diagnostic logging")

	root.AddCommand(
		a.decodeCmd(),
		a.syncCmd(),
		a.importCmd(),
		a.sessionsCmd(),
		a.serveCmd(),
		a.downloadCmd(),
		a.versionCmd(),
	)
	return root
}

// loadConfig layers flags over GAITSYNC_* variables over the config file.
func (a *app) loadConfig(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if v.GetBool("quiet") {
		monitoring.SetLogger(nil)
	}
	if v.ConfigFileUsed() != "" {
		monitoring.Logf("using config file %s", v.ConfigFileUsed())
	}
	return nil
}

// decodeAll decodes paths in parallel and returns their series in order.
func (a *app) decodeAll(ctx context.Context, paths []string) ([]*parse.Recording, error) {
	return parse.DecodeFiles(ctx, paths, a.cfg.ParseOptions())
}

// synchronize decodes paths and aligns them on the master's timeline.
func (a *app) synchronize(ctx context.Context, paths []string) (*timesync.Result, error) {
	recs, err := a.decodeAll(ctx, paths)
	if err != nil {
		return nil, err
	}
	return timesync.Synchronize(parse.SeriesOf(recs)...)
}

func radioRole(s *gaitup.DeviceTimeSeries) string {
	switch {
	case !s.Config.Radio.Active:
		return "none"
	case s.Config.Radio.IsMaster():
		return "master"
	default:
		return "slave"
	}
}

func sourceName(s *gaitup.DeviceTimeSeries) string {
	if s.Source == "" {
		return fmt.Sprintf("device %d", s.Config.DeviceID)
	}
	return filepath.Base(s.Source)
}

// printSeries writes the per-channel summary table of s.
func printSeries(w io.Writer, s *gaitup.DeviceTimeSeries) {
	fmt.Fprintf(w, "%s: device=%d type=%d radio=%s channel=%d base=%dHz\n",
		sourceName(s), s.Config.DeviceID, s.Config.DeviceType, radioRole(s),
		s.Config.Radio.Channel, s.Config.BaseFrequency)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  channel\tcount\tstart\tend\tduration\tmean")
	for _, cs := range s.Summary() {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%s\t%.4f\n",
			cs.Channel, cs.Count, cs.Start, cs.End,
			timeutil.TicksToDuration(cs.End-cs.Start, s.Config.BaseFrequency), cs.Mean)
	}
	tw.Flush()
	for _, m := range s.CheckExpectedCounts() {
		fmt.Fprintf(w, "  warning: %s\n", m)
	}
}

// printResult writes the offsets and window of a synchronization.
func printResult(w io.Writer, res *timesync.Result) {
	bf := res.Plan.Master.Config.BaseFrequency
	fmt.Fprintf(w, "master: %s (device %d)\n", sourceName(res.Plan.Master), res.Plan.Master.Config.DeviceID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  device\tsource\toffset\tsamples")
	for _, s := range res.Plan.All() {
		n := 0
		for _, c := range gaitup.Channels {
			n += s.Len(c)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\n", s.Config.DeviceID, sourceName(s), res.Offsets[s.Config.DeviceID], n)
	}
	tw.Flush()
	fmt.Fprintf(w, "common window: 0..%d ticks (%s)\n", res.CommonEnd, timeutil.TicksToDuration(res.CommonEnd, bf))
}
