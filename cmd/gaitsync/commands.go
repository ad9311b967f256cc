package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gaitsync/internal/db"
	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/gaitup/export"
	"github.com/banshee-data/gaitsync/internal/gaitup/monitor"
	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
	"github.com/banshee-data/gaitsync/internal/version"
)

// exportFlags holds the --export and --format options shared by decode and sync.
type exportFlags struct {
	dir    string
	format string
}

func (e *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&e.dir, "export", "", "write series into this directory")
	cmd.Flags().StringVar(&e.format, "format", "json", "export format: json or csv")
}

func (e *exportFlags) write(cmd *cobra.Command, series []*gaitup.DeviceTimeSeries) error {
	if e.dir == "" {
		return nil
	}
	format, err := export.ParseFormat(e.format)
	if err != nil {
		return err
	}
	paths, err := export.Dir(e.dir, series, format)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
	}
	return nil
}

func (a *app) decodeCmd() *cobra.Command {
	var ef exportFlags
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode recordings and print their configuration and channel summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.decodeAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				printSeries(a.out, rec.Series)
				fmt.Fprintf(a.out, "  frames=%d sectors=%d skipped=%d\n", len(rec.Frames), rec.Sectors, rec.SkippedRecords)
			}
			return ef.write(cmd, parse.SeriesOf(recs))
		},
	}
	ef.register(cmd)
	return cmd
}

func (a *app) syncCmd() *cobra.Command {
	var (
		ef        exportFlags
		htmlPath  string
		maxPoints int
	)
	cmd := &cobra.Command{
		Use:   "sync FILE...",
		Short: "Align recordings on the master's radio timeline",
		Long: "Decodes every file, picks the device with radio mode 0 as master, shifts\n" +
			"each slave into the master's timeline and crops all devices to the\n" +
			"common window.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.synchronize(cmd.Context(), args)
			if err != nil {
				return err
			}
			printResult(a.out, res)

			series := res.Plan.All()
			if err := ef.write(cmd, series); err != nil {
				return err
			}
			if a.cfg.PlotsDir != "" {
				paths, err := monitor.SavePNGs(a.cfg.PlotsDir, series, gaitup.Channels, maxPoints)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintf(a.out, "wrote %s\n", p)
				}
			}
			if htmlPath != "" {
				f, err := os.Create(htmlPath)
				if err != nil {
					return err
				}
				if err := monitor.RenderPage(f, series, gaitup.Channels, monitor.ChartOptions{MaxPoints: maxPoints}); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "wrote %s\n", htmlPath)
			}
			return nil
		},
	}
	ef.register(cmd)
	cmd.Flags().String("plots_dir", "", "write one PNG per channel into this directory")
	cmd.Flags().StringVar(&htmlPath, "html", "", "write an interactive chart page to this file")
	cmd.Flags().IntVar(&maxPoints, "max_points", 4000, "points per device and channel in plots")
	return cmd
}

func (a *app) openDB() (*db.DB, error) {
	d, err := db.NewDB(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", a.cfg.DBPath, err)
	}
	return d, nil
}

func (a *app) importCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Synchronize recordings and store them as a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.synchronize(cmd.Context(), args)
			if err != nil {
				return err
			}
			d, err := a.openDB()
			if err != nil {
				return err
			}
			defer d.Close()

			sess, err := d.SaveSession(cmd.Context(), label, res)
			if err != nil {
				return err
			}
			printResult(a.out, res)
			fmt.Fprintf(a.out, "imported session %s (%d devices)\n", sess.ID, len(sess.Devices))
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "session label")
	cmd.Flags().String("db_path", "", "sessions database")
	return cmd
}

func (a *app) sessionsCmd() *cobra.Command {
	var deleteID string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.openDB()
			if err != nil {
				return err
			}
			defer d.Close()

			if deleteID != "" {
				if err := d.DeleteSession(cmd.Context(), deleteID); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "deleted session %s\n", deleteID)
				return nil
			}

			sessions, err := d.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "id\timported\tmaster\tcommon_end\tlabel")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
					s.ID, s.ImportedAt.Format(time.RFC3339), s.MasterDeviceID, s.CommonEnd, s.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&deleteID, "delete", "", "delete the session with this id")
	cmd.Flags().String("db_path", "", "sessions database")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.out, version.String())
		},
	}
}
