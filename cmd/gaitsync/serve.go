package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gaitsync/internal/api"
	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
	"github.com/banshee-data/gaitsync/internal/monitoring"
	"github.com/banshee-data/gaitsync/internal/serialdump"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.openDB()
			if err != nil {
				return err
			}
			defer d.Close()

			ln, err := net.Listen("tcp", a.cfg.Listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", a.cfg.Listen, err)
			}
			srv := api.NewServer(d, api.Options{Parse: a.cfg.ParseOptions()})
			httpServer := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				monitoring.Logf("serving sessions from %s on http://%s", a.cfg.DBPath, ln.Addr())
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			monitoring.Logf("shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down HTTP server: %w", err)
			}
			return <-errc
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address")
	cmd.Flags().String("db_path", "", "sessions database")
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	var (
		out      string
		request  string
		maxBytes int64
		list     bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch a recording from a device over a serial port and decode it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				ports, err := serialdump.ListPorts()
				if err != nil {
					return fmt.Errorf("failed to list serial ports: %w", err)
				}
				for _, p := range ports {
					fmt.Fprintln(a.out, p)
				}
				return nil
			}

			sc := a.cfg.Serial
			if sc.Port == "" {
				return errors.New("no serial port given: set --serial.port or serial.port in the config")
			}
			r, err := serialdump.Fetch(cmd.Context(), a.open, sc.Port, sc.PortOptions(), serialdump.Options{
				Request:     []byte(unescapeRequest(request)),
				ReadTimeout: sc.GetReadTimeout(),
				MaxBytes:    maxBytes,
			})
			if err != nil {
				return err
			}

			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if _, err := io.Copy(f, r); err != nil {
					f.Close()
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				if err := f.Close(); err != nil {
					return err
				}
				if _, err := r.Seek(0, io.SeekStart); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", out, r.Size())
			}

			rec, err := parse.Decode(r, a.cfg.ParseOptions())
			if err != nil {
				return err
			}
			rec.Series.Source = filepath.Base(sc.Port)
			if out != "" {
				rec.Series.Source = filepath.Base(out)
			}
			printSeries(a.out, rec.Series)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also save the raw recording to this file")
	cmd.Flags().StringVar(&request, "request", "", `bytes sent before reading, e.g. "DUMP\r\n"`)
	cmd.Flags().Int64Var(&maxBytes, "max_bytes", 0, "stop after this many bytes (0 = until idle)")
	cmd.Flags().BoolVar(&list, "list", false, "list serial ports and exit")
	cmd.Flags().String("serial.port", "", "serial device path")
	cmd.Flags().Int("serial.baud_rate", serialdump.DefaultBaudRate, "baud rate")
	cmd.Flags().String("serial.read_timeout", "", "idle time that ends the transfer, e.g. 2s")
	return cmd
}

// unescapeRequest expands \r and \n typed on the command line.
func unescapeRequest(s string) string {
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(s)
}
