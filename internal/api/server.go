// Package api serves stored sessions over HTTP: JSON listings, decoded
// series, HTML charts, and recording upload.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/gaitsync/internal/db"
	"github.com/banshee-data/gaitsync/internal/gaitup"
	"github.com/banshee-data/gaitsync/internal/gaitup/monitor"
	"github.com/banshee-data/gaitsync/internal/gaitup/parse"
	"github.com/banshee-data/gaitsync/internal/gaitup/timesync"
	"github.com/banshee-data/gaitsync/internal/monitoring"
)

// DefaultMaxUploadBytes caps the body of a recording upload.
const DefaultMaxUploadBytes = 256 << 20

// DefaultMaxPoints is the per-channel point budget of the series endpoint.
const DefaultMaxPoints = 2000

// Store is the session storage the server reads and writes.
type Store interface {
	SaveSession(ctx context.Context, label string, res *timesync.Result) (*db.Session, error)
	ListSessions(ctx context.Context) ([]db.Session, error)
	GetSession(ctx context.Context, id string) (*db.Session, error)
	LoadSeries(ctx context.Context, id string) ([]*gaitup.DeviceTimeSeries, error)
	DeleteSession(ctx context.Context, id string) error
}

type adminRoutes interface {
	AttachAdminRoutes(mux *http.ServeMux)
}

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Parse          parse.Options
	MaxUploadBytes int64
	MaxPoints      int
	AssetsHost     string
}

type Server struct {
	store      Store
	opts       Options
	renderPage func(io.Writer, []*gaitup.DeviceTimeSeries, []gaitup.Channel, monitor.ChartOptions) error
}

func NewServer(store Store, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultMaxPoints
	}
	return &Server{store: store, opts: opts, renderPage: monitor.RenderPage}
}

// Router returns the chi router holding the /api routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.importSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Get("/series", s.sessionSeries)
			r.Get("/devices/{device}", s.deviceSeries)
			r.Get("/chart", s.sessionChart)
		})
	})
	return r
}

// Handler returns the router plus the store's /debug/ admin routes, when the
// store provides them.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if admin, ok := s.store.(adminRoutes); ok {
		admin.AttachAdminRoutes(mux)
	}
	mux.Handle("/", s.Router())
	return mux
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		internalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// writeStoreError maps a store error to a response.
func writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, db.ErrSessionNotFound) {
		notFound(w, fmt.Sprintf("session %s not found", id))
		return
	}
	internalServerError(w, err.Error())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseChannels reads a comma separated channel list. Empty means all.
func parseChannels(q string) ([]gaitup.Channel, error) {
	if q == "" {
		return gaitup.Channels, nil
	}
	var out []gaitup.Channel
	for _, name := range strings.Split(q, ",") {
		c, ok := gaitup.ParseChannel(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// DeviceSeries is the downsampled view of one device returned by the series
// endpoint. Times are in seconds on the synchronized timeline.
type DeviceSeries struct {
	DeviceID      uint32                     `json:"device_id"`
	Source        string                     `json:"source"`
	Master        bool                       `json:"master"`
	BaseFrequency uint16                     `json:"base_frequency"`
	Channels      map[string][]monitor.Point `json:"channels"`
}

func (s *Server) sessionSeries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	channels, err := parseChannels(q.Get("channel"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	maxPoints := s.opts.MaxPoints
	if v := q.Get("max_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "invalid 'max_points' parameter")
			return
		}
		maxPoints = n
	}
	var deviceFilter *uint32
	if v := q.Get("device"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			badRequest(w, "invalid 'device' parameter")
			return
		}
		d := uint32(n)
		deviceFilter = &d
	}

	series, err := s.store.LoadSeries(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}

	out := make([]DeviceSeries, 0, len(series))
	for _, ds := range series {
		if deviceFilter != nil && ds.Config.DeviceID != *deviceFilter {
			continue
		}
		entry := DeviceSeries{
			DeviceID:      ds.Config.DeviceID,
			Source:        ds.Source,
			Master:        ds.Config.Radio.IsMaster(),
			BaseFrequency: ds.Config.BaseFrequency,
			Channels:      make(map[string][]monitor.Point, len(channels)),
		}
		for _, c := range channels {
			if pts := monitor.ChannelPoints(ds, c, maxPoints); pts != nil {
				entry.Channels[c.String()] = pts
			}
		}
		out = append(out, entry)
	}
	if deviceFilter != nil && len(out) == 0 {
		notFound(w, fmt.Sprintf("device %d not in session %s", *deviceFilter, id))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deviceSeries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device, err := strconv.ParseUint(chi.URLParam(r, "device"), 10, 32)
	if err != nil {
		badRequest(w, "invalid device id")
		return
	}

	series, err := s.store.LoadSeries(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	for _, ds := range series {
		if ds.Config.DeviceID == uint32(device) {
			writeJSON(w, http.StatusOK, ds)
			return
		}
	}
	notFound(w, fmt.Sprintf("device %d not in session %s", device, id))
}

func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	channels, err := parseChannels(r.URL.Query().Get("channel"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	series, err := s.store.LoadSeries(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}

	title := sess.Label
	if title == "" {
		title = sess.ID
	}
	var buf bytes.Buffer
	err = s.renderPage(&buf, series, channels, monitor.ChartOptions{
		Title:      title,
		AssetsHost: s.opts.AssetsHost,
	})
	if errors.Is(err, monitor.ErrNothingToChart) {
		notFound(w, err.Error())
		return
	}
	if err != nil {
		monitoring.Logf("failed to render chart of session %s: %v", id, err)
		internalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// importSession accepts a multipart upload of recordings in the "files"
// field, synchronizes them and stores the session under "label".
func (s *Server) importSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		badRequest(w, "no recordings in 'files'")
		return
	}

	series, err := s.decodeUploads(r.Context(), files)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := timesync.Synchronize(series...)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sess, err := s.store.SaveSession(r.Context(), r.FormValue("label"), res)
	if err != nil {
		internalServerError(w, fmt.Sprintf("failed to save session: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) decodeUploads(ctx context.Context, files []*multipart.FileHeader) ([]*gaitup.DeviceTimeSeries, error) {
	out := make([]*gaitup.DeviceTimeSeries, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, fh := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("%s: %w", fh.Filename, err)
			}
			defer f.Close()
			data, err := io.ReadAll(f)
			if err != nil {
				return fmt.Errorf("%s: %w", fh.Filename, err)
			}
			rec, err := parse.DecodeBytes(data, s.opts.Parse)
			if err != nil {
				return fmt.Errorf("%s: %w", fh.Filename, err)
			}
			rec.Series.Source = filepath.Base(fh.Filename)
			out[i] = rec.Series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
