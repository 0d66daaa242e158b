package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"visionctl/internal/api"
	"visionctl/internal/config"
	"visionctl/internal/dataset"
	"visionctl/internal/metrics"
	"visionctl/internal/session"
	"visionctl/internal/store"
	"visionctl/internal/training"
)

const metricsShutdownTimeout = 2 * time.Second

// services is everything one visionctl run talks to, built once from the
// effective config.
type services struct {
	cfg      config.Config
	session  session.Session
	metrics  *metrics.Collector
	logger   *log.Logger
	client   *api.Client
	dataset  *dataset.Reconciler
	training *training.Controller

	historyPath string
	historyMu   sync.Mutex
	history     *store.SQLiteStore

	metricsSrv *http.Server
}

func newServices(cfg config.Config, logOut io.Writer) *services {
	if !cfg.Verbose || logOut == nil {
		logOut = io.Discard
	}
	logger := log.New(logOut, "visionctl: ", log.LstdFlags)
	collector := metrics.New()
	sess := session.New(cfg.User)

	client := api.NewClient(cfg.API.BaseURL, sess)
	client.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout()}
	client.MaxUploadBytes = cfg.MaxUploadBytes()
	client.Metrics = collector
	client.Logger = logger
	client.SetImageCacheTTL(cfg.ImageCacheTTL())

	reconciler := dataset.NewReconciler(client)
	reconciler.Metrics = collector
	reconciler.Logger = logger

	controller := training.NewController(client, reconciler)
	controller.Images = client
	controller.Interval = cfg.PollInterval()
	controller.Metrics = collector
	controller.Logger = logger

	return &services{
		cfg:      cfg,
		session:  sess,
		metrics:  collector,
		logger:   logger,
		client:   client,
		dataset:  reconciler,
		training: controller,
	}
}

// snapshot returns the published snapshot, loading it first when nothing
// has been fetched in this run.
func (s *services) snapshot(ctx context.Context) (dataset.Snapshot, error) {
	if snap := s.dataset.Current(); snap.Generation > 0 {
		return snap, nil
	}
	return s.dataset.Refresh(ctx)
}

// historyStore opens the review history on first use.
func (s *services) historyStore(ctx context.Context) (*store.SQLiteStore, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if s.history != nil {
		return s.history, nil
	}
	path := s.historyPath
	if path == "" {
		dir, err := config.StateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve state dir: %w", err)
		}
		path = filepath.Join(dir, "history.db")
	}
	st := store.NewSQLiteStore(path)
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	s.history = st
	return st, nil
}

// serveMetrics exposes the collector on addr until Close. The listener is
// bound before returning so a bad address fails the command.
func (s *services) serveMetrics(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.metricsSrv = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("metrics server stopped: %v", err)
		}
	}()
	return ln.Addr().String(), nil
}

func (s *services) Close() error {
	var errs []error
	s.training.Cancel()
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		errs = append(errs, s.metricsSrv.Shutdown(ctx))
		cancel()
	}
	s.historyMu.Lock()
	if s.history != nil {
		errs = append(errs, s.history.Close())
		s.history = nil
	}
	s.historyMu.Unlock()
	return errors.Join(errs...)
}
