// Package worker implements the notifier worker: an HTTP API that accepts
// notify jobs from the CLI and a background runner that executes them
// against the platform database and the credentials service.
package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/openlms/crednotify/client"
	"github.com/openlms/crednotify/config"
	"github.com/openlms/crednotify/credentials"
	"github.com/openlms/crednotify/pkg/logging"
	"github.com/openlms/crednotify/store"
)

// Notifier sends certificate and grade events to the credentials service.
type Notifier interface {
	SendGrade(ctx context.Context, grade credentials.GradeEvent) error
	NotifyCertificateChange(ctx context.Context, cert credentials.CertificateEvent) error
	AwardCourseCertificate(ctx context.Context, cert credentials.CertificateEvent) error
}

type queuedJob struct {
	id  string
	job client.NotifyJob
}

type Server struct {
	cfg      *config.Configuration
	store    *store.Store
	notifier Notifier
	log      *clog.Logger
	// preview overrides where dry-run previews are printed; nil means stdout.
	preview io.Writer

	mu    sync.Mutex
	jobs  map[string]*client.Job
	queue chan queuedJob
}

func New(cfg *config.Configuration, st *store.Store, notifier Notifier) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		notifier: notifier,
		log:      logging.Logger.With("component", "worker"),
		jobs:     make(map[string]*client.Job),
		queue:    make(chan queuedJob, cfg.Worker.QueueSize),
	}
}

// Run serves the API and processes queued jobs until the context is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.Worker.Listen,
		Handler: s.router(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("worker listening", "addr", s.cfg.Worker.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case qj := <-s.queue:
				s.runNotify(ctx, qj.id, qj.job)
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/jobs", s.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var job client.NotifyJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "invalid job payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if job.PageSize <= 0 {
		job.PageSize = 100
	}

	record := &client.Job{
		ID:         uuid.NewString(),
		State:      client.JobStateQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	// Register before queueing so the runner can always resolve the record.
	s.mu.Lock()
	s.jobs[record.ID] = record
	s.mu.Unlock()

	select {
	case s.queue <- queuedJob{id: record.ID, job: job}:
	default:
		s.mu.Lock()
		delete(s.jobs, record.ID)
		s.mu.Unlock()
		http.Error(w, "job queue is full", http.StatusServiceUnavailable)
		return
	}

	s.log.Info("job enqueued", "job", record.ID,
		"dry_run", job.DryRun, "site", job.Site, "courses", len(job.Courses))
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	record, ok := s.jobs[id]
	var snapshot client.Job
	if ok {
		snapshot = *record
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no such job", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, client.Status{Running: true, Queued: len(s.queue)})
}

func (s *Server) previewOut() io.Writer {
	if s.preview != nil {
		return s.preview
	}
	return os.Stdout
}

func (s *Server) updateJob(id string, update func(*client.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.jobs[id]; ok {
		update(record)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
