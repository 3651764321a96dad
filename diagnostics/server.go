// Package diagnostics is the read-only HTTP introspection surface:
// machine status, command journal, job queue/history/stats, recovery
// history, and a live SSE event feed, plus a read-only file listing of
// the job storage directory. Grounded on cmd/gcnc/api.go's http.Handler
// wrapping a go-sse server and a plain filesystem handler under
// /data/, generalized from its stdlib mux to gorilla/mux and from
// http.FileServer to jasonwbarnett/fileserver, and from one hardcoded
// "state" SSE topic to the full event taxonomy this repo's Controller
// publishes. This is deliberately not the interactive CLI/GUI the
// embedding application provides — every route here is a GET.
package diagnostics

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/jasonwbarnett/fileserver"
	"go.uber.org/zap"

	"github.com/mastercactapus/gcnc/job"
	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/recovery"
)

// Server is the diagnostics HTTP server: a *mux.Router wrapping the
// read-only routes plus a go-sse server mounted at /events/.
type Server struct {
	ctrl   *machine.Controller
	jobs   *job.Runner
	recov  *recovery.Supervisor
	log    *zap.SugaredLogger
	router *mux.Router
	sse    *sse.Server
	http   *http.Server

	unsubscribe func()
}

// NewServer wires the routes and starts the Controller-event-to-SSE
// bridge goroutine (the teacher's `for state := range m.State()`
// loop, generalized to every EventKind rather than one hardcoded
// "state" topic). dataDir is served read-only under /jobs/files/.
func NewServer(ctrl *machine.Controller, jobs *job.Runner, recov *recovery.Supervisor, dataDir string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		ctrl:   ctrl,
		jobs:   jobs,
		recov:  recov,
		log:    logger,
		router: mux.NewRouter(),
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}

	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/journal", s.handleJournal).Methods("GET")
	s.router.HandleFunc("/jobs/current", s.handleCurrentJob).Methods("GET")
	s.router.HandleFunc("/jobs/queue", s.handleJobQueue).Methods("GET")
	s.router.HandleFunc("/jobs/history", s.handleJobHistory).Methods("GET")
	s.router.HandleFunc("/jobs/stats", s.handleJobStats).Methods("GET")
	s.router.HandleFunc("/recovery/history", s.handleRecoveryHistory).Methods("GET")
	s.router.PathPrefix("/events/").Handler(s.sse)
	s.router.PathPrefix("/jobs/files/").Handler(http.StripPrefix("/jobs/files/", fileserver.New(http.Dir(dataDir))))

	events, cancel := ctrl.Events()
	s.unsubscribe = cancel
	go s.bridgeEvents(events)

	return s
}

// bridgeEvents republishes every Controller event onto the SSE topic
// "/events/<kind>", matching the teacher's single-topic version of the
// same idea in cmd/gcnc/api.go.
func (s *Server) bridgeEvents(events <-chan machine.Event) {
	for ev := range events {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			s.log.Warnw("diagnostics: marshal event payload", "error", err)
			continue
		}
		topic := "/events/" + eventTopicName(ev.Kind)
		s.sse.SendMessage(topic, sse.SimpleMessage(string(data)))
	}
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Start binds addr and serves in the background. Bind failures surface
// synchronously; failures after that point are logged, matching a
// long-running server's shape (grounded on OpenMachineCore's
// rest.Server.Start).
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Infow("diagnostics: listening", "addr", addr)
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("diagnostics: server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server and unsubscribes from the
// Controller's event bus.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
