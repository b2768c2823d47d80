package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/depot/internal/logger"
	"github.com/marmos91/depot/pkg/metrics"
	"github.com/marmos91/depot/pkg/queue"
	"github.com/marmos91/depot/pkg/registry"
	"github.com/marmos91/depot/pkg/storage"
)

// Config holds the server's runtime parameters.
type Config struct {
	// Port to listen on. 0 picks an ephemeral port (useful in tests).
	Port int

	// SessionWorkers is the number of goroutines serving client sessions.
	SessionWorkers int

	// FileWorkers is the number of goroutines executing filesystem tasks.
	FileWorkers int

	// ConnQueueCapacity bounds connections accepted but not yet picked up
	// by a session worker. Overflow connections are closed at accept.
	ConnQueueCapacity int

	// TaskQueueCapacity bounds tasks waiting for a file worker.
	TaskQueueCapacity int

	// MaxUpload is the largest accepted upload body in bytes.
	MaxUpload uint64

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// sessions before force-closing their sockets.
	ShutdownTimeout time.Duration
}

// Server is the TCP file server: an accept loop feeding a bounded
// connection queue drained by session workers, which in turn feed a
// bounded task queue drained by file workers.
type Server struct {
	cfg   Config
	reg   *registry.Registry
	store *storage.Store
	m     *metrics.ServerMetrics

	conns    *queue.Bounded[net.Conn]
	tasks    *queue.Bounded[*Task]
	sessions *SessionPool
	workers  *FileWorkerPool

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	acceptDone chan struct{}
}

// New creates a server. The registry and store must already be loaded.
func New(cfg Config, reg *registry.Registry, store *storage.Store, m *metrics.ServerMetrics) *Server {
	conns := queue.NewBounded[net.Conn](cfg.ConnQueueCapacity)
	tasks := queue.NewBounded[*Task](cfg.TaskQueueCapacity)

	return &Server{
		cfg:        cfg,
		reg:        reg,
		store:      store,
		m:          m,
		conns:      conns,
		tasks:      tasks,
		sessions:   NewSessionPool(conns, tasks, reg, store, m, cfg.MaxUpload),
		workers:    NewFileWorkerPool(tasks, reg, store, m),
		acceptDone: make(chan struct{}),
	}
}

// ListenAndServe binds the port, starts both worker pools, and runs the
// accept loop until Shutdown closes the listener. If ready is non-nil it
// is closed once the listener is bound.
func (s *Server) ListenAndServe(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind port %d: %w", s.cfg.Port, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server already shut down")
	}
	s.listener = ln
	s.mu.Unlock()

	s.workers.Start(s.cfg.FileWorkers)
	s.sessions.Start(s.cfg.SessionWorkers)

	logger.Info("Server listening",
		"addr", ln.Addr().String(),
		"session_workers", s.cfg.SessionWorkers,
		"file_workers", s.cfg.FileWorkers)

	if ready != nil {
		close(ready)
	}

	s.acceptLoop(ln)
	close(s.acceptDone)
	return nil
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections and hands them to the connection queue.
// A full queue means every session worker is busy and the backlog is at
// capacity; the connection is closed immediately rather than left to
// time out unanswered.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}

		s.m.ConnectionAccepted()

		if err := s.conns.TryPush(conn); err != nil {
			s.m.ConnectionRejected()
			logger.Warn("Connection queue full, dropping connection",
				logger.KeyClient, conn.RemoteAddr().String())
			conn.Close()
		}
	}
}

// Shutdown performs the ordered teardown: stop accepting, let session
// workers drain queued connections and finish their clients, stop file
// workers after the task queue drains, then persist the registry.
// Sessions still running after ShutdownTimeout get their sockets closed.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	logger.Info("Shutting down")

	if ln != nil {
		ln.Close()
		<-s.acceptDone
	}

	// Wake session workers blocked on an empty queue; queued connections
	// are still served before the workers exit.
	s.conns.Shutdown()

	timer := time.AfterFunc(s.cfg.ShutdownTimeout, func() {
		logger.Warn("Shutdown timeout reached, closing active sessions",
			"timeout", s.cfg.ShutdownTimeout)
		s.sessions.ForceCloseActive()
	})
	s.sessions.Wait()
	timer.Stop()

	// No session remains to submit tasks; drain what is queued.
	s.tasks.Shutdown()
	s.workers.Wait()

	if err := s.reg.Persist(); err != nil {
		logger.Error("Final registry persist failed", "error", err)
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}
