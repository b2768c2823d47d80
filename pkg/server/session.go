package server

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/marmos91/depot/internal/logger"
	"github.com/marmos91/depot/pkg/metrics"
	"github.com/marmos91/depot/pkg/protocol"
	"github.com/marmos91/depot/pkg/queue"
	"github.com/marmos91/depot/pkg/registry"
	"github.com/marmos91/depot/pkg/storage"
)

// SessionPool is the fixed-size pool of session workers. Each worker
// owns one client connection at a time: it authenticates the client,
// parses commands, submits tasks, and performs all socket I/O including
// binary bodies.
type SessionPool struct {
	conns     *queue.Bounded[net.Conn]
	tasks     *queue.Bounded[*Task]
	reg       *registry.Registry
	store     *storage.Store
	m         *metrics.ServerMetrics
	maxUpload uint64

	wg      sync.WaitGroup
	active  sync.Map    // net.Conn -> struct{}; for forced close on slow shutdown
	closing atomic.Bool // set once the shutdown deadline has passed
}

// NewSessionPool creates a pool reading connections from conns and
// submitting tasks to tasks.
func NewSessionPool(conns *queue.Bounded[net.Conn], tasks *queue.Bounded[*Task], reg *registry.Registry, store *storage.Store, m *metrics.ServerMetrics, maxUpload uint64) *SessionPool {
	return &SessionPool{
		conns:     conns,
		tasks:     tasks,
		reg:       reg,
		store:     store,
		m:         m,
		maxUpload: maxUpload,
	}
}

// Start launches n workers.
func (p *SessionPool) Start(n int) {
	logger.Info("Starting session workers", "count", n)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Wait blocks until every worker has exited. Workers exit once the
// connection queue is shut down and drained.
func (p *SessionPool) Wait() {
	p.wg.Wait()
}

// ForceCloseActive closes every in-flight client socket, unblocking
// workers stuck in reads during shutdown. It also marks the pool as
// past its deadline so connections still waiting in the queue are
// closed unserved when a worker dequeues them.
func (p *SessionPool) ForceCloseActive() {
	p.closing.Store(true)
	p.active.Range(func(key, _ any) bool {
		key.(net.Conn).Close()
		return true
	})
}

// worker serves connections to completion, one at a time, until the
// connection queue shuts down.
func (p *SessionPool) worker(id int) {
	defer p.wg.Done()
	logger.Debug("Session worker started", logger.KeyWorker, id)

	for {
		conn, err := p.conns.Pop()
		if err != nil {
			break
		}

		p.active.Store(conn, struct{}{})

		// Store before loading the flag: either this load observes the
		// deadline, or the force-close sweep observes the stored conn.
		// Either way a connection dequeued late cannot outlive shutdown.
		if p.closing.Load() {
			conn.Close()
			p.active.Delete(conn)
			continue
		}

		p.m.SessionStarted()

		p.runSession(conn, id)

		conn.Close()
		p.active.Delete(conn)
		p.m.SessionEnded()
	}

	logger.Debug("Session worker stopped", logger.KeyWorker, id)
}

// session holds per-connection state for one client.
type session struct {
	pool *SessionPool
	conn net.Conn
	br   *bufio.Reader
	log  *slog.Logger

	authed    bool
	accountID uint32
	username  string
}

// runSession drives one connection from banner to close.
func (p *SessionPool) runSession(conn net.Conn, workerID int) {
	s := &session{
		pool: p,
		conn: conn,
		br:   bufio.NewReader(conn),
		log:  logger.With(logger.KeyClient, conn.RemoteAddr().String(), logger.KeyWorker, workerID),
	}

	s.log.Info("Session started")
	defer s.log.Info("Session closed", logger.KeyUser, s.username)

	if err := protocol.WriteLine(conn, protocol.Banner); err != nil {
		return
	}

	for {
		line, err := protocol.ReadLine(s.br)
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				s.log.Warn("Line too long, closing session")
			}
			return
		}

		if !s.dispatch(line) {
			return
		}
	}
}

// dispatch handles one request line. It returns false when the session
// must end (QUIT, transport failure, unrecoverable protocol state).
func (s *session) dispatch(line string) bool {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return s.reply(protocol.ErrUnknownCommand)
	}
	s.log.Debug("Command received", logger.KeyCommand, cmd.Verb)

	switch cmd.Verb {
	case protocol.VerbQuit:
		protocol.WriteLine(s.conn, protocol.ReplyGoodbye)
		return false

	case protocol.VerbRegister:
		return s.handleRegister(cmd.Args)

	case protocol.VerbLogin:
		return s.handleLogin(cmd.Args)

	case protocol.VerbUpload, protocol.VerbDownload, protocol.VerbDelete, protocol.VerbList:
		if !s.authed {
			s.pool.m.CommandProcessed(cmd.Verb, false)
			return s.reply(protocol.ErrAuthRequired)
		}
		return s.handleFileCommand(cmd)

	default:
		return s.reply(protocol.ErrUnknownCommand)
	}
}

// handleRegister creates an account. Registration never promotes the
// session; the client must LOGIN explicitly afterwards.
func (s *session) handleRegister(args []string) bool {
	if s.authed {
		return s.reply(protocol.ErrAlreadyAuthed)
	}
	if len(args) != 2 {
		return s.reply("ERROR: REGISTER requires username and password")
	}

	_, err := s.pool.reg.Register(args[0], args[1])
	switch {
	case err == nil:
		s.log.Info("Account registered", logger.KeyUser, args[0])
		s.pool.m.CommandProcessed(protocol.VerbRegister, true)
		return s.reply(protocol.ReplyRegisterOK)
	case errors.Is(err, registry.ErrUsernameTaken):
		s.pool.m.CommandProcessed(protocol.VerbRegister, false)
		return s.reply(protocol.ErrUsernameTaken)
	case errors.Is(err, registry.ErrRegistryFull):
		s.pool.m.CommandProcessed(protocol.VerbRegister, false)
		return s.reply(protocol.ErrServerFull)
	case errors.Is(err, registry.ErrInvalidUsername):
		s.pool.m.CommandProcessed(protocol.VerbRegister, false)
		return s.reply(protocol.ErrInvalidUsername)
	case errors.Is(err, registry.ErrEmptyPassword), errors.Is(err, registry.ErrPasswordTooLong):
		s.pool.m.CommandProcessed(protocol.VerbRegister, false)
		return s.reply(protocol.ErrInvalidPassword)
	default:
		s.log.Error("Registration failed", logger.KeyUser, args[0], "error", err)
		s.reply(protocol.ErrInternal)
		return false
	}
}

// handleLogin authenticates the session.
func (s *session) handleLogin(args []string) bool {
	if s.authed {
		return s.reply(protocol.ErrAlreadyAuthed)
	}
	if len(args) != 2 {
		return s.reply("ERROR: LOGIN requires username and password")
	}

	id, err := s.pool.reg.Login(args[0], args[1])
	if err != nil {
		s.pool.m.CommandProcessed(protocol.VerbLogin, false)
		return s.reply(protocol.ErrInvalidCreds)
	}

	s.authed = true
	s.accountID = id
	s.username = args[0]
	s.log.Info("Login successful", logger.KeyUser, s.username)
	s.pool.m.CommandProcessed(protocol.VerbLogin, true)
	return s.reply(protocol.ReplyLoginOK)
}

// handleFileCommand submits a task for a post-auth command and completes
// the exchange, including any binary body.
func (s *session) handleFileCommand(cmd protocol.Command) bool {
	if cmd.Verb == protocol.VerbList {
		if len(cmd.Args) != 0 {
			return s.reply("ERROR: LIST takes no arguments")
		}
	} else if len(cmd.Args) != 1 {
		return s.reply(fmt.Sprintf("ERROR: %s requires a filename", cmd.Verb))
	}

	var kind TaskKind
	filename := ""
	switch cmd.Verb {
	case protocol.VerbUpload:
		kind = TaskUpload
		filename = cmd.Args[0]
	case protocol.VerbDownload:
		kind = TaskDownload
		filename = cmd.Args[0]
	case protocol.VerbDelete:
		kind = TaskDelete
		filename = cmd.Args[0]
	case protocol.VerbList:
		kind = TaskList
	}

	res, ok := s.submit(kind, filename)
	if !ok {
		// Queue refused (shutting down): report overload, keep session.
		s.pool.m.CommandProcessed(cmd.Verb, false)
		return s.reply(protocol.ErrServerOverloaded)
	}

	s.pool.m.CommandProcessed(cmd.Verb, res.OK)

	switch cmd.Verb {
	case protocol.VerbUpload:
		return s.finishUpload(filename, res)
	case protocol.VerbDownload:
		return s.finishDownload(res)
	case protocol.VerbList:
		return s.finishList(res)
	default: // DELETE: the worker's reply is the whole response
		return s.reply(res.Reply)
	}
}

// submit pushes a task and waits on its rendezvous. The bool is false
// when the queue refused the push.
func (s *session) submit(kind TaskKind, filename string) (TaskResult, bool) {
	task := NewTask(kind, s.accountID, s.username, filename)

	if err := s.pool.tasks.Push(task); err != nil {
		return TaskResult{}, false
	}
	s.pool.m.SetTaskQueueDepth(s.pool.tasks.Len())

	return task.Await(), true
}

// finishUpload handles the two-step upload exchange after the worker's
// pre-check: forward the pre-check reply, read the client's SIZE line,
// reserve quota, then stream the body to a temp file and commit it.
//
// The reservation is taken before the client is told to send the body,
// so a refused reservation never leaves bytes on the wire to discard.
func (s *session) finishUpload(filename string, res TaskResult) bool {
	if !s.reply(res.Reply) {
		return false
	}
	if !res.OK {
		return true
	}

	line, err := protocol.ReadLine(s.br)
	if err != nil {
		return false
	}
	n, err := protocol.ParseSizeLine(line)
	if err != nil || n > s.pool.maxUpload {
		return s.reply(protocol.ErrInvalidSize)
	}

	used, err := s.pool.reg.AddToQuota(s.accountID, n)
	if err != nil {
		if errors.Is(err, registry.ErrQuotaExceeded) {
			return s.reply(protocol.ErrQuotaExceeded)
		}
		s.reply(protocol.ErrInternal)
		return false
	}

	up, err := s.pool.store.BeginUpload(s.username, filename)
	if err != nil {
		s.pool.reg.ReleaseQuota(s.accountID, n)
		switch {
		case errors.Is(err, storage.ErrExists):
			return s.reply(protocol.ErrFileExists)
		case errors.Is(err, storage.ErrUnsafeName):
			return s.reply(protocol.ErrInvalidFilename)
		default:
			s.log.Error("Begin upload failed", "file", filename, "error", err)
			s.reply(protocol.ErrInternal)
			return false
		}
	}

	if !s.reply(protocol.ReplySendData) {
		up.Abort()
		s.pool.reg.ReleaseQuota(s.accountID, n)
		return false
	}

	if err := protocol.CopyExact(up, s.br, int64(n)); err != nil {
		// Failure mid-body is unrecoverable: the stream position is lost.
		up.Abort()
		s.pool.reg.ReleaseQuota(s.accountID, n)
		s.log.Warn("Upload body truncated", "file", filename, "expected", n)
		s.reply(protocol.ErrIncompleteUpload)
		return false
	}

	if err := up.Commit(); err != nil {
		s.pool.reg.ReleaseQuota(s.accountID, n)
		s.log.Error("Upload commit failed", "file", filename, "error", err)
		s.reply(protocol.ErrInternal)
		return false
	}

	s.pool.m.BytesUploaded(int64(n))
	s.log.Info("File uploaded", logger.KeyUser, s.username, "file", filename, "bytes", n)
	return s.reply(protocol.UploadSuccess(n, used, s.pool.reg.QuotaLimit()))
}

// finishDownload forwards the worker's SIZE reply and streams the body
// from the handle the worker opened.
func (s *session) finishDownload(res TaskResult) bool {
	if !s.reply(res.Reply) {
		if res.File != nil {
			res.File.Close()
		}
		return false
	}
	if !res.OK {
		return true
	}
	defer res.File.Close()

	if err := protocol.CopyExact(s.conn, res.File, res.Size); err != nil {
		s.log.Warn("Download body write failed", "error", err)
		return false
	}

	s.pool.m.BytesDownloaded(res.Size)
	return true
}

// finishList writes the report lines followed by the blank terminator.
func (s *session) finishList(res TaskResult) bool {
	if !res.OK {
		return s.reply(res.Reply)
	}
	for _, line := range res.Lines {
		if !s.reply(line) {
			return false
		}
	}
	return s.reply("")
}

// reply writes one line, returning false on transport failure.
func (s *session) reply(line string) bool {
	return protocol.WriteLine(s.conn, line) == nil
}
