package server

import (
	"errors"
	"sync"

	"github.com/marmos91/depot/internal/logger"
	"github.com/marmos91/depot/pkg/metrics"
	"github.com/marmos91/depot/pkg/protocol"
	"github.com/marmos91/depot/pkg/queue"
	"github.com/marmos91/depot/pkg/registry"
	"github.com/marmos91/depot/pkg/storage"
)

// FileWorkerPool executes filesystem-touching tasks pulled from the task
// queue. Workers never read or write a client socket; their entire
// output is the task result delivered through the rendezvous.
type FileWorkerPool struct {
	tasks *queue.Bounded[*Task]
	reg   *registry.Registry
	store *storage.Store
	m     *metrics.ServerMetrics

	wg sync.WaitGroup
}

// NewFileWorkerPool creates a pool reading from tasks.
func NewFileWorkerPool(tasks *queue.Bounded[*Task], reg *registry.Registry, store *storage.Store, m *metrics.ServerMetrics) *FileWorkerPool {
	return &FileWorkerPool{tasks: tasks, reg: reg, store: store, m: m}
}

// Start launches n workers.
func (p *FileWorkerPool) Start(n int) {
	logger.Info("Starting file workers", "count", n)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Wait blocks until every worker has exited. Workers exit once the task
// queue is shut down and drained.
func (p *FileWorkerPool) Wait() {
	p.wg.Wait()
}

// worker pops tasks until the queue reports shutdown, executing each and
// signalling its completion. Every pop is followed by exactly one
// Complete so no session can be stranded on a rendezvous.
func (p *FileWorkerPool) worker(id int) {
	defer p.wg.Done()
	logger.Debug("File worker started", logger.KeyWorker, id)

	for {
		task, err := p.tasks.Pop()
		if err != nil {
			break
		}
		p.m.SetTaskQueueDepth(p.tasks.Len())

		task.Complete(p.execute(task))
	}

	logger.Debug("File worker stopped", logger.KeyWorker, id)
}

// execute dispatches one task to its handler.
func (p *FileWorkerPool) execute(task *Task) TaskResult {
	switch task.Kind {
	case TaskUpload:
		return p.uploadPrecheck(task)
	case TaskDownload:
		return p.download(task)
	case TaskDelete:
		return p.delete(task)
	case TaskList:
		return p.list(task)
	default:
		return TaskResult{Reply: protocol.ErrUnknownCommand}
	}
}

// uploadPrecheck refuses unsafe names and existing targets. The body
// transfer itself happens in the session worker under the reservation
// made after the client announces the size.
func (p *FileWorkerPool) uploadPrecheck(task *Task) TaskResult {
	_, err := p.store.Stat(task.Username, task.Filename)
	switch {
	case err == nil:
		return TaskResult{Reply: protocol.ErrFileExists}
	case errors.Is(err, storage.ErrUnsafeName):
		return TaskResult{Reply: protocol.ErrInvalidFilename}
	case errors.Is(err, storage.ErrNotFound):
		return TaskResult{OK: true, Reply: protocol.ReplyReady}
	default:
		logger.Error("Upload pre-check failed", logger.KeyUser, task.Username, "file", task.Filename, "error", err)
		return TaskResult{Reply: protocol.ErrInternal}
	}
}

// download opens the file and hands the open handle to the session,
// which streams the body.
func (p *FileWorkerPool) download(task *Task) TaskResult {
	f, size, err := p.store.Open(task.Username, task.Filename)
	switch {
	case errors.Is(err, storage.ErrUnsafeName):
		return TaskResult{Reply: protocol.ErrInvalidFilename}
	case errors.Is(err, storage.ErrNotFound):
		return TaskResult{Reply: protocol.ErrFileNotFound}
	case err != nil:
		logger.Error("Download open failed", logger.KeyUser, task.Username, "file", task.Filename, "error", err)
		return TaskResult{Reply: protocol.ErrInternal}
	}

	return TaskResult{
		OK:    true,
		Reply: protocol.SizeReply(size),
		Size:  size,
		File:  f,
	}
}

// delete unlinks the file and returns the freed bytes to the owner's
// quota budget.
func (p *FileWorkerPool) delete(task *Task) TaskResult {
	freed, err := p.store.Delete(task.Username, task.Filename)
	switch {
	case errors.Is(err, storage.ErrUnsafeName):
		return TaskResult{Reply: protocol.ErrInvalidFilename}
	case errors.Is(err, storage.ErrNotFound):
		return TaskResult{Reply: protocol.ErrFileNotFound}
	case err != nil:
		logger.Error("Delete failed", logger.KeyUser, task.Username, "file", task.Filename, "error", err)
		return TaskResult{Reply: protocol.ErrInternal}
	}

	used := p.reg.ReleaseQuota(task.AccountID, uint64(freed))
	logger.Info("File deleted", logger.KeyUser, task.Username, "file", task.Filename, "freed", freed)

	return TaskResult{
		OK:    true,
		Reply: protocol.DeleteOK(uint64(freed), used, p.reg.QuotaLimit()),
	}
}

// list builds the three-section report: header, one line per regular
// file, footer with count and quota. Enumeration order follows the
// directory.
func (p *FileWorkerPool) list(task *Task) TaskResult {
	files, err := p.store.List(task.Username)
	if err != nil {
		logger.Error("List failed", logger.KeyUser, task.Username, "error", err)
		return TaskResult{Reply: protocol.ErrInternal}
	}

	acct, err := p.reg.Get(task.AccountID)
	if err != nil {
		return TaskResult{Reply: protocol.ErrInternal}
	}

	lines := make([]string, 0, len(files)+2)
	lines = append(lines, protocol.ListHeader(task.Username))
	for _, f := range files {
		lines = append(lines, protocol.ListEntry(f.Name, f.Size))
	}
	lines = append(lines, protocol.ListFooter(len(files), acct.QuotaUsed, p.reg.QuotaLimit()))

	return TaskResult{OK: true, Lines: lines}
}
