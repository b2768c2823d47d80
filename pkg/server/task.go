package server

import (
	"os"
	"sync"
)

// TaskKind identifies the filesystem operation a task carries.
type TaskKind int

const (
	TaskUpload TaskKind = iota
	TaskDownload
	TaskDelete
	TaskList
)

// String returns the protocol verb for the kind.
func (k TaskKind) String() string {
	switch k {
	case TaskUpload:
		return "UPLOAD"
	case TaskDownload:
		return "DOWNLOAD"
	case TaskDelete:
		return "DELETE"
	case TaskList:
		return "LIST"
	default:
		return "UNKNOWN"
	}
}

// TaskResult is the file worker's answer to one task.
type TaskResult struct {
	// OK distinguishes a successful outcome from a protocol-level error.
	OK bool

	// Reply is the single reply line for the session to send
	// (READY:/SIZE:/OK:/ERROR:). Unused for LIST.
	Reply string

	// Lines is the full multi-line report for LIST, one entry per line,
	// without terminators.
	Lines []string

	// Size is the body length for DOWNLOAD.
	Size int64

	// File is the opened file for DOWNLOAD. The session worker streams
	// it to the socket and closes it; the file worker never touches the
	// socket.
	File *os.File
}

// Task is a single unit of work submitted by a session worker and
// answered by exactly one file worker.
//
// The completion rendezvous is a one-shot channel: the submitting
// session blocks in Await until the file worker calls Complete. Only the
// submitter ever waits on a task, so no broadcast is needed.
type Task struct {
	Kind      TaskKind
	AccountID uint32
	Username  string
	Filename  string

	once   sync.Once
	result TaskResult
	done   chan struct{}
}

// NewTask creates a task ready for submission.
func NewTask(kind TaskKind, accountID uint32, username, filename string) *Task {
	return &Task{
		Kind:      kind,
		AccountID: accountID,
		Username:  username,
		Filename:  filename,
		done:      make(chan struct{}),
	}
}

// Complete stores the result and releases the waiting session worker.
// Subsequent calls are no-ops.
func (t *Task) Complete(res TaskResult) {
	t.once.Do(func() {
		t.result = res
		close(t.done)
	})
}

// Await blocks until the task is completed and returns its result.
func (t *Task) Await() TaskResult {
	<-t.done
	return t.result
}
