package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskKindString(t *testing.T) {
	assert.Equal(t, "UPLOAD", TaskUpload.String())
	assert.Equal(t, "DOWNLOAD", TaskDownload.String())
	assert.Equal(t, "DELETE", TaskDelete.String())
	assert.Equal(t, "LIST", TaskList.String())
}

func TestTaskRendezvous(t *testing.T) {
	task := NewTask(TaskDelete, 1, "alice", "notes.txt")

	go func() {
		time.Sleep(10 * time.Millisecond)
		task.Complete(TaskResult{OK: true, Reply: "OK: done"})
	}()

	res := task.Await()
	assert.True(t, res.OK)
	assert.Equal(t, "OK: done", res.Reply)
}

func TestTaskCompleteIdempotent(t *testing.T) {
	task := NewTask(TaskList, 1, "alice", "")

	task.Complete(TaskResult{OK: true, Reply: "first"})
	task.Complete(TaskResult{OK: false, Reply: "second"})

	res := task.Await()
	assert.Equal(t, "first", res.Reply)
}

func TestTaskAwaitAfterComplete(t *testing.T) {
	task := NewTask(TaskDownload, 2, "bob", "a.bin")
	task.Complete(TaskResult{OK: true, Size: 42})

	// Await must not block once the result is in.
	done := make(chan TaskResult, 1)
	go func() { done <- task.Await() }()

	select {
	case res := <-done:
		assert.Equal(t, int64(42), res.Size)
	case <-time.After(time.Second):
		t.Fatal("Await blocked on a completed task")
	}
}

func TestTaskConcurrentAwaiters(t *testing.T) {
	task := NewTask(TaskList, 3, "carol", "")

	var wg sync.WaitGroup
	results := make(chan TaskResult, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- task.Await()
		}()
	}

	task.Complete(TaskResult{OK: true, Reply: "shared"})
	wg.Wait()
	close(results)

	count := 0
	for res := range results {
		require.Equal(t, "shared", res.Reply)
		count++
	}
	assert.Equal(t, 4, count)
}
