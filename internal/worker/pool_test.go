package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockResult implements Result
type mockResult struct {
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{err: errors.New("job error")}
	}
	return &mockResult{}
}

func TestNewPoolContext(t *testing.T) {
	assert.Equal(t, 5, NewPoolContext(context.Background(), 5).workers)
	assert.Equal(t, 1, NewPoolContext(context.Background(), 0).workers)
	assert.Equal(t, 1, NewPoolContext(context.Background(), -1).workers)
}

func TestPool_Execution(t *testing.T) {
	pool := NewPoolContext(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 10

	for i := 0; i < count; i++ {
		pool.Submit(&mockJob{executed: &executed})
	}

	results := pool.Wait()

	assert.Len(t, results, count)
	assert.Equal(t, int32(count), atomic.LoadInt32(&executed))
}

// More jobs than the combined channel buffers must not deadlock.
func TestPool_ManyJobs(t *testing.T) {
	pool := NewPoolContext(context.Background(), 2)
	pool.Start()

	count := 200
	for i := 0; i < count; i++ {
		require.True(t, pool.Submit(&mockJob{}))
	}

	assert.Len(t, pool.Wait(), count)
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	select {
	case <-time.After(j.duration):
	case <-ctx.Done():
	}
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPoolContext(context.Background(), workers)
	pool.Start()

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	totalJobs := 50

	for i := 0; i < totalJobs; i++ {
		pool.Submit(&concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 10 * time.Millisecond,
		})
	}

	pool.Wait()

	assert.Equal(t, int32(totalJobs), atomic.LoadInt32(&completed))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxConcurrent, int32(workers))
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPoolContext(context.Background(), 2)
	pool.Start()

	pool.Submit(&mockJob{shouldErr: true})
	pool.Submit(&mockJob{shouldErr: false})

	results := pool.Wait()
	require.Len(t, results, 2)

	errs := 0
	for _, res := range results {
		if res.GetError() != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestPool_SubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPoolContext(ctx, 2)
	pool.Start()
	cancel()

	done := make(chan bool)
	go func() {
		done <- pool.Submit(&mockJob{})
	}()

	select {
	case queued := <-done:
		assert.False(t, queued)
	case <-time.After(time.Second):
		t.Fatal("Submit after cancel blocked")
	}
	pool.Wait()
}

func TestPool_CancelStopsRunningJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPoolContext(ctx, 2)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(&concurrencyJob{
		start: func() {
			close(started)
		},
		duration: 5 * time.Second,
	})

	<-started
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait after cancel timed out")
	}
}
