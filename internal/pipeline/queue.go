package pipeline

import (
	"sync"

	"github.com/earworm-audio/earworm/pkg/audio"
)

// Job is one unit of work on the [JobQueue]: either a captured audio clip or
// the end-of-stream marker. The tagged form keeps sentinel and payload in
// separate fields so a consumer can never mistake one for the other.
type Job struct {
	// Clip is the captured phrase. Meaningless when End is true.
	Clip audio.Clip

	// End marks the end of the audio stream. At most one End job is ever
	// enqueued per run.
	End bool
}

// EndJob returns the end-of-stream marker job.
func EndJob() Job { return Job{End: true} }

// JobQueue is a blocking, task-counted FIFO carrying audio jobs from the
// capture loop to the recognition stage.
//
// Every Put increments an outstanding-task counter; the consumer must call
// MarkDone exactly once per Get, including for the End job. Join blocks until
// the counter returns to zero, which is the parent's synchronisation point
// for knowing the pipeline has fully consumed or discarded all pending audio.
//
// All methods are safe for concurrent use.
type JobQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	allDone  *sync.Cond

	jobs        []Job
	capacity    int // 0 = unbounded
	outstanding int
	closed      bool
}

// NewJobQueue creates a queue bounded to capacity jobs. A capacity of 0
// means unbounded, the default for the pipeline.
func NewJobQueue(capacity int) *JobQueue {
	q := &JobQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.allDone = sync.NewCond(&q.mu)
	return q
}

// Put enqueues a job and increments the outstanding-task counter. When a
// capacity bound is configured, Put blocks until space is available. The End
// job is exempt from the bound: shutdown must be able to enqueue it even when
// the consumer has already stopped taking jobs. After Close the bound is
// lifted entirely and Put never blocks.
func (q *JobQueue) Put(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && !job.End && q.capacity > 0 && len(q.jobs) >= q.capacity {
		q.notFull.Wait()
	}
	q.jobs = append(q.jobs, job)
	q.outstanding++
	q.notEmpty.Signal()
}

// Get blocks until a job is available and returns it. The caller owes one
// MarkDone for the returned job.
func (q *JobQueue) Get() Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.jobs) == 0 {
		q.notEmpty.Wait()
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.notFull.Signal()
	return job
}

// MarkDone decrements the outstanding-task counter, waking Join waiters when
// it reaches zero. Calling MarkDone more times than Get panics: it indicates
// a consumer accounting bug.
func (q *JobQueue) MarkDone() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.outstanding == 0 {
		panic("pipeline: JobQueue.MarkDone called more times than Get")
	}
	q.outstanding--
	if q.outstanding == 0 {
		q.allDone.Broadcast()
	}
}

// Join blocks until the outstanding-task counter reaches zero.
func (q *JobQueue) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.outstanding > 0 {
		q.allDone.Wait()
	}
}

// Drain removes every queued job without blocking, calling MarkDone for
// each, and returns how many jobs were discarded. Used during shutdown to
// bring the counter to zero for jobs that will never be processed.
func (q *JobQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.jobs)
	q.jobs = nil
	q.outstanding -= n
	if q.outstanding < 0 {
		panic("pipeline: JobQueue.Drain underflow")
	}
	if q.outstanding == 0 {
		q.allDone.Broadcast()
	}
	q.notFull.Broadcast()
	return n
}

// Close lifts the capacity bound and wakes every Put blocked on it. Once the
// pipeline is winding down the consumer will never free another slot, so a
// producer stuck in Put would otherwise wait forever. Jobs enqueued after
// Close are settled by Drain, not consumed. Close is idempotent.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notFull.Broadcast()
}

// Len returns the number of queued jobs not yet handed to the consumer.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Outstanding returns the current outstanding-task count.
func (q *JobQueue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}
