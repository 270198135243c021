package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/tutor/internal/adapters/mq/queue"
	worker "github.com/okian/tutor/internal/adapters/mq/worker"
	model "github.com/okian/tutor/internal/domain/model"
	logging "github.com/okian/tutor/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	logging.Init()
}

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

// mockReviewer returns a scripted outcome per entry id.
type mockReviewer struct {
	mu       sync.Mutex
	outcomes map[string]model.OutcomeKind
	delay    time.Duration
	seen     []string
}

func newMockReviewer() *mockReviewer {
	return &mockReviewer{outcomes: make(map[string]model.OutcomeKind)}
}

func (r *mockReviewer) Review(ctx context.Context, job model.ReviewJob) model.ReviewOutcome {
	r.mu.Lock()
	r.seen = append(r.seen, job.Entry.ID)
	kind := r.outcomes[job.Entry.ID]
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.ReviewOutcome{Kind: model.OutcomeFailed, Err: ctx.Err()}
		}
	}
	if kind == model.OutcomeFailed {
		return model.ReviewOutcome{Kind: kind, Err: errors.New("generator down")}
	}
	return model.ReviewOutcome{Kind: kind}
}

// collector gathers outcomes reported through ReviewJob.Done.
type collector struct {
	mu  sync.Mutex
	got map[string]model.ReviewOutcome
	wg  sync.WaitGroup
}

func newCollector(n int) *collector {
	c := &collector{got: make(map[string]model.ReviewOutcome)}
	c.wg.Add(n)
	return c
}

func (c *collector) job(id string) queue.Job {
	return queue.Job{
		Entry: model.MemoryEntry{ID: id, ConceptID: "c-" + id},
		Done: func(o model.ReviewOutcome) {
			c.mu.Lock()
			c.got[o.EntryID] = o
			c.mu.Unlock()
			c.wg.Done()
		},
	}
}

func (c *collector) wait(d time.Duration) bool {
	ch := make(chan struct{})
	go func() { c.wg.Wait(); close(ch) }()
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker with a scripted reviewer", t, func() {
		q := newMockQueue()
		r := newMockReviewer()
		r.outcomes["e2"] = model.OutcomeSuperseded
		r.outcomes["e3"] = model.OutcomeFailed
		w := worker.NewInMemoryWorker(q, r, worker.WithName("test"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs with different outcomes are processed", func() {
			c := newCollector(3)
			for _, id := range []string{"e1", "e2", "e3"} {
				q.jobs <- c.job(id)
			}

			convey.Convey("Then each job reports its own outcome", func() {
				convey.So(c.wait(2*time.Second), convey.ShouldBeTrue)
				convey.So(c.got["e1"].Kind, convey.ShouldEqual, model.OutcomeLocked)
				convey.So(c.got["e2"].Kind, convey.ShouldEqual, model.OutcomeSuperseded)
				convey.So(c.got["e3"].Kind, convey.ShouldEqual, model.OutcomeFailed)
				convey.So(c.got["e3"].Err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a reviewer slower than the job timeout", t, func() {
		q := newMockQueue()
		r := newMockReviewer()
		r.delay = time.Second
		w := worker.NewInMemoryWorker(q, r, worker.WithJobTimeout(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		c := newCollector(1)
		q.jobs <- c.job("slow")

		convey.Convey("Then the job fails with a deadline error", func() {
			convey.So(c.wait(time.Second), convey.ShouldBeTrue)
			convey.So(c.got["slow"].Kind, convey.ShouldEqual, model.OutcomeFailed)
			convey.So(errors.Is(c.got["slow"].Err, context.DeadlineExceeded), convey.ShouldBeTrue)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of four workers", t, func() {
		q := newMockQueue()
		r := newMockReviewer()
		r.delay = 50 * time.Millisecond
		pool := worker.NewPool(4, q, r)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When four slow jobs arrive together", func() {
			c := newCollector(4)
			start := time.Now()
			for _, id := range []string{"a", "b", "c", "d"} {
				q.jobs <- c.job(id)
			}

			convey.Convey("Then they run concurrently", func() {
				convey.So(c.wait(2*time.Second), convey.ShouldBeTrue)
				convey.So(time.Since(start), convey.ShouldBeLessThan, 180*time.Millisecond)
				convey.So(c.got, convey.ShouldHaveLength, 4)
			})
		})

		convey.Convey("When the pool is shut down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then the queue is closed and a later Stop is safe", func() {
				convey.So(err, convey.ShouldBeNil)
				_, open := <-q.jobs
				convey.So(open, convey.ShouldBeFalse)
				convey.So(func() { pool.Stop() }, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given one busy worker with reviews still queued", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		r := newMockReviewer()
		r.delay = 100 * time.Millisecond
		pool := worker.NewPool(1, q, r)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		c := newCollector(4)
		for _, id := range []string{"a", "b", "c", "d"} {
			convey.So(q.Enqueue(ctx, c.job(id)), convey.ShouldBeNil)
		}
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			r.mu.Lock()
			n := len(r.seen)
			r.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}

		convey.Convey("When the pool is shut down", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then every job reports an outcome and the queue is empty", func() {
				convey.So(c.wait(2*time.Second), convey.ShouldBeTrue)
				convey.So(c.got, convey.ShouldHaveLength, 4)
				convey.So(q.Len(ctx), convey.ShouldEqual, 0)

				shut := 0
				for _, o := range c.got {
					if errors.Is(o.Err, worker.ErrShutdown) || errors.Is(o.Err, context.Canceled) {
						shut++
					}
				}
				convey.So(shut, convey.ShouldBeGreaterThan, 0)
			})
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newMockReviewer())

		convey.Convey("Then one worker per CPU is created", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
