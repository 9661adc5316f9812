package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/worker"
)

type fakeBroker struct {
	mu      sync.Mutex
	nextID  int
	workers []*worker.Worker
}

func newFakeBroker() *fakeBroker { return &fakeBroker{} }

func (b *fakeBroker) RequestThread(minRequired int, onThreadReady func(w *worker.Worker)) error {
	need := minRequired
	if need <= 0 {
		need = 1
	}
	for i := 0; i < need; i++ {
		b.mu.Lock()
		b.nextID++
		w := worker.New(b.nextID, nil)
		b.mu.Unlock()
		go w.Run(context.Background())
		onThreadReady(w)
	}
	return nil
}

func (b *fakeBroker) ReleaseThread(w *worker.Worker) { w.Shutdown() }
func (b *fakeBroker) RegisterHost(Host)               {}
func (b *fakeBroker) UnregisterHost(Host)             {}

type PoolTestSuite struct {
	suite.Suite
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (ts *PoolTestSuite) newPool(minReserved, maxParallel, maxPriority int) *Pool {
	return New(Config{
		Name:        "test-pool",
		MinReserved: minReserved,
		MaxParallel: maxParallel,
		MaxPriority: maxPriority,
	}, newFakeBroker(), nil)
}

func (ts *PoolTestSuite) TestQueueReturnsNilForOutOfRangePriority() {
	p := ts.newPool(0, 4, 2)
	ts.Nil(p.Queue(-1))
	ts.Nil(p.Queue(3))
	ts.NotNil(p.Queue(0))
}

func (ts *PoolTestSuite) TestTrySubmitRunsItemEventually() {
	p := ts.newPool(0, 4, 2)
	ran := make(chan struct{})
	item, err := dispatch.NewWorkItem(1, func() { close(ran) })
	ts.Require().NoError(err)

	ts.True(p.TrySubmit(context.Background(), 1, item))

	select {
	case <-ran:
	case <-time.After(time.Second):
		ts.Fail("submitted item never ran")
	}
}

func (ts *PoolTestSuite) TestTrySubmitRejectsOutOfRangePriority() {
	p := ts.newPool(0, 4, 1)
	item, _ := dispatch.NewWorkItem(0, func() {})
	ts.False(p.TrySubmit(context.Background(), 5, item))
}

func (ts *PoolTestSuite) TestTrySubmitRejectsAfterDispose() {
	p := ts.newPool(0, 4, 1)
	p.Dispose(context.Background())

	item, _ := dispatch.NewWorkItem(0, func() {})
	ts.False(p.TrySubmit(context.Background(), 0, item))
}

func (ts *PoolTestSuite) TestPendingItemsReflectsInboxBacklog() {
	p := ts.newPool(0, 1, 1)
	p.ApplyVelocity(VelocityDecrease)

	item, _ := dispatch.NewWorkItem(0, func() {})
	ts.True(p.inbox.TryEnqueue(0, item))
	ts.EqualValues(1, p.PendingItems())
}

func (ts *PoolTestSuite) TestApplyVelocityIsObservable() {
	p := ts.newPool(0, 4, 1)
	p.ApplyVelocity(VelocityIncrease)
	ts.Equal(VelocityIncrease, p.currentVelocity())
}

func (ts *PoolTestSuite) TestRequestWorkItemRemovesWorkerWhenVelocityNegative() {
	p := ts.newPool(0, 4, 1)
	p.ApplyVelocity(VelocityDecrease)

	w := worker.New(99, nil)
	p.activate(w)
	p.RequestWorkItem(w)

	ts.Equal(0, p.ThreadCount())
}

func (ts *PoolTestSuite) TestSubmitsGrowThreadCountPastOne() {
	p := ts.newPool(0, 8, 1)

	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(4)
	for i := 0; i < 4; i++ {
		item, _ := dispatch.NewWorkItem(0, func() {
			started.Done()
			<-block
		})
		ts.True(p.TrySubmit(context.Background(), 0, item))
	}

	done := make(chan struct{})
	go func() { started.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		ts.Fail("pool never grew enough active workers to run all four blocked items concurrently")
	}

	ts.Greater(p.ThreadCount(), 1)
	close(block)
}

func (ts *PoolTestSuite) TestIncreaseThreadCountDoesNotNoOpOnPositiveVelocity() {
	p := ts.newPool(0, 4, 1)
	p.ApplyVelocity(VelocityIncrease)

	item, _ := dispatch.NewWorkItem(0, func() { time.Sleep(20 * time.Millisecond) })
	ts.True(p.inbox.TryEnqueue(0, item))
	p.increaseThreadCount()

	ts.Eventually(func() bool { return p.ThreadCount() == 1 }, time.Second, 5*time.Millisecond)
}

func (ts *PoolTestSuite) TestDisposeDrainsActiveThreads() {
	p := ts.newPool(0, 4, 1)
	item, _ := dispatch.NewWorkItem(0, func() { time.Sleep(5 * time.Millisecond) })
	ts.True(p.TrySubmit(context.Background(), 0, item))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Dispose(ctx)

	ts.Equal(0, p.ThreadCount())
}
