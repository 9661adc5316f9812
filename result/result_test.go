package result

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/dispatcherr"
)

type recordingQueue struct {
	mu    sync.Mutex
	items []dispatch.WorkItem
}

func (q *recordingQueue) Submit(_ context.Context, item dispatch.WorkItem) bool {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	item.Run()
	return true
}

func (q *recordingQueue) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	return q.Submit(ctx, item)
}

type ResultTestSuite struct {
	suite.Suite
}

func TestResultTestSuite(t *testing.T) {
	suite.Run(t, new(ResultTestSuite))
}

func (ts *ResultTestSuite) TestReturnThenValue() {
	r := New[int]()
	ts.NoError(r.Return(42))
	ts.True(r.HasValue())
	ts.False(r.HasException())

	v, err := r.Value()
	ts.NoError(err)
	ts.Equal(42, v)
}

func (ts *ResultTestSuite) TestThrowThenValueReraises() {
	r := New[int]()
	boom := dispatcherr.ErrIllegalArgument
	ts.NoError(r.Throw(boom))
	ts.True(r.HasException())

	_, err := r.Value()
	ts.ErrorIs(err, boom)
}

func (ts *ResultTestSuite) TestDoubleCompletionFails() {
	r := New[int]()
	ts.NoError(r.Return(1))
	ts.ErrorIs(r.Return(2), dispatcherr.ErrResultAlreadyCompleted)
}

func (ts *ResultTestSuite) TestWhenDoneRunsInlineAfterCompletion() {
	r := New[string]()
	ts.NoError(r.Return("done"))

	var got string
	r.WhenDone(func(res *Result[string]) {
		got, _ = res.Value()
	})
	ts.Equal("done", got)
}

func (ts *ResultTestSuite) TestWhenDoneAttachedBeforeCompletion() {
	r := New[int]()
	done := make(chan int, 1)
	r.WhenDone(func(res *Result[int]) {
		v, _ := res.Value()
		done <- v
	})

	ts.NoError(r.Return(7))
	select {
	case v := <-done:
		ts.Equal(7, v)
	case <-time.After(time.Second):
		ts.Fail("continuation never ran")
	}
}

func (ts *ResultTestSuite) TestSecondContinuationIgnored() {
	r := New[int]()
	var firstRan, secondRan bool
	r.WhenDone(func(*Result[int]) { firstRan = true })
	r.WhenDone(func(*Result[int]) { secondRan = true })

	ts.NoError(r.Return(1))
	ts.True(firstRan)
	ts.False(secondRan)
}

func (ts *ResultTestSuite) TestContinuationRoutesThroughQueue() {
	q := &recordingQueue{}
	r := NewOnQueue[int](q)
	r.WhenDone(func(*Result[int]) {})

	ts.NoError(r.Return(9))
	ts.Len(q.items, 1)
}

func (ts *ResultTestSuite) TestBlockTimesOutWhilePending() {
	r := New[int]()
	err := r.Block(10 * time.Millisecond)
	ts.ErrorIs(err, dispatcherr.ErrTimeout)
}

func (ts *ResultTestSuite) TestBlockReturnsOnceCompleted() {
	r := New[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = r.Return(3)
	}()

	ts.NoError(r.Block(time.Second))
	v, _ := r.Value()
	ts.Equal(3, v)
}

func (ts *ResultTestSuite) TestBlockTimeoutDoesNotLeaveWaiterGoroutine() {
	before := runtime.NumGoroutine()

	r := New[int]()
	for i := 0; i < 50; i++ {
		_ = r.Block(time.Millisecond)
	}

	ts.Require().NoError(r.Return(1))
	ts.Eventually(func() bool {
		return runtime.NumGoroutine() <= before+2
	}, time.Second, 10*time.Millisecond, "Block should not spawn a waiter goroutine per timed-out call")
}
