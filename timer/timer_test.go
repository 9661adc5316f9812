package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/tick"
)

type recordingQueue struct {
	mu  sync.Mutex
	ran int
}

func (q *recordingQueue) Submit(_ context.Context, item dispatch.WorkItem) bool {
	item.Run()
	q.mu.Lock()
	q.ran++
	q.mu.Unlock()
	return true
}

func (q *recordingQueue) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	return q.Submit(ctx, item)
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ran
}

type TimerTestSuite struct {
	suite.Suite
}

func TestTimerTestSuite(t *testing.T) {
	suite.Run(t, new(TimerTestSuite))
}

func (ts *TimerTestSuite) TestTimerFiresOnceDeadlineCrossed() {
	g := tick.New(5*time.Millisecond, nil)
	g.Start()
	defer g.Shutdown(time.Second)

	f := NewFactory(g, nil)
	defer f.Dispose()

	q := &recordingQueue{}
	env := dispatch.NewEnvironment(q)
	f.New(g.Now().Add(10*time.Millisecond), q, env, func(context.Context) {})

	ts.Eventually(func() bool { return q.count() == 1 }, time.Second, 5*time.Millisecond)
}

func (ts *TimerTestSuite) TestChangeInfiniteCancels() {
	g := tick.New(5*time.Millisecond, nil)
	g.Start()
	defer g.Shutdown(time.Second)

	f := NewFactory(g, nil)
	defer f.Dispose()

	q := &recordingQueue{}
	env := dispatch.NewEnvironment(q)
	tm := f.New(g.Now().Add(10*time.Millisecond), q, env, func(context.Context) {})
	tm.Change(farFuture)

	time.Sleep(30 * time.Millisecond)
	ts.Equal(0, q.count())
}

func (ts *TimerTestSuite) TestDisposedFactoryDropsFirings() {
	g := tick.New(5*time.Millisecond, nil)
	g.Start()
	defer g.Shutdown(time.Second)

	f := NewFactory(g, nil)
	q := &recordingQueue{}
	env := dispatch.NewEnvironment(q)
	f.New(g.Now().Add(50*time.Millisecond), q, env, func(context.Context) {})
	f.Dispose()

	time.Sleep(80 * time.Millisecond)
	ts.Equal(0, q.count())
}
