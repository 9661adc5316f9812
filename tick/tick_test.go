package tick

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type TickTestSuite struct {
	suite.Suite
}

func TestTickTestSuite(t *testing.T) {
	suite.Run(t, new(TickTestSuite))
}

func (ts *TickTestSuite) TestAddAndFireOnInterval() {
	g := New(5*time.Millisecond, nil)
	var mu sync.Mutex
	count := 0
	g.Add("counter", func(time.Time, time.Duration) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	g.Start()
	defer g.Shutdown(time.Second)

	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	got := count
	mu.Unlock()
	ts.Greater(got, 0)
}

func (ts *TickTestSuite) TestRemoveStopsFutureCallbacks() {
	g := New(5*time.Millisecond, nil)
	var mu sync.Mutex
	count := 0
	ref := g.Add("counter", func(time.Time, time.Duration) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	g.Start()
	defer g.Shutdown(time.Second)

	time.Sleep(20 * time.Millisecond)
	g.Remove(ref)

	mu.Lock()
	afterRemove := count
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	final := count
	mu.Unlock()
	ts.Equal(afterRemove, final)
}

func (ts *TickTestSuite) TestRemoveStaysValidAcrossLaterAdds() {
	g := New(5*time.Millisecond, nil)
	var mu sync.Mutex
	count := 0
	ref := g.Add("first", func(time.Time, time.Duration) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Each later Add grows the registry, which previously invalidated refs
	// returned by earlier Add calls.
	for i := 0; i < 3; i++ {
		g.Add("filler", func(time.Time, time.Duration) {})
	}

	g.Remove(ref)
	g.Start()
	defer g.Shutdown(time.Second)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	ts.Equal(0, count, "ref taken before later Add calls must still remove the right callback")
}

func (ts *TickTestSuite) TestPanicInOneCallbackDoesNotStopOthers() {
	g := New(5*time.Millisecond, nil)
	var mu sync.Mutex
	safeRan := false

	g.Add("panicker", func(time.Time, time.Duration) { panic("boom") })
	g.Add("safe", func(time.Time, time.Duration) {
		mu.Lock()
		safeRan = true
		mu.Unlock()
	})
	g.Start()
	defer g.Shutdown(time.Second)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	ts.True(safeRan)
}

func (ts *TickTestSuite) TestFastForwardAdvancesNow() {
	g := New(time.Hour, nil)
	start := g.Now()
	g.FastForward(time.Minute)
	ts.True(g.Now().Sub(start) >= time.Minute)
}

func (ts *TickTestSuite) TestShutdownWithoutStartReturnsTrue() {
	g := New(time.Second, nil)
	ts.True(g.Shutdown(time.Millisecond))
}

func (ts *TickTestSuite) TestStartTwiceIsIdempotent() {
	g := New(5*time.Millisecond, nil)
	g.Start()
	g.Start()
	ts.True(g.Shutdown(time.Second))
}
