package rendezvous

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/go-foundations/dispatch/dispatcherr"
)

type RendezvousTestSuite struct {
	suite.Suite
}

func TestRendezvousTestSuite(t *testing.T) {
	suite.Run(t, new(RendezvousTestSuite))
}

func (ts *RendezvousTestSuite) TestSignalThenWaitRunsActionImmediately() {
	e := New()
	e.Signal()

	ran := false
	err := e.Wait(func() { ran = true })
	ts.NoError(err)
	ts.True(ran, "binding a waiter to an already-signaled event must fire the action")
}

func (ts *RendezvousTestSuite) TestWaitThenSignalRunsActionOnSignal() {
	e := New()
	ran := false
	err := e.Wait(func() { ran = true })
	ts.NoError(err)
	ts.False(ran, "the action must not fire until Signal pairs with it")

	e.Signal()
	ts.True(ran)
}

func (ts *RendezvousTestSuite) TestDoubleWaitFails() {
	e := New()
	ts.NoError(e.Wait(func() {}))
	ts.ErrorIs(e.Wait(func() {}), dispatcherr.ErrRendezvousAlreadyBound)
}

func (ts *RendezvousTestSuite) TestSignalTwiceIsIdempotent() {
	e := New()
	e.Signal()
	e.Signal()
	ts.NoError(e.Wait(func() {}))
}

func (ts *RendezvousTestSuite) TestIsReadyOrWaitReportsReadinessWithoutRunningAction() {
	e := New()
	ready, err := e.IsReadyOrWait(func() {})
	ts.NoError(err)
	ts.False(ready)

	e2 := New()
	e2.Signal()
	ready, err = e2.IsReadyOrWait(func() { ts.Fail("must not run the action when already signaled") })
	ts.NoError(err)
	ts.True(ready)
}

func (ts *RendezvousTestSuite) TestAbandonReleasesPendingCounter() {
	before := Pending()
	e := New()
	ts.Equal(before+1, Pending())

	e.Abandon()
	ts.Equal(before, Pending())
}

func (ts *RendezvousTestSuite) TestAbandonOnUsedEventIsNoop() {
	e := New()
	e.Signal()
	ts.NoError(e.Wait(func() {})) // pairs immediately; event is now stateUsed
	before := Pending()
	e.Abandon()
	ts.Equal(before, Pending())
}

func (ts *RendezvousTestSuite) TestConcurrentSignalAndWait() {
	e := New()
	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		e.Signal()
	}()

	err := e.Wait(func() { close(done) })
	ts.NoError(err)
	<-done
}
