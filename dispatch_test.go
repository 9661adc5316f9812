package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type fakeQueue struct {
	submitted []WorkItem
}

func (q *fakeQueue) Submit(_ context.Context, item WorkItem) bool {
	q.submitted = append(q.submitted, item)
	item.Run()
	return true
}

func (q *fakeQueue) TrySubmit(ctx context.Context, item WorkItem) bool {
	return q.Submit(ctx, item)
}

type DispatchTestSuite struct {
	suite.Suite
}

func TestDispatchTestSuite(t *testing.T) {
	suite.Run(t, new(DispatchTestSuite))
}

func (ts *DispatchTestSuite) TestNewWorkItemRejectsNilCallback() {
	_, err := NewWorkItem(0, nil)
	ts.Error(err)
}

func (ts *DispatchTestSuite) TestWorkItemRunsExactlyOnce() {
	ran := 0
	item, err := NewWorkItem(1, func() { ran++ })
	ts.Require().NoError(err)
	ts.True(item.Valid())
	item.Run()
	ts.Equal(1, ran)
}

func (ts *DispatchTestSuite) TestSubmitNilQueueReturnsFalse() {
	item, _ := NewWorkItem(0, func() {})
	ts.False(Submit(context.Background(), nil, item))
}

func (ts *DispatchTestSuite) TestSubmitDelegatesToQueue() {
	q := &fakeQueue{}
	item, _ := NewWorkItem(0, func() {})
	ts.True(Submit(context.Background(), q, item))
	ts.Len(q.submitted, 1)
}

func (ts *DispatchTestSuite) TestEnvironmentBindingsAndClone() {
	env := NewEnvironment(&fakeQueue{})
	env.Set("k", "v")

	v, ok := env.Get("k")
	ts.True(ok)
	ts.Equal("v", v)

	clone := env.Clone()
	clone.Set("k2", "v2")
	_, ok = env.Get("k2")
	ts.False(ok, "mutating a clone must not leak back into the original")
}

func (ts *DispatchTestSuite) TestEnvironmentWithQueue() {
	q1 := &fakeQueue{}
	q2 := &fakeQueue{}
	env := NewEnvironment(q1)
	rerouted := env.WithQueue(q2)

	ts.Equal(q1, env.Queue())
	ts.Equal(q2, rerouted.Queue())
}

func (ts *DispatchTestSuite) TestBindInstallsAndRestoresCurrent() {
	q := &fakeQueue{}
	env := NewEnvironment(q)

	var sawEnv *Environment
	fn := env.Bind(context.Background(), func(ctx context.Context) {
		sawEnv, _ = Current(ctx)
	}, nil)
	fn()

	ts.Same(env, sawEnv)
	_, ok := Current(context.Background())
	ts.False(ok)
}

func (ts *DispatchTestSuite) TestBindRunsCleanupsInReverseOrder() {
	env := NewEnvironment(&fakeQueue{})
	var order []int
	env.AttachCleanup(func() { order = append(order, 1) })
	env.AttachCleanup(func() { order = append(order, 2) })

	fn := env.Bind(context.Background(), func(context.Context) {}, nil)
	fn()

	ts.Equal([]int{2, 1}, order)
}

func (ts *DispatchTestSuite) TestBindRecoversPanicAndStillRunsCleanups() {
	env := NewEnvironment(&fakeQueue{})
	cleaned := false
	env.AttachCleanup(func() { cleaned = true })

	var recovered any
	fn := env.Bind(context.Background(), func(context.Context) {
		panic("boom")
	}, func(r any) { recovered = r })

	ts.NotPanics(fn)
	ts.Equal("boom", recovered)
	ts.True(cleaned)
}

func (ts *DispatchTestSuite) TestSubmitWithCurrentEnvUsesInstalledEnv() {
	q := &fakeQueue{}
	env := NewEnvironment(q)
	ctx := WithEnvironment(context.Background(), env)

	ok := SubmitWithCurrentEnv(ctx, q, 0, func(context.Context) {}, nil)
	ts.True(ok)
	ts.Len(q.submitted, 1)
}

func (ts *DispatchTestSuite) TestSubmitWithClonedEnvDoesNotMutateOriginal() {
	q := &fakeQueue{}
	env := NewEnvironment(q)
	env.Set("shared", 1)
	ctx := WithEnvironment(context.Background(), env)

	var seenEnv *Environment
	ok := SubmitWithClonedEnv(ctx, q, 0, func(innerCtx context.Context) {
		seenEnv, _ = Current(innerCtx)
		seenEnv.Set("only-on-clone", true)
	}, nil)
	ts.True(ok)

	_, has := env.Get("only-on-clone")
	ts.False(has)
}
