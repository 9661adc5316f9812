// Command dispatchdemo is a runnable hosting application wiring every
// dispatcher component together: configuration, logging, metrics, the
// global tick, the broker, and one elastic priority thread pool, fed a
// stream of mixed-priority demo work. It is not part of the core — an
// example the way the teacher's examples/http_example was, not a required
// surface.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/broker"
	"github.com/go-foundations/dispatch/config"
	"github.com/go-foundations/dispatch/observability"
	"github.com/go-foundations/dispatch/pool"
	"github.com/go-foundations/dispatch/tick"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "automaxprocs: %v\n", err)
	}

	bootLogger := observability.FromEnv()
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal("loading configuration", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = bootLogger
	}
	defer logger.Sync()
	if cfg.MaxThreads <= 0 || cfg.MaxThreads > runtime.GOMAXPROCS(0)*64 {
		cfg.MaxThreads = runtime.GOMAXPROCS(0) * 64
	}

	shutdownMetrics, err := observability.SetupMetrics("dispatchdemo", logger)
	if err != nil {
		logger.Fatal("setting up metrics", zap.Error(err))
	}
	defer shutdownMetrics()

	g := tick.New(cfg.TickInterval(), logger)
	g.Start()
	defer g.Shutdown(5 * time.Second)

	b := broker.New(broker.Config{
		MaxThreads:    cfg.MaxThreads,
		TargetReserve: cfg.ReservedDispatchThreads,
		MinReserve:    cfg.MinReservedDispatchThreads,
	}, logger)
	b.Start(g, sampleProcessLoad)
	defer b.Shutdown()

	if _, err := observability.NewBrokerInstruments(
		func() int64 { return int64(b.AllocatedThreads()) },
		func() int64 { return int64(b.ReserveSize()) },
		b.CurrentLoad,
	); err != nil {
		logger.Warn("broker instruments unavailable", zap.Error(err))
	}

	p := pool.New(pool.Config{
		Name:        "dispatchdemo",
		MinReserved: 2,
		MaxParallel: runtime.GOMAXPROCS(0) * 4,
		MaxPriority: 3,
	}, b, logger)

	if _, err := observability.NewHostInstruments(p.Name(),
		func() int64 { return int64(p.ThreadCount()) },
		p.PendingItems,
	); err != nil {
		logger.Warn("host instruments unavailable", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return runDemoLoad(gctx, p, logger) })

	if err := group.Wait(); err != nil {
		logger.Error("demo run finished with error", zap.Error(err))
	}

	disposeCtx, disposeCancel := context.WithTimeout(context.Background(), time.Second)
	defer disposeCancel()
	p.Dispose(disposeCtx)

	logger.Info("dispatchdemo finished")
}

// runDemoLoad submits a burst of mixed-priority callbacks and then waits two
// seconds (or until ctx is done, if that comes first), giving the broker's
// feedback loop time to ramp the pool up and back down.
func runDemoLoad(ctx context.Context, p *pool.Pool, logger *zap.Logger) error {
	for i := 0; i < 200; i++ {
		priority := rand.Intn(4)
		q := p.Queue(priority)
		n := i
		item, err := dispatch.NewWorkItem(priority, func() {
			time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
			logger.Debug("demo item ran", zap.Int("n", n), zap.Int("priority", priority))
		})
		if err != nil {
			continue
		}
		if !dispatch.Submit(ctx, q, item) {
			logger.Warn("demo item rejected", zap.Int("n", n))
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return nil
	}
}

// sampleProcessLoad is a placeholder CPU load source for the demo: an
// independent uniform random reading in [0,1) on every call rather than a
// real /proc/stat reading, since the core's CPU sampler only needs a
// func() float64 in [0,1].
func sampleProcessLoad() float64 {
	return rand.Float64()
}
