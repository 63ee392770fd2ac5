package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/bulkrpc/datasource"
	"github.com/ozontech/bulkrpc/report"
	"github.com/ozontech/bulkrpc/report/multi"
	"github.com/ozontech/bulkrpc/report/noop"
	phoutReporter "github.com/ozontech/bulkrpc/report/phout"
	simpleReporter "github.com/ozontech/bulkrpc/report/simple"
	supersimpleReporter "github.com/ozontech/bulkrpc/report/supersimple"
	"github.com/ozontech/bulkrpc/scheduler"
)

type RPSConst struct {
	Freq     uint64        `arg:"" required:"" help:"Value calls/s."`
	Duration time.Duration `help:"Limit duration (10s, 2h...)."`
}

func (r RPSConst) AfterApply(kongCtx *kong.Context) error {
	var sched scheduler.Scheduler
	sched, err := scheduler.NewConstant(r.Freq)
	if err != nil {
		return err
	}
	kongCtx.BindTo(sched, (*scheduler.Scheduler)(nil))
	if r.Duration != 0 {
		kongCtx.Bind(DurationLimit{r.Duration})
	}
	return nil
}

type RPSLine struct {
	From     float64       `arg:"" required:"" help:"Starting calls/s."`
	To       float64       `arg:"" required:"" help:"Ending calls/s."`
	Duration time.Duration `arg:"" required:"" help:"Duration (10s, 2h...)."`
}

func (r RPSLine) AfterApply(kongCtx *kong.Context) error {
	sched, err := scheduler.NewLine(r.From, r.To, r.Duration)
	if err != nil {
		return err
	}
	kongCtx.BindTo(sched, (*scheduler.Scheduler)(nil))
	kongCtx.Bind(DurationLimit{r.Duration})
	return nil
}

type RPSUnlimited struct {
	Duration time.Duration `help:"Limit duration (10s, 2h...)."`
}

func (r RPSUnlimited) AfterApply(kongCtx *kong.Context) error {
	kongCtx.BindTo(scheduler.Unlimited{}, (*scheduler.Scheduler)(nil))
	if r.Duration != 0 {
		kongCtx.Bind(DurationLimit{r.Duration})
	}
	return nil
}

type RPS struct {
	Const     RPSConst     `cmd:"" group:"rps" help:"Const rps."`
	Line      RPSLine      `cmd:"" group:"rps" help:"Linear rps."`
	Unlimited RPSUnlimited `cmd:"" group:"rps" help:"Unlimited rps (default one)." default:""`
}

type DurationLimit struct {
	Duration time.Duration
}

type BenchCommand struct {
	Count       int64         `default:"10000" help:"Calls count."`
	Concurrency int           `default:"1" help:"Number of callers. 1 runs calls serially."`
	Method      string        `default:"version" help:"Method to call, without parameters."`
	Calls       *os.File      `help:"File of calls, one {\"method\": ..., \"params\": ...} JSON object per line. Overrides --method."`
	InmemCalls  bool          `help:"Load whole calls file in memory."`
	Timeout     time.Duration `default:"1s" help:"Call timeout."`
	Progress    bool          `help:"Print per-second progress."`
	Quiet       bool          `help:"Do not print the summary."`
	Phout       string        `help:"Phout report file." type:"path"`

	RPS
}

func (c *BenchCommand) Validate() error {
	if c.Count <= 0 {
		return errors.New("--count must be positive")
	}
	if c.Concurrency <= 0 {
		return errors.New("--concurrency must be positive")
	}
	return nil
}

func (c *BenchCommand) Run(
	ctx context.Context,
	g *Globals,
	log *zap.Logger,
	out io.Writer,
	sched scheduler.Scheduler,
	d DurationLimit,
) (err error) {
	var dataSource datasource.DataSource = datasource.Static{Method: c.Method}
	if c.Calls != nil {
		defer c.Calls.Close() //nolint:errcheck
		dataSource = datasource.NewFileDataSource(c.Calls)
		if c.InmemCalls {
			inmemDS := datasource.NewInmemDataSource(c.Calls)
			if err := inmemDS.Init(); err != nil {
				return fmt.Errorf("inmem datasource init: %w", err)
			}
			dataSource = inmemDS
		}
	}

	r, release, err := g.open(ctx, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, release()) }()

	var reporters []report.Reporter
	if !c.Quiet {
		reporters = append(reporters, simpleReporter.New(out))
	}
	if c.Progress {
		reporters = append(reporters, supersimpleReporter.New(out, c.Timeout))
	}
	if c.Phout != "" {
		f, createErr := os.Create(c.Phout)
		if createErr != nil {
			return fmt.Errorf("creating phout file(%s): %w", c.Phout, createErr)
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		reporters = append(reporters, phoutReporter.New(f, c.Timeout))
	}
	counter := noop.New()
	reporter := multi.New(append(reporters, counter)...)

	var rg errgroup.Group
	rg.Go(reporter.Run)

	sched = scheduler.NewCountLimiter(sched, c.Count)
	if d.Duration > 0 {
		sched = scheduler.NewDurationLimiter(sched, d.Duration)
	}
	pacer := scheduler.NewPacer(sched)

	log.Info("bench started",
		zap.Int64("count", c.Count),
		zap.Int("concurrency", c.Concurrency),
	)

	callers, callersCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.Concurrency; i++ {
		callers.Go(func() error {
			for pacer.Wait(callersCtx) {
				call, err := dataSource.Fetch()
				if err != nil {
					return err
				}
				c.call(callersCtx, r.Call, reporter, call)
			}
			return nil
		})
	}
	err = callers.Wait()

	st := r.Stats()
	log.Info("bench finished",
		zap.Uint64("calls", counter.Calls()),
		zap.Uint64("transfers_out", st.TransfersOut),
		zap.Uint64("transfers_in", st.TransfersIn),
		zap.Uint64("timeouts", st.Timeouts),
	)
	return multierr.Combine(err, reporter.Close(), rg.Wait())
}

func (c *BenchCommand) call(
	ctx context.Context,
	do func(ctx context.Context, method string, params, result any) error,
	reporter report.Reporter,
	call datasource.Call,
) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	state := reporter.Acquire(call.Method)
	if err := do(ctx, call.Method, call.Params, nil); err != nil {
		state.Error(err)
	}
	state.End()
}
