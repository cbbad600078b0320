package token

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cleanup is a running sweep schedule.
type Cleanup struct {
	cron   *cron.Cron
	cancel context.CancelFunc
	once   sync.Once
}

// ScheduledCleanup starts sweeping every interval (the configured sweep
// interval when interval <= 0). A failed or panicking pass is logged and the
// schedule keeps going. Intervals below one second are rounded up.
func (s *Service) ScheduledCleanup(interval time.Duration) *Cleanup {
	if interval <= 0 {
		interval = s.cfg.SweepInterval
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(cl),
		// Recover runs inside SkipIfStillRunning so a panicking pass still
		// releases the running slot.
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	c.Schedule(cron.Every(interval), cron.FuncJob(func() { s.sweepOnce(ctx) }))
	c.Start()

	s.log.Info().Dur("interval", interval).Dur("window", s.cfg.ExpirationWindow).Msg("token cleanup scheduled")
	return &Cleanup{cron: c, cancel: cancel}
}

func (s *Service) sweepOnce(ctx context.Context) {
	removed, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("token sweep failed")
		return
	}
	s.log.Info().Int64("removed", removed).Msg("token sweep done")
}

// Stop cancels the schedule and any running pass, then waits for the pass to
// return or for ctx to end.
func (c *Cleanup) Stop(ctx context.Context) error {
	var done context.Context
	c.once.Do(func() {
		c.cancel()
		done = c.cron.Stop()
	})
	if done == nil {
		return nil
	}

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
