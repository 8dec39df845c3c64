package bot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpapad/go-discord-monitor/internal/repo"
)

// SweepInterval is the fixed cadence of the retention sweep.
const SweepInterval = time.Hour

// Sweeper deletes messages past the retention window on a fixed ticker.
//
// The interval is measured from the start of each tick, not from the end
// of the previous run. If a run is still in progress when the next tick
// fires the tick is silently skipped; sweeps never overlap.
type Sweeper struct {
	store    repo.Store
	log      zerolog.Logger
	interval time.Duration

	// running is 1 while a sweep is active.
	running atomic.Int32
	// stopCh is closed by Stop to end the ticker loop.
	stopCh chan struct{}
}

// NewSweeper builds a sweeper over store. Call Start to arm it.
func NewSweeper(store repo.Store, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, log: log, interval: SweepInterval}
}

// Start launches the ticker loop in its own goroutine. Callers (the
// connection manager) serialize Start/Stop; the sweeper can be re-armed
// after a Stop.
func (s *Sweeper) Start() {
	stop := make(chan struct{})
	s.stopCh = stop

	s.log.Info().Dur("interval", s.interval).Msg("retention sweeper armed")

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.RunOnce(context.Background())
			}
		}
	}()
}

// Stop disarms the pending timer; no sweep can fire after Stop returns.
// Safe to call when the sweeper was never started.
func (s *Sweeper) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
		s.log.Info().Msg("retention sweeper disarmed")
	}
}

// RunOnce executes a single sweep unless one is already in flight. It
// returns the number of deleted messages and whether the sweep actually
// ran. Failures are logged and swallowed: a failed cycle never takes the
// schedule down.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, bool) {
	if !s.running.CompareAndSwap(0, 1) {
		s.log.Warn().Msg("sweep tick skipped: previous run still active")
		return 0, false
	}
	defer s.running.Store(0)

	deleted, err := s.store.DeleteOldMessages(ctx)
	if err != nil {
		sweepFailures.Inc()
		s.log.Error().Err(err).Msg("retention sweep failed")
		return 0, true
	}

	messagesSwept.Add(float64(deleted))
	s.log.Info().Int64("deleted", deleted).Msg("retention sweep completed")
	return deleted, true
}
