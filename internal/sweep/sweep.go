// Package sweep implements the orphaned-session retention sweep described in
// SPEC_FULL.md §12.3: a background goroutine, grounded on the teacher's
// runOrphanDetection inside WorkerPool.Start, that force-transitions call
// sessions stuck in a non-terminal state past a configurable threshold to
// failed.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudonix/voicerouter/internal/events"
	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/statemachine"
)

// SessionLister is the relational read side the sweep scans.
type SessionLister interface {
	ListOrphaned(ctx context.Context, cutoffUnix int64, terminalStates []string) ([]models.CallSession, error)
}

var terminalStates = []string{
	string(models.StateCompleted),
	string(models.StateBusy),
	string(models.StateFailed),
	string(models.StateNoAnswer),
}

// Sweeper periodically recovers orphaned sessions. All instances run this
// independently; the transition itself is idempotent against re-scans since
// a session force-failed once becomes terminal and drops out of the query.
type Sweeper struct {
	sessions  SessionLister
	machine   *statemachine.Machine
	pub       *events.Publisher
	interval  time.Duration
	threshold time.Duration
	log       *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Sweeper. interval/threshold default to 5m/2h, matching
// config.SweepConfig's defaults.
func New(sessions SessionLister, machine *statemachine.Machine, pub *events.Publisher, interval, threshold time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if threshold <= 0 {
		threshold = 2 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		sessions:  sessions,
		machine:   machine,
		pub:       pub,
		interval:  interval,
		threshold: threshold,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background scan loop. Call Stop to drain it.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the loop to exit and blocks until it has.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.log.Error("sweep: orphan scan failed", "error", err)
			}
		}
	}
}

// sweepOnce runs a single scan-and-recover pass. The TestSweepOnce_* tests
// call it directly to avoid waiting on a ticker.
func (s *Sweeper) sweepOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-s.threshold).Unix()

	orphans, err := s.sessions.ListOrphaned(ctx, cutoff, terminalStates)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	s.log.Warn("sweep: detected orphaned sessions", "count", len(orphans))

	recovered, failed := 0, 0
	for i := range orphans {
		if err := s.recover(ctx, &orphans[i]); err != nil {
			s.log.Error("sweep: failed to recover orphaned session", "session_token", orphans[i].SessionToken, "error", err)
			failed++
			continue
		}
		recovered++
	}

	if failed > 0 {
		s.log.Warn("sweep: recovery pass completed with failures", "total", len(orphans), "recovered", recovered, "failed", failed)
	}
	return nil
}

func (s *Sweeper) recover(ctx context.Context, session *models.CallSession) error {
	log := s.log.With("session_token", session.SessionToken, "tenant_id", session.TenantID, "from_state", session.CurrentState)

	// StateReceived has no direct edge to StateFailed in the transition
	// table (spec.md §4.1): a session that never reached routing still has
	// to pass through queued first.
	if session.CurrentState == models.StateReceived {
		if err := s.machine.Transition(ctx, session, models.StateQueued, map[string]any{"reason": "orphan_sweep"}); err != nil {
			return err
		}
	}

	err := s.machine.Transition(ctx, session, models.StateFailed, map[string]any{
		"reason": "orphan_sweep",
		"note":   "no terminal webhook received before the retention threshold elapsed",
	})
	if err != nil {
		return err
	}

	s.pub.Publish(ctx, session.TenantID, events.ScopeCalls, events.TypeCallUpdated, map[string]any{
		"session_token": session.SessionToken,
		"state":         session.CurrentState,
		"reason":        "orphan_sweep",
	})

	log.Warn("sweep: orphaned session force-failed")
	return nil
}
