package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apimetry/apimetry-go/pkg/hub"
)

// tickResolution is how often the loop wakes to check its schedules. The
// sync cadence and handshake backoff are both expressed on top of this
// base tick, which also makes the initial-interval switchover cheap.
const tickResolution = time.Second

// syncer runs the background loop: handshake with backoff, periodic
// snapshot+send, request log shipping, and the bounded shutdown drain.
// All schedule state lives in the loop goroutine; only the state word is
// shared.
type syncer struct {
	client *Client

	state    atomic.Int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	startedAt       time.Time
	lastSyncAt      time.Time
	windowStart     time.Time
	handshakeDelay  *expBackoff
	nextHandshakeAt time.Time

	// now is stubbed in tests.
	now func() time.Time
}

func newSyncer(c *Client) *syncer {
	s := &syncer{
		client: c,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}
	s.handshakeDelay = newExpBackoff(c.cfg.Sync.HandshakeBaseDelay, c.cfg.Sync.Interval)
	return s
}

func (s *syncer) State() State {
	return State(s.state.Load())
}

func (s *syncer) setState(state State) {
	s.state.Store(int32(state))
}

func (s *syncer) start() error {
	if !s.state.CompareAndSwap(int32(StateInit), int32(StateHandshakePending)) {
		return fmt.Errorf("client already started (state %s)", s.State())
	}
	go s.run()
	return nil
}

func (s *syncer) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *syncer) run() {
	defer close(s.doneCh)

	s.startedAt = s.now()
	s.windowStart = s.startedAt
	s.nextHandshakeAt = s.startedAt

	ticker := time.NewTicker(tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case <-ticker.C:
			s.tick(s.now())
			if s.State() == StateStopped {
				return
			}
		}
	}
}

// tick advances whichever schedule is due. Ticks are strictly
// sequential, so a new sync can never start while a previous send is in
// flight.
func (s *syncer) tick(now time.Time) {
	if s.client.requestLog.Enabled() {
		if err := s.client.requestLog.WriteToFile(); err != nil {
			s.client.logger.Debugw("Failed to write request log file", "error", err)
		}
		s.client.requestLog.Maintain()
	}

	switch s.State() {
	case StateHandshakePending:
		if now.Before(s.nextHandshakeAt) {
			return
		}
		s.attemptHandshake(now)
	case StateRunning:
		if now.Sub(s.lastSyncAt) < s.interval(now) {
			return
		}
		s.sync(now)
	default:
	}
}

// interval returns the current sync cadence: the faster initial interval
// shortly after startup, the regular one afterwards.
func (s *syncer) interval(now time.Time) time.Duration {
	initial := s.client.cfg.Sync.InitialInterval
	if initial > 0 && now.Sub(s.startedAt) < s.client.cfg.Sync.InitialIntervalDuration {
		return initial
	}
	return s.client.cfg.Sync.Interval
}

// attemptHandshake sends the startup payload once. On failure the next
// attempt is scheduled with exponentially growing delay, capped at the
// sync interval; on success the loop switches to RUNNING with a full
// interval until the first sync.
func (s *syncer) attemptHandshake(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.cfg.Hub.RetryBudget)
	err := s.client.sender.SendStartup(ctx, s.client.startupPayload())
	cancel()

	switch {
	case err == nil:
		s.client.logger.Infow("Hub handshake complete")
		s.lastSyncAt = now
		s.windowStart = now
		s.setState(StateRunning)
	case errors.Is(err, hub.ErrInvalidClientID):
		s.client.logger.Errorw("Hub rejected client ID, stopping telemetry", "client_id", s.client.cfg.ClientID)
		s.setState(StateStopped)
	default:
		delay := s.handshakeDelay.Next()
		s.nextHandshakeAt = now.Add(delay)
		s.client.logger.Warnw("Hub handshake failed, will retry", "error", err, "retry_in", delay)
	}
}

// sync ships one aggregation window. The sender enforces its own retry
// budget; the context adds a hard stop just above it.
func (s *syncer) sync(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.cfg.Hub.RetryBudget+tickResolution)
	defer cancel()

	if fatal := s.syncOnce(ctx, now); fatal {
		s.setState(StateStopped)
		return
	}
	s.lastSyncAt = now
}

// syncOnce takes a snapshot and hands it to the sender exactly once.
// Failed snapshots are discarded, not requeued: the next window reflects
// only new data (at-most-once delivery). Reports whether the failure was
// fatal to the loop.
func (s *syncer) syncOnce(ctx context.Context, now time.Time) (fatal bool) {
	snapshot := s.client.store.SnapshotAndReset()
	windowStart := s.windowStart
	s.windowStart = now

	if snapshot.Empty() {
		s.client.logger.Debugw("Skipping sync, no data in window")
	} else {
		payload := hub.NewSyncPayload(s.client.instanceUUID,
			windowStart.UnixMilli(), now.UnixMilli(), snapshot, s.client.sampler.Sample())
		err := s.client.sender.SendSync(ctx, payload)
		switch {
		case err == nil:
		case errors.Is(err, hub.ErrInvalidClientID):
			s.client.logger.Errorw("Hub rejected client ID, stopping telemetry", "client_id", s.client.cfg.ClientID)
			return true
		default:
			s.client.logger.Warnw("Sync failed, discarding snapshot", "error", err)
		}
	}

	s.shipRequestLogs(ctx)
	return false
}

// shipRequestLogs uploads staged request log files, oldest first, until
// the per-sync cap or the first failure.
func (s *syncer) shipRequestLogs(ctx context.Context) {
	log := s.client.requestLog
	if !log.Enabled() {
		return
	}
	log.RotateFile()

	for i := 0; i < log.MaxUploadsPerSync(); i++ {
		file := log.NextFile()
		if file == nil {
			return
		}
		body, err := file.OpenCompressed()
		if err != nil {
			s.client.logger.Debugw("Failed to read request log file", "uuid", file.UUID, "error", err)
			file.Delete()
			continue
		}
		err = s.client.sender.SendLog(ctx, file.UUID, body)
		if err == nil {
			file.Delete()
			continue
		}
		var suspended *hub.SuspendedError
		if errors.As(err, &suspended) {
			s.client.logger.Warnw("Hub suspended request log uploads", "retry_after", suspended.RetryAfter)
			file.Delete()
			log.Suspend(suspended.RetryAfter)
			return
		}
		s.client.logger.Debugw("Request log upload failed, will retry next sync", "uuid", file.UUID, "error", err)
		log.RetryLater(file)
		return
	}
}

// drain performs the best-effort final flush on shutdown: one snapshot
// and one send attempt, bounded by the drain timeout, then the loop
// stops regardless of the outcome.
func (s *syncer) drain() {
	s.setState(StateDraining)
	defer s.setState(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), s.client.cfg.Sync.DrainTimeout)
	defer cancel()

	if s.client.requestLog.Enabled() {
		_ = s.client.requestLog.WriteToFile()
	}
	_ = s.syncOnce(ctx, s.now())
}
