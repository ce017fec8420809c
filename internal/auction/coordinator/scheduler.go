package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxSleep bounds how long the scheduler sleeps without re-reading the
// deadline index, so a deadline written by another instance is picked up
// even when no wake arrives.
const maxSleep = 30 * time.Second

// Run drives auction expiry until ctx is cancelled. One goroutine sleeps on
// the earliest deadline in the store and dispatches due sessions to a worker
// pool; an in-flight set keeps one session from being expired twice
// concurrently. Commands that install a new deadline wake the sleeper so a
// shorter auction is never missed.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Info().
		Str("instance_id", c.instanceID).
		Int("workers", c.config.Workers).
		Msg("auction scheduler starting")

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.expiryWorker(ctx, workerID)
		}(i)
	}

	timer := c.clock.NewTimer(c.nextSleep(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			close(c.workCh)
			wg.Wait()
			log.Info().Str("instance_id", c.instanceID).Msg("auction scheduler stopped")
			return ctx.Err()

		case <-c.wakeCh:
			timer.Reset(c.nextSleep(ctx))

		case <-timer.Chan():
			c.dispatchDue(ctx)
			timer.Reset(c.nextSleep(ctx))
		}
	}
}

// nextSleep computes how long to sleep before the earliest stored deadline,
// clamped to maxSleep and floored at zero.
func (c *Coordinator) nextSleep(ctx context.Context) time.Duration {
	deadline, err := c.store.NextDeadline(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read next deadline")
		return time.Second
	}
	if deadline == nil {
		return maxSleep
	}
	sleep := deadline.EndsAt.Sub(c.clock.Now())
	if sleep < 0 {
		return 0
	}
	if sleep > maxSleep {
		return maxSleep
	}
	return sleep
}

// dispatchDue claims due sessions and hands each to the worker pool unless
// it is already being processed.
func (c *Coordinator) dispatchDue(ctx context.Context) {
	due, err := c.store.DueSessions(ctx, c.clock.Now(), c.config.TickBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch due sessions")
		return
	}

	for _, sessionID := range due {
		c.inFlightMu.Lock()
		if c.inFlight[sessionID] {
			c.inFlightMu.Unlock()
			continue
		}
		c.inFlight[sessionID] = true
		c.inFlightMu.Unlock()

		select {
		case c.workCh <- sessionID:
		case <-ctx.Done():
			c.clearInFlight(sessionID)
			return
		}
	}
}

func (c *Coordinator) expiryWorker(ctx context.Context, workerID int) {
	for sessionID := range c.workCh {
		if err := c.expireDue(ctx, sessionID); err != nil {
			log.Error().
				Err(err).
				Int("worker_id", workerID).
				Str("session_id", sessionID).
				Msg("expiry failed")
		}
		c.clearInFlight(sessionID)
	}
}

func (c *Coordinator) clearInFlight(sessionID string) {
	c.inFlightMu.Lock()
	delete(c.inFlight, sessionID)
	c.inFlightMu.Unlock()
}
