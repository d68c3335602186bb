/*
host.go - Ticker-backed host scheduler

PURPOSE:
  In the standalone server deployment there is no platform job facility,
  so this Host stands in for it: a background goroutine that invokes the
  driver at a coarse, configurable interval. The driver itself assumes
  nothing about cadence - the Host may fire late, early, or not at all,
  and catch-up math absorbs the difference.

REGISTRATION:
  Register is idempotent: calling it again (after a restart, or after a
  rule-set change invalidates the previous registration) replaces the
  prior registration instead of stacking a second ticker.

USAGE:
  host := schedule.NewHost(driver, 15*time.Minute)
  host.Register()
  // ... later
  host.Stop()
*/
package schedule

import (
	"context"
	"log"
	"sync"
	"time"
)

// Host periodically invokes the driver, standing in for the platform's
// background-job facility.
type Host struct {
	Driver   *Driver
	Interval time.Duration

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewHost creates a host with the given pass interval.
func NewHost(driver *Driver, interval time.Duration) *Host {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Host{Driver: driver, Interval: interval}
}

// Register starts (or restarts) periodic invocation. Idempotent.
func (h *Host) Register() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		h.stopLocked()
	}

	h.ticker = time.NewTicker(h.Interval)
	h.stop = make(chan struct{})
	h.running = true
	h.wg.Add(1)

	go h.run(h.ticker, h.stop)

	log.Printf("[Host] scheduler registered with interval %v", h.Interval)
}

// Stop halts periodic invocation and waits for an in-flight pass.
func (h *Host) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		h.stopLocked()
		log.Println("[Host] scheduler stopped")
	}
}

func (h *Host) stopLocked() {
	h.ticker.Stop()
	close(h.stop)
	h.wg.Wait()
	h.running = false
}

func (h *Host) run(ticker *time.Ticker, stop chan struct{}) {
	defer h.wg.Done()

	// Run immediately on registration so a restart catches up without
	// waiting a full interval.
	h.Driver.RunPass(context.Background())

	for {
		select {
		case <-ticker.C:
			h.Driver.RunPass(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate pass (admin/testing).
func (h *Host) RunNow() PassReport {
	return h.Driver.RunPass(context.Background())
}
