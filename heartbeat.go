package samp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PingFunc checks that the peer is alive.
type PingFunc func(ctx context.Context) error

// HeartbeatStatus reports the state of a Heartbeat.
type HeartbeatStatus struct {
	Running         bool      `json:"running"`
	LastPing        time.Time `json:"last_ping,omitempty"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	ConsecutiveMiss int       `json:"consecutive_misses"`
	TotalPings      int64     `json:"total_pings"`
	TotalMisses     int64     `json:"total_misses"`
}

// HeartbeatOptions configures a Heartbeat.
type HeartbeatOptions struct {
	Logger Logger

	// MaxMisses is the number of consecutive failed pings after which OnLost
	// fires (0 = never).
	MaxMisses int

	// OnLost fires once when MaxMisses is reached. It runs on the heartbeat
	// goroutine after the loop has stopped.
	OnLost func(misses int)
}

// Heartbeat pings a peer on a fixed interval and tracks failures.
type Heartbeat struct {
	interval time.Duration
	ping     PingFunc
	opts     HeartbeatOptions

	mu          sync.RWMutex
	running     atomic.Bool
	lastPing    time.Time
	lastSuccess time.Time
	lastErr     error
	misses      int
	totalPings  int64
	totalMisses int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHeartbeat creates a heartbeat. A non-positive interval defaults to 10s.
func NewHeartbeat(interval time.Duration, ping PingFunc, opts HeartbeatOptions) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Heartbeat{
		interval: interval,
		ping:     ping,
		opts:     opts,
		stopCh:   make(chan struct{}),
	}
}

func (hb *Heartbeat) Start(ctx context.Context) {
	if hb.running.Swap(true) {
		return
	}
	hb.stopCh = make(chan struct{})
	hb.wg.Add(1)
	go hb.loop(ctx)
}

// Stop halts the loop and waits for it. Calling Stop from OnLost is safe.
func (hb *Heartbeat) Stop() {
	if !hb.running.Swap(false) {
		return
	}
	close(hb.stopCh)
	hb.wg.Wait()
}

func (hb *Heartbeat) IsRunning() bool { return hb.running.Load() }

// Healthy reports whether the miss count is below MaxMisses.
func (hb *Heartbeat) Healthy() bool {
	if hb.opts.MaxMisses <= 0 {
		return true
	}
	hb.mu.RLock()
	defer hb.mu.RUnlock()
	return hb.misses < hb.opts.MaxMisses
}

func (hb *Heartbeat) Status() HeartbeatStatus {
	hb.mu.RLock()
	defer hb.mu.RUnlock()
	st := HeartbeatStatus{
		Running:         hb.running.Load(),
		LastPing:        hb.lastPing,
		LastSuccess:     hb.lastSuccess,
		ConsecutiveMiss: hb.misses,
		TotalPings:      hb.totalPings,
		TotalMisses:     hb.totalMisses,
	}
	if hb.lastErr != nil {
		st.LastError = hb.lastErr.Error()
	}
	return st
}

func (hb *Heartbeat) loop(ctx context.Context) {
	defer hb.wg.Done()

	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if lost := hb.beat(ctx); lost > 0 {
				// Mark stopped before OnLost so that OnLost may call Stop.
				if hb.running.Swap(false) {
					close(hb.stopCh)
				}
				if hb.opts.OnLost != nil {
					hb.opts.OnLost(lost)
				}
				return
			}
		case <-hb.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// beat pings once and returns the miss count when the peer is considered lost.
func (hb *Heartbeat) beat(ctx context.Context) int {
	pctx, cancel := context.WithTimeout(ctx, hb.interval)
	defer cancel()

	hb.mu.Lock()
	hb.lastPing = time.Now()
	hb.totalPings++
	hb.mu.Unlock()

	err := hb.ping(pctx)

	hb.mu.Lock()
	defer hb.mu.Unlock()
	if err == nil {
		hb.lastErr = nil
		hb.lastSuccess = time.Now()
		hb.misses = 0
		return 0
	}

	hb.lastErr = err
	hb.misses++
	hb.totalMisses++
	if hb.opts.Logger != nil {
		hb.opts.Logger.Warn("hub ping failed", "err", err.Error(), "consecutive_misses", hb.misses)
	}
	if hb.opts.MaxMisses > 0 && hb.misses >= hb.opts.MaxMisses {
		return hb.misses
	}
	return 0
}
