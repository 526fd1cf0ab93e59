/*
sweeper.go - Idle session sweeper

PURPOSE:
  Periodically flushes and closes sheets nobody has touched for a while, so
  pending autosaves reach the repository and timers do not pile up.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - A session idle for at least IdleTTL is flushed, then closed
  - A session whose flush fails stays open and is retried next sweep

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - IdleTTL:       How long a session may sit untouched (default: 30 minutes)
  - Enabled:       Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSweeper(sessions)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - sessions.go: The cache being swept
*/
package api

import (
	"log"
	"sync"
	"time"
)

// Sweeper closes idle sessions in the background.
type Sweeper struct {
	Sessions      *Sessions
	CheckInterval time.Duration
	IdleTTL       time.Duration
	Enabled       bool
	Logger        *log.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSweeper(sessions *Sessions) *Sweeper {
	return &Sweeper{
		Sessions:      sessions,
		CheckInterval: time.Minute,
		IdleTTL:       30 * time.Minute,
		Enabled:       true,
		Logger:        log.Default(),
	}
}

// Start begins the sweeper. Calling Start twice is a no-op.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.Enabled {
		sw.Logger.Println("[Sweeper] Disabled, not starting")
		return
	}
	if sw.ticker != nil {
		return
	}

	sw.ticker = time.NewTicker(sw.CheckInterval)
	sw.stop = make(chan struct{})
	sw.wg.Add(1)

	go sw.run(sw.ticker, sw.stop)

	sw.Logger.Printf("[Sweeper] Started with check interval %v, idle ttl %v", sw.CheckInterval, sw.IdleTTL)
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ticker == nil {
		return
	}
	sw.ticker.Stop()
	close(sw.stop)
	sw.wg.Wait()
	sw.ticker = nil
	sw.Logger.Println("[Sweeper] Stopped")
}

func (sw *Sweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer sw.wg.Done()

	for {
		select {
		case <-ticker.C:
			sw.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep immediately (for testing/admin).
func (sw *Sweeper) RunNow() (closed, kept int) {
	closed, kept, err := sw.Sessions.CloseIdle(sw.IdleTTL)
	if err != nil {
		sw.Logger.Printf("[Sweeper] Flush failed, keeping %d session(s) open: %v", kept, err)
	}
	if closed > 0 {
		sw.Logger.Printf("[Sweeper] Closed %d idle session(s), %d still open", closed, sw.Sessions.Len())
	}
	return closed, kept
}
