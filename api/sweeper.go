/*
sweeper.go - Background expiry sweeper

PURPOSE:
  Periodically expires pending invitations whose deadline has passed,
  refunding the reserved seat. Expiry is also enforced lazily at
  accept time; the sweep keeps listings and balances current for
  invitations nobody ever acts on.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Processes due invitations in bounded batches per tick
  - Losing a race against a concurrent accept/decline is expected
    and skipped silently

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 10 minutes)
  - BatchLimit:    Max invitations expired per tick (default: 100)
  - Enabled:       Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewExpirySweeper(invites)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - invite/service.go: ExpireDue, the per-invitation expiry logic
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/saga/wallet-engine/invite"
)

// ExpirySweeper expires overdue pending invitations in the background.
type ExpirySweeper struct {
	Invites       *invite.Service
	CheckInterval time.Duration
	BatchLimit    int
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirySweeper creates a new sweeper.
func NewExpirySweeper(invites *invite.Service) *ExpirySweeper {
	return &ExpirySweeper{
		Invites:       invites,
		CheckInterval: 10 * time.Minute,
		BatchLimit:    100,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (es *ExpirySweeper) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[Sweeper] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the sweeper.
func (es *ExpirySweeper) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (es *ExpirySweeper) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.sweep()

	for {
		select {
		case <-es.ticker.C:
			es.sweep()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpirySweeper) sweep() {
	ctx := context.Background()

	expired, err := es.Invites.ExpireDue(ctx, es.BatchLimit)
	if err != nil {
		log.Printf("[Sweeper] Error during sweep: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[Sweeper] Expired %d overdue invitation(s)", expired)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (es *ExpirySweeper) RunNow() {
	es.sweep()
}
