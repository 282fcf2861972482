// Package guard implements the administrative gate in front of every
// mutating marketplace operation: owner-only checks, the global pause flag
// and the irreversible decommission latch.
package guard

import (
	"fmt"
	"sync"

	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/events"
	"github.com/openaid/donation-market/pkg/logger"
)

// Guard holds the owning identity fixed at construction time. There is no
// ownership transfer operation.
type Guard struct {
	owner string
	log   *logger.Logger
	bus   *events.Bus

	mu             sync.RWMutex
	paused         bool
	decommissioned bool
}

// New creates a guard owned by the given identity.
func New(owner string, bus *events.Bus, log *logger.Logger) *Guard {
	if log == nil {
		log = logger.NewDefault("guard")
	}
	return &Guard{owner: owner, bus: bus, log: log}
}

// Owner returns the owning identity.
func (g *Guard) Owner() string { return g.owner }

// RequireOwner fails unless caller is the owning identity.
func (g *Guard) RequireOwner(caller string) error {
	if caller != g.owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller, errs.ErrUnauthorized)
	}
	return nil
}

// CheckMutable fails while the system is paused or decommissioned. Read-only
// queries never consult it.
func (g *Guard) CheckMutable() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.decommissioned {
		return fmt.Errorf("marketplace decommissioned: %w", errs.ErrSystemPaused)
	}
	if g.paused {
		return errs.ErrSystemPaused
	}
	return nil
}

// Paused reports the pause flag.
func (g *Guard) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused || g.decommissioned
}

// TogglePause flips the pause flag. Owner-only; rejected once decommissioned.
func (g *Guard) TogglePause(caller string) (bool, error) {
	if err := g.RequireOwner(caller); err != nil {
		return false, err
	}

	g.mu.Lock()
	if g.decommissioned {
		g.mu.Unlock()
		return false, fmt.Errorf("marketplace decommissioned: %w", errs.ErrInvalidState)
	}
	g.paused = !g.paused
	paused := g.paused
	g.mu.Unlock()

	g.log.WithField("paused", paused).Info("pause flag toggled")
	g.bus.Publish(events.PausedToggled, "", caller, 0)
	return paused, nil
}

// Decommission permanently disables all mutation. Owner-only, irreversible;
// a second call fails with ErrInvalidState.
func (g *Guard) Decommission(caller string) error {
	if err := g.RequireOwner(caller); err != nil {
		return err
	}

	g.mu.Lock()
	if g.decommissioned {
		g.mu.Unlock()
		return fmt.Errorf("already decommissioned: %w", errs.ErrInvalidState)
	}
	g.decommissioned = true
	g.mu.Unlock()

	g.log.Warn("marketplace decommissioned; all further mutation disabled")
	g.bus.Publish(events.Decommissioned, "", caller, 0)
	return nil
}

// Decommissioned reports the decommission latch.
func (g *Guard) Decommissioned() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.decommissioned
}
