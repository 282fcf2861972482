package guard

import (
	"errors"
	"testing"

	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/events"
)

func TestTogglePauseOwnerOnly(t *testing.T) {
	g := New("admin", events.NewBus(0, nil), nil)

	if _, err := g.TogglePause("mallory"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	paused, err := g.TogglePause("admin")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !paused || !g.Paused() {
		t.Fatal("expected paused after toggle")
	}
	if err := g.CheckMutable(); !errors.Is(err, errs.ErrSystemPaused) {
		t.Fatalf("expected ErrSystemPaused, got %v", err)
	}

	paused, err = g.TogglePause("admin")
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if paused || g.Paused() {
		t.Fatal("expected unpaused after second toggle")
	}
	if err := g.CheckMutable(); err != nil {
		t.Fatalf("expected mutable, got %v", err)
	}
}

func TestDecommissionIsIrreversible(t *testing.T) {
	g := New("admin", events.NewBus(0, nil), nil)

	if err := g.Decommission("mallory"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := g.Decommission("admin"); err != nil {
		t.Fatalf("decommission: %v", err)
	}
	if !g.Decommissioned() {
		t.Fatal("expected decommissioned")
	}

	if err := g.Decommission("admin"); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("second decommission should fail, got %v", err)
	}
	// No way back, not even for the owner.
	if _, err := g.TogglePause("admin"); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("toggle after decommission should fail, got %v", err)
	}
	if err := g.CheckMutable(); !errors.Is(err, errs.ErrSystemPaused) {
		t.Fatalf("expected ErrSystemPaused, got %v", err)
	}
}
