package events

import "testing"

func TestBusBoundedHistory(t *testing.T) {
	bus := NewBus(3, nil)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		bus.Publish(name, "", "", 0)
	}

	got := bus.List()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(got))
	}
	if got[0].Name != "c" || got[2].Name != "e" {
		t.Fatalf("expected oldest entries dropped, got %q..%q", got[0].Name, got[2].Name)
	}
}

func TestBusListLimit(t *testing.T) {
	bus := NewBus(10, nil)
	for _, name := range []string{"a", "b", "c"} {
		bus.Publish(name, "", "", 0)
	}

	got := bus.ListLimit(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("expected most recent events, got %q %q", got[0].Name, got[1].Name)
	}

	if got := bus.ListLimit(0); len(got) != 3 {
		t.Fatalf("limit 0 should return everything, got %d", len(got))
	}
}

func TestNilBusPublishIsSafe(t *testing.T) {
	var bus *Bus
	bus.Publish(ListingCreated, "1", "donor", 5)
}
