// Package events collects the named events the marketplace emits on every
// state change. Consumers (UI, audit tooling) read them from the bounded
// in-memory history or from the optional JSONL sink.
package events

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Event names, one per observable state change.
const (
	DonorRegistered          = "donorRegistered"
	RecipientRegistered      = "recipientRegistered"
	ListingCreated           = "listingCreated"
	ListingUnlisted          = "listingUnlisted"
	RequestCreated           = "requestCreated"
	RequestedDonation        = "requestedDonation"
	RequestCancelled         = "requestCancelled"
	ApprovedRecipientRequest = "approvedRecipientRequest"
	Transferred              = "transferred"
	CompletedRequest         = "completedRequest"
	TokensWithdrawn          = "tokensWithdrawn"
	ToppedUpWallet           = "toppedUpWallet"
	PausedToggled            = "pausedToggled"
	Decommissioned           = "decommissioned"
)

// Event carries the entity id and actor identity of a state change.
type Event struct {
	Time     time.Time `json:"time"`
	Name     string    `json:"name"`
	EntityID string    `json:"entity_id,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
}

// Sink receives events as they are published.
type Sink interface {
	Write(evt Event) error
}

// Bus keeps a bounded event history and forwards to an optional sink.
type Bus struct {
	mu      sync.Mutex
	entries []Event
	max     int
	sink    Sink
}

// NewBus creates a bus holding at most max events; sink may be nil.
func NewBus(max int, sink Sink) *Bus {
	if max <= 0 {
		max = 500
	}
	return &Bus{max: max, sink: sink}
}

// Publish records an event. Sink failures are swallowed so a slow or broken
// consumer cannot fail the operation that emitted the event.
func (b *Bus) Publish(name, entityID, actorIdentity string, amount int64) {
	if b == nil {
		return
	}
	evt := Event{
		Time:     time.Now().UTC(),
		Name:     name,
		EntityID: entityID,
		Actor:    actorIdentity,
		Amount:   amount,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, evt)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
	if b.sink != nil {
		_ = b.sink.Write(evt)
	}
}

// List returns a copy of the retained history.
func (b *Bus) List() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.entries))
	copy(out, b.entries)
	return out
}

// ListLimit returns up to limit most recent events.
func (b *Bus) ListLimit(limit int) []Event {
	if limit <= 0 || limit > b.max {
		limit = b.max
	}
	all := b.List()
	if len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

// FileSink appends events as JSONL.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the JSONL file at path. An empty path yields
// a nil sink.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Write(evt Event) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}
