package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/openaid/donation-market/internal/app/domain/actor"
	"github.com/openaid/donation-market/internal/app/domain/ledger"
	"github.com/openaid/donation-market/internal/app/domain/listing"
	"github.com/openaid/donation-market/internal/app/errs"
)

func TestDonorRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateDonor(ctx, actor.Donor{Identity: "d1", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	if _, err := s.CreateDonor(ctx, actor.Donor{Identity: "d1", DisplayName: "Alice again"}); !errors.Is(err, errs.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	got, err := s.GetDonor(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != "Alice" {
		t.Fatalf("expected Alice, got %s", got.DisplayName)
	}

	if _, err := s.GetDonor(ctx, "ghost"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetProfileDistinguishesRoles(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateDonor(ctx, actor.Donor{Identity: "d1", DisplayName: "Alice"}); err != nil {
		t.Fatalf("create donor: %v", err)
	}
	if _, err := s.CreateRecipient(ctx, actor.Recipient{Identity: "r1", DisplayName: "Bob"}); err != nil {
		t.Fatalf("create recipient: %v", err)
	}

	p, err := s.GetProfile(ctx, "d1")
	if err != nil || p.Role != actor.RoleDonor {
		t.Fatalf("expected donor profile, got %+v err %v", p, err)
	}
	p, err = s.GetProfile(ctx, "r1")
	if err != nil || p.Role != actor.RoleRecipient {
		t.Fatalf("expected recipient profile, got %+v err %v", p, err)
	}
	if _, err := s.GetProfile(ctx, "nobody"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListingIDsAreAssigned(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateListing(ctx, listing.Listing{OwnerIdentity: "d1", QuantityAvailable: 5, Status: listing.StatusListed})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateListing(ctx, listing.Listing{OwnerIdentity: "d1", QuantityAvailable: 7, Status: listing.StatusListed})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", first.ID, second.ID)
	}

	owned, err := s.ListListings(ctx, "d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(owned))
	}
	if none, _ := s.ListListings(ctx, "other"); len(none) != 0 {
		t.Fatalf("expected no listings for other owner, got %d", len(none))
	}
}

func TestTransactionsIndexedByBothParties(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateTransaction(ctx, ledger.Transaction{Type: ledger.TypeTransfer, From: "a", To: "b", Amount: 10}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, identity := range []string{"a", "b"} {
		txs, err := s.ListTransactions(ctx, identity)
		if err != nil {
			t.Fatalf("list %s: %v", identity, err)
		}
		if len(txs) != 1 || txs[0].Amount != 10 {
			t.Fatalf("expected one transaction for %s, got %+v", identity, txs)
		}
	}
}
