package market

import (
	"context"
	"errors"
	"testing"

	"github.com/openaid/donation-market/internal/app/domain/listing"
	"github.com/openaid/donation-market/internal/app/domain/request"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/events"
	"github.com/openaid/donation-market/internal/app/guard"
	ledgersvc "github.com/openaid/donation-market/internal/app/services/ledger"
	registrysvc "github.com/openaid/donation-market/internal/app/services/registry"
	"github.com/openaid/donation-market/internal/app/storage/memory"
)

type fixture struct {
	market   *Service
	ledger   *ledgersvc.Service
	registry *registrysvc.Service
	mem      *memory.Store
	guard    *guard.Guard
	bus      *events.Bus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	mem := memory.New()
	bus := events.NewBus(0, nil)
	g := guard.New("admin", bus, nil)
	led := ledgersvc.New(mem, mem, g, bus, nil, ledgersvc.Config{ConversionRate: 1}, nil)
	reg := registrysvc.New(mem, mem, g, bus, 0, nil)
	return &fixture{
		market:   New(mem, mem, mem, led, g, bus, cfg, nil),
		ledger:   led,
		registry: reg,
		mem:      mem,
		guard:    g,
		bus:      bus,
	}
}

// registerDonor registers the donor and funds its wallet.
func (f *fixture) registerDonor(t *testing.T, identity string, balance int64) {
	t.Helper()
	if _, err := f.registry.RegisterDonor(context.Background(), identity, "Donor "+identity, "", 0); err != nil {
		t.Fatalf("register donor %s: %v", identity, err)
	}
	if balance > 0 {
		if _, err := f.ledger.CreditFromDeposit(context.Background(), identity, balance); err != nil {
			t.Fatalf("fund donor %s: %v", identity, err)
		}
	}
}

func (f *fixture) registerRecipient(t *testing.T, identity, category string) {
	t.Helper()
	if _, err := f.registry.RegisterRecipient(context.Background(), identity, "Recipient "+identity, "", category); err != nil {
		t.Fatalf("register recipient %s: %v", identity, err)
	}
}

// pendingRequest walks a recipient's request to pending against the listing.
func (f *fixture) pendingRequest(t *testing.T, recipient, listingID string, quantity int64) string {
	t.Helper()
	req, err := f.market.CreateRequest(context.Background(), recipient, quantity, 0, "")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := f.market.RequestDonation(context.Background(), recipient, listingID, req.ID); err != nil {
		t.Fatalf("request donation: %v", err)
	}
	return req.ID
}

func TestApproveSettlesAtApproval(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)
	f.registerRecipient(t, "recR", "")

	l, err := f.market.CreateListing(context.Background(), "donorD", 50, "food")
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	reqID := f.pendingRequest(t, "recR", l.ID, 25)

	if err := f.market.Approve(context.Background(), "donorD", l.ID, reqID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	req, _ := f.market.GetRequest(context.Background(), reqID)
	if req.Status != request.StatusApproved {
		t.Fatalf("expected approved, got %s", req.Status)
	}
	got, _ := f.market.GetListing(context.Background(), l.ID)
	if got.QuantityAvailable != 25 {
		t.Fatalf("expected 25 available, got %d", got.QuantityAvailable)
	}
	balance, _ := f.ledger.Balance(context.Background(), "donorD")
	if balance != 75 {
		t.Fatalf("expected donor balance 75, got %d", balance)
	}
	rec, _ := f.mem.GetRecipient(context.Background(), "recR")
	if rec.HeldTokens != 25 {
		t.Fatalf("expected 25 held tokens, got %d", rec.HeldTokens)
	}

	// Approval is not repeatable.
	if err := f.market.Approve(context.Background(), "donorD", l.ID, reqID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("second approve should fail with ErrInvalidState, got %v", err)
	}
}

func TestApproveFirstApprovedFirstServed(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)
	f.registerRecipient(t, "recA", "")
	f.registerRecipient(t, "recB", "")

	l, err := f.market.CreateListing(context.Background(), "donorD", 50, "")
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	req1 := f.pendingRequest(t, "recA", l.ID, 40)
	req2 := f.pendingRequest(t, "recB", l.ID, 20)

	if err := f.market.Approve(context.Background(), "donorD", l.ID, req1); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	err = f.market.Approve(context.Background(), "donorD", l.ID, req2)
	if !errors.Is(err, errs.ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}

	// The losing request stays pending and claimable elsewhere.
	second, _ := f.market.GetRequest(context.Background(), req2)
	if second.Status != request.StatusPending {
		t.Fatalf("expected pending, got %s", second.Status)
	}
	got, _ := f.market.GetListing(context.Background(), l.ID)
	if got.QuantityAvailable != 10 {
		t.Fatalf("expected 10 available, got %d", got.QuantityAvailable)
	}
}

func TestApproveInsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 10)
	f.registerRecipient(t, "recR", "")

	l, _ := f.market.CreateListing(context.Background(), "donorD", 50, "")
	reqID := f.pendingRequest(t, "recR", l.ID, 25)

	err := f.market.Approve(context.Background(), "donorD", l.ID, reqID)
	if !errors.Is(err, errs.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	req, _ := f.market.GetRequest(context.Background(), reqID)
	if req.Status != request.StatusPending {
		t.Fatalf("failed approve must leave request pending, got %s", req.Status)
	}
	got, _ := f.market.GetListing(context.Background(), l.ID)
	if got.QuantityAvailable != 50 {
		t.Fatalf("failed approve must not reserve quantity, got %d", got.QuantityAvailable)
	}
}

func TestSelfDealingForbidden(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)

	l, _ := f.market.CreateListing(context.Background(), "donorD", 50, "")
	req, err := f.mem.CreateRequest(context.Background(), request.Request{
		RequesterIdentity: "donorD",
		Quantity:          10,
		Status:            request.StatusOpen,
	})
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}

	err = f.market.RequestDonation(context.Background(), "donorD", l.ID, req.ID)
	if !errors.Is(err, errs.ErrSelfDealing) {
		t.Fatalf("expected ErrSelfDealing, got %v", err)
	}
}

func TestPauseBlocksMarketMutations(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)

	if _, err := f.guard.TogglePause("admin"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.market.CreateListing(context.Background(), "donorD", 50, ""); !errors.Is(err, errs.ErrSystemPaused) {
		t.Fatalf("expected ErrSystemPaused, got %v", err)
	}
	all, _ := f.market.ListListings(context.Background(), "")
	if len(all) != 0 {
		t.Fatalf("paused mutation must not create listings, got %d", len(all))
	}

	// Unpause restores service.
	if _, err := f.guard.TogglePause("admin"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := f.market.CreateListing(context.Background(), "donorD", 50, ""); err != nil {
		t.Fatalf("create after unpause: %v", err)
	}
}

func TestUnlistIsTerminal(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)
	f.registerRecipient(t, "recR", "")

	l, _ := f.market.CreateListing(context.Background(), "donorD", 50, "")
	if err := f.market.Unlist(context.Background(), "donorD", l.ID); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	if err := f.market.Unlist(context.Background(), "donorD", l.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("second unlist should fail with ErrInvalidState, got %v", err)
	}

	got, _ := f.market.GetListing(context.Background(), l.ID)
	if got.Status != listing.StatusUnlisted {
		t.Fatalf("expected unlisted, got %s", got.Status)
	}

	// Unlisted listings take no new claims.
	req, _ := f.market.CreateRequest(context.Background(), "recR", 10, 0, "")
	if err := f.market.RequestDonation(context.Background(), "recR", l.ID, req.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("claim against unlisted listing should fail, got %v", err)
	}
}

func TestUnlistOwnerOnly(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)
	f.registerDonor(t, "donorE", 0)

	l, _ := f.market.CreateListing(context.Background(), "donorD", 50, "")
	if err := f.market.Unlist(context.Background(), "donorE", l.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCancelOnlyWhilePending(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)
	f.registerRecipient(t, "recR", "")

	l, _ := f.market.CreateListing(context.Background(), "donorD", 50, "")
	open, err := f.market.CreateRequest(context.Background(), "recR", 10, 0, "")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	// Open requests have nothing to withdraw from yet.
	if err := f.market.CancelRequest(context.Background(), "recR", open.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("cancel of open request should fail, got %v", err)
	}

	if err := f.market.RequestDonation(context.Background(), "recR", l.ID, open.ID); err != nil {
		t.Fatalf("request donation: %v", err)
	}
	if err := f.market.CancelRequest(context.Background(), "recR", open.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}

	// Cancelled is terminal.
	if err := f.market.Approve(context.Background(), "donorD", l.ID, open.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("approve of cancelled request should fail, got %v", err)
	}
}

func TestCompleteAndWithdraw(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 100)
	f.registerRecipient(t, "recR", "")

	l, _ := f.market.CreateListing(context.Background(), "donorD", 50, "")
	reqID := f.pendingRequest(t, "recR", l.ID, 25)
	if err := f.market.Approve(context.Background(), "donorD", l.ID, reqID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.market.CompleteRequest(context.Background(), "donorD", l.ID, reqID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, _ := f.mem.GetRecipient(context.Background(), "recR")
	if rec.HeldTokens != 0 || rec.WithdrawableTokens != 25 || rec.AccumulatedTokens != 25 {
		t.Fatalf("unexpected buckets after complete: held=%d withdrawable=%d accumulated=%d",
			rec.HeldTokens, rec.WithdrawableTokens, rec.AccumulatedTokens)
	}

	// Double completion must not double-credit.
	if err := f.market.CompleteRequest(context.Background(), "donorD", l.ID, reqID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("second complete should fail, got %v", err)
	}

	if err := f.market.WithdrawTokens(context.Background(), "recR", reqID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	balance, _ := f.ledger.Balance(context.Background(), "recR")
	if balance != 25 {
		t.Fatalf("expected spendable balance 25, got %d", balance)
	}

	// Nothing left in the bucket for a second withdrawal.
	if err := f.market.WithdrawTokens(context.Background(), "recR", reqID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("second withdraw should fail, got %v", err)
	}
}

func TestCreateListingRequiresDonor(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerRecipient(t, "recR", "")

	if _, err := f.market.CreateListing(context.Background(), "recR", 10, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateRequestRequiresRecipient(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerDonor(t, "donorD", 0)

	if _, err := f.market.CreateRequest(context.Background(), "donorD", 10, 0, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestStrictCategoryMatch(t *testing.T) {
	f := newFixture(t, Config{StrictCategoryMatch: true})
	f.registerRecipient(t, "recR", "food")

	if _, err := f.market.CreateRequest(context.Background(), "recR", 10, 0, "tools"); !errors.Is(err, errs.ErrCategoryMismatch) {
		t.Fatalf("expected ErrCategoryMismatch, got %v", err)
	}
	if _, err := f.market.CreateRequest(context.Background(), "recR", 10, 0, "food"); err != nil {
		t.Fatalf("matching category: %v", err)
	}
	if _, err := f.market.CreateRequest(context.Background(), "recR", 10, 0, ""); err != nil {
		t.Fatalf("empty category always passes: %v", err)
	}
}

func TestAdvisoryCategoryMismatchAllowed(t *testing.T) {
	f := newFixture(t, Config{})
	f.registerRecipient(t, "recR", "food")

	if _, err := f.market.CreateRequest(context.Background(), "recR", 10, 0, "tools"); err != nil {
		t.Fatalf("advisory mismatch should pass, got %v", err)
	}
}
