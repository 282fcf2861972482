// Package market orchestrates listings and requests: the listing lifecycle,
// the request protocol and approval settlement. It owns no entity state of
// its own; every mutation flows through the stores and the ledger service.
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openaid/donation-market/internal/app/domain/listing"
	"github.com/openaid/donation-market/internal/app/domain/request"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/events"
	"github.com/openaid/donation-market/internal/app/guard"
	ledgersvc "github.com/openaid/donation-market/internal/app/services/ledger"
	"github.com/openaid/donation-market/internal/app/storage"
	"github.com/openaid/donation-market/pkg/logger"
)

// Config carries marketplace policy knobs.
type Config struct {
	// StrictCategoryMatch turns the advisory category check into a hard
	// failure. Default is advisory: a mismatch logs a warning only.
	StrictCategoryMatch bool
}

// Service is the MarketplaceCoordinator. Mutating operations are strictly
// serialized by a single mutex: each one runs to a definite success or
// failure before the next begins, so cross-entity invariants never observe a
// partial update. Reads go straight to the stores.
type Service struct {
	actors   storage.ActorStore
	listings storage.ListingStore
	requests storage.RequestStore
	ledger   *ledgersvc.Service
	guard    *guard.Guard
	bus      *events.Bus
	cfg      Config
	log      *logger.Logger

	mu sync.Mutex
}

// New constructs the coordinator.
func New(actors storage.ActorStore, listings storage.ListingStore, requests storage.RequestStore, ledger *ledgersvc.Service, g *guard.Guard, bus *events.Bus, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("market")
	}
	return &Service{
		actors:   actors,
		listings: listings,
		requests: requests,
		ledger:   ledger,
		guard:    g,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// CreateListing opens a donor's standing offer of quantity units.
func (s *Service) CreateListing(ctx context.Context, caller string, quantity int64, category string) (listing.Listing, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return listing.Listing{}, err
	}
	if quantity <= 0 {
		return listing.Listing{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.actors.GetDonor(ctx, caller); err != nil {
		return listing.Listing{}, fmt.Errorf("caller is not a registered donor: %w", errs.ErrUnauthorized)
	}

	l := listing.Listing{
		OwnerIdentity:     caller,
		QuantityAvailable: quantity,
		QuantityListed:    quantity,
		Category:          strings.TrimSpace(category),
		Status:            listing.StatusListed,
	}
	created, err := s.listings.CreateListing(ctx, l)
	if err != nil {
		return listing.Listing{}, err
	}

	s.log.WithField("listing_id", created.ID).
		WithField("owner", caller).
		WithField("quantity", quantity).
		Info("listing created")
	s.bus.Publish(events.ListingCreated, created.ID, caller, quantity)
	return created, nil
}

// Unlist retires a listing. Owner-only; unlisted is terminal, so a second
// call fails with ErrInvalidState. The row is kept for history.
func (s *Service) Unlist(ctx context.Context, caller, listingID string) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if l.OwnerIdentity != caller {
		return fmt.Errorf("caller is not the donor of listing %s: %w", listingID, errs.ErrUnauthorized)
	}
	if l.Status != listing.StatusListed {
		return fmt.Errorf("listing %s is already unlisted: %w", listingID, errs.ErrInvalidState)
	}

	l.Status = listing.StatusUnlisted
	if _, err := s.listings.UpdateListing(ctx, l); err != nil {
		return err
	}

	s.log.WithField("listing_id", listingID).Info("listing unlisted")
	s.bus.Publish(events.ListingUnlisted, listingID, caller, 0)
	return nil
}

// CreateRequest opens a recipient's claim for quantity units, not yet bound
// to a listing. deadline is an opaque recipient-supplied timestamp.
func (s *Service) CreateRequest(ctx context.Context, caller string, quantity, deadline int64, category string) (request.Request, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return request.Request{}, err
	}
	if quantity <= 0 {
		return request.Request{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recipient, err := s.actors.GetRecipient(ctx, caller)
	if err != nil {
		return request.Request{}, fmt.Errorf("caller is not a registered recipient: %w", errs.ErrUnauthorized)
	}

	category = strings.TrimSpace(category)
	if err := s.checkCategory(category, recipient.Category, "recipient"); err != nil {
		return request.Request{}, err
	}

	req := request.Request{
		RequesterIdentity: caller,
		Quantity:          quantity,
		Deadline:          deadline,
		Category:          category,
		Status:            request.StatusOpen,
	}
	created, err := s.requests.CreateRequest(ctx, req)
	if err != nil {
		return request.Request{}, err
	}

	s.log.WithField("request_id", created.ID).
		WithField("requester", caller).
		WithField("quantity", quantity).
		Info("request created")
	s.bus.Publish(events.RequestCreated, created.ID, caller, quantity)
	return created, nil
}

// RequestDonation binds an open request to a listing, moving it to pending.
// Self-dealing (requesting against one's own listing) is forbidden.
func (s *Service) RequestDonation(ctx context.Context, caller, listingID, requestID string) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterIdentity != caller {
		return fmt.Errorf("caller does not own request %s: %w", requestID, errs.ErrUnauthorized)
	}
	if l.OwnerIdentity == caller {
		return fmt.Errorf("cannot request your own listing, try unlisting instead: %w", errs.ErrSelfDealing)
	}
	if l.Status != listing.StatusListed {
		return fmt.Errorf("listing %s is unlisted: %w", listingID, errs.ErrInvalidState)
	}
	if !request.CanTransition(req.Status, request.StatusPending) {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, errs.ErrInvalidState)
	}
	if err := s.checkCategory(req.Category, l.Category, "listing"); err != nil {
		return err
	}

	req.ListingID = listingID
	req.Status = request.StatusPending
	if _, err := s.requests.UpdateRequest(ctx, req); err != nil {
		return err
	}

	s.log.WithField("request_id", requestID).
		WithField("listing_id", listingID).
		Info("donation requested")
	s.bus.Publish(events.RequestedDonation, requestID, caller, req.Quantity)
	return nil
}

// Approve is the donor's acceptance of a pending request. Availability is
// re-checked at approval time, so concurrent requests against a shrinking
// listing resolve first-approved-first-served. On success the quantity is
// reserved and settlement runs atomically: the token value moves from the
// donor's balance into the recipient's held bucket.
func (s *Service) Approve(ctx context.Context, caller, listingID, requestID string) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if l.OwnerIdentity != caller {
		return fmt.Errorf("caller is not the donor of listing %s: %w", listingID, errs.ErrUnauthorized)
	}
	if req.ListingID != listingID {
		return fmt.Errorf("request %s is not bound to listing %s: %w", requestID, listingID, errs.ErrInvalidState)
	}
	if !request.CanTransition(req.Status, request.StatusApproved) {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, errs.ErrInvalidState)
	}
	if req.Quantity > l.QuantityAvailable {
		return fmt.Errorf("request quantity %d exceeds available %d: %w", req.Quantity, l.QuantityAvailable, errs.ErrInsufficientQuantity)
	}

	// Settle first: if the donor cannot cover the transfer, nothing else
	// must change.
	if err := s.ledger.TransferToHold(ctx, caller, req.RequesterIdentity, req.Quantity); err != nil {
		return err
	}

	l.QuantityAvailable -= req.Quantity
	if _, err := s.listings.UpdateListing(ctx, l); err != nil {
		return err
	}
	req.Status = request.StatusApproved
	if _, err := s.requests.UpdateRequest(ctx, req); err != nil {
		return err
	}

	s.log.WithField("request_id", requestID).
		WithField("listing_id", listingID).
		WithField("quantity", req.Quantity).
		Info("request approved and settled")
	s.bus.Publish(events.ApprovedRecipientRequest, requestID, caller, req.Quantity)
	return nil
}

// CancelRequest withdraws a pending request. Requester-only; cancelled is
// terminal. No reservation exists yet at pending, so nothing is released.
func (s *Service) CancelRequest(ctx context.Context, caller, requestID string) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterIdentity != caller {
		return fmt.Errorf("caller does not own request %s: %w", requestID, errs.ErrUnauthorized)
	}
	if !request.CanTransition(req.Status, request.StatusCancelled) {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, errs.ErrInvalidState)
	}

	req.Status = request.StatusCancelled
	if _, err := s.requests.UpdateRequest(ctx, req); err != nil {
		return err
	}

	s.log.WithField("request_id", requestID).Info("request cancelled")
	s.bus.Publish(events.RequestCancelled, requestID, caller, 0)
	return nil
}

// CompleteRequest finalizes an approved request: the donor confirms delivery
// and the settled tokens move from the recipient's held bucket to the
// withdrawable total. A second call fails rather than double-crediting.
func (s *Service) CompleteRequest(ctx context.Context, caller, listingID, requestID string) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if l.OwnerIdentity != caller {
		return fmt.Errorf("caller is not the donor of listing %s: %w", listingID, errs.ErrUnauthorized)
	}
	if req.ListingID != listingID {
		return fmt.Errorf("request %s is not bound to listing %s: %w", requestID, listingID, errs.ErrInvalidState)
	}
	if !request.CanTransition(req.Status, request.StatusCompleted) {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, errs.ErrInvalidState)
	}

	recipient, err := s.actors.GetRecipient(ctx, req.RequesterIdentity)
	if err != nil {
		return err
	}
	if recipient.HeldTokens < req.Quantity {
		return fmt.Errorf("held tokens %d below request quantity %d: %w", recipient.HeldTokens, req.Quantity, errs.ErrInvalidState)
	}

	recipient.HeldTokens -= req.Quantity
	recipient.WithdrawableTokens += req.Quantity
	recipient.AccumulatedTokens += req.Quantity
	if _, err := s.actors.UpdateRecipient(ctx, recipient); err != nil {
		return err
	}
	req.Status = request.StatusCompleted
	if _, err := s.requests.UpdateRequest(ctx, req); err != nil {
		return err
	}

	s.log.WithField("request_id", requestID).
		WithField("recipient", recipient.Identity).
		Info("request completed")
	s.bus.Publish(events.CompletedRequest, requestID, caller, req.Quantity)
	return nil
}

// WithdrawTokens releases a completed request's tokens into the recipient's
// spendable ledger balance. Requester-only.
func (s *Service) WithdrawTokens(ctx context.Context, caller, requestID string) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterIdentity != caller {
		return fmt.Errorf("only the recipient can withdraw tokens: %w", errs.ErrUnauthorized)
	}
	if req.Status != request.StatusCompleted {
		return fmt.Errorf("request %s is %s, not completed: %w", requestID, req.Status, errs.ErrInvalidState)
	}

	recipient, err := s.actors.GetRecipient(ctx, caller)
	if err != nil {
		return err
	}
	if recipient.WithdrawableTokens < req.Quantity {
		return fmt.Errorf("withdrawable tokens %d below request quantity %d: %w", recipient.WithdrawableTokens, req.Quantity, errs.ErrInvalidState)
	}

	recipient.WithdrawableTokens -= req.Quantity
	if _, err := s.actors.UpdateRecipient(ctx, recipient); err != nil {
		return err
	}
	if _, err := s.ledger.CreditWithdrawn(ctx, caller, req.Quantity); err != nil {
		// Restore the bucket; both-or-neither is the contract.
		recipient.WithdrawableTokens += req.Quantity
		_, _ = s.actors.UpdateRecipient(ctx, recipient)
		return err
	}

	s.log.WithField("request_id", requestID).
		WithField("recipient", caller).
		WithField("amount", req.Quantity).
		Info("tokens withdrawn")
	s.bus.Publish(events.TokensWithdrawn, requestID, caller, req.Quantity)
	return nil
}

// GetListing returns a listing by id.
func (s *Service) GetListing(ctx context.Context, id string) (listing.Listing, error) {
	return s.listings.GetListing(ctx, id)
}

// ListListings returns listings, optionally filtered by owner.
func (s *Service) ListListings(ctx context.Context, ownerIdentity string) ([]listing.Listing, error) {
	return s.listings.ListListings(ctx, ownerIdentity)
}

// GetRequest returns a request by id.
func (s *Service) GetRequest(ctx context.Context, id string) (request.Request, error) {
	return s.requests.GetRequest(ctx, id)
}

// ListRequests returns requests, optionally filtered by listing.
func (s *Service) ListRequests(ctx context.Context, listingID string) ([]request.Request, error) {
	return s.requests.ListRequests(ctx, listingID)
}

// RequestsByRecipient returns a recipient's requests.
func (s *Service) RequestsByRecipient(ctx context.Context, identity string) ([]request.Request, error) {
	return s.requests.ListRequestsByRequester(ctx, identity)
}

// checkCategory applies the category policy. Advisory by default: mismatches
// are logged and allowed. StrictCategoryMatch turns them into hard failures.
// Empty categories on either side always pass.
func (s *Service) checkCategory(got, want, against string) error {
	if got == "" || want == "" || strings.EqualFold(got, want) {
		return nil
	}
	if s.cfg.StrictCategoryMatch {
		return fmt.Errorf("category %q does not match %s category %q: %w", got, against, want, errs.ErrCategoryMismatch)
	}
	s.log.WithField("category", got).
		WithField(against+"_category", want).
		Warn("category mismatch")
	return nil
}
