package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openaid/donation-market/internal/app/domain/actor"
	"github.com/openaid/donation-market/internal/app/domain/ledger"
	"github.com/openaid/donation-market/internal/app/domain/listing"
	"github.com/openaid/donation-market/internal/app/domain/request"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Entities are stored and returned by value so callers never
// observe a mutation mid-flight.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	donors       map[string]actor.Donor
	recipients   map[string]actor.Recipient
	listings     map[string]listing.Listing
	requests     map[string]request.Request
	accounts     map[string]ledger.Account
	transactions map[string][]ledger.Transaction
}

var _ storage.ActorStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		donors:       make(map[string]actor.Donor),
		recipients:   make(map[string]actor.Recipient),
		listings:     make(map[string]listing.Listing),
		requests:     make(map[string]request.Request),
		accounts:     make(map[string]ledger.Account),
		transactions: make(map[string][]ledger.Transaction),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ActorStore implementation ---------------------------------------------------

func (s *Store) CreateDonor(_ context.Context, d actor.Donor) (actor.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.donors[d.Identity]; exists {
		return actor.Donor{}, fmt.Errorf("donor %s: %w", d.Identity, errs.ErrAlreadyRegistered)
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	s.donors[d.Identity] = d
	return d, nil
}

func (s *Store) UpdateDonor(_ context.Context, d actor.Donor) (actor.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.donors[d.Identity]
	if !ok {
		return actor.Donor{}, fmt.Errorf("donor %s: %w", d.Identity, errs.ErrNotFound)
	}

	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	s.donors[d.Identity] = d
	return d, nil
}

func (s *Store) GetDonor(_ context.Context, identity string) (actor.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donors[identity]
	if !ok {
		return actor.Donor{}, fmt.Errorf("donor %s: %w", identity, errs.ErrNotFound)
	}
	return d, nil
}

func (s *Store) ListDonors(_ context.Context) ([]actor.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]actor.Donor, 0, len(s.donors))
	for _, d := range s.donors {
		result = append(result, d)
	}
	return result, nil
}

func (s *Store) CreateRecipient(_ context.Context, r actor.Recipient) (actor.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recipients[r.Identity]; exists {
		return actor.Recipient{}, fmt.Errorf("recipient %s: %w", r.Identity, errs.ErrAlreadyRegistered)
	}

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	s.recipients[r.Identity] = r
	return r, nil
}

func (s *Store) UpdateRecipient(_ context.Context, r actor.Recipient) (actor.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.recipients[r.Identity]
	if !ok {
		return actor.Recipient{}, fmt.Errorf("recipient %s: %w", r.Identity, errs.ErrNotFound)
	}

	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	s.recipients[r.Identity] = r
	return r, nil
}

func (s *Store) GetRecipient(_ context.Context, identity string) (actor.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipients[identity]
	if !ok {
		return actor.Recipient{}, fmt.Errorf("recipient %s: %w", identity, errs.ErrNotFound)
	}
	return r, nil
}

func (s *Store) ListRecipients(_ context.Context) ([]actor.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]actor.Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		result = append(result, r)
	}
	return result, nil
}

func (s *Store) GetProfile(_ context.Context, identity string) (actor.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.donors[identity]; ok {
		donor := d
		return actor.Profile{Role: actor.RoleDonor, Donor: &donor}, nil
	}
	if r, ok := s.recipients[identity]; ok {
		recipient := r
		return actor.Profile{Role: actor.RoleRecipient, Recipient: &recipient}, nil
	}
	return actor.Profile{}, fmt.Errorf("identity %s: %w", identity, errs.ErrNotFound)
}

// ListingStore implementation -------------------------------------------------

func (s *Store) CreateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = s.nextIDLocked()
	} else if _, exists := s.listings[l.ID]; exists {
		return listing.Listing{}, fmt.Errorf("listing %s already exists", l.ID)
	}

	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) UpdateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.listings[l.ID]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", l.ID, errs.ErrNotFound)
	}

	l.CreatedAt = original.CreatedAt
	l.UpdatedAt = time.Now().UTC()

	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) GetListing(_ context.Context, id string) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", id, errs.ErrNotFound)
	}
	return l, nil
}

func (s *Store) ListListings(_ context.Context, ownerIdentity string) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]listing.Listing, 0)
	for _, l := range s.listings {
		if ownerIdentity == "" || l.OwnerIdentity == ownerIdentity {
			result = append(result, l)
		}
	}
	return result, nil
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.requests[req.ID]; exists {
		return request.Request{}, fmt.Errorf("request %s already exists", req.ID)
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) UpdateRequest(_ context.Context, req request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return request.Request{}, fmt.Errorf("request %s: %w", req.ID, errs.ErrNotFound)
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return request.Request{}, fmt.Errorf("request %s: %w", id, errs.ErrNotFound)
	}
	return req, nil
}

func (s *Store) ListRequests(_ context.Context, listingID string) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.Request, 0)
	for _, req := range s.requests {
		if listingID == "" || req.ListingID == listingID {
			result = append(result, req)
		}
	}
	return result, nil
}

func (s *Store) ListRequestsByRequester(_ context.Context, identity string) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.Request, 0)
	for _, req := range s.requests {
		if req.RequesterIdentity == identity {
			result = append(result, req)
		}
	}
	return result, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Identity]; exists {
		return ledger.Account{}, fmt.Errorf("account %s already exists", acct.Identity)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.accounts[acct.Identity] = acct
	return acct, nil
}

func (s *Store) UpdateAccount(_ context.Context, acct ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.accounts[acct.Identity]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", acct.Identity, errs.ErrNotFound)
	}

	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	s.accounts[acct.Identity] = acct
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, identity string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[identity]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %s: %w", identity, errs.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	return result, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	}
	tx.CreatedAt = time.Now().UTC()

	if tx.From != "" {
		s.transactions[tx.From] = append(s.transactions[tx.From], tx)
	}
	if tx.To != "" && tx.To != tx.From {
		s.transactions[tx.To] = append(s.transactions[tx.To], tx)
	}
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, identity string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := s.transactions[identity]
	result := make([]ledger.Transaction, len(txs))
	copy(result, txs)
	return result, nil
}
