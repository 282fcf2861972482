package storage

import (
	"context"

	"github.com/openaid/donation-market/internal/app/domain/actor"
	"github.com/openaid/donation-market/internal/app/domain/ledger"
	"github.com/openaid/donation-market/internal/app/domain/listing"
	"github.com/openaid/donation-market/internal/app/domain/request"
)

// ActorStore persists donor and recipient profiles. Implementations return
// errors wrapping errs.ErrNotFound for unknown identities.
type ActorStore interface {
	CreateDonor(ctx context.Context, d actor.Donor) (actor.Donor, error)
	UpdateDonor(ctx context.Context, d actor.Donor) (actor.Donor, error)
	GetDonor(ctx context.Context, identity string) (actor.Donor, error)
	ListDonors(ctx context.Context) ([]actor.Donor, error)

	CreateRecipient(ctx context.Context, r actor.Recipient) (actor.Recipient, error)
	UpdateRecipient(ctx context.Context, r actor.Recipient) (actor.Recipient, error)
	GetRecipient(ctx context.Context, identity string) (actor.Recipient, error)
	ListRecipients(ctx context.Context) ([]actor.Recipient, error)

	GetProfile(ctx context.Context, identity string) (actor.Profile, error)
}

// ListingStore persists listings. Listings are never deleted; unlisting is a
// status change so history stays queryable.
type ListingStore interface {
	CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	GetListing(ctx context.Context, id string) (listing.Listing, error)
	ListListings(ctx context.Context, ownerIdentity string) ([]listing.Listing, error)
}

// RequestStore persists requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req request.Request) (request.Request, error)
	UpdateRequest(ctx context.Context, req request.Request) (request.Request, error)
	GetRequest(ctx context.Context, id string) (request.Request, error)
	ListRequests(ctx context.Context, listingID string) ([]request.Request, error)
	ListRequestsByRequester(ctx context.Context, identity string) ([]request.Request, error)
}

// LedgerStore persists ledger accounts and the transaction trail.
type LedgerStore interface {
	CreateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error)
	GetAccount(ctx context.Context, identity string) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)

	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, identity string) ([]ledger.Transaction, error)
}
