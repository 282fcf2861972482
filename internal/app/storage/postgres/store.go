package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openaid/donation-market/internal/app/domain/actor"
	"github.com/openaid/donation-market/internal/app/domain/ledger"
	"github.com/openaid/donation-market/internal/app/domain/listing"
	"github.com/openaid/donation-market/internal/app/domain/request"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ActorStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS market_donors (
			identity        TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL,
			credential_hash TEXT NOT NULL DEFAULT '',
			wallet_limit    BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market_recipients (
			identity            TEXT PRIMARY KEY,
			display_name        TEXT NOT NULL,
			credential_hash     TEXT NOT NULL DEFAULT '',
			category            TEXT NOT NULL DEFAULT '',
			held_tokens         BIGINT NOT NULL DEFAULT 0,
			withdrawable_tokens BIGINT NOT NULL DEFAULT 0,
			accumulated_tokens  BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market_listings (
			id                 TEXT PRIMARY KEY,
			owner_identity     TEXT NOT NULL,
			quantity_available BIGINT NOT NULL,
			quantity_listed    BIGINT NOT NULL,
			category           TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market_requests (
			id                 TEXT PRIMARY KEY,
			listing_id         TEXT NOT NULL DEFAULT '',
			requester_identity TEXT NOT NULL,
			quantity           BIGINT NOT NULL,
			deadline           BIGINT NOT NULL DEFAULT 0,
			category           TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			identity   TEXT PRIMARY KEY,
			balance    BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			from_id    TEXT NOT NULL DEFAULT '',
			to_id      TEXT NOT NULL DEFAULT '',
			amount     BIGINT NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- ActorStore -------------------------------------------------------------

func (s *Store) CreateDonor(ctx context.Context, d actor.Donor) (actor.Donor, error) {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_donors (identity, display_name, credential_hash, wallet_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.Identity, d.DisplayName, d.CredentialHash, d.WalletLimit, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return actor.Donor{}, err
	}
	return d, nil
}

func (s *Store) UpdateDonor(ctx context.Context, d actor.Donor) (actor.Donor, error) {
	d.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_donors
		SET display_name = $2, credential_hash = $3, wallet_limit = $4, updated_at = $5
		WHERE identity = $1
	`, d.Identity, d.DisplayName, d.CredentialHash, d.WalletLimit, d.UpdatedAt)
	if err != nil {
		return actor.Donor{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return actor.Donor{}, fmt.Errorf("donor %s: %w", d.Identity, errs.ErrNotFound)
	}
	return d, nil
}

func (s *Store) GetDonor(ctx context.Context, identity string) (actor.Donor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, display_name, credential_hash, wallet_limit, created_at, updated_at
		FROM market_donors WHERE identity = $1
	`, identity)

	var d actor.Donor
	if err := row.Scan(&d.Identity, &d.DisplayName, &d.CredentialHash, &d.WalletLimit, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return actor.Donor{}, fmt.Errorf("donor %s: %w", identity, errs.ErrNotFound)
		}
		return actor.Donor{}, err
	}
	return d, nil
}

func (s *Store) ListDonors(ctx context.Context) ([]actor.Donor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, display_name, credential_hash, wallet_limit, created_at, updated_at
		FROM market_donors ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []actor.Donor
	for rows.Next() {
		var d actor.Donor
		if err := rows.Scan(&d.Identity, &d.DisplayName, &d.CredentialHash, &d.WalletLimit, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) CreateRecipient(ctx context.Context, r actor.Recipient) (actor.Recipient, error) {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_recipients (identity, display_name, credential_hash, category,
			held_tokens, withdrawable_tokens, accumulated_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.Identity, r.DisplayName, r.CredentialHash, r.Category,
		r.HeldTokens, r.WithdrawableTokens, r.AccumulatedTokens, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return actor.Recipient{}, err
	}
	return r, nil
}

func (s *Store) UpdateRecipient(ctx context.Context, r actor.Recipient) (actor.Recipient, error) {
	r.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_recipients
		SET display_name = $2, credential_hash = $3, category = $4,
			held_tokens = $5, withdrawable_tokens = $6, accumulated_tokens = $7, updated_at = $8
		WHERE identity = $1
	`, r.Identity, r.DisplayName, r.CredentialHash, r.Category,
		r.HeldTokens, r.WithdrawableTokens, r.AccumulatedTokens, r.UpdatedAt)
	if err != nil {
		return actor.Recipient{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return actor.Recipient{}, fmt.Errorf("recipient %s: %w", r.Identity, errs.ErrNotFound)
	}
	return r, nil
}

func (s *Store) GetRecipient(ctx context.Context, identity string) (actor.Recipient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, display_name, credential_hash, category,
			held_tokens, withdrawable_tokens, accumulated_tokens, created_at, updated_at
		FROM market_recipients WHERE identity = $1
	`, identity)

	var r actor.Recipient
	if err := row.Scan(&r.Identity, &r.DisplayName, &r.CredentialHash, &r.Category,
		&r.HeldTokens, &r.WithdrawableTokens, &r.AccumulatedTokens, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return actor.Recipient{}, fmt.Errorf("recipient %s: %w", identity, errs.ErrNotFound)
		}
		return actor.Recipient{}, err
	}
	return r, nil
}

func (s *Store) ListRecipients(ctx context.Context) ([]actor.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, display_name, credential_hash, category,
			held_tokens, withdrawable_tokens, accumulated_tokens, created_at, updated_at
		FROM market_recipients ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []actor.Recipient
	for rows.Next() {
		var r actor.Recipient
		if err := rows.Scan(&r.Identity, &r.DisplayName, &r.CredentialHash, &r.Category,
			&r.HeldTokens, &r.WithdrawableTokens, &r.AccumulatedTokens, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) GetProfile(ctx context.Context, identity string) (actor.Profile, error) {
	if d, err := s.GetDonor(ctx, identity); err == nil {
		return actor.Profile{Role: actor.RoleDonor, Donor: &d}, nil
	}
	if r, err := s.GetRecipient(ctx, identity); err == nil {
		return actor.Profile{Role: actor.RoleRecipient, Recipient: &r}, nil
	}
	return actor.Profile{}, fmt.Errorf("identity %s: %w", identity, errs.ErrNotFound)
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_listings (id, owner_identity, quantity_available, quantity_listed, category, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.OwnerIdentity, l.QuantityAvailable, l.QuantityListed, l.Category, l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	l.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_listings
		SET quantity_available = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, l.ID, l.QuantityAvailable, l.Status, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", l.ID, errs.ErrNotFound)
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_identity, quantity_available, quantity_listed, category, status, created_at, updated_at
		FROM market_listings WHERE id = $1
	`, id)

	var l listing.Listing
	if err := row.Scan(&l.ID, &l.OwnerIdentity, &l.QuantityAvailable, &l.QuantityListed, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return listing.Listing{}, fmt.Errorf("listing %s: %w", id, errs.ErrNotFound)
		}
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) ListListings(ctx context.Context, ownerIdentity string) ([]listing.Listing, error) {
	query := `
		SELECT id, owner_identity, quantity_available, quantity_listed, category, status, created_at, updated_at
		FROM market_listings`
	args := []interface{}{}
	if ownerIdentity != "" {
		query += ` WHERE owner_identity = $1`
		args = append(args, ownerIdentity)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		var l listing.Listing
		if err := rows.Scan(&l.ID, &l.OwnerIdentity, &l.QuantityAvailable, &l.QuantityListed, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// --- RequestStore -----------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_requests (id, listing_id, requester_identity, quantity, deadline, category, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.ListingID, req.RequesterIdentity, req.Quantity, req.Deadline, req.Category, req.Status, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return request.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	req.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_requests
		SET listing_id = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, req.ID, req.ListingID, req.Status, req.UpdatedAt)
	if err != nil {
		return request.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return request.Request{}, fmt.Errorf("request %s: %w", req.ID, errs.ErrNotFound)
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (request.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, listing_id, requester_identity, quantity, deadline, category, status, created_at, updated_at
		FROM market_requests WHERE id = $1
	`, id)

	var req request.Request
	if err := row.Scan(&req.ID, &req.ListingID, &req.RequesterIdentity, &req.Quantity, &req.Deadline, &req.Category, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return request.Request{}, fmt.Errorf("request %s: %w", id, errs.ErrNotFound)
		}
		return request.Request{}, err
	}
	return req, nil
}

func (s *Store) ListRequests(ctx context.Context, listingID string) ([]request.Request, error) {
	query := `
		SELECT id, listing_id, requester_identity, quantity, deadline, category, status, created_at, updated_at
		FROM market_requests`
	args := []interface{}{}
	if listingID != "" {
		query += ` WHERE listing_id = $1`
		args = append(args, listingID)
	}
	query += ` ORDER BY created_at`

	return s.scanRequests(ctx, query, args...)
}

func (s *Store) ListRequestsByRequester(ctx context.Context, identity string) ([]request.Request, error) {
	return s.scanRequests(ctx, `
		SELECT id, listing_id, requester_identity, quantity, deadline, category, status, created_at, updated_at
		FROM market_requests WHERE requester_identity = $1 ORDER BY created_at
	`, identity)
}

func (s *Store) scanRequests(ctx context.Context, query string, args ...interface{}) ([]request.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []request.Request
	for rows.Next() {
		var req request.Request
		if err := rows.Scan(&req.ID, &req.ListingID, &req.RequesterIdentity, &req.Quantity, &req.Deadline, &req.Category, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error) {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_accounts (identity, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, acct.Identity, acct.Balance, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct ledger.Account) (ledger.Account, error) {
	acct.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_accounts SET balance = $2, updated_at = $3 WHERE identity = $1
	`, acct.Identity, acct.Balance, acct.UpdatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Account{}, fmt.Errorf("account %s: %w", acct.Identity, errs.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, identity string) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, balance, created_at, updated_at FROM ledger_accounts WHERE identity = $1
	`, identity)

	var acct ledger.Account
	if err := row.Scan(&acct.Identity, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, fmt.Errorf("account %s: %w", identity, errs.ErrNotFound)
		}
		return ledger.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, balance, created_at, updated_at FROM ledger_accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Account
	for rows.Next() {
		var acct ledger.Account
		if err := rows.Scan(&acct.Identity, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, type, from_id, to_id, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tx.ID, tx.Type, tx.From, tx.To, tx.Amount, tx.Note, tx.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, identity string) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, from_id, to_id, amount, note, created_at
		FROM ledger_transactions
		WHERE from_id = $1 OR to_id = $1
		ORDER BY created_at
	`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.Scan(&tx.ID, &tx.Type, &tx.From, &tx.To, &tx.Amount, &tx.Note, &tx.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
