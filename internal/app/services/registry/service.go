// Package registry handles donor and recipient onboarding. Roles are
// mutually exclusive per identity; registration creates the zero-balance
// ledger account the identity will transact with.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/openaid/donation-market/internal/app/domain/actor"
	"github.com/openaid/donation-market/internal/app/domain/ledger"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/events"
	"github.com/openaid/donation-market/internal/app/guard"
	"github.com/openaid/donation-market/internal/app/storage"
	"github.com/openaid/donation-market/pkg/logger"
)

// Service is the ActorRegistry.
type Service struct {
	actors             storage.ActorStore
	ledger             storage.LedgerStore
	guard              *guard.Guard
	bus                *events.Bus
	log                *logger.Logger
	defaultWalletLimit int64
}

// New constructs the registry service. defaultWalletLimit applies to donors
// registered without an explicit limit.
func New(actors storage.ActorStore, ledgerStore storage.LedgerStore, g *guard.Guard, bus *events.Bus, defaultWalletLimit int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Service{
		actors:             actors,
		ledger:             ledgerStore,
		guard:              g,
		bus:                bus,
		log:                log,
		defaultWalletLimit: defaultWalletLimit,
	}
}

// RegisterDonor creates a donor profile and its ledger account. credential is
// optional and stored hashed; walletLimit <= 0 uses the configured default.
func (s *Service) RegisterDonor(ctx context.Context, identity, displayName, credential string, walletLimit int64) (actor.Donor, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return actor.Donor{}, err
	}
	identity = strings.TrimSpace(identity)
	displayName = strings.TrimSpace(displayName)
	if identity == "" || displayName == "" {
		return actor.Donor{}, fmt.Errorf("identity and display name are required")
	}
	if err := s.checkUnregistered(ctx, identity); err != nil {
		return actor.Donor{}, err
	}
	if walletLimit <= 0 {
		walletLimit = s.defaultWalletLimit
	}

	d := actor.Donor{
		Identity:       identity,
		DisplayName:    displayName,
		CredentialHash: hashCredential(credential),
		WalletLimit:    walletLimit,
	}
	created, err := s.actors.CreateDonor(ctx, d)
	if err != nil {
		return actor.Donor{}, err
	}
	if _, err := s.ledger.CreateAccount(ctx, ledger.Account{Identity: identity}); err != nil {
		return actor.Donor{}, fmt.Errorf("create ledger account: %w", err)
	}

	s.log.WithField("identity", identity).Info("donor registered")
	s.bus.Publish(events.DonorRegistered, identity, identity, 0)
	return created, nil
}

// RegisterRecipient creates a recipient profile and its ledger account.
// category is an optional tag used by the advisory matching policy.
func (s *Service) RegisterRecipient(ctx context.Context, identity, displayName, credential, category string) (actor.Recipient, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return actor.Recipient{}, err
	}
	identity = strings.TrimSpace(identity)
	displayName = strings.TrimSpace(displayName)
	if identity == "" || displayName == "" {
		return actor.Recipient{}, fmt.Errorf("identity and display name are required")
	}
	if err := s.checkUnregistered(ctx, identity); err != nil {
		return actor.Recipient{}, err
	}

	r := actor.Recipient{
		Identity:       identity,
		DisplayName:    displayName,
		CredentialHash: hashCredential(credential),
		Category:       strings.TrimSpace(category),
	}
	created, err := s.actors.CreateRecipient(ctx, r)
	if err != nil {
		return actor.Recipient{}, err
	}
	if _, err := s.ledger.CreateAccount(ctx, ledger.Account{Identity: identity}); err != nil {
		return actor.Recipient{}, fmt.Errorf("create ledger account: %w", err)
	}

	s.log.WithField("identity", identity).Info("recipient registered")
	s.bus.Publish(events.RecipientRegistered, identity, identity, 0)
	return created, nil
}

// ProfileOf returns the role-tagged profile for an identity.
func (s *Service) ProfileOf(ctx context.Context, identity string) (actor.Profile, error) {
	return s.actors.GetProfile(ctx, identity)
}

// ListDonors returns all registered donors.
func (s *Service) ListDonors(ctx context.Context) ([]actor.Donor, error) {
	return s.actors.ListDonors(ctx)
}

// ListRecipients returns all registered recipients.
func (s *Service) ListRecipients(ctx context.Context) ([]actor.Recipient, error) {
	return s.actors.ListRecipients(ctx)
}

func (s *Service) checkUnregistered(ctx context.Context, identity string) error {
	if _, err := s.actors.GetProfile(ctx, identity); err == nil {
		return fmt.Errorf("identity %s: %w", identity, errs.ErrAlreadyRegistered)
	}
	return nil
}

func hashCredential(credential string) string {
	if credential == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
