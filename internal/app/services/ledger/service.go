// Package ledger implements the bounded-supply token ledger: rate-converted
// deposits, debits, transfers and cash-outs, with the wallet limit and supply
// ceiling enforced on every mint.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/openaid/donation-market/internal/app/domain/ledger"
	"github.com/openaid/donation-market/internal/app/errs"
	"github.com/openaid/donation-market/internal/app/events"
	"github.com/openaid/donation-market/internal/app/guard"
	"github.com/openaid/donation-market/internal/app/storage"
	"github.com/openaid/donation-market/pkg/logger"
)

// ValueMover is the external value-transfer collaborator. AcceptValue takes
// custody of incoming value before tokens are minted; ReleaseValue pays out
// on cash-out. Both must be atomic with respect to the ledger mutation they
// accompany; CashOut compensates with a re-credit if the release fails.
type ValueMover interface {
	AcceptValue(ctx context.Context, identity string, amount int64) error
	ReleaseValue(ctx context.Context, identity string, amount int64) error
}

// NoopMover accepts and releases value unconditionally. Used in tests and as
// the default wiring when no external collaborator is attached.
type NoopMover struct{}

func (NoopMover) AcceptValue(context.Context, string, int64) error  { return nil }
func (NoopMover) ReleaseValue(context.Context, string, int64) error { return nil }

// Config carries the ledger's economic parameters.
type Config struct {
	ConversionRate int64 // token units minted per unit of deposited value
	WalletLimit    int64 // cap on a single top-up, in token units
	SupplyCeiling  int64 // cap on total minted supply
}

// Service is the ValueLedger. A single mutex strictly serializes mutating
// operations so the non-negativity and conservation invariants hold without
// interleaved partial mutations.
type Service struct {
	actors storage.ActorStore
	store  storage.LedgerStore
	guard  *guard.Guard
	bus    *events.Bus
	mover  ValueMover
	log    *logger.Logger

	mu     sync.Mutex
	rate   int64
	cfg    Config
	minted int64
}

// New constructs the ledger service.
func New(actors storage.ActorStore, store storage.LedgerStore, g *guard.Guard, bus *events.Bus, mover ValueMover, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	if mover == nil {
		mover = NoopMover{}
	}
	if cfg.ConversionRate <= 0 {
		cfg.ConversionRate = 1
	}
	if cfg.WalletLimit <= 0 {
		cfg.WalletLimit = math.MaxInt64
	}
	if cfg.SupplyCeiling <= 0 {
		cfg.SupplyCeiling = math.MaxInt64
	}
	return &Service{
		actors: actors,
		store:  store,
		guard:  g,
		bus:    bus,
		mover:  mover,
		log:    log,
		rate:   cfg.ConversionRate,
		cfg:    cfg,
	}
}

// ConversionRate returns the current deposit-to-token multiplier.
func (s *Service) ConversionRate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetConversionRate changes the multiplier. Owner-only.
func (s *Service) SetConversionRate(_ context.Context, caller string, rate int64) error {
	if err := s.guard.RequireOwner(caller); err != nil {
		return err
	}
	if rate <= 0 {
		return fmt.Errorf("conversion rate must be positive, got %d", rate)
	}
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
	s.log.WithField("rate", rate).Info("conversion rate updated")
	return nil
}

// MintedSupply returns the total token units minted and still in circulation.
func (s *Service) MintedSupply() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minted
}

// Balance returns an identity's spendable balance.
func (s *Service) Balance(ctx context.Context, identity string) (int64, error) {
	acct, err := s.store.GetAccount(ctx, identity)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Transactions lists the ledger trail touching an identity.
func (s *Service) Transactions(ctx context.Context, identity string) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx, identity)
}

// CreditFromDeposit converts deposited value at the current rate and credits
// the identity. The single top-up is capped by the donor's wallet limit (or
// the configured default) and the post-credit supply by the supply ceiling.
func (s *Service) CreditFromDeposit(ctx context.Context, identity string, deposit int64) (int64, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return 0, err
	}
	if deposit <= 0 {
		return 0, fmt.Errorf("deposit must be positive, got %d", deposit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := mulChecked(deposit, s.rate)
	if err != nil {
		return 0, err
	}

	limit := s.cfg.WalletLimit
	if donor, derr := s.actors.GetDonor(ctx, identity); derr == nil && donor.WalletLimit > 0 {
		limit = donor.WalletLimit
	}
	if tokens > limit {
		return 0, fmt.Errorf("top-up of %d exceeds wallet limit %d: %w", tokens, limit, errs.ErrLimitExceeded)
	}

	newMinted, err := addChecked(s.minted, tokens)
	if err != nil {
		return 0, err
	}
	if newMinted > s.cfg.SupplyCeiling {
		return 0, fmt.Errorf("supply ceiling %d would be exceeded: %w", s.cfg.SupplyCeiling, errs.ErrLimitExceeded)
	}

	acct, err := s.store.GetAccount(ctx, identity)
	if err != nil {
		return 0, err
	}
	newBalance, err := addChecked(acct.Balance, tokens)
	if err != nil {
		return 0, err
	}

	if err := s.mover.AcceptValue(ctx, identity, deposit); err != nil {
		return 0, fmt.Errorf("accept value: %w", err)
	}

	acct.Balance = newBalance
	if _, err := s.store.UpdateAccount(ctx, acct); err != nil {
		return 0, err
	}
	s.minted = newMinted

	s.appendTransaction(ctx, ledger.TypeCredit, "", identity, tokens, "deposit conversion")
	s.log.WithField("identity", identity).
		WithField("tokens", tokens).
		Info("wallet topped up")
	s.bus.Publish(events.ToppedUpWallet, identity, identity, tokens)
	return newBalance, nil
}

// Debit removes amount from an identity's balance.
func (s *Service) Debit(ctx context.Context, identity string, amount int64) (int64, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("debit must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debitLocked(ctx, identity, amount)
}

func (s *Service) debitLocked(ctx context.Context, identity string, amount int64) (int64, error) {
	acct, err := s.store.GetAccount(ctx, identity)
	if err != nil {
		return 0, err
	}
	if amount > acct.Balance {
		return 0, fmt.Errorf("debit %d exceeds balance %d: %w", amount, acct.Balance, errs.ErrInsufficientBalance)
	}
	acct.Balance -= amount
	if _, err := s.store.UpdateAccount(ctx, acct); err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Transfer atomically moves amount between two spendable balances. On any
// failure both balances are left unchanged.
func (s *Service) Transfer(ctx context.Context, from, to string, amount int64) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("transfer must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.store.GetAccount(ctx, from)
	if err != nil {
		return err
	}
	dst, err := s.store.GetAccount(ctx, to)
	if err != nil {
		return err
	}
	if amount > src.Balance {
		return fmt.Errorf("transfer %d exceeds balance %d: %w", amount, src.Balance, errs.ErrInsufficientBalance)
	}
	newDst, err := addChecked(dst.Balance, amount)
	if err != nil {
		return err
	}

	src.Balance -= amount
	dst.Balance = newDst
	if _, err := s.store.UpdateAccount(ctx, src); err != nil {
		return err
	}
	if _, err := s.store.UpdateAccount(ctx, dst); err != nil {
		// Restore the source; both-or-neither is the contract.
		src.Balance += amount
		_, _ = s.store.UpdateAccount(ctx, src)
		return err
	}

	s.appendTransaction(ctx, ledger.TypeTransfer, from, to, amount, "")
	s.bus.Publish(events.Transferred, to, from, amount)
	return nil
}

// TransferToHold debits the donor's spendable balance and parks the amount in
// the recipient's held-token bucket. Used by approval settlement: the value
// leaves the donor immediately but only becomes spendable for the recipient
// after completion and withdrawal.
func (s *Service) TransferToHold(ctx context.Context, from, to string, amount int64) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("transfer must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recipient, err := s.actors.GetRecipient(ctx, to)
	if err != nil {
		return err
	}
	newHeld, err := addChecked(recipient.HeldTokens, amount)
	if err != nil {
		return err
	}

	if _, err := s.debitLocked(ctx, from, amount); err != nil {
		return err
	}

	recipient.HeldTokens = newHeld
	if _, err := s.actors.UpdateRecipient(ctx, recipient); err != nil {
		// Re-credit the donor; both-or-neither is the contract.
		acct, gerr := s.store.GetAccount(ctx, from)
		if gerr == nil {
			acct.Balance += amount
			_, _ = s.store.UpdateAccount(ctx, acct)
		}
		return err
	}

	s.appendTransaction(ctx, ledger.TypeTransfer, from, to, amount, "approval settlement")
	s.bus.Publish(events.Transferred, to, from, amount)
	return nil
}

// CreditWithdrawn moves a completed request's tokens from the recipient's
// withdrawable bucket into the spendable balance. The tokens were already
// minted and escrowed, so the supply is unchanged.
func (s *Service) CreditWithdrawn(ctx context.Context, identity string, amount int64) (int64, error) {
	if err := s.guard.CheckMutable(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("withdrawal must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, identity)
	if err != nil {
		return 0, err
	}
	newBalance, err := addChecked(acct.Balance, amount)
	if err != nil {
		return 0, err
	}
	acct.Balance = newBalance
	if _, err := s.store.UpdateAccount(ctx, acct); err != nil {
		return 0, err
	}

	s.appendTransaction(ctx, ledger.TypeCredit, "", identity, amount, "withdrawn tokens")
	return newBalance, nil
}

// CashOut debits the balance and releases equivalent external value. If the
// release fails the debit is compensated and the error returned.
func (s *Service) CashOut(ctx context.Context, identity string, amount int64) error {
	if err := s.guard.CheckMutable(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("cash-out must be positive, got %d", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.debitLocked(ctx, identity, amount); err != nil {
		return err
	}

	if err := s.mover.ReleaseValue(ctx, identity, amount); err != nil {
		acct, gerr := s.store.GetAccount(ctx, identity)
		if gerr == nil {
			acct.Balance += amount
			_, _ = s.store.UpdateAccount(ctx, acct)
		}
		return fmt.Errorf("release value: %w", err)
	}

	// Cashed-out tokens leave circulation.
	s.minted -= amount

	s.appendTransaction(ctx, ledger.TypeCashOut, identity, "", amount, "")
	s.log.WithField("identity", identity).
		WithField("amount", amount).
		Info("tokens cashed out")
	return nil
}

func (s *Service) appendTransaction(ctx context.Context, typ ledger.TransactionType, from, to string, amount int64, note string) {
	tx := ledger.Transaction{Type: typ, From: from, To: to, Amount: amount, Note: note}
	if _, err := s.store.CreateTransaction(ctx, tx); err != nil {
		s.log.WithError(err).Warn("record ledger transaction failed")
	}
}

func addChecked(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, errs.ErrOverflow
	}
	return a + b, nil
}

func mulChecked(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	result := a * b
	if result/b != a {
		return 0, errs.ErrOverflow
	}
	return result, nil
}
