package app

import (
	"context"
	"fmt"

	"github.com/openaid/donation-market/internal/app/events"
	"github.com/openaid/donation-market/internal/app/guard"
	ledgersvc "github.com/openaid/donation-market/internal/app/services/ledger"
	marketsvc "github.com/openaid/donation-market/internal/app/services/market"
	registrysvc "github.com/openaid/donation-market/internal/app/services/registry"
	"github.com/openaid/donation-market/internal/app/storage"
	"github.com/openaid/donation-market/internal/app/storage/memory"
	"github.com/openaid/donation-market/internal/app/system"
	"github.com/openaid/donation-market/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Actors   storage.ActorStore
	Listings storage.ListingStore
	Requests storage.RequestStore
	Ledger   storage.LedgerStore
}

// Config carries everything the application needs beyond stores.
type Config struct {
	// OwnerIdentity holds blanket administrative authority: pause,
	// decommission, conversion-rate changes. Immutable after construction.
	OwnerIdentity string

	ConversionRate      int64
	WalletLimit         int64
	SupplyCeiling       int64
	StrictCategoryMatch bool

	// EventHistory bounds the in-memory event buffer; EventLogPath, if set,
	// appends every event as JSONL.
	EventHistory int
	EventLogPath string

	// Mover is the external value-transfer collaborator. Nil defaults to
	// the no-op mover.
	Mover ledgersvc.ValueMover
}

// Application ties the marketplace services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Guard    *guard.Guard
	Events   *events.Bus
	Registry *registrysvc.Service
	Ledger   *ledgersvc.Service
	Market   *marketsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if cfg.OwnerIdentity == "" {
		return nil, fmt.Errorf("owner identity is required")
	}

	mem := memory.New()
	if stores.Actors == nil {
		stores.Actors = mem
	}
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}

	sink, err := events.NewFileSink(cfg.EventLogPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	var busSink events.Sink
	if sink != nil {
		busSink = sink
	}
	bus := events.NewBus(cfg.EventHistory, busSink)

	g := guard.New(cfg.OwnerIdentity, bus, log)

	ledgerService := ledgersvc.New(stores.Actors, stores.Ledger, g, bus, cfg.Mover, ledgersvc.Config{
		ConversionRate: cfg.ConversionRate,
		WalletLimit:    cfg.WalletLimit,
		SupplyCeiling:  cfg.SupplyCeiling,
	}, log)
	registryService := registrysvc.New(stores.Actors, stores.Ledger, g, bus, cfg.WalletLimit, log)
	marketService := marketsvc.New(stores.Actors, stores.Listings, stores.Requests, ledgerService, g, bus, marketsvc.Config{
		StrictCategoryMatch: cfg.StrictCategoryMatch,
	}, log)

	manager := system.NewManager()
	for _, name := range []string{"registry", "ledger", "market"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Guard:    g,
		Events:   bus,
		Registry: registryService,
		Ledger:   ledgerService,
		Market:   marketService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
