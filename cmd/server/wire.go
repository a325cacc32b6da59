package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"backoffice/internal/config"
	"backoffice/internal/core/tx"
	"backoffice/internal/domain/ledger"
	"backoffice/internal/domain/notify"
	"backoffice/internal/domain/procurement"
	"backoffice/internal/domain/sales"
	"backoffice/internal/domain/stockaudit"
	"backoffice/internal/domain/token"
	"backoffice/internal/infrastructure/cache"
	v1 "backoffice/internal/infrastructure/http/v1"
	"backoffice/internal/infrastructure/http/v1/handlers"
	"backoffice/internal/infrastructure/http/v1/middleware"
	"backoffice/internal/infrastructure/storage/memory"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/internal/infrastructure/storage/postgres/order_repo"
	"backoffice/internal/infrastructure/storage/postgres/sales_repo"
	"backoffice/internal/infrastructure/storage/postgres/stock_repo"
	"backoffice/pkg/logger"
)

// storage is one backend's set of repositories plus the pieces that only
// the Postgres backend provides.
type storage struct {
	txManager      tx.Manager
	ledger         ledger.Repository
	purchaseOrders procurement.PurchaseOrderRepository
	reorders       procurement.ReorderRepository
	audits         stockaudit.Repository
	sales          sales.Repository
	customers      sales.CustomerRepository
	emitter        *notify.Emitter

	idempotency middleware.IdempotencyStore
	pinger      handlers.Pinger
	closers     []func()
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.UsesMemory() {
		log.Warn("using in-memory store, nothing survives a restart")
		store := memory.New()
		repos := store.Repositories()
		sink := notify.NewLogSink(log)
		return &storage{
			txManager:      store,
			ledger:         repos.Ledger,
			purchaseOrders: repos.PurchaseOrders,
			reorders:       repos.Reorders,
			audits:         repos.Audits,
			sales:          repos.Sales,
			customers:      repos.Customers,
			emitter:        notify.NewEmitter(sink, sink),
		}, nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

	txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	activity, err := postgres.NewActivityLog(txm, 0)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create activity log: %w", err)
	}

	s := &storage{
		txManager:      txm,
		ledger:         stock_repo.NewLedgerRepo(txm),
		purchaseOrders: order_repo.NewPurchaseOrderRepo(txm),
		reorders:       order_repo.NewReorderRepo(txm),
		audits:         stock_repo.NewAuditRepo(txm),
		sales:          sales_repo.NewSalesRepo(txm),
		customers:      sales_repo.NewCustomerRepo(txm),
		emitter:        notify.NewTransactionalEmitter(postgres.NewOutboxNotifier(txm), activity),
		pinger:         pool,
		closers:        []func(){pool.Close},
	}
	if cfg.HTTP.IdempotencyEnabled {
		s.idempotency = postgres.NewIdempotencyStore(txm, cfg.Worker.IdempotencyTTL)
	}
	return s, nil
}

// replayGuard picks the shared Redis guard when an address is configured.
func replayGuard(ctx context.Context, cfg *config.Config, log *logger.Logger) (sales.ReplayGuard, func(), error) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryReplayGuard(cfg.Redis.ReplayTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Infow("webhook replay guard on redis", "addr", cfg.Redis.Addr)
	return cache.NewRedisReplayGuard(client, cfg.Redis.ReplayTTL), func() { _ = client.Close() }, nil
}

// buildServices wires the domain services over a storage backend.
func buildServices(cfg *config.Config, st *storage, guard sales.ReplayGuard) (v1.Services, *token.StaffValidator, error) {
	secret := []byte(cfg.Token.Secret)
	authority, err := token.NewAuthority(secret)
	if err != nil {
		return v1.Services{}, nil, fmt.Errorf("create token authority: %w", err)
	}
	staff, err := token.NewStaffValidator(secret)
	if err != nil {
		return v1.Services{}, nil, fmt.Errorf("create staff validator: %w", err)
	}

	ledgerSvc := ledger.NewService(st.ledger, st.txManager)
	rule, err := ledger.CompileLowStockRule(cfg.Stock.LowStockRule)
	if err != nil {
		return v1.Services{}, nil, fmt.Errorf("compile low stock rule: %w", err)
	}
	ledgerSvc.Hooks().OnAfterCommit(ledger.LowStockAlert(rule, st.ledger, st.emitter))

	deps := procurement.Deps{
		TxManager:   st.txManager,
		Ledger:      ledgerSvc,
		Tokens:      authority,
		Emitter:     st.emitter,
		Links:       procurement.PublicLinks(cfg.Token.PublicBaseURL),
		LinkTTLDays: cfg.Token.SupplierLinkTTLDays,
	}

	return v1.Services{
		Ledger:         ledgerSvc,
		PurchaseOrders: procurement.NewPurchaseOrders(st.purchaseOrders, deps),
		Reorders:       procurement.NewReorders(st.reorders, deps),
		Audits:         stockaudit.NewService(st.audits, st.ledger, ledgerSvc, st.txManager, st.emitter),
		Sales: sales.NewService(sales.Config{
			Repo:        st.sales,
			Customers:   st.customers,
			Ledger:      ledgerSvc,
			TxManager:   st.txManager,
			Emitter:     st.emitter,
			ReplayGuard: guard,
		}),
	}, staff, nil
}
