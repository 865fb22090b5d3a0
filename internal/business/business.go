package business

import (
	"context"
	"fmt"
	"io"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/calculator"
	"github.com/openkcm/contract-calculator/internal/chain/tezosrpc"
	"github.com/openkcm/contract-calculator/internal/config"
	"github.com/openkcm/contract-calculator/internal/contract"
	"github.com/openkcm/contract-calculator/internal/wallet"
	walletsql "github.com/openkcm/contract-calculator/internal/wallet/sql"
	walletvalkey "github.com/openkcm/contract-calculator/internal/wallet/valkey"
)

// InvokeMain pairs a wallet, performs one calculator operation and
// disconnects again. Progress and the final state are written to out.
func InvokeMain(ctx context.Context, cfg *config.Config, req calculator.OperationRequest, out io.Writer) error {
	if err := req.Validate(); err != nil {
		return err
	}

	printer := newViewPrinter(out)

	orch, closeFn, err := initOrchestrator(ctx, cfg, calculator.WithObserver(printer.observe))
	if err != nil {
		return fmt.Errorf("initialising the orchestrator: %w", err)
	}
	defer closeFn()

	if err := orch.Connect(ctx); err != nil {
		return fmt.Errorf("connecting the wallet: %w", err)
	}
	defer orch.Disconnect(context.WithoutCancel(ctx))

	printer.printState(orch.View())

	if err := orch.Invoke(ctx, req); err != nil {
		return fmt.Errorf("invoking %s: %w", req.Kind, err)
	}

	printer.printState(orch.View())

	return nil
}

// initOrchestrator wires the pairing store, relay and RPC client from cfg.
func initOrchestrator(ctx context.Context, cfg *config.Config, opts ...calculator.Option) (_ *calculator.Orchestrator, closeFn func(), _ error) {
	valkeyOpt, err := config.MakeValkeyOption(cfg.ValKey)
	if err != nil {
		return nil, nil, err
	}

	valkeyClient, err := valkey.NewClient(valkeyOpt)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	closers := []func(){valkeyClient.Close}
	closeFn = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pairings, closePairings, err := initPairingRepository(ctx, cfg, valkeyClient)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	closers = append(closers, closePairings)

	provider := wallet.NewProvider(wallet.ProviderConfig{
		AppName:     cfg.Pairing.AppName,
		RelayServer: cfg.Pairing.RelayServer,
		RequestTTL:  cfg.Pairing.RequestTTL,
	}, walletvalkey.NewRelay(valkeyClient, cfg.ValKey.Prefix), pairings)

	httpClient, err := loadHTTPClient(cfg.Chain.ClientAuth)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("loading http client: %w", err)
	}

	client, err := tezosrpc.NewClient(tezosrpc.Config{
		Endpoint:           cfg.Chain.RPCURL,
		PollInterval:       cfg.Chain.PollInterval,
		EntrypointCacheTTL: cfg.Chain.EntrypointCacheTTL,
	}, provider, httpClient)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating the RPC client: %w", err)
	}

	meters, err := calculator.NewMeters(ctx, cfg.Application)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating meters: %w", err)
	}

	opts = append([]calculator.Option{
		calculator.WithMeters(meters),
		calculator.WithPairingTimeout(cfg.Pairing.AwaitTimeout),
		calculator.WithContractOptions(contract.WithConfirmationTimeout(cfg.Chain.ConfirmationTimeout)),
	}, opts...)

	orch := calculator.New(wallet.NewSession(provider), client, cfg.Chain.ContractAddress, opts...)

	slogctx.Debug(ctx, "Orchestrator initialised",
		"contract", cfg.Chain.ContractAddress,
		"rpc", cfg.Chain.RPCURL,
		"pairing_backend", cfg.Pairing.Backend)

	return orch, closeFn, nil
}

func initPairingRepository(ctx context.Context, cfg *config.Config, valkeyClient valkey.Client) (wallet.Repository, func(), error) {
	switch cfg.Pairing.Backend {
	case config.PairingBackendSQL:
		db, err := initDBPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}

		return walletsql.NewRepository(db), db.Close, nil
	case config.PairingBackendValkey:
		return walletvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown pairing backend %q", cfg.Pairing.Backend)
	}
}

func initDBPool(ctx context.Context, conf config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(conf)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}
