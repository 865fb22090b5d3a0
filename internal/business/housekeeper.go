package business

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/config"
	"github.com/openkcm/contract-calculator/internal/wallet"
)

// HousekeeperMain periodically deletes pairings whose request expired
// without the process that created them cleaning up.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	valkeyOpt, err := config.MakeValkeyOption(cfg.ValKey)
	if err != nil {
		return err
	}

	valkeyClient, err := valkey.NewClient(valkeyOpt)
	if err != nil {
		return fmt.Errorf("creating a new valkey client: %w", err)
	}
	defer valkeyClient.Close()

	pairings, closePairings, err := initPairingRepository(ctx, cfg, valkeyClient)
	if err != nil {
		return fmt.Errorf("initialising the pairing repository: %w", err)
	}
	defer closePairings()

	runHousekeeping(ctx, pairings, cfg.Housekeeper.TriggerInterval)

	return nil
}

func runHousekeeping(ctx context.Context, pairings wallet.Repository, interval time.Duration) {
	c := time.Tick(interval)
	for {
		n, err := pairings.DeleteExpiredPairings(ctx, time.Now())
		if err != nil {
			slogctx.Error(ctx, "Error during pairing housekeeping", "error", err)
		} else if n > 0 {
			slogctx.Info(ctx, "Deleted expired pairings", "count", n)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return
		}
	}
}
