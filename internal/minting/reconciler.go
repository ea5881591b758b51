package minting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"certmint/internal/audit"
	"certmint/internal/config"
	"certmint/internal/ledger"
	"certmint/internal/model"
	"certmint/internal/store"
)

const (
	sweepBatchSize   = 50
	sweepParallelism = 4
)

// Reconciler resolves assets stuck in minting past the lease: a crashed
// process or an unbounded confirmation wait would otherwise leave them
// stuck forever. Each stuck asset is re-queried against the ledger and
// moved to minted or failed through the same CAS discipline the
// controller uses, so a sweep cannot race a live handler into a double
// transition.
type Reconciler struct {
	store    store.AssetStore
	ledgers  map[string]ledger.Client
	chains   map[string]config.ChainSpec
	audit    audit.Log
	metrics  *Metrics
	lease    time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewReconciler(
	assets store.AssetStore,
	ledgers map[string]ledger.Client,
	chains map[string]config.ChainSpec,
	auditLog audit.Log,
	metrics *Metrics,
	lease, interval time.Duration,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:    assets,
		ledgers:  ledgers,
		chains:   chains,
		audit:    auditLog,
		metrics:  metrics,
		lease:    lease,
		interval: interval,
		log:      logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconciliation sweep failed")
			} else if n > 0 {
				r.log.Info().Int("resolved", n).Msg("reconciliation sweep resolved stuck assets")
			}
		}
	}
}

// Sweep resolves one batch of stuck assets and returns how many reached
// a terminal-or-retryable state.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.lease)
	stuck, err := r.store.ListStuckMinting(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	resolved := make([]bool, len(stuck))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)
	for i := range stuck {
		g.Go(func() error {
			resolved[i] = r.resolve(gctx, &stuck[i])
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range resolved {
		if ok {
			n++
		}
	}
	return n, nil
}

func (r *Reconciler) resolve(ctx context.Context, asset *model.Asset) bool {
	logger := r.log.With().Str("asset_id", asset.ID).Logger()

	chainName := ""
	if asset.CertChain != nil {
		chainName = *asset.CertChain
	}
	cli, ok := r.ledgers[chainName]
	if !ok {
		logger.Error().Str("chain", chainName).Msg("stuck asset references unknown chain")
		return false
	}

	lr, err := cli.Lookup(ctx, asset.ID)
	if err != nil {
		// Cannot classify without an answer from the chain; leave the
		// asset for the next sweep.
		logger.Warn().Err(err).Msg("ledger lookup failed, deferring stuck asset")
		return false
	}

	if lr.Found {
		spec := r.chains[chainName]
		cert := store.Certificate{
			Chain:       chainName,
			TxHash:      lr.TxHash,
			TokenID:     lr.TokenID,
			ExplorerURL: explorerTxURL(spec, lr.TxHash),
		}
		if _, err := r.store.MarkMinted(ctx, asset.ID, cert); err != nil {
			logger.Warn().Err(err).Msg("stuck asset changed state under the sweep")
			return false
		}
		r.appendAudit(ctx, asset.ID, map[string]any{
			"outcome":  model.CertStatusMinted,
			"chain":    chainName,
			"tx_hash":  lr.TxHash,
			"token_id": lr.TokenID,
		})
		r.metrics.incReconciled(model.CertStatusMinted)
		logger.Info().Str("tx_hash", lr.TxHash).Msg("stuck mint reconciled to minted")
		return true
	}

	if err := r.store.MarkFailed(ctx, asset.ID); err != nil {
		logger.Warn().Err(err).Msg("stuck asset changed state under the sweep")
		return false
	}
	r.appendAudit(ctx, asset.ID, map[string]any{
		"outcome": model.CertStatusFailed,
		"chain":   chainName,
		"reason":  "minting lease expired with no on-chain certification",
	})
	r.metrics.incReconciled(model.CertStatusFailed)
	logger.Info().Msg("stuck mint reconciled to failed")
	return true
}

func (r *Reconciler) appendAudit(ctx context.Context, assetID string, details map[string]any) {
	err := r.audit.Append(ctx, audit.Entry{
		AssetID: assetID,
		Action:  audit.ActionReconciled,
		ActorID: "reconciler",
		Details: details,
	})
	if err != nil {
		r.log.Error().Err(err).Str("asset_id", assetID).Msg("audit append failed")
	}
}
