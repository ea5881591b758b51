// Package minting orchestrates asset certification: the state machine,
// idempotency and concurrency guards, failure classification, and the
// reconciliation sweep for stuck mints.
package minting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"certmint/internal/access"
	"certmint/internal/audit"
	"certmint/internal/certerr"
	"certmint/internal/config"
	"certmint/internal/ledger"
	"certmint/internal/model"
	"certmint/internal/store"
)

// Controller drives the certification lifecycle. Per-asset mutual
// exclusion comes exclusively from the persisted CAS status transition;
// the controller holds no locks of its own.
type Controller struct {
	store        store.AssetStore
	ledgers      map[string]ledger.Client
	chains       map[string]config.ChainSpec
	defaultChain string
	audit        audit.Log
	metrics      *Metrics
	log          zerolog.Logger
}

func NewController(
	assets store.AssetStore,
	ledgers map[string]ledger.Client,
	chains map[string]config.ChainSpec,
	defaultChain string,
	auditLog audit.Log,
	metrics *Metrics,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		store:        assets,
		ledgers:      ledgers,
		chains:       chains,
		defaultChain: defaultChain,
		audit:        auditLog,
		metrics:      metrics,
		log:          logger,
	}
}

// Request asks for certification of one asset on one chain.
type Request struct {
	AssetID string
	Chain   string
	Actor   access.Identity
}

// Certificate is the caller-facing view of a minted certification.
type Certificate struct {
	Chain             string `json:"chain"`
	TxHash            string `json:"tx_hash"`
	TokenID           string `json:"token_id"`
	ExplorerURL       string `json:"explorer_url"`
	ContractReference string `json:"contract_reference"`
}

// Result is the outcome of an accepted certification request.
type Result struct {
	Asset            *model.Asset
	Certificate      *Certificate
	AlreadyCertified bool
}

// RequestCertification runs the full lifecycle for one asset. It is
// idempotent for minted assets, rejects concurrent requests with a
// conflict, and never leaves an asset in minting after a classifiable
// failure.
func (c *Controller) RequestCertification(ctx context.Context, req Request) (*Result, error) {
	chainName := req.Chain
	if chainName == "" {
		chainName = c.defaultChain
	}

	// Configuration faults are detected before the asset is claimed so
	// they never mutate state.
	spec, ok := c.chains[chainName]
	if !ok {
		return nil, certerr.New(certerr.StageConfig, certerr.CodeConfiguration,
			fmt.Sprintf("unsupported chain %q", chainName))
	}
	cli, ok := c.ledgers[chainName]
	if !ok {
		return nil, certerr.New(certerr.StageConfig, certerr.CodeConfiguration,
			fmt.Sprintf("no ledger client configured for chain %q", chainName))
	}
	if err := cli.Preflight(); err != nil {
		return nil, certerr.Wrap(certerr.StageConfig, certerr.CodeConfiguration,
			"ledger configuration invalid", err)
	}

	scope := store.Scope{OwnerID: req.Actor.SubjectID, Service: req.Actor.Service}
	asset, err := c.store.GetByID(ctx, req.AssetID, scope)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, certerr.New(certerr.StageLookup, certerr.CodeNotFound, "asset not found")
		}
		return nil, certerr.Wrap(certerr.StageLookup, certerr.CodeInternal, "load asset", err)
	}

	if err := access.Authorize(req.Actor, asset.OwnerID); err != nil {
		return nil, certerr.Wrap(certerr.StageAuth, certerr.CodeForbidden,
			"caller may not certify this asset", err)
	}

	switch asset.CertStatus {
	case model.CertStatusMinted:
		// Idempotent short-circuit: return the existing certificate
		// without touching the ledger.
		c.metrics.incCertification("already_certified")
		return &Result{
			Asset:            asset,
			Certificate:      certificateOf(asset, spec),
			AlreadyCertified: true,
		}, nil
	case model.CertStatusMinting:
		c.metrics.incCertification("conflict")
		return nil, certerr.New(certerr.StageClaim, certerr.CodeConflict,
			"Certification already in progress")
	}

	claimed, err := c.store.ClaimMinting(ctx, asset.ID, asset.CertStatus, chainName)
	if err != nil {
		return nil, certerr.Wrap(certerr.StageClaim, certerr.CodeInternal, "claim minting", err)
	}
	if !claimed {
		// Lost the CAS race to a concurrent caller.
		c.metrics.incCertification("conflict")
		return nil, certerr.New(certerr.StageClaim, certerr.CodeConflict,
			"Certification already in progress")
	}

	c.appendAudit(ctx, asset.ID, audit.ActionRequested, req.Actor.ActorID(), map[string]any{
		"chain":           chainName,
		"previous_status": asset.CertStatus,
	})

	started := time.Now()
	mint, err := cli.Certify(ctx, ledger.CertifyRequest{
		AssetID:      asset.ID,
		OwnerAddress: c.ownerAddress(asset, spec),
	})
	if err != nil {
		return nil, c.failMint(ctx, asset.ID, req.Actor.ActorID(), chainName, classify(err))
	}

	cert := store.Certificate{
		Chain:       chainName,
		TxHash:      mint.TxHash,
		TokenID:     mint.TokenID,
		ExplorerURL: explorerTxURL(spec, mint.TxHash),
	}
	updated, err := c.store.MarkMinted(ctx, asset.ID, cert)
	if err != nil {
		return nil, c.failMint(ctx, asset.ID, req.Actor.ActorID(), chainName,
			certerr.Wrap(certerr.StagePersist, certerr.CodeInternal, "persist mint outcome", err))
	}

	details := map[string]any{
		"chain":        chainName,
		"tx_hash":      mint.TxHash,
		"token_id":     mint.TokenID,
		"block_number": mint.BlockNumber,
	}
	if mint.TokenFallback {
		details["token_fallback"] = true
		c.log.Warn().
			Str("asset_id", asset.ID).
			Str("tx_hash", mint.TxHash).
			Msg("minted with locally derived token id, reconcile against ledger")
	}
	c.appendAudit(ctx, asset.ID, audit.ActionCertified, req.Actor.ActorID(), details)

	c.metrics.incCertification("minted")
	c.metrics.observeMint(chainName, time.Since(started))

	return &Result{
		Asset:       updated,
		Certificate: certificateOf(updated, spec),
	}, nil
}

// failMint forces the asset out of minting, audits the failure, and
// returns the classified error. Runs for every failure after a claim so
// no asset stays minting once a classifiable fault has occurred.
func (c *Controller) failMint(ctx context.Context, assetID, actorID, chain string, cerr *certerr.Error) error {
	if err := c.store.MarkFailed(ctx, assetID); err != nil {
		c.log.Error().Err(err).Str("asset_id", assetID).
			Msg("could not mark asset failed, reconciler will resolve it")
	}

	c.appendAudit(ctx, assetID, audit.ActionFailed, actorID, map[string]any{
		"chain": chain,
		"stage": string(cerr.Stage),
		"code":  string(cerr.Code),
		"error": cerr.Error(),
	})

	c.metrics.incCertification("failed")
	return cerr
}

func (c *Controller) appendAudit(ctx context.Context, assetID, action, actorID string, details map[string]any) {
	err := c.audit.Append(ctx, audit.Entry{
		AssetID: assetID,
		Action:  action,
		ActorID: actorID,
		Details: details,
	})
	if err != nil {
		c.log.Error().Err(err).Str("asset_id", assetID).Str("action", action).
			Msg("audit append failed")
	}
}

// ownerAddress resolves the on-chain recipient: the owner's wallet when
// one is recorded, otherwise the platform custody address for the chain.
func (c *Controller) ownerAddress(asset *model.Asset, spec config.ChainSpec) string {
	if asset.WalletAddress != nil && *asset.WalletAddress != "" {
		return *asset.WalletAddress
	}
	return spec.CustodyAddress
}

func certificateOf(asset *model.Asset, spec config.ChainSpec) *Certificate {
	cert := &Certificate{ContractReference: spec.Contract}
	if asset.CertChain != nil {
		cert.Chain = *asset.CertChain
	}
	if asset.CertTxHash != nil {
		cert.TxHash = *asset.CertTxHash
	}
	if asset.CertTokenID != nil {
		cert.TokenID = *asset.CertTokenID
	}
	if asset.CertExplorerURL != nil {
		cert.ExplorerURL = *asset.CertExplorerURL
	}
	return cert
}

func explorerTxURL(spec config.ChainSpec, txHash string) string {
	if spec.ExplorerBaseURL == "" {
		return ""
	}
	return spec.ExplorerBaseURL + "/tx/" + txHash
}

// classify maps ledger-layer faults onto the caller-facing taxonomy.
// Anything unrecognized is surfaced as internal but still forces the
// failed transition upstream.
func classify(err error) *certerr.Error {
	var ce *certerr.Error
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, ledger.ErrMissingEndpoint),
		errors.Is(err, ledger.ErrMalformedContract),
		errors.Is(err, ledger.ErrMalformedKey),
		errors.Is(err, ledger.ErrReadOnly):
		return certerr.Wrap(certerr.StageConfig, certerr.CodeConfiguration,
			"ledger configuration invalid", err)
	case errors.Is(err, ledger.ErrReverted),
		errors.Is(err, ledger.ErrUnminable),
		errors.Is(err, ledger.ErrNonceCollision),
		errors.Is(err, ledger.ErrBroadcast):
		return certerr.Wrap(certerr.StageMint, certerr.CodeTransaction,
			"ledger transaction failed", err)
	default:
		return certerr.Wrap(certerr.StageMint, certerr.CodeInternal,
			"unclassified mint failure", err)
	}
}
