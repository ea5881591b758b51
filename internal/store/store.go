// Package store persists certifiable assets. The cert_status column is
// the sole arbiter of whether a mint is in flight: all transitions are
// compare-and-swap updates keyed on the previously observed status, and
// no lock or transaction is ever held across a ledger call.
package store

import (
	"context"
	"errors"
	"time"

	"certmint/internal/model"
)

// ErrNotFound is returned when an asset is absent or outside the caller's
// visibility scope.
var ErrNotFound = errors.New("asset not found")

// Scope limits reads to what the caller may see. Service callers see all
// assets; everyone else only their own.
type Scope struct {
	OwnerID string
	Service bool
}

// Certificate holds the on-chain fields persisted on the transition into
// minted.
type Certificate struct {
	Chain       string
	TxHash      string
	TokenID     string
	ExplorerURL string
}

// AssetStore abstracts asset persistence.
type AssetStore interface {
	// Create inserts the asset if it does not exist yet. Re-registering
	// an existing id is a no-op so ingestion hooks can fire repeatedly.
	Create(ctx context.Context, asset *model.Asset) error

	GetByID(ctx context.Context, id string, scope Scope) (*model.Asset, error)

	// ClaimMinting transitions the asset into minting iff its stored
	// status still equals expectedStatus. Exactly one of two racing
	// claims succeeds.
	ClaimMinting(ctx context.Context, id, expectedStatus, chain string) (bool, error)

	// MarkMinted finalizes a successful mint. Only valid from minting;
	// sets cert_created_at exactly once since minted is terminal.
	MarkMinted(ctx context.Context, id string, cert Certificate) (*model.Asset, error)

	// MarkFailed records a failed mint attempt. Only valid from minting;
	// the asset becomes retryable.
	MarkFailed(ctx context.Context, id string) error

	// ListStuckMinting returns assets whose minting lease started before
	// olderThan, for the reconciliation sweep.
	ListStuckMinting(ctx context.Context, olderThan time.Time, limit int) ([]model.Asset, error)
}
