// Package ledger abstracts the blockchain interaction: signing and
// submitting certification transactions, awaiting confirmation, and
// decoding the canonical token identifier from emitted events.
package ledger

import (
	"context"
)

// Client abstracts the on-chain asset registry interaction.
type Client interface {
	// Preflight validates configuration (contract reference, signing
	// credential) without touching the network or mutating anything.
	Preflight() error

	// Certify submits a certification transaction and blocks until it is
	// confirmed. The call is bounded by the ledger's block time, not by
	// the caller; cancel via ctx.
	Certify(ctx context.Context, req CertifyRequest) (CertifyResult, error)

	// Lookup re-queries the chain for an existing certification of the
	// asset, used by reconciliation and to reconfirm identifiers when
	// the expected event is missing from a confirmed receipt.
	Lookup(ctx context.Context, assetID string) (LookupResult, error)
}

type CertifyRequest struct {
	AssetID      string
	OwnerAddress string
}

type CertifyResult struct {
	TxHash      string
	BlockNumber uint64
	TokenID     string

	// TokenFallback is true when the token id could not be recovered
	// from the confirmed transaction's logs nor reconfirmed against the
	// chain, and a locally derived identifier was used instead. Callers
	// must log and audit this branch.
	TokenFallback bool
}

type LookupResult struct {
	Found       bool
	TokenID     string
	TxHash      string
	BlockNumber uint64
}

// HealthChecker is implemented by clients that can probe their RPC
// endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
