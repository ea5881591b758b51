package model

import "time"

// Certifiable asset types.
const (
	AssetTypeVoiceSample    = "voice_sample"
	AssetTypeLikenessSample = "likeness_sample"
	AssetTypeContentImage   = "content_image"
	AssetTypeContentVideo   = "content_video"
)

// Certification status constants.
const (
	CertStatusUncertified = "uncertified"
	CertStatusMinting     = "minting"
	CertStatusMinted      = "minted"
	CertStatusFailed      = "failed"
)

// Supported ledgers.
const (
	ChainPolygon = "polygon"
	ChainBase    = "base"
)

// Asset is an owner-scoped record eligible for on-chain certification.
// CertTxHash, CertTokenID and CertExplorerURL are set iff CertStatus is
// minted; CertMintingSince is set iff CertStatus is minting and anchors
// the reconciliation lease.
type Asset struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"owner_id"`
	Type          string  `json:"type"`
	WalletAddress *string `json:"wallet_address,omitempty"`

	CertStatus       string     `json:"cert_status"`
	CertChain        *string    `json:"cert_chain,omitempty"`
	CertTxHash       *string    `json:"cert_tx_hash,omitempty"`
	CertTokenID      *string    `json:"cert_token_id,omitempty"`
	CertExplorerURL  *string    `json:"cert_explorer_url,omitempty"`
	CertMintingSince *time.Time `json:"cert_minting_since,omitempty"`
	CertCreatedAt    *time.Time `json:"cert_created_at,omitempty"`
	CertUpdatedAt    *time.Time `json:"cert_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KnownAssetType reports whether t is one of the certifiable asset types.
func KnownAssetType(t string) bool {
	switch t {
	case AssetTypeVoiceSample, AssetTypeLikenessSample, AssetTypeContentImage, AssetTypeContentVideo:
		return true
	}
	return false
}

// KnownChain reports whether chain names a supported ledger.
func KnownChain(chain string) bool {
	switch chain {
	case ChainPolygon, ChainBase:
		return true
	}
	return false
}
