package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
)

// FakeClient hashes the payload to deterministically emulate on-chain
// certification in tests and keyless dev runs. It remembers what it has
// certified so Lookup behaves like the real chain.
type FakeClient struct {
	mu        sync.Mutex
	certified map[string]LookupResult
}

func NewFakeClient() *FakeClient {
	return &FakeClient{certified: make(map[string]LookupResult)}
}

func (f *FakeClient) Preflight() error { return nil }

func (f *FakeClient) Certify(_ context.Context, req CertifyRequest) (CertifyResult, error) {
	if req.AssetID == "" {
		return CertifyResult{}, fmt.Errorf("missing asset id")
	}
	if req.OwnerAddress == "" {
		return CertifyResult{}, fmt.Errorf("missing owner address")
	}

	txHash := fakeHash("tx:" + req.AssetID + ":" + req.OwnerAddress)
	sum := sha256.Sum256([]byte("token:" + req.AssetID))
	tokenID := fmt.Sprintf("%d", binary.BigEndian.Uint64(sum[:8]))

	result := CertifyResult{TxHash: txHash, BlockNumber: 1, TokenID: tokenID}

	f.mu.Lock()
	f.certified[req.AssetID] = LookupResult{
		Found:       true,
		TokenID:     tokenID,
		TxHash:      txHash,
		BlockNumber: 1,
	}
	f.mu.Unlock()

	return result, nil
}

func (f *FakeClient) Lookup(_ context.Context, assetID string) (LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.certified[assetID], nil
}

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}
