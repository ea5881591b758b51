package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certmint/internal/model"
)

func seedAsset(t *testing.T, m *Memory, id, owner string) {
	t.Helper()
	err := m.Create(context.Background(), &model.Asset{
		ID:      id,
		OwnerID: owner,
		Type:    model.AssetTypeVoiceSample,
	})
	require.NoError(t, err)
}

func TestCreateIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAsset(t, m, "asset-1", "owner-1")

	ok, err := m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	require.True(t, ok)

	// Re-registering must not reset the status of an asset mid-mint.
	err = m.Create(ctx, &model.Asset{ID: "asset-1", OwnerID: "owner-1", Type: model.AssetTypeVoiceSample})
	require.NoError(t, err)

	asset, err := m.GetByID(ctx, "asset-1", Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinting, asset.CertStatus)
}

func TestGetByIDScope(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAsset(t, m, "asset-1", "owner-1")

	_, err := m.GetByID(ctx, "asset-1", Scope{OwnerID: "owner-2"})
	assert.ErrorIs(t, err, ErrNotFound)

	asset, err := m.GetByID(ctx, "asset-1", Scope{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, "asset-1", asset.ID)

	asset, err = m.GetByID(ctx, "asset-1", Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, "asset-1", asset.ID)

	_, err = m.GetByID(ctx, "missing", Scope{Service: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimMintingCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAsset(t, m, "asset-1", "owner-1")

	ok, err := m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim against the stale status loses.
	ok, err = m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	assert.False(t, ok)

	asset, err := m.GetByID(ctx, "asset-1", Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinting, asset.CertStatus)
	require.NotNil(t, asset.CertChain)
	assert.Equal(t, model.ChainPolygon, *asset.CertChain)
	assert.NotNil(t, asset.CertMintingSince)
}

func TestClaimMintingConcurrentSingleWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAsset(t, m, "asset-1", "owner-1")

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
			if err != nil {
				t.Error(err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

func TestMarkMintedOnlyFromMinting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAsset(t, m, "asset-1", "owner-1")

	cert := Certificate{
		Chain:       model.ChainPolygon,
		TxHash:      "0xabc",
		TokenID:     "42",
		ExplorerURL: "https://polygonscan.com/tx/0xabc",
	}

	_, err := m.MarkMinted(ctx, "asset-1", cert)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	require.True(t, ok)

	asset, err := m.MarkMinted(ctx, "asset-1", cert)
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinted, asset.CertStatus)
	require.NotNil(t, asset.CertTxHash)
	assert.Equal(t, "0xabc", *asset.CertTxHash)
	require.NotNil(t, asset.CertTokenID)
	assert.Equal(t, "42", *asset.CertTokenID)
	assert.Nil(t, asset.CertMintingSince)
	assert.NotNil(t, asset.CertCreatedAt)

	// Minted is terminal.
	_, err = m.MarkMinted(ctx, "asset-1", cert)
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkFailedAllowsRetry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedAsset(t, m, "asset-1", "owner-1")

	err := m.MarkFailed(ctx, "asset-1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := m.ClaimMinting(ctx, "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.MarkFailed(ctx, "asset-1"))

	asset, err := m.GetByID(ctx, "asset-1", Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusFailed, asset.CertStatus)
	assert.Nil(t, asset.CertMintingSince)

	// A retry re-claims out of failed.
	ok, err = m.ClaimMinting(ctx, "asset-1", model.CertStatusFailed, model.ChainBase)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListStuckMinting(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		seedAsset(t, m, id, "owner-1")
	}

	ok, err := m.ClaimMinting(ctx, "a", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.ClaimMinting(ctx, "b", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	require.True(t, ok)

	// c stays uncertified and must never appear in the sweep.
	stuck, err := m.ListStuckMinting(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	for _, asset := range stuck {
		assert.Equal(t, model.CertStatusMinting, asset.CertStatus)
	}

	// A cutoff in the past excludes fresh leases.
	stuck, err = m.ListStuckMinting(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	stuck, err = m.ListStuckMinting(ctx, time.Now().Add(time.Second), 1)
	require.NoError(t, err)
	assert.Len(t, stuck, 1)
}
