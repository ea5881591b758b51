package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"certmint/internal/model"
)

// Memory is an in-memory AssetStore with the same CAS semantics as the
// Postgres implementation. Used in tests and keyless dev runs.
type Memory struct {
	mu   sync.Mutex
	data map[string]model.Asset
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]model.Asset)}
}

func (m *Memory) Create(_ context.Context, asset *model.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[asset.ID]; ok {
		return nil
	}
	now := time.Now().UTC()
	stored := *asset
	stored.CertStatus = model.CertStatusUncertified
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.data[asset.ID] = stored
	return nil
}

func (m *Memory) GetByID(_ context.Context, id string, scope Scope) (*model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !scope.Service && asset.OwnerID != scope.OwnerID {
		return nil, ErrNotFound
	}
	out := asset
	return &out, nil
}

func (m *Memory) ClaimMinting(_ context.Context, id, expectedStatus, chain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.data[id]
	if !ok || asset.CertStatus != expectedStatus {
		return false, nil
	}
	now := time.Now().UTC()
	asset.CertStatus = model.CertStatusMinting
	asset.CertChain = &chain
	asset.CertMintingSince = &now
	asset.CertUpdatedAt = &now
	asset.UpdatedAt = now
	m.data[id] = asset
	return true, nil
}

func (m *Memory) MarkMinted(_ context.Context, id string, cert Certificate) (*model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.data[id]
	if !ok || asset.CertStatus != model.CertStatusMinting {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	asset.CertStatus = model.CertStatusMinted
	asset.CertChain = &cert.Chain
	asset.CertTxHash = &cert.TxHash
	asset.CertTokenID = &cert.TokenID
	asset.CertExplorerURL = &cert.ExplorerURL
	asset.CertMintingSince = nil
	asset.CertCreatedAt = &now
	asset.CertUpdatedAt = &now
	asset.UpdatedAt = now
	m.data[id] = asset
	out := asset
	return &out, nil
}

func (m *Memory) MarkFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.data[id]
	if !ok || asset.CertStatus != model.CertStatusMinting {
		return ErrNotFound
	}
	now := time.Now().UTC()
	asset.CertStatus = model.CertStatusFailed
	asset.CertMintingSince = nil
	asset.CertUpdatedAt = &now
	asset.UpdatedAt = now
	m.data[id] = asset
	return nil
}

func (m *Memory) ListStuckMinting(_ context.Context, olderThan time.Time, limit int) ([]model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stuck []model.Asset
	for _, asset := range m.data {
		if asset.CertStatus == model.CertStatusMinting &&
			asset.CertMintingSince != nil && asset.CertMintingSince.Before(olderThan) {
			stuck = append(stuck, asset)
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].CertMintingSince.Before(*stuck[j].CertMintingSince)
	})
	if len(stuck) > limit {
		stuck = stuck[:limit]
	}
	return stuck, nil
}
