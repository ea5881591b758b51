package minting

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certmint/internal/access"
	"certmint/internal/audit"
	"certmint/internal/certerr"
	"certmint/internal/config"
	"certmint/internal/ledger"
	"certmint/internal/model"
	"certmint/internal/store"
)

// stubLedger is a controllable ledger.Client for controller tests.
type stubLedger struct {
	mu           sync.Mutex
	certifyCalls int
	certifyErr   error
	preflightErr error
	lookup       ledger.LookupResult
	lookupErr    error
	fallback     bool
}

func (s *stubLedger) Preflight() error { return s.preflightErr }

func (s *stubLedger) Certify(_ context.Context, req ledger.CertifyRequest) (ledger.CertifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certifyCalls++
	if s.certifyErr != nil {
		return ledger.CertifyResult{}, s.certifyErr
	}
	return ledger.CertifyResult{
		TxHash:        "0x" + req.AssetID,
		BlockNumber:   100,
		TokenID:       fmt.Sprintf("%d", s.certifyCalls),
		TokenFallback: s.fallback,
	}, nil
}

func (s *stubLedger) Lookup(context.Context, string) (ledger.LookupResult, error) {
	return s.lookup, s.lookupErr
}

func (s *stubLedger) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certifyCalls
}

func testChains() map[string]config.ChainSpec {
	return map[string]config.ChainSpec{
		model.ChainPolygon: {
			Name:            model.ChainPolygon,
			ChainID:         137,
			Contract:        "0x1111111111111111111111111111111111111111",
			ExplorerBaseURL: "https://polygonscan.com",
			CustodyAddress:  "0x2222222222222222222222222222222222222222",
		},
		model.ChainBase: {
			Name:           model.ChainBase,
			ChainID:        8453,
			Contract:       "0x3333333333333333333333333333333333333333",
			CustodyAddress: "0x2222222222222222222222222222222222222222",
		},
	}
}

type controllerFixture struct {
	ctrl   *Controller
	store  *store.Memory
	audit  *audit.MemoryLog
	ledger *stubLedger
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	st := store.NewMemory()
	al := audit.NewMemoryLog()
	lg := &stubLedger{}
	ctrl := NewController(
		st,
		map[string]ledger.Client{model.ChainPolygon: lg, model.ChainBase: lg},
		testChains(),
		model.ChainPolygon,
		al,
		NewMetrics(),
		zerolog.Nop(),
	)
	return &controllerFixture{ctrl: ctrl, store: st, audit: al, ledger: lg}
}

func (f *controllerFixture) seed(t *testing.T, id, owner string) {
	t.Helper()
	err := f.store.Create(context.Background(), &model.Asset{
		ID:      id,
		OwnerID: owner,
		Type:    model.AssetTypeVoiceSample,
	})
	require.NoError(t, err)
}

func ownerIdentity(owner string) access.Identity {
	return access.Identity{SubjectID: owner}
}

func TestRequestCertificationHappyPath(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")

	res, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   ownerIdentity("owner-1"),
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyCertified)
	assert.Equal(t, model.CertStatusMinted, res.Asset.CertStatus)
	require.NotNil(t, res.Certificate)
	assert.Equal(t, model.ChainPolygon, res.Certificate.Chain)
	assert.Equal(t, "0xasset-1", res.Certificate.TxHash)
	assert.Equal(t, "https://polygonscan.com/tx/0xasset-1", res.Certificate.ExplorerURL)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", res.Certificate.ContractReference)
	assert.Equal(t, 1, f.ledger.calls())

	actions := make([]string, 0, 2)
	for _, e := range f.audit.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{audit.ActionRequested, audit.ActionCertified}, actions)
}

func TestRequestCertificationIdempotent(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")
	req := Request{AssetID: "asset-1", Actor: ownerIdentity("owner-1")}

	first, err := f.ctrl.RequestCertification(context.Background(), req)
	require.NoError(t, err)

	second, err := f.ctrl.RequestCertification(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCertified)
	assert.Equal(t, first.Certificate.TxHash, second.Certificate.TxHash)
	assert.Equal(t, first.Certificate.TokenID, second.Certificate.TokenID)

	// The ledger is only touched once.
	assert.Equal(t, 1, f.ledger.calls())
}

func TestRequestCertificationUnknownChain(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")

	_, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Chain:   "solana",
		Actor:   ownerIdentity("owner-1"),
	})
	assert.Equal(t, certerr.CodeConfiguration, certerr.CodeOf(err))

	asset, err := f.store.GetByID(context.Background(), "asset-1", store.Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusUncertified, asset.CertStatus)
}

func TestRequestCertificationPreflightFailureDoesNotMutate(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")
	f.ledger.preflightErr = ledger.ErrMalformedContract

	_, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   ownerIdentity("owner-1"),
	})
	assert.Equal(t, certerr.CodeConfiguration, certerr.CodeOf(err))
	assert.Equal(t, 0, f.ledger.calls())

	asset, err := f.store.GetByID(context.Background(), "asset-1", store.Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusUncertified, asset.CertStatus)
	assert.Empty(t, f.audit.Entries())
}

func TestRequestCertificationNotFound(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "missing",
		Actor:   ownerIdentity("owner-1"),
	})
	assert.Equal(t, certerr.CodeNotFound, certerr.CodeOf(err))
}

func TestRequestCertificationScopeHidesForeignAssets(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")

	// A non-service caller cannot even observe someone else's asset.
	_, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   ownerIdentity("owner-2"),
	})
	assert.Equal(t, certerr.CodeNotFound, certerr.CodeOf(err))
	assert.Equal(t, 0, f.ledger.calls())
}

func TestRequestCertificationServiceActor(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")

	res, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   access.Identity{SubjectID: "ingestion-pipeline", Service: true},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinted, res.Asset.CertStatus)
}

func TestRequestCertificationConflictWhileMinting(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")

	ok, err := f.store.ClaimMinting(context.Background(), "asset-1", model.CertStatusUncertified, model.ChainPolygon)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   ownerIdentity("owner-1"),
	})
	assert.Equal(t, certerr.CodeConflict, certerr.CodeOf(err))
	assert.Equal(t, 0, f.ledger.calls())
}

func TestRequestCertificationConcurrentSingleMint(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ctrl.RequestCertification(context.Background(), Request{
				AssetID: "asset-1",
				Actor:   ownerIdentity("owner-1"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, certerr.CodeConflict, certerr.CodeOf(err))
		}
	}
	// At least one caller wins; races arriving after the mint completes
	// resolve idempotently and also count as success.
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, 1, f.ledger.calls())

	asset, err := f.store.GetByID(context.Background(), "asset-1", store.Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinted, asset.CertStatus)
}

func TestRequestCertificationFailureIsRetryable(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")
	f.ledger.certifyErr = ledger.ErrReverted

	req := Request{AssetID: "asset-1", Actor: ownerIdentity("owner-1")}
	_, err := f.ctrl.RequestCertification(context.Background(), req)
	assert.Equal(t, certerr.CodeTransaction, certerr.CodeOf(err))

	asset, err := f.store.GetByID(context.Background(), "asset-1", store.Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusFailed, asset.CertStatus)

	// A retry out of failed succeeds once the fault clears.
	f.ledger.certifyErr = nil
	res, err := f.ctrl.RequestCertification(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinted, res.Asset.CertStatus)
	assert.Equal(t, 2, f.ledger.calls())

	actions := make([]string, 0, 4)
	for _, e := range f.audit.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		audit.ActionRequested, audit.ActionFailed,
		audit.ActionRequested, audit.ActionCertified,
	}, actions)
}

func TestRequestCertificationUnclassifiedFailure(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")
	f.ledger.certifyErr = fmt.Errorf("rpc socket closed")

	_, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   ownerIdentity("owner-1"),
	})
	assert.Equal(t, certerr.CodeInternal, certerr.CodeOf(err))

	// Even an unclassified fault never leaves the asset in minting.
	asset, err := f.store.GetByID(context.Background(), "asset-1", store.Scope{Service: true})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusFailed, asset.CertStatus)
}

func TestRequestCertificationTokenFallbackAudited(t *testing.T) {
	f := newControllerFixture(t)
	f.seed(t, "asset-1", "owner-1")
	f.ledger.fallback = true

	res, err := f.ctrl.RequestCertification(context.Background(), Request{
		AssetID: "asset-1",
		Actor:   ownerIdentity("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusMinted, res.Asset.CertStatus)

	entries := f.audit.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionCertified, entries[1].Action)
	assert.Equal(t, true, entries[1].Details["token_fallback"])
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code certerr.Code
	}{
		{"malformed key", ledger.ErrMalformedKey, certerr.CodeConfiguration},
		{"read only", ledger.ErrReadOnly, certerr.CodeConfiguration},
		{"reverted", fmt.Errorf("certify: %w", ledger.ErrReverted), certerr.CodeTransaction},
		{"broadcast", ledger.ErrBroadcast, certerr.CodeTransaction},
		{"unminable", ledger.ErrUnminable, certerr.CodeTransaction},
		{"nonce collision", ledger.ErrNonceCollision, certerr.CodeTransaction},
		{"unknown", fmt.Errorf("socket closed"), certerr.CodeInternal},
		{"already classified", certerr.New(certerr.StageLookup, certerr.CodeNotFound, "gone"), certerr.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, classify(tc.err).Code)
		})
	}
}
