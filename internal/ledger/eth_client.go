package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"certmint/internal/contracts"
)

// EthClient submits certification transactions to the AssetRegistry
// contract on one chain.
type EthClient struct {
	client    *ethclient.Client
	contract  *bind.BoundContract
	abi       abi.ABI
	address   common.Address
	signer    common.Address
	queue     *signerQueue
	blockTime time.Duration
	log       zerolog.Logger
}

type EthClientConfig struct {
	RPCURL        string
	PrivateKeyHex string
	ContractAddr  string
	BlockTime     time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig, logger zerolog.Logger) (*EthClient, error) {
	// Configuration is validated before any network call so a malformed
	// destination or credential can never produce a submission.
	if cfg.RPCURL == "" {
		return nil, ErrMissingEndpoint
	}
	if !common.IsHexAddress(cfg.ContractAddr) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedContract, cfg.ContractAddr)
	}
	if cfg.PrivateKeyHex == "" {
		return nil, ErrReadOnly
	}
	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(contracts.AssetRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddr)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate
	txOpts.GasPrice = nil

	signerAddr := crypto.PubkeyToAddress(pk.PublicKey)

	startNonce, err := cli.PendingNonceAt(ctx, signerAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch pending nonce: %w", err)
	}

	blockTime := cfg.BlockTime
	if blockTime <= 0 {
		blockTime = 2 * time.Second
	}

	c := &EthClient{
		client:    cli,
		contract:  bound,
		abi:       parsedABI,
		address:   address,
		signer:    signerAddr,
		blockTime: blockTime,
		log:       logger,
	}
	c.queue = newSignerQueue(txOpts, startNonce, bound.Transact, func(ctx context.Context) (uint64, error) {
		return cli.PendingNonceAt(ctx, signerAddr)
	})
	return c, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return key, nil
}

func (c *EthClient) Preflight() error {
	if !common.IsHexAddress(c.address.Hex()) {
		return fmt.Errorf("%w: %q", ErrMalformedContract, c.address.Hex())
	}
	if c.queue == nil {
		return ErrReadOnly
	}
	return nil
}

func (c *EthClient) Certify(ctx context.Context, req CertifyRequest) (CertifyResult, error) {
	if err := c.Preflight(); err != nil {
		return CertifyResult{}, err
	}
	if !common.IsHexAddress(req.OwnerAddress) {
		return CertifyResult{}, fmt.Errorf("invalid owner address %q", req.OwnerAddress)
	}

	assetHash := assetHash(req.AssetID)

	tx, err := c.queue.Submit(ctx, "certify", assetHash, common.HexToAddress(req.OwnerAddress))
	if err != nil {
		return CertifyResult{}, err
	}

	receipt, err := WaitForReceipt(ctx, c.client, tx, c.blockTime)
	if err != nil {
		return CertifyResult{}, fmt.Errorf("%w: await confirmation of %s: %v", ErrUnminable, tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return CertifyResult{}, fmt.Errorf("%w: tx %s", ErrReverted, tx.Hash().Hex())
	}

	result := CertifyResult{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}

	tokenID, found := decodeAssetCertified(c.abi, c.address, assetHash, receipt.Logs)
	if found {
		result.TokenID = tokenID
		return result, nil
	}

	// The confirmed receipt carries no AssetCertified event. Reconfirm
	// against the chain before trusting any locally derived identifier.
	if lr, lerr := c.Lookup(ctx, req.AssetID); lerr == nil && lr.Found {
		c.log.Warn().
			Str("asset_id", req.AssetID).
			Str("tx_hash", result.TxHash).
			Msg("certified event missing from receipt, token id reconfirmed from chain")
		result.TokenID = lr.TokenID
		return result, nil
	}

	result.TokenID = fallbackTokenID(req.AssetID, tx.Hash())
	result.TokenFallback = true
	c.log.Warn().
		Str("asset_id", req.AssetID).
		Str("tx_hash", result.TxHash).
		Str("token_id", result.TokenID).
		Msg("certified event missing and chain lookup empty, using fallback token id")
	return result, nil
}

// Lookup scans the contract's AssetCertified events for the asset's
// indexed hash. Used by reconciliation and the event-missing branch.
func (c *EthClient) Lookup(ctx context.Context, assetID string) (LookupResult, error) {
	ev, ok := c.abi.Events["AssetCertified"]
	if !ok {
		return LookupResult{}, fmt.Errorf("abi is missing AssetCertified event")
	}

	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{ev.ID}, {assetHash(assetID)}},
	})
	if err != nil {
		return LookupResult{}, fmt.Errorf("filter certified events: %w", err)
	}

	for i := len(logs) - 1; i >= 0; i-- {
		lg := logs[i]
		tokenID, found := decodeAssetCertified(c.abi, c.address, assetHash(assetID), []*types.Log{&lg})
		if found {
			return LookupResult{
				Found:       true,
				TokenID:     tokenID,
				TxHash:      lg.TxHash.Hex(),
				BlockNumber: lg.BlockNumber,
			}, nil
		}
	}
	return LookupResult{}, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

// assetHash derives the bytes32 identifier the contract indexes assets by.
func assetHash(assetID string) common.Hash {
	return crypto.Keccak256Hash([]byte(assetID))
}

// WaitForReceipt polls until the transaction is mined or the context is
// cancelled. The poll interval follows the chain's block time.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, tx *types.Transaction, blockTime time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
