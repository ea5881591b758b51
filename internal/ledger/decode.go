package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// decodeAssetCertified scans logs for an AssetCertified event emitted by
// the registry contract for the given asset hash. Returns the token id
// and whether a matching event was found; there is no implicit default.
func decodeAssetCertified(parsed abi.ABI, contract common.Address, asset common.Hash, logs []*types.Log) (string, bool) {
	ev, ok := parsed.Events["AssetCertified"]
	if !ok {
		return "", false
	}

	for _, lg := range logs {
		if lg == nil || lg.Address != contract {
			continue
		}
		if len(lg.Topics) < 2 || lg.Topics[0] != ev.ID || lg.Topics[1] != asset {
			continue
		}

		vals, err := parsed.Unpack("AssetCertified", lg.Data)
		if err != nil || len(vals) == 0 {
			continue
		}
		tokenID, ok := vals[0].(*big.Int)
		if !ok {
			continue
		}
		return tokenID.String(), true
	}
	return "", false
}

// fallbackTokenID derives a deterministic local identifier from the
// asset id and transaction hash. Only used on the explicit fallback
// branch when the on-chain identifier could not be recovered.
func fallbackTokenID(assetID string, txHash common.Hash) string {
	digest := crypto.Keccak256([]byte(assetID), txHash.Bytes())
	return new(big.Int).SetBytes(digest[:8]).String()
}
