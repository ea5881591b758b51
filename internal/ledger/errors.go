package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration faults, detected before any submission.
var (
	ErrMissingEndpoint   = errors.New("chain rpc endpoint is not configured")
	ErrMalformedContract = errors.New("malformed contract address")
	ErrMalformedKey      = errors.New("malformed signing key")
	ErrReadOnly          = errors.New("signing key is required for certification")
)

// Transaction faults, each a distinct cause for the caller-facing
// taxonomy.
var (
	ErrBroadcast      = errors.New("transaction broadcast failed")
	ErrReverted       = errors.New("transaction reverted")
	ErrUnminable      = errors.New("transaction underpriced or unminable")
	ErrNonceCollision = errors.New("nonce collision")
)

// classifySendError maps node error strings onto the typed transaction
// faults. RPC nodes only expose these causes as text.
func classifySendError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "already known"):
		return fmt.Errorf("%w: %v", ErrNonceCollision, err)
	case strings.Contains(msg, "underpriced"),
		strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "txpool is full"),
		strings.Contains(msg, "exceeds block gas limit"):
		return fmt.Errorf("%w: %v", ErrUnminable, err)
	default:
		return fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
}
