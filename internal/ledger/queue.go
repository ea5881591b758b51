package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

// signerQueue serializes nonce assignment for a shared signing account.
// The lock covers only signing and broadcast; waiting for confirmation
// happens outside it so concurrent certifications overlap on the wire.
type signerQueue struct {
	mu    sync.Mutex
	opts  *bind.TransactOpts
	nonce uint64

	send   func(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error)
	resync func(ctx context.Context) (uint64, error)
}

func newSignerQueue(
	opts *bind.TransactOpts,
	startNonce uint64,
	send func(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error),
	resync func(ctx context.Context) (uint64, error),
) *signerQueue {
	return &signerQueue{opts: opts, nonce: startNonce, send: send, resync: resync}
}

// Submit signs and broadcasts one invocation under the next nonce. On a
// nonce collision the local counter is resynced from the node so the
// next submission recovers without operator action.
func (q *signerQueue) Submit(ctx context.Context, method string, args ...any) (*types.Transaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	opts := *q.opts
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(q.nonce)

	tx, err := q.send(&opts, method, args...)
	if err != nil {
		classified := classifySendError(err)
		if errors.Is(classified, ErrNonceCollision) && q.resync != nil {
			if n, rerr := q.resync(ctx); rerr == nil {
				q.nonce = n
			}
		}
		return nil, classified
	}

	q.nonce++
	return tx, nil
}
