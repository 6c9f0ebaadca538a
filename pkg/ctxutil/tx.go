package ctxutil

import (
	"context"
	"database/sql"
	"sync"
)

type txKey struct{}

// TxState travels with the context of an open transaction so nested calls can
// join it and defer side effects until it commits.
type TxState struct {
	Tx *sql.Tx

	mu    sync.Mutex
	hooks []func()
}

func WithTx(ctx context.Context, tx *sql.Tx) (context.Context, *TxState) {
	state := &TxState{Tx: tx}
	return context.WithValue(ctx, txKey{}, state), state
}

func TxFromContext(ctx context.Context) (*TxState, bool) {
	state, ok := ctx.Value(txKey{}).(*TxState)
	return state, ok && state != nil
}

func (s *TxState) AfterCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Committed runs the queued hooks once, in registration order.
func (s *TxState) Committed() {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// AfterCommit queues fn on the transaction carried by ctx, or runs it now
// when ctx carries none.
func AfterCommit(ctx context.Context, fn func()) {
	if state, ok := TxFromContext(ctx); ok {
		state.AfterCommit(fn)
		return
	}
	fn()
}
