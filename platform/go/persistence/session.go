package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is a unit-of-work over one pgx transaction. Every repository call
// inside the session writes into the transaction buffer immediately (the
// "flush" of the contract); nothing is durable until Commit. A session is
// exclusively owned by the request flow that opened it and must never be
// shared across concurrent operations.
//
// The actor id is threaded in explicitly at open time so version rows can be
// stamped without any ambient request state.
type Session struct {
	tx            pgx.Tx
	actorID       *int64
	transactionID *int64
	closed        bool
}

// OpenSession begins a transaction on the pool. Callers must ensure the
// session ends on every exit path; the usual shape is
//
//	sess, err := OpenSession(ctx, pool, actor)
//	defer sess.Rollback(ctx)
//	...
//	return sess.Commit(ctx)
//
// Rollback after a successful Commit is a no-op.
func OpenSession(ctx context.Context, pool *pgxpool.Pool, actorID *int64) (*Session, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	return &Session{tx: tx, actorID: actorID}, nil
}

// conditionalSession reuses the provided session when the caller already holds
// one, otherwise opens a fresh scope. The boolean reports whether this call
// owns the scope and is therefore responsible for commit/rollback.
func conditionalSession(ctx context.Context, pool *pgxpool.Pool, provided *Session, actorID *int64) (*Session, bool, error) {
	if provided != nil {
		return provided, false, nil
	}
	sess, err := OpenSession(ctx, pool, actorID)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Commit ends the transaction durably.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.closed = true
	return nil
}

// Rollback discards the transaction. Safe to defer: after Commit it does nothing.
func (s *Session) Rollback(ctx context.Context) {
	if s == nil || s.closed {
		return
	}
	_ = s.tx.Rollback(ctx)
	s.closed = true
}

// ActorID returns the actor the session was opened for, if any.
func (s *Session) ActorID() *int64 {
	return s.actorID
}

// transaction lazily creates the audit transaction row backing every version
// record written inside this session. One session maps to at most one
// transaction id.
func (s *Session) transaction(ctx context.Context) (int64, error) {
	if s.transactionID != nil {
		return *s.transactionID, nil
	}

	var id int64
	err := s.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (actor_id, issued_at)
		VALUES ($1, NOW())
		RETURNING id
	`, TransactionsTable), s.actorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record audit transaction: %w", err)
	}

	s.transactionID = &id
	return id, nil
}
