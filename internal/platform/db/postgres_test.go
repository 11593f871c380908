package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// stubTx satisfies pgx.Tx so join semantics can be exercised without a
// database. Only Commit and Rollback matter here.
type stubTx struct {
	commits   int
	rollbacks int
}

func (s *stubTx) Begin(context.Context) (pgx.Tx, error) { return s, nil }
func (s *stubTx) Commit(context.Context) error          { s.commits++; return nil }
func (s *stubTx) Rollback(context.Context) error        { s.rollbacks++; return nil }
func (s *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (s *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (s *stubTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (s *stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (s *stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (s *stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (s *stubTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (s *stubTx) Conn() *pgx.Conn                                         { return nil }

func TestWithTxJoinsAmbientTransaction(t *testing.T) {
	outer := &stubTx{}
	ctx := ContextWithTx(context.Background(), outer)

	var inner pgx.Tx
	err := WithTx(ctx, nil, func(ctx context.Context, tx pgx.Tx) error {
		inner = tx
		// a nested call, as when a subledger posts through the journal,
		// must ride the same transaction
		return WithTx(ctx, nil, func(_ context.Context, nested pgx.Tx) error {
			require.Same(t, outer, nested)
			return nil
		})
	})
	require.NoError(t, err)
	require.Same(t, outer, inner)

	// the joined calls never commit or roll back: that stays with the owner
	require.Equal(t, 0, outer.commits)
	require.Equal(t, 0, outer.rollbacks)
}

func TestWithTxJoinPropagatesErrorWithoutRollback(t *testing.T) {
	outer := &stubTx{}
	ctx := ContextWithTx(context.Background(), outer)

	sentinel := errors.New("posting failed")
	err := WithTx(ctx, nil, func(context.Context, pgx.Tx) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 0, outer.rollbacks, "rollback belongs to the transaction owner")
	require.Equal(t, 0, outer.commits)
}

func TestTxFromContextEmpty(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	require.False(t, ok)
}
