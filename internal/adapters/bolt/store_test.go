package bolt_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/adapters/bolt"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/testutil/fixtures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *bolt.Store {
	t.Helper()
	s, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func preAuth(ticket, reference, pending string, created time.Time) *domain.Transaction {
	amount := decimal.RequireFromString(pending)
	return &domain.Transaction{
		CreatedAt:                 created,
		ApprovedTransactionAmount: amount,
		PendingAmount:             amount,
		TicketNumber:              ticket,
		TransactionReference:      reference,
		MerchantID:                "m-1",
		TransactionType:           domain.TransactionTypePreAuth,
		Status:                    domain.TransactionStatusApproval,
	}
}

func TestTransactionStore_ConditionalPutIsIdempotent(t *testing.T) {
	store := newTestStore(t).Transactions()
	ctx := context.Background()

	txn := preAuth("t-1", "ref-1", "100", time.Now())
	require.NoError(t, store.ConditionalPut(ctx, txn))
	assert.ErrorIs(t, store.ConditionalPut(ctx, txn), ports.ErrAlreadyExists)

	got, err := store.GetByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", got.TransactionReference)
	assert.Equal(t, "100", got.PendingAmount.String())

	_, err = store.GetByTicket(ctx, "nope")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestTransactionStore_QueryByReferenceOrdersByCreation(t *testing.T) {
	store := newTestStore(t).Transactions()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.ConditionalPut(ctx, preAuth("z-last", "ref-1", "1", base.Add(2*time.Minute))))
	require.NoError(t, store.ConditionalPut(ctx, preAuth("a-first", "ref-1", "1", base)))
	require.NoError(t, store.ConditionalPut(ctx, preAuth("other", "ref-10", "1", base)))

	got, err := store.QueryByReference(ctx, "ref-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-first", got[0].TicketNumber)
	assert.Equal(t, "z-last", got[1].TicketNumber)

	none, err := store.QueryByReference(ctx, "ref-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactionStore_DecrementPending(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		wantErr   error
		wantAfter string
	}{
		{name: "partial", amount: "40.25", wantAfter: "59.75"},
		{name: "exact", amount: "100", wantAfter: "0"},
		{name: "over_pending", amount: "100.01", wantErr: ports.ErrConditionFailed, wantAfter: "100"},
		{name: "zero", amount: "0", wantErr: ports.ErrConditionFailed, wantAfter: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t).Transactions()
			ctx := context.Background()
			require.NoError(t, store.ConditionalPut(ctx, preAuth("t-1", "ref-1", "100", time.Now())))

			remaining, err := store.DecrementPending(ctx, "t-1", decimal.RequireFromString(tt.amount))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAfter, remaining.String())
			}

			got, err := store.GetByTicket(ctx, "t-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAfter, got.PendingAmount.String())
		})
	}
}

func TestTransactionStore_ConcurrentDecrementsNeverOverdraw(t *testing.T) {
	store := newTestStore(t).Transactions()
	ctx := context.Background()
	require.NoError(t, store.ConditionalPut(ctx, preAuth("t-1", "ref-1", "100", time.Now())))

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.DecrementPending(ctx, "t-1", decimal.NewFromInt(30)); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded.Load())
	got, err := store.GetByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "10", got.PendingAmount.String())
}

func TestTransactionStore_UpdateValues(t *testing.T) {
	store := newTestStore(t).Transactions()
	ctx := context.Background()
	require.NoError(t, store.ConditionalPut(ctx, preAuth("t-1", "ref-1", "80", time.Now())))

	capture := ports.TransactionUpdate{
		PendingAmount:  fixtures.DecimalPtr(decimal.Zero),
		Captured:       fixtures.BoolPtr(true),
		ExpectCaptured: fixtures.BoolPtr(false),
		Metadata:       map[string]string{"captureTicket": "c-1"},
	}
	require.NoError(t, store.UpdateValues(ctx, "t-1", capture))
	assert.ErrorIs(t, store.UpdateValues(ctx, "t-1", capture), ports.ErrConditionFailed)
	assert.ErrorIs(t, store.UpdateValues(ctx, "missing", capture), ports.ErrConditionFailed)

	got, err := store.GetByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, got.Captured)
	assert.True(t, got.PendingAmount.IsZero())
	assert.Equal(t, "c-1", got.Metadata["captureTicket"])
}

func TestTransactionStore_UpdateValuesPendingGuard(t *testing.T) {
	tests := []struct {
		name          string
		expectPending string
		wantErr       error
		wantPending   string
	}{
		{name: "pending_unchanged", expectPending: "80", wantPending: "0"},
		{name: "pending_changed", expectPending: "100", wantErr: ports.ErrConditionFailed, wantPending: "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t).Transactions()
			ctx := context.Background()
			require.NoError(t, store.ConditionalPut(ctx, preAuth("t-1", "ref-1", "80", time.Now())))

			err := store.UpdateValues(ctx, "t-1", ports.TransactionUpdate{
				PendingAmount:  fixtures.DecimalPtr(decimal.Zero),
				Captured:       fixtures.BoolPtr(true),
				ExpectCaptured: fixtures.BoolPtr(false),
				ExpectPending:  fixtures.DecimalPtr(decimal.RequireFromString(tt.expectPending)),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			got, err := store.GetByTicket(ctx, "t-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending, got.PendingAmount.String())
			assert.Equal(t, tt.wantErr == nil, got.Captured)
		})
	}
}

func TestTransactionStore_RestorePending(t *testing.T) {
	store := newTestStore(t).Transactions()
	ctx := context.Background()
	require.NoError(t, store.ConditionalPut(ctx, preAuth("t-1", "ref-1", "100", time.Now())))

	_, err := store.DecrementPending(ctx, "t-1", decimal.NewFromInt(70))
	require.NoError(t, err)

	restored, err := store.RestorePending(ctx, "t-1", decimal.NewFromInt(70))
	require.NoError(t, err)
	assert.Equal(t, "100", restored.String())

	_, err = store.RestorePending(ctx, "t-1", decimal.Zero)
	assert.ErrorIs(t, err, ports.ErrConditionFailed)
	_, err = store.RestorePending(ctx, "missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ports.ErrConditionFailed)
}

func TestTokenStore_ConsumedAtMostOnce(t *testing.T) {
	store := newTestStore(t).Tokens()
	ctx := context.Background()

	token := &domain.Token{CreatedAt: time.Now(), ID: "tok-1", MerchantID: "m-1", Amount: decimal.NewFromInt(5)}
	require.NoError(t, store.ConditionalPut(ctx, token))
	assert.ErrorIs(t, store.ConditionalPut(ctx, token), ports.ErrAlreadyExists)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.MarkConsumed(ctx, "tok-1", "txn"); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded.Load())

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, got.Consumed)
	assert.Equal(t, "txn", got.ConsumedBy)
	require.NotNil(t, got.ConsumedAt)

	assert.ErrorIs(t, store.MarkConsumed(ctx, "unknown", "txn"), ports.ErrConditionFailed)
	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestMerchantStore(t *testing.T) {
	store := newTestStore(t).Merchants()
	ctx := context.Background()

	_, err := store.GetMerchant(ctx, "m-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.PutMerchant(ctx, &domain.Merchant{ID: "m-1", Country: "Mexico", DeferredEnabled: true}))
	got, err := store.GetMerchant(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Mexico", got.Country)
	assert.True(t, got.DeferredEnabled)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := bolt.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Transactions().ConditionalPut(ctx, preAuth("t-1", "ref-1", "9.99", time.Now())))
	require.NoError(t, s.Close())

	s, err = bolt.Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	got, err := s.Transactions().GetByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "9.99", got.PendingAmount.String())
}
